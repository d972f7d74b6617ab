// Package store persists conversion history, finished documents and cached
// explanations in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a conversion or one of its files does not
// exist.
var ErrNotFound = errors.New("store: not found")

// Conversion statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Warning is a non-fatal problem recorded for a conversion.
type Warning struct {
	Stage      string `json:"stage"`
	PageNumber int    `json:"page_number,omitempty"`
	Message    string `json:"message"`
}

// Conversion is a row of the conversions table without the stored files.
type Conversion struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	ContentHash    string    `json:"content_hash"`
	Status         string    `json:"status"`
	Model          string    `json:"model,omitempty"`
	SlideCount     int       `json:"slide_count"`
	ImageCount     int       `json:"image_count"`
	TableCount     int       `json:"table_count"`
	TotalTokens    int       `json:"total_tokens"`
	Warnings       []Warning `json:"warnings,omitempty"`
	Error          string    `json:"error,omitempty"`
	OutputFilename string    `json:"output_filename,omitempty"`
	HasDocument    bool      `json:"has_document"`
	HasTables      bool      `json:"has_tables"`
	CreatedAt      string    `json:"created_at"`
	UpdatedAt      string    `json:"updated_at"`
}

// Completion is what a successful conversion stores.
type Completion struct {
	SlideCount     int
	ImageCount     int
	TableCount     int
	TotalTokens    int
	Warnings       []Warning
	OutputFilename string
	Document       []byte
	Tables         []byte // Optional tables workbook
}

// Slide is the per-slide outcome of a conversion.
type Slide struct {
	PageNumber  int    `json:"page_number"`
	Title       string `json:"title"`
	Explanation string `json:"explanation,omitempty"`
	Available   bool   `json:"available"`
	Cached      bool   `json:"cached"`
	TotalTokens int    `json:"total_tokens"`
}

// Store wraps the SQLite database for all deckdoc persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and applies
// the schema and pending migrations.
func New(dbPath string) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Conversion operations ---

// CreateConversion records a conversion in the running state. ID, Filename
// and ContentHash are required.
func (s *Store) CreateConversion(ctx context.Context, c Conversion) error {
	if c.ID == "" {
		return errors.New("store: conversion id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversions (id, filename, content_hash, status, model)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.Filename, c.ContentHash, StatusRunning, c.Model)
	return err
}

// CompleteConversion stores the finished files and marks the conversion
// completed.
func (s *Store) CompleteConversion(ctx context.Context, id string, c Completion) error {
	warnings, err := json.Marshal(c.Warnings)
	if err != nil {
		return fmt.Errorf("encoding warnings: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversions SET
			status = ?, slide_count = ?, image_count = ?, table_count = ?,
			total_tokens = ?, warnings = ?, output_filename = ?,
			document = ?, tables = ?, error = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, StatusCompleted, c.SlideCount, c.ImageCount, c.TableCount,
		c.TotalTokens, string(warnings), c.OutputFilename,
		c.Document, nullBlob(c.Tables), id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// FailConversion marks the conversion failed with the given message.
func (s *Store) FailConversion(ctx context.Context, id, message string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE conversions SET status = ?, error = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		StatusFailed, message, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

const conversionColumns = `id, filename, content_hash, status, model, slide_count,
	image_count, table_count, total_tokens, warnings, error, output_filename,
	document IS NOT NULL, tables IS NOT NULL, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanConversion(row scanner) (*Conversion, error) {
	c := &Conversion{}
	var model, warnings, errMsg, output sql.NullString
	if err := row.Scan(&c.ID, &c.Filename, &c.ContentHash, &c.Status, &model,
		&c.SlideCount, &c.ImageCount, &c.TableCount, &c.TotalTokens,
		&warnings, &errMsg, &output, &c.HasDocument, &c.HasTables,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Model = model.String
	c.Error = errMsg.String
	c.OutputFilename = output.String
	if warnings.Valid && warnings.String != "" && warnings.String != "null" {
		if err := json.Unmarshal([]byte(warnings.String), &c.Warnings); err != nil {
			return nil, fmt.Errorf("decoding warnings of %s: %w", c.ID, err)
		}
	}
	return c, nil
}

// GetConversion retrieves a conversion by ID.
func (s *Store) GetConversion(ctx context.Context, id string) (*Conversion, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+conversionColumns+" FROM conversions WHERE id = ?", id)
	c, err := scanConversion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: conversion %s", ErrNotFound, id)
	}
	return c, err
}

// ListConversions returns the most recent conversions first. limit <= 0
// returns all of them.
func (s *Store) ListConversions(ctx context.Context, limit int) ([]Conversion, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+conversionColumns+" FROM conversions ORDER BY created_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversion
	for rows.Next() {
		c, err := scanConversion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// GetDocument returns the output file name and bytes of a completed
// conversion.
func (s *Store) GetDocument(ctx context.Context, id string) (string, []byte, error) {
	var name sql.NullString
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT output_filename, document FROM conversions WHERE id = ?", id).Scan(&name, &data)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && data == nil) {
		return "", nil, fmt.Errorf("%w: document of %s", ErrNotFound, id)
	}
	if err != nil {
		return "", nil, err
	}
	return name.String, data, nil
}

// GetTables returns the tables workbook of a conversion.
func (s *Store) GetTables(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT tables FROM conversions WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && data == nil) {
		return nil, fmt.Errorf("%w: tables of %s", ErrNotFound, id)
	}
	return data, err
}

// DeleteConversion removes a conversion and its slides.
func (s *Store) DeleteConversion(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM conversion_slides WHERE conversion_id = ?", id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM conversions WHERE id = ?", id)
		if err != nil {
			return err
		}
		return expectRow(res)
	})
}

// --- Slide operations ---

// SaveSlides replaces the per-slide outcomes of a conversion.
func (s *Store) SaveSlides(ctx context.Context, id string, slides []Slide) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM conversion_slides WHERE conversion_id = ?", id); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO conversion_slides
				(conversion_id, page_number, title, explanation, available, cached, total_tokens)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, sl := range slides {
			if _, err := stmt.ExecContext(ctx, id, sl.PageNumber, sl.Title,
				sl.Explanation, sl.Available, sl.Cached, sl.TotalTokens); err != nil {
				return fmt.Errorf("inserting slide %d: %w", sl.PageNumber, err)
			}
		}
		return nil
	})
}

// GetSlides returns the per-slide outcomes of a conversion in page order.
func (s *Store) GetSlides(ctx context.Context, id string) ([]Slide, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT page_number, title, explanation, available, cached, total_tokens
		FROM conversion_slides WHERE conversion_id = ? ORDER BY page_number
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Slide
	for rows.Next() {
		var sl Slide
		var title, explanation sql.NullString
		if err := rows.Scan(&sl.PageNumber, &title, &explanation,
			&sl.Available, &sl.Cached, &sl.TotalTokens); err != nil {
			return nil, err
		}
		sl.Title = title.String
		sl.Explanation = explanation.String
		out = append(out, sl)
	}
	return out, rows.Err()
}

// --- Explanation cache ---

// GetExplanation looks up a cached explanation and counts the hit.
func (s *Store) GetExplanation(ctx context.Context, key string) (string, bool, error) {
	var text string
	err := s.db.QueryRowContext(ctx,
		"SELECT text FROM explanation_cache WHERE key = ?", key).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE explanation_cache SET hits = hits + 1, last_used_at = CURRENT_TIMESTAMP WHERE key = ?",
		key); err != nil {
		return "", false, err
	}
	return text, true, nil
}

// PutExplanation stores an explanation, replacing any previous text for the
// same key.
func (s *Store) PutExplanation(ctx context.Context, key, model, text string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO explanation_cache (key, model, text)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			model = excluded.model,
			text = excluded.text,
			created_at = CURRENT_TIMESTAMP
	`, key, model, text)
	return err
}

// ClearExplanations empties the explanation cache.
func (s *Store) ClearExplanations(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM explanation_cache")
	return err
}

// DBStats contains row counts for the main tables.
type DBStats struct {
	Conversions  int `json:"conversions"`
	Completed    int `json:"completed"`
	Failed       int `json:"failed"`
	Slides       int `json:"slides"`
	Explanations int `json:"cached_explanations"`
}

// DBStats returns row counts for conversions, slides and cached explanations.
func (s *Store) DBStats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM conversions", &stats.Conversions},
		{"SELECT COUNT(*) FROM conversions WHERE status = 'completed'", &stats.Completed},
		{"SELECT COUNT(*) FROM conversions WHERE status = 'failed'", &stats.Failed},
		{"SELECT COUNT(*) FROM conversion_slides", &stats.Slides},
		{"SELECT COUNT(*) FROM explanation_cache", &stats.Explanations},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// expectRow turns an update that touched nothing into ErrNotFound.
func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// nullBlob stores empty files as NULL so "IS NOT NULL" means present.
func nullBlob(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
