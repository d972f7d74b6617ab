// Package deckdoc turns a PowerPoint presentation into a Word document that
// pairs each slide's content with a language-model explanation.
package deckdoc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brunobiangulo/deckdoc/assembler"
	"github.com/brunobiangulo/deckdoc/docx"
	"github.com/brunobiangulo/deckdoc/explain"
	"github.com/brunobiangulo/deckdoc/export"
	"github.com/brunobiangulo/deckdoc/llm"
	"github.com/brunobiangulo/deckdoc/parser"
	"github.com/brunobiangulo/deckdoc/store"
)

// Converter is the main entry point.
type Converter interface {
	// Convert reads a .pptx from r and returns the finished document.
	// filename is only used for history and the document title.
	Convert(ctx context.Context, r io.Reader, filename string, opts ...ConvertOption) (*Conversion, error)

	// ConvertFile converts the presentation at path.
	ConvertFile(ctx context.Context, path string, opts ...ConvertOption) (*Conversion, error)

	// Get returns a recorded conversion with its per-slide outcomes.
	Get(ctx context.Context, id string) (*Record, error)

	// Document returns the stored output file of a completed conversion.
	Document(ctx context.Context, id string) (filename string, data []byte, err error)

	// Tables returns the stored tables workbook of a conversion.
	Tables(ctx context.Context, id string) ([]byte, error)

	// List returns recorded conversions, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Record, error)

	// Delete removes a recorded conversion.
	Delete(ctx context.Context, id string) error

	// Stats returns history counters. It fails with ErrStoreDisabled when
	// running without a database.
	Stats(ctx context.Context) (*store.DBStats, error)

	// Close releases the database.
	Close() error
}

// Warning stages.
const (
	StageExtract  = "extract"
	StageAssemble = "assemble"
	StageExport   = "export"
)

// Warning is a non-fatal problem. The conversion still produced a document.
type Warning struct {
	Stage      string `json:"stage"`
	PageNumber int    `json:"page_number,omitempty"`
	Message    string `json:"message"`
}

// Conversion is the result of a successful Convert.
type Conversion struct {
	ID          string        `json:"id"`
	Filename    string        `json:"filename"`  // Output file name
	MIMEType    string        `json:"mime_type"` // Output media type
	Document    []byte        `json:"-"`
	Tables      []byte        `json:"-"` // Tables workbook; nil unless exported and present
	Slides      int           `json:"slides"`
	Images      int           `json:"images"`
	TableCount  int           `json:"tables"`
	Warnings    []Warning     `json:"warnings,omitempty"`
	TotalTokens int           `json:"total_tokens"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Record is a conversion as kept in the history.
type Record struct {
	ID             string        `json:"id"`
	Filename       string        `json:"filename"` // Uploaded file name
	ContentHash    string        `json:"content_hash"`
	Status         string        `json:"status"`
	Model          string        `json:"model,omitempty"`
	Slides         int           `json:"slides"`
	Images         int           `json:"images"`
	Tables         int           `json:"tables"`
	TotalTokens    int           `json:"total_tokens"`
	Warnings       []Warning     `json:"warnings,omitempty"`
	Error          string        `json:"error,omitempty"`
	OutputFilename string        `json:"output_filename,omitempty"`
	HasDocument    bool          `json:"has_document"`
	HasTables      bool          `json:"has_tables"`
	SlideOutcomes  []store.Slide `json:"slide_outcomes,omitempty"`
	CreatedAt      string        `json:"created_at"`
	UpdatedAt      string        `json:"updated_at"`
}

// ConvertOption configures a single conversion.
type ConvertOption func(*convertOptions)

type convertOptions struct {
	exportTables   *bool
	concurrency    int
	noCache        bool
	outputFilename string
}

// WithExportTables overrides Config.ExportTables for this conversion.
func WithExportTables(enabled bool) ConvertOption {
	return func(o *convertOptions) { o.exportTables = &enabled }
}

// WithConcurrency overrides the number of parallel LLM requests.
func WithConcurrency(n int) ConvertOption {
	return func(o *convertOptions) { o.concurrency = n }
}

// WithoutCache skips the explanation cache for this conversion.
func WithoutCache() ConvertOption {
	return func(o *convertOptions) { o.noCache = true }
}

// WithOutputFilename overrides the output file name.
func WithOutputFilename(name string) ConvertOption {
	return func(o *convertOptions) { o.outputFilename = name }
}

// converter is the concrete implementation of Converter.
type converter struct {
	cfg       Config
	store     *store.Store // nil when DisableStore is set
	chat      llm.Provider
	extractor *parser.Extractor
}

// New creates a Converter with the LLM provider described by cfg.Chat.
func New(cfg Config) (Converter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	chat, err := llm.NewProvider(cfg.llmConfig())
	if err != nil {
		if errors.Is(err, llm.ErrConfig) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		return nil, fmt.Errorf("creating chat provider: %w", err)
	}
	return NewWithProvider(cfg, chat)
}

// NewWithProvider creates a Converter that sends explanation requests to
// chat instead of building a provider from cfg.Chat.
func NewWithProvider(cfg Config, chat llm.Provider) (Converter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, fmt.Errorf("%w: nil chat provider", ErrInvalidConfig)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ImageWidthInches == 0 {
		cfg.ImageWidthInches = assembler.DefaultImageWidth
	}
	if cfg.OutputFilename == "" {
		cfg.OutputFilename = DefaultOutputFilename
	}

	c := &converter{
		cfg:       cfg,
		chat:      chat,
		extractor: &parser.Extractor{IncludePlaceholderText: cfg.IncludePlaceholderText},
	}
	if !cfg.DisableStore {
		s, err := store.New(cfg.resolveDBPath())
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		c.store = s
	}
	return c, nil
}

// ConvertFile converts the presentation at path.
func (c *converter) ConvertFile(ctx context.Context, path string, opts ...ConvertOption) (*Conversion, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening presentation: %w", err)
	}
	defer f.Close()
	return c.Convert(ctx, f, filepath.Base(path), opts...)
}

// Convert runs extraction, explanation, assembly and the optional table
// export, recording the run when history is enabled.
func (c *converter) Convert(ctx context.Context, r io.Reader, filename string, opts ...ConvertOption) (*Conversion, error) {
	options := &convertOptions{}
	for _, o := range opts {
		o(options)
	}

	start := time.Now()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading presentation: %w", err)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	id := uuid.NewString()
	if c.store != nil {
		if err := c.store.CreateConversion(ctx, store.Conversion{
			ID:          id,
			Filename:    filename,
			ContentHash: hash,
			Model:       c.cfg.Chat.Model,
		}); err != nil {
			return nil, fmt.Errorf("recording conversion: %w", err)
		}
	}

	slog.Info("deckdoc: converting", "id", id, "filename", filename, "bytes", len(data))

	conv, slides, err := c.run(ctx, id, data, filename, options)
	if err != nil {
		c.recordFailure(ctx, id, err)
		slog.Warn("deckdoc: conversion failed", "id", id, "error", err)
		return nil, err
	}
	conv.Elapsed = time.Since(start)

	if c.store != nil {
		if err := c.store.CompleteConversion(ctx, id, store.Completion{
			SlideCount:     conv.Slides,
			ImageCount:     conv.Images,
			TableCount:     conv.TableCount,
			TotalTokens:    conv.TotalTokens,
			Warnings:       toStoreWarnings(conv.Warnings),
			OutputFilename: conv.Filename,
			Document:       conv.Document,
			Tables:         conv.Tables,
		}); err != nil {
			return nil, fmt.Errorf("recording conversion: %w", err)
		}
		if err := c.store.SaveSlides(ctx, id, slides); err != nil {
			return nil, fmt.Errorf("recording slides: %w", err)
		}
	}

	slog.Info("deckdoc: conversion complete",
		"id", id,
		"slides", conv.Slides,
		"warnings", len(conv.Warnings),
		"tokens", conv.TotalTokens,
		"elapsed", conv.Elapsed.Round(time.Millisecond),
	)
	return conv, nil
}

func (c *converter) run(ctx context.Context, id string, data []byte, filename string, options *convertOptions) (*Conversion, []store.Slide, error) {
	// Stage 1: extract
	pres, err := c.extractor.ExtractBytes(ctx, data)
	if err != nil {
		if errors.Is(err, parser.ErrInvalidPresentation) {
			return nil, nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return nil, nil, err
	}
	if len(pres.Slides) == 0 {
		return nil, nil, ErrNoSlides
	}

	conv := &Conversion{
		ID:       id,
		Filename: c.cfg.OutputFilename,
		MIMEType: docx.MIMEType,
		Slides:   len(pres.Slides),
	}
	if options.outputFilename != "" {
		conv.Filename = options.outputFilename
	}
	for _, w := range pres.Warnings {
		conv.Warnings = append(conv.Warnings, Warning{Stage: StageExtract, PageNumber: w.PageNumber, Message: w.Message})
	}

	// Stage 2: explain
	concurrency := c.cfg.Concurrency
	if options.concurrency > 0 {
		concurrency = options.concurrency
	}
	var cache explain.Cache
	if c.store != nil && c.cfg.CacheExplanations && !options.noCache {
		cache = c.store
	}
	requester := explain.New(c.chat, explain.Config{
		Model:        c.cfg.Chat.Model,
		Temperature:  c.cfg.Temperature,
		MaxTokens:    c.cfg.MaxTokens,
		Concurrency:  concurrency,
		SlideTimeout: time.Duration(c.cfg.SlideTimeoutSeconds) * time.Second,
	}, cache)

	explanations, err := requester.ExplainAll(ctx, pres.Slides)
	if err != nil {
		return nil, nil, classifyLLMError(err)
	}
	available := 0
	for _, e := range explanations {
		if e.Available() {
			available++
		}
		conv.TotalTokens += e.TotalTokens
	}
	if available == 0 {
		return nil, nil, fmt.Errorf("%w: no slide could be explained: %w", ErrLLMUnavailable, explanations[0].Err)
	}

	// Stage 3: assemble
	res, err := assembler.Assemble(pres.Slides, explanations, assembler.Options{
		ImageWidthInches: c.cfg.ImageWidthInches,
		Title:            strings.TrimSuffix(filename, filepath.Ext(filename)),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrAssemblyFailed, err)
	}
	conv.Document = res.Document
	conv.Images = res.Images
	conv.TableCount = res.Tables
	for _, w := range res.Warnings {
		conv.Warnings = append(conv.Warnings, Warning{Stage: StageAssemble, PageNumber: w.PageNumber, Message: w.Message})
	}

	// Stage 4: tables workbook
	exportTables := c.cfg.ExportTables
	if options.exportTables != nil {
		exportTables = *options.exportTables
	}
	if exportTables {
		tables, _, err := export.Tables(pres.Slides)
		switch {
		case err == nil:
			conv.Tables = tables
		case errors.Is(err, export.ErrNoTables):
		default:
			slog.Warn("deckdoc: tables export failed", "id", id, "error", err)
			conv.Warnings = append(conv.Warnings, Warning{Stage: StageExport, Message: err.Error()})
		}
	}

	slides := make([]store.Slide, len(pres.Slides))
	for i, s := range pres.Slides {
		slides[i] = store.Slide{
			PageNumber:  s.PageNumber,
			Title:       s.Title,
			Explanation: explanations[i].Text,
			Available:   explanations[i].Available(),
			Cached:      explanations[i].Cached,
			TotalTokens: explanations[i].TotalTokens,
		}
	}
	return conv, slides, nil
}

// classifyLLMError maps a fatal explanation failure onto the package
// sentinels. Context errors pass through unchanged.
func classifyLLMError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, llm.ErrAuth), errors.Is(err, llm.ErrBadRequest), errors.Is(err, llm.ErrConfig):
		return fmt.Errorf("%w: %w", ErrLLMRequestFailed, err)
	default:
		return fmt.Errorf("%w: %w", ErrLLMUnavailable, err)
	}
}

func (c *converter) recordFailure(ctx context.Context, id string, cause error) {
	if c.store == nil {
		return
	}
	// The request context may already be canceled; the failure is still recorded.
	if err := c.store.FailConversion(context.WithoutCancel(ctx), id, cause.Error()); err != nil {
		slog.Warn("deckdoc: recording failure", "id", id, "error", err)
	}
}

// Get returns a recorded conversion with its per-slide outcomes.
func (c *converter) Get(ctx context.Context, id string) (*Record, error) {
	if c.store == nil {
		return nil, ErrStoreDisabled
	}
	conv, err := c.store.GetConversion(ctx, id)
	if err != nil {
		return nil, notFound(err, id)
	}
	rec := toRecord(*conv)
	rec.SlideOutcomes, err = c.store.GetSlides(ctx, id)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Document returns the stored output file of a completed conversion.
func (c *converter) Document(ctx context.Context, id string) (string, []byte, error) {
	if c.store == nil {
		return "", nil, ErrStoreDisabled
	}
	name, data, err := c.store.GetDocument(ctx, id)
	if err != nil {
		return "", nil, notFound(err, id)
	}
	return name, data, nil
}

// Tables returns the stored tables workbook of a conversion.
func (c *converter) Tables(ctx context.Context, id string) ([]byte, error) {
	if c.store == nil {
		return nil, ErrStoreDisabled
	}
	data, err := c.store.GetTables(ctx, id)
	if err != nil {
		return nil, notFound(err, id)
	}
	return data, nil
}

// List returns recorded conversions, newest first.
func (c *converter) List(ctx context.Context, limit int) ([]Record, error) {
	if c.store == nil {
		return nil, ErrStoreDisabled
	}
	convs, err := c.store.ListConversions(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(convs))
	for i, conv := range convs {
		out[i] = toRecord(conv)
	}
	return out, nil
}

// Delete removes a recorded conversion.
func (c *converter) Delete(ctx context.Context, id string) error {
	if c.store == nil {
		return ErrStoreDisabled
	}
	return notFound(c.store.DeleteConversion(ctx, id), id)
}

// Stats returns history counters.
func (c *converter) Stats(ctx context.Context) (*store.DBStats, error) {
	if c.store == nil {
		return nil, ErrStoreDisabled
	}
	return c.store.DBStats(ctx)
}

// Close releases the database.
func (c *converter) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

func notFound(err error, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrConversionNotFound, id)
	}
	return err
}

func toRecord(c store.Conversion) Record {
	rec := Record{
		ID:             c.ID,
		Filename:       c.Filename,
		ContentHash:    c.ContentHash,
		Status:         c.Status,
		Model:          c.Model,
		Slides:         c.SlideCount,
		Images:         c.ImageCount,
		Tables:         c.TableCount,
		TotalTokens:    c.TotalTokens,
		Error:          c.Error,
		OutputFilename: c.OutputFilename,
		HasDocument:    c.HasDocument,
		HasTables:      c.HasTables,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
	for _, w := range c.Warnings {
		rec.Warnings = append(rec.Warnings, Warning(w))
	}
	return rec
}

func toStoreWarnings(ws []Warning) []store.Warning {
	out := make([]store.Warning, len(ws))
	for i, w := range ws {
		out[i] = store.Warning(w)
	}
	return out
}

// ReadDocument reads back the body of a document produced by Convert. It is
// meant for inspecting results, not for general .docx files.
func ReadDocument(data []byte) ([]docx.Block, error) {
	return docx.Read(data)
}
