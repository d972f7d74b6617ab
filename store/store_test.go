//go:build cgo

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// ---------------------------------------------------------------------------
// Schema / construction
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.DB() == nil {
		t.Fatal("expected non-nil *sql.DB")
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	s, err := New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

func TestMigrationsRecorded(t *testing.T) {
	s := newTestStore(t)
	var version int
	if err := s.DB().QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		t.Fatal(err)
	}
	if want := migrations[len(migrations)-1].version; version != want {
		t.Errorf("schema version = %d, want %d", version, want)
	}
}

func TestReopenIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 2; i++ {
		s, err := New(dbPath)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		s.Close()
	}
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

func createSample(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.CreateConversion(context.Background(), Conversion{
		ID:          id,
		Filename:    "deck.pptx",
		ContentHash: "abc123",
		Model:       "gpt-4",
	})
	if err != nil {
		t.Fatalf("creating conversion: %v", err)
	}
}

func TestConversionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createSample(t, s, "c1")

	got, err := s.GetConversion(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusRunning || got.Filename != "deck.pptx" || got.Model != "gpt-4" {
		t.Errorf("running conversion = %+v", got)
	}
	if got.HasDocument || got.HasTables {
		t.Error("running conversion has no files yet")
	}
	if got.CreatedAt == "" {
		t.Error("created_at should be set")
	}

	err = s.CompleteConversion(ctx, "c1", Completion{
		SlideCount:     2,
		ImageCount:     1,
		TableCount:     1,
		TotalTokens:    99,
		Warnings:       []Warning{{Stage: "assemble", PageNumber: 2, Message: "could not add image on slide 2: bad"}},
		OutputFilename: "out.docx",
		Document:       []byte("docx bytes"),
		Tables:         []byte("xlsx bytes"),
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err = s.GetConversion(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCompleted || got.SlideCount != 2 || got.ImageCount != 1 ||
		got.TableCount != 1 || got.TotalTokens != 99 || got.OutputFilename != "out.docx" {
		t.Errorf("completed conversion = %+v", got)
	}
	if !got.HasDocument || !got.HasTables {
		t.Error("files should be present")
	}
	if len(got.Warnings) != 1 || got.Warnings[0].PageNumber != 2 || got.Warnings[0].Stage != "assemble" {
		t.Errorf("warnings = %+v", got.Warnings)
	}

	name, doc, err := s.GetDocument(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if name != "out.docx" || string(doc) != "docx bytes" {
		t.Errorf("document = %q, %q", name, doc)
	}
	tables, err := s.GetTables(ctx, "c1")
	if err != nil || string(tables) != "xlsx bytes" {
		t.Errorf("tables = %q, %v", tables, err)
	}
}

func TestCompleteWithoutTables(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createSample(t, s, "c1")
	if err := s.CompleteConversion(ctx, "c1", Completion{Document: []byte("d")}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetConversion(ctx, "c1")
	if got.HasTables {
		t.Error("no tables workbook was stored")
	}
	if len(got.Warnings) != 0 {
		t.Errorf("warnings = %+v", got.Warnings)
	}
	if _, err := s.GetTables(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTables err = %v, want ErrNotFound", err)
	}
}

func TestFailConversion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createSample(t, s, "c1")
	if err := s.FailConversion(ctx, "c1", "llm: authentication failed"); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetConversion(ctx, "c1")
	if got.Status != StatusFailed || got.Error != "llm: authentication failed" {
		t.Errorf("failed conversion = %+v", got)
	}
	if _, _, err := s.GetDocument(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDocument err = %v, want ErrNotFound", err)
	}
}

func TestUnknownConversion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetConversion(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetConversion err = %v", err)
	}
	if err := s.CompleteConversion(ctx, "missing", Completion{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteConversion err = %v", err)
	}
	if err := s.FailConversion(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FailConversion err = %v", err)
	}
	if err := s.DeleteConversion(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteConversion err = %v", err)
	}
	if _, _, err := s.GetDocument(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDocument err = %v", err)
	}
}

func TestCreateConversionRequiresID(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateConversion(context.Background(), Conversion{Filename: "x"}); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestListConversions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		createSample(t, s, id)
	}

	all, err := s.ListConversions(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d conversions", len(all))
	}
	// Same-second inserts fall back to insertion order, newest first.
	if all[0].ID != "c" || all[2].ID != "a" {
		t.Errorf("order = %s, %s, %s", all[0].ID, all[1].ID, all[2].ID)
	}

	limited, err := s.ListConversions(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("limit ignored: got %d", len(limited))
	}
}

func TestDeleteConversion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createSample(t, s, "c1")
	if err := s.SaveSlides(ctx, "c1", []Slide{{PageNumber: 1, Available: true}}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteConversion(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetConversion(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("conversion still present: %v", err)
	}
	slides, err := s.GetSlides(ctx, "c1")
	if err != nil || len(slides) != 0 {
		t.Errorf("slides not removed: %v, %v", slides, err)
	}
}

// ---------------------------------------------------------------------------
// Slides
// ---------------------------------------------------------------------------

func TestSaveAndGetSlides(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createSample(t, s, "c1")

	in := []Slide{
		{PageNumber: 2, Title: "", Available: false},
		{PageNumber: 1, Title: "Intro", Explanation: "text", Available: true, Cached: true, TotalTokens: 12},
	}
	if err := s.SaveSlides(ctx, "c1", in); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetSlides(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d slides", len(got))
	}
	if got[0] != in[1] || got[1] != in[0] {
		t.Errorf("slides = %+v", got)
	}

	// Saving again replaces rather than duplicates.
	if err := s.SaveSlides(ctx, "c1", in[:1]); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetSlides(ctx, "c1")
	if len(got) != 1 {
		t.Errorf("got %d slides after replace", len(got))
	}
}

// ---------------------------------------------------------------------------
// Explanation cache
// ---------------------------------------------------------------------------

func TestExplanationCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetExplanation(ctx, "k"); err != nil || ok {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}
	if err := s.PutExplanation(ctx, "k", "gpt-4", "first"); err != nil {
		t.Fatal(err)
	}
	if err := s.PutExplanation(ctx, "k", "gpt-4", "second"); err != nil {
		t.Fatal(err)
	}
	text, ok, err := s.GetExplanation(ctx, "k")
	if err != nil || !ok || text != "second" {
		t.Errorf("GetExplanation = %q, %v, %v", text, ok, err)
	}

	var hits int
	if err := s.DB().QueryRow("SELECT hits FROM explanation_cache WHERE key = 'k'").Scan(&hits); err != nil {
		t.Fatal(err)
	}
	if hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}

	if err := s.ClearExplanations(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.GetExplanation(ctx, "k"); ok {
		t.Error("cache not cleared")
	}
}

func TestDBStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createSample(t, s, "a")
	createSample(t, s, "b")
	s.CompleteConversion(ctx, "a", Completion{Document: []byte("d")})
	s.FailConversion(ctx, "b", "boom")
	s.SaveSlides(ctx, "a", []Slide{{PageNumber: 1}, {PageNumber: 2}})
	s.PutExplanation(ctx, "k", "m", "t")

	stats, err := s.DBStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := DBStats{Conversions: 2, Completed: 1, Failed: 1, Slides: 2, Explanations: 1}
	if *stats != want {
		t.Errorf("stats = %+v, want %+v", *stats, want)
	}
}
