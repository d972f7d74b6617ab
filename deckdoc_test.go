package deckdoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/brunobiangulo/deckdoc/docx"
	"github.com/brunobiangulo/deckdoc/llm"
	"github.com/brunobiangulo/deckdoc/parser/pptxtest"
)

// stubChat answers every request with reply.
type stubChat struct {
	calls atomic.Int32
	reply func(n int, req llm.ChatRequest) (*llm.ChatResponse, error)
}

func (s *stubChat) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	n := int(s.calls.Add(1))
	if s.reply == nil {
		return &llm.ChatResponse{Content: fmt.Sprintf("explanation %d", n), TotalTokens: 10}, nil
	}
	return s.reply(n, req)
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}

func memoryConfig() Config {
	cfg := DefaultConfig()
	cfg.DisableStore = true
	return cfg
}

func newTestConverter(t *testing.T, cfg Config, chat llm.Provider) Converter {
	t.Helper()
	c, err := NewWithProvider(cfg, chat)
	if err != nil {
		t.Fatalf("NewWithProvider: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func twoSlideDeck(t *testing.T) []byte {
	return pptxtest.Build(
		pptxtest.NewSlide(
			pptxtest.Title("Intro"),
			pptxtest.TextBox("Hello"),
			pptxtest.Picture("png", testPNG(t)),
		),
		pptxtest.NewSlide(
			pptxtest.Title("Data"),
			pptxtest.Table([][]string{{"a", "b"}, {"1", "2"}}),
		),
	)
}

func TestConvertTwoSlideDeck(t *testing.T) {
	chat := &stubChat{}
	c := newTestConverter(t, memoryConfig(), chat)

	conv, err := c.Convert(context.Background(), bytes.NewReader(twoSlideDeck(t)), "deck.pptx")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if conv.ID == "" {
		t.Error("conversion id is empty")
	}
	if conv.Filename != DefaultOutputFilename {
		t.Errorf("Filename = %q, want %q", conv.Filename, DefaultOutputFilename)
	}
	if conv.MIMEType != docx.MIMEType {
		t.Errorf("MIMEType = %q", conv.MIMEType)
	}
	if conv.Slides != 2 || conv.Images != 1 || conv.TableCount != 1 {
		t.Errorf("counts = %d slides, %d images, %d tables; want 2, 1, 1", conv.Slides, conv.Images, conv.TableCount)
	}
	if conv.TotalTokens != 20 {
		t.Errorf("TotalTokens = %d, want 20", conv.TotalTokens)
	}
	if len(conv.Warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", conv.Warnings)
	}
	if conv.Tables != nil {
		t.Error("tables workbook built without ExportTables")
	}
	if got := chat.calls.Load(); got != 2 {
		t.Errorf("chat calls = %d, want 2", got)
	}

	blocks, err := ReadDocument(conv.Document)
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	var headings []string
	pictures, tables := 0, 0
	for _, b := range blocks {
		switch b.Kind {
		case docx.BlockHeading:
			headings = append(headings, b.Text)
		case docx.BlockPicture:
			pictures++
		case docx.BlockTable:
			tables++
		}
	}
	want := []string{"Slide 1: Intro", "Slide 2: Data"}
	if strings.Join(headings, "|") != strings.Join(want, "|") {
		t.Errorf("headings = %q, want %q", headings, want)
	}
	if pictures != 1 || tables != 1 {
		t.Errorf("document has %d pictures and %d tables, want 1 and 1", pictures, tables)
	}
}

func TestConvertPromptCarriesSlideContent(t *testing.T) {
	var prompts []string
	chat := &stubChat{reply: func(_ int, req llm.ChatRequest) (*llm.ChatResponse, error) {
		prompts = append(prompts, req.Messages[0].Content)
		return &llm.ChatResponse{Content: "ok"}, nil
	}}
	c := newTestConverter(t, memoryConfig(), chat)

	deck := pptxtest.Build(pptxtest.NewSlide(pptxtest.Title("Budget"), pptxtest.TextBox("Q3 numbers")))
	if _, err := c.Convert(context.Background(), bytes.NewReader(deck), "budget.pptx"); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(prompts) != 1 {
		t.Fatalf("got %d prompts, want 1", len(prompts))
	}
	for _, want := range []string{"Slide Title: Budget", "Slide Content: Q3 numbers"} {
		if !strings.Contains(prompts[0], want) {
			t.Errorf("prompt %q does not contain %q", prompts[0], want)
		}
	}
}

func TestConvertInvalidInput(t *testing.T) {
	c := newTestConverter(t, memoryConfig(), &stubChat{})
	_, err := c.Convert(context.Background(), strings.NewReader("not a zip"), "bad.pptx")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestConvertNoSlides(t *testing.T) {
	c := newTestConverter(t, memoryConfig(), &stubChat{})
	_, err := c.Convert(context.Background(), bytes.NewReader(pptxtest.Build()), "empty.pptx")
	if !errors.Is(err, ErrNoSlides) {
		t.Fatalf("err = %v, want ErrNoSlides", err)
	}
}

func TestConvertTransientFailureKeepsDocument(t *testing.T) {
	chat := &stubChat{reply: func(n int, _ llm.ChatRequest) (*llm.ChatResponse, error) {
		if n == 2 {
			return nil, fmt.Errorf("%w: 503", llm.ErrUnavailable)
		}
		return &llm.ChatResponse{Content: "fine"}, nil
	}}
	c := newTestConverter(t, memoryConfig(), chat)

	conv, err := c.Convert(context.Background(), bytes.NewReader(twoSlideDeck(t)), "deck.pptx")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(conv.Warnings) != 1 {
		t.Fatalf("warnings = %+v, want 1", conv.Warnings)
	}
	w := conv.Warnings[0]
	if w.Stage != StageAssemble || w.PageNumber != 2 {
		t.Errorf("warning = %+v, want assemble stage on slide 2", w)
	}
}

func TestConvertErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"auth", fmt.Errorf("%w: 401", llm.ErrAuth), ErrLLMRequestFailed},
		{"bad request", fmt.Errorf("%w: 404", llm.ErrBadRequest), ErrLLMRequestFailed},
		{"all unavailable", fmt.Errorf("%w: 503", llm.ErrUnavailable), ErrLLMUnavailable},
		{"all rate limited", fmt.Errorf("%w: 429", llm.ErrRateLimited), ErrLLMUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &stubChat{reply: func(int, llm.ChatRequest) (*llm.ChatResponse, error) {
				return nil, tt.err
			}}
			c := newTestConverter(t, memoryConfig(), chat)
			_, err := c.Convert(context.Background(), bytes.NewReader(twoSlideDeck(t)), "deck.pptx")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestConvertCanceledContext(t *testing.T) {
	c := newTestConverter(t, memoryConfig(), &stubChat{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Convert(ctx, bytes.NewReader(twoSlideDeck(t)), "deck.pptx")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestConvertExportTables(t *testing.T) {
	c := newTestConverter(t, memoryConfig(), &stubChat{})

	conv, err := c.Convert(context.Background(), bytes.NewReader(twoSlideDeck(t)), "deck.pptx", WithExportTables(true))
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(conv.Tables) == 0 {
		t.Fatal("no tables workbook")
	}
	if !bytes.HasPrefix(conv.Tables, []byte("PK")) {
		t.Error("tables workbook is not a zip package")
	}

	noTables := pptxtest.Build(pptxtest.NewSlide(pptxtest.Title("Plain")))
	conv, err = c.Convert(context.Background(), bytes.NewReader(noTables), "plain.pptx", WithExportTables(true))
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if conv.Tables != nil {
		t.Error("tables workbook built for a deck without tables")
	}
	if len(conv.Warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", conv.Warnings)
	}
}

func TestConvertOutputFilenameOption(t *testing.T) {
	c := newTestConverter(t, memoryConfig(), &stubChat{})
	conv, err := c.Convert(context.Background(), bytes.NewReader(twoSlideDeck(t)), "deck.pptx", WithOutputFilename("notes.docx"))
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if conv.Filename != "notes.docx" {
		t.Errorf("Filename = %q, want notes.docx", conv.Filename)
	}
}

func TestConvertFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.pptx")
	if err := os.WriteFile(path, twoSlideDeck(t), 0o644); err != nil {
		t.Fatal(err)
	}
	c := newTestConverter(t, memoryConfig(), &stubChat{})
	conv, err := c.ConvertFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ConvertFile: %v", err)
	}
	if conv.Slides != 2 {
		t.Errorf("Slides = %d, want 2", conv.Slides)
	}

	if _, err := c.ConvertFile(context.Background(), filepath.Join(t.TempDir(), "missing.pptx")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestHistoryRequiresStore(t *testing.T) {
	c := newTestConverter(t, memoryConfig(), &stubChat{})
	ctx := context.Background()

	if _, err := c.Get(ctx, "x"); !errors.Is(err, ErrStoreDisabled) {
		t.Errorf("Get: %v", err)
	}
	if _, _, err := c.Document(ctx, "x"); !errors.Is(err, ErrStoreDisabled) {
		t.Errorf("Document: %v", err)
	}
	if _, err := c.Tables(ctx, "x"); !errors.Is(err, ErrStoreDisabled) {
		t.Errorf("Tables: %v", err)
	}
	if _, err := c.List(ctx, 0); !errors.Is(err, ErrStoreDisabled) {
		t.Errorf("List: %v", err)
	}
	if err := c.Delete(ctx, "x"); !errors.Is(err, ErrStoreDisabled) {
		t.Errorf("Delete: %v", err)
	}
	if _, err := c.Stats(ctx); !errors.Is(err, ErrStoreDisabled) {
		t.Errorf("Stats: %v", err)
	}
}

func TestNewWithProviderRejectsBadConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.Temperature = 3
	if _, err := NewWithProvider(cfg, &stubChat{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
	if _, err := NewWithProvider(memoryConfig(), nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("nil provider: err = %v, want ErrInvalidConfig", err)
	}
}

func TestNewMissingCredentials(t *testing.T) {
	cfg := memoryConfig()
	cfg.Chat = LLMConfig{Provider: "azure", Model: "gpt-4"}
	if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}

	cfg.Chat = LLMConfig{Provider: "nope"}
	if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("unknown provider: err = %v, want ErrInvalidConfig", err)
	}
}
