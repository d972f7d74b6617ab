// Command deckdoc converts a PowerPoint presentation into a Word document
// with an LLM-written explanation under every slide.
//
// Usage:
//
//	deckdoc -in deck.pptx
//	deckdoc -in deck.pptx -out notes.docx -tables tables.xlsx
//	deckdoc -in deck.pptx -config deckdoc.json -concurrency 4 -no-store
//
// Credentials come from the config file, a .env file or the environment
// (DECKDOC_CHAT_API_KEY, AZURE_OPENAI_API_KEY, OPENAI_API_KEY, ...).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/brunobiangulo/deckdoc"
)

func main() {
	var (
		in          = flag.String("in", "", "Path to the .pptx presentation (required)")
		out         = flag.String("out", "", "Output .docx path (default: "+deckdoc.DefaultOutputFilename+" in the current directory)")
		tables      = flag.String("tables", "", "Also write every slide table to this .xlsx path")
		configPath  = flag.String("config", "", "Path to config file (JSON)")
		concurrency = flag.Int("concurrency", 0, "Parallel LLM requests (default from config)")
		noStore     = flag.Bool("no-store", false, "Do not record the conversion or use the explanation cache")
		verbose     = flag.Bool("v", false, "Debug logging")
		summary     = flag.Bool("json", false, "Print a JSON summary to stdout")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *in == "" {
		fmt.Fprintln(os.Stderr, "deckdoc: -in is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*in, *out, *tables, *configPath, *concurrency, *noStore, *summary); err != nil {
		fmt.Fprintf(os.Stderr, "deckdoc: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func run(in, out, tables, configPath string, concurrency int, noStore, summary bool) error {
	cfg, err := deckdoc.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if noStore {
		cfg.DisableStore = true
	}

	conv, err := deckdoc.New(cfg)
	if err != nil {
		return err
	}
	defer conv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []deckdoc.ConvertOption
	if concurrency > 0 {
		opts = append(opts, deckdoc.WithConcurrency(concurrency))
	}
	if tables != "" {
		opts = append(opts, deckdoc.WithExportTables(true))
	}

	result, err := conv.ConvertFile(ctx, in, opts...)
	if err != nil {
		return err
	}

	if out == "" {
		out = result.Filename
	}
	if err := os.WriteFile(out, result.Document, 0o644); err != nil {
		return fmt.Errorf("writing document: %w", err)
	}
	slog.Info("document written", "path", out, "slides", result.Slides, "elapsed", result.Elapsed)

	if tables != "" {
		if result.Tables == nil {
			slog.Info("no tables found; workbook not written")
		} else {
			if err := os.WriteFile(tables, result.Tables, 0o644); err != nil {
				return fmt.Errorf("writing tables: %w", err)
			}
			slog.Info("tables written", "path", tables, "tables", result.TableCount)
		}
	}

	for _, w := range result.Warnings {
		slog.Warn("conversion warning", "stage", w.Stage, "slide", w.PageNumber, "message", w.Message)
	}

	if summary {
		abs, _ := filepath.Abs(out)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"id":           result.ID,
			"output":       abs,
			"slides":       result.Slides,
			"images":       result.Images,
			"tables":       result.TableCount,
			"total_tokens": result.TotalTokens,
			"warnings":     result.Warnings,
		})
	}
	return nil
}

// exitCode separates usage problems (2) from conversion failures (1).
func exitCode(err error) int {
	switch {
	case errors.Is(err, deckdoc.ErrInvalidConfig), errors.Is(err, deckdoc.ErrInvalidInput), errors.Is(err, os.ErrNotExist):
		return 2
	default:
		return 1
	}
}
