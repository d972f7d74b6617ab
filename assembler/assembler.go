// Package assembler builds the output document from extracted slides and
// their explanations.
package assembler

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brunobiangulo/deckdoc/docx"
	"github.com/brunobiangulo/deckdoc/explain"
	"github.com/brunobiangulo/deckdoc/parser"
	"github.com/brunobiangulo/deckdoc/sanitize"
)

// ErrLengthMismatch is returned when slides and explanations cannot be
// paired one to one.
var ErrLengthMismatch = errors.New("assembler: slides and explanations differ in length")

// UnavailableText replaces an explanation that could not be obtained.
const UnavailableText = "[Explanation unavailable for this slide.]"

// DefaultImageWidth is the display width of embedded pictures, in inches.
const DefaultImageWidth = 5.0

// Options tunes the output document.
type Options struct {
	ImageWidthInches float64 // Defaults to DefaultImageWidth
	Title            string  // Document title property
}

// Warning is a non-fatal problem met while assembling one slide.
type Warning struct {
	PageNumber int
	Message    string
}

// Result is a finished document.
type Result struct {
	Document []byte
	Warnings []Warning
	Images   int // Pictures embedded
	Tables   int // Tables written
}

// Assemble writes, for each slide in order: a "Slide N: title" heading, the
// explanation, each body text, each picture, each table and each flow
// diagram. Every string is sanitized. A picture that cannot be embedded is
// skipped with a warning naming the slide.
func Assemble(slides []parser.Slide, explanations []explain.Explanation, opts Options) (*Result, error) {
	if len(slides) != len(explanations) {
		return nil, fmt.Errorf("%w: %d slides, %d explanations", ErrLengthMismatch, len(slides), len(explanations))
	}
	if opts.ImageWidthInches <= 0 {
		opts.ImageWidthInches = DefaultImageWidth
	}

	start := time.Now()
	doc := docx.New()
	doc.Title = sanitize.Clean(opts.Title)
	res := &Result{}

	for i, s := range slides {
		title := strings.ReplaceAll(s.Title, "\n", " ")
		doc.AddHeading(sanitize.Clean(fmt.Sprintf("Slide %d: %s", s.PageNumber, title)), 1)

		exp := explanations[i]
		if exp.Available() {
			doc.AddParagraph(sanitize.CleanLines(exp.Text))
		} else {
			doc.AddParagraph(UnavailableText)
			res.Warnings = append(res.Warnings, Warning{
				PageNumber: s.PageNumber,
				Message:    fmt.Sprintf("explanation unavailable for slide %d: %v", s.PageNumber, exp.Err),
			})
		}

		for _, text := range s.Texts {
			doc.AddParagraph(sanitize.CleanLines(text))
		}

		for _, img := range s.Images {
			if err := doc.AddPicture(img.Data, opts.ImageWidthInches); err != nil {
				slog.Warn("assembler: image skipped", "slide", s.PageNumber, "image", img.Name, "error", err)
				res.Warnings = append(res.Warnings, Warning{
					PageNumber: s.PageNumber,
					Message:    fmt.Sprintf("could not add image on slide %d: %v", s.PageNumber, err),
				})
				continue
			}
			res.Images++
		}

		for _, tbl := range s.Tables {
			if !doc.AddTable(cleanCells(tbl.Cells)) {
				slog.Debug("assembler: empty table skipped", "slide", s.PageNumber)
				continue
			}
			res.Tables++
		}

		for _, diagram := range s.FlowDiagrams {
			doc.AddParagraph(sanitize.CleanLines(diagram))
		}
	}

	data, err := doc.Bytes()
	if err != nil {
		return nil, fmt.Errorf("assembler: %w", err)
	}
	res.Document = data

	slog.Info("assembler: document built",
		"slides", len(slides),
		"images", res.Images,
		"tables", res.Tables,
		"warnings", len(res.Warnings),
		"bytes", len(data),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return res, nil
}

func cleanCells(cells [][]string) [][]string {
	out := make([][]string, len(cells))
	for i, row := range cells {
		out[i] = make([]string, len(row))
		for j, c := range row {
			out[i][j] = sanitize.CleanLines(c)
		}
	}
	return out
}
