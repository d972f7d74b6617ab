package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
)

// Extractor reads PPTX packages into Slide records.
type Extractor struct {
	// IncludePlaceholderText routes the text of non-title placeholders
	// (body, subtitle, content) into the slide's body text alongside text
	// boxes.
	IncludePlaceholderText bool
}

// NewExtractor returns an Extractor with default settings.
func NewExtractor() *Extractor {
	return &Extractor{IncludePlaceholderText: true}
}

// ExtractFile extracts the presentation stored at path.
func (e *Extractor) ExtractFile(ctx context.Context, filePath string) (*Presentation, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening PPTX: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat PPTX: %w", err)
	}
	return e.Extract(ctx, f, info.Size())
}

// ExtractBytes extracts a presentation held in memory.
func (e *Extractor) ExtractBytes(ctx context.Context, data []byte) (*Presentation, error) {
	return e.Extract(ctx, bytes.NewReader(data), int64(len(data)))
}

// Extract reads a PPTX package and returns one Slide per slide in
// presentation order. A package that cannot be opened, or that has no
// presentation part, fails with ErrInvalidPresentation. Problems confined to
// a single shape or slide are reported as warnings.
func (e *Extractor) Extract(ctx context.Context, r io.ReaderAt, size int64) (*Presentation, error) {
	p, err := openPackage(r, size)
	if err != nil {
		return nil, err
	}
	if !p.has(presentationPart) {
		return nil, fmt.Errorf("%w: %s not found", ErrInvalidPresentation, presentationPart)
	}

	parts, err := p.slideParts()
	if err != nil {
		return nil, err
	}

	pres := &Presentation{Slides: make([]Slide, 0, len(parts))}
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		slide, warnings := e.extractSlide(p, part, i+1)
		pres.Slides = append(pres.Slides, slide)
		pres.Warnings = append(pres.Warnings, warnings...)
	}

	slog.Debug("pptx: extracted presentation",
		"slides", len(pres.Slides), "warnings", len(pres.Warnings))
	return pres, nil
}

// extractSlide never fails: an unreadable slide becomes an empty record so
// page numbering stays aligned with the deck.
func (e *Extractor) extractSlide(p *pkg, part string, page int) (Slide, []Warning) {
	slide := Slide{PageNumber: page}
	var warnings []Warning
	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		slog.Warn("pptx: "+msg, "slide", page, "part", part)
		warnings = append(warnings, Warning{PageNumber: page, Message: msg})
	}

	data, err := p.read(part)
	if err != nil {
		warn("reading slide: %v", err)
		return slide, warnings
	}

	var doc slideXML
	if err := decodeXML(data, &doc); err != nil {
		warn("parsing slide XML: %v", err)
		return slide, warnings
	}

	rels := p.rels(part)
	titleSeen := false

	for _, sh := range doc.CSld.SpTree.Shapes {
		switch sh.Kind {
		case KindTextBox:
			slide.Texts = append(slide.Texts, sh.Text())

		case KindPlaceholder:
			if sh.IsTitle() {
				if !titleSeen {
					slide.Title = sh.Text()
					titleSeen = true
				}
				continue
			}
			if e.IncludePlaceholderText && sh.HasText() {
				slide.Texts = append(slide.Texts, sh.Text())
				continue
			}
			slog.Debug("pptx: skipping placeholder", "slide", page, "type", sh.Placeholder, "name", sh.Name)

		case KindPicture:
			img, err := readImage(p, rels, sh)
			if err != nil {
				warn("skipping picture %q: %v", sh.Name, err)
				continue
			}
			slide.Images = append(slide.Images, img)

		case KindTable:
			slide.Tables = append(slide.Tables, Table{Cells: rectangular(sh.Cells, sh.GridCols)})

		case KindGroup:
			slide.FlowDiagrams = append(slide.FlowDiagrams, groupText(sh))

		default:
			slog.Debug("pptx: ignoring shape", "slide", page, "kind", sh.Kind.String(), "name", sh.Name)
		}
	}

	return slide, warnings
}

// groupText joins the text of the text boxes directly inside a group.
func groupText(group Shape) string {
	var parts []string
	for _, child := range group.Children {
		if child.Kind == KindTextBox {
			parts = append(parts, child.Text())
		}
	}
	return strings.Join(parts, "\n")
}

// readImage loads the image part referenced by a picture shape.
func readImage(p *pkg, rels map[string]string, sh Shape) (Image, error) {
	if sh.EmbedID == "" {
		return Image{}, fmt.Errorf("picture has no embedded image (linked pictures are not supported)")
	}
	target, ok := rels[sh.EmbedID]
	if !ok {
		return Image{}, fmt.Errorf("relationship %s not found", sh.EmbedID)
	}
	data, err := p.read(target)
	if err != nil {
		return Image{}, err
	}
	return Image{
		Name:        target,
		ContentType: mimeFromExt(path.Ext(target)),
		Data:        data,
	}, nil
}

// rectangular pads every row to the same width. The width is the declared
// grid column count, or the widest row when no grid is declared.
func rectangular(cells [][]string, gridCols int) [][]string {
	cols := gridCols
	if cols == 0 {
		for _, row := range cells {
			if len(row) > cols {
				cols = len(row)
			}
		}
	}
	out := make([][]string, len(cells))
	for i, row := range cells {
		r := make([]string, cols)
		copy(r, row)
		out[i] = r
	}
	return out
}
