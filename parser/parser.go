// Package parser extracts structured slide content from PPTX presentations.
package parser

import "errors"

// ErrInvalidPresentation is returned when the input is not a readable
// PresentationML package.
var ErrInvalidPresentation = errors.New("parser: invalid presentation")

// Presentation is the result of extracting a PPTX file.
type Presentation struct {
	Slides   []Slide   // One entry per slide, in presentation order
	Warnings []Warning // Shape-level problems that were skipped
}

// Slide is the structured content of one slide. Page numbers are 1-based
// and consecutive.
type Slide struct {
	PageNumber   int
	Title        string
	Texts        []string // Body text, one entry per text-bearing shape
	Images       []Image
	Tables       []Table
	FlowDiagrams []string // Text collected from grouped shapes, one entry per group
}

// Image is a picture's raw bytes as stored in the package.
type Image struct {
	Name        string // Part name, e.g. ppt/media/image1.png
	ContentType string // Derived from the part extension; may be empty
	Data        []byte
}

// Table is a rectangular grid of cell text in row-major order.
type Table struct {
	Cells [][]string
}

// Rows returns the number of rows in the table.
func (t Table) Rows() int { return len(t.Cells) }

// Cols returns the number of columns in the table.
func (t Table) Cols() int {
	if len(t.Cells) == 0 {
		return 0
	}
	return len(t.Cells[0])
}

// Warning describes content that could not be extracted. The rest of the
// slide is still returned.
type Warning struct {
	PageNumber int
	Message    string
}

// PromptText joins the slide's body text the way it is presented to the
// explanation model.
func (s Slide) PromptText() string {
	n := 0
	for _, t := range s.Texts {
		n += len(t) + 1
	}
	b := make([]byte, 0, n)
	for i, t := range s.Texts {
		if i > 0 {
			b = append(b, '\n')
		}
		b = append(b, t...)
	}
	return string(b)
}
