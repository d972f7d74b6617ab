// Package docx writes WordprocessingML (.docx) documents made of headings,
// paragraphs, inline pictures and tables.
package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// MIMEType is the media type of a .docx file.
const MIMEType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// ErrUnsupportedImage is returned by AddPicture when the data is not an
// image format Word can display inline.
var ErrUnsupportedImage = errors.New("docx: unsupported image")

const (
	emuPerInch     = 914400
	twipsPerInch   = 1440
	textWidthTwips = 9360 // 6.5in between 1in margins on Letter paper
	maxHeading     = 3
)

// imageTypes maps decoder format names to the extension and content type
// used inside the package. WebP is transcoded to PNG before it gets here.
var imageTypes = map[string]struct{ ext, contentType string }{
	"png":  {"png", "image/png"},
	"jpeg": {"jpeg", "image/jpeg"},
	"gif":  {"gif", "image/gif"},
	"bmp":  {"bmp", "image/bmp"},
	"tiff": {"tiff", "image/tiff"},
}

type mediaPart struct {
	relID string
	name  string // relative to word/, e.g. media/image1.png
	data  []byte
}

// Document accumulates body content in order. The zero value is not usable;
// call New.
type Document struct {
	Title   string    // Written to the core properties
	Created time.Time // Written to the core properties

	body     bytes.Buffer
	media    []mediaPart
	pictures int
}

// New returns an empty document.
func New() *Document {
	return &Document{Created: time.Now().UTC()}
}

// AddHeading appends a heading paragraph. Levels outside 1-3 are clamped.
func (d *Document) AddHeading(text string, level int) {
	level = max(1, min(level, maxHeading))
	fmt.Fprintf(&d.body, `<w:p><w:pPr><w:pStyle w:val="Heading%d"/></w:pPr>`, level)
	d.writeRuns(text)
	d.body.WriteString(`</w:p>`)
}

// AddParagraph appends a body paragraph. Each "\n" in text becomes a line
// break within the paragraph.
func (d *Document) AddParagraph(text string) {
	d.body.WriteString(`<w:p>`)
	d.writeRuns(text)
	d.body.WriteString(`</w:p>`)
}

func (d *Document) writeRuns(text string) {
	if text == "" {
		return
	}
	d.body.WriteString(`<w:r>`)
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			d.body.WriteString(`<w:br/>`)
		}
		if line == "" {
			continue
		}
		d.body.WriteString(`<w:t xml:space="preserve">`)
		xml.EscapeText(&d.body, []byte(line))
		d.body.WriteString(`</w:t>`)
	}
	d.body.WriteString(`</w:r>`)
}

// AddPicture embeds an image in its own paragraph, scaled to widthInches
// with the aspect ratio preserved. PNG, JPEG, GIF, BMP and TIFF are stored
// as-is; WebP is converted to PNG. Anything else fails with
// ErrUnsupportedImage and leaves the document unchanged.
func (d *Document) AddPicture(data []byte, widthInches float64) error {
	if widthInches <= 0 {
		return fmt.Errorf("docx: picture width must be positive, got %v", widthInches)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%w: empty %s image", ErrUnsupportedImage, format)
	}
	if format == "webp" {
		data, err = webpToPNG(data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
		}
		format = "png"
	}
	typ, ok := imageTypes[format]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedImage, format)
	}

	d.pictures++
	id := d.pictures
	part := mediaPart{
		relID: fmt.Sprintf("rIdImage%d", id),
		name:  fmt.Sprintf("media/image%d.%s", id, typ.ext),
		data:  data,
	}
	d.media = append(d.media, part)

	cx := int64(widthInches * emuPerInch)
	cy := cx * int64(cfg.Height) / int64(cfg.Width)
	fmt.Fprintf(&d.body, pictureXML, cx, cy, id, id, id, id, part.relID, cx, cy)
	return nil
}

func webpToPNG(data []byte) ([]byte, error) {
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// AddTable appends a bordered table. Short rows are padded with empty cells
// so the grid is rectangular. A table without rows or columns is skipped and
// AddTable reports false.
func (d *Document) AddTable(cells [][]string) bool {
	cols := 0
	for _, row := range cells {
		cols = max(cols, len(row))
	}
	if len(cells) == 0 || cols == 0 {
		return false
	}

	colWidth := textWidthTwips / cols
	d.body.WriteString(`<w:tbl><w:tblPr><w:tblStyle w:val="TableGrid"/><w:tblW w:w="0" w:type="auto"/><w:tblLook w:val="04A0"/></w:tblPr><w:tblGrid>`)
	for range cols {
		fmt.Fprintf(&d.body, `<w:gridCol w:w="%d"/>`, colWidth)
	}
	d.body.WriteString(`</w:tblGrid>`)
	for _, row := range cells {
		d.body.WriteString(`<w:tr>`)
		for c := range cols {
			text := ""
			if c < len(row) {
				text = row[c]
			}
			fmt.Fprintf(&d.body, `<w:tc><w:tcPr><w:tcW w:w="%d" w:type="dxa"/></w:tcPr><w:p>`, colWidth)
			d.writeRuns(text)
			d.body.WriteString(`</w:p></w:tc>`)
		}
		d.body.WriteString(`</w:tr>`)
	}
	d.body.WriteString(`</w:tbl>`)
	return true
}

// WriteTo writes the finished package to w.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)

	parts := []struct {
		name string
		data []byte
	}{
		{"[Content_Types].xml", d.contentTypes()},
		{"_rels/.rels", []byte(packageRels)},
		{"docProps/core.xml", d.coreProps()},
		{"docProps/app.xml", []byte(appProps)},
		{"word/document.xml", d.documentXML()},
		{"word/styles.xml", []byte(stylesXML)},
		{"word/_rels/document.xml.rels", d.documentRels()},
	}
	for _, m := range d.media {
		parts = append(parts, struct {
			name string
			data []byte
		}{"word/" + m.name, m.data})
	}

	for _, p := range parts {
		f, err := zw.Create(p.name)
		if err != nil {
			return cw.n, fmt.Errorf("docx: creating %s: %w", p.name, err)
		}
		if _, err := f.Write(p.data); err != nil {
			return cw.n, fmt.Errorf("docx: writing %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return cw.n, fmt.Errorf("docx: finishing package: %w", err)
	}
	return cw.n, nil
}

// Bytes returns the finished package.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := d.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func (d *Document) contentTypes() []byte {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString(`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`)
	b.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	b.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	seen := map[string]bool{}
	for _, m := range d.media {
		ext := m.name[strings.LastIndexByte(m.name, '.')+1:]
		if seen[ext] {
			continue
		}
		seen[ext] = true
		for _, t := range imageTypes {
			if t.ext == ext {
				fmt.Fprintf(&b, `<Default Extension="%s" ContentType="%s"/>`, ext, t.contentType)
			}
		}
	}
	b.WriteString(`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>`)
	b.WriteString(`<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>`)
	b.WriteString(`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>`)
	b.WriteString(`<Override PartName="/docProps/app.xml" ContentType="application/vnd.openxmlformats-officedocument.extended-properties+xml"/>`)
	b.WriteString(`</Types>`)
	return b.Bytes()
}

func (d *Document) coreProps() []byte {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString(`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">`)
	if d.Title != "" {
		b.WriteString(`<dc:title>`)
		xml.EscapeText(&b, []byte(d.Title))
		b.WriteString(`</dc:title>`)
	}
	b.WriteString(`<dc:creator>deckdoc</dc:creator>`)
	created := d.Created.UTC().Format(time.RFC3339)
	fmt.Fprintf(&b, `<dcterms:created xsi:type="dcterms:W3CDTF">%s</dcterms:created>`, created)
	fmt.Fprintf(&b, `<dcterms:modified xsi:type="dcterms:W3CDTF">%s</dcterms:modified>`, created)
	b.WriteString(`</cp:coreProperties>`)
	return b.Bytes()
}

func (d *Document) documentXML() []byte {
	var b bytes.Buffer
	b.Grow(d.body.Len() + 1024)
	b.WriteString(xml.Header)
	b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture"><w:body>`)
	b.Write(d.body.Bytes())
	fmt.Fprintf(&b, `<w:sectPr><w:pgSz w:w="12240" w:h="15840"/><w:pgMar w:top="%[1]d" w:right="%[1]d" w:bottom="%[1]d" w:left="%[1]d" w:header="720" w:footer="720" w:gutter="0"/></w:sectPr>`, twipsPerInch)
	b.WriteString(`</w:body></w:document>`)
	return b.Bytes()
}

func (d *Document) documentRels() []byte {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	b.WriteString(`<Relationship Id="rIdStyles" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>`)
	for _, m := range d.media {
		fmt.Fprintf(&b, `<Relationship Id="%s" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="%s"/>`, m.relID, m.name)
	}
	b.WriteString(`</Relationships>`)
	return b.Bytes()
}
