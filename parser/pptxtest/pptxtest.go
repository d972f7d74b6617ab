// Package pptxtest builds small PPTX packages in memory for tests.
package pptxtest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

const (
	nsP = "http://schemas.openxmlformats.org/presentationml/2006/main"
	nsA = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsR = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"

	relImage = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"
	relSlide = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide"
)

// Shape is an element of a slide's shape tree.
type Shape interface {
	render(b *slideBuilder) string
}

// Slide is an ordered list of shapes.
type Slide struct {
	Shapes []Shape
}

// NewSlide returns a slide containing shapes in order.
func NewSlide(shapes ...Shape) Slide {
	return Slide{Shapes: shapes}
}

// Build returns the bytes of a PPTX package containing slides.
func Build(slides ...Slide) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	write := func(name, content string) {
		w, err := zw.Create(name)
		if err != nil {
			panic(fmt.Sprintf("pptxtest: creating %s: %v", name, err))
		}
		if _, err := w.Write([]byte(content)); err != nil {
			panic(fmt.Sprintf("pptxtest: writing %s: %v", name, err))
		}
	}

	write("[Content_Types].xml", contentTypes(len(slides)))
	write("_rels/.rels", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="ppt/presentation.xml"/></Relationships>`)

	var sldIDs, presRels strings.Builder
	for i := range slides {
		fmt.Fprintf(&sldIDs, `<p:sldId id="%d" r:id="rId%d"/>`, 256+i, i+1)
		fmt.Fprintf(&presRels, `<Relationship Id="rId%d" Type="%s" Target="slides/slide%d.xml"/>`, i+1, relSlide, i+1)
	}
	write("ppt/presentation.xml", fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:presentation xmlns:p="%s" xmlns:r="%s"><p:sldIdLst>%s</p:sldIdLst><p:sldSz cx="9144000" cy="6858000"/></p:presentation>`, nsP, nsR, sldIDs.String()))
	write("ppt/_rels/presentation.xml.rels", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`+presRels.String()+`</Relationships>`)

	media := 0
	for i, s := range slides {
		b := &slideBuilder{media: &media}
		var tree strings.Builder
		for _, sh := range s.Shapes {
			tree.WriteString(sh.render(b))
		}
		write(fmt.Sprintf("ppt/slides/slide%d.xml", i+1), fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:sld xmlns:p="%s" xmlns:a="%s" xmlns:r="%s"><p:cSld><p:spTree><p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/>%s</p:spTree></p:cSld></p:sld>`, nsP, nsA, nsR, tree.String()))

		var rels strings.Builder
		for _, r := range b.rels {
			fmt.Fprintf(&rels, `<Relationship Id="%s" Type="%s" Target="%s"/>`, r.id, relImage, r.target)
		}
		write(fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", i+1), `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`+rels.String()+`</Relationships>`)

		for _, m := range b.parts {
			w, err := zw.Create(m.name)
			if err != nil {
				panic(fmt.Sprintf("pptxtest: creating %s: %v", m.name, err))
			}
			if _, err := w.Write(m.data); err != nil {
				panic(fmt.Sprintf("pptxtest: writing %s: %v", m.name, err))
			}
		}
	}

	if err := zw.Close(); err != nil {
		panic(fmt.Sprintf("pptxtest: closing zip: %v", err))
	}
	return buf.Bytes()
}

type rel struct {
	id     string
	target string
}

type part struct {
	name string
	data []byte
}

type slideBuilder struct {
	nextID int
	rels   []rel
	parts  []part
	media  *int
}

func (b *slideBuilder) id() int {
	b.nextID++
	return b.nextID + 1
}

func contentTypes(slides int) string {
	var overrides strings.Builder
	for i := 1; i <= slides; i++ {
		fmt.Fprintf(&overrides, `<Override PartName="/ppt/slides/slide%d.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slide+xml"/>`, i)
	}
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Default Extension="png" ContentType="image/png"/><Default Extension="jpeg" ContentType="image/jpeg"/><Default Extension="emf" ContentType="image/x-emf"/><Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/>` + overrides.String() + `</Types>`
}

func esc(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

// txBody renders text as a:p paragraphs, one per line.
func txBody(tag, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<%s><a:bodyPr/><a:lstStyle/>`, tag)
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			b.WriteString(`<a:p><a:endParaRPr lang="en-US"/></a:p>`)
			continue
		}
		fmt.Fprintf(&b, `<a:p><a:r><a:rPr lang="en-US" dirty="0"/><a:t>%s</a:t></a:r></a:p>`, esc(line))
	}
	fmt.Fprintf(&b, `</%s>`, tag)
	return b.String()
}

const spPr = `<p:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="914400" cy="914400"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr>`

type titleShape struct{ text string }

// Title is the slide's title placeholder.
func Title(text string) Shape { return titleShape{text} }

func (s titleShape) render(b *slideBuilder) string {
	id := b.id()
	return fmt.Sprintf(`<p:sp><p:nvSpPr><p:cNvPr id="%d" name="Title %d"/><p:cNvSpPr><a:spLocks noGrp="1"/></p:cNvSpPr><p:nvPr><p:ph type="title"/></p:nvPr></p:nvSpPr><p:spPr/>%s</p:sp>`,
		id, id, txBody("p:txBody", s.text))
}

type placeholderShape struct{ typ, text string }

// Placeholder is a layout placeholder of the given type ("body",
// "subTitle", ...). An empty type renders a placeholder without a type
// attribute.
func Placeholder(typ, text string) Shape { return placeholderShape{typ, text} }

func (s placeholderShape) render(b *slideBuilder) string {
	id := b.id()
	ph := `<p:ph idx="1"/>`
	if s.typ != "" {
		ph = fmt.Sprintf(`<p:ph type="%s" idx="1"/>`, s.typ)
	}
	return fmt.Sprintf(`<p:sp><p:nvSpPr><p:cNvPr id="%d" name="Placeholder %d"/><p:cNvSpPr><a:spLocks noGrp="1"/></p:cNvSpPr><p:nvPr>%s</p:nvPr></p:nvSpPr><p:spPr/>%s</p:sp>`,
		id, id, ph, txBody("p:txBody", s.text))
}

type textBoxShape struct{ text string }

// TextBox is a text box; each line of text becomes a paragraph.
func TextBox(text string) Shape { return textBoxShape{text} }

func (s textBoxShape) render(b *slideBuilder) string {
	id := b.id()
	return fmt.Sprintf(`<p:sp><p:nvSpPr><p:cNvPr id="%d" name="TextBox %d"/><p:cNvSpPr txBox="1"/><p:nvPr/></p:nvSpPr>%s%s</p:sp>`,
		id, id, spPr, txBody("p:txBody", s.text))
}

type autoShape struct{ text string }

// AutoShape is a preset-geometry shape carrying text.
func AutoShape(text string) Shape { return autoShape{text} }

func (s autoShape) render(b *slideBuilder) string {
	id := b.id()
	return fmt.Sprintf(`<p:sp><p:nvSpPr><p:cNvPr id="%d" name="Rectangle %d"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr>%s%s</p:sp>`,
		id, id, spPr, txBody("p:txBody", s.text))
}

type pictureShape struct {
	ext  string
	data []byte
	rid  string // forced relationship id; empty allocates one
}

// Picture embeds data as an image part with the given extension
// (e.g. "png").
func Picture(ext string, data []byte) Shape { return pictureShape{ext: ext, data: data} }

// DanglingPicture references a relationship that does not exist.
func DanglingPicture() Shape { return pictureShape{rid: "rId999"} }

func (s pictureShape) render(b *slideBuilder) string {
	id := b.id()
	rid := s.rid
	if rid == "" {
		*b.media++
		rid = fmt.Sprintf("rId%d", len(b.rels)+2)
		name := fmt.Sprintf("image%d.%s", *b.media, s.ext)
		b.rels = append(b.rels, rel{id: rid, target: "../media/" + name})
		b.parts = append(b.parts, part{name: "ppt/media/" + name, data: s.data})
	}
	return fmt.Sprintf(`<p:pic><p:nvPicPr><p:cNvPr id="%d" name="Picture %d"/><p:cNvPicPr><a:picLocks noChangeAspect="1"/></p:cNvPicPr><p:nvPr/></p:nvPicPr><p:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></p:blipFill>%s</p:pic>`,
		id, id, rid, spPr)
}

type tableShape struct{ cells [][]string }

// Table is a graphic frame holding a table with the given cells.
func Table(cells [][]string) Shape { return tableShape{cells} }

func (s tableShape) render(b *slideBuilder) string {
	id := b.id()
	cols := 0
	for _, row := range s.cells {
		if len(row) > cols {
			cols = len(row)
		}
	}
	var t strings.Builder
	t.WriteString(`<a:tbl><a:tblPr firstRow="1" bandRow="1"/><a:tblGrid>`)
	for i := 0; i < cols; i++ {
		t.WriteString(`<a:gridCol w="1828800"/>`)
	}
	t.WriteString(`</a:tblGrid>`)
	for _, row := range s.cells {
		t.WriteString(`<a:tr h="370840">`)
		for _, cell := range row {
			t.WriteString(`<a:tc>` + txBody("a:txBody", cell) + `<a:tcPr/></a:tc>`)
		}
		t.WriteString(`</a:tr>`)
	}
	t.WriteString(`</a:tbl>`)
	return fmt.Sprintf(`<p:graphicFrame><p:nvGraphicFramePr><p:cNvPr id="%d" name="Table %d"/><p:cNvGraphicFramePr><a:graphicFrameLocks noGrp="1"/></p:cNvGraphicFramePr><p:nvPr/></p:nvGraphicFramePr><p:xfrm><a:off x="0" y="0"/><a:ext cx="3657600" cy="741680"/></p:xfrm><a:graphic><a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/table">%s</a:graphicData></a:graphic></p:graphicFrame>`,
		id, id, t.String())
}

type chartShape struct{}

// Chart is a graphic frame referencing a chart part.
func Chart() Shape { return chartShape{} }

func (chartShape) render(b *slideBuilder) string {
	id := b.id()
	return fmt.Sprintf(`<p:graphicFrame><p:nvGraphicFramePr><p:cNvPr id="%d" name="Chart %d"/><p:cNvGraphicFramePr/><p:nvPr/></p:nvGraphicFramePr><p:xfrm><a:off x="0" y="0"/><a:ext cx="1" cy="1"/></p:xfrm><a:graphic><a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/chart"><c:chart xmlns:c="http://schemas.openxmlformats.org/drawingml/2006/chart" r:id="rId50"/></a:graphicData></a:graphic></p:graphicFrame>`,
		id, id)
}

type connectorShape struct{}

// Connector is a connector line.
func Connector() Shape { return connectorShape{} }

func (connectorShape) render(b *slideBuilder) string {
	id := b.id()
	return fmt.Sprintf(`<p:cxnSp><p:nvCxnSpPr><p:cNvPr id="%d" name="Connector %d"/><p:cNvCxnSpPr/><p:nvPr/></p:nvCxnSpPr>%s</p:cxnSp>`, id, id, spPr)
}

type groupShape struct{ children []Shape }

// Group groups shapes.
func Group(children ...Shape) Shape { return groupShape{children} }

func (s groupShape) render(b *slideBuilder) string {
	id := b.id()
	var inner strings.Builder
	for _, c := range s.children {
		inner.WriteString(c.render(b))
	}
	return fmt.Sprintf(`<p:grpSp><p:nvGrpSpPr><p:cNvPr id="%d" name="Group %d"/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="1" cy="1"/><a:chOff x="0" y="0"/><a:chExt cx="1" cy="1"/></a:xfrm></p:grpSpPr>%s</p:grpSp>`,
		id, id, inner.String())
}
