package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
)

// BlockKind identifies a top-level body element.
type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockHeading
	BlockPicture
	BlockTable
)

func (k BlockKind) String() string {
	switch k {
	case BlockParagraph:
		return "paragraph"
	case BlockHeading:
		return "heading"
	case BlockPicture:
		return "picture"
	case BlockTable:
		return "table"
	}
	return "unknown"
}

// Block is one element of a document body as read back by Read.
type Block struct {
	Kind  BlockKind
	Style string     // Paragraph style id, e.g. Heading1
	Text  string     // Paragraph text; line breaks become "\n"
	Media string     // Package part of an embedded picture
	Cells [][]string // Table cell text, row-major
}

// Read parses a .docx package and returns its body in document order. It
// understands the subset of WordprocessingML that Document writes.
func Read(data []byte) ([]Block, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("docx: opening package: %w", err)
	}
	fileIndex := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		fileIndex[f.Name] = f
	}

	docXML, err := readPart(fileIndex, "word/document.xml")
	if err != nil {
		return nil, err
	}
	rels, err := readRels(fileIndex)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Body bodyXML `xml:"body"`
	}
	if err := xml.Unmarshal(docXML, &doc); err != nil {
		return nil, fmt.Errorf("docx: parsing document.xml: %w", err)
	}

	blocks := make([]Block, 0, len(doc.Body.blocks))
	for _, b := range doc.Body.blocks {
		if b.Kind == BlockPicture {
			target, ok := rels[b.Media]
			if !ok {
				return nil, fmt.Errorf("docx: picture references unknown relationship %q", b.Media)
			}
			b.Media = path.Join("word", target)
			if _, ok := fileIndex[b.Media]; !ok {
				return nil, fmt.Errorf("docx: picture part %s missing", b.Media)
			}
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

func readPart(fileIndex map[string]*zip.File, name string) ([]byte, error) {
	f := fileIndex[name]
	if f == nil {
		return nil, fmt.Errorf("docx: %s not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("docx: opening %s: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// readRels returns rId -> target for the main document part.
func readRels(fileIndex map[string]*zip.File) (map[string]string, error) {
	data, err := readPart(fileIndex, "word/_rels/document.xml.rels")
	if err != nil {
		return nil, err
	}
	var rels struct {
		Rels []struct {
			ID     string `xml:"Id,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	if err := xml.Unmarshal(data, &rels); err != nil {
		return nil, fmt.Errorf("docx: parsing relationships: %w", err)
	}
	out := make(map[string]string, len(rels.Rels))
	for _, r := range rels.Rels {
		out[r.ID] = r.Target
	}
	return out, nil
}

// bodyXML keeps paragraphs and tables in document order.
type bodyXML struct {
	blocks []Block
}

func (b *bodyXML) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				var p paraXML
				if err := d.DecodeElement(&p, &t); err != nil {
					return err
				}
				b.blocks = append(b.blocks, p.block())
			case "tbl":
				var tbl tableXML
				if err := d.DecodeElement(&tbl, &t); err != nil {
					return err
				}
				b.blocks = append(b.blocks, Block{Kind: BlockTable, Cells: tbl.cells()})
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			return nil
		}
	}
}

// paraXML collects a paragraph's style, text and first picture reference.
type paraXML struct {
	style string
	text  string
	embed string
}

func (p *paraXML) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch t.Name.Local {
			case "pStyle":
				p.style = attr(t, "val")
			case "br":
				p.text += "\n"
			case "blip":
				if p.embed == "" {
					p.embed = attr(t, "embed")
				}
			case "t":
				var s string
				if err := d.DecodeElement(&s, &t); err != nil {
					return err
				}
				p.text += s
				depth--
			}
		case xml.EndElement:
			depth--
		}
	}
	return nil
}

func (p *paraXML) block() Block {
	b := Block{Kind: BlockParagraph, Style: p.style, Text: p.text}
	switch {
	case p.embed != "":
		b.Kind = BlockPicture
		b.Media = p.embed
	case strings.HasPrefix(strings.ToLower(p.style), "heading"):
		b.Kind = BlockHeading
	}
	return b
}

type tableXML struct {
	Rows []struct {
		Cells []struct {
			Paras []paraXML `xml:"p"`
		} `xml:"tc"`
	} `xml:"tr"`
}

func (t *tableXML) cells() [][]string {
	out := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			texts := make([]string, len(cell.Paras))
			for k := range cell.Paras {
				texts[k] = cell.Paras[k].text
			}
			out[i][j] = strings.Join(texts, "\n")
		}
	}
	return out
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
