package parser

import (
	"encoding/xml"
	"strings"
)

// ShapeKind classifies an element of a slide's shape tree.
type ShapeKind int

const (
	KindOther ShapeKind = iota
	KindTextBox
	KindPlaceholder
	KindAutoShape
	KindPicture
	KindTable
	KindGroup
	KindChart
	KindConnector
)

var kindNames = [...]string{
	KindOther:       "other",
	KindTextBox:     "text_box",
	KindPlaceholder: "placeholder",
	KindAutoShape:   "auto_shape",
	KindPicture:     "picture",
	KindTable:       "table",
	KindGroup:       "group",
	KindChart:       "chart",
	KindConnector:   "connector",
}

func (k ShapeKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Shape is one decoded element of a shape tree. Which fields are set
// depends on Kind.
type Shape struct {
	Kind        ShapeKind
	Name        string
	Placeholder string     // Placeholder type when Kind == KindPlaceholder ("obj" when unspecified)
	Paragraphs  []string   // Text frame paragraphs
	EmbedID     string     // Relationship id of a picture's image part
	Cells       [][]string // Table cells, row-major
	GridCols    int        // Declared table column count
	Children    []Shape    // Group members in document order
}

// Text returns the shape's text frame content with paragraphs separated by
// newlines.
func (s Shape) Text() string {
	return strings.Join(s.Paragraphs, "\n")
}

// IsTitle reports whether the shape is the slide's title placeholder.
func (s Shape) IsTitle() bool {
	return s.Kind == KindPlaceholder && (s.Placeholder == "title" || s.Placeholder == "ctrTitle")
}

// HasText reports whether the shape carries a text frame.
func (s Shape) HasText() bool {
	return s.Paragraphs != nil
}

// slideXML is the part of a ppt/slides/slideN.xml document we read.
type slideXML struct {
	CSld struct {
		SpTree shapeTree `xml:"spTree"`
	} `xml:"cSld"`
}

// shapeTree decodes p:spTree (and p:grpSp bodies) preserving document order
// across shape element types.
type shapeTree struct {
	Name   string
	Shapes []Shape
}

func (t *shapeTree) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == "nvGrpSpPr" {
				var nv struct {
					CNvPr cNvPrXML `xml:"cNvPr"`
				}
				if err := d.DecodeElement(&nv, &el); err != nil {
					return err
				}
				t.Name = nv.CNvPr.Name
				continue
			}
			sh, err := decodeShape(d, el)
			if err != nil {
				return err
			}
			if sh != nil {
				t.Shapes = append(t.Shapes, *sh)
			}
		case xml.EndElement:
			return nil
		}
	}
}

// decodeShape decodes the element that starts at el. Elements that are not
// shapes (properties, extension lists) are skipped and yield nil.
func decodeShape(d *xml.Decoder, el xml.StartElement) (*Shape, error) {
	switch el.Name.Local {
	case "sp":
		var x spXML
		if err := d.DecodeElement(&x, &el); err != nil {
			return nil, err
		}
		return x.shape(), nil
	case "pic":
		var x picXML
		if err := d.DecodeElement(&x, &el); err != nil {
			return nil, err
		}
		return &Shape{Kind: KindPicture, Name: x.NvPicPr.CNvPr.Name, EmbedID: x.BlipFill.Blip.Embed}, nil
	case "graphicFrame":
		var x graphicFrameXML
		if err := d.DecodeElement(&x, &el); err != nil {
			return nil, err
		}
		return x.shape(), nil
	case "grpSp":
		var x shapeTree
		if err := d.DecodeElement(&x, &el); err != nil {
			return nil, err
		}
		return &Shape{Kind: KindGroup, Name: x.Name, Children: x.Shapes}, nil
	case "cxnSp":
		if err := d.Skip(); err != nil {
			return nil, err
		}
		return &Shape{Kind: KindConnector}, nil
	case "contentPart", "AlternateContent":
		if err := d.Skip(); err != nil {
			return nil, err
		}
		return &Shape{Kind: KindOther, Name: el.Name.Local}, nil
	default:
		return nil, d.Skip()
	}
}

type cNvPrXML struct {
	ID   int    `xml:"id,attr"`
	Name string `xml:"name,attr"`
}

type phXML struct {
	Type string `xml:"type,attr"`
	Idx  int    `xml:"idx,attr"`
}

type spXML struct {
	NvSpPr struct {
		CNvPr   cNvPrXML `xml:"cNvPr"`
		CNvSpPr struct {
			TxBox string `xml:"txBox,attr"`
		} `xml:"cNvSpPr"`
		NvPr struct {
			Ph *phXML `xml:"ph"`
		} `xml:"nvPr"`
	} `xml:"nvSpPr"`
	TxBody *txBodyXML `xml:"txBody"`
}

func (x *spXML) shape() *Shape {
	sh := &Shape{Name: x.NvSpPr.CNvPr.Name}
	switch {
	case x.NvSpPr.NvPr.Ph != nil:
		sh.Kind = KindPlaceholder
		sh.Placeholder = x.NvSpPr.NvPr.Ph.Type
		if sh.Placeholder == "" {
			sh.Placeholder = "obj"
		}
	case xmlBool(x.NvSpPr.CNvSpPr.TxBox):
		sh.Kind = KindTextBox
	default:
		sh.Kind = KindAutoShape
	}
	if x.TxBody != nil {
		sh.Paragraphs = x.TxBody.paragraphs()
	}
	return sh
}

type txBodyXML struct {
	Paras []paragraphXML `xml:"p"`
}

func (b *txBodyXML) paragraphs() []string {
	out := make([]string, len(b.Paras))
	for i, p := range b.Paras {
		out[i] = p.Text
	}
	return out
}

// paragraphXML flattens an a:p into text, keeping runs, fields and line
// breaks in document order.
type paragraphXML struct {
	Text string
}

func (p *paragraphXML) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var b strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "r", "fld":
				var run struct {
					T string `xml:"t"`
				}
				if err := d.DecodeElement(&run, &el); err != nil {
					return err
				}
				b.WriteString(run.T)
			case "br":
				b.WriteByte('\n')
				if err := d.Skip(); err != nil {
					return err
				}
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			p.Text = b.String()
			return nil
		}
	}
}

type picXML struct {
	NvPicPr struct {
		CNvPr cNvPrXML `xml:"cNvPr"`
	} `xml:"nvPicPr"`
	BlipFill struct {
		Blip struct {
			Embed string `xml:"embed,attr"`
			Link  string `xml:"link,attr"`
		} `xml:"blip"`
	} `xml:"blipFill"`
}

type graphicFrameXML struct {
	NvGraphicFramePr struct {
		CNvPr cNvPrXML `xml:"cNvPr"`
	} `xml:"nvGraphicFramePr"`
	Graphic struct {
		GraphicData struct {
			URI string  `xml:"uri,attr"`
			Tbl *tblXML `xml:"tbl"`
		} `xml:"graphicData"`
	} `xml:"graphic"`
}

func (x *graphicFrameXML) shape() *Shape {
	data := x.Graphic.GraphicData
	sh := &Shape{Name: x.NvGraphicFramePr.CNvPr.Name}
	switch {
	case data.Tbl != nil:
		sh.Kind = KindTable
		sh.GridCols = len(data.Tbl.Grid.Cols)
		sh.Cells = make([][]string, len(data.Tbl.Rows))
		for i, row := range data.Tbl.Rows {
			cells := make([]string, len(row.Cells))
			for j, c := range row.Cells {
				if c.TxBody != nil {
					cells[j] = strings.Join(c.TxBody.paragraphs(), "\n")
				}
			}
			sh.Cells[i] = cells
		}
	case strings.HasSuffix(data.URI, "/chart"):
		sh.Kind = KindChart
	default:
		sh.Kind = KindOther
	}
	return sh
}

type tblXML struct {
	Grid struct {
		Cols []struct{} `xml:"gridCol"`
	} `xml:"tblGrid"`
	Rows []struct {
		Cells []struct {
			TxBody *txBodyXML `xml:"txBody"`
		} `xml:"tc"`
	} `xml:"tr"`
}

func xmlBool(v string) bool {
	return v == "1" || v == "true"
}
