package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/html/charset"
)

// pkg is an opened OOXML package with a name index over its parts.
type pkg struct {
	files map[string]*zip.File
}

func openPackage(r io.ReaderAt, size int64) (*pkg, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPresentation, err)
	}
	p := &pkg{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		p.files[strings.TrimPrefix(f.Name, "/")] = f
	}
	return p, nil
}

func (p *pkg) has(name string) bool {
	_, ok := p.files[name]
	return ok
}

func (p *pkg) read(name string) ([]byte, error) {
	f := p.files[name]
	if f == nil {
		return nil, fmt.Errorf("part %s not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// decodeXML unmarshals an XML part. Parts declaring a legacy encoding are
// transcoded to UTF-8 first.
func decodeXML(data []byte, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	return dec.Decode(v)
}

// relationships represents a .rels part (same format across OOXML).
type relationships struct {
	XMLName xml.Name       `xml:"Relationships"`
	Rels    []relationship `xml:"Relationship"`
}

type relationship struct {
	ID         string `xml:"Id,attr"`
	Target     string `xml:"Target,attr"`
	Type       string `xml:"Type,attr"`
	TargetMode string `xml:"TargetMode,attr"`
}

// rels reads the relationships of part and returns rId -> resolved part
// name. External targets are omitted. A missing .rels part yields an empty
// map.
func (p *pkg) rels(part string) map[string]string {
	relsPath := path.Join(path.Dir(part), "_rels", path.Base(part)+".rels")
	result := make(map[string]string)
	if !p.has(relsPath) {
		return result
	}
	data, err := p.read(relsPath)
	if err != nil {
		return result
	}
	var rels relationships
	if err := decodeXML(data, &rels); err != nil {
		return result
	}
	for _, rel := range rels.Rels {
		if strings.EqualFold(rel.TargetMode, "External") {
			continue
		}
		result[rel.ID] = resolveTarget(part, rel.Target)
	}
	return result
}

// resolveTarget resolves a relationship target against the part that owns
// the relationship.
func resolveTarget(part, target string) string {
	if strings.HasPrefix(target, "/") {
		return path.Clean(strings.TrimPrefix(target, "/"))
	}
	return path.Clean(path.Join(path.Dir(part), target))
}

type presentationXML struct {
	SldIDLst struct {
		SldID []struct {
			RID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
		} `xml:"sldId"`
	} `xml:"sldIdLst"`
}

const presentationPart = "ppt/presentation.xml"

// slideParts returns slide part names in presentation order. The order comes
// from p:sldIdLst; when that cannot be resolved the slide files are ordered
// by their numeric suffix.
func (p *pkg) slideParts() ([]string, error) {
	data, err := p.read(presentationPart)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPresentation, err)
	}
	var pres presentationXML
	if err := decodeXML(data, &pres); err != nil {
		return nil, fmt.Errorf("%w: parsing presentation.xml: %v", ErrInvalidPresentation, err)
	}

	rels := p.rels(presentationPart)
	var parts []string
	for _, id := range pres.SldIDLst.SldID {
		target, ok := rels[id.RID]
		if !ok || !p.has(target) {
			parts = nil
			break
		}
		parts = append(parts, target)
	}
	if len(parts) > 0 {
		return parts, nil
	}

	// Fallback: ppt/slides/slide1.xml, slide2.xml, ...
	nums := make(map[int]string)
	for name := range p.files {
		if n := extractSlideNumber(name); n > 0 {
			nums[n] = name
		}
	}
	keys := make([]int, 0, len(nums))
	for n := range nums {
		keys = append(keys, n)
	}
	sort.Ints(keys)
	for _, n := range keys {
		parts = append(parts, nums[n])
	}
	return parts, nil
}

// extractSlideNumber returns N for "ppt/slides/slideN.xml", or 0.
func extractSlideNumber(name string) int {
	if !strings.HasPrefix(name, "ppt/slides/slide") || !strings.HasSuffix(name, ".xml") {
		return 0
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml")
	if digits == "" {
		return 0
	}
	num := 0
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0
		}
		num = num*10 + int(c-'0')
	}
	return num
}

// mimeFromExt returns the MIME type for common image extensions.
func mimeFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg", ".jpe":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".tiff", ".tif":
		return "image/tiff"
	case ".webp":
		return "image/webp"
	case ".svg":
		return "image/svg+xml"
	case ".emf":
		return "image/x-emf"
	case ".wmf":
		return "image/x-wmf"
	default:
		return ""
	}
}
