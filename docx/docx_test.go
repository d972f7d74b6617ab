package docx

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// webpPixel is a 1x1 lossless WebP image.
const webpPixel = "UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA=="

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	return img
}

func encode(t *testing.T, format string, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := testImage(w, h)
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	case "jpeg":
		err = jpeg.Encode(&buf, img, nil)
	case "gif":
		err = gif.Encode(&buf, img, nil)
	case "bmp":
		err = bmp.Encode(&buf, img)
	case "tiff":
		err = tiff.Encode(&buf, img, nil)
	case "webp":
		var data []byte
		data, err = base64.StdEncoding.DecodeString(webpPixel)
		buf.Write(data)
	default:
		t.Fatalf("unknown format %s", format)
	}
	if err != nil {
		t.Fatalf("encoding %s: %v", format, err)
	}
	return buf.Bytes()
}

func mustBytes(t *testing.T, d *Document) []byte {
	t.Helper()
	data, err := d.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	return data
}

func mustRead(t *testing.T, data []byte) []Block {
	t.Helper()
	blocks, err := Read(data)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return blocks
}

func partNames(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("opening zip: %v", err)
	}
	out := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		b, _ := io.ReadAll(rc)
		rc.Close()
		out[f.Name] = b
	}
	return out
}

func TestPackageParts(t *testing.T) {
	d := New()
	d.Title = "Deck & notes"
	d.AddHeading("Slide 1: Intro", 1)
	d.AddParagraph("Hello")

	parts := partNames(t, mustBytes(t, d))
	for _, name := range []string{
		"[Content_Types].xml",
		"_rels/.rels",
		"docProps/core.xml",
		"docProps/app.xml",
		"word/document.xml",
		"word/styles.xml",
		"word/_rels/document.xml.rels",
	} {
		if _, ok := parts[name]; !ok {
			t.Errorf("missing part %s", name)
		}
	}
	if !bytes.Contains(parts["docProps/core.xml"], []byte("<dc:title>Deck &amp; notes</dc:title>")) {
		t.Errorf("core properties missing escaped title:\n%s", parts["docProps/core.xml"])
	}
	if !bytes.Contains(parts["word/styles.xml"], []byte(`w:styleId="Heading1"`)) {
		t.Error("styles.xml must define Heading1")
	}
	if bytes.Contains(parts["[Content_Types].xml"], []byte("image/")) {
		t.Error("no image content types expected without pictures")
	}
}

func TestReadBackInOrder(t *testing.T) {
	d := New()
	d.AddHeading("Slide 1: Intro", 1)
	d.AddParagraph("first line\nsecond line")
	if err := d.AddPicture(encode(t, "png", 20, 10), 5); err != nil {
		t.Fatal(err)
	}
	d.AddTable([][]string{{"a", "b"}, {"c", "d"}})
	d.AddParagraph("after")

	blocks := mustRead(t, mustBytes(t, d))
	want := []struct {
		kind BlockKind
		text string
	}{
		{BlockHeading, "Slide 1: Intro"},
		{BlockParagraph, "first line\nsecond line"},
		{BlockPicture, ""},
		{BlockTable, ""},
		{BlockParagraph, "after"},
	}
	if len(blocks) != len(want) {
		t.Fatalf("got %d blocks, want %d: %+v", len(blocks), len(want), blocks)
	}
	for i, w := range want {
		if blocks[i].Kind != w.kind || blocks[i].Text != w.text {
			t.Errorf("block %d = %s %q, want %s %q", i, blocks[i].Kind, blocks[i].Text, w.kind, w.text)
		}
	}
	if blocks[0].Style != "Heading1" {
		t.Errorf("heading style = %q", blocks[0].Style)
	}
	if blocks[2].Media != "word/media/image1.png" {
		t.Errorf("picture media = %q", blocks[2].Media)
	}
	cells := blocks[3].Cells
	if len(cells) != 2 || strings.Join(cells[0], ",") != "a,b" || strings.Join(cells[1], ",") != "c,d" {
		t.Errorf("table cells = %v", cells)
	}
}

func TestParagraphEscaping(t *testing.T) {
	d := New()
	d.AddParagraph(`a < b & "c" > d`)
	blocks := mustRead(t, mustBytes(t, d))
	if blocks[0].Text != `a < b & "c" > d` {
		t.Errorf("text = %q", blocks[0].Text)
	}
}

func TestEmptyParagraph(t *testing.T) {
	d := New()
	d.AddParagraph("")
	blocks := mustRead(t, mustBytes(t, d))
	if len(blocks) != 1 || blocks[0].Kind != BlockParagraph || blocks[0].Text != "" {
		t.Errorf("blocks = %+v", blocks)
	}
}

func TestHeadingLevelClamped(t *testing.T) {
	d := New()
	d.AddHeading("low", 0)
	d.AddHeading("high", 7)
	blocks := mustRead(t, mustBytes(t, d))
	if blocks[0].Style != "Heading1" || blocks[1].Style != "Heading3" {
		t.Errorf("styles = %q, %q", blocks[0].Style, blocks[1].Style)
	}
}

func TestAddPictureFormats(t *testing.T) {
	tests := []struct {
		format  string
		wantExt string
		wantCT  string
	}{
		{"png", "png", "image/png"},
		{"jpeg", "jpeg", "image/jpeg"},
		{"gif", "gif", "image/gif"},
		{"bmp", "bmp", "image/bmp"},
		{"tiff", "tiff", "image/tiff"},
		{"webp", "png", "image/png"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			d := New()
			if err := d.AddPicture(encode(t, tt.format, 4, 4), 5); err != nil {
				t.Fatalf("AddPicture: %v", err)
			}
			parts := partNames(t, mustBytes(t, d))
			media := "word/media/image1." + tt.wantExt
			if _, ok := parts[media]; !ok {
				t.Fatalf("missing %s", media)
			}
			ct := `<Default Extension="` + tt.wantExt + `" ContentType="` + tt.wantCT + `"/>`
			if !bytes.Contains(parts["[Content_Types].xml"], []byte(ct)) {
				t.Errorf("content types missing %s", ct)
			}
			if tt.format == "webp" {
				if _, err := png.Decode(bytes.NewReader(parts[media])); err != nil {
					t.Errorf("transcoded webp is not a PNG: %v", err)
				}
			}
		})
	}
}

func TestAddPictureScalesToWidth(t *testing.T) {
	d := New()
	if err := d.AddPicture(encode(t, "png", 200, 100), 5.0); err != nil {
		t.Fatal(err)
	}
	doc := string(partNames(t, mustBytes(t, d))["word/document.xml"])
	if !strings.Contains(doc, `<wp:extent cx="4572000" cy="2286000"/>`) {
		t.Errorf("unexpected extent in document.xml:\n%s", doc)
	}
}

func TestAddPictureUnsupported(t *testing.T) {
	tests := map[string][]byte{
		"empty":   nil,
		"garbage": []byte("definitely not an image"),
		"svg":     []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"/>`),
		"emf":     append([]byte{0x01, 0x00, 0x00, 0x00}, make([]byte, 80)...),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			d := New()
			err := d.AddPicture(data, 5)
			if !errors.Is(err, ErrUnsupportedImage) {
				t.Fatalf("err = %v, want ErrUnsupportedImage", err)
			}
			if len(d.media) != 0 || d.body.Len() != 0 {
				t.Error("failed picture must not change the document")
			}
		})
	}
}

func TestAddPictureRejectsWidth(t *testing.T) {
	if err := New().AddPicture(encode(t, "png", 2, 2), 0); err == nil {
		t.Error("expected error for zero width")
	}
}

func TestAddTable(t *testing.T) {
	d := New()
	if !d.AddTable([][]string{{"h1", "h2", "h3"}, {"x"}}) {
		t.Fatal("AddTable returned false")
	}
	blocks := mustRead(t, mustBytes(t, d))
	cells := blocks[0].Cells
	if len(cells) != 2 || len(cells[0]) != 3 || len(cells[1]) != 3 {
		t.Fatalf("cells = %v, want padded 2x3", cells)
	}
	if cells[1][0] != "x" || cells[1][1] != "" || cells[1][2] != "" {
		t.Errorf("row 2 = %q", cells[1])
	}
}

func TestAddTableSkipsEmpty(t *testing.T) {
	d := New()
	if d.AddTable(nil) || d.AddTable([][]string{{}, {}}) {
		t.Error("empty tables should be skipped")
	}
	if d.body.Len() != 0 {
		t.Error("skipped table wrote content")
	}
}

func TestWriteToReportsBytes(t *testing.T) {
	d := New()
	d.AddParagraph("x")
	var buf bytes.Buffer
	n, err := d.WriteTo(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("WriteTo returned %d, wrote %d", n, buf.Len())
	}
}

func TestReadRejectsNonDocx(t *testing.T) {
	if _, err := Read([]byte("nope")); err == nil {
		t.Error("expected error for non-zip input")
	}
}

func TestBlockKindString(t *testing.T) {
	if BlockTable.String() != "table" || BlockKind(42).String() != "unknown" {
		t.Error("unexpected BlockKind strings")
	}
}
