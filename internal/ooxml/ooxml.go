// Package ooxml reads text out of OOXML packages and writes minimal PPTX
// presentations. Both directions operate on the raw ZIP container: OOXML
// documents are ZIP archives of XML parts plus media files.
package ooxml

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Common OOXML namespaces.
const (
	NSContentTypes    = "http://schemas.openxmlformats.org/package/2006/content-types"
	NSRelationships   = "http://schemas.openxmlformats.org/package/2006/relationships"
	NSRelOfficeDoc    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	NSDrawingML       = "http://schemas.openxmlformats.org/drawingml/2006/main"
	NSPresentationML  = "http://schemas.openxmlformats.org/presentationml/2006/main"
	NSWordprocessingML = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
)

// DocxText extracts plain text from word/document.xml of a DOCX package.
// Paragraph boundaries become newlines; all other structure is dropped.
func DocxText(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	data, err := readZipFile(&zr.Reader, "word/document.xml")
	if err != nil {
		return "", err
	}
	return extractRunText(data)
}

// PptxText extracts plain text from every slide of a PPTX package, in slide
// order, separated by blank lines.
func PptxText(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open pptx: %w", err)
	}
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		data, err := readZipFile(&zr.Reader, name)
		if err != nil {
			continue
		}
		text, err := extractRunText(data)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		sb.WriteString(strings.TrimSpace(text))
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

// SlideCount reports how many slides a PPTX package contains.
func SlideCount(path string) (int, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return 0, fmt.Errorf("open pptx: %w", err)
	}
	defer zr.Close()

	n := 0
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			n++
		}
	}
	return n, nil
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("file %q not found in package", name)
}

// extractRunText walks the XML token stream collecting the contents of run
// text elements (w:t in WordprocessingML, a:t in DrawingML) and emitting a
// newline per paragraph element.
func extractRunText(data []byte) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(string(data)))
	var sb strings.Builder
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			case "br":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}
