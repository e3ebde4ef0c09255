package adapter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
)

func writeFile(t *testing.T, path, content string) error {
	t.Helper()
	return os.WriteFile(path, []byte(content), 0o644)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// writeScript installs an executable shell script and returns its path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

// makeTextPDF synthesizes a PDF with the given text so adapters have real
// input to chew on.
func makeTextPDF(t *testing.T, dir, text string) string {
	t.Helper()
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.AddPage()
	doc.SetFont("Helvetica", "", 11)
	tr := doc.UnicodeTranslatorFromDescriptor("")
	doc.MultiCell(0, 5, tr(text), "", "L", false)

	path := filepath.Join(dir, "input.pdf")
	if err := doc.OutputFileAndClose(path); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return path
}

func repeatText(n int) string {
	return strings.TrimSpace(strings.Repeat("The quick brown fox jumps over the lazy dog. ", n))
}
