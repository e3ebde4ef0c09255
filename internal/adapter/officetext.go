package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/convertd/convertd/internal/ooxml"
)

// DocxTextPDF is the library fallback for DOCX to PDF when LibreOffice is
// unavailable: pull the text out of the OOXML package and typeset it.
type DocxTextPDF struct{}

func NewDocxTextPDF() *DocxTextPDF { return &DocxTextPDF{} }

func (a *DocxTextPDF) Name() string { return "text-layout" }

func (a *DocxTextPDF) Attempt(ctx context.Context, inputPath, outputPath string) (map[string]any, error) {
	return contain(outputPath, func() (map[string]any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := ooxml.DocxText(inputPath)
		if err != nil {
			return nil, err
		}
		text = normalizeText(text)
		if text == "" {
			return nil, fmt.Errorf("document contains no extractable text")
		}
		if err := writeTextPDF(outputPath, splitLines(text)); err != nil {
			return nil, err
		}
		return map[string]any{"char_count": len(text)}, nil
	})
}

// PptxTextPDF is the library fallback for PPTX to PDF: slide text only,
// one heading per slide.
type PptxTextPDF struct{}

func NewPptxTextPDF() *PptxTextPDF { return &PptxTextPDF{} }

func (a *PptxTextPDF) Name() string { return "text-layout" }

func (a *PptxTextPDF) Attempt(ctx context.Context, inputPath, outputPath string) (map[string]any, error) {
	return contain(outputPath, func() (map[string]any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := ooxml.PptxText(inputPath)
		if err != nil {
			return nil, err
		}
		slideCount, _ := ooxml.SlideCount(inputPath)
		text = normalizeText(text)
		if text == "" {
			return nil, fmt.Errorf("presentation contains no extractable text")
		}
		if err := writeTextPDF(outputPath, splitLines(text)); err != nil {
			return nil, err
		}
		return map[string]any{"slide_count": slideCount, "char_count": len(text)}, nil
	})
}

// XlsxTablePDF is the library fallback for XLSX to PDF: each sheet becomes
// a section of tab-aligned rows.
type XlsxTablePDF struct{}

func NewXlsxTablePDF() *XlsxTablePDF { return &XlsxTablePDF{} }

func (a *XlsxTablePDF) Name() string { return "text-layout" }

func (a *XlsxTablePDF) Attempt(ctx context.Context, inputPath, outputPath string) (map[string]any, error) {
	return contain(outputPath, func() (map[string]any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		wb, err := excelize.OpenFile(inputPath)
		if err != nil {
			return nil, fmt.Errorf("open xlsx: %w", err)
		}
		defer wb.Close()

		sheets := wb.GetSheetList()
		var lines []string
		rowCount := 0
		for _, sheet := range sheets {
			rows, err := wb.GetRows(sheet)
			if err != nil || len(rows) == 0 {
				continue
			}
			lines = append(lines, sheet)
			for _, row := range rows {
				line := strings.TrimSpace(strings.Join(row, "    "))
				if line == "" {
					continue
				}
				lines = append(lines, line)
				rowCount++
			}
			lines = append(lines, "")
		}

		if rowCount == 0 {
			return nil, fmt.Errorf("workbook contains no cell data")
		}
		if err := writeTextPDF(outputPath, lines); err != nil {
			return nil, err
		}
		return map[string]any{"sheet_count": len(sheets), "row_count": rowCount}, nil
	})
}

// writeTextPDF typesets plain text lines into an A4 portrait PDF.
func writeTextPDF(outputPath string, lines []string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Helvetica", "", 11)
	pdf.AddPage()
	for _, line := range lines {
		pdf.MultiCell(0, 5, tr(line), "", "L", false)
	}
	if err := pdf.OutputFileAndClose(outputPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
