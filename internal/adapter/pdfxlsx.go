package adapter

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/xuri/excelize/v2"
)

// reColumnGap splits a text line into cells on tabs or runs of two and more
// spaces, which is how tabular data survives plain-text extraction.
var reColumnGap = regexp.MustCompile(`\t+| {2,}`)

// PDFToXLSX extracts text line by line and rebuilds it as one worksheet per
// page, splitting lines into columns along whitespace gaps. Crude next to a
// real table-recognition engine, but it keeps the data.
type PDFToXLSX struct{}

func NewPDFToXLSX() *PDFToXLSX { return &PDFToXLSX{} }

func (a *PDFToXLSX) Name() string { return "text-table" }

func (a *PDFToXLSX) Attempt(ctx context.Context, inputPath, outputPath string) (map[string]any, error) {
	return contain(outputPath, func() (map[string]any, error) {
		doc, err := fitz.New(inputPath)
		if err != nil {
			return nil, fmt.Errorf("open pdf: %w", err)
		}
		defer doc.Close()

		pageCount := doc.NumPage()
		if pageCount == 0 {
			return nil, fmt.Errorf("pdf has no pages")
		}

		wb := excelize.NewFile()
		defer wb.Close()

		totalRows := 0
		for i := 0; i < pageCount; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			text, err := doc.Text(i)
			if err != nil {
				continue
			}

			sheet := fmt.Sprintf("Page %d", i+1)
			if i == 0 {
				if err := wb.SetSheetName("Sheet1", sheet); err != nil {
					return nil, fmt.Errorf("rename sheet: %w", err)
				}
			} else {
				if _, err := wb.NewSheet(sheet); err != nil {
					return nil, fmt.Errorf("add sheet: %w", err)
				}
			}

			row := 1
			for _, line := range splitLines(normalizeText(text)) {
				cells := splitColumns(line)
				for col, val := range cells {
					cell, err := excelize.CoordinatesToCellName(col+1, row)
					if err != nil {
						continue
					}
					if err := wb.SetCellValue(sheet, cell, val); err != nil {
						return nil, fmt.Errorf("set cell %s: %w", cell, err)
					}
				}
				row++
				totalRows++
			}
		}

		if totalRows == 0 {
			return nil, fmt.Errorf("no extractable rows in %d pages", pageCount)
		}

		if err := wb.SaveAs(outputPath); err != nil {
			return nil, fmt.Errorf("save xlsx: %w", err)
		}
		return map[string]any{"page_count": pageCount, "row_count": totalRows}, nil
	})
}

func splitColumns(line string) []string {
	parts := reColumnGap.Split(line, -1)
	cells := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			cells = append(cells, p)
		}
	}
	return cells
}
