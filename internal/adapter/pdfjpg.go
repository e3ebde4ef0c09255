package adapter

import (
	"archive/zip"
	"context"
	"fmt"
	"image/jpeg"
	"os"

	"github.com/gen2brain/go-fitz"
)

// PDFToJPG renders every page to a JPEG and bundles them into a ZIP archive
// at outputPath. Always zipping keeps the output shape independent of the
// page count, so callers never have to guess the artifact's type.
type PDFToJPG struct {
	dpi     float64
	quality int
}

func NewPDFToJPG(dpi float64, quality int) *PDFToJPG {
	if dpi <= 0 {
		dpi = 150
	}
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &PDFToJPG{dpi: dpi, quality: quality}
}

func (a *PDFToJPG) Name() string { return "mupdf-render" }

func (a *PDFToJPG) Attempt(ctx context.Context, inputPath, outputPath string) (map[string]any, error) {
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

		out, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("create archive: %w", err)
		}
		defer out.Close()

		zw := zip.NewWriter(out)
		for i := 0; i < pageCount; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			img, err := doc.ImageDPI(i, a.dpi)
			if err != nil {
				return nil, fmt.Errorf("render page %d: %w", i+1, err)
			}
			w, err := zw.Create(fmt.Sprintf("page_%03d.jpg", i+1))
			if err != nil {
				return nil, fmt.Errorf("add page %d to archive: %w", i+1, err)
			}
			if err := jpeg.Encode(w, img, &jpeg.Options{Quality: a.quality}); err != nil {
				return nil, fmt.Errorf("encode page %d: %w", i+1, err)
			}
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("finalize archive: %w", err)
		}

		return map[string]any{"page_count": pageCount, "dpi": a.dpi}, nil
	})
}
