package adapter

import (
	"context"
	"fmt"
	"os"

	"github.com/gen2brain/go-fitz"

	"github.com/convertd/convertd/internal/ooxml"
)

// PDFToPPTX turns each PDF page into one slide: the rendered page as a
// full-bleed image when rendering succeeds, extracted text as a fallback
// text box otherwise.
type PDFToPPTX struct {
	dpi float64
}

func NewPDFToPPTX(dpi float64) *PDFToPPTX {
	if dpi <= 0 {
		dpi = 150
	}
	return &PDFToPPTX{dpi: dpi}
}

func (a *PDFToPPTX) Name() string { return "render-slides" }

func (a *PDFToPPTX) Attempt(ctx context.Context, inputPath, outputPath string) (map[string]any, error) {
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

		tmpDir, err := os.MkdirTemp("", "convertd-pptx-*")
		if err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
		defer os.RemoveAll(tmpDir)

		slides := make([]ooxml.Slide, 0, pageCount)
		imageCount := 0
		for i := 0; i < pageCount; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			var slide ooxml.Slide
			if imgPath, rerr := renderPageJPEG(doc, i, a.dpi, tmpDir); rerr == nil {
				slide.ImagePath = imgPath
				imageCount++
			} else if text, terr := doc.Text(i); terr == nil {
				slide.Lines = splitLines(normalizeText(text))
			}
			slides = append(slides, slide)
		}

		if err := ooxml.WritePPTX(outputPath, slides); err != nil {
			return nil, fmt.Errorf("write pptx: %w", err)
		}
		return map[string]any{"slide_count": pageCount, "image_count": imageCount}, nil
	})
}
