package adapter

import (
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"github.com/fumiama/go-docx"
	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
)

// DirectDocx is the cheapest PDF to DOCX path: structural text extraction
// with a pure-Go PDF parser, re-emitted as Word paragraphs. Best for
// text-faithful digital documents; useless for scans.
type DirectDocx struct{}

func NewDirectDocx() *DirectDocx { return &DirectDocx{} }

func (a *DirectDocx) Name() string { return "direct-text" }

func (a *DirectDocx) Attempt(ctx context.Context, inputPath, outputPath string) (map[string]any, error) {
	return contain(outputPath, func() (map[string]any, error) {
		f, r, err := pdf.Open(inputPath)
		if err != nil {
			return nil, fmt.Errorf("open pdf: %w", err)
		}
		defer f.Close()

		pageCount := r.NumPage()
		if pageCount == 0 {
			return nil, fmt.Errorf("pdf has no pages")
		}

		var pages []string
		totalChars := 0
		for i := 1; i <= pageCount; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			p := r.Page(i)
			if p.V.IsNull() {
				continue
			}
			text, err := p.GetPlainText(nil)
			if err != nil {
				continue
			}
			text = normalizeText(text)
			totalChars += len(text)
			pages = append(pages, text)
		}

		if totalChars == 0 {
			return nil, fmt.Errorf("no extractable text in %d pages", pageCount)
		}

		if err := writeTextDocx(outputPath, pages); err != nil {
			return nil, err
		}
		return map[string]any{"page_count": pageCount, "char_count": totalChars}, nil
	})
}

// AccurateDocx extracts text with the MuPDF engine, which handles far more
// encodings and layout constructs than the pure-Go parser. Slower, better.
type AccurateDocx struct{}

func NewAccurateDocx() *AccurateDocx { return &AccurateDocx{} }

func (a *AccurateDocx) Name() string { return "mupdf-text" }

func (a *AccurateDocx) Attempt(ctx context.Context, inputPath, outputPath string) (map[string]any, error) {
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

		var pages []string
		totalChars := 0
		for i := 0; i < pageCount; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			text, err := doc.Text(i)
			if err != nil {
				continue
			}
			text = normalizeText(text)
			totalChars += len(text)
			pages = append(pages, text)
		}

		if totalChars == 0 {
			return nil, fmt.Errorf("no extractable text in %d pages", pageCount)
		}

		if err := writeTextDocx(outputPath, pages); err != nil {
			return nil, err
		}
		return map[string]any{"page_count": pageCount, "char_count": totalChars}, nil
	})
}

// HybridDocx rebuilds the document as one rendered page image per page with
// the extracted text underneath. The safe choice for mixed documents where
// neither pure text nor pure OCR wins.
type HybridDocx struct {
	dpi float64
}

func NewHybridDocx(dpi float64) *HybridDocx {
	if dpi <= 0 {
		dpi = 150
	}
	return &HybridDocx{dpi: dpi}
}

func (a *HybridDocx) Name() string { return "render-hybrid" }

func (a *HybridDocx) Attempt(ctx context.Context, inputPath, outputPath string) (map[string]any, error) {
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

		tmpDir, err := os.MkdirTemp("", "convertd-hybrid-*")
		if err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
		defer os.RemoveAll(tmpDir)

		w := docx.New().WithDefaultTheme()
		imageCount := 0

		for i := 0; i < pageCount; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			imgPath, err := renderPageJPEG(doc, i, a.dpi, tmpDir)
			if err == nil {
				para := w.AddParagraph()
				if _, derr := para.AddInlineDrawingFrom(imgPath); derr == nil {
					imageCount++
				}
			}

			if text, terr := doc.Text(i); terr == nil {
				for _, line := range splitLines(normalizeText(text)) {
					w.AddParagraph().AddText(line).Size("20")
				}
			}
		}

		if imageCount == 0 {
			return nil, fmt.Errorf("rendered no page images")
		}

		if err := saveDocx(w, outputPath); err != nil {
			return nil, err
		}
		return map[string]any{"page_count": pageCount, "image_count": imageCount}, nil
	})
}

// OCRDocx rasterizes each page and runs it through the OCR engine,
// emitting the recognized text as Word paragraphs. The only adapter that
// produces usable output from image-only scans.
type OCRDocx struct {
	tesseractPath string
	language      string
	dpi           float64
	timeout       time.Duration
}

func NewOCRDocx(tesseractPath, language string, dpi float64, timeout time.Duration) *OCRDocx {
	if tesseractPath == "" {
		tesseractPath = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	if dpi <= 0 {
		dpi = 300
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OCRDocx{tesseractPath: tesseractPath, language: language, dpi: dpi, timeout: timeout}
}

func (a *OCRDocx) Name() string { return "ocr-tesseract" }

func (a *OCRDocx) Attempt(ctx context.Context, inputPath, outputPath string) (map[string]any, error) {
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

		tmpDir, err := os.MkdirTemp("", "convertd-ocr-*")
		if err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
		defer os.RemoveAll(tmpDir)

		var pages []string
		totalChars := 0
		for i := 0; i < pageCount; i++ {
			imgPath, err := renderPageJPEG(doc, i, a.dpi, tmpDir)
			if err != nil {
				return nil, fmt.Errorf("render page %d: %w", i+1, err)
			}

			text, err := runCommand(ctx, a.timeout, a.tesseractPath, imgPath, "stdout", "-l", a.language)
			if err != nil {
				return nil, fmt.Errorf("ocr page %d: %w", i+1, err)
			}
			text = normalizeText(text)
			totalChars += len(text)
			pages = append(pages, text)
		}

		if totalChars == 0 {
			return nil, fmt.Errorf("ocr recognized no text in %d pages", pageCount)
		}

		if err := writeTextDocx(outputPath, pages); err != nil {
			return nil, err
		}
		return map[string]any{"page_count": pageCount, "char_count": totalChars, "ocr_language": a.language}, nil
	})
}

// renderPageJPEG renders one page to a JPEG in dir and returns its path.
func renderPageJPEG(doc *fitz.Document, page int, dpi float64, dir string) (string, error) {
	img, err := doc.ImageDPI(page, dpi)
	if err != nil {
		return "", fmt.Errorf("render page %d: %w", page+1, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("page_%03d.jpg", page+1))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create page image: %w", err)
	}
	err = jpeg.Encode(f, img, &jpeg.Options{Quality: 85})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("encode page image: %w", err)
	}
	return path, nil
}

// writeTextDocx emits one block of paragraphs per page, pages separated by
// an empty paragraph.
func writeTextDocx(outputPath string, pages []string) error {
	w := docx.New().WithDefaultTheme()
	for i, page := range pages {
		if i > 0 {
			w.AddParagraph()
		}
		for _, line := range splitLines(page) {
			w.AddParagraph().AddText(line).Size("22")
		}
	}
	return saveDocx(w, outputPath)
}

func saveDocx(w *docx.Docx, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create docx: %w", err)
	}
	_, err = w.WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write docx: %w", err)
	}
	return nil
}
