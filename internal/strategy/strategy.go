// Package strategy selects and supervises the ordered fallback chain of
// backend adapters for each conversion request. The chain for a given
// (direction, mode, detected class) is deterministic; within one job the
// adapters run strictly sequentially and the first verified success wins.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/convertd/convertd/internal/adapter"
	"github.com/convertd/convertd/internal/detect"
	"github.com/convertd/convertd/internal/job"
)

// Config carries the external-tool knobs the adapters need.
type Config struct {
	SofficePath    string
	ChromePath     string
	TesseractPath  string
	OCRLanguage    string
	SofficeTimeout time.Duration
	ChromeTimeout  time.Duration
	OCRTimeout     time.Duration
	RenderDPI      float64
	JPEGQuality    int
}

// Engine owns one instance of every adapter plus the format detector, and
// converts jobs by running their fallback chain.
type Engine struct {
	detector *detect.Detector

	direct   adapter.Adapter
	accurate adapter.Adapter
	hybrid   adapter.Adapter
	ocr      adapter.Adapter
	pdfXlsx  adapter.Adapter
	pdfPptx  adapter.Adapter
	pdfJpg   adapter.Adapter
	soffice  adapter.Adapter
	chrome   adapter.Adapter
	docxText adapter.Adapter
	pptxText adapter.Adapter
	xlsxText adapter.Adapter
	htmlText adapter.Adapter
}

// NewEngine wires all adapters from the given tool configuration.
func NewEngine(detector *detect.Detector, cfg Config) *Engine {
	return &Engine{
		detector: detector,
		direct:   adapter.NewDirectDocx(),
		accurate: adapter.NewAccurateDocx(),
		hybrid:   adapter.NewHybridDocx(cfg.RenderDPI),
		ocr:      adapter.NewOCRDocx(cfg.TesseractPath, cfg.OCRLanguage, cfg.RenderDPI, cfg.OCRTimeout),
		pdfXlsx:  adapter.NewPDFToXLSX(),
		pdfPptx:  adapter.NewPDFToPPTX(cfg.RenderDPI),
		pdfJpg:   adapter.NewPDFToJPG(cfg.RenderDPI, cfg.JPEGQuality),
		soffice:  adapter.NewSofficeConvert(cfg.SofficePath, "pdf", cfg.SofficeTimeout),
		chrome:   adapter.NewChromePrintPDF(cfg.ChromePath, cfg.ChromeTimeout),
		docxText: adapter.NewDocxTextPDF(),
		pptxText: adapter.NewPptxTextPDF(),
		xlsxText: adapter.NewXlsxTablePDF(),
		htmlText: adapter.NewHTMLToPDFText(),
	}
}

// Plan returns the ordered adapter chain for the request. An explicit mode
// is a user override: it maps to exactly one adapter with no fallback, so a
// failure is reported instead of silently substituting another method.
func (e *Engine) Plan(direction, mode string, class detect.Class) ([]adapter.Adapter, error) {
	dir, ok := Lookup(direction)
	if !ok {
		return nil, fmt.Errorf("unsupported direction %q", direction)
	}
	if !dir.HasMode(mode) {
		return nil, fmt.Errorf("invalid mode %q for %s", mode, direction)
	}

	switch direction {
	case "pdf-to-word":
		switch mode {
		case ModeFast:
			return []adapter.Adapter{e.direct}, nil
		case ModeAccurate:
			return []adapter.Adapter{e.accurate}, nil
		case ModeHybrid:
			return []adapter.Adapter{e.hybrid}, nil
		case ModeOCR:
			return []adapter.Adapter{e.ocr}, nil
		default: // auto: route on the detected class
			switch class {
			case detect.Scanned:
				return []adapter.Adapter{e.ocr, e.hybrid}, nil
			case detect.Mixed:
				return []adapter.Adapter{e.hybrid}, nil
			default:
				return []adapter.Adapter{e.direct, e.hybrid}, nil
			}
		}
	case "pdf-to-excel":
		return []adapter.Adapter{e.pdfXlsx}, nil
	case "pdf-to-powerpoint":
		return []adapter.Adapter{e.pdfPptx}, nil
	case "pdf-to-jpg":
		return []adapter.Adapter{e.pdfJpg}, nil
	case "word-to-pdf":
		return []adapter.Adapter{e.soffice, e.docxText}, nil
	case "powerpoint-to-pdf":
		return []adapter.Adapter{e.soffice, e.pptxText}, nil
	case "excel-to-pdf":
		return []adapter.Adapter{e.soffice, e.xlsxText}, nil
	case "html-to-pdf":
		return []adapter.Adapter{e.chrome, e.htmlText}, nil
	}
	return nil, fmt.Errorf("unsupported direction %q", direction)
}

// Outcome is a successful conversion: which adapter actually produced the
// output, what class the input was detected as, and adapter metadata.
type Outcome struct {
	Method   string
	Class    detect.Class
	Metadata map[string]any
}

// Convert runs the job's fallback chain against its input and output paths.
func (e *Engine) Convert(ctx context.Context, j *job.Job) (*Outcome, error) {
	var class detect.Class
	if dir, ok := Lookup(j.Direction); ok && dir.NeedsDetection && j.Mode == ModeAuto {
		class = e.detector.Detect(j.InputPath)
		slog.Info("input classified", "job_id", j.ID, "class", class)
	}

	plan, err := e.Plan(j.Direction, j.Mode, class)
	if err != nil {
		return nil, err
	}

	return runChain(ctx, j, plan, class)
}

func runChain(ctx context.Context, j *job.Job, plan []adapter.Adapter, class detect.Class) (*Outcome, error) {
	var attempts []Attempt

	for _, a := range plan {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		meta, err := a.Attempt(ctx, j.InputPath, j.OutputPath)
		if err == nil {
			err = verifyOutput(j.OutputPath)
			if err != nil {
				os.Remove(j.OutputPath)
			}
		}
		if err != nil {
			slog.Warn("conversion attempt failed",
				"job_id", j.ID, "method", a.Name(), "duration", time.Since(start), "error", err)
			attempts = append(attempts, Attempt{Method: a.Name(), Err: err})
			continue
		}

		slog.Info("conversion attempt succeeded",
			"job_id", j.ID, "method", a.Name(), "duration", time.Since(start))
		if meta == nil {
			meta = map[string]any{}
		}
		if class != "" {
			meta["detected_class"] = string(class)
		}
		return &Outcome{Method: a.Name(), Class: class, Metadata: meta}, nil
	}

	return nil, &ExhaustedError{Attempts: attempts}
}

// verifyOutput enforces the success contract: the output file must exist
// and be non-empty before an adapter's result is trusted.
func verifyOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("no output file produced: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("output file is empty")
	}
	return nil
}

// Attempt records one adapter that was tried and failed.
type Attempt struct {
	Method string
	Err    error
}

// ExhaustedError is returned when every adapter in the chain failed.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "no conversion method available"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "all %d conversion method(s) failed:", len(e.Attempts))
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, " [%s: %v]", a.Method, a.Err)
	}
	return b.String()
}

func (e *ExhaustedError) Unwrap() error {
	if len(e.Attempts) > 0 {
		return e.Attempts[len(e.Attempts)-1].Err
	}
	return nil
}
