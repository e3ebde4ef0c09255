package adapter

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
)

// ChromePrintPDF renders an HTML file to PDF with a headless browser
// engine's print-to-pdf mode. The binary candidate list covers the usual
// Chromium and Chrome install names.
type ChromePrintPDF struct {
	binary  string
	timeout time.Duration
}

func NewChromePrintPDF(binary string, timeout time.Duration) *ChromePrintPDF {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChromePrintPDF{binary: binary, timeout: timeout}
}

func (a *ChromePrintPDF) Name() string { return "chrome-headless" }

func (a *ChromePrintPDF) Attempt(ctx context.Context, inputPath, outputPath string) (map[string]any, error) {
	return contain(outputPath, func() (map[string]any, error) {
		bin, err := lookBinary(a.binary, "chromium", "chromium-browser", "google-chrome", "google-chrome-stable")
		if err != nil {
			return nil, fmt.Errorf("browser engine not available: %w", err)
		}

		abs, err := filepath.Abs(inputPath)
		if err != nil {
			return nil, fmt.Errorf("resolve input path: %w", err)
		}

		if _, err := runCommand(ctx, a.timeout, bin,
			"--headless",
			"--disable-gpu",
			"--no-sandbox",
			"--no-pdf-header-footer",
			"--print-to-pdf="+outputPath,
			"file://"+abs,
		); err != nil {
			return nil, err
		}
		return map[string]any{"engine": filepath.Base(bin)}, nil
	})
}
