package adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SofficeConvert delegates to a headless LibreOffice process:
//
//	soffice --headless --convert-to <fmt> --outdir <dir> <input>
//
// LibreOffice names the output after the input's stem inside outdir, so the
// produced file is relocated to the requested outputPath afterwards.
type SofficeConvert struct {
	binary    string
	targetFmt string
	timeout   time.Duration
}

// NewSofficeConvert builds an adapter converting to targetFmt (e.g. "pdf").
// binary may be empty; common LibreOffice binary names are probed at attempt
// time so a missing install is a failed attempt, not a construction error.
func NewSofficeConvert(binary, targetFmt string, timeout time.Duration) *SofficeConvert {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &SofficeConvert{binary: binary, targetFmt: targetFmt, timeout: timeout}
}

func (a *SofficeConvert) Name() string { return "libreoffice-headless" }

func (a *SofficeConvert) Attempt(ctx context.Context, inputPath, outputPath string) (map[string]any, error) {
	return contain(outputPath, func() (map[string]any, error) {
		bin, err := lookBinary(a.binary, "soffice", "libreoffice")
		if err != nil {
			return nil, fmt.Errorf("libreoffice not available: %w", err)
		}

		outDir := filepath.Dir(outputPath)
		if _, err := runCommand(ctx, a.timeout, bin,
			"--headless", "--convert-to", a.targetFmt, "--outdir", outDir, inputPath); err != nil {
			return nil, err
		}

		// soffice writes <input stem>.<fmt> into outDir.
		stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
		produced := filepath.Join(outDir, stem+"."+a.targetFmt)
		if produced != outputPath {
			if err := os.Rename(produced, outputPath); err != nil {
				return nil, fmt.Errorf("relocate soffice output: %w", err)
			}
		}
		return map[string]any{"engine": filepath.Base(bin)}, nil
	})
}
