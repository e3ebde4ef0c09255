// Package detect classifies PDF inputs as digital, scanned or mixed so the
// conversion strategy can route them to the best-fit adapter. The heuristic
// is a routing hint, not a correctness-critical computation.
package detect

import (
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Class is a coarse classification of a PDF input.
type Class string

const (
	// Digital PDFs carry a real text layer; direct transcoding works best.
	Digital Class = "digital"
	// Scanned PDFs are page images with little or no extractable text.
	Scanned Class = "scanned"
	// Mixed PDFs sit between the two thresholds.
	Mixed Class = "mixed"
)

// Config holds the sampling and threshold knobs. The numbers come from
// observed behavior on typical document corpora and may need calibration.
type Config struct {
	// SamplePages is the number of leading pages inspected.
	SamplePages int
	// ScannedTextMax: at or below this many extracted characters, a document
	// with at least one embedded image is considered scanned.
	ScannedTextMax int
	// DigitalTextMin: above this many extracted characters the document is
	// considered digital.
	DigitalTextMin int
}

// DefaultConfig mirrors the thresholds the service has always shipped with.
func DefaultConfig() Config {
	return Config{SamplePages: 3, ScannedTextMax: 100, DigitalTextMin: 500}
}

// Detector inspects PDF files.
type Detector struct {
	cfg Config
}

// New creates a Detector. Zero or negative config fields fall back to defaults.
func New(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.SamplePages <= 0 {
		cfg.SamplePages = def.SamplePages
	}
	if cfg.ScannedTextMax <= 0 {
		cfg.ScannedTextMax = def.ScannedTextMax
	}
	if cfg.DigitalTextMin <= 0 {
		cfg.DigitalTextMin = def.DigitalTextMin
	}
	return &Detector{cfg: cfg}
}

// Detect samples the first pages of the PDF at path and classifies it.
// Corrupt, encrypted or zero-page documents classify as Digital: the safer
// assumption that preserves the most common conversion path.
func (d *Detector) Detect(path string) Class {
	chars, images, ok := d.sample(path)
	if !ok {
		return Digital
	}

	switch {
	case chars < d.cfg.ScannedTextMax && images > 0:
		return Scanned
	case chars < d.cfg.ScannedTextMax:
		// No text and no images is inconclusive; fail soft.
		return Digital
	case chars > d.cfg.DigitalTextMin:
		return Digital
	default:
		return Mixed
	}
}

// sample extracts text length and embedded-image count over the sampled
// pages. The pdf library panics on some malformed files, so the whole walk
// is fenced with a recover.
func (d *Detector) sample(path string) (chars, images int, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("pdf type detection panicked", "path", path, "panic", r)
			chars, images, ok = 0, 0, false
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		slog.Warn("pdf type detection failed", "path", path, "error", err)
		return 0, 0, false
	}
	defer f.Close()

	total := r.NumPage()
	if total == 0 {
		return 0, 0, false
	}

	pages := d.cfg.SamplePages
	if total < pages {
		pages = total
	}

	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		if text, err := p.GetPlainText(nil); err == nil {
			chars += len(strings.TrimSpace(text))
		}
		images += countPageImages(p)
	}
	return chars, images, true
}

// countPageImages counts image XObjects in the page's resource dictionary.
func countPageImages(p pdf.Page) int {
	xobj := p.V.Key("Resources").Key("XObject")
	if xobj.Kind() != pdf.Dict {
		return 0
	}
	n := 0
	for _, key := range xobj.Keys() {
		if xobj.Key(key).Key("Subtype").Name() == "Image" {
			n++
		}
	}
	return n
}
