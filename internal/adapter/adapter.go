// Package adapter wraps each external conversion capability behind a
// uniform contract: given an input path and an output path, an adapter
// either produces a complete output file or reports why it could not.
// Failures never escape as panics, and a failed attempt never leaves a
// partially written file behind for the next adapter to trip over.
package adapter

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Adapter is one backend in a conversion fallback chain.
type Adapter interface {
	// Name is the method label reported to callers when this adapter
	// produced the output.
	Name() string

	// Attempt converts inputPath into outputPath. A nil error means the
	// adapter believes it wrote a complete output file; the caller still
	// verifies the file before declaring success. A non-nil error means
	// "try the next adapter", never a crash.
	Attempt(ctx context.Context, inputPath, outputPath string) (map[string]any, error)
}

// contain runs fn with panic containment and removes whatever ended up at
// outputPath when fn fails. Third-party document parsers panic on hostile
// input often enough that every adapter body runs inside this fence.
func contain(outputPath string, fn func() (map[string]any, error)) (meta map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			meta = nil
			err = fmt.Errorf("conversion backend panicked: %v", r)
		}
		if err != nil {
			os.Remove(outputPath)
		}
	}()
	return fn()
}

var (
	reTrailingWS      = regexp.MustCompile(`[ \t]+\n`)
	reManyNewlines    = regexp.MustCompile(`\n{3,}`)
	reCarriageReturns = regexp.MustCompile(`\r\n?`)
)

// normalizeText cleans extracted or recognized text before it is written
// into a target document: valid UTF-8, LF line endings, no control
// characters, at most one blank line in a row.
func normalizeText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	s = reCarriageReturns.ReplaceAllString(s, "\n")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	s = reTrailingWS.ReplaceAllString(s, "\n")
	s = reManyNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// splitLines breaks normalized text into non-empty lines.
func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimRight(line, " \t")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
