package strategy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/convertd/convertd/internal/adapter"
	"github.com/convertd/convertd/internal/detect"
	"github.com/convertd/convertd/internal/job"
)

func testEngine() *Engine {
	return NewEngine(detect.New(detect.DefaultConfig()), Config{})
}

func planNames(t *testing.T, e *Engine, direction, mode string, class detect.Class) []string {
	t.Helper()
	plan, err := e.Plan(direction, mode, class)
	if err != nil {
		t.Fatalf("Plan(%s, %s, %s): %v", direction, mode, class, err)
	}
	names := make([]string, len(plan))
	for i, a := range plan {
		names[i] = a.Name()
	}
	return names
}

func TestPlan_AutoRoutesOnDetectedClass(t *testing.T) {
	e := testEngine()

	cases := []struct {
		class detect.Class
		want  []string
	}{
		{detect.Scanned, []string{"ocr-tesseract", "render-hybrid"}},
		{detect.Digital, []string{"direct-text", "render-hybrid"}},
		{detect.Mixed, []string{"render-hybrid"}},
	}
	for _, tc := range cases {
		got := planNames(t, e, "pdf-to-word", ModeAuto, tc.class)
		if strings.Join(got, ",") != strings.Join(tc.want, ",") {
			t.Errorf("auto plan for %s = %v, want %v", tc.class, got, tc.want)
		}
	}
}

func TestPlan_ExplicitModeHasNoFallback(t *testing.T) {
	e := testEngine()

	cases := []struct {
		mode string
		want string
	}{
		{ModeFast, "direct-text"},
		{ModeAccurate, "mupdf-text"},
		{ModeHybrid, "render-hybrid"},
		{ModeOCR, "ocr-tesseract"},
	}
	for _, tc := range cases {
		got := planNames(t, e, "pdf-to-word", tc.mode, "")
		if len(got) != 1 || got[0] != tc.want {
			t.Errorf("plan for mode %s = %v, want exactly [%s]", tc.mode, got, tc.want)
		}
	}
}

func TestPlan_OfficeDirectionsFallBackToLibrary(t *testing.T) {
	e := testEngine()

	cases := []struct {
		direction string
		want      []string
	}{
		{"word-to-pdf", []string{"libreoffice-headless", "text-layout"}},
		{"powerpoint-to-pdf", []string{"libreoffice-headless", "text-layout"}},
		{"excel-to-pdf", []string{"libreoffice-headless", "text-layout"}},
		{"html-to-pdf", []string{"chrome-headless", "text-layout"}},
		{"pdf-to-excel", []string{"text-table"}},
		{"pdf-to-powerpoint", []string{"render-slides"}},
		{"pdf-to-jpg", []string{"mupdf-render"}},
	}
	for _, tc := range cases {
		got := planNames(t, e, tc.direction, ModeStandard, "")
		if strings.Join(got, ",") != strings.Join(tc.want, ",") {
			t.Errorf("plan for %s = %v, want %v", tc.direction, got, tc.want)
		}
	}
}

func TestPlan_IsDeterministic(t *testing.T) {
	e := testEngine()
	first := planNames(t, e, "pdf-to-word", ModeAuto, detect.Scanned)
	for i := 0; i < 10; i++ {
		again := planNames(t, e, "pdf-to-word", ModeAuto, detect.Scanned)
		if strings.Join(first, ",") != strings.Join(again, ",") {
			t.Fatalf("plan changed between calls: %v vs %v", first, again)
		}
	}
}

func TestPlan_Rejections(t *testing.T) {
	e := testEngine()
	if _, err := e.Plan("pdf-to-nothing", ModeAuto, ""); err == nil {
		t.Error("unknown direction accepted")
	}
	if _, err := e.Plan("pdf-to-word", "turbo", ""); err == nil {
		t.Error("unknown mode accepted")
	}
	if _, err := e.Plan("word-to-pdf", ModeOCR, ""); err == nil {
		t.Error("mode from another direction accepted")
	}
}

// fakeAdapter lets chain tests script each attempt's behavior.
type fakeAdapter struct {
	name string
	fn   func(outputPath string) error
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Attempt(_ context.Context, _, outputPath string) (map[string]any, error) {
	if err := f.fn(outputPath); err != nil {
		return nil, err
	}
	return map[string]any{"source": f.name}, nil
}

func chainJob(t *testing.T) *job.Job {
	t.Helper()
	return &job.Job{
		ID:         "j1",
		Direction:  "pdf-to-word",
		Mode:       ModeAuto,
		OutputPath: filepath.Join(t.TempDir(), "out.docx"),
	}
}

func writeOutput(path string) error {
	return os.WriteFile(path, []byte("converted"), 0o644)
}

func TestRunChain_FirstVerifiedSuccessWins(t *testing.T) {
	j := chainJob(t)
	second := false
	plan := []adapter.Adapter{
		&fakeAdapter{name: "winner", fn: writeOutput},
		&fakeAdapter{name: "never", fn: func(string) error { second = true; return nil }},
	}

	outcome, err := runChain(context.Background(), j, plan, detect.Digital)
	if err != nil {
		t.Fatalf("runChain: %v", err)
	}
	if outcome.Method != "winner" {
		t.Errorf("method = %q, want winner", outcome.Method)
	}
	if outcome.Metadata["detected_class"] != "digital" {
		t.Errorf("detected_class missing from metadata: %v", outcome.Metadata)
	}
	if second {
		t.Error("later adapter ran after a verified success")
	}
}

func TestRunChain_EmptyOutputIsFailure(t *testing.T) {
	j := chainJob(t)
	plan := []adapter.Adapter{
		&fakeAdapter{name: "liar", fn: func(path string) error {
			f, err := os.Create(path) // zero bytes
			if err != nil {
				return err
			}
			return f.Close()
		}},
		&fakeAdapter{name: "honest", fn: writeOutput},
	}

	outcome, err := runChain(context.Background(), j, plan, "")
	if err != nil {
		t.Fatalf("runChain: %v", err)
	}
	if outcome.Method != "honest" {
		t.Errorf("method = %q, want the fallback after the empty output", outcome.Method)
	}
}

func TestRunChain_ExhaustionAggregatesAttempts(t *testing.T) {
	j := chainJob(t)
	plan := []adapter.Adapter{
		&fakeAdapter{name: "first", fn: func(string) error { return fmt.Errorf("engine missing") }},
		&fakeAdapter{name: "second", fn: func(string) error { return fmt.Errorf("parse error") }},
	}

	_, err := runChain(context.Background(), j, plan, "")
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v, want ExhaustedError", err)
	}
	if len(exhausted.Attempts) != 2 {
		t.Fatalf("recorded %d attempts, want 2", len(exhausted.Attempts))
	}
	msg := err.Error()
	for _, want := range []string{"first", "engine missing", "second", "parse error"} {
		if !strings.Contains(msg, want) {
			t.Errorf("aggregate message %q missing %q", msg, want)
		}
	}
}

func TestRunChain_CancelledContextStops(t *testing.T) {
	j := chainJob(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	plan := []adapter.Adapter{
		&fakeAdapter{name: "never", fn: func(string) error { ran = true; return nil }},
	}
	if _, err := runChain(ctx, j, plan, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if ran {
		t.Error("adapter ran after cancellation")
	}
}

func TestConvert_DetectsOnlyInAutoMode(t *testing.T) {
	e := testEngine()
	// A fast-mode job never touches the detector, so a bogus input path must
	// not matter for planning; the conversion itself fails on the missing
	// file, which is the point.
	j := &job.Job{
		ID:         "j2",
		Direction:  "pdf-to-word",
		Mode:       ModeFast,
		InputPath:  filepath.Join(t.TempDir(), "absent.pdf"),
		OutputPath: filepath.Join(t.TempDir(), "out.docx"),
	}
	_, err := e.Convert(context.Background(), j)
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v, want ExhaustedError from the single fast attempt", err)
	}
	if len(exhausted.Attempts) != 1 || exhausted.Attempts[0].Method != "direct-text" {
		t.Errorf("attempts = %+v, want one direct-text failure", exhausted.Attempts)
	}
}
