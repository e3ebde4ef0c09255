package strategy

import "sort"

// Direction describes one supported conversion pair.
type Direction struct {
	Name        string
	SourceExt   string
	TargetExt   string
	DefaultMode string
	Modes       []string
	// NeedsDetection marks directions whose "auto" mode routes on the
	// detected PDF class.
	NeedsDetection bool
}

// HasMode reports whether mode is valid for this direction.
func (d Direction) HasMode(mode string) bool {
	for _, m := range d.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// ModeStandard is the single mode of directions with one fixed chain.
const ModeStandard = "standard"

// PDF to Word modes.
const (
	ModeAuto     = "auto"
	ModeFast     = "fast"
	ModeAccurate = "accurate"
	ModeHybrid   = "hybrid"
	ModeOCR      = "ocr"
)

var directions = map[string]Direction{
	"pdf-to-word": {
		Name:           "pdf-to-word",
		SourceExt:      ".pdf",
		TargetExt:      ".docx",
		DefaultMode:    ModeAuto,
		Modes:          []string{ModeAuto, ModeFast, ModeAccurate, ModeHybrid, ModeOCR},
		NeedsDetection: true,
	},
	"pdf-to-excel": {
		Name:        "pdf-to-excel",
		SourceExt:   ".pdf",
		TargetExt:   ".xlsx",
		DefaultMode: ModeStandard,
		Modes:       []string{ModeStandard},
	},
	"pdf-to-powerpoint": {
		Name:        "pdf-to-powerpoint",
		SourceExt:   ".pdf",
		TargetExt:   ".pptx",
		DefaultMode: ModeStandard,
		Modes:       []string{ModeStandard},
	},
	"pdf-to-jpg": {
		Name:        "pdf-to-jpg",
		SourceExt:   ".pdf",
		TargetExt:   ".zip",
		DefaultMode: ModeStandard,
		Modes:       []string{ModeStandard},
	},
	"word-to-pdf": {
		Name:        "word-to-pdf",
		SourceExt:   ".docx",
		TargetExt:   ".pdf",
		DefaultMode: ModeStandard,
		Modes:       []string{ModeStandard},
	},
	"powerpoint-to-pdf": {
		Name:        "powerpoint-to-pdf",
		SourceExt:   ".pptx",
		TargetExt:   ".pdf",
		DefaultMode: ModeStandard,
		Modes:       []string{ModeStandard},
	},
	"excel-to-pdf": {
		Name:        "excel-to-pdf",
		SourceExt:   ".xlsx",
		TargetExt:   ".pdf",
		DefaultMode: ModeStandard,
		Modes:       []string{ModeStandard},
	},
	"html-to-pdf": {
		Name:        "html-to-pdf",
		SourceExt:   ".html",
		TargetExt:   ".pdf",
		DefaultMode: ModeStandard,
		Modes:       []string{ModeStandard},
	},
}

// Lookup resolves a direction by its URL name.
func Lookup(name string) (Direction, bool) {
	d, ok := directions[name]
	return d, ok
}

// DirectionNames returns the supported direction names, sorted, for the
// health endpoint's capability listing.
func DirectionNames() []string {
	names := make([]string, 0, len(directions))
	for name := range directions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
