package job

import (
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal returns true for statuses that represent a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one conversion request tracked by an opaque identifier.
// A job is created as pending, marked processing by the worker that picks it
// up, and transitions exactly once to completed or failed.
type Job struct {
	ID               string         `json:"conversion_id"`
	Direction        string         `json:"direction"`
	OriginalFilename string         `json:"original_filename"`
	SourceFormat     string         `json:"source_format"`
	TargetFormat     string         `json:"target_format"`
	Mode             string         `json:"mode"`
	Status           Status         `json:"status"`
	Method           string         `json:"method,omitempty"`
	OutputFilename   string         `json:"filename,omitempty"`
	FileSize         int64          `json:"file_size,omitempty"`
	Error            string         `json:"error,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CallbackURL      string         `json:"callback_url,omitempty"`

	// Filesystem locations are never exposed to API clients.
	InputPath  string `json:"-"`
	OutputPath string `json:"-"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Artifact describes the output of a successful conversion.
type Artifact struct {
	Method   string
	Path     string
	Filename string
	Size     int64
	Metadata map[string]any
}

// Clone returns a deep copy so callers never observe concurrent mutation of
// a record held by the store.
func (j *Job) Clone() *Job {
	c := *j
	if j.Metadata != nil {
		c.Metadata = make(map[string]any, len(j.Metadata))
		for k, v := range j.Metadata {
			c.Metadata[k] = v
		}
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
