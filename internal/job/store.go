package job

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no job exists for the given ID.
	ErrNotFound = errors.New("job not found")
	// ErrTerminal is returned when a terminal job is asked to transition again.
	ErrTerminal = errors.New("job already in terminal state")
)

// Store persists and retrieves conversion jobs.
type Store interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	MarkProcessing(ctx context.Context, id string) error
	// Complete records the winning adapter's artifact and moves the job to
	// completed. Returns ErrTerminal if the job already finished.
	Complete(ctx context.Context, id string, a Artifact) error
	// Fail moves the job to failed with a human-readable reason.
	Fail(ctx context.Context, id, reason string) error
	// ClearArtifact blanks the output location after the artifact file has
	// been deleted from disk. The record itself survives so status polls
	// keep resolving after expiry.
	ClearArtifact(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	// FailProcessing marks all pending/processing jobs failed and returns
	// their IDs. Called at startup: scratch files do not survive a restart,
	// so interrupted conversions cannot be resumed.
	FailProcessing(ctx context.Context) ([]string, error)
	// DeleteTerminalBefore purges terminal job records older than the cutoff.
	DeleteTerminalBefore(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
