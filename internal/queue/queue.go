// Package queue owns the async conversion pipeline: a buffered job channel,
// a fixed pool of workers, per-job event subscriptions and the artifact
// retention timers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/convertd/convertd/internal/config"
	"github.com/convertd/convertd/internal/job"
	"github.com/convertd/convertd/internal/strategy"
	"github.com/convertd/convertd/internal/webhook"
)

// Event is a Server-Sent Events event for a job's status stream.
type Event struct {
	Event string // "status" or "result"
	Data  string // JSON string
}

// Engine converts a job's input file into its output file.
type Engine interface {
	Convert(ctx context.Context, j *job.Job) (*strategy.Outcome, error)
}

// Queue manages the job queue and workers.
type Queue struct {
	jobs   chan string
	store  job.Store
	engine Engine
	subs   map[string][]chan Event
	mu     sync.RWMutex
	cfg    *config.Config
}

// New creates a new Queue.
func New(cfg *config.Config, store job.Store, engine Engine) *Queue {
	return &Queue{
		jobs:   make(chan string, cfg.QueueSize),
		store:  store,
		engine: engine,
		subs:   make(map[string][]chan Event),
		cfg:    cfg,
	}
}

// Enqueue adds a job ID to the queue. Returns an error if the queue is full.
func (q *Queue) Enqueue(jobID string) error {
	select {
	case q.jobs <- jobID:
		return nil
	default:
		return fmt.Errorf("queue full: cannot enqueue job %s", jobID)
	}
}

// Start launches cfg.Concurrency workers as goroutines.
func (q *Queue) Start(ctx context.Context) {
	for range q.cfg.Concurrency {
		go q.runWorker(ctx)
	}
}

// StartCleanup launches the janitor that purges terminal job records older
// than cfg.JobTTL.
func (q *Queue) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(q.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-q.cfg.JobTTL)
				n, err := q.store.DeleteTerminalBefore(ctx, cutoff)
				if err != nil {
					slog.Error("cleanup: purge old jobs", "error", err)
				} else if n > 0 {
					slog.Info("cleanup: purged old jobs", "count", n)
				}
			}
		}
	}()
}

// Recover fails every job left pending or processing by a previous run.
// Uploaded scratch files do not survive a restart, so interrupted
// conversions cannot be resumed.
func (q *Queue) Recover(ctx context.Context) error {
	ids, err := q.store.FailProcessing(ctx)
	if err != nil {
		return fmt.Errorf("fail interrupted jobs: %w", err)
	}
	if len(ids) > 0 {
		slog.Warn("failed interrupted conversions from previous run", "count", len(ids))
	}
	return nil
}

// Subscribe creates a buffered event channel for a job and returns it.
func (q *Queue) Subscribe(jobID string) chan Event {
	ch := make(chan Event, 16)
	q.mu.Lock()
	q.subs[jobID] = append(q.subs[jobID], ch)
	q.mu.Unlock()
	return ch
}

// Unsubscribe removes an event channel from the map.
func (q *Queue) Unsubscribe(jobID string, ch chan Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	chans := q.subs[jobID]
	for i, c := range chans {
		if c == ch {
			q.subs[jobID] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(q.subs[jobID]) == 0 {
		delete(q.subs, jobID)
	}
}

// runWorker is a worker loop: dequeues jobs and processes them.
func (q *Queue) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-q.jobs:
			q.processJob(ctx, jobID)
		}
	}
}

func (q *Queue) processJob(ctx context.Context, jobID string) {
	// A panicking adapter must never leave a job stuck in processing.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker: conversion panicked", "job_id", jobID, "panic", r)
			q.fail(ctx, jobID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	j, err := q.store.Get(ctx, jobID)
	if err != nil {
		slog.Error("worker: load job", "job_id", jobID, "error", err)
		return
	}

	// The staged upload is scratch space; it goes away with the job.
	defer os.Remove(j.InputPath)

	if err := q.store.MarkProcessing(ctx, jobID); err != nil {
		slog.Error("worker: mark processing", "job_id", jobID, "error", err)
		return
	}
	q.notify(jobID, Event{Event: "status", Data: `{"status":"processing"}`})

	dir, ok := strategy.Lookup(j.Direction)
	if !ok {
		q.fail(ctx, jobID, fmt.Sprintf("unsupported direction %q", j.Direction))
		return
	}
	j.OutputPath = filepath.Join(q.cfg.OutputsDir(), jobID+dir.TargetExt)
	j.OutputFilename = outputFilename(j.OriginalFilename, dir.TargetExt)

	outcome, err := q.engine.Convert(ctx, j)
	if err != nil {
		q.fail(ctx, jobID, err.Error())
		q.dispatchWebhook(ctx, j, job.StatusFailed, err.Error())
		return
	}

	info, statErr := os.Stat(j.OutputPath)
	if statErr != nil {
		q.fail(ctx, jobID, fmt.Sprintf("output file vanished: %v", statErr))
		q.dispatchWebhook(ctx, j, job.StatusFailed, statErr.Error())
		return
	}

	artifact := job.Artifact{
		Method:   outcome.Method,
		Path:     j.OutputPath,
		Filename: j.OutputFilename,
		Size:     info.Size(),
		Metadata: outcome.Metadata,
	}
	if err := q.store.Complete(ctx, jobID, artifact); err != nil {
		slog.Error("worker: complete job", "job_id", jobID, "error", err)
		os.Remove(j.OutputPath)
		return
	}

	q.scheduleArtifactExpiry(jobID, j.OutputPath)

	data, _ := json.Marshal(map[string]any{
		"status":   string(job.StatusCompleted),
		"filename": j.OutputFilename,
		"method":   outcome.Method,
	})
	q.notifyAndClose(jobID, Event{Event: "result", Data: string(data)})
	q.dispatchWebhook(ctx, j, job.StatusCompleted, "")
}

func (q *Queue) fail(ctx context.Context, jobID, reason string) {
	if err := q.store.Fail(ctx, jobID, reason); err != nil {
		slog.Error("worker: fail job", "job_id", jobID, "error", err)
	}
	data, _ := json.Marshal(map[string]any{
		"status": string(job.StatusFailed),
		"error":  reason,
	})
	q.notifyAndClose(jobID, Event{Event: "result", Data: string(data)})
}

// scheduleArtifactExpiry removes the output file after the retention window
// and blanks the record's output location. The record survives so status
// polls keep resolving; downloads after expiry get a clear 404.
func (q *Queue) scheduleArtifactExpiry(jobID, outputPath string) {
	if q.cfg.ArtifactTTL <= 0 {
		return
	}
	time.AfterFunc(q.cfg.ArtifactTTL, func() {
		if err := os.Remove(outputPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("artifact expiry: remove file", "job_id", jobID, "error", err)
		}
		if err := q.store.ClearArtifact(context.Background(), jobID); err != nil {
			slog.Warn("artifact expiry: clear record", "job_id", jobID, "error", err)
		}
	})
}

func (q *Queue) dispatchWebhook(ctx context.Context, j *job.Job, status job.Status, errMsg string) {
	if j.CallbackURL == "" {
		return
	}
	payload := map[string]any{
		"conversion_id": j.ID,
		"status":        string(status),
	}
	if status == job.StatusCompleted {
		payload["filename"] = j.OutputFilename
		payload["download_url"] = fmt.Sprintf("/api/download/%s/%s", j.ID, j.OutputFilename)
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	data, _ := json.Marshal(payload)
	webhook.Send(context.WithoutCancel(ctx), j.CallbackURL, data)
}

// outputFilename derives the user-facing download name from the uploaded
// name, e.g. report.pdf converted to docx becomes report_converted.docx.
func outputFilename(original, targetExt string) string {
	stem := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	if stem == "" || stem == "." {
		stem = "output"
	}
	return stem + "_converted" + targetExt
}

// notify sends an event to all subscribers of a job without blocking.
func (q *Queue) notify(jobID string, event Event) {
	q.mu.RLock()
	chans := q.subs[jobID]
	q.mu.RUnlock()

	for _, ch := range chans {
		select {
		case ch <- event:
		default:
		}
	}
}

// notifyAndClose sends the final event and closes all channels for the job.
func (q *Queue) notifyAndClose(jobID string, event Event) {
	q.mu.Lock()
	chans := q.subs[jobID]
	delete(q.subs, jobID)
	q.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- event:
		default:
		}
		close(ch)
	}
}
