// Package api exposes the HTTP surface: upload endpoints per conversion
// direction, status polling, artifact download and health.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/convertd/convertd/internal/config"
	"github.com/convertd/convertd/internal/job"
	"github.com/convertd/convertd/internal/queue"
	"github.com/convertd/convertd/internal/strategy"
	"github.com/convertd/convertd/internal/webhook"
)

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	store job.Store
	queue *queue.Queue
	cfg   *config.Config
}

// NewHandler constructs a Handler with the given dependencies.
func NewHandler(store job.Store, q *queue.Queue, cfg *config.Config) *Handler {
	return &Handler{store: store, queue: q, cfg: cfg}
}

// RegisterRoutes registers all API routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/convert/{direction}", h.Convert)
	mux.HandleFunc("GET /api/status/{id}", h.Status)
	mux.HandleFunc("GET /api/status/{id}/events", h.StreamEvents)
	mux.HandleFunc("GET /api/download/{id}/{filename}", h.Download)
	mux.HandleFunc("GET /api/health", h.Health)
}

// acceptedExts maps a direction's canonical source extension to every upload
// extension treated as equivalent.
var acceptedExts = map[string][]string{
	".html": {".html", ".htm"},
	".docx": {".docx"},
	".pptx": {".pptx"},
	".xlsx": {".xlsx"},
	".pdf":  {".pdf"},
}

// sniffTypes maps a source extension to the MIME types an upload may sniff
// as. OOXML files are zip containers, so a plain zip sniff is accepted for
// them; the conversion itself rejects files that are not really that format.
var sniffTypes = map[string][]string{
	".pdf":  {"application/pdf"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
	".pptx": {"application/vnd.openxmlformats-officedocument.presentationml.presentation", "application/zip"},
	".xlsx": {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "application/zip"},
	".html": {"text/html", "text/plain", "text/xml"},
}

// Convert handles POST /api/convert/{direction}. It stages the multipart
// upload, creates a pending job and enqueues it, responding 202 with the
// conversion ID and status URL.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	direction := r.PathValue("direction")
	dir, ok := strategy.Lookup(direction)
	if !ok {
		writeError(w, http.StatusNotFound,
			fmt.Sprintf("unknown conversion direction %q, see /api/health for the supported list", direction))
		return
	}

	maxBytes := h.cfg.MaxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds the %d MB limit", h.cfg.MaxUploadMB))
			return
		}
		writeError(w, http.StatusBadRequest, "expected multipart/form-data with a file field")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !extAccepted(dir.SourceExt, ext) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("%s expects a %s file, got %q", direction, dir.SourceExt, header.Filename))
		return
	}

	mode := r.FormValue("mode")
	if mode == "" {
		mode = dir.DefaultMode
	}
	if !dir.HasMode(mode) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid mode %q for %s, valid modes: %s", mode, direction, strings.Join(dir.Modes, ", ")))
		return
	}

	callbackURL := r.FormValue("callback_url")
	if callbackURL != "" {
		if err := webhook.ValidateURL(callbackURL); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid callback_url: %v", err))
			return
		}
	}

	id := uuid.New().String()
	inputPath := filepath.Join(h.cfg.UploadsDir(), id+dir.SourceExt)
	size, err := stageUpload(inputPath, file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	if size == 0 {
		os.Remove(inputPath)
		writeError(w, http.StatusBadRequest, "uploaded file is empty")
		return
	}

	if err := checkContent(inputPath, dir.SourceExt); err != nil {
		os.Remove(inputPath)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	j := &job.Job{
		ID:               id,
		Direction:        direction,
		OriginalFilename: filepath.Base(header.Filename),
		SourceFormat:     strings.TrimPrefix(dir.SourceExt, "."),
		TargetFormat:     strings.TrimPrefix(dir.TargetExt, "."),
		Mode:             mode,
		Status:           job.StatusPending,
		FileSize:         size,
		CallbackURL:      callbackURL,
		InputPath:        inputPath,
		CreatedAt:        time.Now().UTC(),
	}

	if err := h.store.Create(r.Context(), j); err != nil {
		os.Remove(inputPath)
		writeError(w, http.StatusInternalServerError, "failed to create conversion")
		return
	}

	if err := h.queue.Enqueue(id); err != nil {
		h.store.Fail(r.Context(), id, "queue full")
		os.Remove(inputPath)
		writeError(w, http.StatusServiceUnavailable, "conversion queue is full, retry later")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"success":       true,
		"conversion_id": id,
		"message":       fmt.Sprintf("%s conversion queued", direction),
		"status_url":    "/api/status/" + id,
	})
}

func extAccepted(canonical, ext string) bool {
	for _, a := range acceptedExts[canonical] {
		if a == ext {
			return true
		}
	}
	return false
}

func stageUpload(path string, src io.Reader) (int64, error) {
	dst, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer dst.Close()
	return io.Copy(dst, src)
}

// checkContent sniffs the staged file and rejects uploads whose content does
// not match the direction's source format, so a renamed .exe fails fast
// instead of wasting a worker slot.
func checkContent(path, sourceExt string) error {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("unreadable upload: %w", err)
	}
	for _, want := range sniffTypes[sourceExt] {
		if mt.Is(want) {
			return nil
		}
	}
	return fmt.Errorf("file content is %s, not a %s file", mt.String(), strings.TrimPrefix(sourceExt, "."))
}

// Status handles GET /api/status/{id}. The response shape is stable across
// the whole lifecycle; polling is idempotent.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	j, err := h.store.Get(r.Context(), id)
	if errors.Is(err, job.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversion not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load conversion")
		return
	}

	writeJSON(w, http.StatusOK, statusBody(j))
}

func statusBody(j *job.Job) map[string]any {
	body := map[string]any{
		"conversion_id": j.ID,
		"direction":     j.Direction,
		"status":        string(j.Status),
		"success":       j.Status == job.StatusCompleted,
		"mode":          j.Mode,
		"created_at":    j.CreatedAt,
	}
	if j.OutputFilename != "" {
		body["filename"] = j.OutputFilename
	}
	if j.Status == job.StatusCompleted {
		body["method"] = j.Method
		if j.Metadata != nil {
			body["metadata"] = j.Metadata
		}
		if j.OutputPath != "" {
			body["download_url"] = fmt.Sprintf("/api/download/%s/%s", j.ID, j.OutputFilename)
		} else {
			body["download_expired"] = true
		}
	}
	if j.Error != "" {
		body["error"] = j.Error
	}
	if j.CompletedAt != nil {
		body["completed_at"] = j.CompletedAt
	}
	return body
}

// downloadTypes maps artifact extensions to response content types.
var downloadTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".zip":  "application/zip",
}

// Download handles GET /api/download/{id}/{filename} and streams the
// artifact as an attachment. A completed job whose artifact has expired
// returns 404; a job that is not finished yet returns 409.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	filename := r.PathValue("filename")

	j, err := h.store.Get(r.Context(), id)
	if errors.Is(err, job.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversion not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load conversion")
		return
	}

	switch j.Status {
	case job.StatusCompleted:
	case job.StatusFailed:
		writeError(w, http.StatusConflict, "conversion failed, nothing to download")
		return
	default:
		writeError(w, http.StatusConflict, "conversion not finished yet")
		return
	}

	if filename != j.OutputFilename {
		writeError(w, http.StatusNotFound, "unknown artifact name")
		return
	}
	if j.OutputPath == "" {
		writeError(w, http.StatusNotFound, "download expired, convert the file again")
		return
	}
	if _, err := os.Stat(j.OutputPath); err != nil {
		writeError(w, http.StatusNotFound, "download expired, convert the file again")
		return
	}

	contentType := downloadTypes[strings.ToLower(filepath.Ext(filename))]
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, j.OutputPath)
}

// Health handles GET /api/health and advertises the supported directions
// and their modes.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	directions := map[string]any{}
	for _, name := range strategy.DirectionNames() {
		dir, _ := strategy.Lookup(name)
		directions[name] = map[string]any{
			"source":       strings.TrimPrefix(dir.SourceExt, "."),
			"target":       strings.TrimPrefix(dir.TargetExt, "."),
			"modes":        dir.Modes,
			"default_mode": dir.DefaultMode,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"service":    "convertd",
		"directions": directions,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}
