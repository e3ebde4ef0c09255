package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/convertd/convertd/internal/job"
)

// StreamEvents handles GET /api/status/{id}/events.
// It streams server-sent events for the conversion until it reaches a
// terminal state or the client disconnects.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

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

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Already terminal: send the result event and close immediately.
	if j.Status.IsTerminal() {
		writeSSEEvent(w, flusher, "result", statusBody(j))
		return
	}

	ch := h.queue.Subscribe(id)
	defer h.queue.Unsubscribe(id, ch)

	// Send the current status so the client has an initial state.
	writeSSEEvent(w, flusher, "status", statusBody(j))

	for {
		select {
		case event, open := <-ch:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Event, event.Data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSEEvent serialises data as JSON and writes a single SSE event frame.
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}
