package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/convertd/convertd/internal/config"
	"github.com/convertd/convertd/internal/job"
	"github.com/convertd/convertd/internal/queue"
	"github.com/convertd/convertd/internal/strategy"
)

type stubEngine struct {
	delay  time.Duration
	fail   bool
	output []byte
}

func (s *stubEngine) Convert(ctx context.Context, j *job.Job) (*strategy.Outcome, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.fail {
		return nil, &strategy.ExhaustedError{Attempts: []strategy.Attempt{
			{Method: "direct-text", Err: io.ErrUnexpectedEOF},
		}}
	}
	out := s.output
	if out == nil {
		out = []byte("converted bytes")
	}
	if err := os.WriteFile(j.OutputPath, out, 0o644); err != nil {
		return nil, err
	}
	return &strategy.Outcome{Method: "direct-text", Metadata: map[string]any{"page_count": 1}}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		WorkDir:         t.TempDir(),
		Concurrency:     1,
		QueueSize:       16,
		MaxUploadMB:     1,
		ArtifactTTL:     time.Hour,
		JobTTL:          24 * time.Hour,
		CleanupInterval: time.Hour,
	}
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func newTestServer(t *testing.T, engine queue.Engine) (*httptest.Server, job.Store) {
	t.Helper()

	cfg := testConfig(t)
	store := job.NewMemoryStore()
	q := queue.New(cfg, store, engine)

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	mux := http.NewServeMux()
	NewHandler(store, q, cfg).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, store
}

// uploadBody builds a multipart form with the given file and extra fields.
func uploadBody(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(content)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func postUpload(t *testing.T, srv *httptest.Server, direction, filename string, content []byte, fields map[string]string) *http.Response {
	t.Helper()
	body, contentType := uploadBody(t, filename, content, fields)
	resp, err := http.Post(srv.URL+"/api/convert/"+direction, contentType, body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return m
}

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF")

func pollStatus(t *testing.T, srv *httptest.Server, id string, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(srv.URL + "/api/status/" + id)
		if err != nil {
			t.Fatalf("GET status: %v", err)
		}
		body := decodeBody(t, resp)
		if body["status"] == want {
			return body
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %q", id, want)
	return nil
}

func TestConvert_AcceptsUploadAndCompletes(t *testing.T) {
	srv, _ := newTestServer(t, &stubEngine{})

	resp := postUpload(t, srv, "pdf-to-word", "report.pdf", pdfBytes, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	id, _ := body["conversion_id"].(string)
	if id == "" {
		t.Fatal("missing conversion_id")
	}
	if body["status_url"] != "/api/status/"+id {
		t.Errorf("status_url = %v", body["status_url"])
	}

	final := pollStatus(t, srv, id, "completed")
	if final["success"] != true || final["method"] != "direct-text" {
		t.Errorf("final status body: %v", final)
	}
	if final["filename"] != "report_converted.docx" {
		t.Errorf("filename = %v", final["filename"])
	}
	if _, ok := final["download_url"].(string); !ok {
		t.Errorf("download_url missing: %v", final)
	}
}

func TestConvert_StatusPollIsIdempotent(t *testing.T) {
	srv, _ := newTestServer(t, &stubEngine{})

	resp := postUpload(t, srv, "pdf-to-word", "report.pdf", pdfBytes, nil)
	id := decodeBody(t, resp)["conversion_id"].(string)
	first := pollStatus(t, srv, id, "completed")

	for i := 0; i < 3; i++ {
		again := pollStatus(t, srv, id, "completed")
		if again["status"] != first["status"] || again["filename"] != first["filename"] {
			t.Fatalf("status response changed between polls: %v vs %v", first, again)
		}
	}
}

func TestDownload_ServesArtifact(t *testing.T) {
	srv, _ := newTestServer(t, &stubEngine{output: []byte("the converted document")})

	resp := postUpload(t, srv, "pdf-to-word", "report.pdf", pdfBytes, nil)
	id := decodeBody(t, resp)["conversion_id"].(string)
	final := pollStatus(t, srv, id, "completed")

	dl, err := http.Get(srv.URL + final["download_url"].(string))
	if err != nil {
		t.Fatalf("GET download: %v", err)
	}
	defer dl.Body.Close()

	if dl.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", dl.StatusCode)
	}
	if ct := dl.Header.Get("Content-Type"); !strings.Contains(ct, "wordprocessingml") {
		t.Errorf("content type = %q", ct)
	}
	if cd := dl.Header.Get("Content-Disposition"); !strings.Contains(cd, "report_converted.docx") {
		t.Errorf("content disposition = %q", cd)
	}
	data, _ := io.ReadAll(dl.Body)
	if string(data) != "the converted document" {
		t.Errorf("downloaded %q", data)
	}
}

func TestDownload_NotReadyIs409(t *testing.T) {
	srv, _ := newTestServer(t, &stubEngine{delay: 2 * time.Second})

	resp := postUpload(t, srv, "pdf-to-word", "report.pdf", pdfBytes, nil)
	id := decodeBody(t, resp)["conversion_id"].(string)

	dl, err := http.Get(srv.URL + "/api/download/" + id + "/anything.docx")
	if err != nil {
		t.Fatal(err)
	}
	defer dl.Body.Close()
	if dl.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", dl.StatusCode)
	}
}

func TestDownload_ExpiredArtifactIs404(t *testing.T) {
	srv, store := newTestServer(t, &stubEngine{})

	resp := postUpload(t, srv, "pdf-to-word", "report.pdf", pdfBytes, nil)
	id := decodeBody(t, resp)["conversion_id"].(string)
	final := pollStatus(t, srv, id, "completed")

	// Simulate the TTL janitor having removed the artifact.
	j, _ := store.Get(context.Background(), id)
	os.Remove(j.OutputPath)
	store.ClearArtifact(context.Background(), id)

	dl, err := http.Get(srv.URL + final["download_url"].(string))
	if err != nil {
		t.Fatal(err)
	}
	defer dl.Body.Close()
	if dl.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 after expiry", dl.StatusCode)
	}

	// Status keeps resolving after the artifact is gone.
	again := pollStatus(t, srv, id, "completed")
	if again["download_expired"] != true {
		t.Errorf("status body missing expiry marker: %v", again)
	}
}

func TestConvert_FailedJobSurfacesError(t *testing.T) {
	srv, _ := newTestServer(t, &stubEngine{fail: true})

	resp := postUpload(t, srv, "pdf-to-word", "report.pdf", pdfBytes, nil)
	id := decodeBody(t, resp)["conversion_id"].(string)

	final := pollStatus(t, srv, id, "failed")
	if final["success"] != false {
		t.Errorf("success = %v on failed job", final["success"])
	}
	if msg, _ := final["error"].(string); !strings.Contains(msg, "direct-text") {
		t.Errorf("error = %q, want the per-method detail", msg)
	}
}

func TestConvert_Rejections(t *testing.T) {
	srv, _ := newTestServer(t, &stubEngine{})

	t.Run("unknown direction", func(t *testing.T) {
		resp := postUpload(t, srv, "pdf-to-nothing", "a.pdf", pdfBytes, nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("wrong extension", func(t *testing.T) {
		resp := postUpload(t, srv, "pdf-to-word", "a.txt", pdfBytes, nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("invalid mode", func(t *testing.T) {
		resp := postUpload(t, srv, "pdf-to-word", "a.pdf", pdfBytes, map[string]string{"mode": "turbo"})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("mode from another direction", func(t *testing.T) {
		resp := postUpload(t, srv, "word-to-pdf", "a.docx", []byte("PK\x03\x04fake"), map[string]string{"mode": "ocr"})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		resp := postUpload(t, srv, "pdf-to-word", "a.pdf", nil, nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("content does not match extension", func(t *testing.T) {
		resp := postUpload(t, srv, "pdf-to-word", "a.pdf", []byte("just plain text"), nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("invalid callback url", func(t *testing.T) {
		resp := postUpload(t, srv, "pdf-to-word", "a.pdf", pdfBytes,
			map[string]string{"callback_url": "http://127.0.0.1/hook"})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("oversize upload", func(t *testing.T) {
		big := append([]byte("%PDF-1.4 "), bytes.Repeat([]byte("a"), (1<<20)+(64<<10))...)
		resp := postUpload(t, srv, "pdf-to-word", "a.pdf", big, nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", resp.StatusCode)
		}
	})
}

func TestStatus_UnknownIs404(t *testing.T) {
	srv, _ := newTestServer(t, &stubEngine{})
	resp, err := http.Get(srv.URL + "/api/status/does-not-exist")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHealth_AdvertisesDirections(t *testing.T) {
	srv, _ := newTestServer(t, &stubEngine{})

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	body := decodeBody(t, resp)
	if body["status"] != "ok" || body["service"] != "convertd" {
		t.Errorf("health body: %v", body)
	}
	directions, _ := body["directions"].(map[string]any)
	if len(directions) != 8 {
		t.Fatalf("advertised %d directions, want 8", len(directions))
	}
	p2w, _ := directions["pdf-to-word"].(map[string]any)
	modes, _ := p2w["modes"].([]any)
	if len(modes) != 5 {
		t.Errorf("pdf-to-word modes = %v", modes)
	}
}

func TestStreamEvents_TerminalJobClosesImmediately(t *testing.T) {
	srv, _ := newTestServer(t, &stubEngine{})

	resp := postUpload(t, srv, "pdf-to-word", "report.pdf", pdfBytes, nil)
	id := decodeBody(t, resp)["conversion_id"].(string)
	pollStatus(t, srv, id, "completed")

	es, err := http.Get(srv.URL + "/api/status/" + id + "/events")
	if err != nil {
		t.Fatal(err)
	}
	defer es.Body.Close()

	if ct := es.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	data, _ := io.ReadAll(es.Body)
	if !strings.Contains(string(data), "event: result") {
		t.Errorf("stream = %q, want a result event", data)
	}
}
