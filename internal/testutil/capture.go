package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

// CapturedRequest is one request received by a CaptureServer. Body is
// already gunzipped.
type CapturedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
	At     time.Time
}

// JSONArray decodes the body as a JSON array of objects.
func (r CapturedRequest) JSONArray(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	if err := json.Unmarshal(r.Body, &out); err != nil {
		t.Fatalf("body is not a JSON array: %v: %s", err, r.Body)
	}
	return out
}

// JSONObject decodes the body as a single JSON object.
func (r CapturedRequest) JSONObject(t *testing.T) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(r.Body, &out); err != nil {
		t.Fatalf("body is not a JSON object: %v: %s", err, r.Body)
	}
	return out
}

// CaptureServer is an httptest server that records every request and
// answers with a scripted sequence of status codes.
type CaptureServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []CapturedRequest
	statuses []int
}

// NewCaptureServer starts a server answering with statuses in order; the
// last status repeats. With no statuses every request gets 200.
func NewCaptureServer(t *testing.T, statuses ...int) *CaptureServer {
	t.Helper()

	s := &CaptureServer{statuses: statuses}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *CaptureServer) handle(w http.ResponseWriter, r *http.Request) {
	var reader io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer zr.Close()
		reader = zr
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, CapturedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Body:   body,
		At:     time.Now(),
	})
	status := http.StatusOK
	if len(s.statuses) > 0 {
		status = s.statuses[0]
		if len(s.statuses) > 1 {
			s.statuses = s.statuses[1:]
		}
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{}`))
}

// Requests returns a copy of every request received so far.
func (s *CaptureServer) Requests() []CapturedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CapturedRequest(nil), s.requests...)
}

// RequestsTo returns the requests received for path.
func (s *CaptureServer) RequestsTo(path string) []CapturedRequest {
	var out []CapturedRequest
	for _, r := range s.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// WaitForRequests polls until at least n requests arrived or timeout passes.
func (s *CaptureServer) WaitForRequests(t *testing.T, n int, timeout time.Duration) []CapturedRequest {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		reqs := s.Requests()
		if len(reqs) >= n {
			return reqs
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d requests within %s, got %d", n, timeout, len(reqs))
		}
		time.Sleep(5 * time.Millisecond)
	}
}
