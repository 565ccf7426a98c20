package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"autoloop/internal/history"
	"autoloop/internal/supervisor"
)

type fakeCounter struct{ done, pending int }

func (f *fakeCounter) Count() (int, int) { return f.done, f.pending }

func newTestServer(t *testing.T) (*Server, *supervisor.Manager, *history.Store) {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	m := supervisor.NewManager(zerolog.Nop())
	t.Cleanup(func() { m.Stop(true) })

	return NewServer(m, store, &fakeCounter{done: 4, pending: 2}, zerolog.Nop()), m, store
}

func TestStatusStopped(t *testing.T) {
	s, _, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp statusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Running || resp.Paused {
		t.Errorf("stopped manager reported running=%v paused=%v", resp.Running, resp.Paused)
	}
	if resp.TasksDone != 4 || resp.TasksPending != 2 {
		t.Errorf("task counts = (%d, %d), want tracker's (4, 2)", resp.TasksDone, resp.TasksPending)
	}
}

func TestPauseWithoutProcessConflicts(t *testing.T) {
	s, _, _ := newTestServer(t)
	for _, path := range []string{"/api/pause", "/api/resume"} {
		rr := httptest.NewRecorder()
		s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
		if rr.Code != http.StatusConflict {
			t.Errorf("%s status = %d, want 409", path, rr.Code)
		}
	}
}

func TestStartRejectsUnknownPerformer(t *testing.T) {
	s, _, _ := newTestServer(t)
	body := strings.NewReader(`{"performer": "juggling"}`)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/start", body))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _, _ := newTestServer(t)
	cases := []struct{ method, path string }{
		{http.MethodPost, "/api/status"},
		{http.MethodGet, "/api/start"},
		{http.MethodGet, "/api/stop"},
		{http.MethodPost, "/api/history"},
	}
	for _, c := range cases {
		rr := httptest.NewRecorder()
		s.Routes().ServeHTTP(rr, httptest.NewRequest(c.method, c.path, nil))
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s status = %d, want 405", c.method, c.path, rr.Code)
		}
	}
}

func TestHistoryEndpoints(t *testing.T) {
	s, _, store := newTestServer(t)
	now := time.Now().UTC()
	for i := 1; i <= 3; i++ {
		result := history.ResultSuccess
		if i == 3 {
			result = history.ResultNoProgress
		}
		store.Save(&history.Record{
			RunID:           "run-1",
			IterationNumber: i,
			PerformerName:   "task",
			Result:          result,
			StartedAt:       now,
			EndedAt:         now.Add(time.Minute),
			DurationSeconds: 60,
		})
	}

	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/history?result=success", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("history status = %d", rr.Code)
	}
	var resp historyResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 || len(resp.Iterations) != 2 {
		t.Errorf("filtered history total = %d (%d records), want 2", resp.Total, len(resp.Iterations))
	}

	rr = httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/history/stats", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rr.Code)
	}
	var stats history.Stats
	if err := json.NewDecoder(rr.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.SuccessCount != 2 || stats.NoProgressCount != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestPerformersEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/performers", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp map[string][]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	names := resp["performers"]
	want := map[string]bool{"task": false, "cleanup": false, "deploy": false, "review": false}
	for _, n := range names {
		if _, ok := want[n]; ok {
			want[n] = true
		}
	}
	for n, found := range want {
		if !found {
			t.Errorf("performer %q missing from %v", n, names)
		}
	}
}

func TestClassifyLine(t *testing.T) {
	cases := []struct {
		line string
		want string
	}{
		{"Error: something broke", lineError},
		{"fatal error in agent", lineError},
		{"> pondering the problem", lineThinking},
		{"Tool: Bash", lineToolUse},
		{"Result: all done", lineToolResult},
		{"just some text", lineText},
	}
	for _, c := range cases {
		if got := classifyLine(c.line); got != c.want {
			t.Errorf("classifyLine(%q) = %q, want %q", c.line, got, c.want)
		}
	}
}

func TestEventsStream(t *testing.T) {
	s, m, _ := newTestServer(t)

	script := filepath.Join(t.TempDir(), "child.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nsleep 0.2\necho 'streamed output line'\nsleep 5\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	m.Command = "/bin/sh"
	m.Args = []string{script}

	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	if _, err := m.Start(supervisor.StartOptions{}); err != nil {
		t.Fatal(err)
	}

	scanner := bufio.NewScanner(resp.Body)
	var sawOutput bool
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, "streamed output line") {
			sawOutput = true
			break
		}
	}
	if !sawOutput {
		t.Error("did not receive streamed output event")
	}
}
