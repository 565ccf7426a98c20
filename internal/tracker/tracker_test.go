package tracker

import (
	"errors"
	"strings"
	"testing"
)

type mockCmd struct {
	calls  [][]string
	output string
	err    error
}

func (m *mockCmd) Run(args ...string) (string, error) {
	m.calls = append(m.calls, args)
	return m.output, m.err
}

func TestCount(t *testing.T) {
	cmd := &mockCmd{output: `{
		"beans": [
			{"id": "t-1", "title": "a", "status": "completed"},
			{"id": "t-2", "title": "b", "status": "scrapped"},
			{"id": "t-3", "title": "c", "status": "todo"},
			{"id": "t-4", "title": "d", "status": "in-progress"},
			{"id": "t-5", "title": "e", "status": "draft"},
			{"id": "t-6", "title": "f", "status": "blocked"}
		]
	}`}

	c := NewClient(cmd, "")
	done, pending := c.Count()
	if done != 2 {
		t.Errorf("done = %d, want 2", done)
	}
	if pending != 3 {
		t.Errorf("pending = %d, want 3", pending)
	}
}

func TestCountUnknownStatusExcluded(t *testing.T) {
	cmd := &mockCmd{output: `{"beans": [{"id": "t-1", "status": "someday"}]}`}
	c := NewClient(cmd, "")
	done, pending := c.Count()
	if done != 0 || pending != 0 {
		t.Errorf("(done, pending) = (%d, %d), want (0, 0) for unknown status", done, pending)
	}
}

func TestQueryDegradesOnFailure(t *testing.T) {
	c := NewClient(&mockCmd{err: errors.New("tracker not installed")}, "")
	if tasks := c.Query(); tasks != nil {
		t.Errorf("Query on error = %v, want nil", tasks)
	}
	done, pending := c.Count()
	if done != 0 || pending != 0 {
		t.Errorf("(done, pending) = (%d, %d), want (0, 0) on tracker failure", done, pending)
	}
}

func TestQueryDegradesOnMalformedJSON(t *testing.T) {
	c := NewClient(&mockCmd{output: "not json at all"}, "")
	if tasks := c.Query(); tasks != nil {
		t.Errorf("Query on malformed payload = %v, want nil", tasks)
	}
}

func TestQueryUsesTag(t *testing.T) {
	cmd := &mockCmd{output: `{"beans": []}`}
	NewClient(cmd, "mytag").Query()

	if len(cmd.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(cmd.calls))
	}
	args := cmd.calls[0]
	if args[0] != "query" || args[1] != "--json" {
		t.Errorf("args = %v, want query --json prefix", args)
	}
	if !strings.Contains(args[2], `"mytag"`) {
		t.Errorf("query %q does not filter by tag", args[2])
	}
}
