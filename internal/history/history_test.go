package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(runID string, n int, performer, result string) *Record {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Hour)
	return &Record{
		RunID:           runID,
		IterationNumber: n,
		PerformerName:   performer,
		PerformerEmoji:  "\U0001f527",
		Result:          result,
		TasksBefore:     10 - n,
		TasksAfter:      9 - n,
		DurationSeconds: 42.5,
		StartedAt:       start,
		EndedAt:         start.Add(time.Minute),
	}
}

func TestSaveAndList(t *testing.T) {
	s := openTestStore(t)
	run := uuid.NewString()

	for i := 1; i <= 3; i++ {
		if _, err := s.Save(sampleRecord(run, i, "task", ResultSuccess)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	records, total, err := s.List(Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(records) != 3 {
		t.Fatalf("got %d records (total %d), want 3", len(records), total)
	}
	// Newest first.
	if records[0].IterationNumber != 3 {
		t.Errorf("first record iteration = %d, want 3", records[0].IterationNumber)
	}
	if records[0].RunID != run {
		t.Errorf("run id = %q, want %q", records[0].RunID, run)
	}
	if records[0].StartedAt.IsZero() || records[0].EndedAt.IsZero() {
		t.Error("timestamps not round-tripped")
	}
}

func TestListFilters(t *testing.T) {
	s := openTestStore(t)
	runA := uuid.NewString()
	runB := uuid.NewString()

	s.Save(sampleRecord(runA, 1, "task", ResultSuccess))
	s.Save(sampleRecord(runA, 2, "cleanup", ResultSuccess))
	s.Save(sampleRecord(runA, 3, "task", ResultNoProgress))
	s.Save(sampleRecord(runB, 1, "task", ResultError))

	_, total, err := s.List(Filter{Performer: "task"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Errorf("performer filter total = %d, want 3", total)
	}

	_, total, err = s.List(Filter{Result: ResultNoProgress})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("result filter total = %d, want 1", total)
	}

	_, total, err = s.List(Filter{RunID: runB})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("run filter total = %d, want 1", total)
	}

	records, total, err := s.List(Filter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if total != 4 || len(records) != 2 {
		t.Errorf("pagination: got %d records (total %d), want 2 of 4", len(records), total)
	}
}

func TestErrorMessageRoundTrip(t *testing.T) {
	s := openTestStore(t)
	r := sampleRecord(uuid.NewString(), 1, "task", ResultError)
	r.ErrorMessage = "agent exited with code 2"
	if _, err := s.Save(r); err != nil {
		t.Fatal(err)
	}

	records, _, err := s.List(Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if records[0].ErrorMessage != "agent exited with code 2" {
		t.Errorf("error message = %q", records[0].ErrorMessage)
	}
}

func TestPerformers(t *testing.T) {
	s := openTestStore(t)
	run := uuid.NewString()
	s.Save(sampleRecord(run, 1, "task", ResultSuccess))
	s.Save(sampleRecord(run, 2, "task", ResultSuccess))
	s.Save(sampleRecord(run, 3, "deploy", ResultSuccess))

	names, err := s.Performers()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"deploy", "task"}
	if len(names) != len(want) {
		t.Fatalf("performers = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("performers[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	run := uuid.NewString()
	s.Save(sampleRecord(run, 1, "task", ResultSuccess))
	s.Save(sampleRecord(run, 2, "task", ResultSuccess))
	s.Save(sampleRecord(run, 3, "task", ResultNoProgress))
	s.Save(sampleRecord(run, 4, "task", ResultError))

	st, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 4 || st.SuccessCount != 2 || st.NoProgressCount != 1 || st.ErrorCount != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.AvgDuration != 42.5 {
		t.Errorf("avg duration = %v, want 42.5", st.AvgDuration)
	}
}

func TestStatsEmpty(t *testing.T) {
	s := openTestStore(t)
	st, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 0 || st.AvgDuration != 0 {
		t.Errorf("empty stats = %+v", st)
	}
}

func TestOpenIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	s1.Save(sampleRecord(uuid.NewString(), 1, "task", ResultSuccess))
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	_, total, err := s2.List(Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("total after reopen = %d, want 1", total)
	}
}
