package catalog

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.sqlite3"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndFinishRun(t *testing.T) {
	store := openTestStore(t)

	run, err := store.CreateRun("/samples/break.wav", "/music", "landmark")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.ID == "" {
		t.Fatal("run must get an ID")
	}

	if err := store.FinishRun(run.ID, 10, 2, 1); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := store.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	got := runs[0]
	if got.Tracks != 10 || got.Hits != 2 || got.Skipped != 1 {
		t.Errorf("tallies not persisted: %+v", got)
	}
	if got.Strategy != "landmark" || got.MusicDir != "/music" {
		t.Errorf("run metadata not persisted: %+v", got)
	}
	if got.FinishedAt.IsZero() {
		t.Error("finished_at not set")
	}
}

func TestRecordAndListOutcomes(t *testing.T) {
	store := openTestStore(t)

	run, err := store.CreateRun("/samples/break.wav", "/music", "dense")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	outcomes := []struct {
		path, outcome string
		offset, score float64
		errMsg        string
	}{
		{"/music/a.ogg", "hit", 42.5, 0.91, ""},
		{"/music/b.ogg", "no-match", 0, 0, ""},
		{"/music/c.ogg", "skipped", 0, 0, "ffmpeg failed"},
	}
	for _, o := range outcomes {
		if err := store.RecordOutcome(run.ID, o.path, o.outcome, o.offset, o.score, o.errMsg); err != nil {
			t.Fatalf("RecordOutcome(%s): %v", o.path, err)
		}
	}

	got, err := store.RunOutcomes(run.ID)
	if err != nil {
		t.Fatalf("RunOutcomes: %v", err)
	}
	if len(got) != len(outcomes) {
		t.Fatalf("expected %d outcomes, got %d", len(outcomes), len(got))
	}
	for i, o := range outcomes {
		if got[i].TrackPath != o.path || got[i].Outcome != o.outcome {
			t.Errorf("outcome %d: got %+v, want %+v", i, got[i], o)
		}
	}
	if got[0].OffsetSeconds != 42.5 || got[0].Score != 0.91 {
		t.Errorf("hit details not persisted: %+v", got[0])
	}
	if got[2].Error != "ffmpeg failed" {
		t.Errorf("skip reason not persisted: %+v", got[2])
	}
}

func TestRunOutcomesScopedToRun(t *testing.T) {
	store := openTestStore(t)

	run1, _ := store.CreateRun("/s/a.wav", "/music", "landmark")
	run2, _ := store.CreateRun("/s/b.wav", "/music", "landmark")
	if err := store.RecordOutcome(run1.ID, "/music/x.ogg", "hit", 1, 10, ""); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordOutcome(run2.ID, "/music/y.ogg", "no-match", 0, 0, ""); err != nil {
		t.Fatal(err)
	}

	got, err := store.RunOutcomes(run1.ID)
	if err != nil {
		t.Fatalf("RunOutcomes: %v", err)
	}
	if len(got) != 1 || got[0].TrackPath != "/music/x.ogg" {
		t.Errorf("outcomes leaked across runs: %+v", got)
	}
}

func TestNilStoreIsSafe(t *testing.T) {
	var store *Store
	if err := store.Close(); err != nil {
		t.Errorf("Close on nil store: %v", err)
	}
	if _, err := store.CreateRun("a", "b", "c"); err == nil {
		t.Error("expected an error from a nil store")
	}
}
