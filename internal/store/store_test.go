package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lherron/gnosmerge/internal/db"
	"github.com/lherron/gnosmerge/internal/report"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func params(donor string, started time.Time) RecordParams {
	return RecordParams{
		Donor:      donor,
		Workflow:   "dkfz_embl",
		AnalysisID: "99999999-8888-4777-8666-555555555555",
		SourceIDs:  []string{"0a9f2e1c-3b4d-4e5f-8a6b-7c8d9e0f1a2b", "11111111-2222-4333-8444-555555555555"},
		Status:     StatusSucceeded,
		OutputDir:  "/upload/99999999-8888-4777-8666-555555555555",
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
	}
}

func TestRecordAndGet(t *testing.T) {
	s := New(setupTestDB(t))

	rep := report.New("DO1", nil)
	rep.Add(report.KindAttributeConflict, "study", "differing values")
	rep.Add(report.KindOptionalMissing, "sv_vcf", "optional file class sv_vcf not found")

	p := params("DO1", t0)
	p.Report = rep
	runUUID, err := s.Runs.Record(p)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	for _, ref := range []string{runUUID, p.AnalysisID} {
		run, err := s.Runs.Get(ref)
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", ref, err)
		}
		if run.UUID != runUUID {
			t.Errorf("UUID = %q, want %q", run.UUID, runUUID)
		}
		if run.PrimaryID != p.SourceIDs[0] {
			t.Errorf("PrimaryID = %q, want %q", run.PrimaryID, p.SourceIDs[0])
		}
		if len(run.SourceIDs) != 2 || run.SourceIDs[1] != p.SourceIDs[1] {
			t.Errorf("SourceIDs = %v", run.SourceIDs)
		}
		if !run.StartedAt.Equal(t0) || !run.FinishedAt.Equal(t0.Add(2*time.Second)) {
			t.Errorf("times = %v, %v", run.StartedAt, run.FinishedAt)
		}
		if len(run.Events) != 2 {
			t.Fatalf("got %d events, want 2", len(run.Events))
		}
		if run.Events[0].Kind != report.KindAttributeConflict || run.Events[1].Subject != "sv_vcf" {
			t.Errorf("events out of order: %+v", run.Events)
		}
	}
}

func TestRecordFailedRun(t *testing.T) {
	s := New(setupTestDB(t))

	p := params("DO2", t0)
	p.Status = StatusFailed
	p.AnalysisID = ""
	p.OutputDir = ""
	p.Err = errors.New("no file matched mandatory class(es) snv_vcf")

	runUUID, err := s.Runs.Record(p)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	run, err := s.Runs.Get(runUUID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if run.Status != StatusFailed || run.Error != p.Err.Error() {
		t.Errorf("run = %+v", run)
	}
	if run.AnalysisID != "" || run.OutputDir != "" {
		t.Errorf("expected empty analysis id and output dir, got %q %q", run.AnalysisID, run.OutputDir)
	}
}

func TestRecordRejectsInvalid(t *testing.T) {
	s := New(setupTestDB(t))

	p := params("DO1", t0)
	p.Status = "pending"
	if _, err := s.Runs.Record(p); err == nil {
		t.Error("expected error for unknown status")
	}

	p = params("DO1", t0)
	p.SourceIDs = nil
	if _, err := s.Runs.Record(p); err == nil {
		t.Error("expected error for run without sources")
	}
}

func TestRecordDuplicateSucceededAnalysis(t *testing.T) {
	s := New(setupTestDB(t))

	if _, err := s.Runs.Record(params("DO1", t0)); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if _, err := s.Runs.Record(params("DO1", t0.Add(time.Minute))); err == nil {
		t.Error("expected unique violation for a second succeeded run with the same analysis id")
	}

	// Dry runs may repeat an id.
	p := params("DO1", t0.Add(2*time.Minute))
	p.Status = StatusDryRun
	if _, err := s.Runs.Record(p); err != nil {
		t.Errorf("dry run should record: %v", err)
	}
}

func TestList(t *testing.T) {
	s := New(setupTestDB(t))

	for i, donor := range []string{"DO1", "DO2", "DO1"} {
		p := params(donor, t0.Add(time.Duration(i)*time.Hour))
		p.AnalysisID = ""
		if i == 2 {
			p.Status = StatusFailed
		}
		if _, err := s.Runs.Record(p); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	all, next, err := s.Runs.List(ListFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d runs, want 3", len(all))
	}
	if next != "" {
		t.Errorf("unlimited listing should have no next cursor, got %q", next)
	}
	if !all[0].StartedAt.After(all[1].StartedAt) {
		t.Error("runs should be newest first")
	}

	do1, _, err := s.Runs.List(ListFilter{Donor: "DO1"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(do1) != 2 {
		t.Errorf("got %d DO1 runs, want 2", len(do1))
	}

	failed, _, err := s.Runs.List(ListFilter{Status: StatusFailed})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(failed) != 1 || failed[0].Donor != "DO1" {
		t.Errorf("failed runs = %+v", failed)
	}

	// Page through two at a time.
	page1, next, err := s.Runs.List(ListFilter{Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page1) != 2 || next == "" {
		t.Fatalf("page 1: got %d runs, next %q", len(page1), next)
	}
	page2, next, err := s.Runs.List(ListFilter{Limit: 2, Cursor: next})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page2) != 1 || next != "" {
		t.Fatalf("page 2: got %d runs, next %q", len(page2), next)
	}
	if page2[0].UUID != all[2].UUID {
		t.Errorf("page 2 = %s, want oldest run %s", page2[0].UUID, all[2].UUID)
	}

	if _, _, err := s.Runs.List(ListFilter{Cursor: "!!!"}); err == nil {
		t.Error("expected error for malformed cursor")
	}
}

func TestGetNotFound(t *testing.T) {
	s := New(setupTestDB(t))

	_, err := s.Runs.Get("nope")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("err = %v, want ErrRunNotFound", err)
	}
}
