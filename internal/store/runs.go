package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lherron/gnosmerge/internal/cursor"
	"github.com/lherron/gnosmerge/internal/report"
)

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusDryRun    = "dry_run"
)

// timeFormat sorts lexically in UTC.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// ErrRunNotFound is returned by Get when no run matches.
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded merge run.
type Run struct {
	UUID       string         `json:"uuid" yaml:"uuid"`
	Donor      string         `json:"donor" yaml:"donor"`
	Workflow   string         `json:"workflow" yaml:"workflow"`
	AnalysisID string         `json:"analysis_id,omitempty" yaml:"analysis_id,omitempty"`
	PrimaryID  string         `json:"primary_id" yaml:"primary_id"`
	SourceIDs  []string       `json:"source_ids" yaml:"source_ids"`
	Status     string         `json:"status" yaml:"status"`
	OutputDir  string         `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	Error      string         `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time      `json:"finished_at" yaml:"finished_at"`
	Events     []report.Entry `json:"events,omitempty" yaml:"events,omitempty"`
}

// RunStore handles run persistence.
type RunStore struct {
	store *Store
}

// RecordParams describes a finished run.
type RecordParams struct {
	Donor      string
	Workflow   string
	AnalysisID string
	SourceIDs  []string // first is the primary
	Status     string
	OutputDir  string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
	Report     *report.Report
}

// Record stores a finished run and its report entries, returning the
// run's ledger UUID.
func (rs *RunStore) Record(p RecordParams) (string, error) {
	switch p.Status {
	case StatusSucceeded, StatusFailed, StatusDryRun:
	default:
		return "", fmt.Errorf("invalid run status %q", p.Status)
	}
	if len(p.SourceIDs) == 0 {
		return "", fmt.Errorf("run for donor %s has no sources", p.Donor)
	}

	sources, err := json.Marshal(p.SourceIDs)
	if err != nil {
		return "", err
	}
	var errText string
	if p.Err != nil {
		errText = p.Err.Error()
	}
	runUUID := uuid.NewString()

	err = rs.store.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO runs (
				uuid, donor, workflow, analysis_id, primary_id, source_ids,
				status, output_dir, error, started_at, finished_at
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			runUUID,
			p.Donor,
			p.Workflow,
			nullable(p.AnalysisID),
			p.SourceIDs[0],
			string(sources),
			p.Status,
			nullable(p.OutputDir),
			nullable(errText),
			p.StartedAt.UTC().Format(timeFormat),
			p.FinishedAt.UTC().Format(timeFormat),
		)
		if err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}

		runID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get run id: %w", err)
		}

		if p.Report == nil {
			return nil
		}
		for i, e := range p.Report.Entries {
			_, err := tx.Exec(`
				INSERT INTO run_events (run_id, seq, kind, subject, message)
				VALUES (?, ?, ?, ?, ?)
			`, runID, i, string(e.Kind), e.Subject, e.Message)
			if err != nil {
				return fmt.Errorf("failed to record run event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return runUUID, nil
}

// ListFilter narrows List.
type ListFilter struct {
	Donor  string
	Status string
	Limit  int
	// Cursor continues a previous page.
	Cursor string
}

const runColumns = `id, uuid, donor, workflow, analysis_id, primary_id, source_ids,
	status, output_dir, error, started_at, finished_at`

// List returns runs, newest first, without their events. When a page is
// full, next is the cursor of the following page.
func (rs *RunStore) List(f ListFilter) (runs []Run, next string, err error) {
	var where []string
	var args []any
	if f.Donor != "" {
		where = append(where, "donor = ?")
		args = append(args, f.Donor)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Cursor != "" {
		c, err := cursor.Decode(f.Cursor)
		if err != nil {
			return nil, "", err
		}
		clause, params := c.Where()
		where = append(where, clause)
		args = append(args, params...)
	}

	query := "SELECT " + runColumns + " FROM runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := rs.store.db.Query(query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var lastID int64
	for rows.Next() {
		id, run, err := scanRun(rows)
		if err != nil {
			return nil, "", err
		}
		lastID = id
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating runs: %w", err)
	}

	if f.Limit > 0 && len(runs) == f.Limit {
		last := runs[len(runs)-1]
		c, err := cursor.New(last.StartedAt.UTC().Format(timeFormat), lastID)
		if err != nil {
			return nil, "", err
		}
		if next, err = c.Encode(); err != nil {
			return nil, "", err
		}
	}
	return runs, next, nil
}

// Get returns the run identified by its ledger UUID or by the merged
// analysis id it produced, with its events.
func (rs *RunStore) Get(ref string) (*Run, error) {
	row := rs.store.db.QueryRow(
		"SELECT "+runColumns+" FROM runs WHERE uuid = ? OR analysis_id = ? ORDER BY id DESC LIMIT 1",
		ref, ref,
	)
	runID, run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, ref)
	}
	if err != nil {
		return nil, err
	}

	rows, err := rs.store.db.Query(
		"SELECT kind, subject, message FROM run_events WHERE run_id = ? ORDER BY seq", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e report.Entry
		var kind string
		if err := rows.Scan(&kind, &e.Subject, &e.Message); err != nil {
			return nil, fmt.Errorf("failed to scan run event: %w", err)
		}
		e.Kind = report.Kind(kind)
		run.Events = append(run.Events, e)
	}
	return run, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (int64, *Run, error) {
	var (
		id                         int64
		run                        Run
		analysisID, outDir, errTxt sql.NullString
		sources, started, finished string
	)
	err := s.Scan(&id, &run.UUID, &run.Donor, &run.Workflow, &analysisID, &run.PrimaryID,
		&sources, &run.Status, &outDir, &errTxt, &started, &finished)
	if err != nil {
		return 0, nil, err
	}
	run.AnalysisID = analysisID.String
	run.OutputDir = outDir.String
	run.Error = errTxt.String
	if err := json.Unmarshal([]byte(sources), &run.SourceIDs); err != nil {
		return 0, nil, fmt.Errorf("run %s: invalid source_ids: %w", run.UUID, err)
	}
	if run.StartedAt, err = time.Parse(timeFormat, started); err != nil {
		return 0, nil, fmt.Errorf("run %s: invalid started_at: %w", run.UUID, err)
	}
	if run.FinishedAt, err = time.Parse(timeFormat, finished); err != nil {
		return 0, nil, fmt.Errorf("run %s: invalid finished_at: %w", run.UUID, err)
	}
	return id, &run, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
