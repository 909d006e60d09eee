// Copyright 2019 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ledger records the outcome of every work unit of a pipeline run in
// a SQLite database, so that failed accessions can be found and rerun.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id      TEXT PRIMARY KEY,
	started INTEGER NOT NULL,
	config  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS units (
	run_id   TEXT NOT NULL REFERENCES runs(id),
	unit     TEXT NOT NULL,
	stage    TEXT NOT NULL,
	status   TEXT NOT NULL,
	detail   TEXT NOT NULL,
	recorded INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS units_by_run ON units (run_id, unit);
`

// Unit statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Outcome is the recorded result of one unit.
type Outcome struct {
	Unit   string
	Stage  string
	Status string
	Detail string
}

// Ledger is a handle to a ledger database.  It is safe for concurrent use.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger at path.  ":memory:" gives a private
// in-memory ledger.
func Open(ctx context.Context, path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %v", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %v", err)
	}
	return &Ledger{db}, nil
}

// Close releases the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// StartRun registers a run and the configuration it was started with.
func (l *Ledger) StartRun(ctx context.Context, runID, config string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, started, config) VALUES (?, ?, ?)`,
		runID, time.Now().Unix(), config)
	if err != nil {
		return fmt.Errorf("recording run %s: %v", runID, err)
	}
	return nil
}

// Record stores the outcome of a unit of runID.
func (l *Ledger) Record(ctx context.Context, runID string, outcome Outcome) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO units (run_id, unit, stage, status, detail, recorded) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, outcome.Unit, outcome.Stage, outcome.Status, outcome.Detail, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("recording unit %s of run %s: %v", outcome.Unit, runID, err)
	}
	return nil
}

// Outcomes returns the recorded outcomes of runID ordered by unit and then by
// insertion.
func (l *Ledger) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT unit, stage, status, detail FROM units WHERE run_id = ? ORDER BY unit, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %v", runID, err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.Unit, &o.Stage, &o.Status, &o.Detail); err != nil {
			return nil, fmt.Errorf("scanning run %s: %v", runID, err)
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading run %s: %v", runID, err)
	}
	return outcomes, nil
}

// Failed returns the distinct units of runID that have a failed outcome.
func (l *Ledger) Failed(ctx context.Context, runID string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT DISTINCT unit FROM units WHERE run_id = ? AND status = ? ORDER BY unit`,
		runID, StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("querying failures of run %s: %v", runID, err)
	}
	defer rows.Close()

	var units []string
	for rows.Next() {
		var unit string
		if err := rows.Scan(&unit); err != nil {
			return nil, fmt.Errorf("scanning failures of run %s: %v", runID, err)
		}
		units = append(units, unit)
	}
	return units, rows.Err()
}
