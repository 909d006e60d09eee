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

package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// Stages of a unit, as used in UnitError and the ledger.
const (
	StageRead     = "read"
	StageAssembly = "assembly"
	StageFilter   = "filter"
	StageIndex    = "index"
)

// UnitError is the failure of a single unit of work.  Unit is the accession,
// or "K<k>" for a k-mer pass.
type UnitError struct {
	Unit  string
	Stage string
	Err   error
}

func (err *UnitError) Error() string {
	return fmt.Sprintf("%s (%s): %v", err.Unit, err.Stage, err.Err)
}

func (err *UnitError) Unwrap() error {
	return err.Err
}

// Report summarises a run.  Failed units are listed in Failures; they do not
// prevent their siblings from completing.
type Report struct {
	RunID      string
	Accessions int
	Assembled  int
	Cached     int

	ContigsKept    int
	ContigsDropped int

	// Outputs maps each k to the location of its index.
	Outputs map[int]string
	// Kmers maps each k to the number of k-mer records generated.
	Kmers map[int]int

	Failures []*UnitError
}

func newReport(runID string) *Report {
	return &Report{
		RunID:   runID,
		Outputs: make(map[int]string),
		Kmers:   make(map[int]int),
	}
}

// Failed returns the names of the failed units in lexical order.
func (r *Report) Failed() []string {
	var units []string
	for _, failure := range r.Failures {
		units = append(units, failure.Unit)
	}
	sort.Strings(units)
	return units
}

// Err returns nil if every unit succeeded, and otherwise an error naming the
// failed units.
func (r *Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	failures := append([]*UnitError(nil), r.Failures...)
	sort.Slice(failures, func(i, j int) bool { return failures[i].Unit < failures[j].Unit })

	msgs := make([]string, len(failures))
	for i, failure := range failures {
		msgs[i] = failure.Error()
	}
	return fmt.Errorf("%d of %d units failed: %s", len(failures), r.units(), strings.Join(msgs, "; "))
}

func (r *Report) units() int {
	return r.Accessions + len(r.Outputs) + r.failedPasses()
}

func (r *Report) failedPasses() int {
	var n int
	for _, failure := range r.Failures {
		if failure.Stage == StageIndex {
			n++
		}
	}
	return n
}
