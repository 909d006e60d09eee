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

// Package pipeline drives a k-mer indexing run: it assembles (or reuses) the
// contigs of every accession, filters them and writes one index per k value.
//
// Every accession and every k value is an independent unit of work.  Units
// are dispatched over an explicit slice with traverse and write only their own
// slot, so a failed unit is recorded in the Report without affecting its
// siblings.
package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/googlegenomics/kmerindex/internal/analytics"
	"github.com/googlegenomics/kmerindex/internal/assembly"
	"github.com/googlegenomics/kmerindex/internal/contig"
	"github.com/googlegenomics/kmerindex/internal/index"
	"github.com/googlegenomics/kmerindex/internal/kmer"
	"github.com/googlegenomics/kmerindex/internal/ledger"
	"github.com/googlegenomics/kmerindex/internal/metrics"
	"github.com/googlegenomics/kmerindex/store"
	"github.com/grailbio/base/traverse"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// Deps are the collaborators of a run.  Only Assembler is required.
type Deps struct {
	Assembler assembly.Assembler
	// Open returns the store serving a location.  It defaults to store.Open.
	Open func(ctx context.Context, location string) (store.ObjectStore, error)
	// Ledger, when set, records the outcome of every unit.
	Ledger *ledger.Ledger
	// Analytics, when set, receives usage events at the end of the run.
	Analytics *analytics.Client
	Logger    *zap.Logger
	// RunID identifies the run in the ledger; a random id is used if empty.
	RunID string
}

type accessionUnit struct {
	accession string
	contigs   []contig.Assembled
	status    assembly.Status
	dropped   int
	err       *UnitError
}

type passUnit struct {
	k       int
	path    string
	records int
	err     *UnitError
}

// Run executes the pipeline described by opts.  The returned error is set
// only when the run could not start; failures of individual units are
// reported through Report.Failures and Report.Err.
func Run(ctx context.Context, opts Options, deps Deps) (*Report, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if deps.Assembler == nil {
		return nil, fmt.Errorf("no assembler configured")
	}
	if deps.Open == nil {
		deps.Open = store.Open
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.RunID == "" {
		deps.RunID = uuid.New().String()
	}
	logger := deps.Logger.With(zap.String("run", deps.RunID))
	ctx, collectHits := analytics.WithTracker(ctx)
	track := analytics.TrackerFromContext(ctx)

	if deps.Ledger != nil {
		config, err := json.Marshal(opts)
		if err != nil {
			return nil, fmt.Errorf("encoding options: %v", err)
		}
		if err := deps.Ledger.StartRun(ctx, deps.RunID, string(config)); err != nil {
			return nil, err
		}
	}

	accessions, err := readAccessions(ctx, deps.Open, opts.AccessionsFile)
	if err != nil {
		return nil, err
	}
	outputs, err := deps.Open(ctx, opts.OutputLocation)
	if err != nil {
		return nil, fmt.Errorf("opening output location: %v", err)
	}
	location, persist := opts.ContigLocation()
	contigStore, err := deps.Open(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("opening contig location: %v", err)
	}

	report := newReport(deps.RunID)
	report.Accessions = len(accessions)
	logger.Info("Starting pipeline",
		zap.Int("accessions", len(accessions)),
		zap.Ints("kValues", opts.kValues()),
		zap.String("contigs", location))

	stage := assembly.Stage{
		Gate:      assembly.Gate{Store: contigStore, Location: location, Force: opts.ForceAssembly},
		Assembler: deps.Assembler,
		Persist:   persist,
		Logger:    logger,
	}
	filter := opts.Filter()
	units := make([]accessionUnit, len(accessions))
	for i, accession := range accessions {
		units[i].accession = accession
	}
	traverse.Limit(opts.parallelism()).Each(len(units), func(i int) error {
		unit := &units[i]
		result, err := stage.Run(ctx, unit.accession)
		if err != nil {
			unit.err = &UnitError{Unit: unit.accession, Stage: failedStage(err), Err: err}
			return nil
		}
		unit.status = result.Status
		unit.contigs, unit.dropped = filter.Apply(result.Contigs)
		return nil
	})

	var kept []contig.Assembled
	for i := range units {
		unit := &units[i]
		if unit.err != nil {
			report.Failures = append(report.Failures, unit.err)
			metrics.UnitFailures.WithLabelValues(unit.err.Stage).Inc()
			track(analytics.Event("failure", unit.err.Stage, nil))
			logger.Error("Unit failed", zap.String("accession", unit.accession), zap.Error(unit.err.Err))
			deps.record(ctx, logger, ledger.Outcome{
				Unit: unit.accession, Stage: unit.err.Stage, Status: ledger.StatusFailed, Detail: unit.err.Err.Error(),
			})
			continue
		}

		source := "assembled"
		if unit.status == assembly.Cached {
			source = "cached"
			report.Cached++
		} else {
			report.Assembled++
		}
		metrics.Assemblies.WithLabelValues(source).Inc()
		metrics.RecordFilter(len(unit.contigs), unit.dropped)
		track(analytics.Event(source, "", nil))
		report.ContigsKept += len(unit.contigs)
		report.ContigsDropped += unit.dropped
		kept = append(kept, unit.contigs...)
		deps.record(ctx, logger, ledger.Outcome{
			Unit: unit.accession, Stage: StageFilter, Status: ledger.StatusOK,
			Detail: fmt.Sprintf("%s: %d kept, %d dropped", source, len(unit.contigs), unit.dropped),
		})
	}
	logger.Info("Contigs filtered",
		zap.Int("kept", report.ContigsKept),
		zap.Int("dropped", report.ContigsDropped))

	ks := opts.kValues()
	passes := make([]passUnit, len(ks))
	traverse.Limit(len(ks)).Each(len(passes), func(i int) error {
		pass := &passes[i]
		pass.k = ks[i]
		pass.path = store.Join(opts.OutputLocation, index.OutputPath(opts.OutputPrefix, pass.k, opts.WriteTable))
		counts, records, err := countKmers(kept, pass.k, opts.parallelism())
		if err == nil {
			pass.records = records
			err = writeIndex(ctx, outputs, pass.path, counts, opts.WriteTable)
		}
		if err != nil {
			pass.err = &UnitError{Unit: fmt.Sprintf("K%d", pass.k), Stage: StageIndex, Err: err}
		}
		return nil
	})

	for _, pass := range passes {
		unit := fmt.Sprintf("K%d", pass.k)
		if pass.err != nil {
			report.Failures = append(report.Failures, pass.err)
			metrics.UnitFailures.WithLabelValues(StageIndex).Inc()
			logger.Error("Index pass failed", zap.Int("k", pass.k), zap.Error(pass.err.Err))
			deps.record(ctx, logger, ledger.Outcome{
				Unit: unit, Stage: StageIndex, Status: ledger.StatusFailed, Detail: pass.err.Err.Error(),
			})
			continue
		}
		report.Outputs[pass.k] = pass.path
		report.Kmers[pass.k] = pass.records
		metrics.RecordKmers(pass.k, pass.records)
		track(analytics.Count("kmers", unit, pass.records))
		logger.Info("Wrote index", zap.Int("k", pass.k), zap.String("path", pass.path), zap.Int("records", pass.records))
		deps.record(ctx, logger, ledger.Outcome{Unit: unit, Stage: StageIndex, Status: ledger.StatusOK, Detail: pass.path})
	}

	if err := deps.Analytics.Send(ctx, collectHits()); err != nil {
		logger.Warn("Failed to send analytics", zap.Error(err))
	}
	return report, nil
}

// failedStage names the stage an error of assembly.Stage.Run came from.
func failedStage(err error) string {
	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		return StageRead
	}
	return StageAssembly
}

func (deps Deps) record(ctx context.Context, logger *zap.Logger, outcome ledger.Outcome) {
	if deps.Ledger == nil {
		return
	}
	if err := deps.Ledger.Record(ctx, deps.RunID, outcome); err != nil {
		logger.Warn("Failed to update ledger", zap.Error(err))
	}
}

// countKmers counts the k-mers of contigs using n slots.  Slot s generates
// the k-mers of every n-th contig starting at s and files them into its own
// hash partitions; partition p of every slot is then merged by one goroutine.
func countKmers(contigs []contig.Assembled, k, n int) (*index.Counts, int, error) {
	if n < 1 {
		n = 1
	}
	slots := make([]index.Partitioned, n)
	records := make([]int, n)
	err := traverse.Limit(n).Each(n, func(s int) error {
		slots[s] = index.NewPartitioned(n)
		for i := s; i < len(contigs); i += n {
			g, err := kmer.Generate(contigs[i], k)
			if err != nil {
				return err
			}
			for g.Scan() {
				slots[s].Add(g.Record())
				records[s]++
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	merged := index.NewPartitioned(n)
	traverse.Limit(n).Each(n, func(p int) error {
		for _, slot := range slots {
			merged[p].Merge(slot[p])
		}
		return nil
	})

	var total int
	for _, r := range records {
		total += r
	}
	return merged.Combine(), total, nil
}

func writeIndex(ctx context.Context, s store.ObjectStore, path string, counts *index.Counts, table bool) error {
	var buf bytes.Buffer
	write := index.WriteEntries
	if table {
		write = index.WriteTable
	}
	if err := write(&buf, counts); err != nil {
		return err
	}
	return s.Write(ctx, path, buf.Bytes())
}

// readAccessions returns the non-empty, non-comment lines of the accession
// list at location.
func readAccessions(ctx context.Context, open func(context.Context, string) (store.ObjectStore, error), location string) ([]string, error) {
	s, err := open(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("opening accessions: %v", err)
	}
	data, err := s.Read(ctx, location)
	if err != nil {
		return nil, err
	}

	var r io.Reader = bytes.NewReader(data)
	if strings.HasSuffix(location, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("decompressing accessions %s: %v", location, err)
		}
		defer gz.Close()
		r = gz
	}

	var accessions []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.ContainsAny(line, `/\`) || strings.Contains(line, "..") {
			return nil, fmt.Errorf("reading accessions %s: invalid accession %q", location, line)
		}
		accessions = append(accessions, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading accessions %s: %v", location, err)
	}
	return accessions, nil
}
