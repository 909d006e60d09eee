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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/googlegenomics/kmerindex/genomics"
	"github.com/googlegenomics/kmerindex/internal/contig"
	"github.com/googlegenomics/kmerindex/internal/kmer"
	"github.com/googlegenomics/kmerindex/store"
	"go.uber.org/zap"
)

// DefaultOutputPrefix names output files when no prefix is configured.
const DefaultOutputPrefix = "KmerIndex"

// Options is the configuration snapshot of a run.  It is read-only once Run
// has been called.
type Options struct {
	// DatasetID, References, AllContigs, ExcludeXY and ShardSize select the
	// regions used to build variant requests.
	DatasetID  string `json:"datasetId"`
	References string `json:"references"`
	AllContigs bool   `json:"allContigs"`
	ExcludeXY  bool   `json:"excludeXY"`
	ShardSize  int64  `json:"shardSize"`

	// AccessionsFile lists one accession per line; a .gz suffix marks a
	// gzip compressed list.
	AccessionsFile string `json:"accessionsFile"`
	KValues        []int  `json:"kValues"`

	LengthThreshold   int     `json:"lengthThreshold"`
	CoverageThreshold float64 `json:"coverageThreshold"`

	// ForceAssembly ignores cached contigs.
	ForceAssembly bool `json:"forceAssembly"`
	// OutputContigs stores assembled contigs under OutputLocation instead of
	// StagingLocation.
	OutputContigs   bool   `json:"outputContigs"`
	WriteTable      bool   `json:"writeTable"`
	OutputLocation  string `json:"outputLocation"`
	OutputPrefix    string `json:"outputPrefix"`
	StagingLocation string `json:"stagingLocation"`

	// Parallelism bounds the number of concurrently processed units.
	Parallelism int `json:"parallelism"`
}

// DefaultOptions returns Options with every default applied.
func DefaultOptions() Options {
	return Options{
		DatasetID:         genomics.DefaultDatasetID,
		References:        genomics.BRCA1,
		ShardSize:         genomics.DefaultShardSize,
		LengthThreshold:   math.MaxInt32,
		CoverageThreshold: math.MaxFloat64,
		OutputPrefix:      DefaultOutputPrefix,
		Parallelism:       runtime.NumCPU(),
	}
}

// Validate checks the options before any unit runs.  Malformed references
// produce a *genomics.ParseError and out of range k values a
// *kmer.InvalidKValueError.
func (opts Options) Validate() error {
	if len(opts.KValues) == 0 {
		return errors.New("at least one k value is required")
	}
	for _, k := range opts.KValues {
		if err := kmer.CheckK(k); err != nil {
			return err
		}
	}
	if opts.AccessionsFile == "" {
		return errors.New("an accessions file is required")
	}
	if opts.OutputLocation == "" {
		return errors.New("an output location is required")
	}
	if math.IsNaN(opts.CoverageThreshold) {
		return errors.New("coverage threshold must be a number")
	}
	if opts.Parallelism < 0 {
		return fmt.Errorf("invalid parallelism %d", opts.Parallelism)
	}
	if !opts.AllContigs && opts.References != "" {
		if _, err := genomics.ParseContigs(opts.References); err != nil {
			return err
		}
	}
	return nil
}

// Filter returns the contig filter described by the thresholds.
func (opts Options) Filter() contig.Filter {
	return contig.Filter{
		LengthThreshold:   opts.LengthThreshold,
		CoverageThreshold: opts.CoverageThreshold,
	}
}

// DropsEverything reports whether both thresholds are still at their
// defaults, which keep no contig at all.
func (opts Options) DropsEverything() bool {
	return opts.LengthThreshold == math.MaxInt32 && opts.CoverageThreshold == math.MaxFloat64
}

// ContigLocation returns where assembled contigs are cached, and whether
// newly assembled contigs are written there.
func (opts Options) ContigLocation() (string, bool) {
	if opts.OutputContigs {
		return opts.OutputLocation, true
	}
	if opts.StagingLocation != "" {
		return opts.StagingLocation, true
	}
	return opts.OutputLocation, false
}

// Requests builds the variant requests for the configured regions.
func (opts Options) Requests(ctx context.Context, catalog genomics.ContigCatalog, logger *zap.Logger) ([]genomics.VariantRequest, error) {
	return genomics.BuildRequests(ctx, catalog, opts.DatasetID, genomics.RequestOptions{
		AllContigs: opts.AllContigs,
		ExcludeXY:  opts.ExcludeXY,
		References: opts.References,
		ShardSize:  opts.ShardSize,
	}, logger)
}

// RequestsPath returns the location of the variant request listing written
// by WriteRequests.
func (opts Options) RequestsPath() string {
	return store.Join(opts.OutputLocation, opts.OutputPrefix+"Requests.json")
}

// WriteRequests builds the variant requests for the configured regions and
// writes them to RequestsPath as a JSON array.
func (opts Options) WriteRequests(ctx context.Context, catalog genomics.ContigCatalog, s store.ObjectStore, logger *zap.Logger) ([]genomics.VariantRequest, error) {
	requests, err := opts.Requests(ctx, catalog, logger)
	if err != nil {
		return nil, err
	}
	if requests == nil {
		requests = []genomics.VariantRequest{}
	}
	data, err := json.MarshalIndent(requests, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding requests: %v", err)
	}
	if err := s.Write(ctx, opts.RequestsPath(), append(data, '\n')); err != nil {
		return nil, err
	}
	return requests, nil
}

// kValues returns the configured k values without duplicates, in order.
func (opts Options) kValues() []int {
	seen := make(map[int]bool)
	var ks []int
	for _, k := range opts.KValues {
		if !seen[k] {
			seen[k] = true
			ks = append(ks, k)
		}
	}
	return ks
}

func (opts Options) parallelism() int {
	if opts.Parallelism > 0 {
		return opts.Parallelism
	}
	return runtime.NumCPU()
}
