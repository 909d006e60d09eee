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

// Package assembly turns accessions into contigs, reusing previously
// assembled contigs from object storage when they are present.
package assembly

import (
	"bytes"
	"context"
	"fmt"

	"github.com/googlegenomics/kmerindex/internal/contig"
	"github.com/googlegenomics/kmerindex/store"
	"go.uber.org/zap"
)

// Assembler produces the contigs for a single accession.
type Assembler interface {
	Assemble(ctx context.Context, accession string) ([]contig.Assembled, error)
}

// AssemblyError reports an assembler failure for one accession.
type AssemblyError struct {
	Accession string
	Cause     error
}

func (err *AssemblyError) Error() string {
	return fmt.Sprintf("assembling %s: %v", err.Accession, err.Cause)
}

func (err *AssemblyError) Unwrap() error {
	return err.Cause
}

// Status is the outcome of consulting the cache for an accession.
type Status int

const (
	// NeedsAssembly means the accession must be assembled.
	NeedsAssembly Status = iota
	// Cached means contigs for the accession are already in storage.
	Cached
)

func (s Status) String() string {
	switch s {
	case NeedsAssembly:
		return "NEEDS_ASSEMBLY"
	case Cached:
		return "CACHED"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Resolution is the gate's decision for one accession.
type Resolution struct {
	Status Status
	// Path is where the contigs for the accession are (or will be) stored.
	Path string
}

// Gate decides whether an accession needs assembling.  The check is a
// point-in-time check with no locking: concurrent runs may both assemble the
// same accession, and the later write wins.
type Gate struct {
	Store    store.ObjectStore
	Location string
	Force    bool
}

// ContigPath returns the cache location of the contigs for accession.
func ContigPath(location, accession string) string {
	return store.Join(location, "contigs", accession+".fasta")
}

// Resolve returns the cache status of accession.  When Force is set the store
// is never consulted.
func (g Gate) Resolve(ctx context.Context, accession string) (Resolution, error) {
	path := ContigPath(g.Location, accession)
	if g.Force {
		return Resolution{NeedsAssembly, path}, nil
	}
	exists, err := g.Store.Exists(ctx, path)
	if err != nil {
		return Resolution{}, err
	}
	if exists {
		return Resolution{Cached, path}, nil
	}
	return Resolution{NeedsAssembly, path}, nil
}

// Stage produces the contigs for accessions, reading cached artifacts where
// the gate allows and otherwise running the assembler.
type Stage struct {
	Gate      Gate
	Assembler Assembler
	// Persist controls whether freshly assembled contigs are written to the
	// gate's location.
	Persist bool
	Logger  *zap.Logger
}

// Result describes how Run obtained its contigs.
type Result struct {
	Contigs []contig.Assembled
	Status  Status
}

// Run returns the contigs for accession.  Assembler failures are returned as
// an *AssemblyError and are not retried; storage failures as a *store.Error.
func (s Stage) Run(ctx context.Context, accession string) (Result, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	resolution, err := s.Gate.Resolve(ctx, accession)
	if err != nil {
		return Result{}, err
	}

	if resolution.Status == Cached {
		data, err := s.Gate.Store.Read(ctx, resolution.Path)
		if err != nil {
			return Result{}, err
		}
		contigs, err := contig.ParseFASTA(accession, bytes.NewReader(data))
		if err != nil {
			return Result{}, fmt.Errorf("reading cached contigs %s: %v", resolution.Path, err)
		}
		logger.Debug("Using cached contigs",
			zap.String("accession", accession),
			zap.String("path", resolution.Path),
			zap.Int("contigs", len(contigs)))
		return Result{contigs, Cached}, nil
	}

	contigs, err := s.Assembler.Assemble(ctx, accession)
	if err != nil {
		return Result{}, &AssemblyError{Accession: accession, Cause: err}
	}
	for i := range contigs {
		contigs[i].Accession = accession
	}
	logger.Debug("Assembled contigs",
		zap.String("accession", accession),
		zap.Int("contigs", len(contigs)))

	if s.Persist {
		if err := s.Gate.Store.Write(ctx, resolution.Path, contig.EncodeFASTA(contigs)); err != nil {
			return Result{}, err
		}
	}
	return Result{contigs, NeedsAssembly}, nil
}
