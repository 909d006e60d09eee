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

// Package kmer extracts fixed length overlapping substrings from contigs.
package kmer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/googlegenomics/kmerindex/genomics"
	"github.com/googlegenomics/kmerindex/internal/contig"
)

const (
	// MinK and MaxK bound the supported k values.
	MinK = 1
	MaxK = 256
)

// Record is a single k-mer occurrence.
type Record struct {
	Kmer      string
	Accession string
	Position  int
}

// InvalidKValueError is returned for a k outside [MinK, MaxK].
type InvalidKValueError struct {
	K int
}

func (err *InvalidKValueError) Error() string {
	return fmt.Sprintf("k value %d must be between %d and %d", err.K, MinK, MaxK)
}

// Generator walks the overlapping k-length windows of a contig.  It is used
// like bufio.Scanner:
//
//	g, err := kmer.Generate(c, 21)
//	for g.Scan() {
//		rec := g.Record()
//	}
//
// A contig of length L yields max(0, L-k+1) records.
type Generator struct {
	contig contig.Assembled
	k      int
	next   int
	record Record
}

// Generate returns a Generator over the k-mers of c.
func Generate(c contig.Assembled, k int) (*Generator, error) {
	if err := CheckK(k); err != nil {
		return nil, err
	}
	return &Generator{contig: c, k: k}, nil
}

// CheckK returns an *InvalidKValueError when k is out of bounds.
func CheckK(k int) error {
	if k < MinK || k > MaxK {
		return &InvalidKValueError{K: k}
	}
	return nil
}

// Reset rewinds the generator to the first window.
func (g *Generator) Reset() {
	g.next = 0
	g.record = Record{}
}

// Scan advances to the next window, returning false once every window has
// been produced.
func (g *Generator) Scan() bool {
	seq := g.contig.Sequence
	if g.next > len(seq)-g.k {
		return false
	}
	g.record = Record{
		Kmer:      seq[g.next : g.next+g.k],
		Accession: g.contig.Accession,
		Position:  g.next,
	}
	g.next++
	return true
}

// Record returns the window produced by the most recent call to Scan.
func (g *Generator) Record() Record {
	return g.record
}

// All drains a fresh pass over the generator.
func (g *Generator) All() []Record {
	g.Reset()
	var records []Record
	for g.Scan() {
		records = append(records, g.Record())
	}
	return records
}

// ParseKValues parses a comma separated list of k values.  Non-integer tokens
// produce a *genomics.ParseError and out of range values an
// *InvalidKValueError.
func ParseKValues(input string) ([]int, error) {
	var values []int
	for _, token := range strings.Split(input, ",") {
		token = strings.TrimSpace(token)
		k, err := strconv.Atoi(token)
		if err != nil {
			return nil, genomics.NewParseError(input, token, err)
		}
		if err := CheckK(k); err != nil {
			return nil, err
		}
		values = append(values, k)
	}
	return values, nil
}
