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

// Package index aggregates k-mer records into per-accession counts and writes
// them in table or entries format.
package index

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"

	farm "github.com/dgryski/go-farm"
	"github.com/googlegenomics/kmerindex/internal/kmer"
)

// Counts maps each k-mer to the number of times it occurs in each accession.
// The zero value is not usable; call NewCounts.
type Counts struct {
	byKmer map[string]map[string]int
}

// NewCounts returns an empty Counts.
func NewCounts() *Counts {
	return &Counts{byKmer: make(map[string]map[string]int)}
}

// Add counts one occurrence of rec.
func (c *Counts) Add(rec kmer.Record) {
	c.add(rec.Kmer, rec.Accession, 1)
}

func (c *Counts) add(kmer, accession string, n int) {
	accessions, ok := c.byKmer[kmer]
	if !ok {
		accessions = make(map[string]int)
		c.byKmer[kmer] = accessions
	}
	accessions[accession] += n
}

// Merge adds every count in other to c.  Merging is commutative and
// associative, so partial Counts can be combined in any order.
func (c *Counts) Merge(other *Counts) {
	for kmer, accessions := range other.byKmer {
		for accession, n := range accessions {
			c.add(kmer, accession, n)
		}
	}
}

// Count returns the number of occurrences of kmer in accession.
func (c *Counts) Count(kmer, accession string) int {
	return c.byKmer[kmer][accession]
}

// Len returns the number of distinct k-mers.
func (c *Counts) Len() int {
	return len(c.byKmer)
}

// Kmers returns the distinct k-mers in lexical order.
func (c *Counts) Kmers() []string {
	kmers := make([]string, 0, len(c.byKmer))
	for kmer := range c.byKmer {
		kmers = append(kmers, kmer)
	}
	sort.Strings(kmers)
	return kmers
}

// Accessions returns every accession with at least one k-mer, in lexical
// order.
func (c *Counts) Accessions() []string {
	seen := make(map[string]bool)
	for _, accessions := range c.byKmer {
		for accession := range accessions {
			seen[accession] = true
		}
	}
	names := make([]string, 0, len(seen))
	for accession := range seen {
		names = append(names, accession)
	}
	sort.Strings(names)
	return names
}

// Partitioned splits k-mer counts into a fixed number of disjoint partitions
// keyed by a hash of the k-mer.  Partition i of two Partitioned values of the
// same size hold the same k-mers, so they can be merged pairwise by separate
// goroutines.
type Partitioned []*Counts

// NewPartitioned returns n empty partitions.
func NewPartitioned(n int) Partitioned {
	if n < 1 {
		n = 1
	}
	p := make(Partitioned, n)
	for i := range p {
		p[i] = NewCounts()
	}
	return p
}

// Partition returns the partition that owns kmer.
func (p Partitioned) Partition(kmer string) int {
	return int(farm.Hash64([]byte(kmer)) % uint64(len(p)))
}

// Add counts rec in the partition that owns its k-mer.
func (p Partitioned) Add(rec kmer.Record) {
	p[p.Partition(rec.Kmer)].Add(rec)
}

// Combine merges every partition into a single Counts.
func (p Partitioned) Combine() *Counts {
	all := NewCounts()
	for _, part := range p {
		all.Merge(part)
	}
	return all
}

// OutputPath returns the file name for the index of k-mers of length k.
func OutputPath(prefix string, k int, table bool) string {
	if table {
		return fmt.Sprintf("%sK%d.csv", prefix, k)
	}
	return fmt.Sprintf("%sK%d.txt", prefix, k)
}

// WriteTable writes counts as CSV: a header of "kmer" followed by the sorted
// accessions, then one row per k-mer with a zero where an accession lacks it.
func WriteTable(w io.Writer, counts *Counts) error {
	bw := bufio.NewWriter(w)
	accessions := counts.Accessions()

	bw.WriteString("kmer")
	for _, accession := range accessions {
		bw.WriteByte(',')
		bw.WriteString(accession)
	}
	bw.WriteByte('\n')

	for _, kmer := range counts.Kmers() {
		bw.WriteString(kmer)
		for _, accession := range accessions {
			bw.WriteByte(',')
			bw.WriteString(strconv.Itoa(counts.Count(kmer, accession)))
		}
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing table: %v", err)
	}
	return nil
}

// WriteEntries writes one "kmer<TAB>accession<TAB>count" line for every
// non-zero count, grouped by k-mer in lexical order.
func WriteEntries(w io.Writer, counts *Counts) error {
	bw := bufio.NewWriter(w)
	for _, kmer := range counts.Kmers() {
		accessions := counts.byKmer[kmer]
		names := make([]string, 0, len(accessions))
		for accession := range accessions {
			names = append(names, accession)
		}
		sort.Strings(names)
		for _, accession := range names {
			fmt.Fprintf(bw, "%s\t%s\t%d\n", kmer, accession, accessions[accession])
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing entries: %v", err)
	}
	return nil
}
