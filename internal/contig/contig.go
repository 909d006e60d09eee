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

// Package contig holds assembled contigs and the length/coverage filter that
// decides which of them contribute to a k-mer index.
package contig

import (
	"math"
)

// Assembled is a contiguous sequence produced by assembling the reads of one
// accession.
type Assembled struct {
	Accession string
	Name      string
	Sequence  string
	// Length is the assembler reported length, which normally equals
	// len(Sequence).
	Length   int
	Coverage float64
}

// Filter drops contigs that are too short or too poorly supported.  A contig
// is dropped when its length is less than or equal to LengthThreshold, or when
// its coverage is strictly less than CoverageThreshold.
type Filter struct {
	LengthThreshold   int
	CoverageThreshold float64
}

// DefaultFilter returns the filter used when no thresholds are configured.
func DefaultFilter() Filter {
	return Filter{
		LengthThreshold:   math.MaxInt32,
		CoverageThreshold: math.MaxFloat64,
	}
}

// Keep reports whether c survives the filter.  Contigs with a negative length
// or a coverage that is negative, NaN or infinite are always dropped.
func (f Filter) Keep(c Assembled) bool {
	if c.Length < 0 || c.Coverage < 0 || math.IsNaN(c.Coverage) || math.IsInf(c.Coverage, 0) {
		return false
	}
	if c.Length <= f.LengthThreshold {
		return false
	}
	return c.Coverage >= f.CoverageThreshold
}

// Apply returns the contigs in cs that f keeps, in their original order,
// along with the number dropped.
func (f Filter) Apply(cs []Assembled) ([]Assembled, int) {
	var kept []Assembled
	for _, c := range cs {
		if f.Keep(c) {
			kept = append(kept, c)
		}
	}
	return kept, len(cs) - len(kept)
}
