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

// Package genomics contains definitions related to genomic coordinate ranges
// and the variant requests that are built from them.
package genomics

import "fmt"

// DefaultShardSize is the number of bases covered by each shard when no
// explicit size is configured.
const DefaultShardSize = 1000000

// BRCA1 is the default reference range used when none is specified.
const BRCA1 = "17:41196311:41277499"

// DefaultDatasetID identifies the 1000 Genomes variant set.
const DefaultDatasetID = "10473108253681171589"

// Contig defines a range over a named reference sequence.
type Contig struct {
	// ReferenceName is the name of the reference sequence, e.g. "17" or "X".
	ReferenceName string
	// Start and End specify the half-open range [Start, End) in base pairs.
	Start, End int64
}

func (contig Contig) String() string {
	return fmt.Sprintf("%s:%d:%d", contig.ReferenceName, contig.Start, contig.End)
}

// Validate returns an *InvalidRangeError if the receiver is not a non-empty
// range starting at a non-negative coordinate.
func (contig Contig) Validate() error {
	if contig.Start < 0 {
		return &InvalidRangeError{contig, "start is negative"}
	}
	if contig.End <= contig.Start {
		return &InvalidRangeError{contig, "end must be greater than start"}
	}
	return nil
}

// Shards splits the receiver into contiguous, non-overlapping pieces of at
// most maxShardSize bases, in ascending coordinate order.  The last shard
// holds any remainder.
func (contig Contig) Shards(maxShardSize int64) ([]Contig, error) {
	if err := contig.Validate(); err != nil {
		return nil, err
	}
	if maxShardSize <= 0 {
		return nil, &InvalidRangeError{contig, fmt.Sprintf("invalid shard size %d", maxShardSize)}
	}

	shards := make([]Contig, 0, (contig.End-contig.Start+maxShardSize-1)/maxShardSize)
	for cursor := contig.Start; cursor < contig.End; cursor += maxShardSize {
		end := cursor + maxShardSize
		if end > contig.End {
			end = contig.End
		}
		shards = append(shards, Contig{contig.ReferenceName, cursor, end})
	}
	return shards, nil
}

// InvalidRangeError reports a Contig whose bounds cannot be sharded.
type InvalidRangeError struct {
	Contig Contig
	Reason string
}

func (err *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range %s: %s", err.Contig, err.Reason)
}

// ParseError reports a malformed token in a reference range or k-value list.
type ParseError struct {
	// Input is the full string being parsed.
	Input string
	// Token is the offending comma separated element of Input.
	Token string
	cause error
}

// NewParseError returns a ParseError for token within input.
func NewParseError(input, token string, cause error) *ParseError {
	return &ParseError{Input: input, Token: token, cause: cause}
}

func (err *ParseError) Error() string {
	if err.cause != nil {
		return fmt.Sprintf("parsing %q: bad token %q: %v", err.Input, err.Token, err.cause)
	}
	return fmt.Sprintf("parsing %q: bad token %q", err.Input, err.Token)
}

func (err *ParseError) Unwrap() error {
	return err.cause
}
