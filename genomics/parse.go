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

package genomics

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errWrongFieldCount = errors.New("want reference:start:end")

// ParseContigs parses a comma separated list of reference:start:end tuples.
// Malformed tuples produce a *ParseError naming the offending token and ranges
// that cannot be sharded produce an *InvalidRangeError.
func ParseContigs(input string) ([]Contig, error) {
	var contigs []Contig
	for _, token := range strings.Split(input, ",") {
		token = strings.TrimSpace(token)
		fields := strings.Split(token, ":")
		if len(fields) != 3 || fields[0] == "" {
			return nil, NewParseError(input, token, errWrongFieldCount)
		}

		start, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, NewParseError(input, token, fmt.Errorf("parsing start: %v", err))
		}
		end, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, NewParseError(input, token, fmt.Errorf("parsing end: %v", err))
		}

		contig := Contig{ReferenceName: fields[0], Start: start, End: end}
		if err := contig.Validate(); err != nil {
			return nil, err
		}
		contigs = append(contigs, contig)
	}
	return contigs, nil
}
