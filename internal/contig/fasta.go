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

package contig

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"regexp"
	"strconv"
	"strings"

	"github.com/grailbio/bio/encoding/fasta"
	"github.com/pkg/errors"
)

const basesPerLine = 60

var (
	lengthPattern   = regexp.MustCompile(`(?:_length_|len=)(-?[0-9]+)`)
	coveragePattern = regexp.MustCompile(`(?:_cov_|cov=)([-+]?(?:[0-9]+(?:\.[0-9]+)?(?:[eE][-+]?[0-9]+)?|NaN|Inf))`)
)

// header is the full text of a FASTA header line and the sequence name that
// fasta.New derives from it.
type header struct {
	name, text string
}

// recordHeaders returns the headers of the named records in data that carry
// sequence, in file order.  It follows the record rules of fasta.New so the
// result lines up with the sequence names it reports.
func recordHeaders(data []byte) []header {
	var (
		headers []header
		current *header
		hasSeq  bool
	)
	flush := func() {
		if current != nil && hasSeq && current.name != "" {
			headers = append(headers, *current)
		}
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		if line[0] != '>' {
			hasSeq = true
			continue
		}
		flush()
		text := line[1:]
		current = &header{name: strings.Split(text, " ")[0], text: text}
		hasSeq = false
	}
	flush()
	return headers
}

// lastMatch returns the submatch of the last occurrence of pattern in text.
func lastMatch(pattern *regexp.Regexp, text string) (string, bool) {
	matches := pattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", false
	}
	return matches[len(matches)-1][1], true
}

// ParseFASTA reads the contigs assembled for accession from r.  The length
// and coverage come from the full header line: NODE_<n>_length_<L>_cov_<C>
// as well as len=<L> and cov=<C> attributes are understood.  Without them the
// length is that of the sequence and the coverage is zero.  Sequences are
// upper-cased.  Two records with the same name are an error.
func ParseFASTA(accession string, r io.Reader) ([]Assembled, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "reading contigs for %s", accession)
	}
	headers := recordHeaders(data)
	seen := make(map[string]bool, len(headers))
	for _, h := range headers {
		if seen[h.name] {
			return nil, errors.Errorf("parsing contigs for %s: duplicate contig name %q", accession, h.name)
		}
		seen[h.name] = true
	}

	f, err := fasta.New(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "parsing contigs for %s", accession)
	}

	var contigs []Assembled
	for _, name := range f.SeqNames() {
		n, err := f.Len(name)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing contigs for %s", accession)
		}
		if name == "" || n == 0 {
			continue
		}
		if len(contigs) >= len(headers) || headers[len(contigs)].name != name {
			return nil, errors.Errorf("parsing contigs for %s: no header for contig %q", accession, name)
		}
		text := headers[len(contigs)].text
		seq, err := f.Get(name, 0, n)
		if err != nil {
			return nil, errors.Wrapf(err, "reading contig %s of %s", name, accession)
		}

		c := Assembled{
			Accession: accession,
			Name:      name,
			Sequence:  strings.ToUpper(seq),
			Length:    len(seq),
		}
		if m, ok := lastMatch(lengthPattern, text); ok {
			if c.Length, err = strconv.Atoi(m); err != nil {
				return nil, errors.Wrapf(err, "invalid length in contig header %q", text)
			}
		}
		if m, ok := lastMatch(coveragePattern, text); ok {
			if c.Coverage, err = strconv.ParseFloat(m, 64); err != nil {
				return nil, errors.Wrapf(err, "invalid coverage in contig header %q", text)
			}
		}
		contigs = append(contigs, c)
	}
	return contigs, nil
}

// EncodeFASTA renders contigs in the header format understood by ParseFASTA,
// so that a cached artifact parses back to the same lengths and coverages,
// including negative, NaN and infinite values.
func EncodeFASTA(contigs []Assembled) []byte {
	var buf bytes.Buffer
	for i, c := range contigs {
		fmt.Fprintf(&buf, ">%s_%d_length_%d_cov_%s\n", c.Accession, i+1, c.Length,
			strconv.FormatFloat(c.Coverage, 'f', -1, 64))
		for start := 0; start < len(c.Sequence); start += basesPerLine {
			end := start + basesPerLine
			if end > len(c.Sequence) {
				end = len(c.Sequence)
			}
			buf.WriteString(c.Sequence[start:end])
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}
