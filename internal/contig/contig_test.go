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
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Keep(t *testing.T) {
	f := Filter{LengthThreshold: 50, CoverageThreshold: 2.5}
	epsilon := math.Nextafter(2.5, math.Inf(1))

	testCases := []struct {
		name     string
		length   int
		coverage float64
		want     bool
	}{
		{"length equal to threshold", 50, 10, false},
		{"length one above threshold", 51, 10, true},
		{"length below threshold", 40, 10, false},
		{"coverage equal to threshold", 80, 2.5, false},
		{"coverage just above threshold", 80, epsilon, true},
		{"coverage below threshold", 80, 1, false},
		{"negative length", -1, 10, false},
		{"negative coverage", 80, -1, false},
		{"NaN coverage", 80, math.NaN(), false},
		{"infinite coverage", 80, math.Inf(1), false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := f.Keep(Assembled{Length: tc.length, Coverage: tc.coverage})
			if got != tc.want {
				t.Errorf("Keep(length=%d, coverage=%v): got %v, want %v", tc.length, tc.coverage, got, tc.want)
			}
		})
	}
}

func TestFilter_KeepCoverageEqualToThreshold(t *testing.T) {
	// Coverage exactly at the threshold is dropped, one ulp above is kept.
	f := Filter{LengthThreshold: 0, CoverageThreshold: 7}
	assert.False(t, f.Keep(Assembled{Length: 1, Coverage: 7}))
	assert.True(t, f.Keep(Assembled{Length: 1, Coverage: math.Nextafter(7, 8)}))
}

func TestDefaultFilter_DropsEverything(t *testing.T) {
	f := DefaultFilter()
	if f.Keep(Assembled{Length: 1 << 20, Coverage: 1e9}) {
		t.Errorf("DefaultFilter kept a contig, want every contig dropped")
	}
}

func TestFilter_Apply(t *testing.T) {
	f := Filter{LengthThreshold: 50}
	kept, dropped := f.Apply([]Assembled{
		{Name: "a", Length: 40},
		{Name: "b", Length: 80},
		{Name: "c", Length: 51},
	})
	require.Len(t, kept, 2)
	assert.Equal(t, "b", kept[0].Name)
	assert.Equal(t, "c", kept[1].Name)
	assert.Equal(t, 1, dropped)
}

func TestParseFASTA(t *testing.T) {
	input := ">NODE_1_length_12_cov_5.5 some description\n" +
		"acgtac\ngtacgt\n" +
		">plain\n" +
		"TTTT\n"
	got, err := ParseFASTA("SRR1", strings.NewReader(input))
	require.NoError(t, err)

	want := []Assembled{
		{Accession: "SRR1", Name: "NODE_1_length_12_cov_5.5", Sequence: "ACGTACGTACGT", Length: 12, Coverage: 5.5},
		{Accession: "SRR1", Name: "plain", Sequence: "TTTT", Length: 4},
	}
	assert.Equal(t, want, got)
}

func TestParseFASTA_Empty(t *testing.T) {
	got, err := ParseFASTA("SRR1", strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseFASTA_Malformed(t *testing.T) {
	_, err := ParseFASTA("SRR1", strings.NewReader("ACGT\n>name\nACGT\n"))
	if err == nil {
		t.Fatalf("ParseFASTA succeeded on sequence data before the first header, wanted error")
	}
	assert.Contains(t, err.Error(), "SRR1")
}

func TestEncodeFASTA_RoundTrip(t *testing.T) {
	contigs := []Assembled{
		{Accession: "SRR2", Sequence: strings.Repeat("ACGT", 40), Length: 160, Coverage: 12.25},
		{Accession: "SRR2", Sequence: "GATTACA", Length: 7, Coverage: 0},
	}
	got, err := ParseFASTA("SRR2", bytes.NewReader(EncodeFASTA(contigs)))
	require.NoError(t, err)
	require.Len(t, got, len(contigs))
	for i := range contigs {
		assert.Equal(t, contigs[i].Sequence, got[i].Sequence)
		assert.Equal(t, contigs[i].Length, got[i].Length)
		assert.Equal(t, contigs[i].Coverage, got[i].Coverage)
	}
}

func TestParseFASTA_HeaderAttributes(t *testing.T) {
	testCases := []struct {
		name, input  string
		wantName     string
		wantLength   int
		wantCoverage float64
	}{
		{"attributes after space", ">contig_1 len=8 cov=12.5\nACGTACGT\n", "contig_1", 8, 12.5},
		{"length attribute overrides sequence", ">c1 len=100\nACGT\n", "c1", 100, 0},
		{"assembler name with description", ">NODE_3_length_4_cov_7 x=1\nACGT\n", "NODE_3_length_4_cov_7", 4, 7},
		{"windows line endings", ">c2 cov=3\r\nACGT\r\n", "c2", 4, 3},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseFASTA("SRR1", strings.NewReader(tc.input))
			require.NoError(t, err)
			require.Len(t, got, 1)
			if got[0].Name != tc.wantName || got[0].Length != tc.wantLength || got[0].Coverage != tc.wantCoverage {
				t.Errorf("ParseFASTA(%q): got (%q, %v, %v), want (%q, %v, %v)", tc.input,
					got[0].Name, got[0].Length, got[0].Coverage, tc.wantName, tc.wantLength, tc.wantCoverage)
			}
		})
	}
}

func TestParseFASTA_EmptyRecordKeepsHeadersAligned(t *testing.T) {
	input := ">a cov=1\n>b cov=2\nCCCC\n>c cov=3\nGGGG\n"
	got, err := ParseFASTA("SRR1", strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Name)
	assert.Equal(t, 2.0, got[0].Coverage)
	assert.Equal(t, "c", got[1].Name)
	assert.Equal(t, 3.0, got[1].Coverage)
}

func TestParseFASTA_DuplicateNames(t *testing.T) {
	_, err := ParseFASTA("SRR1", strings.NewReader(">c\nAAAA\n>c\nCCCC\n"))
	if err == nil {
		t.Fatalf("ParseFASTA succeeded on duplicate contig names, wanted error")
	}
	assert.Contains(t, err.Error(), `"c"`)
}

func TestEncodeFASTA_RoundTripKeepsFilterOutcome(t *testing.T) {
	filter := Filter{LengthThreshold: 0, CoverageThreshold: 0}
	testCases := []struct {
		name     string
		length   int
		coverage float64
	}{
		{"negative coverage", 4, -1},
		{"NaN coverage", 4, math.NaN()},
		{"positive infinity", 4, math.Inf(1)},
		{"negative infinity", 4, math.Inf(-1)},
		{"negative length", -3, 2},
		{"valid", 4, 2},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fresh := Assembled{Accession: "SRR1", Sequence: "ACGT", Length: tc.length, Coverage: tc.coverage}
			got, err := ParseFASTA("SRR1", bytes.NewReader(EncodeFASTA([]Assembled{fresh})))
			require.NoError(t, err)
			require.Len(t, got, 1)
			cached := got[0]

			if got, want := filter.Keep(cached), filter.Keep(fresh); got != want {
				t.Errorf("Keep(cached): got %v, want %v", got, want)
			}
			if got, want := cached.Length, tc.length; got != want {
				t.Errorf("cached length: got %v, want %v", got, want)
			}
			if math.IsNaN(tc.coverage) {
				assert.True(t, math.IsNaN(cached.Coverage), "got %v, want NaN", cached.Coverage)
			} else if got, want := cached.Coverage, tc.coverage; got != want {
				t.Errorf("cached coverage: got %v, want %v", got, want)
			}
		})
	}
}
