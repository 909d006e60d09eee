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
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestShards_Cover(t *testing.T) {
	testCases := []struct {
		name       string
		start, end int64
		size       int64
		shards     int
	}{
		{"exact multiple", 0, 100, 10, 10},
		{"remainder", 5, 106, 10, 11},
		{"smaller than shard", 41196311, 41277499, 1000000, 1},
		{"single base", 7, 8, 3, 1},
		{"shard of one", 0, 5, 1, 5},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			contig := Contig{"17", tc.start, tc.end}
			shards, err := contig.Shards(tc.size)
			if err != nil {
				t.Fatalf("Shards() returned unexpected error: %v", err)
			}
			if got, want := len(shards), tc.shards; got != want {
				t.Fatalf("Wrong number of shards: got %d, want %d", got, want)
			}
			cursor := tc.start
			for i, shard := range shards {
				if shard.ReferenceName != "17" {
					t.Errorf("Shard %d: wrong reference %q", i, shard.ReferenceName)
				}
				if shard.Start != cursor {
					t.Errorf("Shard %d: got start %d, want %d", i, shard.Start, cursor)
				}
				if width := shard.End - shard.Start; width <= 0 || width > tc.size {
					t.Errorf("Shard %d: width %d outside (0, %d]", i, width, tc.size)
				}
				cursor = shard.End
			}
			if cursor != tc.end {
				t.Errorf("Shards end at %d, want %d", cursor, tc.end)
			}
		})
	}
}

func TestShards_SmallRangeIsWhole(t *testing.T) {
	contig := Contig{"1", 10, 20}
	shards, err := contig.Shards(DefaultShardSize)
	if err != nil {
		t.Fatalf("Shards() returned unexpected error: %v", err)
	}
	if want := []Contig{contig}; !reflect.DeepEqual(shards, want) {
		t.Errorf("Wrong shards: got %v, want %v", shards, want)
	}
}

func TestShards_InvalidInputs(t *testing.T) {
	testCases := []struct {
		name   string
		contig Contig
		size   int64
	}{
		{"empty range", Contig{"1", 10, 10}, 5},
		{"reversed range", Contig{"1", 10, 5}, 5},
		{"negative start", Contig{"1", -1, 5}, 5},
		{"zero shard size", Contig{"1", 0, 5}, 0},
		{"negative shard size", Contig{"1", 0, 5}, -3},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.contig.Shards(tc.size)
			var rangeErr *InvalidRangeError
			if !errors.As(err, &rangeErr) {
				t.Fatalf("Wrong error: got %v, want *InvalidRangeError", err)
			}
		})
	}
}

func TestParseContigs(t *testing.T) {
	got, err := ParseContigs("17:41196311:41277499, X:0:10")
	if err != nil {
		t.Fatalf("ParseContigs() returned unexpected error: %v", err)
	}
	want := []Contig{{"17", 41196311, 41277499}, {"X", 0, 10}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Wrong contigs: got %v, want %v", got, want)
	}
}

func TestParseContigs_InvalidInputs(t *testing.T) {
	testCases := []struct {
		name, input, token string
	}{
		{"empty", "", ""},
		{"missing end", "17:100", "17:100"},
		{"non-numeric start", "1:1:2,17:abc:100", "17:abc:100"},
		{"non-numeric end", "17:1:z", "17:1:z"},
		{"too many fields", "17:1:2:3", "17:1:2:3"},
		{"missing name", ":1:2", ":1:2"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseContigs(tc.input)
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("Wrong error: got %v, want *ParseError", err)
			}
			if got, want := parseErr.Token, tc.token; got != want {
				t.Errorf("Wrong token: got %q, want %q", got, want)
			}
		})
	}
}

func TestParseContigs_InvalidRange(t *testing.T) {
	_, err := ParseContigs("17:100:50")
	var rangeErr *InvalidRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("Wrong error: got %v, want *InvalidRangeError", err)
	}
}

type fakeCatalog struct {
	contigs []Contig
	calls   int
}

func (fake *fakeCatalog) ListContigs(_ context.Context, _ string, _ bool) ([]Contig, error) {
	fake.calls++
	return fake.contigs, nil
}

func TestBuildRequests_References(t *testing.T) {
	ctx := context.Background()
	opts := RequestOptions{References: "1:0:25,2:5:15", ShardSize: 10}
	got, err := BuildRequests(ctx, nil, "dataset", opts, nil)
	if err != nil {
		t.Fatalf("BuildRequests() returned unexpected error: %v", err)
	}
	want := []VariantRequest{
		{"dataset", "1", 0, 10},
		{"dataset", "1", 10, 20},
		{"dataset", "1", 20, 25},
		{"dataset", "2", 5, 15},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Wrong requests: got %v, want %v", got, want)
	}
}

func TestBuildRequests_DefaultsToBRCA1(t *testing.T) {
	got, err := BuildRequests(context.Background(), nil, "dataset", RequestOptions{}, nil)
	if err != nil {
		t.Fatalf("BuildRequests() returned unexpected error: %v", err)
	}
	want := []VariantRequest{{"dataset", "17", 41196311, 41277499}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Wrong requests: got %v, want %v", got, want)
	}
}

func TestBuildRequests_AllContigs(t *testing.T) {
	catalog := &fakeCatalog{contigs: []Contig{{"1", 0, 30}, {"X", 0, 10}, {"Y", 0, 10}, {"MT", 0, 5}}}
	testCases := []struct {
		name      string
		excludeXY bool
		want      []string
	}{
		{"keep XY", false, []string{"1", "1", "X", "Y", "MT"}},
		{"exclude XY", true, []string{"1", "1", "MT"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := RequestOptions{AllContigs: true, ExcludeXY: tc.excludeXY, ShardSize: 20}
			requests, err := BuildRequests(context.Background(), catalog, "dataset", opts, nil)
			if err != nil {
				t.Fatalf("BuildRequests() returned unexpected error: %v", err)
			}
			var got []string
			for _, request := range requests {
				got = append(got, request.ReferenceName)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Wrong references: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBuildRequests_Deterministic(t *testing.T) {
	opts := RequestOptions{References: "3:0:1000,1:500:2500", ShardSize: 300}
	first, err := BuildRequests(context.Background(), nil, "d", opts, nil)
	if err != nil {
		t.Fatalf("BuildRequests() returned unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := BuildRequests(context.Background(), nil, "d", opts, nil)
		if err != nil {
			t.Fatalf("BuildRequests() returned unexpected error: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("Request order changed between runs: %v vs %v", first, again)
		}
	}
}

func TestBuildRequests_ParseErrorIsFatal(t *testing.T) {
	_, err := BuildRequests(context.Background(), nil, "d", RequestOptions{References: "bogus"}, nil)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Wrong error: got %v, want *ParseError", err)
	}
}
