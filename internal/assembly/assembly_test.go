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

package assembly

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/googlegenomics/kmerindex/internal/contig"
	"github.com/googlegenomics/kmerindex/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	objects map[string][]byte
	lookups  int
	writes  int
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) Exists(_ context.Context, path string) (bool, error) {
	s.lookups++
	if s.err != nil {
		return false, s.err
	}
	_, ok := s.objects[path]
	return ok, nil
}

func (s *fakeStore) Read(_ context.Context, path string) ([]byte, error) {
	data, ok := s.objects[path]
	if !ok {
		return nil, &store.Error{Code: "NotFound", Op: "reading", Path: path}
	}
	return data, nil
}

func (s *fakeStore) Write(_ context.Context, path string, data []byte) error {
	s.writes++
	s.objects[path] = data
	return nil
}

type fakeAssembler struct {
	contigs map[string][]contig.Assembled
	calls   []string
	err     error
}

func (a *fakeAssembler) Assemble(_ context.Context, accession string) ([]contig.Assembled, error) {
	a.calls = append(a.calls, accession)
	if a.err != nil {
		return nil, a.err
	}
	return a.contigs[accession], nil
}

func TestContigPath(t *testing.T) {
	assert.Equal(t, "gs://bucket/staging/contigs/SRR1.fasta", ContigPath("gs://bucket/staging", "SRR1"))
	assert.Equal(t, filepath.Join("out", "contigs", "SRR1.fasta"), ContigPath("out", "SRR1"))
}

func TestGate_Resolve(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	s.objects[ContigPath("gs://b/out", "SRR1")] = []byte(">c\nACGT\n")

	testCases := []struct {
		name      string
		accession string
		force     bool
		want      Status
		lookups    int
	}{
		{"cached", "SRR1", false, Cached, 1},
		{"missing", "SRR2", false, NeedsAssembly, 1},
		{"forced with artifact", "SRR1", true, NeedsAssembly, 0},
		{"forced without artifact", "SRR2", true, NeedsAssembly, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s.lookups = 0
			gate := Gate{Store: s, Location: "gs://b/out", Force: tc.force}
			got, err := gate.Resolve(ctx, tc.accession)
			require.NoError(t, err)
			if got.Status != tc.want {
				t.Errorf("Resolve(%q): got %v, want %v", tc.accession, got.Status, tc.want)
			}
			assert.Equal(t, ContigPath("gs://b/out", tc.accession), got.Path)
			assert.Equal(t, tc.lookups, s.lookups)
		})
	}
}

func TestGate_ResolveStorageError(t *testing.T) {
	s := newFakeStore()
	s.err = &store.Error{Code: "PermissionDenied", Op: "probing", Path: "x"}
	_, err := Gate{Store: s, Location: "gs://b"}.Resolve(context.Background(), "SRR1")
	var storeErr *store.Error
	require.True(t, errors.As(err, &storeErr), "got %v, want *store.Error", err)
}

func TestStage_CachedSkipsAssembler(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	s.objects[ContigPath("out", "SRR1")] = []byte(">NODE_1_length_4_cov_2.0\nACGT\n")
	assembler := &fakeAssembler{}

	stage := Stage{Gate: Gate{Store: s, Location: "out"}, Assembler: assembler, Persist: true}
	got, err := stage.Run(ctx, "SRR1")
	require.NoError(t, err)
	assert.Equal(t, Cached, got.Status)
	assert.Empty(t, assembler.calls)
	assert.Equal(t, 0, s.writes)
	require.Len(t, got.Contigs, 1)
	assert.Equal(t, contig.Assembled{
		Accession: "SRR1", Name: "NODE_1_length_4_cov_2.0", Sequence: "ACGT", Length: 4, Coverage: 2,
	}, got.Contigs[0])
}

func TestStage_AssemblesAndPersists(t *testing.T) {
	ctx := context.Background()
	assembler := &fakeAssembler{contigs: map[string][]contig.Assembled{
		"SRR2": {{Sequence: "GATTACA", Length: 7, Coverage: 3.5}},
	}}

	for _, persist := range []bool{false, true} {
		s := newFakeStore()
		stage := Stage{Gate: Gate{Store: s, Location: "out"}, Assembler: assembler, Persist: persist}
		got, err := stage.Run(ctx, "SRR2")
		require.NoError(t, err)
		assert.Equal(t, NeedsAssembly, got.Status)
		require.Len(t, got.Contigs, 1)
		assert.Equal(t, "SRR2", got.Contigs[0].Accession)

		_, written := s.objects[ContigPath("out", "SRR2")]
		if written != persist {
			t.Errorf("Run(persist=%v): artifact written = %v, want %v", persist, written, persist)
		}
	}
}

func TestStage_ForceReassembles(t *testing.T) {
	s := newFakeStore()
	s.objects[ContigPath("out", "SRR1")] = []byte(">old\nAAAA\n")
	assembler := &fakeAssembler{contigs: map[string][]contig.Assembled{
		"SRR1": {{Sequence: "CCCC", Length: 4}},
	}}
	stage := Stage{Gate: Gate{Store: s, Location: "out", Force: true}, Assembler: assembler, Persist: true}

	got, err := stage.Run(context.Background(), "SRR1")
	require.NoError(t, err)
	assert.Equal(t, []string{"SRR1"}, assembler.calls)
	assert.Equal(t, "CCCC", got.Contigs[0].Sequence)
	assert.Equal(t, 0, s.lookups)
	assert.Contains(t, string(s.objects[ContigPath("out", "SRR1")]), "CCCC")
}

func TestStage_AssemblyError(t *testing.T) {
	cause := errors.New("assembler crashed")
	stage := Stage{
		Gate:      Gate{Store: newFakeStore(), Location: "out"},
		Assembler: &fakeAssembler{err: cause},
	}
	_, err := stage.Run(context.Background(), "SRR3")

	var assemblyErr *AssemblyError
	require.True(t, errors.As(err, &assemblyErr), "got %v, want *AssemblyError", err)
	assert.Equal(t, "SRR3", assemblyErr.Accession)
	assert.True(t, errors.Is(err, cause))
}

func TestExecAssembler(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	assembler := ExecAssembler{
		Command: "sh",
		Args:    []string{"-c", `printf '>NODE_1_length_8_cov_3.5\nacgtacgt\n>%s_tail\nTT\n' "$ACCESSION"`, "assembler"},
	}
	got, err := assembler.Assemble(context.Background(), "SRR9")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ACGTACGT", got[0].Sequence)
	assert.Equal(t, 8, got[0].Length)
	assert.Equal(t, 3.5, got[0].Coverage)
	assert.Equal(t, "SRR9_tail", got[1].Name)
}

func TestExecAssembler_Failure(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	assembler := ExecAssembler{Command: "sh", Args: []string{"-c", "echo boom >&2; exit 3", "assembler"}}
	_, err := assembler.Assemble(context.Background(), "SRR9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
