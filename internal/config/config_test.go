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

package config

import (
	"flag"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
accessions = "gs://bucket/accessions.txt"
k-values = "3,21"
length-threshold = 50
coverage-threshold = 2.5
write-table = true
output-location = "gs://bucket/index"
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "gs://bucket/accessions.txt", cfg.Accessions)
	assert.Equal(t, "3,21", cfg.KValues)
	require.NotNil(t, cfg.LengthThreshold)
	assert.Equal(t, 50, *cfg.LengthThreshold)
	require.NotNil(t, cfg.CoverageThreshold)
	assert.Equal(t, 2.5, *cfg.CoverageThreshold)
	assert.True(t, cfg.WriteTable)
	assert.Nil(t, (&Index{}).LengthThreshold)
}

func TestParse_UnknownKey(t *testing.T) {
	if _, err := Parse([]byte(`kvalues = "3"`)); err == nil {
		t.Error("Parse with an unknown key succeeded, wanted error")
	}
}

func TestValues(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	want := map[string]string{
		"accessions":         "gs://bucket/accessions.txt",
		"k-values":           "3,21",
		"length-threshold":   "50",
		"coverage-threshold": "2.5",
		"write-table":        "true",
		"output-location":    "gs://bucket/index",
	}
	assert.Equal(t, want, cfg.Values())
}

func TestApply_CommandLineWins(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	kValues := fs.String("k-values", "", "")
	length := fs.Int("length-threshold", 0, "")
	table := fs.Bool("write-table", false, "")
	output := fs.String("output-location", "", "")
	require.NoError(t, fs.Parse([]string{"-k-values=5"}))

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, cfg.Apply(fs))

	assert.Equal(t, "5", *kValues)
	assert.Equal(t, 50, *length)
	assert.True(t, *table)
	assert.Equal(t, "gs://bucket/index", *output)
}

func TestApply_EveryCommandFlag(t *testing.T) {
	cfg, err := Parse([]byte(`
shard-size = 5000
write-requests = true
cpuprofile = "/tmp/profiles"
track_usage = true
`))
	require.NoError(t, err)

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	shardSize := fs.Int64("shard-size", 1000000, "")
	writeRequests := fs.Bool("write-requests", false, "")
	cpuProfile := fs.String("cpuprofile", "", "")
	trackUsage := fs.Bool("track_usage", false, "")
	require.NoError(t, fs.Parse(nil))
	require.NoError(t, cfg.Apply(fs))

	assert.Equal(t, int64(5000), *shardSize)
	assert.True(t, *writeRequests)
	assert.Equal(t, "/tmp/profiles", *cpuProfile)
	assert.True(t, *trackUsage)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kmerindex.toml")
	require.NoError(t, ioutil.WriteFile(path, []byte(sample), 0644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "3,21", cfg.KValues)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load of a missing file succeeded, wanted error")
	}
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, ioutil.WriteFile(path, []byte("KMERINDEX_TEST_VALUE=from-file\n"), 0644))
	os.Unsetenv("KMERINDEX_TEST_VALUE")
	defer os.Unsetenv("KMERINDEX_TEST_VALUE")

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "from-file", os.Getenv("KMERINDEX_TEST_VALUE"))

	if err := LoadEnv(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("LoadEnv of a missing named file succeeded, wanted error")
	}
}
