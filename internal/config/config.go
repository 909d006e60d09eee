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

// Package config loads command line defaults from TOML files and .env
// files.
//
// A config file holds the same settings as the command line flags, keyed by
// flag name:
//
//	accessions = "gs://bucket/accessions.txt"
//	k-values = "3,21"
//	length-threshold = 50
//	output-location = "gs://bucket/index"
//
// Flags given explicitly on the command line take precedence over the file.
package config

import (
	"bytes"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"sort"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// EnvFile is the dotenv file loaded by LoadEnv when no file is named.
const EnvFile = ".env"

// Index holds the settings of the kmerindex command.
type Index struct {
	DatasetID         string   `toml:"dataset-id"`
	References        string   `toml:"references"`
	AllContigs        bool     `toml:"all-contigs"`
	ExcludeXY         bool     `toml:"exclude-xy"`
	ShardSize         int64    `toml:"shard-size"`
	WriteRequests     bool     `toml:"write-requests"`
	Accessions        string   `toml:"accessions"`
	KValues           string   `toml:"k-values"`
	LengthThreshold   *int     `toml:"length-threshold"`
	CoverageThreshold *float64 `toml:"coverage-threshold"`
	ForceAssembly     bool     `toml:"force-assembly"`
	OutputContigs     bool     `toml:"output-contigs"`
	WriteTable        bool     `toml:"write-table"`
	OutputLocation    string   `toml:"output-location"`
	OutputPrefix      string   `toml:"output-prefix"`
	StagingLocation   string   `toml:"staging-location"`
	Parallelism       int      `toml:"parallelism"`
	Assembler         string   `toml:"assembler"`
	Ledger            string   `toml:"ledger"`
	LogLevel          string   `toml:"log-level"`
	CPUProfile        string   `toml:"cpuprofile"`
	TrackUsage        bool     `toml:"track_usage"`
}

// Load parses the TOML file at path.  Unknown keys are rejected.
func Load(path string) (*Index, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %v", err)
	}
	return Parse(data)
}

// Parse decodes TOML data.  Unknown keys are rejected.
func Parse(data []byte) (*Index, error) {
	var cfg Index
	if err := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %v", err)
	}
	return &cfg, nil
}

// Values returns the settings that are present in the file, keyed by flag
// name and formatted for flag.Set.
func (cfg *Index) Values() map[string]string {
	values := make(map[string]string)
	str := func(name, value string) {
		if value != "" {
			values[name] = value
		}
	}
	boolean := func(name string, value bool) {
		if value {
			values[name] = "true"
		}
	}

	str("dataset-id", cfg.DatasetID)
	str("references", cfg.References)
	boolean("all-contigs", cfg.AllContigs)
	boolean("exclude-xy", cfg.ExcludeXY)
	if cfg.ShardSize != 0 {
		values["shard-size"] = strconv.FormatInt(cfg.ShardSize, 10)
	}
	boolean("write-requests", cfg.WriteRequests)
	str("accessions", cfg.Accessions)
	str("k-values", cfg.KValues)
	if cfg.LengthThreshold != nil {
		values["length-threshold"] = strconv.Itoa(*cfg.LengthThreshold)
	}
	if cfg.CoverageThreshold != nil {
		values["coverage-threshold"] = strconv.FormatFloat(*cfg.CoverageThreshold, 'g', -1, 64)
	}
	boolean("force-assembly", cfg.ForceAssembly)
	boolean("output-contigs", cfg.OutputContigs)
	boolean("write-table", cfg.WriteTable)
	str("output-location", cfg.OutputLocation)
	str("output-prefix", cfg.OutputPrefix)
	str("staging-location", cfg.StagingLocation)
	if cfg.Parallelism != 0 {
		values["parallelism"] = strconv.Itoa(cfg.Parallelism)
	}
	str("assembler", cfg.Assembler)
	str("ledger", cfg.Ledger)
	str("log-level", cfg.LogLevel)
	str("cpuprofile", cfg.CPUProfile)
	boolean("track_usage", cfg.TrackUsage)
	return values
}

// Apply sets every flag of fs named in cfg that was not given explicitly on
// the command line.  fs must already have been parsed.
func (cfg *Index) Apply(fs *flag.FlagSet) error {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	values := cfg.Values()
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if explicit[name] || fs.Lookup(name) == nil {
			continue
		}
		if err := fs.Set(name, values[name]); err != nil {
			return fmt.Errorf("applying config %s: %v", name, err)
		}
	}
	return nil
}

// LoadEnv loads dotenv files into the process environment without
// overriding variables that are already set.  With no arguments it loads
// EnvFile, and a missing EnvFile is not an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(EnvFile); os.IsNotExist(err) {
			return nil
		}
		files = []string{EnvFile}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("loading environment: %v", err)
	}
	return nil
}
