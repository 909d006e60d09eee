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

// This binary builds k-mer indices from the assembled contigs of a list of
// sequence read accessions.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/googlegenomics/kmerindex/genomics"
	"github.com/googlegenomics/kmerindex/internal/analytics"
	"github.com/googlegenomics/kmerindex/internal/assembly"
	"github.com/googlegenomics/kmerindex/internal/config"
	"github.com/googlegenomics/kmerindex/internal/genomicsapi"
	"github.com/googlegenomics/kmerindex/internal/kmer"
	"github.com/googlegenomics/kmerindex/internal/ledger"
	"github.com/googlegenomics/kmerindex/internal/logging"
	"github.com/googlegenomics/kmerindex/internal/pipeline"
	"github.com/googlegenomics/kmerindex/store"
	"github.com/pkg/profile"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "", "TOML file with default values for the flags below")

	datasetID  = flag.String("dataset-id", genomics.DefaultDatasetID, "variant set used to build variant requests")
	references = flag.String("references", genomics.BRCA1, "comma separated list of reference:start:end ranges")
	allContigs = flag.Bool("all-contigs", false, "use every contig of the dataset instead of -references")
	excludeXY  = flag.Bool("exclude-xy", false, "skip the X and Y chromosomes with -all-contigs")
	shardSize  = flag.Int64("shard-size", genomics.DefaultShardSize, "maximum number of bases per variant request")

	writeRequests = flag.Bool("write-requests", false, "write the variant requests of the configured regions next to the indices")

	accessions = flag.String("accessions", "", "file listing one accession per line, optionally gzipped")
	kValues    = flag.String("k-values", "", "comma separated list of k-mer sizes")

	lengthThreshold   = flag.Int("length-threshold", pipeline.DefaultOptions().LengthThreshold, "contigs of this length or shorter are dropped")
	coverageThreshold = flag.Float64("coverage-threshold", pipeline.DefaultOptions().CoverageThreshold, "contigs with lower coverage are dropped")

	forceAssembly   = flag.Bool("force-assembly", false, "assemble even when cached contigs exist")
	outputContigs   = flag.Bool("output-contigs", false, "store assembled contigs in the output location")
	writeTable      = flag.Bool("write-table", false, "write a k-mer by accession table instead of entries")
	outputLocation  = flag.String("output-location", "", "directory, gs:// or s3:// location of the indices")
	outputPrefix    = flag.String("output-prefix", pipeline.DefaultOutputPrefix, "file name prefix of the indices")
	stagingLocation = flag.String("staging-location", "", "location of cached contigs when -output-contigs is not set")
	parallelism     = flag.Int("parallelism", 0, "number of concurrent work units; zero means one per CPU")

	assembler  = flag.String("assembler", "", "command that prints the contigs of the accession given as its last argument as FASTA")
	ledgerPath = flag.String("ledger", "", "sqlite database recording the outcome of every unit")
	logLevel   = flag.String("log-level", "info", "minimum level of log messages")
	cpuProfile = flag.String("cpuprofile", "", "write a CPU profile to this directory")

	// Enable or disable anonymous usage tracking.
	//
	// If enabled, anonymous information about runs is logged to Google via
	// Google Analytics.  No user identifying information is ever sent to
	// Google.
	trackUsage = flag.Bool("track_usage", false, "anonymous usage tracking")
)

func main() {
	flag.Parse()

	if err := config.LoadEnv(); err != nil {
		log.Fatalf("Loading environment: %v", err)
	}
	if *configFile != "" {
		cfg, err := config.Load(*configFile)
		if err != nil {
			log.Fatalf("Loading config: %v", err)
		}
		if err := cfg.Apply(flag.CommandLine); err != nil {
			log.Fatalf("Loading config: %v", err)
		}
	}

	logger, err := logging.New(*logLevel)
	if err != nil {
		log.Fatalf("Creating logger: %v", err)
	}
	defer logger.Sync()

	if *cpuProfile != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(*cpuProfile), profile.NoShutdownHook).Stop()
	}

	ks, err := kmer.ParseKValues(*kValues)
	if err != nil {
		logger.Fatal("Invalid k values", zap.Error(err))
	}
	command := strings.Fields(*assembler)
	if len(command) == 0 {
		logger.Fatal("You must specify an -assembler command.")
	}

	opts := pipeline.Options{
		DatasetID:         *datasetID,
		References:        *references,
		AllContigs:        *allContigs,
		ExcludeXY:         *excludeXY,
		ShardSize:         *shardSize,
		AccessionsFile:    *accessions,
		KValues:           ks,
		LengthThreshold:   *lengthThreshold,
		CoverageThreshold: *coverageThreshold,
		ForceAssembly:     *forceAssembly,
		OutputContigs:     *outputContigs,
		WriteTable:        *writeTable,
		OutputLocation:    *outputLocation,
		OutputPrefix:      *outputPrefix,
		StagingLocation:   *stagingLocation,
		Parallelism:       *parallelism,
	}
	if err := opts.Validate(); err != nil {
		logger.Fatal("Invalid options", zap.Error(err))
	}
	if opts.DropsEverything() {
		logger.Warn("Both thresholds are at their defaults, so every contig will be dropped; set -length-threshold or -coverage-threshold",
			zap.Int("lengthThreshold", opts.LengthThreshold),
			zap.Float64("coverageThreshold", opts.CoverageThreshold))
	}

	ctx := context.Background()
	runID := uuid.New().String()
	deps := pipeline.Deps{
		Assembler: assembly.ExecAssembler{Command: command[0], Args: command[1:]},
		Logger:    logger,
		RunID:     runID,
	}

	if *ledgerPath != "" {
		l, err := ledger.Open(ctx, *ledgerPath)
		if err != nil {
			logger.Fatal("Opening ledger", zap.Error(err))
		}
		defer l.Close()
		deps.Ledger = l
	}
	if *trackUsage {
		logger.Info("Enabling anonymous usage tracking")
		deps.Analytics = analytics.NewClient("UA-103022118-1", runID)
	}

	if *writeRequests {
		var catalog genomics.ContigCatalog
		if opts.AllContigs {
			client, err := genomicsapi.NewDefault(nil)
			if err != nil {
				logger.Fatal("Creating genomics client", zap.Error(err))
			}
			catalog = client
		}
		outputs, err := store.Open(ctx, opts.OutputLocation)
		if err != nil {
			logger.Fatal("Opening output location", zap.Error(err))
		}
		requests, err := opts.WriteRequests(ctx, catalog, outputs, logger)
		if err != nil {
			logger.Fatal("Writing variant requests", zap.Error(err))
		}
		logger.Info("Wrote variant requests",
			zap.String("dataset", opts.DatasetID),
			zap.String("path", opts.RequestsPath()),
			zap.Int("requests", len(requests)))
	}

	report, err := pipeline.Run(ctx, opts, deps)
	if err != nil {
		logger.Fatal("Pipeline failed", zap.Error(err))
	}
	for k, path := range report.Outputs {
		logger.Info("Index written", zap.Int("k", k), zap.String("path", path), zap.Int("records", report.Kmers[k]))
	}
	logger.Info("Run complete",
		zap.String("run", report.RunID),
		zap.Int("accessions", report.Accessions),
		zap.Int("assembled", report.Assembled),
		zap.Int("cached", report.Cached),
		zap.Int("kept", report.ContigsKept),
		zap.Int("dropped", report.ContigsDropped))

	if err := report.Err(); err != nil {
		logger.Error("Some units failed", zap.Strings("units", report.Failed()), zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}
