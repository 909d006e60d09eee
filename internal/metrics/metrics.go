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

// Package metrics exports Prometheus counters for the indexing pipeline and
// the request planner.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Assemblies counts accessions by how their contigs were obtained
	// ("cached" or "assembled").
	Assemblies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kmerindex_assemblies_total",
		Help: "Accessions processed by contig source",
	}, []string{"source"})

	// UnitFailures counts failed work units by pipeline stage.
	UnitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kmerindex_unit_failures_total",
		Help: "Failed work units by stage",
	}, []string{"stage"})

	// Contigs counts contigs by filter outcome ("kept" or "dropped").
	Contigs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kmerindex_contigs_total",
		Help: "Contigs seen by filter outcome",
	}, []string{"outcome"})

	// Kmers counts generated k-mer records by k.
	Kmers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kmerindex_kmers_total",
		Help: "K-mer records generated by k",
	}, []string{"k"})

	// Requests counts variant requests produced by the planner.
	Requests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kmerindex_variant_requests_total",
		Help: "Variant requests built from sharded contigs",
	})
)

// RecordKmers adds n records to the counter for k.
func RecordKmers(k, n int) {
	Kmers.WithLabelValues(strconv.Itoa(k)).Add(float64(n))
}

// RecordFilter adds the outcome of filtering one accession's contigs.
func RecordFilter(kept, dropped int) {
	Contigs.WithLabelValues("kept").Add(float64(kept))
	Contigs.WithLabelValues("dropped").Add(float64(dropped))
}
