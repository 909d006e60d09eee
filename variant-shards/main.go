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

// This binary prints the sharded variant requests of a Google Genomics dataset
// and optionally issues them.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"flag"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/googlegenomics/kmerindex/genomics"
	"github.com/googlegenomics/kmerindex/internal/genomicsapi"
	"github.com/grailbio/base/traverse"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	genomicsv1 "google.golang.org/api/genomics/v1"
	"google.golang.org/api/option"
)

var (
	dataset    = flag.String("dataset", genomics.DefaultDatasetID, "variant set to shard")
	references = flag.String("references", genomics.BRCA1, "comma separated list of reference:start:end ranges")
	allContigs = flag.Bool("all_contigs", false, "shard every contig of the dataset instead of -references")
	excludeXY  = flag.Bool("exclude_xy", false, "skip the X and Y chromosomes with -all_contigs")
	shardSize  = flag.Int64("shard_size", genomics.DefaultShardSize, "maximum number of bases per request")
	query      = flag.Bool("query", false, "issue every request and report the number of variants")
	parallel   = flag.Int("parallelism", 8, "number of concurrent queries with -query")
	output     = flag.String("o", "", "output filename")
)

type shardResult struct {
	Request  genomics.VariantRequest `json:"request"`
	Variants int                     `json:"variants"`
	Error    string                  `json:"error,omitempty"`
}

func main() {
	flag.Parse()

	w := io.Writer(os.Stdout)
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("Failed to open output file: %v", err)
		}
		defer f.Close()

		w = f
	}

	ctx := context.Background()

	// For compatibility with other tools, read the standard cURL certificate
	// authority override from the environment.
	if bundle := os.Getenv("CURL_CA_BUNDLE"); bundle != "" {
		pem, err := ioutil.ReadFile(bundle)
		if err != nil {
			log.Fatalf("Failed to read CA override file %q: %v", bundle, err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			log.Fatalf("Failed to initialize system certificate pool: %v", err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			log.Fatalf("Failed to add certificates from bundle %q", bundle)
		}
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					RootCAs: pool,
				}},
		})
		log.Printf("Using CA override bundle from %q", bundle)
	}

	httpClient, err := google.DefaultClient(ctx, genomicsv1.GenomicsScope)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	client, err := genomicsapi.New(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		log.Fatalf("Failed to create genomics client: %v", err)
	}

	requests, err := genomics.BuildRequests(ctx, client, *dataset, genomics.RequestOptions{
		AllContigs: *allContigs,
		ExcludeXY:  *excludeXY,
		References: *references,
		ShardSize:  *shardSize,
	}, nil)
	if err != nil {
		log.Fatalf("Failed to build requests: %v", err)
	}
	log.Printf("Built %d requests for dataset %s", len(requests), *dataset)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if !*query {
		if err := encoder.Encode(requests); err != nil {
			log.Fatalf("Failed to write requests: %v", err)
		}
		return
	}

	results, failed := queryShards(ctx, client, requests, *parallel)
	if err := encoder.Encode(results); err != nil {
		log.Fatalf("Failed to write results: %v", err)
	}
	if len(failed) > 0 {
		log.Fatalf("%d of %d requests failed: %s", len(failed), len(requests), strings.Join(failed, ", "))
	}
}

// queryShards issues every request, at most parallelism at a time.  A failed
// request is recorded in its result and does not stop the others; the ranges
// of the failed requests are returned in request order.
func queryShards(ctx context.Context, service genomics.VariantService, requests []genomics.VariantRequest, parallelism int) ([]shardResult, []string) {
	results := make([]shardResult, len(requests))
	traverse.Limit(parallelism).Each(len(requests), func(i int) error {
		results[i].Request = requests[i]
		variants, err := service.Query(ctx, requests[i])
		if err != nil {
			results[i].Error = err.Error()
			return nil
		}
		results[i].Variants = len(variants)
		return nil
	})

	var failed []string
	for _, result := range results {
		if result.Error != "" {
			r := result.Request
			failed = append(failed, genomics.Contig{ReferenceName: r.ReferenceName, Start: r.Start, End: r.End}.String())
		}
	}
	return results, failed
}
