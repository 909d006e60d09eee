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
	"fmt"

	"go.uber.org/zap"
)

// VariantRequest describes a single region query against a variant dataset.
type VariantRequest struct {
	DatasetID     string `json:"datasetId"`
	ReferenceName string `json:"referenceName"`
	Start         int64  `json:"start"`
	End           int64  `json:"end"`
}

// Variant is the subset of a variant record that callers of a VariantService
// rely on.
type Variant struct {
	ID             string   `json:"id"`
	ReferenceName  string   `json:"referenceName"`
	Start          int64    `json:"start"`
	End            int64    `json:"end"`
	ReferenceBases string   `json:"referenceBases"`
	AlternateBases []string `json:"alternateBases,omitempty"`
}

// ContigCatalog enumerates the contigs present in a dataset.
type ContigCatalog interface {
	// ListContigs returns every contig of datasetID.  When excludeXY is set,
	// the sex chromosomes are omitted.
	ListContigs(ctx context.Context, datasetID string, excludeXY bool) ([]Contig, error)
}

// VariantService issues region queries built by BuildRequests.
type VariantService interface {
	Query(ctx context.Context, request VariantRequest) ([]Variant, error)
}

// RequestOptions controls how BuildRequests selects and shards contigs.
type RequestOptions struct {
	// AllContigs selects every contig from the catalog instead of References.
	AllContigs bool
	// ExcludeXY drops contigs named X or Y when AllContigs is set.
	ExcludeXY bool
	// References is a comma separated list of reference:start:end tuples.
	References string
	// ShardSize is the maximum width of each request.  Zero means
	// DefaultShardSize.
	ShardSize int64
}

// BuildRequests returns one VariantRequest per shard of the selected contigs,
// ordered by contig and then by shard.  The catalog is only consulted when
// opts.AllContigs is set and may be nil otherwise.
func BuildRequests(ctx context.Context, catalog ContigCatalog, datasetID string, opts RequestOptions, logger *zap.Logger) ([]VariantRequest, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	shardSize := opts.ShardSize
	if shardSize == 0 {
		shardSize = DefaultShardSize
	}

	var contigs []Contig
	if opts.AllContigs {
		if catalog == nil {
			return nil, fmt.Errorf("listing contigs of %s: no catalog configured", datasetID)
		}
		listed, err := catalog.ListContigs(ctx, datasetID, opts.ExcludeXY)
		if err != nil {
			return nil, fmt.Errorf("listing contigs of %s: %w", datasetID, err)
		}
		for _, contig := range listed {
			if opts.ExcludeXY && IsSexChromosome(contig.ReferenceName) {
				continue
			}
			contigs = append(contigs, contig)
		}
	} else {
		references := opts.References
		if references == "" {
			references = BRCA1
		}
		parsed, err := ParseContigs(references)
		if err != nil {
			return nil, err
		}
		contigs = parsed
	}

	var requests []VariantRequest
	for _, contig := range contigs {
		shards, err := contig.Shards(shardSize)
		if err != nil {
			return nil, err
		}
		for _, shard := range shards {
			logger.Debug("Adding request",
				zap.String("reference", shard.ReferenceName),
				zap.Int64("start", shard.Start),
				zap.Int64("end", shard.End))
			requests = append(requests, VariantRequest{
				DatasetID:     datasetID,
				ReferenceName: shard.ReferenceName,
				Start:         shard.Start,
				End:           shard.End,
			})
		}
	}
	return requests, nil
}

// IsSexChromosome reports whether name refers to the X or Y chromosome.
func IsSexChromosome(name string) bool {
	return name == "X" || name == "Y"
}
