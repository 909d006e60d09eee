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

// Package genomicsapi implements the genomics catalog and variant service
// interfaces on top of the Google Genomics v1 REST API.
package genomicsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/googlegenomics/kmerindex/genomics"
	"golang.org/x/oauth2"
	genomicsv1 "google.golang.org/api/genomics/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	htransport "google.golang.org/api/transport/http"
)

const (
	// DefaultPageSize is the number of variants requested per search page.
	DefaultPageSize = 1000

	basePath = "https://genomics.googleapis.com/"
)

// Client calls the variantsets and variants resources of the Genomics v1
// API.  It implements both genomics.ContigCatalog and genomics.VariantService.
type Client struct {
	client   *http.Client
	basePath string
	PageSize int64
}

// New returns a Client configured with the provided options.  With no options
// the application default credentials are used.
func New(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	// Prepend, so that user-specified scopes win.
	opts = append([]option.ClientOption{option.WithScopes(genomicsv1.GenomicsScope)}, opts...)
	client, endpoint, err := htransport.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating genomics client: %v", err)
	}
	if endpoint == "" {
		endpoint = basePath
	}
	return &Client{client: client, basePath: endpoint, PageSize: DefaultPageSize}, nil
}

var (
	defaultClient           *Client
	defaultClientErr        error
	initializeDefaultClient sync.Once

	// ErrMissingOrInvalidToken is returned by NewFromBearerToken when the
	// request carries no usable bearer token.
	ErrMissingOrInvalidToken = errors.New("missing or invalid token")
)

// NewDefault returns a Client that uses the application default credentials.
// It caches the client for efficiency.
func NewDefault(_ *http.Request) (*Client, error) {
	initializeDefaultClient.Do(func() {
		defaultClient, defaultClientErr = New(context.Background())
	})
	return defaultClient, defaultClientErr
}

// NewFromBearerToken constructs a Client that uses the OAuth2 bearer token
// found in req to make Genomics API requests.
func NewFromBearerToken(req *http.Request) (*Client, error) {
	fields := strings.Split(req.Header.Get("Authorization"), " ")
	if len(fields) != 2 || fields[0] != "Bearer" {
		return nil, ErrMissingOrInvalidToken
	}

	token := oauth2.Token{
		TokenType:   fields[0],
		AccessToken: fields[1],
	}
	return New(req.Context(), option.WithTokenSource(oauth2.StaticTokenSource(&token)))
}

// variantSet is the part of a v1 VariantSet resource used here.  The API
// encodes 64-bit integers as JSON strings.
type variantSet struct {
	ID              string `json:"id"`
	ReferenceBounds []struct {
		ReferenceName string `json:"referenceName"`
		UpperBound    int64  `json:"upperBound,string"`
	} `json:"referenceBounds"`
}

type searchVariantsRequest struct {
	VariantSetIDs []string `json:"variantSetIds"`
	ReferenceName string   `json:"referenceName"`
	Start         int64    `json:"start,string"`
	End           int64    `json:"end,string"`
	PageSize      int64    `json:"pageSize,omitempty"`
	PageToken     string   `json:"pageToken,omitempty"`
}

type searchVariantsResponse struct {
	Variants []struct {
		ID             string   `json:"id"`
		ReferenceName  string   `json:"referenceName"`
		Start          int64    `json:"start,string"`
		End            int64    `json:"end,string"`
		ReferenceBases string   `json:"referenceBases"`
		AlternateBases []string `json:"alternateBases"`
	} `json:"variants"`
	NextPageToken string `json:"nextPageToken"`
}

// do sends a request for the v1 resource at path and decodes the JSON reply
// into out.  A non-2xx reply is returned as a *googleapi.Error.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			return fmt.Errorf("encoding request: %v", err)
		}
	}
	req, err := http.NewRequest(method, googleapi.ResolveRelative(c.basePath, path), &payload)
	if err != nil {
		return fmt.Errorf("creating request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := googleapi.CheckResponse(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %v", err)
	}
	return nil
}

// ListContigs implements genomics.ContigCatalog.  Each reference bound of the
// variant set becomes a contig spanning [0, upper bound).
func (c *Client) ListContigs(ctx context.Context, datasetID string, excludeXY bool) ([]genomics.Contig, error) {
	var vs variantSet
	if err := c.do(ctx, http.MethodGet, "v1/variantsets/"+url.PathEscape(datasetID), nil, &vs); err != nil {
		return nil, newAPIError("getting variant set", datasetID, err)
	}

	var contigs []genomics.Contig
	for _, bound := range vs.ReferenceBounds {
		if excludeXY && genomics.IsSexChromosome(bound.ReferenceName) {
			continue
		}
		contigs = append(contigs, genomics.Contig{
			ReferenceName: bound.ReferenceName,
			Start:         0,
			End:           bound.UpperBound,
		})
	}
	return contigs, nil
}

// Query implements genomics.VariantService, following page tokens until the
// whole region has been read.
func (c *Client) Query(ctx context.Context, request genomics.VariantRequest) ([]genomics.Variant, error) {
	search := searchVariantsRequest{
		VariantSetIDs: []string{request.DatasetID},
		ReferenceName: request.ReferenceName,
		Start:         request.Start,
		End:           request.End,
		PageSize:      c.PageSize,
	}
	region := genomics.Contig{ReferenceName: request.ReferenceName, Start: request.Start, End: request.End}

	var variants []genomics.Variant
	for {
		var response searchVariantsResponse
		if err := c.do(ctx, http.MethodPost, "v1/variants/search", search, &response); err != nil {
			return nil, newAPIError("searching variants", region.String(), err)
		}
		for _, v := range response.Variants {
			variants = append(variants, genomics.Variant{
				ID:             v.ID,
				ReferenceName:  v.ReferenceName,
				Start:          v.Start,
				End:            v.End,
				ReferenceBases: v.ReferenceBases,
				AlternateBases: v.AlternateBases,
			})
		}
		if response.NextPageToken == "" {
			return variants, nil
		}
		search.PageToken = response.NextPageToken
	}
}

// Error reports a failed Genomics API call.  Code is the HTTP status returned
// by the service, or zero when the call failed before a response arrived.
type Error struct {
	Op    string
	ID    string
	Code  int
	Cause error
}

func (err *Error) Error() string {
	if err.Code != 0 {
		return fmt.Sprintf("%s %s: %s: %v", err.Op, err.ID, http.StatusText(err.Code), err.Cause)
	}
	return fmt.Sprintf("%s %s: %v", err.Op, err.ID, err.Cause)
}

func (err *Error) Unwrap() error {
	return err.Cause
}

func newAPIError(op, id string, err error) error {
	apiErr := &Error{Op: op, ID: id, Cause: err}
	if gErr, ok := err.(*googleapi.Error); ok {
		apiErr.Code = gErr.Code
	}
	return apiErr
}
