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

// Package planner provides an HTTP service that splits the contigs of a
// variant dataset into bounded shards and answers region queries no larger
// than one shard.
package planner

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/googlegenomics/kmerindex/genomics"
	"github.com/googlegenomics/kmerindex/internal/analytics"
	"github.com/googlegenomics/kmerindex/internal/genomicsapi"
	"github.com/googlegenomics/kmerindex/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	requestsPath = "/requests/:dataset"
	variantsPath = "/variants/:dataset"
	metricsPath  = "/metrics"
)

var errMissingReferenceName = errors.New("no reference name specified")

// Backend is the genomics service the planner reads from.
type Backend interface {
	genomics.ContigCatalog
	genomics.VariantService
}

// NewBackendFunc is the type of function that constructs the appropriate
// Backend to satisfy the incoming request.
type NewBackendFunc func(*http.Request) (Backend, error)

// DefaultBackend uses the application default credentials.
func DefaultBackend(req *http.Request) (Backend, error) {
	client, err := genomicsapi.NewDefault(req)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// BearerTokenBackend forwards the bearer token of the incoming request.
func BearerTokenBackend(req *http.Request) (Backend, error) {
	client, err := genomicsapi.NewFromBearerToken(req)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Server provides the planner endpoints.  Must be created with NewServer.
type Server struct {
	newBackend NewBackendFunc
	shardSize  int64
	whitelist  map[string]bool
	logger     *zap.Logger
}

// NewServer returns a new Server that calls newBackend on each request and
// splits contigs into shards of at most shardSize bases.
func NewServer(newBackend NewBackendFunc, shardSize int64, logger *zap.Logger) *Server {
	if shardSize <= 0 {
		shardSize = genomics.DefaultShardSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{newBackend, shardSize, make(map[string]bool), logger}
}

// Whitelist adds datasets to the set of datasets the server may access.  If
// Whitelist is never called then every dataset is allowed.
func (server *Server) Whitelist(datasets []string) {
	for _, dataset := range datasets {
		server.whitelist[dataset] = true
	}
}

// Export registers the planner endpoints with router.
func (server *Server) Export(router gin.IRoutes) {
	router.Use(forwardOrigin)
	router.GET(requestsPath, server.serveRequests)
	router.GET(variantsPath, server.serveVariants)
	router.GET(metricsPath, gin.WrapH(promhttp.Handler()))
}

// Router returns a gin engine with the planner endpoints installed.
func (server *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	server.Export(router)
	return router
}

// RequestsResponse is the body returned by the requests endpoint.
type RequestsResponse struct {
	DatasetID string                    `json:"datasetId"`
	ShardSize int64                     `json:"shardSize"`
	Requests  []genomics.VariantRequest `json:"requests"`
}

// VariantsResponse is the body returned by the variants endpoint.
type VariantsResponse struct {
	Request  genomics.VariantRequest `json:"request"`
	Variants []genomics.Variant      `json:"variants"`
}

func (server *Server) serveRequests(c *gin.Context) {
	track := analytics.TrackerFromContext(c.Request.Context())
	track(analytics.Event("requests", "", nil))

	dataset := c.Param("dataset")
	if err := server.checkWhitelist(dataset); err != nil {
		writeError(c, newPermissionDeniedError("checking dataset", err))
		return
	}

	opts, err := parseRequestOptions(c, server.shardSize)
	if err != nil {
		writeError(c, err)
		return
	}

	var catalog genomics.ContigCatalog
	if opts.AllContigs {
		backend, err := server.newBackend(c.Request)
		if err != nil {
			writeError(c, newBackendError("creating backend", err))
			return
		}
		catalog = backend
	}

	requests, err := genomics.BuildRequests(c.Request.Context(), catalog, dataset, opts, server.logger)
	if err != nil {
		writeError(c, newBackendError("building requests", err))
		return
	}
	metrics.Requests.Add(float64(len(requests)))
	track(analytics.Count("requests built", dataset, len(requests)))

	c.JSON(http.StatusOK, RequestsResponse{
		DatasetID: dataset,
		ShardSize: opts.ShardSize,
		Requests:  requests,
	})
}

func (server *Server) serveVariants(c *gin.Context) {
	track := analytics.TrackerFromContext(c.Request.Context())
	track(analytics.Event("variants", "", nil))

	dataset := c.Param("dataset")
	if err := server.checkWhitelist(dataset); err != nil {
		writeError(c, newPermissionDeniedError("checking dataset", err))
		return
	}

	request, err := parseVariantRequest(c, dataset, server.shardSize)
	if err != nil {
		writeError(c, err)
		return
	}

	backend, err := server.newBackend(c.Request)
	if err != nil {
		writeError(c, newBackendError("creating backend", err))
		return
	}
	variants, err := backend.Query(c.Request.Context(), request)
	if err != nil {
		writeError(c, newBackendError("querying variants", err))
		return
	}

	c.JSON(http.StatusOK, VariantsResponse{Request: request, Variants: variants})
}

func (server *Server) checkWhitelist(dataset string) error {
	if len(server.whitelist) == 0 || server.whitelist[dataset] {
		return nil
	}
	return fmt.Errorf("access to dataset %s is not allowed", dataset)
}

func parseRequestOptions(c *gin.Context, defaultShardSize int64) (genomics.RequestOptions, error) {
	opts := genomics.RequestOptions{
		References: c.Query("references"),
		ShardSize:  defaultShardSize,
	}

	var err error
	if v := c.Query("allContigs"); v != "" {
		if opts.AllContigs, err = strconv.ParseBool(v); err != nil {
			return opts, newInvalidInputError("parsing allContigs", err)
		}
	}
	if v := c.Query("excludeXY"); v != "" {
		if opts.ExcludeXY, err = strconv.ParseBool(v); err != nil {
			return opts, newInvalidInputError("parsing excludeXY", err)
		}
	}
	if v := c.Query("shardSize"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return opts, newInvalidInputError("parsing shardSize", err)
		}
		if n <= 0 || n > defaultShardSize {
			return opts, newInvalidInputError("parsing shardSize",
				fmt.Errorf("%d is not in [1, %d]", n, defaultShardSize))
		}
		opts.ShardSize = n
	}
	return opts, nil
}

func parseVariantRequest(c *gin.Context, dataset string, maxShardSize int64) (genomics.VariantRequest, error) {
	var (
		name  = c.Query("referenceName")
		start = c.Query("start")
		end   = c.Query("end")
	)
	if name == "" {
		return genomics.VariantRequest{}, newInvalidInputError("parsing region", errMissingReferenceName)
	}

	region := genomics.Contig{ReferenceName: name}
	var err error
	if region.Start, err = strconv.ParseInt(start, 10, 64); err != nil {
		return genomics.VariantRequest{}, newInvalidInputError("parsing start", err)
	}
	if region.End, err = strconv.ParseInt(end, 10, 64); err != nil {
		return genomics.VariantRequest{}, newInvalidInputError("parsing end", err)
	}
	if err := region.Validate(); err != nil {
		return genomics.VariantRequest{}, newInvalidRangeError(err)
	}
	if width := region.End - region.Start; width > maxShardSize {
		return genomics.VariantRequest{}, newInvalidRangeError(
			fmt.Errorf("region %s spans %d bases, more than the shard size %d", region, width, maxShardSize))
	}

	return genomics.VariantRequest{
		DatasetID:     dataset,
		ReferenceName: region.ReferenceName,
		Start:         region.Start,
		End:           region.End,
	}, nil
}

// forwardOrigin allows cross-origin callers to read responses.
func forwardOrigin(c *gin.Context) {
	if origin := c.GetHeader("Origin"); origin != "" {
		c.Header("Access-Control-Allow-Origin", origin)
	}
	c.Next()
}
