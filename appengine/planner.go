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

// Package appengine serves the variant request planner on App Engine.
package appengine

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/googlegenomics/kmerindex/genomics"
	"github.com/googlegenomics/kmerindex/planner"
	"google.golang.org/appengine"
)

func init() {
	shardSize := int64(genomics.DefaultShardSize)
	if v := os.Getenv("SHARD_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			shardSize = n
		}
	}

	server := planner.NewServer(newAppEngineBackend, shardSize, nil)
	if list := os.Getenv("DATASET_WHITELIST"); list != "" {
		server.Whitelist(strings.Split(list, ","))
	}
	http.Handle("/", server.Router())
}

func newAppEngineBackend(req *http.Request) (planner.Backend, error) {
	return planner.BearerTokenBackend(req.WithContext(appengine.NewContext(req)))
}
