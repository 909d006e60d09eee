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

// This binary serves sharded variant requests for datasets in the Google
// Genomics API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/googlegenomics/kmerindex/genomics"
	"github.com/googlegenomics/kmerindex/internal/analytics"
	"github.com/googlegenomics/kmerindex/internal/config"
	"github.com/googlegenomics/kmerindex/internal/logging"
	"github.com/googlegenomics/kmerindex/planner"
	"go.uber.org/zap"
)

var (
	port      = flag.Int("port", 80, "HTTP service port")
	shardSize = flag.Int64("shard_size", genomics.DefaultShardSize, "maximum number of bases per variant request")

	secure    = flag.Bool("secure", false, "serve in HTTPS-only mode and forward client bearer tokens")
	httpsCert = flag.String("https_cert", "", "HTTPS certificate file")
	httpsKey  = flag.String("https_key", "", "HTTPS key file")

	datasets = flag.String("datasets", "", "if set, restricts requests to a comma-separated list of datasets")
	logLevel = flag.String("log_level", "info", "minimum level of log messages")

	// Enable or disable anonymous usage tracking.
	//
	// If enabled, anonymous information about requests handled by the server is
	// logged to Google via Google Analytics.
	//
	// This information helps Google determine how well the software is
	// performing and where improvements should be made.  No user identifying
	// information is ever sent to Google.
	trackUsage = flag.Bool("track_usage", false, "anonymous usage tracking")
)

func main() {
	flag.Parse()

	if err := config.LoadEnv(); err != nil {
		log.Fatalf("Loading environment: %v", err)
	}
	logger, err := logging.New(*logLevel)
	if err != nil {
		log.Fatalf("Creating logger: %v", err)
	}
	defer logger.Sync()

	if *secure && (*httpsCert == "" || *httpsKey == "") {
		logger.Fatal("You must specify both -https_cert and -https_key in secure mode.")
	}

	newBackend := planner.DefaultBackend
	if *secure {
		newBackend = planner.BearerTokenBackend
	}

	gin.SetMode(gin.ReleaseMode)
	server := planner.NewServer(newBackend, *shardSize, logger)
	if *datasets != "" {
		server.Whitelist(strings.Split(*datasets, ","))
	}

	handler := http.Handler(server.Router())
	if *trackUsage {
		logger.Info("Enabling anonymous usage tracking")

		client := analytics.NewClient("UA-103022118-1", uuid.New().String())
		handler = analytics.TrackingHandler(handler, func(hits []analytics.Hit) {
			if err := client.Send(context.Background(), hits); err != nil {
				logger.Warn("Failed to send hits to analytics", zap.Int("hits", len(hits)), zap.Error(err))
			}
		})
	}

	address := fmt.Sprintf(":%d", *port)
	logger.Info("Serving", zap.String("address", address), zap.Bool("secure", *secure))
	if *secure {
		if err := http.ListenAndServeTLS(address, *httpsCert, *httpsKey, handler); err != nil {
			logger.Fatal("HTTPS server returned an error", zap.Error(err))
		}
	} else {
		if err := http.ListenAndServe(address, handler); err != nil {
			logger.Fatal("HTTP server returned an error", zap.Error(err))
		}
	}
}
