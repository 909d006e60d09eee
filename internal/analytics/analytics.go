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

// Package analytics reports usage events of pipeline runs and planner
// requests to Google Analytics.
package analytics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
)

const (
	defaultEndpoint  = "https://www.google-analytics.com"
	defaultBatchSize = 20 // The maximum number supported by batch endpoint.

	// Category is the event category used for every hit sent by this module.
	Category = "kmerindex"
)

// Hit represents a single analytics event (called a 'hit').
type Hit map[string]string

// Event generates a new event typed hit in Category.  The label may be empty
// and the value may be nil but the action is required.
func Event(action, label string, value *int64) Hit {
	hit := Hit{
		"t":  "event",
		"ec": Category,
		"ea": action,
	}
	if label != "" {
		hit["el"] = label
	}
	if value != nil {
		hit["ev"] = strconv.FormatInt(*value, 10)
	}
	return hit
}

// Count is a convenience for an event whose value is n.
func Count(action, label string, n int) Hit {
	v := int64(n)
	return Event(action, label, &v)
}

// Client uploads hits to the analytics batch endpoint.  To create a properly
// initialized Client instance, use NewClient.
type Client struct {
	propertyID string
	clientID   string
	endpoint   string
	batchSize  int
	http       *http.Client
}

// NewClient returns a Client that sends hits for propertyID attributed to
// clientID, normally the run id.
func NewClient(propertyID, clientID string) *Client {
	return &Client{propertyID, clientID, defaultEndpoint, defaultBatchSize, http.DefaultClient}
}

// Send uploads hits in batches.  A nil Client discards hits, so analytics can
// be disabled by not constructing one.
func (c *Client) Send(ctx context.Context, hits []Hit) error {
	if c == nil || len(hits) == 0 {
		return nil
	}
	if err := c.upload(ctx, hits); err != nil {
		return fmt.Errorf("uploading hits: %v", err)
	}
	return nil
}

func (c *Client) upload(ctx context.Context, hits []Hit) error {
	for start := 0; start < len(hits); start += c.batchSize {
		end := start + c.batchSize
		if end > len(hits) {
			end = len(hits)
		}

		var body bytes.Buffer
		for _, hit := range hits[start:end] {
			payload := url.Values{
				"v":   []string{"1"},
				"tid": []string{c.propertyID},
				"cid": []string{c.clientID},
			}
			for key, value := range hit {
				payload.Add(key, value)
			}
			body.WriteString(payload.Encode())
			body.WriteByte('\n')
		}

		request, err := http.NewRequest("POST", c.endpoint+"/batch", &body)
		if err != nil {
			return fmt.Errorf("creating request: %v", err)
		}
		response, err := c.http.Do(request.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("sending request: %v", err)
		}
		response.Body.Close()
		if response.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected response status: %v", response.Status)
		}
	}
	return nil
}

type contextKey int

const hitsKey contextKey = 1

type buffer struct {
	mu   sync.Mutex
	hits []Hit
}

// WithTracker returns a context for use with TrackerFromContext and a
// function that returns the hits tracked so far.  Trackers derived from the
// context are safe for concurrent use.
func WithTracker(ctx context.Context) (context.Context, func() []Hit) {
	buf := &buffer{}
	collect := func() []Hit {
		buf.mu.Lock()
		defer buf.mu.Unlock()
		return append([]Hit(nil), buf.hits...)
	}
	return context.WithValue(ctx, hitsKey, buf), collect
}

// TrackingHandler returns a new http.Handler which wraps the provided
// handler.  The wrapper prepares the incoming request's context for use with
// the TrackerFromContext function.  When the underlying handler completes,
// the track function is invoked with any hits accumulated during the request.
func TrackingHandler(handler http.Handler, track func([]Hit)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx, collect := WithTracker(req.Context())
		handler.ServeHTTP(w, req.WithContext(ctx))
		track(collect())
	})
}

// TrackerFromContext returns a function that buffers hits in the tracker
// installed by WithTracker or TrackingHandler.  Without one, hits are
// discarded.
func TrackerFromContext(ctx context.Context) func(Hit) {
	if buf, ok := ctx.Value(hitsKey).(*buffer); ok {
		return func(hit Hit) {
			buf.mu.Lock()
			buf.hits = append(buf.hits, hit)
			buf.mu.Unlock()
		}
	}
	return func(Hit) {}
}
