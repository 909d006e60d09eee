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

package store

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"sync"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCS is an ObjectStore for accessing Google Cloud Storage.
type GCS struct {
	*storage.Client
}

var (
	defaultStorageClient           *storage.Client
	defaultStorageClientErr        error
	initializeDefaultStorageClient sync.Once
)

// NewDefaultGCS returns a GCS store that uses the application default
// credentials.  It caches the storage client for efficiency.
func NewDefaultGCS(ctx context.Context) (GCS, error) {
	initializeDefaultStorageClient.Do(func() {
		defaultStorageClient, defaultStorageClientErr = storage.NewClient(context.Background())
	})
	if defaultStorageClientErr != nil {
		return GCS{}, fmt.Errorf("creating default storage client: %v", defaultStorageClientErr)
	}
	return GCS{defaultStorageClient}, nil
}

// NewGCS constructs a GCS store with the provided client options.
func NewGCS(ctx context.Context, opts ...option.ClientOption) (GCS, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return GCS{}, fmt.Errorf("creating storage client: %v", err)
	}
	return GCS{client}, nil
}

// NewGCSFromToken constructs a GCS store that authenticates every request with
// the provided OAuth2 access token.
func NewGCSFromToken(ctx context.Context, accessToken string) (GCS, error) {
	token := oauth2.Token{TokenType: "Bearer", AccessToken: accessToken}
	return NewGCS(ctx, option.WithTokenSource(oauth2.StaticTokenSource(&token)))
}

func (c GCS) object(location string) (*storage.ObjectHandle, error) {
	bucket, object, err := parseURL(location, gcsScheme)
	if err != nil {
		return nil, err
	}
	return c.Bucket(bucket).Object(object), nil
}

// Exists implements ObjectStore.Exists.
func (c GCS) Exists(ctx context.Context, location string) (bool, error) {
	object, err := c.object(location)
	if err != nil {
		return false, newError(codeNotFound, "probing", location, err)
	}
	if _, err := object.Attrs(ctx); err != nil {
		if err == storage.ErrObjectNotExist {
			return false, nil
		}
		return false, newGCSError("probing", location, err)
	}
	return true, nil
}

// Read implements ObjectStore.Read.
func (c GCS) Read(ctx context.Context, location string) ([]byte, error) {
	object, err := c.object(location)
	if err != nil {
		return nil, newError(codeNotFound, "reading", location, err)
	}
	r, err := object.NewReader(ctx)
	if err != nil {
		return nil, newGCSError("opening", location, err)
	}
	defer r.Close()

	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, newGCSError("reading", location, err)
	}
	return data, nil
}

// Write implements ObjectStore.Write.
func (c GCS) Write(ctx context.Context, location string, data []byte) error {
	object, err := c.object(location)
	if err != nil {
		return newError(codeNotFound, "writing", location, err)
	}
	w := object.NewWriter(ctx)
	w.ContentType = "text/plain"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return newGCSError("writing", location, err)
	}
	if err := w.Close(); err != nil {
		return newGCSError("closing", location, err)
	}
	return nil
}

func newGCSError(op, location string, err error) error {
	if err == storage.ErrObjectNotExist || err == storage.ErrBucketNotExist {
		return newError(codeNotFound, op, location, err)
	}
	if err, ok := err.(*googleapi.Error); ok {
		switch err.Code {
		case http.StatusUnauthorized:
			return newError(codeInvalidAuthentication, op, location, err)
		case http.StatusForbidden:
			return newError(codePermissionDenied, op, location, err)
		case http.StatusNotFound:
			return newError(codeNotFound, op, location, err)
		}
	}
	return newError(codeUnavailable, op, location, err)
}
