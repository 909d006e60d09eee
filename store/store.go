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

// Package store provides object storage used for cached assemblies and index
// output.  Locations are either gs://bucket/prefix, s3://bucket/prefix or a
// local filesystem path.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	gcsScheme = "gs://"
	s3Scheme  = "s3://"

	// AccessTokenEnv names the environment variable holding an OAuth2 access
	// token for Cloud Storage.  When unset the default credentials are used.
	AccessTokenEnv = "GCS_ACCESS_TOKEN"
)

// ObjectStore is the interface to the storage engine in use.  Paths passed to
// an ObjectStore are complete locations as produced by Join.
type ObjectStore interface {
	// Exists reports whether an object is present at path.
	Exists(ctx context.Context, path string) (bool, error)
	// Read returns the full contents of the object at path.
	Read(ctx context.Context, path string) ([]byte, error)
	// Write replaces the object at path with data.
	Write(ctx context.Context, path string, data []byte) error
}

// Open returns the ObjectStore that serves location.
func Open(ctx context.Context, location string) (ObjectStore, error) {
	switch {
	case strings.HasPrefix(location, gcsScheme):
		if token := os.Getenv(AccessTokenEnv); token != "" {
			return NewGCSFromToken(ctx, token)
		}
		return NewDefaultGCS(ctx)
	case strings.HasPrefix(location, s3Scheme):
		return NewDefaultS3()
	default:
		return File{}, nil
	}
}

// Join appends elements to location using the separator appropriate for its
// scheme.
func Join(location string, elem ...string) string {
	for _, scheme := range []string{gcsScheme, s3Scheme} {
		if rest := strings.TrimPrefix(location, scheme); rest != location {
			return scheme + path.Join(append([]string{rest}, elem...)...)
		}
	}
	return filepath.Join(append([]string{location}, elem...)...)
}

// parseURL splits a scheme://bucket/object location.
func parseURL(location, scheme string) (string, string, error) {
	rest := strings.TrimPrefix(location, scheme)
	if rest == location {
		return "", "", fmt.Errorf("%q does not start with %s", location, scheme)
	}
	if parts := strings.SplitN(rest, "/", 2); len(parts) == 2 {
		if parts[0] != "" && parts[1] != "" {
			return parts[0], parts[1], nil
		}
	}
	return "", "", errInvalidLocation
}

var errInvalidLocation = errors.New("invalid or unspecified bucket/object")

// Error reports a failed storage operation.  Code names the failure class
// (NotFound, PermissionDenied, InvalidAuthentication or Unavailable).
type Error struct {
	Code  string
	Op    string
	Path  string
	Cause error
}

func (err *Error) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", err.Op, err.Path, err.Code, err.Cause)
}

func (err *Error) Unwrap() error {
	return err.Cause
}

// IsNotFound reports whether err is a storage Error describing a missing
// object.
func IsNotFound(err error) bool {
	var storeErr *Error
	return errors.As(err, &storeErr) && storeErr.Code == codeNotFound
}

const (
	codeNotFound              = "NotFound"
	codePermissionDenied      = "PermissionDenied"
	codeInvalidAuthentication = "InvalidAuthentication"
	codeUnavailable           = "Unavailable"
)

func newError(code, op, path string, err error) error {
	return &Error{Code: code, Op: op, Path: path, Cause: err}
}
