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

package planner

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/googlegenomics/kmerindex/genomics"
	"github.com/googlegenomics/kmerindex/internal/genomicsapi"
)

// apiError is used to capture errors that have a defined name and status.
type apiError struct {
	name  string
	code  int
	cause error
}

func (err *apiError) Error() string {
	return fmt.Sprintf("%s (%d): %v", err.name, err.code, err.cause)
}

func newAPIError(name string, code int, context string, err error) error {
	return &apiError{name, code, fmt.Errorf("%s: %v", context, err)}
}

func newInvalidAuthenticationError(context string, err error) error {
	return newAPIError("InvalidAuthentication", http.StatusUnauthorized, context, err)
}

func newInvalidInputError(context string, err error) error {
	return newAPIError("InvalidInput", http.StatusBadRequest, context, err)
}

func newInvalidRangeError(err error) error {
	return &apiError{"InvalidRange", http.StatusBadRequest, err}
}

func newPermissionDeniedError(context string, err error) error {
	return newAPIError("PermissionDenied", http.StatusForbidden, context, err)
}

func newNotFoundError(context string, err error) error {
	return newAPIError("NotFound", http.StatusNotFound, context, err)
}

// newBackendError classifies an error returned while talking to the genomics
// backend.  Errors without a known classification are returned unchanged and
// reported as internal errors.
func newBackendError(context string, err error) error {
	if errors.Is(err, genomicsapi.ErrMissingOrInvalidToken) {
		return newPermissionDeniedError(context, err)
	}

	var (
		parseErr *genomics.ParseError
		rangeErr *genomics.InvalidRangeError
		apiErr   *genomicsapi.Error
	)
	switch {
	case errors.As(err, &parseErr):
		return newInvalidInputError(context, err)
	case errors.As(err, &rangeErr):
		return newInvalidRangeError(err)
	case errors.As(err, &apiErr):
		switch apiErr.Code {
		case http.StatusUnauthorized:
			return newInvalidAuthenticationError(context, err)
		case http.StatusForbidden:
			return newPermissionDeniedError(context, err)
		case http.StatusNotFound:
			return newNotFoundError(context, err)
		case http.StatusBadRequest:
			return newInvalidInputError(context, err)
		}
	}
	return fmt.Errorf("%s: %v", context, err)
}

// writeError writes either a JSON object or bare HTTP error describing err.
// A JSON object is written only when the error has a defined name and code.
func writeError(c *gin.Context, err error) {
	if err, ok := err.(*apiError); ok {
		c.JSON(err.code, gin.H{
			"error":   err.name,
			"message": fmt.Sprintf("%s: %v", http.StatusText(err.code), err.cause),
		})
		return
	}

	c.String(http.StatusInternalServerError, "%s: %v", http.StatusText(http.StatusInternalServerError), err)
}
