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
	"bytes"
	"context"
	"fmt"
	"io/ioutil"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3 is an ObjectStore for accessing Amazon S3.
type S3 struct {
	API s3iface.S3API
}

// NewDefaultS3 returns an S3 store configured from the shared AWS config and
// environment.
func NewDefaultS3() (S3, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return S3{}, fmt.Errorf("creating AWS session: %v", err)
	}
	return S3{s3.New(sess)}, nil
}

// Exists implements ObjectStore.Exists.
func (c S3) Exists(ctx context.Context, location string) (bool, error) {
	bucket, key, err := parseURL(location, s3Scheme)
	if err != nil {
		return false, newError(codeNotFound, "probing", location, err)
	}
	_, err = c.API.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, newS3Error("probing", location, err)
	}
	return true, nil
}

// Read implements ObjectStore.Read.
func (c S3) Read(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := parseURL(location, s3Scheme)
	if err != nil {
		return nil, newError(codeNotFound, "reading", location, err)
	}
	output, err := c.API.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, newS3Error("opening", location, err)
	}
	defer output.Body.Close()

	data, err := ioutil.ReadAll(output.Body)
	if err != nil {
		return nil, newS3Error("reading", location, err)
	}
	return data, nil
}

// Write implements ObjectStore.Write.
func (c S3) Write(ctx context.Context, location string, data []byte) error {
	bucket, key, err := parseURL(location, s3Scheme)
	if err != nil {
		return newError(codeNotFound, "writing", location, err)
	}
	_, err = c.API.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return newS3Error("writing", location, err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	if err, ok := err.(awserr.Error); ok {
		switch err.Code() {
		case "NotFound", s3.ErrCodeNoSuchKey:
			return true
		}
	}
	return false
}

func newS3Error(op, location string, err error) error {
	if isS3NotFound(err) {
		return newError(codeNotFound, op, location, err)
	}
	if err, ok := err.(awserr.Error); ok {
		switch err.Code() {
		case "AccessDenied", "Forbidden":
			return newError(codePermissionDenied, op, location, err)
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return newError(codeInvalidAuthentication, op, location, err)
		}
	}
	return newError(codeUnavailable, op, location, err)
}
