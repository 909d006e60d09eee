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
	"io/ioutil"
	"os"
	"path/filepath"
)

// File is an ObjectStore backed by the local filesystem.
type File struct{}

// Exists implements ObjectStore.Exists.
func (File) Exists(_ context.Context, path string) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, newFileError("probing", path, err)
	}
	return !info.IsDir(), nil
}

// Read implements ObjectStore.Read.
func (File) Read(_ context.Context, path string) ([]byte, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, newFileError("reading", path, err)
	}
	return data, nil
}

// Write implements ObjectStore.Write.  The data is written to a temporary
// file that is renamed over path so readers never observe a partial object.
func (File) Write(_ context.Context, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return newFileError("creating directory", path, err)
	}
	tmp, err := ioutil.TempFile(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return newFileError("creating", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return newFileError("writing", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return newFileError("closing", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return newFileError("renaming", path, err)
	}
	return nil
}

func newFileError(op, path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return newError(codeNotFound, op, path, err)
	case os.IsPermission(err):
		return newError(codePermissionDenied, op, path, err)
	}
	return newError(codeUnavailable, op, path, err)
}
