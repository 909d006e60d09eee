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

package assembly

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/googlegenomics/kmerindex/internal/contig"
)

// ExecAssembler runs an external assembler for each accession.  The command
// is invoked as "<Command> <Args...> <accession>" with ACCESSION also set in
// its environment, and must print the assembled contigs as FASTA on stdout.
type ExecAssembler struct {
	Command string
	Args    []string
}

// Assemble implements Assembler.
func (a ExecAssembler) Assemble(ctx context.Context, accession string) ([]contig.Assembled, error) {
	if a.Command == "" {
		return nil, fmt.Errorf("no assembler command configured")
	}
	args := append(append([]string{}, a.Args...), accession)
	cmd := exec.CommandContext(ctx, a.Command, args...)
	cmd.Env = append(os.Environ(), "ACCESSION="+accession)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("running %s: %v: %s", a.Command, err, msg)
		}
		return nil, fmt.Errorf("running %s: %v", a.Command, err)
	}
	return contig.ParseFASTA(accession, &stdout)
}
