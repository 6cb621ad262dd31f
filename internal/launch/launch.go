// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package launch composes and runs the shell command that starts a
// mapper's out-of-process helper (spec §4.6): direct launchers
// (serial, mpirun, srun, aprun) each render a different preamble and
// task-count expression around the same trailing "python file
// progargs" invocation.
package launch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/grailbio/base/retry"
	"github.com/mattersoflight/ranked/internal/serialize"
)

// Variant names a direct launcher family (spec §4.6 table).
type Variant int

const (
	Serial Variant = iota
	Mpi
	Slurm
	Alps
)

func (v Variant) String() string {
	switch v {
	case Serial:
		return "serial"
	case Mpi:
		return "mpi"
	case Slurm:
		return "slurm"
	case Alps:
		return "alps"
	default:
		return "unknown"
	}
}

// Params holds the fields every launcher's command template draws
// from, equivalent to the historical "defaults" dict merged with
// caller overrides (original_source/pyina/launchers.py).
type Params struct {
	Python   string // interpreter/prefix; empty runs File directly
	File     string // helper program path
	ProgArgs []string
	Nodes    string // raw node-string, e.g. "3:ppn=2"
	Mpirun   string // mpirun/mpiexec binary name, default "mpirun"
}

// Command composes the shell command string for variant v and params
// p, matching the table in spec §4.6.
func Command(v Variant, p Params) (string, error) {
	switch v {
	case Serial:
		return joinArgs(p.Python, p.File, p.ProgArgs), nil
	case Mpi:
		spec, err := ParseNodeSpec(p.Nodes)
		if err != nil {
			return "", err
		}
		mpirun := p.Mpirun
		if mpirun == "" {
			mpirun = "mpirun"
		}
		pre := fmt.Sprintf("%s -np %d", mpirun, spec.MpirunTasks())
		return pre + " " + joinArgs(p.Python, p.File, p.ProgArgs), nil
	case Slurm:
		spec, err := ParseNodeSpec(p.Nodes)
		if err != nil {
			return "", err
		}
		pre := fmt.Sprintf("srun -n%s", spec.SrunTasks())
		return pre + " " + joinArgs(p.Python, p.File, p.ProgArgs), nil
	case Alps:
		spec, err := ParseNodeSpec(p.Nodes)
		if err != nil {
			return "", err
		}
		pre := fmt.Sprintf("aprun -n %s", spec.AprunTasks())
		return pre + " " + joinArgs(p.Python, p.File, p.ProgArgs), nil
	default:
		return "", fmt.Errorf("launch: unknown variant %v", v)
	}
}

// joinArgs composes "python file progargs...", shell-quoting every
// user-controlled field so paths and program arguments containing
// spaces or shell metacharacters cannot escape their argument position
// (the historical implementation interpolates these fields unquoted
// into a string handed to os.system; spec §9 flags this as an
// injection concern this port closes).
func joinArgs(python, file string, progArgs []string) string {
	var buf bytes.Buffer
	if python != "" {
		buf.WriteString(shellQuote(python))
		buf.WriteByte(' ')
	}
	buf.WriteString(shellQuote(file))
	for _, a := range progArgs {
		buf.WriteByte(' ')
		buf.WriteString(shellQuote(a))
	}
	return buf.String()
}

func shellQuote(s string) string {
	return "'" + replaceAll(s, "'", `'\''`) + "'"
}

func replaceAll(s, old, new string) string {
	var buf bytes.Buffer
	for {
		i := indexOf(s, old)
		if i < 0 {
			buf.WriteString(s)
			return buf.String()
		}
		buf.WriteString(s[:i])
		buf.WriteString(new)
		s = s[i+len(old):]
	}
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// LookPath resolves executable on PATH, surfacing ExecutableNotFound
// semantics to the caller (spec §4.6 step 1); the caller wraps the
// error with the package-level error taxonomy.
func LookPath(executable string) (string, error) {
	path, err := exec.LookPath(executable)
	if err != nil {
		return "", fmt.Errorf("launch: %q not found on PATH: %w", executable, err)
	}
	return path, nil
}

// Run forks a shell running cmd and blocks on its exit (spec §4.6
// steps 2-3). A non-zero exit is reported as an error; stdout/stderr
// are inherited from the current process.
func Run(ctx context.Context, cmd string) error {
	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("launch: command failed: %w", err)
	}
	return nil
}

// PollResult waits for resultPath to appear, polling at 1-second
// granularity up to timeout using an exponential backoff capped at
// that granularity (spec §4.6 step 4). On timeout it reports
// timedOut=true rather than an error, so the caller can still attempt
// the load, matching the historical "warn but proceed" behavior; a
// genuinely unreadable file at that point is the caller's LoadFailure
// to raise. PollResult itself never reads the file.
func PollResult(ctx context.Context, resultPath string, timeout time.Duration) (timedOut bool, err error) {
	const pollCap = time.Second
	policy := retry.Jitter(retry.Backoff(100*time.Millisecond, pollCap, 2), 0.1)
	deadline := time.Now().Add(timeout)
	for retries := 0; ; retries++ {
		if _, statErr := os.Stat(resultPath); statErr == nil {
			return false, nil
		}
		if time.Now().After(deadline) {
			return true, nil
		}
		if werr := retry.Wait(ctx, policy, retries); werr != nil {
			return false, fmt.Errorf("launch: poll for result: %w", werr)
		}
	}
}

// LoadResult is a thin wrapper so callers needn't import serialize
// directly just to finish a launch (spec §4.6 step 5).
func LoadResult(path string) ([]any, error) {
	return serialize.LoadResult(path)
}
