// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package schedule

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/grailbio/base/sync/once"
)

// Kind names a batch scheduler family (spec §4.7).
type Kind int

const (
	Torque Kind = iota
	Moab
	LSF
)

// Record is the scheduler-facing subset of a resolved Config (spec
// §3 "Scheduler record").
type Record struct {
	Nodes     string
	Queue     string
	Timelimit string // HH:MM:SS or D:HH:MM:SS form; see FormatTimelimit
	Outfile   string
	Errfile   string
	Jobfile   string
	Progname  string
	// Command is the already-composed launcher invocation this
	// scheduler wraps (spec §4.6 feeding into §4.7).
	Command string
	// LSFMpichVariant selects the "-a mpich_gm"/"-a mpich_mx" esub and
	// corresponding wrapper prefix for LSF (spec §4.7 LSF note); empty
	// means no MPICH wrapping.
	LSFMpichVariant string
}

var templates = map[Kind]*template.Template{
	Torque: template.Must(template.New("torque").Parse(
		`echo "{{.Command}}" | qsub -l nodes={{.Nodes}} -l walltime={{.Timelimit}} -o {{.Outfile}} -e {{.Errfile}} -q {{.Queue}} &> {{.Jobfile}}`)),
	Moab: template.Must(template.New("moab").Parse(
		`echo "{{.Command}}" | msub -l nodes={{.Nodes}} -l walltime={{.Timelimit}} -o {{.Outfile}} -e {{.Errfile}} -q {{.Queue}} &> {{.Jobfile}}`)),
	LSF: template.Must(template.New("lsf").Parse(
		`bsub -K -W {{.Timelimit}} -n {{.Nodes}} -o {{.Outfile}} -e {{.Errfile}} -q {{.Queue}} -J {{.Progname}} {{if .LSFMpichVariant}}-a {{.LSFMpichVariant}} {{end}}{{.Command}} &> {{.Jobfile}}`)),
}

// Wrap renders the scheduler submission command for kind around
// rec.Command (spec §4.7). text/template is used, not hand-built
// string concatenation, because the exact wrapped-command text is a
// spec-pinned fixed shape rather than something that benefits from a
// full templating library's control flow; a third-party
// command-builder would add a layer with no behavioral benefit here
// (see DESIGN.md).
func Wrap(kind Kind, rec Record) (string, error) {
	tmpl, ok := templates[kind]
	if !ok {
		return "", fmt.Errorf("schedule: unknown scheduler kind %v", kind)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, rec); err != nil {
		return "", fmt.Errorf("schedule: wrap: %w", err)
	}
	return buf.String(), nil
}

// mpichWrapperPrefix maps LSF's Myrinet mpich variant name to the
// replacement wrapper binary for the leading "mpirun -np N" segment of
// a launcher command (spec §4.7 LSF note).
var mpichWrapperPrefix = map[string]string{
	"mpich_gm": "gmmpirun_wrapper",
	"mpich_mx": "mpich_mx_wrapper",
}

// RewriteForLSFMpich replaces a command's leading "mpirun -np N"
// launcher prefix with the Myrinet wrapper binary for variant
// ("mpich_gm" or "mpich_mx"), leaving the rest of the command
// (python/file/progargs) untouched.
func RewriteForLSFMpich(command, variant string) (string, error) {
	wrapper, ok := mpichWrapperPrefix[variant]
	if !ok {
		return "", fmt.Errorf("schedule: unknown LSF mpich variant %q", variant)
	}
	fields := strings.Fields(command)
	if len(fields) < 3 || fields[0] != "mpirun" || fields[1] != "-np" {
		return "", fmt.Errorf("schedule: command %q does not start with an mpirun -np <n> prefix", command)
	}
	rest := strings.Join(fields[3:], " ")
	return wrapper + " " + rest, nil
}

// ScratchPaths holds the three unique scratch filenames a scheduler
// submission writes to (spec §3 "Lifecycles" / §4.7: "prepare()
// allocates three unique scratch paths within workdir for jobfile,
// outfile, errfile; cleanup() removes them unless save-mode is on").
// It mirrors serialize.Session's allocate-then-cleanup shape.
type ScratchPaths struct {
	Jobfile, Outfile, Errfile string

	dir       string
	saveMode  bool
	closeOnce once.Task
	closeErr  error
}

// Prepare allocates unique jobfile/outfile/errfile paths under workdir.
// The caller fills Jobfile/Outfile/Errfile into a Record and must call
// Cleanup when the submission is done.
func Prepare(workdir string, saveMode bool) (*ScratchPaths, error) {
	job, err := scratchFile(workdir, "job")
	if err != nil {
		return nil, err
	}
	out, err := scratchFile(workdir, "out")
	if err != nil {
		return nil, err
	}
	errf, err := scratchFile(workdir, "err")
	if err != nil {
		return nil, err
	}
	return &ScratchPaths{Jobfile: job, Outfile: out, Errfile: errf, dir: workdir, saveMode: saveMode}, nil
}

func scratchFile(dir, suffix string) (string, error) {
	f, err := os.CreateTemp(dir, fmt.Sprintf("ranked-sched-*.%s", suffix))
	if err != nil {
		return "", fmt.Errorf("schedule: prepare: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("schedule: prepare: %w", err)
	}
	return path, nil
}

// Cleanup removes the three scratch files unless SaveMode was set in
// Prepare, in which case they are left in place for inspection. Safe
// to call more than once; later calls are no-ops that replay the first
// call's result.
func (s *ScratchPaths) Cleanup() error {
	s.closeErr = s.closeOnce.Do(func() error {
		if s.saveMode {
			return nil
		}
		var firstErr error
		for _, p := range []string{s.Jobfile, s.Outfile, s.Errfile} {
			if p == "" {
				continue
			}
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	})
	return s.closeErr
}
