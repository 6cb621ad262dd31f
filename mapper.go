// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package ranked implements a parallel map over a ranked compute
// fabric: a function is dispatched across a set of ranks, either as
// goroutines in the calling process or as a separately launched
// helper program, using one of two strategies (Pool, dynamic
// master-worker dispatch; Scatter, static equal-share partition).
package ranked

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mattersoflight/ranked/internal/launch"
	"github.com/mattersoflight/ranked/internal/partition"
	"github.com/mattersoflight/ranked/internal/schedule"
	"github.com/mattersoflight/ranked/internal/serialize"
	"github.com/mattersoflight/ranked/internal/transport/inproc"
	"github.com/mattersoflight/ranked/strategy"
	"golang.org/x/sync/errgroup"
)

// Func is a task callable invoked once per item of the mapped
// iterables, receiving that item's argument tuple.
type Func func(args []any) (any, error)

// Mapper binds a Config to the Map entry point. The zero Mapper is not
// usable; construct with New.
type Mapper struct {
	Config   Config
	Registry *serialize.Registry
}

// New returns a Mapper configured by cfg. registry may be nil unless
// MapRemote is used, in which case the function must have been
// registered in it under the name passed to MapRemote.
func New(cfg Config, registry *serialize.Registry) *Mapper {
	return &Mapper{Config: cfg, Registry: registry}
}

// Map runs fn across the tuples formed by zipping iterables, following
// the six-step data flow of the design (normalize options, partition,
// dispatch, collect, validate, return). When the configured Launcher
// is Serial and no Scheduler is attached, dispatch happens entirely
// in-process over goroutine ranks; for any other Launcher, or when a
// Scheduler is attached, Map returns a ConfigError and the external
// helper path is MapRemote.
func (m *Mapper) Map(ctx context.Context, fn Func, iterables ...[]any) ([]any, error) {
	bundle := partition.Bundle[any](iterables)
	if err := bundle.Validate(); err != nil {
		return nil, newError("Map", ConfigError, err)
	}

	if m.Config.Launcher == launch.Serial && !m.Config.HasScheduler {
		return m.runLocal(ctx, fn, bundle)
	}
	return nil, newError("Map", ConfigError,
		fmt.Errorf("launcher %v requires MapRemote with a registered function name", m.Config.Launcher))
}

// runLocal dispatches fn across Nodes goroutine ranks using an
// in-process transport, without spawning any external process. This
// is the common path exercised by tests and by callers who don't need
// a separate batch-scheduled job.
func (m *Mapper) runLocal(ctx context.Context, fn Func, bundle partition.Bundle[any]) ([]any, error) {
	size := 1
	if spec, err := launch.ParseNodeSpec(m.Config.Nodes); err == nil && spec.N > 0 {
		size = spec.N
	}
	hub := inproc.New(size)
	opts := strategy.Options{OnAll: m.Config.OnAll, PropagateErrors: m.Config.PropagateWorkerErrors}
	sfn := strategy.Func(fn)

	g, gctx := errgroup.WithContext(ctx)
	var masterOutput strategy.Result
	for rank := 0; rank < size; rank++ {
		rank := rank
		g.Go(func() error {
			var r strategy.Result
			var err error
			switch m.Config.Strategy {
			case Scatter:
				r, err = strategy.Scatter(gctx, hub.Rank(rank), bundle, sfn, opts)
			default:
				r, err = strategy.Pool(gctx, hub.Rank(rank), bundle, sfn, opts)
			}
			if rank == 0 {
				masterOutput = r
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		if strategy.IsNoWorkersAvailable(err) {
			return nil, newError("Map", NoWorkersAvailable, err)
		}
		return nil, newError("Map", InvariantViolation, err)
	}
	return []any(masterOutput), nil
}

// MapRemote is the out-of-process path (spec §4.5/§4.6/§4.7): it dumps
// fn's registered name and the argument bundle to tempfiles, composes
// the launcher/scheduler command line, runs it, polls for and loads
// the result file, then cleans up per Config.Mode.
func (m *Mapper) MapRemote(ctx context.Context, funcName string, iterables ...[]any) ([]any, error) {
	if m.Registry == nil {
		return nil, newError("MapRemote", ConfigError, fmt.Errorf("no Registry configured"))
	}
	if _, err := m.Registry.Lookup(funcName); err != nil {
		return nil, newError("MapRemote", ConfigError, err)
	}
	bundle := partition.Bundle[any](iterables)
	if err := bundle.Validate(); err != nil {
		return nil, newError("MapRemote", ConfigError, err)
	}

	workdir := m.Config.Workdir
	if workdir == "" {
		workdir = os.TempDir()
	}

	var funcPath string
	var err error
	if m.Config.Source {
		funcPath, err = serialize.DumpSource(m.Config.Program, funcName, workdir)
	} else {
		funcPath, err = serialize.DumpBlob(funcName, workdir)
	}
	if err != nil {
		return nil, newError("MapRemote", ConfigError, err)
	}
	argPath, err := serialize.DumpArgs(bundle, m.Config.OnAll, workdir)
	if err != nil {
		return nil, newError("MapRemote", ConfigError, err)
	}
	resultPath := fmt.Sprintf("%s/ranked-result-%d", workdir, os.Getpid())

	sess := &serialize.Session{
		Dir: workdir, FuncPath: funcPath, ArgPath: argPath, ResultPath: resultPath,
		SaveMode: m.Config.Mode == SaveArtifacts, ID: strconv.Itoa(os.Getpid()),
	}
	var runErr error
	defer func() { sess.Close(runErr) }()

	executable := m.Config.Program
	if executable == "" {
		executable = "ranked-helper"
	}
	if _, lerr := launch.LookPath(executable); lerr != nil {
		runErr = newError("MapRemote", ExecutableNotFound, lerr)
		return nil, runErr
	}

	cmd, cerr := launch.Command(m.Config.Launcher, launch.Params{
		Python: m.Config.Python, File: executable,
		ProgArgs: append([]string{funcPath, argPath, resultPath, workdir}, m.Config.ProgArgs...),
		Nodes:    m.Config.Nodes,
		Mpirun:   m.Config.MpiRun,
	})
	if cerr != nil {
		runErr = newError("MapRemote", ConfigError, cerr)
		return nil, runErr
	}

	if m.Config.HasScheduler {
		timelimit := m.Config.TimeLimit
		if timelimit == "" {
			timelimit = schedule.SecondsToISO(int(m.Config.Timeout.Seconds()))
		}
		if m.Config.Scheduler == schedule.LSF && m.Config.LSFMpichVariant != "" {
			cmd, cerr = schedule.RewriteForLSFMpich(cmd, m.Config.LSFMpichVariant)
			if cerr != nil {
				runErr = newError("MapRemote", ConfigError, cerr)
				return nil, runErr
			}
		}

		jobfile, outfile, errfile := m.Config.JobFile, m.Config.OutFile, m.Config.ErrFile
		if jobfile == "" && outfile == "" && errfile == "" {
			scratch, perr := schedule.Prepare(workdir, m.Config.Mode == SaveArtifacts)
			if perr != nil {
				runErr = newError("MapRemote", ConfigError, perr)
				return nil, runErr
			}
			defer scratch.Cleanup()
			jobfile, outfile, errfile = scratch.Jobfile, scratch.Outfile, scratch.Errfile
		}

		cmd, cerr = schedule.Wrap(m.Config.Scheduler, schedule.Record{
			Nodes: m.Config.Nodes, Queue: m.Config.Queue, Timelimit: timelimit,
			Outfile: outfile, Errfile: errfile, Jobfile: jobfile,
			Progname: executable, Command: cmd, LSFMpichVariant: m.Config.LSFMpichVariant,
		})
		if cerr != nil {
			runErr = newError("MapRemote", ConfigError, cerr)
			return nil, runErr
		}
	}

	if m.Config.Mode == DebugDryRun {
		debugf("ranked: dry run, composed command: %s", cmd)
		return nil, nil
	}

	logf("ranked: launching: %s", cmd)
	if runErr = launch.Run(ctx, cmd); runErr != nil {
		runErr = newError("MapRemote", LaunchFailed, runErr)
		return nil, runErr
	}

	timeout := m.Config.Timeout
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}
	timedOut, perr := launch.PollResult(ctx, resultPath, timeout)
	if perr != nil {
		runErr = newError("MapRemote", LoadFailure, perr)
		return nil, runErr
	}
	if timedOut {
		errorf("ranked: timed out waiting for result file %s", resultPath)
	}

	result, lerr := serialize.LoadResult(resultPath)
	if lerr != nil {
		runErr = newError("MapRemote", LoadFailure, lerr)
		return nil, runErr
	}
	return result, nil
}
