// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ranked

import (
	"time"

	"github.com/mattersoflight/ranked/internal/launch"
	"github.com/mattersoflight/ranked/internal/schedule"
)

// RunMode selects ancillary behavior around a Map call (spec §9,
// replacing the historical module-level mutable defaults dictionary
// with an explicit, immutable Config value).
type RunMode int

const (
	// Normal removes all tempfiles on completion, success or failure.
	Normal RunMode = iota
	// SaveArtifacts keeps copies of the function, argument, and result
	// tempfiles in Workdir after completion (spec §3 "Lifecycles").
	SaveArtifacts
	// DebugDryRun composes the launch command and logs it at Debug
	// level without spawning a child process (spec §J).
	DebugDryRun
)

// StrategyKind selects Pool or Scatter (spec §4.3/§4.4).
type StrategyKind int

const (
	Pool StrategyKind = iota
	Scatter
)

// Config is the immutable record a Mapper is built from. Every field
// has a zero-value-safe default reachable via DefaultConfig; callers
// derive a new Config with With* methods rather than mutating one in
// place (spec §9's pinned decision against the historical mutable
// defaults dict).
type Config struct {
	Nodes     string
	Strategy  StrategyKind
	Launcher  launch.Variant
	Scheduler schedule.Kind
	HasScheduler bool

	Workdir string
	Source  bool
	OnAll   bool
	Timeout time.Duration
	Mode    RunMode

	// PropagateWorkerErrors pins the open question from spec §7/§9: a
	// failing worker's error is returned as the slot value (false,
	// historical default) or propagated as a Map error (true).
	PropagateWorkerErrors bool

	Queue, TimeLimit, JobFile, OutFile, ErrFile string
	MpiRun, Python, Program                     string
	ProgArgs                                    []string

	// LSFMpichVariant selects LSF's Myrinet mpich esub/wrapper
	// substitution (spec §4.7 LSF note): "mpich_gm" or "mpich_mx".
	// Empty means no MPICH wrapping. Only consulted when Scheduler is
	// LSF; ignored otherwise.
	LSFMpichVariant string
}

// DefaultConfig returns the baseline configuration: serial launcher,
// Pool strategy, onall true, no scheduler, no timeout, tempfiles
// cleaned up on completion.
func DefaultConfig() Config {
	return Config{
		Strategy: Pool,
		Launcher: launch.Serial,
		Nodes:    "1",
		OnAll:    true,
		Mode:     Normal,
		Queue:    "normal",
		MpiRun:   "mpirun",
	}
}

// WithScheduler returns a copy of c wrapped by scheduler kind k.
func (c Config) WithScheduler(k schedule.Kind) Config {
	c.Scheduler = k
	c.HasScheduler = true
	return c
}

// WithNodes returns a copy of c with its node-string replaced.
func (c Config) WithNodes(nodes string) Config {
	c.Nodes = nodes
	return c
}

// WithTimeout returns a copy of c with its result-poll timeout set.
func (c Config) WithTimeout(d time.Duration) Config {
	c.Timeout = d
	return c
}

// WithMode returns a copy of c under RunMode mode.
func (c Config) WithMode(mode RunMode) Config {
	c.Mode = mode
	return c
}

// WithLSFMpichVariant returns a copy of c that wraps an LSF-scheduled
// launch with the given Myrinet mpich esub/wrapper variant ("mpich_gm"
// or "mpich_mx"; spec §4.7 LSF note).
func (c Config) WithLSFMpichVariant(variant string) Config {
	c.LSFMpichVariant = variant
	return c
}

// TorqueMpiScatter is a convenience constructor for the common
// Torque-scheduled, mpirun-launched, scatter-strategy combination
// (spec §9 "pre-built combinations" note).
func TorqueMpiScatter() Config {
	c := DefaultConfig()
	c.Strategy = Scatter
	c.Launcher = launch.Mpi
	return c.WithScheduler(schedule.Torque)
}

// MoabMpiPool is a convenience constructor for the Moab-scheduled,
// mpirun-launched, pool-strategy combination.
func MoabMpiPool() Config {
	c := DefaultConfig()
	c.Strategy = Pool
	c.Launcher = launch.Mpi
	return c.WithScheduler(schedule.Moab)
}

// LsfSlurmScatter is a convenience constructor for the LSF-scheduled,
// srun-launched, scatter-strategy combination.
func LsfSlurmScatter() Config {
	c := DefaultConfig()
	c.Strategy = Scatter
	c.Launcher = launch.Slurm
	return c.WithScheduler(schedule.LSF)
}

func (k StrategyKind) String() string {
	if k == Scatter {
		return "scatter"
	}
	return "pool"
}
