// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ranked

import (
	"testing"
	"time"

	"github.com/mattersoflight/ranked/internal/launch"
	"github.com/mattersoflight/ranked/internal/schedule"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.Strategy != Pool || c.Launcher != launch.Serial || !c.OnAll || c.HasScheduler {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}

func TestConfigWithMethodsAreImmutable(t *testing.T) {
	base := DefaultConfig()
	withTimeout := base.WithTimeout(5 * time.Second)
	if base.Timeout != 0 {
		t.Fatalf("WithTimeout mutated base: %v", base.Timeout)
	}
	if withTimeout.Timeout != 5*time.Second {
		t.Fatalf("got %v, want 5s", withTimeout.Timeout)
	}

	withSched := base.WithScheduler(schedule.Torque)
	if base.HasScheduler {
		t.Fatal("WithScheduler mutated base")
	}
	if !withSched.HasScheduler || withSched.Scheduler != schedule.Torque {
		t.Fatalf("got %+v, want Torque scheduler attached", withSched)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	c := TorqueMpiScatter()
	if c.Strategy != Scatter || c.Launcher != launch.Mpi || !c.HasScheduler || c.Scheduler != schedule.Torque {
		t.Fatalf("TorqueMpiScatter: got %+v", c)
	}
	m := MoabMpiPool()
	if m.Strategy != Pool || m.Launcher != launch.Mpi || m.Scheduler != schedule.Moab {
		t.Fatalf("MoabMpiPool: got %+v", m)
	}
	l := LsfSlurmScatter()
	if l.Strategy != Scatter || l.Launcher != launch.Slurm || l.Scheduler != schedule.LSF {
		t.Fatalf("LsfSlurmScatter: got %+v", l)
	}
}

// TestWithLSFMpichVariant confirms the variant set through the public
// Config builder is the same value MapRemote consults to decide whether
// to rewrite the launcher prefix for LSF (it is otherwise only exercised
// internally by internal/schedule's own tests).
func TestWithLSFMpichVariant(t *testing.T) {
	base := LsfSlurmScatter()
	withVariant := base.WithLSFMpichVariant("mpich_gm")
	if base.LSFMpichVariant != "" {
		t.Fatalf("WithLSFMpichVariant mutated base: %q", base.LSFMpichVariant)
	}
	if withVariant.LSFMpichVariant != "mpich_gm" {
		t.Fatalf("got %q, want mpich_gm", withVariant.LSFMpichVariant)
	}
	if withVariant.Scheduler != schedule.LSF {
		t.Fatalf("expected Scheduler to remain LSF, got %v", withVariant.Scheduler)
	}
}
