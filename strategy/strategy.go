// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package strategy implements the two distribution strategies named by
// the design: Pool (dynamic master-worker dispatch) and Scatter
// (static equal-share partition and gather). Both are built entirely
// against the internal/transport and internal/partition packages, so
// they are agnostic to whether the transport is the in-process
// simulation used by tests and the Serial launcher, or a future
// MPI-backed transport (spec §4.1, §4.3, §4.4).
package strategy

import (
	"fmt"
)

// Func is a task function invoked on one item's argument tuple. A
// failing Func returns an error, which the strategy packages as the
// result payload for that slot unless the caller's PropagateErrors is
// set (see Options).
type Func func(args []any) (any, error)

// Result is the ordered, length-N result vector of a parallel map,
// aligned to input order (spec §3 "Result vector").
type Result []any

// Options configures a single Pool or Scatter invocation.
type Options struct {
	// OnAll selects whether the master rank also computes items
	// (spec §3 "onall"). The zero Options leaves it false; callers
	// pass the Config value, which DefaultConfig sets to true.
	OnAll bool
	// PropagateErrors controls whether a worker's Func error surfaces
	// as an error from Pool/Scatter (true) or as the result payload for
	// that slot (false, the historical default; spec §7, §9).
	PropagateErrors bool
}

// workerResult wraps a Func's return so a failing worker's error can be
// carried as an ordinary message payload (spec §7).
type workerResult struct {
	Value any
	Err   string
}

func callFunc(fn Func, args []any) workerResult {
	v, err := fn(args)
	if err != nil {
		return workerResult{Err: err.Error()}
	}
	return workerResult{Value: v}
}

func (w workerResult) resolve(propagate bool) (any, error) {
	if w.Err != "" && propagate {
		return nil, fmt.Errorf("%s", w.Err)
	}
	if w.Err != "" {
		return w.Err, nil
	}
	return w.Value, nil
}

// master is the conventional rank that orchestrates dispatch and
// collects results (spec GLOSSARY).
const master = 0

// validateResult checks that every slot in [0, n) of result was
// actually written by the dispatch loop. filled is a parallel
// length-n slice set by the caller as each slot is assigned; a result
// value of nil is a legitimate Func return (e.g. a side-effecting
// task) and must not be mistaken for an unfilled slot (spec §3
// "Result vector": "Missing slots are a fatal invariant violation").
func validateResult(filled []bool, n int) error {
	for j := 0; j < n; j++ {
		if !filled[j] {
			return fmt.Errorf("strategy: result slot %d was never filled", j)
		}
	}
	return nil
}

var errNoWorkers = fmt.Errorf("strategy: there must be at least one worker node")

// IsNoWorkersAvailable reports whether err is the NoWorkersAvailable
// condition from Pool or Scatter (spec §7).
func IsNoWorkersAvailable(err error) bool { return err == errNoWorkers }
