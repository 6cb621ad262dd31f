// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package strategy

import (
	"context"

	"github.com/grailbio/base/log"
	"github.com/mattersoflight/ranked/internal/partition"
	"github.com/mattersoflight/ranked/internal/transport"
)

// Pool implements the dynamic master-worker dispatch strategy (spec
// §4.3): the master hands out one item index at a time, using the
// message tag as the slot id, and re-assigns a worker's next item as
// soon as its reply arrives. Every participating rank must call Pool;
// the return value is only meaningful on rank 0 (master).
//
// The tag-as-slot-id scheme is ported directly from
// original_source/pyina/mpi_pool.py: the tag used for a given send
// always equals the target item's index plus skip (1 if the master
// does not compute, 0 if it does), so a reply's tag recovers its slot
// with a single subtraction.
func Pool(ctx context.Context, t transport.Transport, bundle partition.Bundle[any], fn Func, opts Options) (Result, error) {
	n := bundle.Len()
	rank := t.Rank()
	size := t.Size()

	if n == 0 {
		if err := t.Barrier(ctx); err != nil {
			return nil, err
		}
		if rank == master {
			return Result{}, nil
		}
		return nil, nil
	}

	skip := 0
	if !opts.OnAll {
		skip = 1
	}
	// nodes caps how many ranks actually participate: never more than
	// there are items to hand out (plus the master itself when it does
	// not compute).
	nodes := size
	if c := n + skip; nodes > c {
		nodes = c
	}

	var (
		result Result
		filled []bool
		err    error
	)
	switch {
	case nodes == 1:
		if skip == 1 {
			return nil, errNoWorkers
		}
		if rank == master {
			result = make(Result, n)
			filled = make([]bool, n)
			for j := 0; j < n; j++ {
				v, ferr := fn(bundle.Item(j))
				if ferr != nil && opts.PropagateErrors {
					err = ferr
					break
				}
				if ferr != nil {
					result[j] = ferr.Error()
				} else {
					result[j] = v
				}
				filled[j] = true
			}
		}
	case rank == master:
		result, filled, err = poolMaster(ctx, t, bundle, fn, nodes, skip, opts)
		if err != nil {
			// Release workers still waiting for an index so that every
			// rank reaches the barrier below.
			for worker := 1; worker < nodes; worker++ {
				t.Send(ctx, "done", worker, t.ExitTag())
			}
		}
	case nodes != size && rank >= nodes:
		// Idle: this rank was never primed with work because N+skip < P.
	default:
		poolWorker(ctx, t, bundle, fn)
	}
	if berr := t.Barrier(ctx); berr != nil && err == nil {
		err = berr
	}
	if err != nil {
		return nil, err
	}
	if rank == master {
		if verr := validateResult(filled, n); verr != nil {
			return nil, verr
		}
	}
	return result, nil
}

type poolReply struct {
	payload any
	status  transport.Status
	err     error
}

// poolMaster runs the master's dispatch loop. nodes is the number of
// ranks actually participating (including the master); skip is 1 when
// the master does not compute (so tag == item index + skip throughout).
func poolMaster(ctx context.Context, t transport.Transport, bundle partition.Bundle[any], fn Func, nodes, skip int, opts Options) (Result, []bool, error) {
	n := bundle.Len()
	result := make(Result, n)
	filled := make([]bool, n)

	recvCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	msgs := make(chan poolReply)
	go func() {
		for {
			payload, status, rerr := t.Recv(recvCtx, t.AnySource(), t.AnyTag())
			select {
			case msgs <- poolReply{payload, status, rerr}:
			case <-recvCtx.Done():
				return
			}
			if rerr != nil {
				return
			}
		}
	}()

	nextIndex := 0

	// localDone/localSlot stand in for pyina's single-slot local
	// process pool: the master computes one item at a time,
	// concurrently with dispatching to remote workers (spec §4.3
	// "optional self-assign").
	var localDone chan workerResult
	var localSlot int
	startLocal := func() {
		idx := nextIndex
		nextIndex++
		localSlot = idx
		localDone = make(chan workerResult, 1)
		ch := localDone
		item := bundle.Item(idx)
		go func() { ch <- callFunc(fn, item) }()
	}
	if skip == 0 {
		startLocal()
	}

	for worker := 1; worker < nodes; worker++ {
		idx := nextIndex
		nextIndex++
		tag := idx + skip
		log.Debug.Printf("ranked: pool master priming worker %d with item %d (tag %d)", worker, idx, tag)
		if err := t.Send(ctx, idx, worker, tag); err != nil {
			return nil, nil, err
		}
	}

	recvjob := 0
	donejob := 0
	for recvjob < n {
		select {
		case r := <-msgs:
			if r.err != nil {
				return nil, nil, r.err
			}
			slot := r.status.Tag - skip
			wr, _ := r.payload.(workerResult)
			v, ferr := wr.resolve(opts.PropagateErrors)
			if ferr != nil {
				return nil, nil, ferr
			}
			result[slot] = v
			filled[slot] = true
			recvjob++
			if nextIndex < n {
				idx := nextIndex
				nextIndex++
				tag := idx + skip
				if err := t.Send(ctx, idx, r.status.Source, tag); err != nil {
					return nil, nil, err
				}
			} else if donejob < nodes-1 {
				if err := t.Send(ctx, "done", r.status.Source, t.ExitTag()); err != nil {
					return nil, nil, err
				}
				donejob++
			}
		case wr := <-localDone:
			v, ferr := wr.resolve(opts.PropagateErrors)
			if ferr != nil {
				return nil, nil, ferr
			}
			result[localSlot] = v
			filled[localSlot] = true
			recvjob++
			if nextIndex < n {
				startLocal()
			} else {
				localDone = nil
			}
		}
	}
	return result, filled, nil
}

func poolWorker(ctx context.Context, t transport.Transport, bundle partition.Bundle[any], fn Func) {
	for {
		payload, status, err := t.Recv(ctx, master, t.AnyTag())
		if err != nil {
			return
		}
		if status.Tag == t.ExitTag() {
			return
		}
		idx, _ := payload.(int)
		wr := callFunc(fn, bundle.Item(idx))
		if serr := t.Send(ctx, wr, master, status.Tag); serr != nil {
			return
		}
	}
}
