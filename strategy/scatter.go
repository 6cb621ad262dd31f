// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package strategy

import (
	"context"

	"github.com/mattersoflight/ranked/internal/partition"
	"github.com/mattersoflight/ranked/internal/transport"
)

// Scatter implements the static equal-share scatter-gather strategy
// (spec §4.4): the master computes the full partition up front, sends
// each other rank its slice on a cloned private channel, every rank
// computes its local slice, and non-master ranks send their results
// back for the master to place into the final vector using the same
// partition arithmetic.
func Scatter(ctx context.Context, t transport.Transport, bundle partition.Bundle[any], fn Func, opts Options) (Result, error) {
	n := bundle.Len()
	size := t.Size()
	rank := t.Rank()

	skip := partition.None
	if !opts.OnAll {
		if size == 1 {
			return nil, errNoWorkers
		}
		skip = partition.Of(master)
	}
	w := partition.Workload{Ranks: size, Items: n, Skip: skip}

	priv := t.Clone()

	var mySlice partition.Bundle[any]
	if rank == master {
		for worker := 1; worker < size; worker++ {
			b, e := partition.Range(worker, w)
			if err := priv.Send(ctx, bundle.Slice(b, e), worker, 0); err != nil {
				return nil, err
			}
		}
		b, e := partition.Range(master, w)
		mySlice = bundle.Slice(b, e)
	} else {
		payload, _, err := priv.Recv(ctx, master, priv.AnyTag())
		if err != nil {
			return nil, err
		}
		mySlice, _ = payload.(partition.Bundle[any])
	}

	local := make(Result, mySlice.Len())
	for j := 0; j < mySlice.Len(); j++ {
		wr := callFunc(fn, mySlice.Item(j))
		v, ferr := wr.resolve(opts.PropagateErrors)
		if ferr != nil {
			return nil, ferr
		}
		local[j] = v
	}

	var result Result
	if rank == master {
		result = make(Result, n)
		filled := make([]bool, n)
		b, e := partition.Range(master, w)
		copy(result[b:e], local)
		markFilled(filled, b, e)

		for i := 1; i < size; i++ {
			payload, status, err := priv.Recv(ctx, priv.AnySource(), priv.AnyTag())
			if err != nil {
				return nil, err
			}
			msg, _ := payload.(Result)
			b, e := partition.Range(status.Source, w)
			copy(result[b:e], msg)
			markFilled(filled, b, e)
		}

		if err := validateResult(filled, n); err != nil {
			return nil, err
		}
	} else {
		if err := priv.Send(ctx, local, master, rank); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func markFilled(filled []bool, b, e int) {
	for j := b; j < e; j++ {
		filled[j] = true
	}
}
