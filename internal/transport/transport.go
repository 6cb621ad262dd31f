// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package transport defines the narrow point-to-point capability
// surface that the pool and scatter strategies are built against. It
// plays the role an MPI communicator plays in the historical source:
// a duck-typed comm object exposing size/rank, tagged send/recv,
// bcast and barrier (spec §4.1, §9 "duck-typed comm parameter").
package transport

import "context"

// Status describes the envelope of a received message: which rank sent
// it, and under which tag.
type Status struct {
	Source int
	Tag    int
}

// Transport is the capability set consumed by the pool and scatter
// strategies. All operations are blocking; there is no non-blocking
// send/recv in the core (spec §5).
type Transport interface {
	// Size returns P, the number of ranks in the communicator.
	Size() int
	// Rank returns this process's 0-based rank.
	Rank() int
	// AnySource is the wildcard source accepted by Recv.
	AnySource() int
	// AnyTag is the wildcard tag accepted by Recv.
	AnyTag() int
	// ExitTag is the reserved tag (0) signaling worker termination in
	// the pool strategy.
	ExitTag() int

	// Send blocks until payload has been handed to dest under tag.
	Send(ctx context.Context, payload any, dest, tag int) error
	// Recv blocks until a message matching (source, tag) arrives,
	// where either may be the wildcard value (AnySource/AnyTag).
	Recv(ctx context.Context, source, tag int) (payload any, status Status, err error)
	// Bcast broadcasts payload from root to every rank, including root,
	// and returns the value every rank should observe.
	Bcast(ctx context.Context, payload any, root int) (any, error)
	// Barrier blocks until every rank has called Barrier.
	Barrier(ctx context.Context) error
	// Clone duplicates the communicator so that a strategy's traffic
	// (e.g. scatter's gather phase) cannot collide with traffic on the
	// parent channel (spec §4.4 rationale).
	Clone() Transport
}
