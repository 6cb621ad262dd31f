// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package inproc implements transport.Transport as ranks-as-goroutines
// communicating over channels, standing in for an MPI communicator
// when the helper program (cmd/ranked-helper) simulates P ranks inside
// a single OS process under the Serial launcher, and for every unit
// test in this module. It plays the role bigmachine's testsystem plays
// for bigslice: an in-process double for the real transport that
// strategies exercise identically.
package inproc

import (
	"context"
	"sync"

	"github.com/mattersoflight/ranked/internal/transport"
)

const exitTag = 0
const anySource = -1
const anyTag = -1

type envelope struct {
	payload any
	status  transport.Status
}

// Hub is the shared mailbox state for one communicator instance (one
// "world"). New ranks are views onto the same Hub; Clone produces an
// independent Hub so that traffic on the two cannot mix (spec §4.4).
type Hub struct {
	size int

	mu      sync.Mutex
	inboxes []chan envelope
	pending [][]envelope

	bcastMu  sync.Mutex
	bcastCur *bcastRound

	barrierMu  sync.Mutex
	barrierCur *barrierRound

	dupMu  sync.Mutex
	dupCur *dupRound
}

type bcastRound struct {
	arrived int
	value   any
	done    chan struct{}
}

type barrierRound struct {
	arrived int
	done    chan struct{}
}

type dupRound struct {
	arrived int
	hub     *Hub
	done    chan struct{}
}

// New creates a Hub for a communicator of the given size, i.e. P ranks.
func New(size int) *Hub {
	h := &Hub{
		size:    size,
		inboxes: make([]chan envelope, size),
		pending: make([][]envelope, size),
	}
	for i := range h.inboxes {
		// Buffered generously: the pool/scatter strategies never have
		// more than size in-flight messages per rank.
		h.inboxes[i] = make(chan envelope, size*4+8)
	}
	return h
}

// Clone returns a fresh Hub of the same size with independent mailboxes.
func (h *Hub) Clone() *Hub { return New(h.size) }

// Rank returns the Transport view of the Hub for the given 0-based rank.
func (h *Hub) Rank(rank int) transport.Transport {
	return &rankTransport{hub: h, rank: rank}
}

type rankTransport struct {
	hub  *Hub
	rank int
}

func (t *rankTransport) Size() int      { return t.hub.size }
func (t *rankTransport) Rank() int      { return t.rank }
func (t *rankTransport) AnySource() int { return anySource }
func (t *rankTransport) AnyTag() int    { return anyTag }
func (t *rankTransport) ExitTag() int   { return exitTag }

func (t *rankTransport) Send(ctx context.Context, payload any, dest, tag int) error {
	env := envelope{payload: payload, status: transport.Status{Source: t.rank, Tag: tag}}
	select {
	case t.hub.inboxes[dest] <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *rankTransport) Recv(ctx context.Context, source, tag int) (any, transport.Status, error) {
	h := t.hub
	h.mu.Lock()
	for i, env := range h.pending[t.rank] {
		if matches(env.status, source, tag) {
			h.pending[t.rank] = append(h.pending[t.rank][:i:i], h.pending[t.rank][i+1:]...)
			h.mu.Unlock()
			return env.payload, env.status, nil
		}
	}
	h.mu.Unlock()

	for {
		select {
		case env := <-h.inboxes[t.rank]:
			if matches(env.status, source, tag) {
				return env.payload, env.status, nil
			}
			h.mu.Lock()
			h.pending[t.rank] = append(h.pending[t.rank], env)
			h.mu.Unlock()
		case <-ctx.Done():
			return nil, transport.Status{}, ctx.Err()
		}
	}
}

func matches(s transport.Status, source, tag int) bool {
	return (source == anySource || s.Source == source) && (tag == anyTag || s.Tag == tag)
}

func (t *rankTransport) Bcast(ctx context.Context, payload any, root int) (any, error) {
	h := t.hub
	h.bcastMu.Lock()
	if h.bcastCur == nil {
		h.bcastCur = &bcastRound{done: make(chan struct{})}
	}
	r := h.bcastCur
	if t.rank == root {
		r.value = payload
	}
	r.arrived++
	if r.arrived == h.size {
		h.bcastCur = nil
		close(r.done)
	}
	h.bcastMu.Unlock()

	select {
	case <-r.done:
		return r.value, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *rankTransport) Barrier(ctx context.Context) error {
	h := t.hub
	h.barrierMu.Lock()
	if h.barrierCur == nil {
		h.barrierCur = &barrierRound{done: make(chan struct{})}
	}
	r := h.barrierCur
	r.arrived++
	if r.arrived == h.size {
		h.barrierCur = nil
		close(r.done)
	}
	h.barrierMu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clone performs a collective "dup" of the communicator: every rank
// must call Clone once, together, for the operation to complete (it is
// the in-process analogue of MPI's Comm_dup). All ranks observe the
// same freshly allocated Hub, so the cloned channel is usable for
// private point-to-point traffic exactly like the original.
func (t *rankTransport) Clone() transport.Transport {
	h := t.hub
	h.dupMu.Lock()
	if h.dupCur == nil {
		h.dupCur = &dupRound{hub: h.Clone(), done: make(chan struct{})}
	}
	r := h.dupCur
	r.arrived++
	if r.arrived == h.size {
		h.dupCur = nil
		close(r.done)
	}
	h.dupMu.Unlock()

	<-r.done
	return r.hub.Rank(t.rank)
}
