// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package inproc

import (
	"context"
	"sync"
	"testing"

	"github.com/mattersoflight/ranked/internal/transport"
)

func TestSendRecv(t *testing.T) {
	ctx := context.Background()
	h := New(2)
	r0, r1 := h.Rank(0), h.Rank(1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := r0.Send(ctx, "hello", 1, 7); err != nil {
			t.Error(err)
		}
	}()
	payload, status, err := r1.Recv(ctx, r1.AnySource(), r1.AnyTag())
	wg.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if payload != "hello" || status.Source != 0 || status.Tag != 7 {
		t.Fatalf("got payload=%v status=%+v", payload, status)
	}
}

func TestRecvFiltersByTag(t *testing.T) {
	ctx := context.Background()
	h := New(2)
	r0, r1 := h.Rank(0), h.Rank(1)

	if err := r0.Send(ctx, "first", 1, 1); err != nil {
		t.Fatal(err)
	}
	if err := r0.Send(ctx, "second", 1, 2); err != nil {
		t.Fatal(err)
	}
	payload, status, err := r1.Recv(ctx, r1.AnySource(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if payload != "second" || status.Tag != 2 {
		t.Fatalf("got payload=%v status=%+v", payload, status)
	}
	payload, status, err = r1.Recv(ctx, r1.AnySource(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if payload != "first" || status.Tag != 1 {
		t.Fatalf("got payload=%v status=%+v", payload, status)
	}
}

func TestBarrier(t *testing.T) {
	ctx := context.Background()
	h := New(4)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			if err := h.Rank(rank).Barrier(ctx); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
}

func TestBcast(t *testing.T) {
	ctx := context.Background()
	h := New(3)
	results := make([]any, 3)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			v, err := h.Rank(rank).Bcast(ctx, rank, 0)
			if err != nil {
				t.Error(err)
				return
			}
			results[rank] = v
		}(i)
	}
	wg.Wait()
	for i, v := range results {
		if v != 0 {
			t.Errorf("rank %d: got %v, want broadcast value from root (0)", i, v)
		}
	}
}

func TestCloneIsolatesTraffic(t *testing.T) {
	ctx := context.Background()
	h := New(2)
	r0, r1 := h.Rank(0), h.Rank(1)

	clones := make([]transport.Transport, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); clones[0] = r0.Clone() }()
	go func() { defer wg.Done(); clones[1] = r1.Clone() }()
	wg.Wait()

	if err := clones[0].Send(ctx, "on-clone", 1, 1); err != nil {
		t.Fatal(err)
	}
	// The message sent on the clone must not be visible on the parent
	// transport, and vice versa: send a distinct message on the parent
	// and ensure the clone's receive only observes its own traffic.
	if err := r0.Send(ctx, "on-parent", 1, 1); err != nil {
		t.Fatal(err)
	}
	payload, _, err := clones[1].Recv(ctx, clones[1].AnySource(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if payload != "on-clone" {
		t.Fatalf("clone recv got %v, want on-clone", payload)
	}
	payload, _, err = r1.Recv(ctx, r1.AnySource(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if payload != "on-parent" {
		t.Fatalf("parent recv got %v, want on-parent", payload)
	}
}
