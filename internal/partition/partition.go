// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package partition computes the per-rank index ranges that the pool
// and scatter strategies use to divide a workload of N items across P
// ranks, with an optional excluded (skipped) rank.
package partition

import "fmt"

// Skip names a rank excluded from the compute fabric, typically the
// master in configurations where it only orchestrates.
type Skip struct {
	Valid bool
	Rank  int
}

// None is the zero value: no rank is skipped.
var None = Skip{}

// Of returns a Skip naming rank r as excluded.
func Of(r int) Skip { return Skip{Valid: true, Rank: r} }

// Workload describes the shape of a parallel map: P ranks dividing N
// items, with an optional skipped rank.
type Workload struct {
	Ranks int // P
	Items int // N
	Skip  Skip
}

// Range returns the half-open range [begin, end) of item indices that
// rank owns under w. Ranges are disjoint across active ranks and their
// union is [0, w.Items).
//
// When w.Skip names rank r, the compute fabric is treated as having
// P-1 active ranks: r receives an empty range at a consistent boundary
// (its slot in the would-be flat partition), and every other rank's
// index is re-mapped to skip over r.
func Range(rank int, w Workload) (begin, end int) {
	if !w.Skip.Valid {
		return flatRange(rank, w.Ranks, w.Items)
	}
	r := w.Skip.Rank
	active := w.Ranks - 1
	if active <= 0 {
		return 0, 0
	}
	if rank == r {
		// An empty range at the boundary this rank would have occupied
		// in the flat partition of the active fabric.
		b, _ := flatRange(r, active, w.Items)
		return b, b
	}
	return flatRange(activeIndex(rank, r), active, w.Items)
}

// activeIndex re-indexes rank within the P-1 active ranks, skipping r.
func activeIndex(rank, r int) int {
	if rank < r {
		return rank
	}
	return rank - 1
}

// flatRange implements the ceil-first recurrence: the first (n mod p)
// ranks get ceil(n/p) items, the rest get floor(n/p). This mirrors the
// historical source's running `ceil(n2/n1)` reduction and is pinned as
// the authoritative distribution (spec §4.2, §9).
func flatRange(rank, p, n int) (begin, end int) {
	if p <= 0 {
		return 0, 0
	}
	n1, n2 := p, n
	iend := 0
	for i := 0; i < p; i++ {
		ibegin := iend
		ai := ceilDiv(n2, n1)
		n2 -= ai
		n1--
		iend += ai
		if i == rank {
			return ibegin, iend
		}
	}
	return iend, iend
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Bundle is an ordered tuple of equal-length sequences: Bundle[m][j] is
// the j'th element of the m'th sequence. Item j of the bundle is the
// k-tuple (Bundle[0][j], ..., Bundle[k-1][j]).
type Bundle[T any] [][]T

// Item returns the k-tuple at index j.
func (b Bundle[T]) Item(j int) []T {
	out := make([]T, len(b))
	for m, seq := range b {
		out[m] = seq[j]
	}
	return out
}

// Slice returns the sub-bundle covering [begin, end) of every sequence.
func (b Bundle[T]) Slice(begin, end int) Bundle[T] {
	out := make(Bundle[T], len(b))
	for m, seq := range b {
		out[m] = seq[begin:end]
	}
	return out
}

// Len returns N, the common length of the bundle's sequences, or 0 for
// an empty bundle.
func (b Bundle[T]) Len() int {
	if len(b) == 0 {
		return 0
	}
	return len(b[0])
}

// Validate checks the equal-length invariant required of a Bundle.
func (b Bundle[T]) Validate() error {
	if len(b) == 0 {
		return nil
	}
	n := len(b[0])
	for m, seq := range b {
		if len(seq) != n {
			return fmt.Errorf("partition: sequence %d has length %d, want %d", m, len(seq), n)
		}
	}
	return nil
}
