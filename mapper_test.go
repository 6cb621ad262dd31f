// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ranked

import (
	"context"
	"testing"
)

func squared(args []any) (any, error) {
	x := args[0].(int)
	return x * x, nil
}

// TestMapLocalSingleRank is spec scenario A (P==1, onall implied by a
// single rank computing directly).
func TestMapLocalSingleRank(t *testing.T) {
	cfg := DefaultConfig().WithNodes("1")
	m := New(cfg, nil)
	xs := make([]any, 5)
	for i := range xs {
		xs[i] = i
	}
	got, err := m.Map(context.Background(), squared, xs)
	if err != nil {
		t.Fatal(err)
	}
	want := []any{0, 1, 4, 9, 16}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMapLocalMultiRankPool(t *testing.T) {
	cfg := DefaultConfig().WithNodes("4")
	m := New(cfg, nil)
	xs := make([]any, 10)
	for i := range xs {
		xs[i] = i
	}
	got, err := m.Map(context.Background(), squared, xs)
	if err != nil {
		t.Fatal(err)
	}
	want := []any{0, 1, 4, 9, 16, 25, 36, 49, 64, 81}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMapLocalMultiRankScatter(t *testing.T) {
	cfg := DefaultConfig().WithNodes("4")
	cfg.Strategy = Scatter
	m := New(cfg, nil)
	xs := make([]any, 10)
	for i := range xs {
		xs[i] = i
	}
	got, err := m.Map(context.Background(), squared, xs)
	if err != nil {
		t.Fatal(err)
	}
	want := []any{0, 1, 4, 9, 16, 25, 36, 49, 64, 81}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

// TestMapPoolNoWorkersAvailable is spec scenario E.
func TestMapPoolNoWorkersAvailable(t *testing.T) {
	cfg := DefaultConfig().WithNodes("1")
	cfg.OnAll = false
	m := New(cfg, nil)
	_, err := m.Map(context.Background(), squared, []any{1, 2, 3})
	if !Is(err, NoWorkersAvailable) {
		t.Fatalf("got %v, want NoWorkersAvailable", err)
	}
}

func TestMapRemoteRequiresRegistry(t *testing.T) {
	cfg := TorqueMpiScatter()
	m := New(cfg, nil)
	_, err := m.MapRemote(context.Background(), "square", []any{1, 2, 3})
	if !Is(err, ConfigError) {
		t.Fatalf("got %v, want ConfigError", err)
	}
}

func TestMapRejectsRemoteLaunchersWithoutMapRemote(t *testing.T) {
	cfg := TorqueMpiScatter()
	m := New(cfg, nil)
	_, err := m.Map(context.Background(), squared, []any{1, 2, 3})
	if !Is(err, ConfigError) {
		t.Fatalf("got %v, want ConfigError", err)
	}
}
