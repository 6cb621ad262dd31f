// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"path/filepath"
	"testing"

	"github.com/mattersoflight/ranked/internal/partition"
	"github.com/mattersoflight/ranked/internal/serialize"
)

func TestRunPoolRoundTrip(t *testing.T) {
	dir := t.TempDir()
	registry := serialize.NewRegistry()
	registry.RegisterFunc("square", func(args []any) (any, error) {
		x := args[0].(int)
		return x * x, nil
	})

	bundle := partition.Bundle[any]{{1, 2, 3, 4}}
	funcPath, err := serialize.DumpBlob("square", dir)
	if err != nil {
		t.Fatal(err)
	}
	argPath, err := serialize.DumpArgs(bundle, true, dir)
	if err != nil {
		t.Fatal(err)
	}
	resPath := filepath.Join(dir, "result")

	t.Setenv("RANKED_HELPER_RANKS", "2")
	if err := run([]string{funcPath, argPath, resPath, dir}, registry); err != nil {
		t.Fatal(err)
	}

	got, err := serialize.LoadResult(resPath)
	if err != nil {
		t.Fatal(err)
	}
	want := []any{1, 4, 9, 16}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRunScatterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	registry := serialize.NewRegistry()
	registry.RegisterFunc("square", func(args []any) (any, error) {
		x := args[0].(int)
		return x * x, nil
	})

	bundle := partition.Bundle[any]{{1, 2, 3, 4, 5}}
	funcPath, err := serialize.DumpBlob("square", dir)
	if err != nil {
		t.Fatal(err)
	}
	argPath, err := serialize.DumpArgs(bundle, true, dir)
	if err != nil {
		t.Fatal(err)
	}
	resPath := filepath.Join(dir, "result")

	t.Setenv("RANKED_HELPER_RANKS", "3")
	t.Setenv("RANKED_HELPER_STRATEGY", "scatter")
	if err := run([]string{funcPath, argPath, resPath, dir}, registry); err != nil {
		t.Fatal(err)
	}

	got, err := serialize.LoadResult(resPath)
	if err != nil {
		t.Fatal(err)
	}
	want := []any{1, 4, 9, 16, 25}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

// TestRunSourceRoundTrip exercises source mode end to end (spec §4.5 /
// §8 testable property #4 "source/blob equivalence"): run() detects
// the .go funcfile DumpSource wrote and execs it via "go run" instead
// of taking the blob-mode LoadBlob/Registry path, and the generated
// program's own dispatch writes the same shape of result file blob
// mode would.
func TestRunSourceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	funcPath, err := serialize.DumpSource("github.com/mattersoflight/ranked/internal/serialize/sourcefixture", "Square", dir)
	if err != nil {
		t.Fatal(err)
	}

	bundle := partition.Bundle[any]{{1, 2, 3, 4}}
	argPath, err := serialize.DumpArgs(bundle, true, dir)
	if err != nil {
		t.Fatal(err)
	}
	resPath := filepath.Join(dir, "result")

	t.Setenv("RANKED_HELPER_RANKS", "2")
	if err := run([]string{funcPath, argPath, resPath, dir}, serialize.NewRegistry()); err != nil {
		t.Fatal(err)
	}

	got, err := serialize.LoadResult(resPath)
	if err != nil {
		t.Fatal(err)
	}
	want := []any{1, 4, 9, 16}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRunRejectsWrongArgCount(t *testing.T) {
	if err := run([]string{"a", "b"}, serialize.NewRegistry()); err == nil {
		t.Fatal("expected usage error")
	}
}

func TestRunUnknownFunc(t *testing.T) {
	dir := t.TempDir()
	registry := serialize.NewRegistry()
	bundle := partition.Bundle[any]{{1}}
	funcPath, _ := serialize.DumpBlob("missing", dir)
	argPath, _ := serialize.DumpArgs(bundle, true, dir)
	resPath := filepath.Join(dir, "result")
	if err := run([]string{funcPath, argPath, resPath, dir}, registry); err == nil {
		t.Fatal("expected lookup error for unregistered function")
	}
}
