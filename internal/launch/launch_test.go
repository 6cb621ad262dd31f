// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package launch

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestParseNodeSpec(t *testing.T) {
	cases := []struct {
		in   string
		want NodeSpec
	}{
		{"3:core4:ppn=2", NodeSpec{N: 3, PPN: 2}},
		{"4", NodeSpec{N: 4, PPN: 1}},
		{"3:ppn=2,partition=foo", NodeSpec{N: 3, PPN: 2}},
	}
	for _, c := range cases {
		got, err := ParseNodeSpec(c.in)
		if err != nil {
			t.Fatalf("ParseNodeSpec(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParseNodeSpec(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestMpirunTasks(t *testing.T) {
	s, _ := ParseNodeSpec("3:core4:ppn=2")
	if got := s.MpirunTasks(); got != 6 {
		t.Errorf("got %d, want 6", got)
	}
}

func TestSrunTasks(t *testing.T) {
	s, _ := ParseNodeSpec("3:ppn=2,partition=foo")
	if got := s.SrunTasks(); got != "3 -N2" {
		t.Errorf("got %q, want %q", got, "3 -N2")
	}
	s2, _ := ParseNodeSpec("3")
	if got := s2.SrunTasks(); got != "3" {
		t.Errorf("got %q, want %q", got, "3")
	}
}

func TestCommandSerial(t *testing.T) {
	got, err := Command(Serial, Params{File: "helper.py", ProgArgs: []string{"a", "b"}})
	if err != nil {
		t.Fatal(err)
	}
	want := "'helper.py' 'a' 'b'"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCommandMpi(t *testing.T) {
	got, err := Command(Mpi, Params{File: "helper.py", Nodes: "3:ppn=2"})
	if err != nil {
		t.Fatal(err)
	}
	want := "mpirun -np 6 'helper.py'"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCommandAlps(t *testing.T) {
	got, err := Command(Alps, Params{File: "helper.py", Nodes: "3:core4:ppn=2"})
	if err != nil {
		t.Fatal(err)
	}
	want := "aprun -n 3 -N 2 'helper.py'"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestAprunTasks(t *testing.T) {
	s, _ := ParseNodeSpec("3:core4:ppn=2")
	if got := s.AprunTasks(); got != "3 -N 2" {
		t.Errorf("got %q, want %q", got, "3 -N 2")
	}
	s2, _ := ParseNodeSpec("4")
	if got := s2.AprunTasks(); got != "4" {
		t.Errorf("got %q, want %q", got, "4")
	}
}

func TestCommandQuotesShellMetacharacters(t *testing.T) {
	got, err := Command(Serial, Params{File: "/tmp/a file; rm -rf /"})
	if err != nil {
		t.Fatal(err)
	}
	want := "'/tmp/a file; rm -rf /'"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRunAndPollResult(t *testing.T) {
	dir := t.TempDir()
	resultPath := filepath.Join(dir, "result")
	cmd := "sleep 0.05 && touch " + resultPath
	if err := Run(context.Background(), cmd); err != nil {
		t.Fatal(err)
	}
	timedOut, err := PollResult(context.Background(), resultPath, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if timedOut {
		t.Fatal("expected result file to appear before timeout")
	}
}

func TestPollResultTimesOut(t *testing.T) {
	dir := t.TempDir()
	resultPath := filepath.Join(dir, "never-created")
	timedOut, err := PollResult(context.Background(), resultPath, 150*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if !timedOut {
		t.Fatal("expected timeout")
	}
}

func TestRunNonZeroExit(t *testing.T) {
	if err := Run(context.Background(), "exit 1"); err == nil {
		t.Fatal("expected error for non-zero exit")
	}
}

func TestLookPathMissing(t *testing.T) {
	if _, err := LookPath("definitely-not-a-real-executable-xyz"); err == nil {
		t.Fatal("expected error for missing executable")
	}
}

func TestLookPathFound(t *testing.T) {
	if _, err := LookPath("sh"); err != nil {
		t.Fatalf("expected sh to resolve on PATH: %v", err)
	}
}
