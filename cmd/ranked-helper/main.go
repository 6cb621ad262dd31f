// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command ranked-helper is the out-of-process worker a launcher execs
// under mpirun/srun/aprun or a batch scheduler. It loads a function
// descriptor and an argument bundle from tempfiles, runs the
// configured strategy across a simulated set of ranks, and writes the
// result vector back to a result file.
//
// Usage: ranked-helper funcfile argfile resfile workdir
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/log"
	"github.com/mattersoflight/ranked/internal/serialize"
	"github.com/mattersoflight/ranked/internal/transport/inproc"
	"github.com/mattersoflight/ranked/strategy"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(os.Args[1:], serialize.DefaultRegistry); err != nil {
		log.Error.Printf("ranked-helper: %v", err)
		os.Exit(1)
	}
}

// run implements the helper's contract against an explicit registry so
// it can be exercised directly from tests without a subprocess.
func run(args []string, registry *serialize.Registry) error {
	if len(args) != 4 {
		return fmt.Errorf("usage: ranked-helper funcfile argfile resfile workdir")
	}
	funcfile, argfile, resfile, workdir := args[0], args[1], args[2], args[3]

	// A source-mode funcfile is the .go program serialize.DumpSource
	// wrote; it dispatches FUNC and writes the result file itself, so
	// the helper just execs it and waits (spec §4.5 source mode).
	if filepath.Ext(funcfile) == ".go" {
		return serialize.RunSource(backgroundcontext.Get(), funcfile, argfile, resfile, workdir)
	}

	fd, err := serialize.LoadBlob(funcfile)
	if err != nil {
		return err
	}
	fn, err := registry.Lookup(fd.Name)
	if err != nil {
		return err
	}

	ad, err := serialize.LoadArgs(argfile)
	if err != nil {
		return err
	}

	ranks := 1
	if s := os.Getenv("RANKED_HELPER_RANKS"); s != "" {
		n, perr := strconv.Atoi(s)
		if perr != nil {
			return fmt.Errorf("ranked-helper: invalid RANKED_HELPER_RANKS %q: %w", s, perr)
		}
		ranks = n
	}

	useScatter := os.Getenv("RANKED_HELPER_STRATEGY") == "scatter"
	opts := strategy.Options{OnAll: ad.OnAll}

	hub := inproc.New(ranks)
	sfn := strategy.Func(fn)

	g, gctx := errgroup.WithContext(backgroundcontext.Get())
	var masterResult strategy.Result
	for rank := 0; rank < ranks; rank++ {
		rank := rank
		g.Go(func() error {
			var r strategy.Result
			var rerr error
			if useScatter {
				r, rerr = strategy.Scatter(gctx, hub.Rank(rank), ad.Bundle, sfn, opts)
			} else {
				r, rerr = strategy.Pool(gctx, hub.Rank(rank), ad.Bundle, sfn, opts)
			}
			if rank == 0 {
				masterResult = r
			}
			return rerr
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return serialize.DumpResult(resfile, masterResult)
}
