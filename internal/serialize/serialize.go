// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package serialize implements the bridge between a mapper process and
// the out-of-process helper a launcher execs: dumping a callable and
// its arguments to tempfiles the helper can load, and loading back the
// result vector the helper writes (spec §4.5).
//
// Go cannot pickle a closure the way the historical implementation
// pickles a Python callable, so blob mode here dumps a registry key
// rather than the function value itself; source mode is unchanged in
// spirit, generating a small Go file the helper builds and execs.
package serialize

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/grailbio/base/sync/once"
	"github.com/mattersoflight/ranked/internal/partition"
)

// Func is a registered task callable, looked up by name in a Registry
// shared between the mapper process and cmd/ranked-helper.
type Func func(args []any) (any, error)

// Registry maps stable names to Funcs compiled into the helper binary.
// The mapper and the helper must link the same set of RegisterFunc
// calls (typically via a shared internal package) for blob mode to
// resolve at load time.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// DefaultRegistry is the process-wide Registry cmd/ranked-helper reads
// from. A program that wants Mapper.MapRemote to dispatch a given
// callable must register it here (typically from an init in a package
// both the calling process and the helper binary import), since blob
// mode carries only a lookup key, not the closure itself.
var DefaultRegistry = NewRegistry()

// RegisterFunc binds name to fn. Re-registering the same name overwrites
// the previous binding, mirroring how a process-wide module-level dict
// behaves in the historical implementation.
func (r *Registry) RegisterFunc(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Lookup resolves name, returning an error if nothing was registered
// under it.
func (r *Registry) Lookup(name string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	if !ok {
		return nil, fmt.Errorf("serialize: no function registered as %q", name)
	}
	return fn, nil
}

// FuncDescriptor is the blob-mode payload: a name the helper resolves
// against its own Registry.
type FuncDescriptor struct {
	Name string
}

// ArgDump is the on-disk shape of the argument tempfile (spec §4.5
// "one tempfile containing the pair (positional_bundle, kwargs_dict)").
type ArgDump struct {
	Bundle partition.Bundle[any]
	OnAll  bool
}

func init() {
	gob.Register(FuncDescriptor{})
	gob.Register(ArgDump{})
}

// DumpBlob writes a FuncDescriptor naming fn to a .pik tempfile under
// dir (spec §4.5 blob mode). The caller must have registered fn under
// name in a Registry shared with the helper before the helper runs.
func DumpBlob(name, dir string) (path string, err error) {
	f, err := os.CreateTemp(dir, "ranked-func-*.pik")
	if err != nil {
		return "", fmt.Errorf("serialize: dump blob: %w", err)
	}
	defer f.Close()
	enc := gob.NewEncoder(f)
	if err := enc.Encode(FuncDescriptor{Name: name}); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("serialize: dump blob: %w", err)
	}
	return f.Name(), nil
}

// LoadBlob reads back a FuncDescriptor written by DumpBlob.
func LoadBlob(path string) (FuncDescriptor, error) {
	var fd FuncDescriptor
	data, err := os.ReadFile(path)
	if err != nil {
		return fd, fmt.Errorf("serialize: load blob: %w", err)
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&fd); err != nil {
		return fd, fmt.Errorf("serialize: load blob: %w", err)
	}
	return fd, nil
}

// sourceRunnerTemplate is the body DumpSource writes around the
// caller's function. Unlike blob mode, where cmd/ranked-helper's own
// run() loads a FuncDescriptor and dispatches it, a source-mode file
// must be a runnable program in its own right: RunSource invokes it
// with "go run", so it carries its own copy of the
// load-args/dispatch/dump-result sequence, mirroring
// cmd/ranked-helper/main.go's run() but resolving FUNC directly instead
// of through a Registry (spec §4.5 source mode: "re-import the source
// module by name and bind FUNC to the named attribute" - Go has no
// runtime import, so the bind happens at compile time of this generated
// file instead).
const sourceRunnerTemplate = `package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/grailbio/base/backgroundcontext"
	"github.com/mattersoflight/ranked/internal/serialize"
	"github.com/mattersoflight/ranked/internal/transport/inproc"
	"github.com/mattersoflight/ranked/strategy"
	"golang.org/x/sync/errgroup"

	src %q
)

var FUNC = src.%s

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ranked-source-runner: %%v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: ranked-source-runner argfile resfile workdir")
	}
	argfile, resfile := args[0], args[1]

	ad, err := serialize.LoadArgs(argfile)
	if err != nil {
		return err
	}

	ranks := 1
	if s := os.Getenv("RANKED_HELPER_RANKS"); s != "" {
		n, perr := strconv.Atoi(s)
		if perr != nil {
			return fmt.Errorf("invalid RANKED_HELPER_RANKS %%q: %%w", s, perr)
		}
		ranks = n
	}
	useScatter := os.Getenv("RANKED_HELPER_STRATEGY") == "scatter"
	opts := strategy.Options{OnAll: ad.OnAll}

	hub := inproc.New(ranks)
	sfn := strategy.Func(FUNC)

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
`

// DumpSource writes a self-contained Go program binding FUNC to
// sourcePkg's alias identifier and dispatching it the same way
// cmd/ranked-helper does in blob mode (spec §4.5 source mode).
// RunSource execs the result with "go run"; sourcePkg must be an
// import path resolvable from the module RunSource is invoked under,
// and the identifier named by alias must have the same signature as
// Func.
func DumpSource(sourcePkg, alias, dir string) (path string, err error) {
	f, err := os.CreateTemp(dir, "ranked-src-*.go")
	if err != nil {
		return "", fmt.Errorf("serialize: dump source: %w", err)
	}
	defer f.Close()
	var buf bytes.Buffer
	fmt.Fprintf(&buf, sourceRunnerTemplate, sourcePkg, alias)
	if _, err := f.Write(buf.Bytes()); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("serialize: dump source: %w", err)
	}
	return f.Name(), nil
}

// RunSource execs a source-mode file written by DumpSource via "go
// run", forwarding argfile/resfile/workdir the way MapRemote forwards
// them to a blob-mode helper invocation (spec §4.5). Unlike blob mode,
// the child process loads args and writes the result file itself;
// RunSource only waits for it to exit. Stdout/stderr are inherited so
// a failing user Func's output reaches the caller the same way
// launch.Run's do.
func RunSource(ctx context.Context, path, argfile, resfile, workdir string) error {
	c := exec.CommandContext(ctx, "go", "run", path, argfile, resfile, workdir)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("serialize: run source: %w", err)
	}
	return nil
}

// DumpArgs gob-encodes the argument bundle and onall flag to a .arg
// tempfile under dir (spec §4.5 argument dump).
func DumpArgs(bundle partition.Bundle[any], onAll bool, dir string) (path string, err error) {
	if err := bundle.Validate(); err != nil {
		return "", fmt.Errorf("serialize: dump args: %w", err)
	}
	f, err := os.CreateTemp(dir, "ranked-args-*.arg")
	if err != nil {
		return "", fmt.Errorf("serialize: dump args: %w", err)
	}
	defer f.Close()
	enc := gob.NewEncoder(f)
	if err := enc.Encode(ArgDump{Bundle: bundle, OnAll: onAll}); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("serialize: dump args: %w", err)
	}
	return f.Name(), nil
}

// LoadArgs reads back an ArgDump written by DumpArgs.
func LoadArgs(path string) (ArgDump, error) {
	var ad ArgDump
	data, err := os.ReadFile(path)
	if err != nil {
		return ad, fmt.Errorf("serialize: load args: %w", err)
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&ad); err != nil {
		return ad, fmt.Errorf("serialize: load args: %w", err)
	}
	return ad, nil
}

// DumpResult gob-encodes result to path, creating it if necessary. The
// helper writes the result file this way at the end of a run.
func DumpResult(path string, result []any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("serialize: dump result: %w", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(result); err != nil {
		return fmt.Errorf("serialize: dump result: %w", err)
	}
	return nil
}

// LoadResult gob-decodes the result vector the helper wrote.
func LoadResult(path string) ([]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("serialize: load result: %w", err)
	}
	var result []any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&result); err != nil {
		return nil, fmt.Errorf("serialize: load result: %w", err)
	}
	return result, nil
}

// Session bundles the tempfile handles for one mapper invocation and
// implements the cleanup contract of spec §4.5 / §3 "Lifecycles":
// remove everything on success, and on SaveMode additionally copy the
// files to stable names in dir before removing the originals.
type Session struct {
	Dir        string
	FuncPath   string
	ArgPath    string
	ResultPath string
	SaveMode   bool
	ID         string

	closeOnce once.Task
	closeErr  error
}

// Close implements the cleanup contract. err is the outcome of the run
// this session backed; when err is non-nil and SaveMode is unset the
// files are still removed (spec §4.5: saved files only persist when
// save-mode is on, regardless of success or failure).
//
// MapRemote defers Close unconditionally; Close also tolerates
// repeated calls: closeOnce makes every call after the first a no-op
// that returns the original result, rather than re-removing
// already-removed files.
func (s *Session) Close(err error) error {
	s.closeErr = s.closeOnce.Do(func() error {
		paths := map[string]string{
			"modfile": s.FuncPath,
			"argfile": s.ArgPath,
			"resfile": s.ResultPath,
		}
		if s.SaveMode {
			for prefix, p := range paths {
				if p == "" {
					continue
				}
				if cerr := copyFile(p, filepath.Join(s.Dir, fmt.Sprintf("%s.%s", prefix, s.ID))); cerr != nil {
					return cerr
				}
			}
		}
		var firstErr error
		for _, p := range paths {
			if p == "" {
				continue
			}
			if rerr := os.Remove(p); rerr != nil && !os.IsNotExist(rerr) && firstErr == nil {
				firstErr = rerr
			}
		}
		return firstErr
	})
	return s.closeErr
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("serialize: save %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("serialize: save %s: %w", dst, err)
	}
	return nil
}
