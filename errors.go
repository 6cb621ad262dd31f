// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ranked

import (
	"fmt"

	baseerrors "github.com/grailbio/base/errors"
)

// Kind classifies a failure returned by Map. See spec §7 of the design
// document for the taxonomy this mirrors.
type Kind int

const (
	// ConfigError covers unparseable node-strings, unparseable
	// timelimits, missing/invalid workdir, or conflicting nodes
	// settings.
	ConfigError Kind = iota
	// ExecutableNotFound means the chosen launcher or scheduler binary
	// is not on PATH.
	ExecutableNotFound
	// LaunchFailed means the child process exited non-zero.
	LaunchFailed
	// TimeoutExceeded means the result file did not appear within
	// Config.Timeout after the child exited. A load is still attempted.
	TimeoutExceeded
	// LoadFailure means the result file was unreadable or truncated.
	LoadFailure
	// NoWorkersAvailable means the pool strategy was asked to run with
	// zero workers (P==1 and OnAll==false).
	NoWorkersAvailable
	// InvariantViolation guards conditions that should be unreachable:
	// a partition with gaps/overlaps, or an unfilled result slot.
	InvariantViolation
)

func (k Kind) String() string {
	switch k {
	case ConfigError:
		return "config error"
	case ExecutableNotFound:
		return "executable not found"
	case LaunchFailed:
		return "launch failed"
	case TimeoutExceeded:
		return "timeout exceeded"
	case LoadFailure:
		return "load failure"
	case NoWorkersAvailable:
		return "no workers available"
	case InvariantViolation:
		return "invariant violation"
	default:
		return "unknown error"
	}
}

// baseKind maps our taxonomy onto grailbio/base/errors' generic kinds,
// so that callers who only care about "is this retryable/fatal" can use
// errors.Is against the wrapped error without knowing our Kind.
func (k Kind) baseKind() baseerrors.Kind {
	switch k {
	case ConfigError, NoWorkersAvailable:
		return baseerrors.Invalid
	case ExecutableNotFound, LoadFailure:
		return baseerrors.NotExist
	case TimeoutExceeded:
		return baseerrors.Unavailable
	case LaunchFailed, InvariantViolation:
		return baseerrors.Fatal
	default:
		return baseerrors.Other
	}
}

// Error is the structured failure returned by Mapper.Map.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// newError builds an Error, wrapping the underlying cause with
// grailbio/base/errors so that generic kind checks (errors.Is on the
// base package) continue to work on the wrapped error.
func newError(op string, kind Kind, err error) *Error {
	return &Error{
		Kind: kind,
		Op:   op,
		Err:  baseerrors.E(op, kind.baseKind(), err),
	}
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err is a *Error of the given kind.
func Is(err error, k Kind) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == k
}
