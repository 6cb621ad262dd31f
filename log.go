// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ranked

import "github.com/grailbio/base/log"

// logf emits at Print level: launch/scheduler composition, the
// visible steps of a Map call.
func logf(format string, v ...any) { log.Printf(format, v...) }

// debugf emits at Debug level: dispatch-loop tracing, composed
// commands under DebugDryRun.
func debugf(format string, v ...any) { log.Debug.Printf(format, v...) }

// errorf emits at Error level: terminal failures about to be returned
// to the caller as an *Error.
func errorf(format string, v ...any) { log.Error.Printf(format, v...) }
