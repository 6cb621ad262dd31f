// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package sourcefixture gives serialize.DumpSource's tests a real
// import path and identifier to point a generated source-mode program
// at, standing in for a caller's own package the way the historical
// implementation re-imports the caller's module by name (spec §4.5).
package sourcefixture

// Square is Func-shaped: func(args []any) (any, error).
func Square(args []any) (any, error) {
	x := args[0].(int)
	return x * x, nil
}
