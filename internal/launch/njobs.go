// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package launch

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeSpec is the parsed form of a node-string of the grammar
// N[:TAG…][:ppn=M][,EXTRA] (spec §4.6/§6): ported from
// original_source/pyina/launchers.py's mpirun_tasks/srun_tasks.
type NodeSpec struct {
	N   int
	PPN int // 1 if not specified
}

// ParseNodeSpec parses a node-string, discarding any ","-appended
// extra expression first.
func ParseNodeSpec(nodes string) (NodeSpec, error) {
	nodestr := strings.SplitN(nodes, ",", 2)[0]
	segs := strings.Split(nodestr, ":")
	if len(segs) == 0 || segs[0] == "" {
		return NodeSpec{}, fmt.Errorf("launch: empty node-string %q", nodes)
	}
	n, err := strconv.Atoi(segs[0])
	if err != nil {
		return NodeSpec{}, fmt.Errorf("launch: invalid node count in %q: %w", nodes, err)
	}
	ppn := 1
	for _, seg := range segs[1:] {
		if strings.HasPrefix(seg, "ppn=") {
			p, err := strconv.Atoi(strings.TrimPrefix(seg, "ppn="))
			if err != nil {
				return NodeSpec{}, fmt.Errorf("launch: invalid ppn in %q: %w", nodes, err)
			}
			ppn = p
		}
	}
	return NodeSpec{N: n, PPN: ppn}, nil
}

// MpirunTasks renders the mpirun task count: N*ppn (spec §4.6 table,
// Mpi variant).
func (s NodeSpec) MpirunTasks() int { return s.N * s.PPN }

// SrunTasks renders the srun task expression: "N" when ppn is 1 (the
// default when unspecified), or "N -NP" otherwise (spec §4.6 table, Slurm
// variant; original_source/pyina/launchers.py's srun_tasks).
func (s NodeSpec) SrunTasks() string {
	if s.PPN == 1 {
		return strconv.Itoa(s.N)
	}
	return fmt.Sprintf("%d -N%d", s.N, s.PPN)
}

// AprunTasks renders the aprun task expression: "N" when ppn is 1 (the
// default when unspecified), or "N -N P" otherwise (spec §4.6 table, Alps
// variant; spec §8 scenario 7: njobs("3:core4:ppn=2") yields "3 -N 2").
func (s NodeSpec) AprunTasks() string {
	if s.PPN == 1 {
		return strconv.Itoa(s.N)
	}
	return fmt.Sprintf("%d -N %d", s.N, s.PPN)
}
