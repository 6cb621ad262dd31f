// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package schedule wraps a launcher's composed command in the batch
// scheduler's submission syntax (spec §4.7): Torque and Moab pipe the
// command into qsub/msub, LSF passes it directly to bsub. Grounded on
// original_source/pyina/schedulers.py (the scheduler/launcher-variant
// pairing) and original_source/pyina/launchers.py's torque_launcher,
// moab_launcher, lsfmx_launcher, lsfgm_launcher.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseTimelimit converts a timelimit string of form SS, HH:MM,
// HH:MM:SS, or D:HH:MM:SS into total seconds (spec §4.7 scheduler
// record). D must not exceed 31.
func ParseTimelimit(s string) (int, error) {
	parts := strings.Split(s, ":")
	var nums [4]int // D, HH, MM, SS, right-aligned except HH:MM
	if len(parts) == 0 || len(parts) > 4 {
		return 0, fmt.Errorf("schedule: invalid timelimit %q", s)
	}
	offset := 4 - len(parts)
	if len(parts) == 2 {
		offset = 1 // HH:MM
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("schedule: invalid timelimit %q: %w", s, err)
		}
		nums[offset+i] = n
	}
	days, hh, mm, ss := nums[0], nums[1], nums[2], nums[3]
	if days > 31 {
		return 0, fmt.Errorf("schedule: timelimit %q exceeds 31 days", s)
	}
	return ((days*24+hh)*60+mm)*60 + ss, nil
}

// FormatTimelimit renders seconds back into the D:HH:MM:SS form
// ParseTimelimit accepts, the canonical round-trip representation used
// when a Config's resolved timelimit must be re-rendered into a
// scheduler command.
func FormatTimelimit(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	ss := seconds % 60
	seconds /= 60
	mm := seconds % 60
	seconds /= 60
	hh := seconds % 24
	days := seconds / 24
	if days > 0 {
		return fmt.Sprintf("%d:%02d:%02d:%02d", days, hh, mm, ss)
	}
	return fmt.Sprintf("%02d:%02d:%02d", hh, mm, ss)
}

// ISOToSeconds is an alias for ParseTimelimit, named to match the
// public configuration surface.
func ISOToSeconds(s string) (int, error) { return ParseTimelimit(s) }

// SecondsToISO is an alias for FormatTimelimit, named to match the
// public configuration surface.
func SecondsToISO(seconds int) string { return FormatTimelimit(seconds) }
