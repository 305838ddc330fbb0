/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package plannerutil provides diagnostic helpers over a *planner.Planner:
// a human-readable dump and an invariant checker.
package plannerutil

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/rtplanner/rtplanner/pkg/planner"
)

// Dump renders every scheduled point and span in p as a multi-line string,
// for use in test failure messages and ad-hoc debugging.
func Dump(p *planner.Planner) string {
	var sb strings.Builder

	base, _ := p.BaseTime() //nolint:errcheck // best-effort diagnostic; a closed planner just prints zero values
	dur, _ := p.Duration()
	total, _ := p.ResourceTotal()
	rtype, _ := p.ResourceType()
	fmt.Fprintf(&sb, "planner [%d, %d) total=%d type=%q\n", base, base+dur, total, rtype)

	points, _ := p.Points()
	fmt.Fprintf(&sb, "points (%d):\n", len(points))
	for _, pt := range points {
		fmt.Fprintf(&sb, "  at=%d scheduled=%d remaining=%d ref_count=%d in_mtrt=%t\n",
			pt.At, pt.Scheduled, pt.Remaining, pt.RefCount, pt.InMTRT)
	}

	spans := p.Spans()
	fmt.Fprintf(&sb, "spans (%d):\n", len(spans))
	for _, s := range spans {
		fmt.Fprintf(&sb, "  id=%d start=%d last=%d planned=%d in_system=%t\n",
			s.ID, s.Start, s.Last, s.Planned, s.InSystem)
	}
	return sb.String()
}

// CheckInvariants walks p's exposed state and reports every violation of
// the invariants a Planner must hold between public calls (scheduled point
// ref-counting, the scheduled/remaining complement, and span/point
// consistency). It returns nil if every invariant holds.
func CheckInvariants(p *planner.Planner) error {
	var errs error

	total, err := p.ResourceTotal()
	if err != nil {
		return err
	}
	base, err := p.BaseTime()
	if err != nil {
		return err
	}
	points, err := p.Points()
	if err != nil {
		return err
	}

	for _, pt := range points {
		if pt.Scheduled+pt.Remaining != total {
			errs = multierr.Append(errs, fmt.Errorf("point at %d: scheduled(%d)+remaining(%d) != total(%d)",
				pt.At, pt.Scheduled, pt.Remaining, total))
		}
		if pt.Scheduled < 0 || pt.Scheduled > total {
			errs = multierr.Append(errs, fmt.Errorf("point at %d: scheduled %d out of [0, %d]", pt.At, pt.Scheduled, total))
		}
		if pt.At != base && pt.RefCount <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("point at %d: ref_count %d <= 0 but point is not p0 (base %d)", pt.At, pt.RefCount, base))
		}
	}

	scheduledAt := map[int64]int64{}
	for _, pt := range points {
		scheduledAt[pt.At] = 0
	}
	for _, s := range p.Spans() {
		if !s.InSystem {
			continue
		}
		for at := range scheduledAt {
			if s.Start <= at && at < s.Last {
				scheduledAt[at] += s.Planned
			}
		}
	}
	for _, pt := range points {
		if want := scheduledAt[pt.At]; want != pt.Scheduled {
			errs = multierr.Append(errs, fmt.Errorf("point at %d: scheduled %d does not match sum of active spans %d", pt.At, pt.Scheduled, want))
		}
	}

	return errs
}
