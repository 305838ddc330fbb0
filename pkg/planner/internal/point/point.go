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

// Package point holds the scheduled-point record shared by the
// scheduled-point tree and the min-time resource tree, grounded on
// original_source/resource/planner/planner_internal_tree.hpp's
// scheduled_point_t. It has no dependency on either tree package so that
// both can depend on it without an import cycle.
package point

// Point is a single resource-state-changing instant: the in-process
// analogue of scheduled_point_t. Both trees index the same *Point values;
// At is the scheduled-point tree's key, and Remaining/Seq together form the
// min-time resource tree's key.
type Point struct {
	// At is the time this point represents. Scheduled-point tree key.
	At int64

	// Scheduled is the cumulative resource quantity reserved at this
	// instant (scheduled_point_t.scheduled).
	Scheduled int64

	// Remaining is Total minus Scheduled: how much resource is still
	// available from At onward, until the next point. Min-time resource
	// tree key (paired with Seq for tie-breaking).
	Remaining int64

	// RefCount counts the spans whose boundaries (start or end) sit at
	// this instant. A point other than p0 whose RefCount drops to 0
	// carries no span boundary and is removed from both trees.
	RefCount int

	// InMTRT reports whether this point currently has a node in the
	// min-time resource tree (scheduled_point_t.in_mt_resource_tree).
	// Points are always present in the scheduled-point tree once
	// created; membership in the min-time resource tree is what the
	// planner toggles as spans are added and removed.
	InMTRT bool

	// Seq is a monotonically increasing insertion-sequence stamp,
	// assigned once when the point first enters the min-time resource
	// tree, used only to break ties between points with equal Remaining.
	Seq uint64
}

// New returns a freshly created point at t with the given remaining
// resource quantity and zero scheduled load (scheduled_point_t.new_point).
func New(at int64, remaining int64) *Point {
	return &Point{At: at, Remaining: remaining}
}
