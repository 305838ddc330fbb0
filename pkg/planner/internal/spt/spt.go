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

// Package spt is the scheduled-point tree: an unaugmented index of every
// *point.Point by its At time, grounded on
// original_source/resource/planner/planner_internal_tree.hpp's point_rb
// member and planner.cpp's get_or_new_point/fetch_overlap_points traversal.
package spt

import (
	"errors"

	"github.com/rtplanner/rtplanner/pkg/planner/internal/point"
	"github.com/rtplanner/rtplanner/pkg/rbtree"
)

// ErrDuplicate is returned by Insert when a point already exists at the
// same At time. The facade only calls Insert after confirming absence via
// Search, so a caller ever observing this indicates a consistency bug in
// the facade, not bad input.
var ErrDuplicate = errors.New("spt: point already exists at this time")

func less(a, b int64) bool { return a < b }

// Tree indexes scheduled points by time. It carries no augmentation: its
// only query is exact/floor lookup by At.
type Tree struct {
	t *rbtree.Tree[int64, *point.Point]
}

// New returns an empty scheduled-point tree.
func New() *Tree {
	return &Tree{t: rbtree.New[int64, *point.Point](less, nil)}
}

// Size returns the number of points currently indexed.
func (s *Tree) Size() int { return s.t.Size() }

// Search returns the point at exactly time at, or nil if none exists.
func (s *Tree) Search(at int64) *point.Point {
	if n := s.t.Search(at); n != nil {
		return n.Value
	}
	return nil
}

// State returns the point governing time at: the point with the largest
// At <= at, i.e. the resource state in effect at that instant. Returns nil
// if at precedes every point in the tree.
func (s *Tree) State(at int64) *point.Point {
	if n := s.t.Floor(at); n != nil {
		return n.Value
	}
	return nil
}

// Next returns the point with the next-larger At after p, or nil if p is
// the last point in the tree. p must have been returned by this tree.
func (s *Tree) Next(p *point.Point) *point.Point {
	n := s.t.Search(p.At)
	if n == nil {
		return nil
	}
	if next := n.Next(); next != nil {
		return next.Value
	}
	return nil
}

// Min returns the earliest point in the tree, or nil if the tree is empty.
func (s *Tree) Min() *point.Point {
	if n := s.t.Min(); n != nil {
		return n.Value
	}
	return nil
}

// Insert adds p to the tree, keyed by p.At. Returns ErrDuplicate if a point
// already exists at that time.
func (s *Tree) Insert(p *point.Point) error {
	if _, inserted := s.t.Insert(p.At, p); !inserted {
		return ErrDuplicate
	}
	return nil
}

// Remove deletes p from the tree. p must have been returned by this tree's
// Search/State/Next/Min/Insert.
func (s *Tree) Remove(p *point.Point) {
	if n := s.t.Search(p.At); n != nil {
		s.t.Delete(n)
	}
}
