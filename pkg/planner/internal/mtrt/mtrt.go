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

// Package mtrt is the min-time resource tree: an index of every
// *point.Point currently tracked for availability queries, keyed by
// remaining resource and augmented with the minimum At over each subtree.
// Grounded directly on
// original_source/resource/planner/mintime_resource_tree.cpp
// (find_mintime_anchor, find_mintime_point, right_branch_mintime,
// mintime_resource_subtree_min).
package mtrt

import (
	"errors"
	"math"

	"github.com/rtplanner/rtplanner/pkg/planner/internal/point"
	"github.com/rtplanner/rtplanner/pkg/rbtree"
)

// ErrInconsistent is returned by GetMinTime when an anchor satisfying the
// request was found but the verification walk failed to locate the point
// whose At equals the computed minimum time. This can only happen if the
// tree's augmentation is out of sync with its structure, a defect in this
// package rather than a caller error.
var ErrInconsistent = errors.New("mtrt: anchor found but no point matches its minimum time")

// Key orders points first by Remaining, then by Seq, so that points with
// equal Remaining still occupy distinct, stably-ordered tree positions.
type Key struct {
	Remaining int64
	Seq       uint64
}

func keyLess(a, b Key) bool {
	if a.Remaining != b.Remaining {
		return a.Remaining < b.Remaining
	}
	return a.Seq < b.Seq
}

type subtreeMinAug struct{}

// Combine implements rbtree.Augment: the augmented value of a node is the
// minimum At over its own point and both children's augmented values,
// matching mintime_resource_subtree_min.
func (subtreeMinAug) Combine(n *rbtree.Node[Key, *point.Point]) int64 {
	v := n.Value.At
	if l := n.Left(); l != nil && l.Aug() < v {
		v = l.Aug()
	}
	if r := n.Right(); r != nil && r.Aug() < v {
		v = r.Aug()
	}
	return v
}

// Tree indexes points by remaining resource, augmented for min-time
// queries.
type Tree struct {
	t       *rbtree.Tree[Key, *point.Point]
	nextSeq uint64
}

// New returns an empty min-time resource tree.
func New() *Tree {
	return &Tree{t: rbtree.New[Key, *point.Point](keyLess, subtreeMinAug{}), nextSeq: 1}
}

// Size returns the number of points currently indexed.
func (m *Tree) Size() int { return m.t.Size() }

// Insert adds p, keyed by its current Remaining. The first time p enters
// any min-time resource tree it is stamped with a fresh, monotonically
// increasing Seq that persists across later Remove/Insert cycles (e.g.
// when p.Remaining changes and the planner re-keys it), preserving a
// stable tie-break among points that share a Remaining value.
func (m *Tree) Insert(p *point.Point) {
	if p.Seq == 0 {
		p.Seq = m.nextSeq
		m.nextSeq++
	}
	m.t.Insert(Key{Remaining: p.Remaining, Seq: p.Seq}, p)
	p.InMTRT = true
}

// Remove deletes p, keyed by its current Remaining. p must have been
// inserted with that Remaining value (callers must Remove before mutating
// Remaining, then Insert again to re-key it).
func (m *Tree) Remove(p *point.Point) {
	if n := m.t.Search(Key{Remaining: p.Remaining, Seq: p.Seq}); n != nil {
		m.t.Delete(n)
	}
	p.InMTRT = false
}

// GetMinTime returns the point with the smallest At among all points whose
// Remaining satisfies the request (Remaining >= request), or (nil, nil) if
// no such point exists. A non-nil error indicates internal inconsistency,
// never a normal not-found outcome.
func (m *Tree) GetMinTime(request int64) (*point.Point, error) {
	anchor, minTime := m.findMintimeAnchor(request)
	if anchor == nil {
		return nil, nil
	}
	p := m.findMintimePoint(anchor, minTime)
	if p == nil {
		return nil, ErrInconsistent
	}
	return p, nil
}

// findMintimeAnchor descends the tree once, tracking the best (smallest)
// minimum time seen among nodes whose Remaining satisfies request, and the
// node ("anchor") at which that minimum was recorded.
func (m *Tree) findMintimeAnchor(request int64) (*rbtree.Node[Key, *point.Point], int64) {
	node := m.t.Root()
	minTime := int64(math.MaxInt64)
	var anchor *rbtree.Node[Key, *point.Point]
	for node != nil {
		if request <= node.Value.Remaining {
			// This node and its whole right subtree satisfy the request,
			// so the best time among them is the min over the right
			// branch (inclusive of this node); keep searching left for a
			// possibly-better minimum.
			if rMin := rightBranchMinTime(node); rMin < minTime {
				minTime = rMin
				anchor = node
			}
			node = node.Left()
		} else {
			// This node's Remaining is too small, and so is everything in
			// its left subtree (Remaining only decreases leftward).
			node = node.Right()
		}
	}
	return anchor, minTime
}

func rightBranchMinTime(n *rbtree.Node[Key, *point.Point]) int64 {
	minTime := int64(math.MaxInt64)
	if r := n.Right(); r != nil {
		minTime = r.Aug()
	}
	if n.Value.At < minTime {
		return n.Value.At
	}
	return minTime
}

// Depth returns the tree's current height, sampled for the tree-depth
// gauge after each mutation.
func (m *Tree) Depth() int { return depth(m.t.Root()) }

func depth(n *rbtree.Node[Key, *point.Point]) int {
	if n == nil {
		return 0
	}
	l, r := depth(n.Left()), depth(n.Right())
	if l > r {
		return l + 1
	}
	return r + 1
}

// findMintimePoint walks from anchor down to the node whose At equals
// minTime, following whichever branch's augmented value reports it.
func (m *Tree) findMintimePoint(anchor *rbtree.Node[Key, *point.Point], minTime int64) *point.Point {
	if anchor.Value.At == minTime {
		return anchor.Value
	}
	node := anchor.Right()
	for node != nil {
		if node.Value.At == minTime {
			return node.Value
		}
		if l := node.Left(); l != nil && l.Aug() == minTime {
			node = l
		} else {
			node = node.Right()
		}
	}
	return nil
}
