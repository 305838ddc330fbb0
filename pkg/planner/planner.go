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

// Package planner answers availability queries and tracks span reservations
// over a single bounded pool of interchangeable resource units, grounded on
// original_source/resource/planner/planner.cpp's planner_t and its public
// planner_* API.
package planner

import (
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"

	"github.com/rtplanner/rtplanner/pkg/planner/internal/mtrt"
	"github.com/rtplanner/rtplanner/pkg/planner/internal/point"
	"github.com/rtplanner/rtplanner/pkg/planner/internal/spt"
	"github.com/rtplanner/rtplanner/pkg/planner/plannermetrics"
)

// Span is a reservation of Planned units over the half-open interval
// [Start, Last), the Go analogue of span_t.
type Span struct {
	ID       int64
	Start    int64
	Last     int64
	Planned  int64
	InSystem bool

	startPoint *point.Point
	lastPoint  *point.Point
}

// Duration returns the span's length (Last - Start).
func (s *Span) Duration() int64 { return s.Last - s.Start }

// Config configures a new Planner. BaseTime, Duration, Total and
// ResourceType are required; Logger and Registerer are optional.
type Config struct {
	// BaseTime is the planner's time origin (plan_start).
	BaseTime int64
	// Duration is the planner's horizon length; must be >= 1.
	// plan_end = BaseTime + Duration.
	Duration int64
	// Total is the size of the resource pool; must be >= 0.
	Total int64
	// ResourceType is an opaque label identifying what Total counts
	// (e.g. "core", "gpu"). Must be non-empty.
	ResourceType string

	// Logger receives structured diagnostics. Defaults to a no-op logger.
	Logger logr.Logger
	// Registerer, if non-nil, registers this planner's metrics
	// (pkg/planner/plannermetrics). Metrics are disabled when nil.
	Registerer prometheus.Registerer
}

// pendingQuery records the parameters of the live availability iterator,
// the Go analogue of request_t.
type pendingQuery struct {
	onOrAfter int64
	duration  int64
	count     int64
}

// Planner owns a scheduled-point tree, a min-time resource tree and a span
// table, and exposes the availability queries and span mutations that keep
// them consistent. A Planner is not safe for concurrent use: callers must
// serialize their own access, per this package's single-threaded contract.
type Planner struct {
	total        int64
	resourceType string
	planStart    int64
	planEnd      int64

	spt  *spt.Tree
	mtrt *mtrt.Tree
	p0   *point.Point

	spans       map[int64]*Span
	spanOrder   []int64
	spanIterIdx int
	spanCounter uint64

	// availParked holds points temporarily removed from mtrt during an
	// availability scan (avail_iter in the original), keyed by At so a
	// point is never parked twice.
	availParked  map[int64]*point.Point
	currentReq   pendingQuery
	availIterSet bool

	log     logr.Logger
	metrics *plannermetrics.Metrics
	closed  bool
}

// New creates a Planner over [BaseTime, BaseTime+Duration) with Total units
// of ResourceType, with p0 the sole scheduled point, holding all of Total.
func New(cfg Config) (*Planner, error) {
	if cfg.Duration < 1 {
		return nil, newErrorf(KindInvalid, []any{"duration", cfg.Duration}, "duration must be >= 1, got %d", cfg.Duration)
	}
	if cfg.Total < 0 {
		return nil, newErrorf(KindRange, []any{"total", cfg.Total}, "total must be >= 0, got %d", cfg.Total)
	}
	if cfg.ResourceType == "" {
		return nil, newError(KindInvalid, "resource type must be non-empty")
	}

	log := cfg.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	var m *plannermetrics.Metrics
	if cfg.Registerer != nil {
		m = plannermetrics.New(cfg.Registerer)
	}

	p := &Planner{
		total:        cfg.Total,
		resourceType: cfg.ResourceType,
		log:          log,
		metrics:      m,
	}
	p.initialize(cfg.BaseTime, cfg.Duration)
	return p, nil
}

func (p *Planner) initialize(baseTime, duration int64) {
	p.planStart = baseTime
	p.planEnd = baseTime + duration
	p.spt = spt.New()
	p.mtrt = mtrt.New()

	p.p0 = point.New(baseTime, p.total)
	p.p0.RefCount = 1
	// Cannot fail: the tree is empty, so no point exists yet at baseTime.
	_ = p.spt.Insert(p.p0)
	p.mtrt.Insert(p.p0)

	p.spans = map[int64]*Span{}
	p.spanOrder = nil
	p.spanIterIdx = -1
	p.spanCounter = 0
	p.availParked = map[int64]*point.Point{}
	p.availIterSet = false
}

func (p *Planner) erase() {
	if p.p0 != nil && p.p0.InMTRT {
		p.mtrt.Remove(p.p0)
	}
	p.spans = nil
	p.spanOrder = nil
	p.availParked = nil
	p.spt = nil
	p.mtrt = nil
	p.p0 = nil
}

// Reset discards every span and scheduled point (including p0) and
// reinitializes the planner over a new [base, base+duration) horizon,
// keeping Total and ResourceType unchanged.
func (p *Planner) Reset(base, duration int64) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if duration < 1 {
		return newErrorf(KindInvalid, []any{"duration", duration}, "duration must be >= 1, got %d", duration)
	}
	p.erase()
	p.initialize(base, duration)
	p.log.V(1).Info("reset planner", "base_time", base, "duration", duration)
	return nil
}

// Close releases the planner's trees and span table. Close is idempotent;
// every other error-returning method returns KindInvalid once a planner is
// closed, and ForEachSpan and Spans see an empty span table.
func (p *Planner) Close() error {
	if err := p.checkOpen(); err != nil {
		return nil //nolint:nilerr // Close is idempotent, matching planner_destroy's nil-safety.
	}
	p.restoreParked()
	p.erase()
	p.closed = true
	return nil
}

func (p *Planner) checkOpen() error {
	if p == nil {
		return errNoHandle
	}
	if p.closed {
		return errClosed
	}
	return nil
}

var errClosed = newError(KindInvalid, "planner is closed")

// BaseTime returns the planner's time origin.
func (p *Planner) BaseTime() (int64, error) {
	if err := p.checkOpen(); err != nil {
		return 0, err
	}
	return p.planStart, nil
}

// Duration returns the planner's horizon length.
func (p *Planner) Duration() (int64, error) {
	if err := p.checkOpen(); err != nil {
		return 0, err
	}
	return p.planEnd - p.planStart, nil
}

// ResourceTotal returns the size of the resource pool.
func (p *Planner) ResourceTotal() (int64, error) {
	if err := p.checkOpen(); err != nil {
		return 0, err
	}
	return p.total, nil
}

// ResourceType returns the opaque label identifying what ResourceTotal
// counts.
func (p *Planner) ResourceType() (string, error) {
	if err := p.checkOpen(); err != nil {
		return "", err
	}
	return p.resourceType, nil
}

// AvailResourcesAt returns the number of units free at instant at. Rejects
// at > plan_end.
func (p *Planner) AvailResourcesAt(at int64) (int64, error) {
	if err := p.checkOpen(); err != nil {
		return 0, err
	}
	if at > p.planEnd {
		return 0, newErrorf(KindInvalid, []any{"at", at, "plan_end", p.planEnd}, "at %d exceeds plan end %d", at, p.planEnd)
	}
	state := p.spt.State(at)
	if state == nil {
		return 0, newErrorf(KindInvalid, []any{"at", at}, "at %d precedes plan start %d", at, p.planStart)
	}
	return state.Remaining, nil
}

// AvailResourcesDuring returns the minimum number of units free over
// [at, at+duration). Rejects at+duration > plan_end.
func (p *Planner) AvailResourcesDuring(at, duration int64) (int64, error) {
	if err := p.checkOpen(); err != nil {
		return 0, err
	}
	if duration < 1 {
		return 0, newErrorf(KindInvalid, []any{"duration", duration}, "duration must be >= 1, got %d", duration)
	}
	if at+duration > p.planEnd {
		return 0, newErrorf(KindInvalid, []any{"at", at, "duration", duration, "plan_end", p.planEnd},
			"window [%d, %d) exceeds plan end %d", at, at+duration, p.planEnd)
	}
	state := p.spt.State(at)
	if state == nil {
		return 0, newErrorf(KindInvalid, []any{"at", at}, "at %d precedes plan start %d", at, p.planStart)
	}
	min := state.Remaining
	for cur := state; cur != nil && cur.At < at+duration; cur = p.spt.Next(cur) {
		if cur.Remaining < min {
			min = cur.Remaining
		}
	}
	return min, nil
}

// AvailDuring reports whether request units are free throughout
// [at, at+duration). Rejects duration < 1, request > total, and
// at+duration > plan_end.
func (p *Planner) AvailDuring(at, duration, request int64) (bool, error) {
	if err := p.checkOpen(); err != nil {
		return false, err
	}
	if duration < 1 {
		return false, newErrorf(KindInvalid, []any{"duration", duration}, "duration must be >= 1, got %d", duration)
	}
	if request > p.total {
		return false, newErrorf(KindRange, []any{"request", request, "total", p.total}, "request %d exceeds total %d", request, p.total)
	}
	if at+duration > p.planEnd {
		return false, newErrorf(KindInvalid, []any{"at", at, "duration", duration, "plan_end", p.planEnd},
			"window [%d, %d) exceeds plan end %d", at, at+duration, p.planEnd)
	}
	return p.duringWalk(at, duration, request), nil
}

// duringWalk is the shared SPT forward scan behind AvailDuring and the
// AddSpan precondition, grounded on planner.cpp's avail_during.
func (p *Planner) duringWalk(at, duration, request int64) bool {
	for cur := p.spt.State(at); cur != nil; cur = p.spt.Next(cur) {
		if cur.At >= at+duration {
			return true
		}
		if request > cur.Remaining {
			return false
		}
	}
	return true
}

// overlap collects every SPT point with at <= p.At < at+duration, the Go
// analogue of fetch_overlap_points.
func (p *Planner) overlap(at, duration int64) []*point.Point {
	var list []*point.Point
	for cur := p.spt.State(at); cur != nil; cur = p.spt.Next(cur) {
		if cur.At >= at+duration {
			break
		}
		if cur.At >= at {
			list = append(list, cur)
		}
	}
	return list
}

// getOrNew returns the SPT point at t, creating one from the prevailing
// state if none exists yet (get_or_new_point).
func (p *Planner) getOrNew(t int64) *point.Point {
	if existing := p.spt.Search(t); existing != nil {
		return existing
	}
	state := p.spt.State(t)
	pt := point.New(t, state.Remaining)
	pt.Scheduled = state.Scheduled
	// Cannot fail: Search above just confirmed absence at t.
	_ = p.spt.Insert(pt)
	p.mtrt.Insert(pt)
	return pt
}

// updateMTRT re-keys every point in list: each is removed from mtrt if
// present, then reinserted iff it still carries a span boundary, so the
// tree's augmentation reflects its (possibly just-changed) Remaining.
func (p *Planner) updateMTRT(list []*point.Point) {
	for _, pt := range list {
		if pt.InMTRT {
			p.mtrt.Remove(pt)
		}
		if pt.RefCount > 0 && !pt.InMTRT {
			p.mtrt.Insert(pt)
		}
	}
}

func (p *Planner) parkPoint(pt *point.Point) { p.availParked[pt.At] = pt }

// restoreParked reinserts every point parked by a prior availability scan
// back into mtrt, ensuring the tree is clean before the next query or
// mutation (restore_track_points).
func (p *Planner) restoreParked() {
	for _, pt := range p.availParked {
		p.mtrt.Insert(pt)
	}
	p.availParked = map[int64]*point.Point{}
}

// spanOk verifies that start, already known to satisfy the request at its
// own instant, remains satisfied for the full duration window. On failure
// it removes start from mtrt and parks it, mirroring span_ok's side effect
// of hiding a disqualified candidate from the next get_mintime call.
func (p *Planner) spanOk(start *point.Point, duration, request int64) bool {
	for next := start; next != nil; next = p.spt.Next(next) {
		if next.At >= start.At+duration {
			return true
		}
		if request > next.Remaining {
			p.mtrt.Remove(start)
			p.parkPoint(start)
			return false
		}
	}
	return true
}

// availAt is the destructive mintime search shared by AvailTimeFirst and
// AvailTimeNext (avail_at): it repeatedly asks mtrt for the point with the
// smallest At among those satisfying request, discarding candidates that
// are too early or fail duration coverage, until one qualifies or none
// remain.
func (p *Planner) availAt(onOrAfter, duration, request int64) (int64, error) {
	at := int64(-1)
	for {
		start, err := p.mtrt.GetMinTime(request)
		if err != nil {
			return 0, newErrorf(KindInternal, []any{"request", request}, "min-time resource tree inconsistency: %v", err)
		}
		if start == nil {
			break
		}
		at = start.At
		if at < onOrAfter {
			p.mtrt.Remove(start)
			p.parkPoint(start)
			at = -1
			continue
		}
		if p.spanOk(start, duration, request) {
			p.mtrt.Remove(start)
			p.parkPoint(start)
			if at+duration > p.planEnd {
				at = -1
			}
			break
		}
	}
	return at, nil
}

// AvailTimeFirst starts an availability iterator and returns the earliest
// time at or after onOrAfter at which request units are free for duration.
func (p *Planner) AvailTimeFirst(onOrAfter, duration, request int64) (int64, error) {
	if err := p.checkOpen(); err != nil {
		return 0, err
	}
	if onOrAfter < p.planStart || onOrAfter >= p.planEnd || duration < 1 {
		return 0, newErrorf(KindInvalid, []any{"on_or_after", onOrAfter, "duration", duration},
			"on_or_after %d or duration %d out of bounds", onOrAfter, duration)
	}
	if request > p.total {
		return 0, newErrorf(KindRange, []any{"request", request, "total", p.total}, "request %d exceeds total %d", request, p.total)
	}
	p.restoreParked()
	p.availIterSet = true
	p.currentReq = pendingQuery{onOrAfter: onOrAfter, duration: duration, count: request}
	t, err := p.availAt(onOrAfter, duration, request)
	if err != nil {
		return 0, err
	}
	if t == -1 {
		return 0, newError(KindNotFound, "no time satisfies the request")
	}
	return t, nil
}

// AvailTimeNext advances the iterator started by AvailTimeFirst and
// returns the next qualifying time.
func (p *Planner) AvailTimeNext() (int64, error) {
	if err := p.checkOpen(); err != nil {
		return 0, err
	}
	if !p.availIterSet {
		return 0, newError(KindInvalid, "no live availability iterator; call AvailTimeFirst first")
	}
	req := p.currentReq
	if req.count > p.total {
		return 0, newErrorf(KindRange, []any{"request", req.count, "total", p.total}, "request %d exceeds total %d", req.count, p.total)
	}
	t, err := p.availAt(req.onOrAfter, req.duration, req.count)
	if err != nil {
		return 0, err
	}
	if t == -1 {
		return 0, newError(KindNotFound, "no further time satisfies the request")
	}
	return t, nil
}

// AddSpan commits request units over [start, start+duration) and returns
// the new span's id.
func (p *Planner) AddSpan(start, duration, request int64) (int64, error) {
	if err := p.checkOpen(); err != nil {
		return 0, err
	}
	if start < p.planStart || duration < 1 || start+duration-1 > p.planEnd {
		return 0, newErrorf(KindInvalid, []any{"start", start, "duration", duration, "plan_start", p.planStart, "plan_end", p.planEnd},
			"span [%d, %d) out of bounds", start, start+duration)
	}
	if start == p.planEnd {
		// A span cannot start where the plan ends: the zero-width tail
		// this would otherwise permit (start == plan_end, duration == 1,
		// satisfying start+duration-1 == plan_end above) is rejected
		// explicitly here.
		return 0, newErrorf(KindInvalid, []any{"start", start, "plan_end", p.planEnd}, "span cannot start at plan end %d", p.planEnd)
	}
	if request > p.total || request < 0 {
		return 0, newErrorf(KindRange, []any{"request", request, "total", p.total}, "request %d out of range [0, %d]", request, p.total)
	}
	if !p.duringWalk(start, duration, request) {
		return 0, newErrorf(KindInvalid, []any{"start", start, "duration", duration, "request", request},
			"insufficient resources over [%d, %d)", start, start+duration)
	}

	p.spanCounter++
	id := int64(p.spanCounter)
	last := start + duration
	span := &Span{ID: id, Start: start, Last: last, Planned: request}

	p.restoreParked()
	startPoint := p.getOrNew(start)
	startPoint.RefCount++
	lastPoint := p.getOrNew(last)
	lastPoint.RefCount++

	list := p.overlap(start, duration)
	for _, pt := range list {
		// mtrt locates a point by its current Remaining, so unlink it
		// before that changes; updateMTRT reinserts it below.
		if pt.InMTRT {
			p.mtrt.Remove(pt)
		}
		pt.Scheduled += request
		pt.Remaining -= request
		if pt.Scheduled > p.total || pt.Remaining < 0 {
			return 0, newErrorf(KindInternal, []any{"at", pt.At}, "resource invariant violated while applying span at %d", pt.At)
		}
	}
	span.startPoint = startPoint
	span.lastPoint = lastPoint
	p.updateMTRT(list)

	span.InSystem = true
	p.availIterSet = false
	p.spans[id] = span
	p.spanOrder = append(p.spanOrder, id)

	if p.metrics != nil {
		p.metrics.SpansAdded.Inc()
		p.metrics.SpansActive.Set(float64(len(p.spans)))
		p.metrics.TreeDepth.Set(float64(p.mtrt.Depth()))
	}
	p.log.V(1).Info("added span", "span_id", id, "start", start, "last", last, "planned", request)
	return id, nil
}

// RemSpan releases the span identified by id.
func (p *Planner) RemSpan(id int64) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	span, ok := p.spans[id]
	if !ok {
		return newErrorf(KindInvalid, []any{"span_id", id}, "unknown span id %d", id)
	}

	p.restoreParked()
	duration := span.Last - span.Start
	span.startPoint.RefCount--
	span.lastPoint.RefCount--

	list := p.overlap(span.Start, duration)
	for _, pt := range list {
		if pt.InMTRT {
			p.mtrt.Remove(pt)
		}
		pt.Scheduled -= span.Planned
		pt.Remaining += span.Planned
		if pt.Scheduled < 0 || pt.Remaining > p.total {
			return newErrorf(KindInternal, []any{"at", pt.At}, "resource invariant violated while retracting span at %d", pt.At)
		}
	}
	p.updateMTRT(list)
	span.InSystem = false

	if span.startPoint.RefCount == 0 {
		p.spt.Remove(span.startPoint)
		if span.startPoint.InMTRT {
			p.mtrt.Remove(span.startPoint)
		}
		span.startPoint = nil
	}
	if span.lastPoint.RefCount == 0 {
		p.spt.Remove(span.lastPoint)
		if span.lastPoint.InMTRT {
			p.mtrt.Remove(span.lastPoint)
		}
		span.lastPoint = nil
	}

	delete(p.spans, id)
	p.spanOrder = lo.Reject(p.spanOrder, func(x int64, _ int) bool { return x == id })
	p.availIterSet = false

	if p.metrics != nil {
		p.metrics.SpansRemoved.Inc()
		p.metrics.SpansActive.Set(float64(len(p.spans)))
		p.metrics.TreeDepth.Set(float64(p.mtrt.Depth()))
	}
	p.log.V(1).Info("removed span", "span_id", id, "start", span.Start, "last", span.Last)
	return nil
}

func (p *Planner) span(id int64) (*Span, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	span, ok := p.spans[id]
	if !ok {
		return nil, newErrorf(KindInvalid, []any{"span_id", id}, "unknown span id %d", id)
	}
	return span, nil
}

// IsActive reports whether span id is currently committed.
func (p *Planner) IsActive(id int64) (bool, error) {
	span, err := p.span(id)
	if err != nil {
		return false, err
	}
	return span.InSystem, nil
}

// SpanStart returns the start time of span id.
func (p *Planner) SpanStart(id int64) (int64, error) {
	span, err := p.span(id)
	if err != nil {
		return 0, err
	}
	return span.Start, nil
}

// SpanDuration returns the duration of span id.
func (p *Planner) SpanDuration(id int64) (int64, error) {
	span, err := p.span(id)
	if err != nil {
		return 0, err
	}
	return span.Duration(), nil
}

// SpanResourceCount returns the units committed by span id.
func (p *Planner) SpanResourceCount(id int64) (int64, error) {
	span, err := p.span(id)
	if err != nil {
		return 0, err
	}
	return span.Planned, nil
}

// SpanSize returns the number of spans currently tracked.
func (p *Planner) SpanSize() (int, error) {
	if err := p.checkOpen(); err != nil {
		return 0, err
	}
	return len(p.spans), nil
}

// SpanFirst starts a span-table iteration and returns the first span id.
func (p *Planner) SpanFirst() (int64, error) {
	if err := p.checkOpen(); err != nil {
		return 0, err
	}
	if len(p.spanOrder) == 0 {
		return 0, newError(KindInvalid, "no spans in the table")
	}
	p.spanIterIdx = 0
	return p.spanOrder[0], nil
}

// SpanNext advances the span-table iteration started by SpanFirst.
func (p *Planner) SpanNext() (int64, error) {
	if err := p.checkOpen(); err != nil {
		return 0, err
	}
	if p.spanIterIdx < 0 || p.spanIterIdx+1 >= len(p.spanOrder) {
		return 0, newError(KindInvalid, "span iterator exhausted")
	}
	p.spanIterIdx++
	return p.spanOrder[p.spanIterIdx], nil
}

// ForEachSpan calls fn for every span in table order, stopping early if fn
// returns false.
func (p *Planner) ForEachSpan(fn func(*Span) bool) {
	for _, id := range p.spanOrder {
		if span, ok := p.spans[id]; ok {
			if !fn(span) {
				return
			}
		}
	}
}

// Spans returns a stable-ordered snapshot of every span currently tracked.
func (p *Planner) Spans() []*Span {
	out := make([]*Span, 0, len(p.spanOrder))
	p.ForEachSpan(func(s *Span) bool {
		out = append(out, s)
		return true
	})
	return out
}

// PointSnapshot is a read-only view of one scheduled point, exposed for
// diagnostics and invariant checking (pkg/plannerutil) without leaking the
// live *point.Point.
type PointSnapshot struct {
	At        int64
	Scheduled int64
	Remaining int64
	RefCount  int
	InMTRT    bool
}

// Points returns every scheduled point currently in the tree, in
// increasing time order.
func (p *Planner) Points() ([]PointSnapshot, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	var out []PointSnapshot
	for cur := p.spt.Min(); cur != nil; cur = p.spt.Next(cur) {
		out = append(out, PointSnapshot{
			At:        cur.At,
			Scheduled: cur.Scheduled,
			Remaining: cur.Remaining,
			RefCount:  cur.RefCount,
			InMTRT:    cur.InMTRT,
		})
	}
	return out, nil
}
