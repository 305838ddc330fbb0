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

// Package plannermetrics wires a Planner's lifecycle into
// prometheus.Collectors (NewGauge/NewCounter, registered via MustRegister).
// A planner is a library instance with no process-wide state, so every
// Metrics is registered against a caller-supplied prometheus.Registerer
// instead of a package-level default.
package plannermetrics

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "rtplanner"
	subsystem = "planner"
)

// Metrics is the set of collectors one Planner instance reports through.
type Metrics struct {
	SpansActive  prometheus.Gauge
	SpansAdded   prometheus.Counter
	SpansRemoved prometheus.Counter
	TreeDepth    prometheus.Gauge
}

// New creates a Metrics and registers its collectors against reg. reg must
// be non-nil; callers that don't want metrics should not call New at all
// (Planner treats a nil *Metrics as "metrics disabled").
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SpansActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "spans_active",
			Help:      "Number of spans currently committed in the planner.",
		}),
		SpansAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "spans_added_total",
			Help:      "Number of spans successfully added over the planner's lifetime.",
		}),
		SpansRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "spans_removed_total",
			Help:      "Number of spans successfully removed over the planner's lifetime.",
		}),
		TreeDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mtrt_tree_depth",
			Help:      "Height of the min-time resource tree, sampled after each mutation.",
		}),
	}
	reg.MustRegister(m.SpansActive, m.SpansAdded, m.SpansRemoved, m.TreeDepth)
	return m
}
