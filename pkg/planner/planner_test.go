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

package planner_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rtplanner/rtplanner/pkg/planner"
	"github.com/rtplanner/rtplanner/pkg/plannerutil"
)

func newTestPlanner() *planner.Planner {
	p, err := planner.New(planner.Config{
		BaseTime:     0,
		Duration:     100,
		Total:        4,
		ResourceType: "widget",
	})
	Expect(err).NotTo(HaveOccurred())
	return p
}

var _ = Describe("Planner", func() {
	var p *planner.Planner

	BeforeEach(func() {
		p = newTestPlanner()
	})

	AfterEach(func() {
		if _, err := p.BaseTime(); err != nil {
			// Planner was closed in the test body; nothing left to verify.
			return
		}
		Expect(plannerutil.CheckInvariants(p)).To(Succeed(), plannerutil.Dump(p))
	})

	It("reports the configuration it was created with", func() {
		base, err := p.BaseTime()
		Expect(err).NotTo(HaveOccurred())
		Expect(base).To(Equal(int64(0)))

		dur, err := p.Duration()
		Expect(err).NotTo(HaveOccurred())
		Expect(dur).To(Equal(int64(100)))

		total, err := p.ResourceTotal()
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(int64(4)))

		rtype, err := p.ResourceType()
		Expect(err).NotTo(HaveOccurred())
		Expect(rtype).To(Equal("widget"))
	})

	Describe("the walkthrough scenario", func() {
		It("matches the documented sequence end to end", func() {
			By("1: the fresh planner has all 4 units free from time 0")
			t, err := p.AvailTimeFirst(0, 10, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(t).To(Equal(int64(0)))

			By("2: adding a span for 3 units over [0, 10)")
			id1, err := p.AddSpan(0, 10, 3)
			Expect(err).NotTo(HaveOccurred())

			r, err := p.AvailResourcesAt(5)
			Expect(err).NotTo(HaveOccurred())
			Expect(r).To(Equal(int64(1)))

			r, err = p.AvailResourcesAt(10)
			Expect(err).NotTo(HaveOccurred())
			Expect(r).To(Equal(int64(4)))

			r, err = p.AvailResourcesAt(15)
			Expect(err).NotTo(HaveOccurred())
			Expect(r).To(Equal(int64(4)))

			By("3: the earliest 2-unit window now starts at 10")
			t, err = p.AvailTimeFirst(0, 10, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(t).To(Equal(int64(10)))

			By("4: a 2-unit span over [5, 25) collides with span 1's tail")
			_, err = p.AddSpan(5, 20, 2)
			Expect(err).To(HaveOccurred())
			Expect(planner.IsInvalid(err)).To(BeTrue())

			id2, err := p.AddSpan(10, 20, 2)
			Expect(err).NotTo(HaveOccurred())

			r, err = p.AvailResourcesAt(15)
			Expect(err).NotTo(HaveOccurred())
			Expect(r).To(Equal(int64(2)))

			By("5: removing span 1 frees its units but leaves span 2 intact")
			Expect(p.RemSpan(id1)).To(Succeed())

			r, err = p.AvailResourcesAt(5)
			Expect(err).NotTo(HaveOccurred())
			Expect(r).To(Equal(int64(4)))

			r, err = p.AvailResourcesAt(15)
			Expect(err).NotTo(HaveOccurred())
			Expect(r).To(Equal(int64(2)))

			points, err := p.Points()
			Expect(err).NotTo(HaveOccurred())
			var ats []int64
			for _, pt := range points {
				ats = append(ats, pt.At)
			}
			Expect(ats).To(ConsistOf(int64(0), int64(10), int64(30)))

			By("6: scanning for a 4-unit window enumerates the remaining gaps in order")
			first, err := p.AvailTimeFirst(0, 5, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(first).To(Equal(int64(0)))

			next, err := p.AvailTimeNext()
			Expect(err).NotTo(HaveOccurred())
			Expect(next).To(Equal(int64(30)))

			_, err = p.AvailTimeNext()
			Expect(err).To(HaveOccurred())
			Expect(planner.IsNotFound(err)).To(BeTrue())

			_ = id2
		})
	})

	Describe("boundary behavior", func() {
		It("returns plan_start as the first fully-free window, and NOT_FOUND next", func() {
			t, err := p.AvailTimeFirst(0, 10, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(t).To(Equal(int64(0)))

			_, err = p.AvailTimeNext()
			Expect(err).To(HaveOccurred())
			Expect(planner.IsNotFound(err)).To(BeTrue())
		})

		It("allows a full-capacity span on a fresh planner, and rejects a second", func() {
			_, err := p.AddSpan(0, 100, 4)
			Expect(err).NotTo(HaveOccurred())

			_, err = p.AddSpan(0, 10, 1)
			Expect(err).To(HaveOccurred())
			Expect(planner.IsInvalid(err)).To(BeTrue())
		})

		It("accepts a zero request as a zero-effect reservation", func() {
			id, err := p.AddSpan(0, 10, 0)
			Expect(err).NotTo(HaveOccurred())

			planned, err := p.SpanResourceCount(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(planned).To(Equal(int64(0)))

			r, err := p.AvailResourcesAt(5)
			Expect(err).NotTo(HaveOccurred())
			Expect(r).To(Equal(int64(4)))
		})

		It("accepts a span ending exactly at plan_end and rejects one that overruns it", func() {
			_, err := p.AddSpan(90, 10, 1)
			Expect(err).NotTo(HaveOccurred())

			_, err = p.AddSpan(95, 10, 1)
			Expect(err).To(HaveOccurred())
			Expect(planner.IsInvalid(err)).To(BeTrue())
		})

		It("rejects a span starting exactly at plan_end", func() {
			_, err := p.AddSpan(100, 1, 1)
			Expect(err).To(HaveOccurred())
			Expect(planner.IsInvalid(err)).To(BeTrue())
		})
	})

	Describe("Reset", func() {
		It("restores a clean, empty horizon", func() {
			_, err := p.AddSpan(0, 10, 2)
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Reset(0, 50)).To(Succeed())

			size, err := p.SpanSize()
			Expect(err).NotTo(HaveOccurred())
			Expect(size).To(Equal(0))

			r, err := p.AvailResourcesAt(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(r).To(Equal(int64(4)))

			dur, err := p.Duration()
			Expect(err).NotTo(HaveOccurred())
			Expect(dur).To(Equal(int64(50)))
		})
	})

	Describe("Close", func() {
		It("invalidates the planner for further use", func() {
			Expect(p.Close()).To(Succeed())
			_, err := p.BaseTime()
			Expect(err).To(HaveOccurred())
			Expect(planner.IsInvalid(err)).To(BeTrue())

			// Close is idempotent.
			Expect(p.Close()).To(Succeed())
		})
	})

	Describe("span accessors and iteration", func() {
		It("exposes span fields and walks the table in insertion order", func() {
			id1, err := p.AddSpan(0, 10, 1)
			Expect(err).NotTo(HaveOccurred())
			id2, err := p.AddSpan(20, 10, 1)
			Expect(err).NotTo(HaveOccurred())

			active, err := p.IsActive(id1)
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(BeTrue())

			start, err := p.SpanStart(id2)
			Expect(err).NotTo(HaveOccurred())
			Expect(start).To(Equal(int64(20)))

			dur, err := p.SpanDuration(id2)
			Expect(err).NotTo(HaveOccurred())
			Expect(dur).To(Equal(int64(10)))

			first, err := p.SpanFirst()
			Expect(err).NotTo(HaveOccurred())
			Expect(first).To(Equal(id1))

			second, err := p.SpanNext()
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(id2))

			_, err = p.SpanNext()
			Expect(err).To(HaveOccurred())

			var seen []int64
			p.ForEachSpan(func(s *planner.Span) bool {
				seen = append(seen, s.ID)
				return true
			})
			Expect(seen).To(Equal([]int64{id1, id2}))
		})

		It("rejects lookups for an unknown span id", func() {
			_, err := p.SpanStart(999)
			Expect(err).To(HaveOccurred())
			Expect(planner.IsInvalid(err)).To(BeTrue())
		})
	})

	Describe("round-trip invariants", func() {
		It("restores prior availability after add then remove", func() {
			before := make(map[int64]int64)
			for t := int64(0); t < 100; t += 10 {
				r, err := p.AvailResourcesAt(t)
				Expect(err).NotTo(HaveOccurred())
				before[t] = r
			}

			id, err := p.AddSpan(20, 15, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.RemSpan(id)).To(Succeed())

			for t, want := range before {
				r, err := p.AvailResourcesAt(t)
				Expect(err).NotTo(HaveOccurred())
				Expect(r).To(Equal(want), "time %d", t)
			}

			points, err := p.Points()
			Expect(err).NotTo(HaveOccurred())
			Expect(points).To(HaveLen(1), "only p0 should remain once the span's endpoints are freed")
		})
	})
})
