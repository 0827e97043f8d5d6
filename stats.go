// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package memtx

import "github.com/prometheus/client_golang/prometheus"

// Stats is a point-in-time snapshot of the manager's internal
// counters, mirroring the source's per-bucket mempool stats plus the
// GC crawler's own bookkeeping.
type Stats struct {
	storiesLive      int64
	storiesAllocated int64

	statementsCommitted  int64
	statementsRolledBack int64

	readViewCount int64

	gcStepsRun     int64
	gcStoriesFreed int64
}

func (s Stats) StoriesLive() int64          { return s.storiesLive }
func (s Stats) StoriesAllocated() int64     { return s.storiesAllocated }
func (s Stats) StatementsCommitted() int64  { return s.statementsCommitted }
func (s Stats) StatementsRolledBack() int64 { return s.statementsRolledBack }
func (s Stats) ReadViewCount() int64        { return s.readViewCount }
func (s Stats) GCStepsRun() int64           { return s.gcStepsRun }
func (s Stats) GCStoriesFreed() int64       { return s.gcStoriesFreed }

// Collector adapts a Manager's Statistics into Prometheus gauges, the
// way the teacher's own services expose process-internal counters.
type Collector struct {
	m *Manager

	storiesLive      *prometheus.Desc
	storiesAllocated *prometheus.Desc
	committed        *prometheus.Desc
	rolledBack       *prometheus.Desc
	readViews        *prometheus.Desc
	gcSteps          *prometheus.Desc
	gcFreed          *prometheus.Desc
}

// NewCollector wraps m for registration with a prometheus.Registerer.
func NewCollector(m *Manager) *Collector {
	ns := "memtx_tx"
	return &Collector{
		m:                m,
		storiesLive:      prometheus.NewDesc(ns+"_stories_live", "Number of live story records.", nil, nil),
		storiesAllocated: prometheus.NewDesc(ns+"_stories_allocated_total", "Total story records ever allocated.", nil, nil),
		committed:        prometheus.NewDesc(ns+"_statements_committed_total", "Total statements committed.", nil, nil),
		rolledBack:       prometheus.NewDesc(ns+"_statements_rolled_back_total", "Total statements rolled back.", nil, nil),
		readViews:        prometheus.NewDesc(ns+"_read_view_count", "Transactions currently pinned in a read view.", nil, nil),
		gcSteps:          prometheus.NewDesc(ns+"_gc_steps_total", "Total incremental GC steps run.", nil, nil),
		gcFreed:          prometheus.NewDesc(ns+"_gc_stories_freed_total", "Total story records freed by GC.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.storiesLive
	ch <- c.storiesAllocated
	ch <- c.committed
	ch <- c.rolledBack
	ch <- c.readViews
	ch <- c.gcSteps
	ch <- c.gcFreed
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.m.Statistics()
	ch <- prometheus.MustNewConstMetric(c.storiesLive, prometheus.GaugeValue, float64(s.StoriesLive()))
	ch <- prometheus.MustNewConstMetric(c.storiesAllocated, prometheus.CounterValue, float64(s.StoriesAllocated()))
	ch <- prometheus.MustNewConstMetric(c.committed, prometheus.CounterValue, float64(s.StatementsCommitted()))
	ch <- prometheus.MustNewConstMetric(c.rolledBack, prometheus.CounterValue, float64(s.StatementsRolledBack()))
	ch <- prometheus.MustNewConstMetric(c.readViews, prometheus.GaugeValue, float64(s.ReadViewCount()))
	ch <- prometheus.MustNewConstMetric(c.gcSteps, prometheus.CounterValue, float64(s.GCStepsRun()))
	ch <- prometheus.MustNewConstMetric(c.gcFreed, prometheus.CounterValue, float64(s.GCStoriesFreed()))
}
