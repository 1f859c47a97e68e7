/*
MIT License

Copyright (c) 2020 Nicolas JUHEL

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

// Package metrics wires the prometheus client into the pieces of the
// supervisor/transfer pipeline worth observing from outside the process:
// pool queue depth, bytes mirrored, and reconnect attempts. Grounded on the
// teacher's prometheus package shape (a small struct of pre-registered
// collectors handed out through simple setter methods) rather than its
// fuller gin-integration surface, since this module has no HTTP router of
// its own beyond the metrics endpoint.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups every collector this module registers.
type Metrics struct {
	QueueDepth     prometheus.Gauge
	BytesMirrored  prometheus.Counter
	Reconnects     prometheus.Counter
	BlocksApplied  prometheus.Counter
	PeerDesyncs    prometheus.Counter
}

// New creates and registers the collectors against reg. Passing
// prometheus.NewRegistry() keeps tests isolated from the global registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wlproxy",
			Subsystem: "pool",
			Name:      "queue_depth",
			Help:      "Number of tasks currently queued or in flight in the worker pool.",
		}),
		BytesMirrored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wlproxy",
			Subsystem: "transfer",
			Name:      "bytes_mirrored_total",
			Help:      "Total uncompressed bytes written by apply_update.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wlproxy",
			Subsystem: "reconnect",
			Name:      "attempts_total",
			Help:      "Total reconnection attempts, successful or not.",
		}),
		BlocksApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wlproxy",
			Subsystem: "transfer",
			Name:      "blocks_applied_total",
			Help:      "Total update blocks successfully applied.",
		}),
		PeerDesyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wlproxy",
			Subsystem: "transfer",
			Name:      "peer_desync_total",
			Help:      "Total session-fatal peer desync errors observed.",
		}),
	}

	reg.MustRegister(m.QueueDepth, m.BytesMirrored, m.Reconnects, m.BlocksApplied, m.PeerDesyncs)
	return m
}
