// Package metrics exposes in-process Prometheus-text-format counters,
// gauges, and histograms (SPEC_FULL.md §4.15), adapted from the teacher's
// hand-rolled registry: recompute duration/throughput, skipped writes,
// webhook signature failures, and debounce/cooldown coalescing.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Counter is a monotonically increasing value.
type Counter struct{ value int64 }

func (c *Counter) Inc()         { atomic.AddInt64(&c.value, 1) }
func (c *Counter) Add(n int64)  { atomic.AddInt64(&c.value, n) }
func (c *Counter) Value() int64 { return atomic.LoadInt64(&c.value) }

// Gauge is a value that can go up and down, stored as micros for
// float-like precision under atomic int64 ops.
type Gauge struct{ value int64 }

func (g *Gauge) Set(v float64)  { atomic.StoreInt64(&g.value, int64(v*1e6)) }
func (g *Gauge) Inc()           { atomic.AddInt64(&g.value, 1e6) }
func (g *Gauge) Dec()           { atomic.AddInt64(&g.value, -1e6) }
func (g *Gauge) Value() float64 { return float64(atomic.LoadInt64(&g.value)) / 1e6 }

// Histogram tracks a value distribution over fixed buckets.
type Histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []int64
	sum     float64
	count   int64
}

func NewHistogram(buckets []float64) *Histogram {
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)
	return &Histogram{buckets: sorted, counts: make([]int64, len(sorted)+1)}
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, b := range h.buckets {
		if v <= b {
			h.counts[i]++
			return
		}
	}
	h.counts[len(h.buckets)]++
}

func labelKey(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return strings.Join(parts, ",")
}

// Registry is the central metrics registry, served as Prometheus text
// exposition format at GET /metrics.
type Registry struct {
	mu         sync.RWMutex
	counters   map[string]map[string]*Counter
	gauges     map[string]map[string]*Gauge
	histograms map[string]map[string]*Histogram

	durationBuckets []float64
}

// New creates an empty metrics registry.
func New() *Registry {
	return &Registry{
		counters:        make(map[string]map[string]*Counter),
		gauges:          make(map[string]map[string]*Gauge),
		histograms:      make(map[string]map[string]*Histogram),
		durationBuckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}
}

func (r *Registry) CounterInc(name string, labels map[string]string) {
	r.getCounter(name, labels).Inc()
}

func (r *Registry) CounterAdd(name string, labels map[string]string, n int64) {
	r.getCounter(name, labels).Add(n)
}

func (r *Registry) getCounter(name string, labels map[string]string) *Counter {
	key := labelKey(labels)
	r.mu.RLock()
	if byLabel, ok := r.counters[name]; ok {
		if c, ok := byLabel[key]; ok {
			r.mu.RUnlock()
			return c
		}
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.counters[name]; !ok {
		r.counters[name] = make(map[string]*Counter)
	}
	if _, ok := r.counters[name][key]; !ok {
		r.counters[name][key] = &Counter{}
	}
	return r.counters[name][key]
}

func (r *Registry) GaugeSet(name string, labels map[string]string, v float64) {
	r.getGauge(name, labels).Set(v)
}

func (r *Registry) getGauge(name string, labels map[string]string) *Gauge {
	key := labelKey(labels)
	r.mu.RLock()
	if byLabel, ok := r.gauges[name]; ok {
		if g, ok := byLabel[key]; ok {
			r.mu.RUnlock()
			return g
		}
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.gauges[name]; !ok {
		r.gauges[name] = make(map[string]*Gauge)
	}
	if _, ok := r.gauges[name][key]; !ok {
		r.gauges[name][key] = &Gauge{}
	}
	return r.gauges[name][key]
}

func (r *Registry) HistogramObserve(name string, labels map[string]string, v float64) {
	r.getHistogram(name, labels).Observe(v)
}

func (r *Registry) getHistogram(name string, labels map[string]string) *Histogram {
	key := labelKey(labels)
	r.mu.RLock()
	if byLabel, ok := r.histograms[name]; ok {
		if h, ok := byLabel[key]; ok {
			r.mu.RUnlock()
			return h
		}
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.histograms[name]; !ok {
		r.histograms[name] = make(map[string]*Histogram)
	}
	if _, ok := r.histograms[name][key]; !ok {
		r.histograms[name][key] = NewHistogram(r.durationBuckets)
	}
	return r.histograms[name][key]
}

// ─── Named helpers for the engine's own metrics ─────────────

// RecordRecompute records one completed recalculation: its wall-clock
// duration, how many items were processed, and how many writes were
// skipped because nothing changed.
func (r *Registry) RecordRecompute(installationID int64, duration time.Duration, processed, skipped int) {
	labels := map[string]string{"installation_id": fmt.Sprintf("%d", installationID)}
	r.HistogramObserve("recompute_duration_seconds", nil, duration.Seconds())
	r.CounterAdd("recompute_items_processed_total", labels, int64(processed))
	r.CounterAdd("recompute_writes_skipped_total", labels, int64(skipped))
}

// RecordWebhookSignatureFailure increments the webhook signature failure
// counter, used to alert on a misconfigured or rotated webhook secret.
func (r *Registry) RecordWebhookSignatureFailure() {
	r.CounterInc("webhook_signature_failures_total", nil)
}

// RecordDebounceCoalesced increments the count of webhook deliveries
// coalesced into a single recomputation by the debounce window.
func (r *Registry) RecordDebounceCoalesced() {
	r.CounterInc("debounce_coalesced_total", nil)
}

// RecordCooldownDropped increments the count of webhook deliveries
// dropped entirely because the project is within its cooldown window.
func (r *Registry) RecordCooldownDropped() {
	r.CounterInc("cooldown_dropped_total", nil)
}

// Handler serves the registry in Prometheus text exposition format.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder
		r.mu.RLock()
		defer r.mu.RUnlock()

		for name, byLabel := range r.counters {
			sb.WriteString(fmt.Sprintf("# TYPE %s counter\n", name))
			for lk, c := range byLabel {
				writeSample(&sb, name, lk, fmt.Sprintf("%d", c.Value()))
			}
		}
		for name, byLabel := range r.gauges {
			sb.WriteString(fmt.Sprintf("# TYPE %s gauge\n", name))
			for lk, g := range byLabel {
				writeSample(&sb, name, lk, fmt.Sprintf("%f", g.Value()))
			}
		}
		for name, byLabel := range r.histograms {
			sb.WriteString(fmt.Sprintf("# TYPE %s histogram\n", name))
			for lk, h := range byLabel {
				h.mu.Lock()
				cumulative := int64(0)
				for i, b := range h.buckets {
					cumulative += h.counts[i]
					writeSample(&sb, name+"_bucket", bucketLabel(lk, fmt.Sprintf("%g", b)), fmt.Sprintf("%d", cumulative))
				}
				cumulative += h.counts[len(h.buckets)]
				writeSample(&sb, name+"_bucket", bucketLabel(lk, "+Inf"), fmt.Sprintf("%d", cumulative))
				writeSample(&sb, name+"_sum", lk, fmt.Sprintf("%f", h.sum))
				writeSample(&sb, name+"_count", lk, fmt.Sprintf("%d", h.count))
				h.mu.Unlock()
			}
		}
		_, _ = w.Write([]byte(sb.String()))
	}
}

func writeSample(sb *strings.Builder, name, labels, value string) {
	if labels == "" {
		fmt.Fprintf(sb, "%s %s\n", name, value)
	} else {
		fmt.Fprintf(sb, "%s{%s} %s\n", name, labels, value)
	}
}

// bucketLabel prefixes an existing label set with le="bound".
func bucketLabel(existing, bound string) string {
	le := fmt.Sprintf("le=%q", bound)
	if existing == "" {
		return le
	}
	return le + "," + existing
}
