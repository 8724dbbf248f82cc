// Package metrics holds the bot's Prometheus instruments on a private registry.
package metrics

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "fyydbot"

// CacheStats is implemented by the podcast name cache.
type CacheStats interface {
	Len() int
	Stats() (hits, misses int64)
}

// Metrics groups the instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	mentions      *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	episodes      prometheus.Histogram
	socialRetries *prometheus.CounterVec
	fetchFailures prometheus.Counter
}

// New creates the instruments and registers them together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		mentions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mentions_total",
			Help:      "Mentions taken from the notification feed, by disposition.",
		}, []string{"disposition"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Search requests by outcome.",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of the extract, search and compose stages.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		episodes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "episodes_found",
			Help:      "Episodes left after date filtering per search.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		socialRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "social_call_failures_total",
			Help:      "Failed Mastodon calls that were retried.",
		}, []string{"call"}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Notification fetches that failed and triggered the cooldown.",
		}),
	}
	m.registry.MustRegister(
		m.mentions, m.outcomes, m.stageDuration, m.episodes, m.socialRetries, m.fetchFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// WatchCache exports the size and hit counters of a name cache.
func (m *Metrics) WatchCache(c CacheStats) {
	if m == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "name_cache_entries",
			Help:      "Podcast ids in the name cache, including negative entries.",
		}, func() float64 { return float64(c.Len()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "name_cache_hits_total",
			Help:      "Name lookups answered from the cache.",
		}, func() float64 { hits, _ := c.Stats(); return float64(hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "name_cache_misses_total",
			Help:      "Name lookups that went to the podcast API.",
		}, func() float64 { _, misses := c.Stats(); return float64(misses) }),
	)
}

// Mention counts a mention by disposition (processed, skipped_thread, skipped_empty).
func (m *Metrics) Mention(disposition string) {
	if m == nil {
		return
	}
	m.mentions.WithLabelValues(disposition).Inc()
}

// Outcome counts a finished search request.
func (m *Metrics) Outcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Episodes records the result size of one search.
func (m *Metrics) Episodes(n int) {
	if m == nil {
		return
	}
	m.episodes.Observe(float64(n))
}

// SocialRetry counts one failed Mastodon call. Its signature matches
// retry.Policy.OnRetry.
func (m *Metrics) SocialRetry(call string, _ int, _ error) {
	if m == nil {
		return
	}
	m.socialRetries.WithLabelValues(call).Inc()
}

// FetchFailure counts a failed notification fetch.
func (m *Metrics) FetchFailure() {
	if m == nil {
		return
	}
	m.fetchFailures.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Counters flattens the bot's own counters into "name{label=value}" keys
// for the JSON status endpoint.
func (m *Metrics) Counters() (map[string]float64, error) {
	out := map[string]float64{}
	if m == nil {
		return out, nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}
	for _, mf := range families {
		if mf.GetType() != dto.MetricType_COUNTER || !strings.HasPrefix(mf.GetName(), namespace+"_") {
			continue
		}
		for _, metric := range mf.GetMetric() {
			out[seriesName(mf.GetName(), metric.GetLabel())] = metric.GetCounter().GetValue()
		}
	}
	return out, nil
}

func seriesName(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return name
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].GetName() < labels[j].GetName() })
	pairs := make([]string, len(labels))
	for i, l := range labels {
		pairs[i] = l.GetName() + "=" + l.GetValue()
	}
	return name + "{" + strings.Join(pairs, ",") + "}"
}
