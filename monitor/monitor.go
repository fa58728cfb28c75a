// monitor/monitor.go
package monitor

import (
	"context"
	"expvar"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wfunc/hatgame/match"
)

type Metrics struct {
	OnlinePlayers    prometheus.Gauge
	ActiveMatches    prometheus.Gauge
	MatchesStarted   prometheus.Counter
	MatchesCompleted prometheus.Counter
	WordsGuessed     prometheus.Counter
	WordsPassed      prometheus.Counter
	Events           *prometheus.CounterVec
	MessagesReceived prometheus.Counter
	MessagesLimited  prometheus.Counter
	MessageLatency   prometheus.Histogram
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of connected sessions",
		}),
		ActiveMatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_matches",
			Help:      "Number of matches started and not yet completed",
		}),
		MatchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_started_total",
			Help:      "Total number of matches started",
		}),
		MatchesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_completed_total",
			Help:      "Total number of matches played to the end",
		}),
		WordsGuessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "words_guessed_total",
			Help:      "Total number of guessed words",
		}),
		WordsPassed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "words_passed_total",
			Help:      "Total number of passed words",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_events_total",
			Help:      "Match events by name",
		}, []string{"event"}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of messages received",
		}),
		MessagesLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_rate_limited_total",
			Help:      "Messages rejected by the per-session rate limit",
		}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}

	reg.MustRegister(
		m.OnlinePlayers,
		m.ActiveMatches,
		m.MatchesStarted,
		m.MatchesCompleted,
		m.WordsGuessed,
		m.WordsPassed,
		m.Events,
		m.MessagesReceived,
		m.MessagesLimited,
		m.MessageLatency,
	)

	return m
}

// Monitor 指标采集, 同时作为对局事件订阅者
type Monitor struct {
	metrics      *Metrics
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex
}

func NewMonitor(namespace string, reg prometheus.Registerer) *Monitor {
	return &Monitor{
		metrics:   NewMetrics(namespace, reg),
		startTime: time.Now(),
	}
}

var publishOnce sync.Once

// PublishExpvar exposes uptime and request count under /debug/vars. Only
// the first monitor of the process is published.
func (m *Monitor) PublishExpvar() {
	publishOnce.Do(func() {
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(m.startTime).Seconds()
		}))

		expvar.Publish("requests", expvar.Func(func() interface{} {
			m.mutex.Lock()
			defer m.mutex.Unlock()
			return m.requestCount
		}))
	})
}

// HandleEvent implements match.Subscriber.
func (m *Monitor) HandleEvent(ctx context.Context, ev match.Event) error {
	m.metrics.Events.WithLabelValues(ev.EventName()).Inc()
	switch ev.(type) {
	case match.MatchStarted:
		m.metrics.MatchesStarted.Inc()
		m.metrics.ActiveMatches.Inc()
	case match.MatchEnded:
		m.metrics.MatchesCompleted.Inc()
		m.metrics.ActiveMatches.Dec()
	case match.WordGuessed:
		m.metrics.WordsGuessed.Inc()
	case match.WordPassed:
		m.metrics.WordsPassed.Inc()
	}
	return nil
}

// MatchAbandoned accounts for a match dropped before completion.
func (m *Monitor) MatchAbandoned() {
	m.metrics.ActiveMatches.Dec()
}

func (m *Monitor) IncOnlinePlayers() {
	m.metrics.OnlinePlayers.Inc()
}

func (m *Monitor) DecOnlinePlayers() {
	m.metrics.OnlinePlayers.Dec()
}

func (m *Monitor) IncMessagesReceived() {
	m.metrics.MessagesReceived.Inc()
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

func (m *Monitor) IncMessagesLimited() {
	m.metrics.MessagesLimited.Inc()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	m.metrics.MessageLatency.Observe(duration.Seconds())
}

func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}
