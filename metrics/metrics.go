// Package metrics exposes auction engine activity as Prometheus metrics.
// The Collector is fed by engine notifications and by the daemon's request
// loop, and serves its own registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloudx-io/assetauction/core"
	"github.com/cloudx-io/assetauction/engine"
)

// Collector provides auction metrics collection.
type Collector struct {
	registry *prometheus.Registry

	// Engine notifications
	events         *prometheus.CounterVec
	created        *prometheus.CounterVec
	closed         *prometheus.CounterVec
	bids           *prometheus.CounterVec
	activeAuctions prometheus.Gauge
	paused         prometheus.Gauge
	volume         prometheus.Counter
	platformFees   prometheus.Counter
	royalties      prometheus.Counter
	forfeited      prometheus.Counter
	payoutCredits  prometheus.Counter

	// Daemon requests
	requests        *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	requestRejected *prometheus.CounterVec
	inFlight        prometheus.Gauge
}

var _ engine.EventSink = (*Collector)(nil)

// NewCollector creates a collector registered on a fresh registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "auction"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "events_total",
			Help:      "Total number of engine notifications by kind",
		},
		[]string{"kind"},
	)

	c.created = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "auctions_created_total",
			Help:      "Total number of auctions created by format",
		},
		[]string{"format"},
	)

	c.closed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "auctions_closed_total",
			Help:      "Total number of auctions closed by format and outcome",
		},
		[]string{"format", "outcome"},
	)

	c.bids = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "bids_total",
			Help:      "Total number of accepted bids, commitments and reveals by format",
		},
		[]string{"format", "kind"},
	)

	c.activeAuctions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "active_auctions",
		Help:      "Number of auctions that are active or revealing",
	})

	c.paused = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "paused",
		Help:      "Whether the engine is locally paused (0 or 1)",
	})

	c.volume = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "volume_total",
		Help:      "Sum of winning bids of settled auctions",
	})

	c.platformFees = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "platform_fees_total",
		Help:      "Platform fees accrued at settlement",
	})

	c.royalties = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "royalties_total",
		Help:      "Royalties paid at settlement",
	})

	c.forfeited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "forfeited_total",
		Help:      "Unrevealed sealed deposits forfeited to the platform",
	})

	c.payoutCredits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "payout_credits_total",
		Help:      "Payouts rejected by the value rail and credited for withdrawal",
	})

	c.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "daemon",
			Name:      "requests_total",
			Help:      "Total number of daemon requests by type and result",
		},
		[]string{"type", "result"},
	)

	c.requestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "daemon",
			Name:      "request_duration_seconds",
			Help:      "Time taken to serve a daemon request",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
		[]string{"type"},
	)

	c.requestRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "daemon",
			Name:      "requests_rejected_total",
			Help:      "Requests refused before dispatch (busy, rate_limited, malformed)",
		},
		[]string{"reason"},
	)

	c.inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "daemon",
		Name:      "requests_in_flight",
		Help:      "Number of connections holding a worker slot",
	})

	c.registry.MustRegister(
		c.events,
		c.created,
		c.closed,
		c.bids,
		c.activeAuctions,
		c.paused,
		c.volume,
		c.platformFees,
		c.royalties,
		c.forfeited,
		c.payoutCredits,
		c.requests,
		c.requestLatency,
		c.requestRejected,
		c.inFlight,
	)

	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Publish updates the engine metrics from a notification.
func (c *Collector) Publish(ev engine.Event) {
	c.events.WithLabelValues(string(ev.Kind)).Inc()

	switch ev.Kind {
	case engine.EventAuctionCreated:
		c.created.WithLabelValues(ev.Format.String()).Inc()
		c.activeAuctions.Inc()
	case engine.EventBidPlaced, engine.EventCommitmentSubmitted, engine.EventBidRevealed:
		c.bids.WithLabelValues(ev.Format.String(), string(ev.Kind)).Inc()
	case engine.EventAuctionSettled, engine.EventAuctionCancelled:
		c.activeAuctions.Dec()
		if ev.Record != nil {
			c.recordClosed(ev.Record)
		}
	case engine.EventPayoutCredited:
		c.payoutCredits.Inc()
	case engine.EventPaused:
		c.paused.Set(1)
	case engine.EventUnpaused:
		c.paused.Set(0)
	}
}

func (c *Collector) recordClosed(rec *core.SettlementRecord) {
	c.closed.WithLabelValues(rec.Format.String(), string(rec.Outcome)).Inc()
	c.forfeited.Add(rec.Forfeited.InexactFloat64())
	if rec.Outcome != core.OutcomeSettled {
		return
	}
	c.volume.Add(rec.WinningBid.InexactFloat64())
	c.platformFees.Add(rec.PlatformFee.InexactFloat64())
	c.royalties.Add(rec.RoyaltyFee.InexactFloat64())
}

// RecordRequest records a served daemon request.
func (c *Collector) RecordRequest(requestType string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = core.KindOf(err)
	}
	c.requests.WithLabelValues(requestType, result).Inc()
	c.requestLatency.WithLabelValues(requestType).Observe(duration.Seconds())
}

// RecordRejected records a request refused before dispatch.
func (c *Collector) RecordRejected(reason string) {
	c.requestRejected.WithLabelValues(reason).Inc()
}

// RecordInFlight adjusts the number of busy worker slots by delta.
func (c *Collector) RecordInFlight(delta int) {
	c.inFlight.Add(float64(delta))
}
