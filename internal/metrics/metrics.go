package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Acquire result labels.
const (
	ResultOK            = "ok"
	ResultNoEligibleKey = "no_eligible_key"
	ResultPoolDisabled  = "pool_disabled"
)

var (
	registerOnce sync.Once

	cfgMu sync.RWMutex
	cfg   Config

	acquireCounter        *prometheus.CounterVec
	selectionCounter      *prometheus.CounterVec
	selectionErrorCounter *prometheus.CounterVec
	selectionKeyCounter   *prometheus.CounterVec
	selectionErrorKeyCtr  *prometheus.CounterVec
	inFlightGauge         *prometheus.GaugeVec
	healthTransitionCtr   *prometheus.CounterVec
	probeCounter          *prometheus.CounterVec
	configReloadCounters  *prometheus.CounterVec
	endpointGauge         prometheus.Gauge
	endpointSyncCounter   *prometheus.CounterVec
)

// Config controls optional behaviours of the metrics package.
type Config struct {
	// EnableKeyLabels toggles registration of key-level selection metrics.
	// Off by default: key ids can be high-cardinality.
	EnableKeyLabels bool
}

// Configure updates runtime configuration for metrics collection.
// It should be invoked before any metrics are observed.
func Configure(c Config) {
	cfgMu.Lock()
	defer cfgMu.Unlock()
	cfg = c
}

func ensureRegistered() {
	registerOnce.Do(func() {
		cfgMu.RLock()
		includeKeyLabels := cfg.EnableKeyLabels
		cfgMu.RUnlock()

		acquireCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "embedpool",
			Name:      "acquires_total",
			Help:      "Total number of pool acquire calls partitioned by strategy and result.",
		}, []string{"strategy", "result"})

		selectionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "embedpool",
			Name:      "selections_total",
			Help:      "Total number of completed selections partitioned by provider.",
		}, []string{"provider"})

		selectionErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "embedpool",
			Name:      "selection_errors_total",
			Help:      "Total number of failed calls reported against a selected key partitioned by provider.",
		}, []string{"provider"})

		inFlightGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "embedpool",
			Name:      "in_flight",
			Help:      "Currently leased calls partitioned by provider.",
		}, []string{"provider"})

		healthTransitionCtr = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "embedpool",
			Name:      "health_transitions_total",
			Help:      "Key health state transitions partitioned by resulting status.",
		}, []string{"status"})

		probeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "embedpool",
			Name:      "probes_total",
			Help:      "Active health probe outcomes partitioned by provider and result.",
		}, []string{"provider", "result"})

		configReloadCounters = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "embedpool",
			Name:      "config_reloads_total",
			Help:      "Count of configuration reload outcomes partitioned by result (success/failure).",
		}, []string{"result"})

		endpointGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "embedpool",
			Name:      "endpoints",
			Help:      "Number of endpoint records produced by the last sync.",
		})

		endpointSyncCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "embedpool",
			Name:      "endpoint_sync_changes_total",
			Help:      "Endpoint records added or removed across sync runs partitioned by change kind.",
		}, []string{"change"})

		collectors := []prometheus.Collector{
			acquireCounter, selectionCounter, selectionErrorCounter,
			inFlightGauge, healthTransitionCtr, probeCounter,
			configReloadCounters, endpointGauge, endpointSyncCounter,
		}

		if includeKeyLabels {
			selectionKeyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "embedpool",
				Name:      "selections_by_key_total",
				Help:      "Total completed selections partitioned by provider and key id.",
			}, []string{"provider", "key"})

			selectionErrorKeyCtr = prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "embedpool",
				Name:      "selection_errors_by_key_total",
				Help:      "Total failed calls partitioned by provider and key id.",
			}, []string{"provider", "key"})

			collectors = append(collectors, selectionKeyCounter, selectionErrorKeyCtr)
		}

		prometheus.MustRegister(collectors...)
	})
}

// ObserveAcquire records the outcome of one pool acquire call.
func ObserveAcquire(strategy, result string) {
	ensureRegistered()
	if strategy == "" {
		strategy = "unknown"
	}
	acquireCounter.WithLabelValues(strategy, result).Inc()
}

// ObserveSelection records a completed call against a selected key.
func ObserveSelection(provider, key string, failure bool) {
	ensureRegistered()
	if provider == "" {
		provider = "unknown"
	}

	selectionCounter.WithLabelValues(provider).Inc()
	if failure {
		selectionErrorCounter.WithLabelValues(provider).Inc()
	}

	cfgMu.RLock()
	includeKeyLabels := cfg.EnableKeyLabels
	cfgMu.RUnlock()

	if includeKeyLabels && selectionKeyCounter != nil && selectionErrorKeyCtr != nil {
		if key == "" {
			key = "unknown"
		}
		selectionKeyCounter.WithLabelValues(provider, key).Inc()
		if failure {
			selectionErrorKeyCtr.WithLabelValues(provider, key).Inc()
		}
	}
}

// AddInFlight adjusts the leased-call gauge for a provider.
func AddInFlight(provider string, delta float64) {
	ensureRegistered()
	if provider == "" {
		provider = "unknown"
	}
	inFlightGauge.WithLabelValues(provider).Add(delta)
}

// ObserveHealthTransition counts a key entering the given health status.
func ObserveHealthTransition(status string) {
	ensureRegistered()
	healthTransitionCtr.WithLabelValues(status).Inc()
}

// ObserveProbe records the outcome of one active health probe.
func ObserveProbe(provider string, success bool) {
	ensureRegistered()
	if provider == "" {
		provider = "unknown"
	}
	result := "failure"
	if success {
		result = "success"
	}
	probeCounter.WithLabelValues(provider, result).Inc()
}

// ObserveConfigReload increments success/failure counters for config reload attempts.
func ObserveConfigReload(success bool) {
	ensureRegistered()
	result := "failure"
	if success {
		result = "success"
	}
	configReloadCounters.WithLabelValues(result).Inc()
}

// ObserveEndpointSync records the outcome of an endpoint synchronizer run.
func ObserveEndpointSync(count, added, removed int) {
	ensureRegistered()
	endpointGauge.Set(float64(count))
	endpointSyncCounter.WithLabelValues("added").Add(float64(added))
	endpointSyncCounter.WithLabelValues("removed").Add(float64(removed))
}

// Handler exposes the metrics endpoint compatible with Prometheus scraping.
func Handler() http.Handler {
	ensureRegistered()
	return promhttp.Handler()
}
