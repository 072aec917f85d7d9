package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const Subsystem = "paydesk"

var HistogramBuckets = []float64{
	// --- Fast responses (0 - 500ms) ---
	25, 50, 75, 100, 150, 200, 300, 400, 500,

	// --- Medium responses (500ms - 2s) ---
	750, 1000, 1250, 1500, 1750, 2000,

	// --- Slow responses (2s - 15s), the gateway timeout range ---
	2500, 3000, 4000, 5000, 7500, 10000, 15000,

	// --- Retries stacked on timeouts ---
	20000, 30000, 45000, 60000,
}

// Metric is a definition for the name, description, type, ID, and
// prometheus.Collector type (i.e. CounterVec, Summary, etc) of each metric
type Metric struct {
	MetricCollector prometheus.Collector
	ID              string
	Name            string
	Description     string
	Type            string
	Args            []string
}

// NewMetric associates prometheus.Collector based on Metric.Type
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	var metric prometheus.Collector
	switch m.Type {
	case "counter_vec":
		metric = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "histogram_vec":
		metric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
				Buckets:   HistogramBuckets,
			},
			m.Args,
		)
	case "summary_vec":
		metric = prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	}
	return metric
}

var renewalOutcomes = &Metric{
	ID:          "renewalOutcomes",
	Name:        "renewal_outcomes_total",
	Description: "Renewal sweep results per subscription, partitioned by outcome.",
	Type:        "counter_vec",
	Args:        []string{"outcome"},
}

var reconcileOutcomes = &Metric{
	ID:          "reconcileOutcomes",
	Name:        "reconcile_outcomes_total",
	Description: "Gateway status reconciliations, partitioned by source and outcome.",
	Type:        "counter_vec",
	Args:        []string{"source", "outcome"},
}

var gatewayDur = &Metric{
	ID:          "gatewayDur",
	Name:        "gateway_request_ms",
	Description: "Payment gateway call latencies in milliseconds, retries included.",
	Type:        "histogram_vec",
	Args:        []string{"op", "result"},
}

// Domain holds the engine's business metrics. A nil *Domain records nothing,
// so services can be built without a registry in tests.
type Domain struct {
	renewals  *prometheus.CounterVec
	reconcile *prometheus.CounterVec
	gateway   *prometheus.HistogramVec
}

func NewDomain(reg prometheus.Registerer) (*Domain, error) {
	var (
		d   Domain
		err error
	)
	if d.renewals, err = register(reg, NewMetric(renewalOutcomes, Subsystem).(*prometheus.CounterVec)); err != nil {
		return nil, err
	}
	if d.reconcile, err = register(reg, NewMetric(reconcileOutcomes, Subsystem).(*prometheus.CounterVec)); err != nil {
		return nil, err
	}
	if d.gateway, err = register(reg, NewMetric(gatewayDur, Subsystem).(*prometheus.HistogramVec)); err != nil {
		return nil, err
	}
	return &d, nil
}

// register returns the already registered collector when c is a duplicate.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return c, err
}

// NewDefaultDomain registers on the process-wide registry served at /metrics.
func NewDefaultDomain() (*Domain, error) {
	return NewDomain(prometheus.DefaultRegisterer)
}

func (d *Domain) RenewalOutcome(outcome string) {
	if d == nil {
		return
	}
	d.renewals.WithLabelValues(outcome).Inc()
}

func (d *Domain) ReconcileOutcome(source, outcome string) {
	if d == nil {
		return
	}
	d.reconcile.WithLabelValues(source, outcome).Inc()
}

func (d *Domain) GatewayCall(op string, start time.Time, err error) {
	if d == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	d.gateway.WithLabelValues(op, result).Observe(MillisecondsSince(start))
}

func MillisecondsSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

const (
	RefererKey = "X-Referer"
)
