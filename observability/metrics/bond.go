package metrics

import (
	"math"
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels used for transitions that did not fail with a registry code.
const (
	OutcomeOK    = "ok"
	OutcomeError = "internal"
)

type BondMetrics struct {
	transitions *prometheus.CounterVec
	created     prometheus.Counter
	verified    prometheus.Counter
	funded      prometheus.Counter
	events      *prometheus.CounterVec

	// fundedTotal mirrors funded so additions can saturate at MaxFloat64.
	fundedMu    sync.Mutex
	fundedTotal float64
}

var (
	bondOnce     sync.Once
	bondRegistry *BondMetrics
)

// Bond returns the process-wide registry metrics, registering them with the
// default Prometheus registerer on first use.
func Bond() *BondMetrics {
	bondOnce.Do(func() {
		bondRegistry = newBondMetrics()
		prometheus.MustRegister(bondRegistry.collectors()...)
	})
	return bondRegistry
}

// NewBondMetrics builds an unregistered metrics set, registering it with reg
// when reg is non-nil.
func NewBondMetrics(reg prometheus.Registerer) *BondMetrics {
	m := newBondMetrics()
	if reg != nil {
		reg.MustRegister(m.collectors()...)
	}
	return m
}

func newBondMetrics() *BondMetrics {
	return &BondMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bond_transitions_total",
			Help: "Registry operations by operation and outcome (ok, registry code name, internal).",
		}, []string{"op", "outcome"}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bond_created_total",
			Help: "Number of bonds created.",
		}),
		verified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bond_verified_total",
			Help: "Number of successful verifications.",
		}),
		funded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bond_funded_amount_total",
			Help: "Cumulative accepted funding. Float approximation of the exact ledger amount.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bond_events_total",
			Help: "Registry events emitted by type.",
		}, []string{"type"}),
	}
}

func (m *BondMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.transitions, m.created, m.verified, m.funded, m.events}
}

// ObserveTransition records the outcome of one registry operation.
func (m *BondMetrics) ObserveTransition(op, outcome string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	if outcome == "" {
		outcome = OutcomeOK
	}
	m.transitions.WithLabelValues(op, outcome).Inc()
}

func (m *BondMetrics) ObserveCreated() {
	if m == nil {
		return
	}
	m.created.Inc()
}

func (m *BondMetrics) ObserveVerified() {
	if m == nil {
		return
	}
	m.verified.Inc()
}

// ObserveFunding adds amount to the funding counter. Negative or nil amounts
// are ignored. The counter saturates at math.MaxFloat64 instead of reaching +Inf.
func (m *BondMetrics) ObserveFunding(amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.fundedMu.Lock()
	defer m.fundedMu.Unlock()
	if headroom := math.MaxFloat64 - m.fundedTotal; value > headroom {
		value = headroom
	}
	if value <= 0 {
		return
	}
	m.fundedTotal += value
	m.funded.Add(value)
}

// ObserveEvent counts an emitted registry event.
func (m *BondMetrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.events.WithLabelValues(eventType).Inc()
}
