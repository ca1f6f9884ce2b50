// Package observability provides a metrics extension for famledger that
// records ledger event counts through a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/plugin"
	"github.com/xraph/famledger/recurring"
	"github.com/xraph/famledger/transaction"
	"github.com/xraph/famledger/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnTransactionCreated  = (*MetricsExtension)(nil)
	_ plugin.OnTransactionApproved = (*MetricsExtension)(nil)
	_ plugin.OnTransactionRejected = (*MetricsExtension)(nil)
	_ plugin.OnTransactionDeleted  = (*MetricsExtension)(nil)
	_ plugin.OnTransactionUpdated  = (*MetricsExtension)(nil)
	_ plugin.OnBalanceRecalculated = (*MetricsExtension)(nil)
	_ plugin.OnRecurringCreated    = (*MetricsExtension)(nil)
	_ plugin.OnRecurringDeleted    = (*MetricsExtension)(nil)
	_ plugin.OnRecurringProcessed  = (*MetricsExtension)(nil)
	_ plugin.OnDuePassCompleted    = (*MetricsExtension)(nil)
	_ plugin.OnInterestSynced      = (*MetricsExtension)(nil)
	_ plugin.OnParentRemoved       = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide ledger metrics.
// Register it as a famledger plugin to track postings and scheduler runs.
type MetricsExtension struct {
	factory MetricFactory

	// Transaction metrics
	TransactionCreated  Counter
	TransactionApproved Counter
	TransactionRejected Counter
	TransactionDeleted  Counter
	TransactionUpdated  Counter
	TransactionAmount   Histogram

	// Integrity metrics
	BalanceChecks Counter
	BalanceDrifts Counter
	DriftAmount   Histogram

	// Recurring metrics
	RecurringCreated   Counter
	RecurringDeleted   Counter
	RecurringProcessed Counter
	RecurringPostings  Counter
	DuePassFailures    Counter
	DuePassLatency     Histogram
	InterestSynced     Counter

	// Family metrics
	ParentRemoved Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		TransactionCreated:  factory.Counter("famledger.transaction.created"),
		TransactionApproved: factory.Counter("famledger.transaction.approved"),
		TransactionRejected: factory.Counter("famledger.transaction.rejected"),
		TransactionDeleted:  factory.Counter("famledger.transaction.deleted"),
		TransactionUpdated:  factory.Counter("famledger.transaction.updated"),
		TransactionAmount:   factory.Histogram("famledger.transaction.amount_cents"),

		BalanceChecks: factory.Counter("famledger.balance.checks"),
		BalanceDrifts: factory.Counter("famledger.balance.drifts"),
		DriftAmount:   factory.Histogram("famledger.balance.drift_cents"),

		RecurringCreated:   factory.Counter("famledger.recurring.created"),
		RecurringDeleted:   factory.Counter("famledger.recurring.deleted"),
		RecurringProcessed: factory.Counter("famledger.recurring.processed"),
		RecurringPostings:  factory.Counter("famledger.recurring.postings"),
		DuePassFailures:    factory.Counter("famledger.recurring.failures"),
		DuePassLatency:     factory.Histogram("famledger.recurring.pass.latency_ms"),
		InterestSynced:     factory.Counter("famledger.interest.synced"),

		ParentRemoved: factory.Counter("famledger.family.parent_removed"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Transaction hooks
// ──────────────────────────────────────────────────

// OnTransactionCreated implements plugin.OnTransactionCreated.
func (m *MetricsExtension) OnTransactionCreated(_ context.Context, t *transaction.Transaction) error {
	m.TransactionCreated.Inc()
	m.TransactionAmount.Observe(float64(t.Amount.Amount))
	return nil
}

// OnTransactionApproved implements plugin.OnTransactionApproved.
func (m *MetricsExtension) OnTransactionApproved(_ context.Context, _ *transaction.Transaction) error {
	m.TransactionApproved.Inc()
	return nil
}

// OnTransactionRejected implements plugin.OnTransactionRejected.
func (m *MetricsExtension) OnTransactionRejected(_ context.Context, _ *transaction.Transaction) error {
	m.TransactionRejected.Inc()
	return nil
}

// OnTransactionDeleted implements plugin.OnTransactionDeleted.
func (m *MetricsExtension) OnTransactionDeleted(_ context.Context, _ *transaction.Transaction) error {
	m.TransactionDeleted.Inc()
	return nil
}

// OnTransactionUpdated implements plugin.OnTransactionUpdated.
func (m *MetricsExtension) OnTransactionUpdated(_ context.Context, _ *transaction.Transaction, _ types.Money) error {
	m.TransactionUpdated.Inc()
	return nil
}

// OnBalanceRecalculated implements plugin.OnBalanceRecalculated.
func (m *MetricsExtension) OnBalanceRecalculated(_ context.Context, _ id.AccountID, oldBalance, newBalance types.Money, _ int) error {
	m.BalanceChecks.Inc()
	if drift := newBalance.Subtract(oldBalance); !drift.IsZero() {
		m.BalanceDrifts.Inc()
		m.DriftAmount.Observe(float64(drift.Abs().Amount))
	}
	return nil
}

// ──────────────────────────────────────────────────
// Recurring hooks
// ──────────────────────────────────────────────────

// OnRecurringCreated implements plugin.OnRecurringCreated.
func (m *MetricsExtension) OnRecurringCreated(_ context.Context, _ *recurring.Definition) error {
	m.RecurringCreated.Inc()
	return nil
}

// OnRecurringDeleted implements plugin.OnRecurringDeleted.
func (m *MetricsExtension) OnRecurringDeleted(_ context.Context, _ id.RecurringID) error {
	m.RecurringDeleted.Inc()
	return nil
}

// OnRecurringProcessed implements plugin.OnRecurringProcessed.
func (m *MetricsExtension) OnRecurringProcessed(_ context.Context, _ *recurring.Definition, posted []*transaction.Transaction) error {
	m.RecurringProcessed.Inc()
	m.RecurringPostings.Add(float64(len(posted)))
	return nil
}

// OnDuePassCompleted implements plugin.OnDuePassCompleted.
func (m *MetricsExtension) OnDuePassCompleted(_ context.Context, _, failed int, elapsed time.Duration) error {
	if failed > 0 {
		m.DuePassFailures.Add(float64(failed))
	}
	m.DuePassLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// OnInterestSynced implements plugin.OnInterestSynced.
func (m *MetricsExtension) OnInterestSynced(_ context.Context, processed int) error {
	m.InterestSynced.Add(float64(processed))
	return nil
}

// OnParentRemoved implements plugin.OnParentRemoved.
func (m *MetricsExtension) OnParentRemoved(_ context.Context, _, _ id.UserID) error {
	m.ParentRemoved.Inc()
	return nil
}
