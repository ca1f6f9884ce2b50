// Package audithook bridges famledger events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/famledger/id"
	"github.com/xraph/famledger/plugin"
	"github.com/xraph/famledger/recurring"
	"github.com/xraph/famledger/transaction"
	"github.com/xraph/famledger/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnTransactionCreated  = (*Extension)(nil)
	_ plugin.OnTransactionApproved = (*Extension)(nil)
	_ plugin.OnTransactionRejected = (*Extension)(nil)
	_ plugin.OnTransactionDeleted  = (*Extension)(nil)
	_ plugin.OnTransactionUpdated  = (*Extension)(nil)
	_ plugin.OnBalanceRecalculated = (*Extension)(nil)
	_ plugin.OnRecurringCreated    = (*Extension)(nil)
	_ plugin.OnRecurringDeleted    = (*Extension)(nil)
	_ plugin.OnRecurringProcessed  = (*Extension)(nil)
	_ plugin.OnDuePassCompleted    = (*Extension)(nil)
	_ plugin.OnInterestSynced      = (*Extension)(nil)
	_ plugin.OnParentRemoved       = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It matches chronicle.Emitter, so callers can inject a
// *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges ledger events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Transaction hooks
// ──────────────────────────────────────────────────

// OnTransactionCreated implements plugin.OnTransactionCreated.
func (e *Extension) OnTransactionCreated(ctx context.Context, t *transaction.Transaction) error {
	return e.record(ctx, ActionTransactionCreated, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, t.ID.String(), CategoryLedger, nil,
		txnFields(t)...,
	)
}

// OnTransactionApproved implements plugin.OnTransactionApproved.
func (e *Extension) OnTransactionApproved(ctx context.Context, t *transaction.Transaction) error {
	return e.record(ctx, ActionTransactionApproved, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, t.ID.String(), CategoryApproval, nil,
		append(txnFields(t), "approved_by", t.ApprovedBy.String())...,
	)
}

// OnTransactionRejected implements plugin.OnTransactionRejected.
func (e *Extension) OnTransactionRejected(ctx context.Context, t *transaction.Transaction) error {
	return e.record(ctx, ActionTransactionRejected, SeverityWarning, OutcomeSuccess,
		ResourceTransaction, t.ID.String(), CategoryApproval, nil,
		append(txnFields(t),
			"rejected_by", t.RejectedBy.String(),
			"rejection_reason", t.RejectionReason,
		)...,
	)
}

// OnTransactionDeleted implements plugin.OnTransactionDeleted.
func (e *Extension) OnTransactionDeleted(ctx context.Context, t *transaction.Transaction) error {
	return e.record(ctx, ActionTransactionDeleted, SeverityWarning, OutcomeSuccess,
		ResourceTransaction, t.ID.String(), CategoryLedger, nil,
		append(txnFields(t), "deleted_by", t.DeletedBy.String())...,
	)
}

// OnTransactionUpdated implements plugin.OnTransactionUpdated.
func (e *Extension) OnTransactionUpdated(ctx context.Context, t *transaction.Transaction, delta types.Money) error {
	return e.record(ctx, ActionTransactionUpdated, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, t.ID.String(), CategoryLedger, nil,
		append(txnFields(t), "balance_delta", delta.Amount)...,
	)
}

// OnBalanceRecalculated implements plugin.OnBalanceRecalculated. A non-zero
// drift means the stored balance had diverged from its transactions.
func (e *Extension) OnBalanceRecalculated(ctx context.Context, accountID id.AccountID, oldBalance, newBalance types.Money, counted int) error {
	severity := SeverityInfo
	if !oldBalance.Equal(newBalance) {
		severity = SeverityCritical
	}
	return e.record(ctx, ActionBalanceRecalculated, severity, OutcomeSuccess,
		ResourceAccount, accountID.String(), CategoryIntegrity, nil,
		"old_balance", oldBalance.Amount,
		"new_balance", newBalance.Amount,
		"drift", newBalance.Subtract(oldBalance).Amount,
		"counted", counted,
	)
}

// ──────────────────────────────────────────────────
// Recurring hooks
// ──────────────────────────────────────────────────

// OnRecurringCreated implements plugin.OnRecurringCreated.
func (e *Extension) OnRecurringCreated(ctx context.Context, d *recurring.Definition) error {
	return e.record(ctx, ActionRecurringCreated, SeverityInfo, OutcomeSuccess,
		ResourceRecurring, d.ID.String(), CategorySchedule, nil,
		"user_id", d.UserID.String(),
		"type", string(d.Type),
		"frequency", string(d.Frequency),
		"amount", d.Amount.Amount,
	)
}

// OnRecurringDeleted implements plugin.OnRecurringDeleted.
func (e *Extension) OnRecurringDeleted(ctx context.Context, recID id.RecurringID) error {
	return e.record(ctx, ActionRecurringDeleted, SeverityInfo, OutcomeSuccess,
		ResourceRecurring, recID.String(), CategorySchedule, nil,
	)
}

// OnRecurringProcessed implements plugin.OnRecurringProcessed.
func (e *Extension) OnRecurringProcessed(ctx context.Context, d *recurring.Definition, posted []*transaction.Transaction) error {
	total := types.Zero()
	for _, t := range posted {
		total = total.Add(t.Effect())
	}
	return e.record(ctx, ActionRecurringProcessed, SeverityInfo, OutcomeSuccess,
		ResourceRecurring, d.ID.String(), CategorySchedule, nil,
		"type", string(d.Type),
		"postings", len(posted),
		"total", total.Amount,
		"next_date", d.NextDate,
	)
}

// OnDuePassCompleted implements plugin.OnDuePassCompleted.
func (e *Extension) OnDuePassCompleted(ctx context.Context, processed, failed int, elapsed time.Duration) error {
	severity, outcome := SeverityInfo, OutcomeSuccess
	if failed > 0 {
		severity, outcome = SeverityError, OutcomePartial
		if processed == 0 {
			outcome = OutcomeFailure
		}
	}
	return e.record(ctx, ActionDuePassCompleted, severity, outcome,
		ResourceRecurring, "", CategorySchedule, nil,
		"processed", processed,
		"failed", failed,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnInterestSynced implements plugin.OnInterestSynced.
func (e *Extension) OnInterestSynced(ctx context.Context, processed int) error {
	return e.record(ctx, ActionInterestSynced, SeverityInfo, OutcomeSuccess,
		ResourceRecurring, "", CategorySchedule, nil,
		"accounts", processed,
	)
}

// ──────────────────────────────────────────────────
// Family hooks
// ──────────────────────────────────────────────────

// OnParentRemoved implements plugin.OnParentRemoved.
func (e *Extension) OnParentRemoved(ctx context.Context, childID, parentID id.UserID) error {
	return e.record(ctx, ActionParentRemoved, SeverityWarning, OutcomeSuccess,
		ResourceUser, childID.String(), CategoryFamily, nil,
		"parent_id", parentID.String(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}

func txnFields(t *transaction.Transaction) []any {
	return []any{
		"account_id", t.AccountID.String(),
		"type", string(t.Type),
		"amount", t.Amount.Amount,
		"status", t.Status(),
	}
}
