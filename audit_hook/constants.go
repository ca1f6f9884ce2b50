package audithook

// Action constants for audit events.
const (
	// Transaction actions
	ActionTransactionCreated  = "transaction.created"
	ActionTransactionApproved = "transaction.approved"
	ActionTransactionRejected = "transaction.rejected"
	ActionTransactionDeleted  = "transaction.deleted"
	ActionTransactionUpdated  = "transaction.updated"

	// Balance actions
	ActionBalanceRecalculated = "balance.recalculated"

	// Recurring actions
	ActionRecurringCreated   = "recurring.created"
	ActionRecurringDeleted   = "recurring.deleted"
	ActionRecurringProcessed = "recurring.processed"
	ActionDuePassCompleted   = "recurring.due_pass"
	ActionInterestSynced     = "interest.synced"

	// Family actions
	ActionParentRemoved = "family.parent_removed"
)

// Resource constants for audit events.
const (
	ResourceTransaction = "transaction"
	ResourceAccount     = "account"
	ResourceRecurring   = "recurring"
	ResourceUser        = "user"
)

// Category constants for audit events.
const (
	CategoryLedger    = "ledger"
	CategorySchedule  = "schedule"
	CategoryApproval  = "approval"
	CategoryFamily    = "family"
	CategoryIntegrity = "integrity"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
