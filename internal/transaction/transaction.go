// Package transaction implements the fraud-operations core: payment-attempt
// intake, the transaction registry, and the operator action state machine.
//
// A payment attempt is screened at intake. Clean attempts are approved
// immediately; flagged attempts are created in a sandboxed state with their
// full amount held in escrow, and sit in the review queue until an operator
// resolves them through one of the fixed actions (approve, reject, escalate,
// call customer, hold/release escrow, partial refund, raise dispute).
package transaction

import (
	"context"
	"errors"
	"time"

	"github.com/mbd888/fraudops/internal/escrow"
)

var (
	ErrNotFound      = errors.New("transaction not found")
	ErrInvalidAmount = errors.New("amount must be non-negative")
)

// Status represents the review state of a transaction.
type Status string

const (
	StatusFlagged   Status = "FLAGGED"   // Held for manual review
	StatusApproved  Status = "APPROVED"  // Cleared (at intake or by operator)
	StatusRejected  Status = "REJECTED"  // Blocked by operator, funds not released
	StatusEscalated Status = "ESCALATED" // Passed to a senior reviewer
	StatusCalling   Status = "CALLING"   // Operator is contacting the customer
	StatusReleased  Status = "RELEASED"  // Escrowed funds released by operator
	StatusDisputed  Status = "DISPUTED"  // Customer dispute raised
)

// Statuses lists every reachable review state.
var Statuses = []Status{
	StatusFlagged, StatusApproved, StatusRejected,
	StatusEscalated, StatusCalling, StatusReleased, StatusDisputed,
}

// Action is an operator decision applied to a stored transaction.
// There is deliberately no transition guard between statuses: operators may
// re-decide a transaction in any order, and every decision is logged.
type Action string

const (
	ActionApprove       Action = "APPROVE"
	ActionReject        Action = "REJECT"
	ActionEscalate      Action = "ESCALATE"
	ActionCallCustomer  Action = "CALL_CUSTOMER"
	ActionHoldEscrow    Action = "HOLD_ESCROW"
	ActionReleaseEscrow Action = "RELEASE_ESCROW"
	ActionPartialRefund Action = "PARTIAL_REFUND"
	ActionRaiseDispute  Action = "RAISE_DISPUTE"
)

// Known reports whether the action is part of the operator vocabulary.
// Unknown actions are accepted as no-ops, so a newer dashboard never
// hard-fails against an older backend.
func (a Action) Known() bool {
	switch a {
	case ActionApprove, ActionReject, ActionEscalate, ActionCallCustomer,
		ActionHoldEscrow, ActionReleaseEscrow, ActionPartialRefund, ActionRaiseDispute:
		return true
	}
	return false
}

// Intake defaults. Customer and phone are placeholders for attempts that
// arrive without identity fields (demo flows, partial captures).
const (
	DefaultCustomer = "John Doe"
	DefaultPhone    = "+44 7700 900000"
	DefaultCurrency = "GBP"
	DefaultMethod   = "bank_transfer"
)

// Record is a stored payment attempt. Customer-supplied fields are kept
// verbatim; JSON field names match the review dashboard's wire format.
type Record struct {
	ID                string         `json:"id"`
	Customer          string         `json:"customer"`
	Phone             string         `json:"phone"`
	Recipient         string         `json:"recipient,omitempty"`
	Amount            float64        `json:"amount"`
	Currency          string         `json:"currency"`
	Method            string         `json:"method"`
	Message           string         `json:"message,omitempty"`
	Reason            string         `json:"reason,omitempty"`
	Status            Status         `json:"status"`
	Sandbox           bool           `json:"sandbox"`
	CreatedAt         time.Time      `json:"createdAt"`
	SessionID         string         `json:"sessionId,omitempty"`
	DeviceFingerprint string         `json:"deviceFingerprint,omitempty"`
	Behavior          string         `json:"behavior,omitempty"`
	Escrow            *escrow.Ledger `json:"escrow,omitempty"`
	LLMExplanation    string         `json:"llmExplanation,omitempty"`
	SemanticContext   string         `json:"semanticContext,omitempty"`
}

// Clone returns a deep copy of the record (escrow ledger included).
func (r *Record) Clone() *Record {
	cp := *r
	cp.Escrow = r.Escrow.Clone()
	return &cp
}

// Store persists transaction records.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Update(ctx context.Context, rec *Record) error
	ListByStatus(ctx context.Context, status Status) ([]*Record, error)
}
