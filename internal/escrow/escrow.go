// Package escrow tracks funds held back from flagged payment attempts.
//
// Flow:
//  1. Intake flags a payment → full amount held, HOLD event logged
//  2. Operator approves or releases → held moves to released, RELEASE event
//  3. Operator rejects → held zeroed (nothing released), REJECT event
//  4. Operator logs a partial refund → event only, balances untouched
//  5. Operator raises a dispute → reason appended to the dispute log
//
// The event log is append-only and chronological: events are never reordered
// or deleted, so the full history of a hold is always reconstructable.
package escrow

import "time"

// EventAction tags an entry in the escrow event log.
type EventAction string

const (
	EventHold          EventAction = "HOLD"
	EventRelease       EventAction = "RELEASE"
	EventReject        EventAction = "REJECT"
	EventPartialRefund EventAction = "PARTIAL_REFUND"
)

// InitialHoldReason is logged on the HOLD event created at intake.
const InitialHoldReason = "Initial fraud flag"

// Event is an immutable entry in the escrow event log.
type Event struct {
	Action    EventAction `json:"action"`
	Amount    float64     `json:"amount"`
	Reason    string      `json:"reason"`
	Timestamp time.Time   `json:"timestamp"`
}

// Ledger holds the escrow balances and history for one transaction.
// JSON field names match the review dashboard's wire format.
type Ledger struct {
	HeldAmount     float64  `json:"heldAmount"`
	ReleasedAmount float64  `json:"releasedAmount"`
	Events         []Event  `json:"holds"`
	Disputes       []string `json:"disputes"`
}

// NewHeld creates a ledger holding the given amount, seeded with the
// initial HOLD event.
func NewHeld(amount float64) *Ledger {
	l := &Ledger{
		Events:   make([]Event, 0, 1),
		Disputes: []string{},
	}
	l.HeldAmount = amount
	l.append(EventHold, amount, InitialHoldReason)
	return l
}

// Release moves the full held amount into released and logs a RELEASE
// event. Returns the amount released.
func (l *Ledger) Release(reason string) float64 {
	held := l.HeldAmount
	l.HeldAmount = 0
	l.ReleasedAmount = held
	l.append(EventRelease, held, reason)
	return held
}

// Reject zeroes the held amount without releasing it and logs a REJECT
// event. The event carries the original transaction amount, not the held
// balance — rejected funds are returned out-of-band, so the log records
// what the attempt was worth.
func (l *Ledger) Reject(txnAmount float64, reason string) {
	l.HeldAmount = 0
	l.append(EventReject, txnAmount, reason)
}

// Hold logs an additional HOLD event without changing balances. Used when
// an operator re-affirms a hold during review.
func (l *Ledger) Hold(txnAmount float64, reason string) {
	l.append(EventHold, txnAmount, reason)
}

// PartialRefund logs a refund intent. Balances are untouched: the refund
// itself is settled by the payments rail, this is the audit record.
func (l *Ledger) PartialRefund(amount float64, reason string) {
	l.append(EventPartialRefund, amount, reason)
}

// Dispute appends a free-text dispute reason to the dispute log.
func (l *Ledger) Dispute(reason string) {
	l.Disputes = append(l.Disputes, reason)
}

// Clone returns a deep copy, so stores can hand out ledgers without
// sharing slice backing arrays with the stored record.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	cp := *l
	cp.Events = make([]Event, len(l.Events))
	copy(cp.Events, l.Events)
	cp.Disputes = make([]string, len(l.Disputes))
	copy(cp.Disputes, l.Disputes)
	return &cp
}

func (l *Ledger) append(action EventAction, amount float64, reason string) {
	l.Events = append(l.Events, Event{
		Action:    action,
		Amount:    amount,
		Reason:    reason,
		Timestamp: time.Now(),
	})
}
