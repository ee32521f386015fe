package realtime

import (
	"time"

	"github.com/mbd888/fraudops/internal/transaction"
)

// Emitter publishes transaction lifecycle events to the hub.
// It satisfies the transaction service's event sink.
type Emitter struct {
	hub *Hub
}

// NewEmitter creates an Emitter backed by hub.
func NewEmitter(hub *Hub) *Emitter {
	return &Emitter{hub: hub}
}

// EmitPaymentFlagged broadcasts a newly flagged payment.
func (e *Emitter) EmitPaymentFlagged(rec *transaction.Record) {
	e.hub.Broadcast(&Event{
		Type:      EventPaymentFlagged,
		Timestamp: time.Now(),
		Data:      recordData(rec),
	})
}

// EmitOperatorAction broadcasts the outcome of an operator action.
func (e *Emitter) EmitOperatorAction(action transaction.Action, rec *transaction.Record) {
	data := recordData(rec)
	data["action"] = string(action)
	e.hub.Broadcast(&Event{
		Type:      EventOperatorAction,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// recordData flattens a record into the filterable fields clients
// subscribe on plus the full record for display.
func recordData(rec *transaction.Record) map[string]interface{} {
	return map[string]interface{}{
		"txnId":    rec.ID,
		"status":   string(rec.Status),
		"amount":   rec.Amount,
		"currency": rec.Currency,
		"txn":      rec,
	}
}
