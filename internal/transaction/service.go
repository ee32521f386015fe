package transaction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/fraudops/internal/escrow"
	"github.com/mbd888/fraudops/internal/idgen"
	"github.com/mbd888/fraudops/internal/metrics"
	"github.com/mbd888/fraudops/internal/risk"
	"github.com/mbd888/fraudops/internal/syncutil"
	"github.com/mbd888/fraudops/internal/traces"
)

// Intake outcome messages returned to the payment origin.
const (
	msgFlagged  = "Payment flagged for review"
	msgApproved = "Payment processed successfully"
)

// AttemptRequest is the intake payload for a payment attempt. Every field
// is optional; absent fields take the documented defaults.
type AttemptRequest struct {
	Customer          string  `json:"customer"`
	Phone             string  `json:"phone"`
	Recipient         string  `json:"recipient"`
	Amount            float64 `json:"amount"`
	Message           string  `json:"message"`
	SessionID         string  `json:"sessionId"`
	DeviceFingerprint string  `json:"deviceFingerprint"`
	Behavior          string  `json:"behavior"`
}

// IntakeResult is returned to the payment origin. Deliberately thin: the
// origin learns the outcome, not the full record.
type IntakeResult struct {
	TxnID   string `json:"txnId"`
	Flagged bool   `json:"flagged"`
	Message string `json:"message"`
}

// ActionRequest is an operator decision against a stored transaction.
type ActionRequest struct {
	Action       string   `json:"action"`
	Details      string   `json:"details"`
	RefundAmount *float64 `json:"refundAmount"`
}

// Stats aggregates the review queue for dashboards.
type Stats struct {
	ByStatus      map[Status]int `json:"byStatus"`
	TotalHeld     float64        `json:"totalHeld"`
	TotalReleased float64        `json:"totalReleased"`
}

// EventEmitter pushes intake and action events to subscribed clients.
type EventEmitter interface {
	EmitPaymentFlagged(rec *Record)
	EmitOperatorAction(action Action, rec *Record)
}

// Service implements intake and the operator action state machine.
//
// Mutations to the same transaction are serialized through a per-ID lock;
// mutations to different transactions run concurrently.
type Service struct {
	store      Store
	classifier *risk.Classifier
	locks      syncutil.ShardedMutex
	events     EventEmitter
	logger     *slog.Logger
}

// NewService creates a new transaction service.
func NewService(store Store, classifier *risk.Classifier) *Service {
	return &Service{
		store:      store,
		classifier: classifier,
		logger:     slog.Default(),
	}
}

// WithEvents adds a realtime event emitter.
func (s *Service) WithEvents(e EventEmitter) *Service {
	s.events = e
	return s
}

// WithLogger sets a custom logger.
func (s *Service) WithLogger(l *slog.Logger) *Service {
	s.logger = l
	return s
}

// Intake screens and stores a payment attempt.
func (s *Service) Intake(ctx context.Context, req AttemptRequest) (*IntakeResult, error) {
	ctx, span := traces.StartSpan(ctx, "transaction.Intake")
	defer span.End()

	if req.Amount < 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidAmount, req.Amount)
	}

	rec := &Record{
		ID:                idgen.WithPrefix("txn_"),
		Customer:          withDefault(req.Customer, DefaultCustomer),
		Phone:             withDefault(req.Phone, DefaultPhone),
		Recipient:         req.Recipient,
		Amount:            req.Amount,
		Currency:          DefaultCurrency,
		Method:            DefaultMethod,
		Message:           req.Message,
		CreatedAt:         time.Now(),
		SessionID:         req.SessionID,
		DeviceFingerprint: req.DeviceFingerprint,
		Behavior:          req.Behavior,
	}

	assessment := s.classifier.Assess(req.Message)
	span.SetAttributes(traces.TxnID(rec.ID), traces.Flagged(assessment.Flagged))

	if assessment.Flagged {
		rec.Status = StatusFlagged
		rec.Sandbox = true
		rec.Reason = assessment.Reason
		rec.LLMExplanation = assessment.Explanation
		rec.SemanticContext = assessment.SemanticContext
		rec.Escrow = escrow.NewHeld(rec.Amount)
	} else {
		rec.Status = StatusApproved
		rec.Sandbox = false
	}

	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store payment attempt: %w", err)
	}

	metrics.PaymentAttemptsTotal.WithLabelValues(outcomeLabel(assessment.Flagged)).Inc()

	if assessment.Flagged {
		s.logger.Info("payment flagged",
			"txn_id", rec.ID,
			"amount", rec.Amount,
			"held", rec.Escrow.HeldAmount,
		)
		if s.events != nil {
			s.events.EmitPaymentFlagged(rec.Clone())
		}
		return &IntakeResult{TxnID: rec.ID, Flagged: true, Message: msgFlagged}, nil
	}

	s.logger.Debug("payment approved", "txn_id", rec.ID, "amount", rec.Amount)
	return &IntakeResult{TxnID: rec.ID, Flagged: false, Message: msgApproved}, nil
}

// Apply executes an operator action against a stored transaction and
// returns the updated record.
//
// Two behaviors are intentional and load-bearing for the dashboards:
// unknown action tags are silent no-ops, and no status transition is ever
// rejected (an operator may approve after rejecting, and both decisions
// stay in the event log).
func (s *Service) Apply(ctx context.Context, id string, req ActionRequest) (*Record, error) {
	ctx, span := traces.StartSpan(ctx, "transaction.Apply",
		traces.TxnID(id), traces.ActionName(req.Action))
	defer span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	action := Action(req.Action)
	if !action.Known() {
		s.logger.Warn("unknown action ignored", "txn_id", id, "action", req.Action)
		return rec, nil
	}

	switch action {
	case ActionApprove:
		rec.Status = StatusApproved
		if rec.Escrow != nil {
			rec.Escrow.Release("Approved by operator")
		}

	case ActionReject:
		rec.Status = StatusRejected
		if rec.Escrow != nil {
			rec.Escrow.Reject(rec.Amount, req.Details)
		}

	case ActionEscalate:
		rec.Status = StatusEscalated

	case ActionCallCustomer:
		rec.Status = StatusCalling

	case ActionHoldEscrow:
		if rec.Escrow != nil {
			rec.Escrow.Hold(rec.Amount, req.Details)
		}

	case ActionReleaseEscrow:
		if rec.Escrow != nil {
			rec.Escrow.Release(req.Details)
		}
		rec.Status = StatusReleased

	case ActionPartialRefund:
		if rec.Escrow != nil {
			amount := rec.Amount * 0.5
			if req.RefundAmount != nil {
				amount = *req.RefundAmount
			}
			rec.Escrow.PartialRefund(amount, req.Details)
		}

	case ActionRaiseDispute:
		if rec.Escrow != nil {
			rec.Escrow.Dispute(req.Details)
		}
		rec.Status = StatusDisputed
	}

	if err := s.store.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to persist action %s: %w", action, err)
	}

	metrics.OperatorActionsTotal.WithLabelValues(string(action)).Inc()
	s.logger.Info("operator action applied",
		"txn_id", id,
		"action", string(action),
		"status", string(rec.Status),
	)

	if s.events != nil {
		s.events.EmitOperatorAction(action, rec.Clone())
	}

	return rec, nil
}

// Get returns a transaction by ID.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	return s.store.Get(ctx, id)
}

// ListFlagged returns every transaction awaiting review.
func (s *Service) ListFlagged(ctx context.Context) ([]*Record, error) {
	return s.store.ListByStatus(ctx, StatusFlagged)
}

// GetStats aggregates queue counts and escrow totals across all statuses.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStatus: make(map[Status]int, len(Statuses))}
	for _, status := range Statuses {
		recs, err := s.store.ListByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		stats.ByStatus[status] = len(recs)
		for _, rec := range recs {
			if rec.Escrow != nil {
				stats.TotalHeld += rec.Escrow.HeldAmount
				stats.TotalReleased += rec.Escrow.ReleasedAmount
			}
		}
	}
	return stats, nil
}

func withDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func outcomeLabel(flagged bool) string {
	if flagged {
		return "flagged"
	}
	return "approved"
}
