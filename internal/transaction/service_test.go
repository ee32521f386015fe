package transaction

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mbd888/fraudops/internal/escrow"
	"github.com/mbd888/fraudops/internal/risk"
)

func newTestService() *Service {
	return NewService(NewMemoryStore(), risk.NewClassifier(nil))
}

// recordingEmitter captures emitted events for assertions.
type recordingEmitter struct {
	mu      sync.Mutex
	flagged []*Record
	actions []Action
}

func (e *recordingEmitter) EmitPaymentFlagged(rec *Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flagged = append(e.flagged, rec)
}

func (e *recordingEmitter) EmitOperatorAction(action Action, rec *Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.actions = append(e.actions, action)
}

// ---------------------------------------------------------------------------
// Intake
// ---------------------------------------------------------------------------

func TestIntake_CleanMessage(t *testing.T) {
	svc := newTestService()

	result, err := svc.Intake(context.Background(), AttemptRequest{
		Amount:  50,
		Message: "Thanks for lunch!",
	})
	if err != nil {
		t.Fatalf("Intake failed: %v", err)
	}

	if result.Flagged {
		t.Error("clean message should not be flagged")
	}
	if result.Message != "Payment processed successfully" {
		t.Errorf("unexpected message: %q", result.Message)
	}

	rec, err := svc.Get(context.Background(), result.TxnID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.Status != StatusApproved {
		t.Errorf("expected APPROVED, got %s", rec.Status)
	}
	if rec.Sandbox {
		t.Error("clean payment should not be sandboxed")
	}
	if rec.Escrow != nil {
		t.Error("clean payment should not have escrow")
	}
}

func TestIntake_FlaggedMessage(t *testing.T) {
	svc := newTestService()

	result, err := svc.Intake(context.Background(), AttemptRequest{
		Amount:  500,
		Message: "URGENT: share your OTP to receive refund",
	})
	if err != nil {
		t.Fatalf("Intake failed: %v", err)
	}

	if !result.Flagged {
		t.Fatal("risky message should be flagged")
	}
	if result.Message != "Payment flagged for review" {
		t.Errorf("unexpected message: %q", result.Message)
	}

	rec, err := svc.Get(context.Background(), result.TxnID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.Status != StatusFlagged {
		t.Errorf("expected FLAGGED, got %s", rec.Status)
	}
	if !rec.Sandbox {
		t.Error("flagged payment should be sandboxed")
	}
	if rec.Reason != risk.FlagReason {
		t.Errorf("unexpected reason: %q", rec.Reason)
	}
	if rec.LLMExplanation == "" || rec.SemanticContext == "" {
		t.Error("flagged payment should carry explanations")
	}
	if rec.Escrow == nil {
		t.Fatal("flagged payment should have escrow")
	}
	if rec.Escrow.HeldAmount != 500 {
		t.Errorf("expected held 500, got %v", rec.Escrow.HeldAmount)
	}
	if len(rec.Escrow.Events) != 1 || rec.Escrow.Events[0].Action != escrow.EventHold {
		t.Errorf("expected single initial HOLD event, got %+v", rec.Escrow.Events)
	}
	if rec.Escrow.Events[0].Reason != escrow.InitialHoldReason {
		t.Errorf("unexpected hold reason: %q", rec.Escrow.Events[0].Reason)
	}
}

func TestIntake_Defaults(t *testing.T) {
	svc := newTestService()

	result, err := svc.Intake(context.Background(), AttemptRequest{Amount: 10})
	if err != nil {
		t.Fatalf("Intake failed: %v", err)
	}

	rec, _ := svc.Get(context.Background(), result.TxnID)
	if rec.Customer != DefaultCustomer {
		t.Errorf("expected default customer, got %q", rec.Customer)
	}
	if rec.Phone != DefaultPhone {
		t.Errorf("expected default phone, got %q", rec.Phone)
	}
	if rec.Currency != DefaultCurrency {
		t.Errorf("expected default currency, got %q", rec.Currency)
	}
	if rec.Method != DefaultMethod {
		t.Errorf("expected default method, got %q", rec.Method)
	}
}

func TestIntake_NegativeAmount(t *testing.T) {
	svc := newTestService()

	_, err := svc.Intake(context.Background(), AttemptRequest{Amount: -5})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestIntake_EmitsFlaggedEvent(t *testing.T) {
	emitter := &recordingEmitter{}
	svc := newTestService().WithEvents(emitter)

	_, _ = svc.Intake(context.Background(), AttemptRequest{Amount: 100, Message: "urgent"})
	_, _ = svc.Intake(context.Background(), AttemptRequest{Amount: 100, Message: "hello"})

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	if len(emitter.flagged) != 1 {
		t.Errorf("expected 1 flagged event, got %d", len(emitter.flagged))
	}
}

// ---------------------------------------------------------------------------
// Apply
// ---------------------------------------------------------------------------

func flagPayment(t *testing.T, svc *Service, amount float64) string {
	t.Helper()
	result, err := svc.Intake(context.Background(), AttemptRequest{
		Amount:  amount,
		Message: "urgent otp",
	})
	if err != nil {
		t.Fatalf("Intake failed: %v", err)
	}
	if !result.Flagged {
		t.Fatal("setup payment should be flagged")
	}
	return result.TxnID
}

func TestApply_Approve(t *testing.T) {
	svc := newTestService()
	id := flagPayment(t, svc, 500)

	rec, err := svc.Apply(context.Background(), id, ActionRequest{Action: "APPROVE"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if rec.Status != StatusApproved {
		t.Errorf("expected APPROVED, got %s", rec.Status)
	}
	if rec.Escrow.HeldAmount != 0 {
		t.Errorf("expected held 0, got %v", rec.Escrow.HeldAmount)
	}
	if rec.Escrow.ReleasedAmount != 500 {
		t.Errorf("expected released 500, got %v", rec.Escrow.ReleasedAmount)
	}

	last := rec.Escrow.Events[len(rec.Escrow.Events)-1]
	if last.Action != escrow.EventRelease {
		t.Errorf("expected RELEASE event, got %s", last.Action)
	}
	if last.Reason != "Approved by operator" {
		t.Errorf("unexpected release reason: %q", last.Reason)
	}
}

func TestApply_Reject(t *testing.T) {
	svc := newTestService()
	id := flagPayment(t, svc, 500)

	rec, err := svc.Apply(context.Background(), id, ActionRequest{
		Action:  "REJECT",
		Details: "Confirmed scam",
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if rec.Status != StatusRejected {
		t.Errorf("expected REJECTED, got %s", rec.Status)
	}
	if rec.Escrow.HeldAmount != 0 {
		t.Errorf("expected held 0, got %v", rec.Escrow.HeldAmount)
	}
	if rec.Escrow.ReleasedAmount != 0 {
		t.Errorf("rejected funds must not be released, got %v", rec.Escrow.ReleasedAmount)
	}

	last := rec.Escrow.Events[len(rec.Escrow.Events)-1]
	if last.Action != escrow.EventReject {
		t.Errorf("expected REJECT event, got %s", last.Action)
	}
	// REJECT logs the full transaction amount, not the held balance
	if last.Amount != 500 {
		t.Errorf("expected event amount 500, got %v", last.Amount)
	}
	if last.Reason != "Confirmed scam" {
		t.Errorf("unexpected event reason: %q", last.Reason)
	}
}

func TestApply_Escalate(t *testing.T) {
	svc := newTestService()
	id := flagPayment(t, svc, 100)

	rec, err := svc.Apply(context.Background(), id, ActionRequest{Action: "ESCALATE"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if rec.Status != StatusEscalated {
		t.Errorf("expected ESCALATED, got %s", rec.Status)
	}
	// Escrow untouched
	if rec.Escrow.HeldAmount != 100 {
		t.Errorf("escalation should not touch escrow, held=%v", rec.Escrow.HeldAmount)
	}
}

func TestApply_CallCustomer(t *testing.T) {
	svc := newTestService()
	id := flagPayment(t, svc, 100)

	rec, err := svc.Apply(context.Background(), id, ActionRequest{Action: "CALL_CUSTOMER"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if rec.Status != StatusCalling {
		t.Errorf("expected CALLING, got %s", rec.Status)
	}
}

func TestApply_HoldEscrow(t *testing.T) {
	svc := newTestService()
	id := flagPayment(t, svc, 300)

	rec, err := svc.Apply(context.Background(), id, ActionRequest{
		Action:  "HOLD_ESCROW",
		Details: "Keep holding pending customer call",
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	// Status unchanged, balances unchanged, one extra HOLD event
	if rec.Status != StatusFlagged {
		t.Errorf("expected FLAGGED, got %s", rec.Status)
	}
	if rec.Escrow.HeldAmount != 300 {
		t.Errorf("expected held 300, got %v", rec.Escrow.HeldAmount)
	}
	if len(rec.Escrow.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rec.Escrow.Events))
	}
	last := rec.Escrow.Events[1]
	if last.Action != escrow.EventHold || last.Amount != 300 {
		t.Errorf("unexpected hold event: %+v", last)
	}
}

func TestApply_ReleaseEscrow(t *testing.T) {
	svc := newTestService()
	id := flagPayment(t, svc, 200)

	rec, err := svc.Apply(context.Background(), id, ActionRequest{
		Action:  "RELEASE_ESCROW",
		Details: "Customer verified",
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if rec.Status != StatusReleased {
		t.Errorf("expected RELEASED, got %s", rec.Status)
	}
	if rec.Escrow.HeldAmount != 0 || rec.Escrow.ReleasedAmount != 200 {
		t.Errorf("unexpected balances: held=%v released=%v",
			rec.Escrow.HeldAmount, rec.Escrow.ReleasedAmount)
	}
}

func TestApply_PartialRefund_Default(t *testing.T) {
	svc := newTestService()
	id := flagPayment(t, svc, 500)

	rec, err := svc.Apply(context.Background(), id, ActionRequest{
		Action:  "PARTIAL_REFUND",
		Details: "Goodwill refund",
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	// Log-only: status and balances untouched, event amount defaults to half
	if rec.Status != StatusFlagged {
		t.Errorf("expected FLAGGED, got %s", rec.Status)
	}
	if rec.Escrow.HeldAmount != 500 {
		t.Errorf("partial refund should not touch balances, held=%v", rec.Escrow.HeldAmount)
	}
	last := rec.Escrow.Events[len(rec.Escrow.Events)-1]
	if last.Action != escrow.EventPartialRefund {
		t.Errorf("expected PARTIAL_REFUND event, got %s", last.Action)
	}
	if last.Amount != 250 {
		t.Errorf("expected default refund 250 (half of 500), got %v", last.Amount)
	}
}

func TestApply_PartialRefund_ExplicitAmount(t *testing.T) {
	svc := newTestService()
	id := flagPayment(t, svc, 500)

	refund := 42.0
	rec, err := svc.Apply(context.Background(), id, ActionRequest{
		Action:       "PARTIAL_REFUND",
		RefundAmount: &refund,
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	last := rec.Escrow.Events[len(rec.Escrow.Events)-1]
	if last.Amount != 42 {
		t.Errorf("expected refund 42, got %v", last.Amount)
	}
}

func TestApply_RaiseDispute(t *testing.T) {
	svc := newTestService()
	id := flagPayment(t, svc, 100)

	rec, err := svc.Apply(context.Background(), id, ActionRequest{
		Action:  "RAISE_DISPUTE",
		Details: "Customer denies initiating payment",
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if rec.Status != StatusDisputed {
		t.Errorf("expected DISPUTED, got %s", rec.Status)
	}
	if len(rec.Escrow.Disputes) != 1 || rec.Escrow.Disputes[0] != "Customer denies initiating payment" {
		t.Errorf("unexpected disputes: %v", rec.Escrow.Disputes)
	}
}

func TestApply_UnknownAction_NoOp(t *testing.T) {
	svc := newTestService()
	id := flagPayment(t, svc, 100)

	rec, err := svc.Apply(context.Background(), id, ActionRequest{Action: "FREEZE_ACCOUNT"})
	if err != nil {
		t.Fatalf("unknown action should not error: %v", err)
	}

	if rec.Status != StatusFlagged {
		t.Errorf("unknown action should leave status unchanged, got %s", rec.Status)
	}
	if len(rec.Escrow.Events) != 1 {
		t.Errorf("unknown action should not append events, got %d", len(rec.Escrow.Events))
	}
}

func TestApply_NotFound(t *testing.T) {
	svc := newTestService()

	_, err := svc.Apply(context.Background(), "txn_missing", ActionRequest{Action: "APPROVE"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestApply_RepeatedDecisions(t *testing.T) {
	svc := newTestService()
	id := flagPayment(t, svc, 500)

	// Reject, then approve: both allowed, both logged
	if _, err := svc.Apply(context.Background(), id, ActionRequest{Action: "REJECT"}); err != nil {
		t.Fatalf("REJECT failed: %v", err)
	}
	rec, err := svc.Apply(context.Background(), id, ActionRequest{Action: "APPROVE"})
	if err != nil {
		t.Fatalf("APPROVE after REJECT failed: %v", err)
	}

	if rec.Status != StatusApproved {
		t.Errorf("expected APPROVED, got %s", rec.Status)
	}
	// HOLD + REJECT + RELEASE
	if len(rec.Escrow.Events) != 3 {
		t.Errorf("expected 3 events, got %d", len(rec.Escrow.Events))
	}
	// Reject already zeroed the hold, so approve releases nothing
	if rec.Escrow.ReleasedAmount != 0 {
		t.Errorf("expected released 0 after reject-then-approve, got %v", rec.Escrow.ReleasedAmount)
	}
}

func TestApply_StatusChangesWithoutEscrow(t *testing.T) {
	svc := newTestService()

	// A clean payment has no escrow ledger
	result, err := svc.Intake(context.Background(), AttemptRequest{Amount: 50, Message: "hi"})
	if err != nil {
		t.Fatalf("Intake failed: %v", err)
	}

	rec, err := svc.Apply(context.Background(), result.TxnID, ActionRequest{Action: "RELEASE_ESCROW"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if rec.Status != StatusReleased {
		t.Errorf("status should change even without escrow, got %s", rec.Status)
	}
	if rec.Escrow != nil {
		t.Error("no ledger should be created by an action")
	}
}

func TestApply_EmitsActionEvent(t *testing.T) {
	emitter := &recordingEmitter{}
	svc := newTestService().WithEvents(emitter)
	id := flagPayment(t, svc, 100)

	_, _ = svc.Apply(context.Background(), id, ActionRequest{Action: "ESCALATE"})
	_, _ = svc.Apply(context.Background(), id, ActionRequest{Action: "UNKNOWN_THING"})

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	// Unknown actions are no-ops and must not emit
	if len(emitter.actions) != 1 || emitter.actions[0] != ActionEscalate {
		t.Errorf("expected [ESCALATE], got %v", emitter.actions)
	}
}

func TestApply_ConcurrentSameTransaction(t *testing.T) {
	svc := newTestService()
	id := flagPayment(t, svc, 100)

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _ = svc.Apply(context.Background(), id, ActionRequest{Action: "HOLD_ESCROW"})
		}()
	}
	wg.Wait()

	rec, err := svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	// Initial HOLD + n operator holds, none lost
	if len(rec.Escrow.Events) != n+1 {
		t.Errorf("expected %d events, got %d", n+1, len(rec.Escrow.Events))
	}
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

func TestListFlagged(t *testing.T) {
	svc := newTestService()

	_ = flagPayment(t, svc, 100)
	_ = flagPayment(t, svc, 200)
	_, _ = svc.Intake(context.Background(), AttemptRequest{Amount: 10, Message: "hi"})

	flagged, err := svc.ListFlagged(context.Background())
	if err != nil {
		t.Fatalf("ListFlagged failed: %v", err)
	}
	if len(flagged) != 2 {
		t.Errorf("expected 2 flagged transactions, got %d", len(flagged))
	}
}

func TestGetStats(t *testing.T) {
	svc := newTestService()

	id := flagPayment(t, svc, 300)
	_ = flagPayment(t, svc, 200)
	_, _ = svc.Intake(context.Background(), AttemptRequest{Amount: 10, Message: "hi"})

	if _, err := svc.Apply(context.Background(), id, ActionRequest{Action: "APPROVE"}); err != nil {
		t.Fatalf("APPROVE failed: %v", err)
	}

	stats, err := svc.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}

	if stats.ByStatus[StatusFlagged] != 1 {
		t.Errorf("expected 1 flagged, got %d", stats.ByStatus[StatusFlagged])
	}
	if stats.ByStatus[StatusApproved] != 2 {
		t.Errorf("expected 2 approved, got %d", stats.ByStatus[StatusApproved])
	}
	if stats.TotalHeld != 200 {
		t.Errorf("expected total held 200, got %v", stats.TotalHeld)
	}
	if stats.TotalReleased != 300 {
		t.Errorf("expected total released 300, got %v", stats.TotalReleased)
	}
}
