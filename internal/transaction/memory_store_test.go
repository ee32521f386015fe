package transaction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mbd888/fraudops/internal/escrow"
)

func testRecord(id string, status Status) *Record {
	return &Record{
		ID:        id,
		Customer:  DefaultCustomer,
		Phone:     DefaultPhone,
		Amount:    100,
		Currency:  DefaultCurrency,
		Method:    DefaultMethod,
		Status:    status,
		CreatedAt: time.Now(),
	}
}

func TestMemoryStore_CreateGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := testRecord("txn_1", StatusFlagged)
	rec.Escrow = escrow.NewHeld(100)

	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, "txn_1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != "txn_1" || got.Status != StatusFlagged {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.Escrow == nil || got.Escrow.HeldAmount != 100 {
		t.Errorf("expected escrow held 100, got %+v", got.Escrow)
	}
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "txn_missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_UpdateNotFound(t *testing.T) {
	store := NewMemoryStore()

	err := store.Update(context.Background(), testRecord("txn_missing", StatusApproved))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_Update(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := testRecord("txn_1", StatusFlagged)
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	rec.Status = StatusApproved
	if err := store.Update(ctx, rec); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := store.Get(ctx, "txn_1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusApproved {
		t.Errorf("expected APPROVED, got %s", got.Status)
	}
}

func TestMemoryStore_ListByStatus(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_ = store.Create(ctx, testRecord("txn_1", StatusFlagged))
	_ = store.Create(ctx, testRecord("txn_2", StatusApproved))
	_ = store.Create(ctx, testRecord("txn_3", StatusFlagged))

	flagged, err := store.ListByStatus(ctx, StatusFlagged)
	if err != nil {
		t.Fatalf("ListByStatus failed: %v", err)
	}
	if len(flagged) != 2 {
		t.Errorf("expected 2 flagged records, got %d", len(flagged))
	}

	rejected, err := store.ListByStatus(ctx, StatusRejected)
	if err != nil {
		t.Fatalf("ListByStatus failed: %v", err)
	}
	if rejected == nil {
		t.Error("expected non-nil empty slice")
	}
	if len(rejected) != 0 {
		t.Errorf("expected 0 rejected records, got %d", len(rejected))
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := testRecord("txn_1", StatusFlagged)
	rec.Escrow = escrow.NewHeld(100)
	_ = store.Create(ctx, rec)

	got, _ := store.Get(ctx, "txn_1")
	got.Status = StatusRejected
	got.Escrow.HeldAmount = 0

	again, _ := store.Get(ctx, "txn_1")
	if again.Status != StatusFlagged {
		t.Error("mutating a returned record should not affect the store")
	}
	if again.Escrow.HeldAmount != 100 {
		t.Error("mutating a returned escrow ledger should not affect the store")
	}
}
