package storage

import (
	"testing"
	"time"
)

func TestTransactionRoundTrip(t *testing.T) {
	store := NewTransactionStore(100, time.Minute)

	created := store.Create()
	if created.TransactionID == "" {
		t.Fatal("expected a generated transaction id")
	}

	got, ok := store.Get(created.TransactionID)
	if !ok {
		t.Fatal("expected the transaction to be found")
	}
	if got != created {
		t.Error("expected the stored transaction back")
	}
}

func TestTransactionEmptyIDIsAMiss(t *testing.T) {
	store := NewTransactionStore(100, time.Minute)
	store.Create()

	if _, ok := store.Get(""); ok {
		t.Error("empty id must never resolve to a transaction")
	}
}

func TestTransactionRemoveIsFinal(t *testing.T) {
	store := NewTransactionStore(100, time.Minute)

	created := store.Create()
	store.Remove(created)

	if _, ok := store.Get(created.TransactionID); ok {
		t.Error("expected the transaction to be gone after removal")
	}
	if store.Len() != 0 {
		t.Errorf("expected 0 in-flight transactions, got %d", store.Len())
	}
}

func TestTransactionExpiresAfterIdleness(t *testing.T) {
	store := NewTransactionStore(100, 20*time.Millisecond)

	created := store.Create()
	time.Sleep(60 * time.Millisecond)

	if _, ok := store.Get(created.TransactionID); ok {
		t.Error("expected the idle transaction to have been evicted")
	}
}
