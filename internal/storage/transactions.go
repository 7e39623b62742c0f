package storage

import (
	"time"

	"github.com/google/uuid"
	expirable "github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/identio/identio-server-sub001/internal/logging"
	"github.com/identio/identio-server-sub001/internal/model"
)

// TransactionStore is a bounded cache of in-flight transactions with
// access-refreshed idle expiry.
type TransactionStore struct {
	lru *expirable.LRU[string, *model.TransactionData]
}

// NewTransactionStore creates a transaction store holding at most maxEntries
// records, each evicted after ttl of idleness.
func NewTransactionStore(maxEntries int, ttl time.Duration) *TransactionStore {
	if maxEntries <= 0 {
		maxEntries = 100000
	}
	return &TransactionStore{
		lru: expirable.NewLRU[string, *model.TransactionData](maxEntries, nil, ttl),
	}
}

// Create generates a fresh transaction under a new identifier.
func (s *TransactionStore) Create() *model.TransactionData {
	data := &model.TransactionData{
		TransactionID: uuid.NewString(),
	}
	s.lru.Add(data.TransactionID, data)

	logging.Debug("Created new transaction", zap.String("transaction_id", data.TransactionID))

	return data
}

// Get returns the transaction for the given id, refreshing its idle timer.
func (s *TransactionStore) Get(transactionID string) (*model.TransactionData, bool) {
	if transactionID == "" {
		return nil, false
	}
	data, ok := s.lru.Get(transactionID)
	if !ok {
		return nil, false
	}
	s.lru.Add(transactionID, data)
	return data, true
}

// Remove destroys a transaction. Transactions are single-use: they are
// removed on reaching RESPONSE and on any security-invariant violation.
func (s *TransactionStore) Remove(data *model.TransactionData) {
	logging.Debug("Destroyed transaction", zap.String("transaction_id", data.TransactionID))
	s.lru.Remove(data.TransactionID)
}

// Len returns the number of in-flight transactions.
func (s *TransactionStore) Len() int {
	return s.lru.Len()
}
