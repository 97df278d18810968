// Package store keeps the latest outcome per item for one run.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vietddude/tiebasign/internal/core/domain"
)

var (
	// ErrDuplicateRecord means an initial outcome was recorded twice for one item.
	ErrDuplicateRecord = errors.New("item already has a record")
	// ErrUnknownItem means a retry outcome arrived for an item with no initial record.
	ErrUnknownItem = errors.New("item has no record")
)

// ResultStore holds exactly one record per item, keyed by item ID.
type ResultStore struct {
	mu      sync.RWMutex
	records map[string]domain.ResultRecord
}

// New creates an empty store.
func New() *ResultStore {
	return &ResultStore{records: make(map[string]domain.ResultRecord)}
}

// RecordInitial stores the first outcome for an item.
func (s *ResultStore) RecordInitial(item domain.Item, outcome domain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[item.ID]; ok {
		return fmt.Errorf("record initial %s: %w", item.ID, ErrDuplicateRecord)
	}
	s.records[item.ID] = domain.ResultRecord{Item: item, Outcome: outcome}
	return nil
}

// RecordRetry applies the outcome of retry round `round`. A succeeded outcome
// replaces the stored failure; a failed one leaves the original record as is.
// It reports whether the record was replaced.
func (s *ResultStore) RecordRetry(item domain.Item, outcome domain.Outcome, round int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[item.ID]
	if !ok {
		return false, fmt.Errorf("record retry %s: %w", item.ID, ErrUnknownItem)
	}
	if !outcome.Category.Succeeded() {
		return false, nil
	}

	s.records[item.ID] = domain.ResultRecord{
		Item:       existing.Item,
		Outcome:    outcome,
		Retried:    true,
		RetryRound: round,
	}
	return true, nil
}

// Snapshot returns a copy of all records ordered by item index.
func (s *ResultStore) Snapshot() []domain.ResultRecord {
	s.mu.RLock()
	out := make([]domain.ResultRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Item.Index != out[j].Item.Index {
			return out[i].Item.Index < out[j].Item.Index
		}
		return out[i].Item.ID < out[j].Item.ID
	})
	return out
}
