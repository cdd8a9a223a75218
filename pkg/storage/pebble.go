package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// PebbleJournal stores receipts on disk so runs can be compared afterwards.
type PebbleJournal struct {
	db *pebble.DB
}

func NewPebbleJournal(path string) (*PebbleJournal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &PebbleJournal{db: db}, nil
}

func (j *PebbleJournal) Close() error { return j.db.Close() }

// Append writes without fsync; losing the tail of a crashed run is acceptable.
func (j *PebbleJournal) Append(r Receipt) error {
	if r.RunID == "" {
		return fmt.Errorf("receipt without run id")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}
	if err := j.db.Set(receiptKey(r.RunID, r.Index), data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save receipt: %w", err)
	}
	return nil
}

// Receipts loads a run's receipts in index order.
func (j *PebbleJournal) Receipts(runID string) ([]Receipt, error) {
	prefix := receiptPrefix(runID)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var out []Receipt
	for iter.First(); iter.Valid(); iter.Next() {
		var r Receipt
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			return nil, fmt.Errorf("corrupt receipt at %x: %w", iter.Key(), err)
		}
		out = append(out, r)
	}
	return out, iter.Error()
}

// Receipt loads a single receipt.
func (j *PebbleJournal) Receipt(runID string, index int) (Receipt, bool, error) {
	val, closer, err := j.db.Get(receiptKey(runID, index))
	if errors.Is(err, pebble.ErrNotFound) {
		return Receipt{}, false, nil
	}
	if err != nil {
		return Receipt{}, false, fmt.Errorf("failed to get receipt: %w", err)
	}
	defer closer.Close()

	var r Receipt
	if err := json.Unmarshal(val, &r); err != nil {
		return Receipt{}, false, fmt.Errorf("failed to unmarshal receipt: %w", err)
	}
	return r, true, nil
}

var _ Journal = (*PebbleJournal)(nil)
