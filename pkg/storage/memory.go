package storage

import (
	"fmt"
	"sort"
	"sync"
)

// MemJournal keeps receipts for the life of the process.
type MemJournal struct {
	mu     sync.Mutex
	runs   map[string][]Receipt
	closed bool
}

func NewMemJournal() *MemJournal {
	return &MemJournal{runs: make(map[string][]Receipt)}
}

func (j *MemJournal) Append(r Receipt) error {
	if r.RunID == "" {
		return fmt.Errorf("receipt without run id")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	j.runs[r.RunID] = append(j.runs[r.RunID], r)
	return nil
}

func (j *MemJournal) Receipts(runID string) ([]Receipt, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := append([]Receipt(nil), j.runs[runID]...)
	sort.SliceStable(out, func(a, b int) bool { return out[a].Index < out[b].Index })
	return out, nil
}

func (j *MemJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed = true
	return nil
}

var _ Journal = (*MemJournal)(nil)
