// Package storage journals the outcome of every submitted order.
package storage

import (
	"errors"
	"time"
)

// ErrClosed is returned by a journal after Close.
var ErrClosed = errors.New("journal closed")

// Receipt records one iteration of the submit loop.
type Receipt struct {
	RunID   string    `json:"run_id"`
	Index   int       `json:"index"`
	At      time.Time `json:"at"`
	TokenID string    `json:"token_id"`
	Side    string    `json:"side"`
	Price   string    `json:"price"`
	Size    string    `json:"size"`

	Status  int    `json:"status,omitempty"`
	OrderID string `json:"order_id,omitempty"`
	Kind    string `json:"kind,omitempty"` // failure kind; empty on success
	Error   string `json:"error,omitempty"`

	BodySHA256 string        `json:"body_sha256,omitempty"`
	Build      time.Duration `json:"build_ns"`
	Sign       time.Duration `json:"sign_ns"`
	Post       time.Duration `json:"post_ns"`
	Total      time.Duration `json:"total_ns"`
}

// Accepted reports whether the exchange took the order.
func (r Receipt) Accepted() bool { return r.Kind == "" && r.Status >= 200 && r.Status <= 299 }

// Journal persists receipts in index order per run.
type Journal interface {
	Append(r Receipt) error
	Receipts(runID string) ([]Receipt, error)
	Close() error
}
