// Package submit authenticates and posts serialized orders.
package submit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/clobexec/pkg/clob"
)

// Poster sends a request body. *clob.Client implements it.
type Poster interface {
	Post(ctx context.Context, path string, header http.Header, body []byte) (*clob.Response, error)
}

// HeaderSource computes authentication headers over exact body bytes.
// *auth.HeaderSigner implements it.
type HeaderSource interface {
	Headers(method, path string, body []byte) (http.Header, error)
}

// FailureKind separates rejections that need different fixes.
type FailureKind string

const (
	KindAuth     FailureKind = "auth"
	KindBusiness FailureKind = "business"
)

// Result is an accepted order.
type Result struct {
	Status  int
	OrderID string
	Body    []byte
	Post    time.Duration
}

// Rejection is a non-2xx answer. Body is the exchange's payload verbatim.
type Rejection struct {
	Status int
	Body   []byte
	Kind   FailureKind
	Post   time.Duration
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("exchange rejected order (%s): status %d: %s", r.Kind, r.Status, r.Body)
}

// TransportError is a failure to complete the HTTP exchange.
type TransportError struct {
	Err  error
	Post time.Duration
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Submitter posts one order at a time.
type Submitter struct {
	poster  Poster
	headers HeaderSource
	path    string
	logger  *zap.Logger
}

// New returns a Submitter posting to path (default "/orders").
func New(poster Poster, headers HeaderSource, path string, logger *zap.Logger) *Submitter {
	if path == "" {
		path = clob.DefaultOrderPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{poster: poster, headers: headers, path: path, logger: logger}
}

// Path returns the order endpoint path.
func (s *Submitter) Path() string { return s.path }

// Submit authenticates body and posts exactly those bytes. Post covers the
// HTTP round trip only, not header computation.
func (s *Submitter) Submit(ctx context.Context, body []byte) (*Result, error) {
	h, err := s.headers.Headers(http.MethodPost, s.path, body)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := s.poster.Post(ctx, s.path, h, body)
	elapsed := time.Since(start)
	if err != nil {
		return nil, &TransportError{Err: err, Post: elapsed}
	}

	if !resp.OK() {
		rej := &Rejection{Status: resp.Status, Body: resp.Body, Kind: classifyRejection(resp.Status, resp.Body), Post: elapsed}
		s.logger.Warn("order_rejected",
			zap.Int("status", rej.Status),
			zap.String("kind", string(rej.Kind)),
			zap.ByteString("body", rej.Body),
		)
		return nil, rej
	}

	// a 2xx without a usable ack still counts as accepted
	var ack clob.OrderAck
	if err := json.Unmarshal(resp.Body, &ack); err != nil {
		s.logger.Warn("order_ack_unparsable",
			zap.Int("status", resp.Status),
			zap.Error(err),
			zap.ByteString("body", resp.Body),
		)
	} else if ack.OrderID == "" {
		s.logger.Warn("order_ack_missing_id",
			zap.Int("status", resp.Status),
			zap.ByteString("body", resp.Body),
		)
	}

	return &Result{Status: resp.Status, OrderID: ack.OrderID, Body: resp.Body, Post: elapsed}, nil
}

var authMarkers = []string{"signature", "api key", "apikey", "unauthorized", "timestamp", "passphrase", "credential"}

func classifyRejection(status int, body []byte) FailureKind {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return KindAuth
	}
	lower := strings.ToLower(string(body))
	for _, m := range authMarkers {
		if strings.Contains(lower, m) {
			return KindAuth
		}
	}
	return KindBusiness
}
