package clob

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Response is a completed HTTP exchange.
type Response struct {
	Status int
	Body   []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.Status >= 200 && r.Status <= 299 }

// StatusError is a non-2xx answer to a GET.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

type tickSizeResponse struct {
	MinimumTickSize decimal.Decimal `json:"minimum_tick_size"`
}

type negRiskResponse struct {
	NegRisk bool `json:"neg_risk"`
}

type feeRateResponse struct {
	BaseFee int64 `json:"base_fee"`
}

// OrderAck is the success payload of an order POST.
type OrderAck struct {
	Success  bool   `json:"success"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
	ErrorMsg string `json:"errorMsg,omitempty"`
}

// TickSizeBody, NegRiskBody and FeeRateBody build the metadata payloads the
// emulator serves.
func TickSizeBody(tick decimal.Decimal) any {
	return struct {
		MinimumTickSize float64 `json:"minimum_tick_size"`
	}{tick.InexactFloat64()}
}

func NegRiskBody(negRisk bool) any { return negRiskResponse{NegRisk: negRisk} }

func FeeRateBody(bps int64) any { return feeRateResponse{BaseFee: bps} }
