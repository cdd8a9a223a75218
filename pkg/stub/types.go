package stub

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market is an instrument the emulator knows about.
type Market struct {
	TokenID    string
	TickSize   decimal.Decimal
	NegRisk    bool
	FeeRateBps int64
}

// AcceptedOrder is an order that passed every check.
type AcceptedOrder struct {
	OrderID       string    `json:"orderID"`
	Owner         string    `json:"owner"`
	Maker         string    `json:"maker"`
	Signer        string    `json:"signer"`
	TokenID       string    `json:"tokenId"`
	Side          string    `json:"side"`
	MakerAmt      string    `json:"makerAmount"`
	TakerAmt      string    `json:"takerAmount"`
	AuthTimestamp string    `json:"authTimestamp"` // verified POLY-API-TIMESTAMP
	Body          []byte    `json:"-"`
	ReceivedAt    time.Time `json:"receivedAt"`
}

// Counters tracks requests per endpoint.
type Counters struct {
	Derive   int
	Metadata int
	Orders   int
	Rejected int
}

// OrderEvent is pushed to websocket clients for each accepted order.
type OrderEvent struct {
	Type  string        `json:"type"` // "order"
	Order AcceptedOrder `json:"order"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}
