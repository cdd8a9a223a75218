// Package order builds, signs and serializes CTF exchange limit orders.
package order

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/clobexec/pkg/crypto"
)

// Side of an order.
type Side uint8

const (
	Buy  Side = 0
	Sell Side = 1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

// ParseSide accepts "buy" and "sell" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

// OrderType is the time-in-force sent with the order.
type OrderType string

// GTC (good-till-canceled) is the only type this client submits.
const GTC OrderType = "GTC"

// Request is a caller's intent to trade.
type Request struct {
	TokenID *uint256.Int
	Price   decimal.Decimal
	Size    decimal.Decimal
	Side    Side
	Type    OrderType
}

// ParseRequest validates raw inputs before any network activity. The token
// id is a base-10 256-bit integer; price and size are exact decimals.
func ParseRequest(tokenID, price, size, side string) (Request, error) {
	id, err := uint256.FromDecimal(strings.TrimSpace(tokenID))
	if err != nil {
		return Request{}, &BuildError{Field: "token_id", Err: err}
	}
	p, err := decimal.NewFromString(strings.TrimSpace(price))
	if err != nil {
		return Request{}, &BuildError{Field: "price", Err: err}
	}
	sz, err := decimal.NewFromString(strings.TrimSpace(size))
	if err != nil {
		return Request{}, &BuildError{Field: "size", Err: err}
	}
	sd, err := ParseSide(side)
	if err != nil {
		return Request{}, &BuildError{Field: "side", Err: err}
	}
	if !p.IsPositive() {
		return Request{}, &BuildError{Field: "price", Err: fmt.Errorf("%s is not positive", p)}
	}
	if !sz.IsPositive() {
		return Request{}, &BuildError{Field: "size", Err: fmt.Errorf("%s is not positive", sz)}
	}
	return Request{TokenID: id, Price: p, Size: sz, Side: sd, Type: GTC}, nil
}

// Unsigned is a fully populated order awaiting its signature.
type Unsigned struct {
	Salt          uint64
	Maker         common.Address
	Signer        common.Address
	Taker         common.Address
	TokenID       *uint256.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    uint64
	Nonce         uint64
	FeeRateBps    int64
	Side          Side
	SignatureType crypto.SignatureType

	// not part of the signed payload
	Price   decimal.Decimal
	Size    decimal.Decimal
	Type    OrderType
	NegRisk bool
}

// Typed converts to the EIP-712 order representation.
func (u *Unsigned) Typed() *crypto.Order {
	return &crypto.Order{
		Salt:          new(big.Int).SetUint64(u.Salt),
		Maker:         u.Maker,
		Signer:        u.Signer,
		Taker:         u.Taker,
		TokenID:       u.TokenID.ToBig(),
		MakerAmount:   new(big.Int).Set(u.MakerAmount),
		TakerAmount:   new(big.Int).Set(u.TakerAmount),
		Expiration:    new(big.Int).SetUint64(u.Expiration),
		Nonce:         new(big.Int).SetUint64(u.Nonce),
		FeeRateBps:    big.NewInt(u.FeeRateBps),
		Side:          uint8(u.Side),
		SignatureType: u.SignatureType,
	}
}

// Signed is an order with its signature attached.
type Signed struct {
	Unsigned
	Signature []byte
}

// BuildError rejects a request before signing.
type BuildError struct {
	Field string
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build order: %s: %v", e.Field, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// SigningError is a failure of the signing capability for one order.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("sign order: %v", e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }
