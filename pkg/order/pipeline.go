package order

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/clobexec/pkg/crypto"
	"github.com/uhyunpark/clobexec/pkg/metadata"
)

// ErrNotCached means the instrument was never warmed.
var ErrNotCached = errors.New("instrument metadata not cached")

// OrderSigner is the signing capability: it returns the signature over the
// order under the exchange domain selected by negRisk.
// *crypto.ExchangeSigner implements it.
type OrderSigner interface {
	SignOrder(order *crypto.Order, negRisk bool) ([]byte, error)
}

// Identity describes who signs and who funds.
type Identity struct {
	Signer        common.Address
	Funder        common.Address
	SignatureType crypto.SignatureType
	Owner         string // api key the order is submitted under
}

// Pipeline turns requests into signed, serialized orders. It holds no
// mutable state and performs no network activity.
type Pipeline struct {
	lookup   metadata.Lookup
	signer   OrderSigner
	identity Identity
	salt     func() (uint64, error)
}

// NewPipeline validates the identity. A zero Funder means the signer funds
// its own orders.
func NewPipeline(lookup metadata.Lookup, signer OrderSigner, id Identity) (*Pipeline, error) {
	if lookup == nil || signer == nil {
		return nil, fmt.Errorf("order pipeline needs a metadata lookup and a signer")
	}
	if id.Signer == (common.Address{}) {
		return nil, fmt.Errorf("order pipeline: zero signer address")
	}
	if id.Owner == "" {
		return nil, fmt.Errorf("order pipeline: empty owner")
	}
	if id.Funder == (common.Address{}) {
		id.Funder = id.Signer
	}
	return &Pipeline{lookup: lookup, signer: signer, identity: id, salt: crypto.GenerateSalt}, nil
}

// Build validates req against cached metadata and fills every order field.
func (p *Pipeline) Build(req Request) (*Unsigned, error) {
	if req.TokenID == nil {
		return nil, &BuildError{Field: "token_id", Err: errors.New("missing")}
	}
	if req.Type != GTC {
		return nil, &BuildError{Field: "order_type", Err: fmt.Errorf("unsupported %q", req.Type)}
	}
	if req.Side != Buy && req.Side != Sell {
		return nil, &BuildError{Field: "side", Err: fmt.Errorf("unknown side %d", req.Side)}
	}
	if !req.Price.IsPositive() {
		return nil, &BuildError{Field: "price", Err: fmt.Errorf("%s is not positive", req.Price)}
	}
	if !req.Size.IsPositive() {
		return nil, &BuildError{Field: "size", Err: fmt.Errorf("%s is not positive", req.Size)}
	}

	inst, ok := p.lookup.Get(req.TokenID)
	if !ok {
		return nil, &BuildError{Field: "token_id", Err: fmt.Errorf("%s: %w", req.TokenID.Dec(), ErrNotCached)}
	}

	rc, err := roundConfigFor(inst.TickSize)
	if err != nil {
		return nil, &BuildError{Field: "tick_size", Err: err}
	}
	if err := validatePrice(req.Price, inst.TickSize); err != nil {
		return nil, &BuildError{Field: "price", Err: err}
	}
	maker, taker, err := amounts(req.Side, req.Price, req.Size, rc)
	if err != nil {
		return nil, &BuildError{Field: "size", Err: err}
	}

	salt, err := p.salt()
	if err != nil {
		return nil, &BuildError{Field: "salt", Err: err}
	}

	return &Unsigned{
		Salt:          salt,
		Maker:         p.identity.Funder,
		Signer:        p.identity.Signer,
		TokenID:       req.TokenID.Clone(),
		MakerAmount:   maker,
		TakerAmount:   taker,
		FeeRateBps:    inst.FeeRateBps,
		Side:          req.Side,
		SignatureType: p.identity.SignatureType,
		Price:         req.Price,
		Size:          req.Size,
		Type:          req.Type,
		NegRisk:       inst.NegRisk,
	}, nil
}

// Sign calls the signing capability once.
func (p *Pipeline) Sign(u *Unsigned) (*Signed, error) {
	sig, err := p.signer.SignOrder(u.Typed(), u.NegRisk)
	if err != nil {
		return nil, &SigningError{Err: err}
	}
	return &Signed{Unsigned: *u, Signature: sig}, nil
}

// Encode produces the request body. The returned bytes are the only
// serialization of the order: they are both HMAC'd and transmitted.
func (p *Pipeline) Encode(s *Signed) ([]byte, error) {
	if s == nil || s.TokenID == nil || s.MakerAmount == nil || s.TakerAmount == nil {
		return nil, &BuildError{Field: "order", Err: errors.New("incomplete signed order")}
	}
	if len(s.Signature) != 65 {
		return nil, &BuildError{Field: "signature", Err: fmt.Errorf("got %d bytes, want 65", len(s.Signature))}
	}
	body, err := NewEnvelope(s, p.identity.Owner).Marshal()
	if err != nil {
		return nil, &BuildError{Field: "encoding", Err: err}
	}
	return body, nil
}
