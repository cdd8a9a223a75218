package order

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/clobexec/pkg/crypto"
)

// Envelope is the JSON body of an order POST.
type Envelope struct {
	Order     WireOrder `json:"order"`
	Owner     string    `json:"owner"`
	OrderType OrderType `json:"orderType"`
}

// WireOrder carries the order fields as the exchange expects them: amounts
// as decimal strings, the salt as a JSON number below 2^53.
type WireOrder struct {
	Salt          uint64 `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// NewEnvelope wraps a signed order for submission under owner.
func NewEnvelope(s *Signed, owner string) *Envelope {
	return &Envelope{
		Order: WireOrder{
			Salt:          s.Salt,
			Maker:         s.Maker.Hex(),
			Signer:        s.Signer.Hex(),
			Taker:         s.Taker.Hex(),
			TokenID:       s.TokenID.Dec(),
			MakerAmount:   s.MakerAmount.String(),
			TakerAmount:   s.TakerAmount.String(),
			Expiration:    strconv.FormatUint(s.Expiration, 10),
			Nonce:         strconv.FormatUint(s.Nonce, 10),
			FeeRateBps:    strconv.FormatInt(s.FeeRateBps, 10),
			Side:          s.Side.String(),
			SignatureType: int(s.SignatureType),
			Signature:     hexutil.Encode(s.Signature),
		},
		Owner:     owner,
		OrderType: s.Type,
	}
}

func (e *Envelope) Marshal() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode order: %w", err)
	}
	return b, nil
}

// DecodeEnvelope parses an order POST body.
func DecodeEnvelope(body []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &e, nil
}

// Typed reconstructs the EIP-712 order and its signature bytes.
func (w WireOrder) Typed() (*crypto.Order, []byte, error) {
	side, err := ParseSide(w.Side)
	if err != nil {
		return nil, nil, err
	}
	if w.SignatureType < 0 || w.SignatureType > 255 {
		return nil, nil, fmt.Errorf("signatureType %d out of range", w.SignatureType)
	}
	for name, addr := range map[string]string{"maker": w.Maker, "signer": w.Signer, "taker": w.Taker} {
		if !common.IsHexAddress(addr) {
			return nil, nil, fmt.Errorf("%s: invalid address %q", name, addr)
		}
	}

	ints := make(map[string]*big.Int, 6)
	for name, v := range map[string]string{
		"tokenId": w.TokenID, "makerAmount": w.MakerAmount, "takerAmount": w.TakerAmount,
		"expiration": w.Expiration, "nonce": w.Nonce, "feeRateBps": w.FeeRateBps,
	} {
		n, ok := new(big.Int).SetString(v, 10)
		if !ok || n.Sign() < 0 {
			return nil, nil, fmt.Errorf("%s: invalid integer %q", name, v)
		}
		ints[name] = n
	}

	sig, err := hexutil.Decode(w.Signature)
	if err != nil {
		return nil, nil, fmt.Errorf("signature: %w", err)
	}

	return &crypto.Order{
		Salt:          new(big.Int).SetUint64(w.Salt),
		Maker:         common.HexToAddress(w.Maker),
		Signer:        common.HexToAddress(w.Signer),
		Taker:         common.HexToAddress(w.Taker),
		TokenID:       ints["tokenId"],
		MakerAmount:   ints["makerAmount"],
		TakerAmount:   ints["takerAmount"],
		Expiration:    ints["expiration"],
		Nonce:         ints["nonce"],
		FeeRateBps:    ints["feeRateBps"],
		Side:          uint8(side),
		SignatureType: crypto.SignatureType(w.SignatureType),
	}, sig, nil
}
