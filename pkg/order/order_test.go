package order

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/clobexec/pkg/crypto"
	"github.com/uhyunpark/clobexec/pkg/metadata"
)

const apiKey = "11111111-2222-3333-4444-555555555555"

func testLookup(tick string, negRisk bool) metadata.Static {
	return metadata.Static{
		"123456": {
			TokenID:    uint256.NewInt(123456),
			TickSize:   decimal.RequireFromString(tick),
			NegRisk:    negRisk,
			FeeRateBps: 0,
		},
	}
}

func newTestPipeline(t *testing.T, lookup metadata.Lookup) (*Pipeline, *crypto.Signer) {
	t.Helper()
	signer, err := crypto.GenerateKey(137)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	xs, err := crypto.NewExchangeSigner(signer)
	if err != nil {
		t.Fatalf("NewExchangeSigner: %v", err)
	}
	p, err := NewPipeline(lookup, xs, Identity{
		Signer:        signer.Address(),
		SignatureType: crypto.SignatureEOA,
		Owner:         apiKey,
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p, signer
}

func TestParseRequest_DecimalRoundTrip(t *testing.T) {
	for _, s := range []string{"0.5", "0.50", "0.01", "0.999", "100", "12.345678901234567890", "0.1", "0.3"} {
		req, err := ParseRequest("1", s, s, "buy")
		if err != nil {
			t.Fatalf("ParseRequest(%s): %v", s, err)
		}
		again, err := decimal.NewFromString(req.Price.String())
		if err != nil {
			t.Fatalf("reparse %s: %v", req.Price, err)
		}
		if !again.Equal(req.Price) || !again.Equal(decimal.RequireFromString(s)) {
			t.Errorf("%s round-tripped to %s", s, again)
		}
	}
}

func TestParseRequest_Rejects(t *testing.T) {
	tests := []struct {
		name                     string
		token, price, size, side string
		field                    string
	}{
		{"token not a number", "abc", "0.5", "1", "BUY", "token_id"},
		{"token negative", "-1", "0.5", "1", "BUY", "token_id"},
		{"token too large", "115792089237316195423570985008687907853269984665640564039457584007913129639936", "0.5", "1", "BUY", "token_id"},
		{"price garbage", "1", "half", "1", "BUY", "price"},
		{"price zero", "1", "0", "1", "BUY", "price"},
		{"size negative", "1", "0.5", "-3", "BUY", "size"},
		{"side unknown", "1", "0.5", "1", "HOLD", "side"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest(tt.token, tt.price, tt.size, tt.side)
			var berr *BuildError
			if !errors.As(err, &berr) {
				t.Fatalf("err = %v, want *BuildError", err)
			}
			if berr.Field != tt.field {
				t.Errorf("field = %s, want %s", berr.Field, tt.field)
			}
		})
	}
}

func TestAmounts(t *testing.T) {
	tests := []struct {
		name         string
		side         Side
		tick         string
		price, size  string
		maker, taker int64
	}{
		{"buy whole", Buy, "0.01", "0.50", "100", 50_000_000, 100_000_000},
		{"sell whole", Sell, "0.01", "0.50", "100", 100_000_000, 50_000_000},
		{"buy size truncated", Buy, "0.01", "0.57", "10.555", 6_013_500, 10_550_000},
		{"buy fine tick", Buy, "0.001", "0.123", "3.33", 409_590, 3_330_000},
		{"sell coarse tick", Sell, "0.1", "0.3", "1.27", 1_270_000, 381_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, err := roundConfigFor(decimal.RequireFromString(tt.tick))
			if err != nil {
				t.Fatalf("roundConfigFor: %v", err)
			}
			maker, taker, err := amounts(tt.side, decimal.RequireFromString(tt.price), decimal.RequireFromString(tt.size), rc)
			if err != nil {
				t.Fatalf("amounts: %v", err)
			}
			if maker.Int64() != tt.maker || taker.Int64() != tt.taker {
				t.Errorf("maker/taker = %s/%s, want %d/%d", maker, taker, tt.maker, tt.taker)
			}
		})
	}
}

func TestRoundConfig(t *testing.T) {
	for tick, want := range map[string]roundConfig{
		"0.1":    {1, 2, 3},
		"0.01":   {2, 2, 4},
		"0.010":  {2, 2, 4},
		"0.001":  {3, 2, 5},
		"0.0001": {4, 2, 6},
	} {
		got, err := roundConfigFor(decimal.RequireFromString(tick))
		if err != nil || got != want {
			t.Errorf("tick %s: got %+v, %v", tick, got, err)
		}
	}
	if _, err := roundConfigFor(decimal.NewFromInt(1)); err == nil {
		t.Error("tick 1 should be rejected")
	}
}

func TestFitAmount(t *testing.T) {
	got := fitAmount(decimal.RequireFromString("0.12999999"), 4)
	if !got.Equal(decimal.RequireFromString("0.13")) {
		t.Errorf("fitAmount = %s, want 0.13", got)
	}
	got = fitAmount(decimal.RequireFromString("0.123456"), 4)
	if !got.Equal(decimal.RequireFromString("0.1234")) {
		t.Errorf("fitAmount = %s, want 0.1234", got)
	}
}

func TestBuild_ScenarioA(t *testing.T) {
	p, signer := newTestPipeline(t, testLookup("0.01", false))

	req, err := ParseRequest("123456", "0.50", "100", "BUY")
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	u, err := p.Build(req)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if u.Side != Buy || u.Type != GTC {
		t.Errorf("side/type = %v/%v", u.Side, u.Type)
	}
	if u.Price.String() != "0.5" || !u.Price.Equal(decimal.RequireFromString("0.50")) {
		t.Errorf("price = %s", u.Price)
	}
	if u.MakerAmount.Int64() != 50_000_000 || u.TakerAmount.Int64() != 100_000_000 {
		t.Errorf("amounts = %s/%s", u.MakerAmount, u.TakerAmount)
	}
	if u.Maker != signer.Address() || u.Signer != signer.Address() || u.Taker != (common.Address{}) {
		t.Errorf("maker/signer/taker = %s/%s/%s", u.Maker.Hex(), u.Signer.Hex(), u.Taker.Hex())
	}
	if u.Salt >= 1<<53 {
		t.Errorf("salt %d exceeds 2^53", u.Salt)
	}

	s, err := p.Sign(u)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	domain, _ := crypto.ExchangeDomain(137, false)
	got, err := crypto.NewEIP712Signer(domain).RecoverOrderSigner(s.Typed(), s.Signature)
	if err != nil || got != signer.Address() {
		t.Errorf("recovered %s, %v", got.Hex(), err)
	}
}

func TestBuild_Rejects(t *testing.T) {
	p, _ := newTestPipeline(t, testLookup("0.01", false))

	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{"off tick", req("123456", "0.505", "10"), "price"},
		{"price at one", req("123456", "1", "10"), "price"},
		{"below tick", req("123456", "0.001", "10"), "price"},
		{"size rounds to zero", req("123456", "0.5", "0.004"), "size"},
		{"uncached token", req("999", "0.5", "10"), "token_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Build(tt.req)
			var berr *BuildError
			if !errors.As(err, &berr) || berr.Field != tt.field {
				t.Errorf("err = %v, want BuildError on %s", err, tt.field)
			}
		})
	}

	r := req("999", "0.5", "10")
	if _, err := p.Build(r); !errors.Is(err, ErrNotCached) {
		t.Errorf("err = %v, want ErrNotCached", err)
	}

	r = req("123456", "0.5", "10")
	r.Type = "FOK"
	if _, err := p.Build(r); err == nil {
		t.Error("non-GTC order type accepted")
	}
}

type failingSigner struct{}

func (failingSigner) SignOrder(*crypto.Order, bool) ([]byte, error) {
	return nil, errors.New("hsm offline")
}

func TestSign_Failure(t *testing.T) {
	p, err := NewPipeline(testLookup("0.01", false), failingSigner{}, Identity{
		Signer: common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Owner:  apiKey,
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	u, err := p.Build(req("123456", "0.5", "10"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var serr *SigningError
	if _, err := p.Sign(u); !errors.As(err, &serr) {
		t.Errorf("err = %v, want *SigningError", err)
	}
}

func TestEncode_RejectsIncompleteOrder(t *testing.T) {
	p, _ := newTestPipeline(t, testLookup("0.01", false))
	u, err := p.Build(req("123456", "0.5", "10"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	tests := []struct {
		name  string
		in    *Signed
		field string
	}{
		{"nil", nil, "order"},
		{"no signature", &Signed{Unsigned: *u}, "signature"},
		{"short signature", &Signed{Unsigned: *u, Signature: []byte{1, 2, 3}}, "signature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Encode(tt.in)
			var berr *BuildError
			if !errors.As(err, &berr) {
				t.Fatalf("err = %v, want *BuildError", err)
			}
			if berr.Field != tt.field {
				t.Errorf("field = %s, want %s", berr.Field, tt.field)
			}
		})
	}
}

func TestEncode_WireShape(t *testing.T) {
	p, signer := newTestPipeline(t, testLookup("0.01", true))

	u, _ := p.Build(req("123456", "0.42", "5", Sell))
	s, err := p.Sign(u)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	body, err := p.Encode(s)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if raw["owner"] != apiKey || raw["orderType"] != "GTC" {
		t.Errorf("owner/orderType = %v/%v", raw["owner"], raw["orderType"])
	}
	wo := raw["order"].(map[string]any)
	if wo["side"] != "SELL" || wo["tokenId"] != "123456" || wo["makerAmount"] != "5000000" || wo["takerAmount"] != "2100000" {
		t.Errorf("order = %v", wo)
	}
	if _, ok := wo["salt"].(float64); !ok {
		t.Errorf("salt should be a JSON number, got %T", wo["salt"])
	}

	// encoding is a pure function of the signed order
	again, _ := p.Encode(s)
	if !bytes.Equal(body, again) {
		t.Error("Encode is not deterministic")
	}

	env, err := DecodeEnvelope(body)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	typed, sig, err := env.Order.Typed()
	if err != nil {
		t.Fatalf("Typed: %v", err)
	}
	if typed.MakerAmount.Cmp(big.NewInt(5_000_000)) != 0 || typed.Side != uint8(Sell) {
		t.Errorf("decoded order = %+v", typed)
	}
	domain, _ := crypto.ExchangeDomain(137, true)
	got, err := crypto.NewEIP712Signer(domain).RecoverOrderSigner(typed, sig)
	if err != nil || got != signer.Address() {
		t.Errorf("wire order does not verify: %s, %v", got.Hex(), err)
	}
}

func req(token, price, size string, side ...Side) Request {
	r := Request{
		TokenID: uint256.MustFromDecimal(token),
		Price:   decimal.RequireFromString(price),
		Size:    decimal.RequireFromString(size),
		Side:    Buy,
		Type:    GTC,
	}
	if len(side) > 0 {
		r.Side = side[0]
	}
	return r
}
