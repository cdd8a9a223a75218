package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/uhyunpark/clobexec/pkg/crypto"
	"github.com/uhyunpark/clobexec/pkg/util"
)

const (
	testSecret     = "dGVzdC1zZWNyZXQtMDEyMzQ1Njc4OQ=="
	testPassphrase = "pass-phrase-value"
	testBody       = `{"a":1}`
)

func testCreds() Credentials {
	return Credentials{
		APIKey:     "11111111-2222-3333-4444-555555555555",
		Secret:     NewSecret(testSecret),
		Passphrase: NewSecret(testPassphrase),
	}
}

func TestHeaderSigner_KnownVector(t *testing.T) {
	tests := []struct {
		mode KeyMode
		want string
	}{
		{KeyDecoded, "Ds6pgDPxjr5UHfDYP7JbiHIZZL6zutrjhhql1asOLuw="},
		{KeyRaw, "U6J32rebp23hlqXJGNVS9hdZN47Xbn1+Rd0a8YSiiVg="},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			s, err := NewHeaderSigner(testCreds(), crypto.SignatureEOA, tt.mode, nil)
			if err != nil {
				t.Fatalf("NewHeaderSigner: %v", err)
			}
			if got := s.Sign("1700000000000", "POST", "/orders", []byte(testBody)); got != tt.want {
				t.Errorf("signature = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHeaderSigner_Deterministic(t *testing.T) {
	s, _ := NewHeaderSigner(testCreds(), crypto.SignatureEOA, KeyDecoded, nil)

	a := s.Sign("1700000000000", "POST", "/orders", []byte(testBody))
	b := s.Sign("1700000000000", "POST", "/orders", []byte(testBody))
	if a != b {
		t.Fatalf("same inputs produced %s and %s", a, b)
	}

	variants := map[string]string{
		"timestamp": s.Sign("1700000000001", "POST", "/orders", []byte(testBody)),
		"method":    s.Sign("1700000000000", "GET", "/orders", []byte(testBody)),
		"path":      s.Sign("1700000000000", "POST", "/order", []byte(testBody)),
		"body":      s.Sign("1700000000000", "POST", "/orders", []byte(`{"a":2}`)),
	}
	for field, sig := range variants {
		if sig == a {
			t.Errorf("changing %s did not change the signature", field)
		}
	}
}

func TestHeaderSigner_Headers(t *testing.T) {
	clock := util.FixedClock{T: time.UnixMilli(1700000000123)}
	s, err := NewHeaderSigner(testCreds(), crypto.SignatureGnosisSafe, KeyDecoded, clock)
	if err != nil {
		t.Fatalf("NewHeaderSigner: %v", err)
	}

	h, err := s.Headers("POST", "/orders", []byte(testBody))
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}

	want := map[string]string{
		HeaderAPIKey:        testCreds().APIKey,
		HeaderTimestamp:     "1700000000123",
		HeaderPassphrase:    testPassphrase,
		HeaderSignatureType: "GnosisSafe",
		HeaderSignature:     s.Sign("1700000000123", "POST", "/orders", []byte(testBody)),
		"Content-Type":      "application/json",
	}
	for k, v := range want {
		if got := h.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestHeaderSigner_FreshTimestampPerCall(t *testing.T) {
	clock := util.NewStepClock(time.UnixMilli(1700000000000), 250*time.Millisecond)
	s, err := NewHeaderSigner(testCreds(), crypto.SignatureEOA, KeyDecoded, clock)
	if err != nil {
		t.Fatalf("NewHeaderSigner: %v", err)
	}

	first, err := s.Headers("POST", "/orders", []byte(testBody))
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}
	second, err := s.Headers("POST", "/orders", []byte(testBody))
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}

	if got := first.Get(HeaderTimestamp); got != "1700000000000" {
		t.Errorf("first timestamp = %s, want 1700000000000", got)
	}
	if got := second.Get(HeaderTimestamp); got != "1700000000250" {
		t.Errorf("second timestamp = %s, want 1700000000250", got)
	}
	if first.Get(HeaderSignature) == second.Get(HeaderSignature) {
		t.Error("signature reused across requests")
	}
	if want := s.Sign("1700000000250", "POST", "/orders", []byte(testBody)); second.Get(HeaderSignature) != want {
		t.Errorf("second signature = %s, want %s", second.Get(HeaderSignature), want)
	}
}

func TestHeaderSigner_RejectsBadInput(t *testing.T) {
	s, _ := NewHeaderSigner(testCreds(), crypto.SignatureEOA, KeyDecoded, nil)

	if _, err := s.Headers("POST", "https://clob.example/orders", nil); err == nil {
		t.Error("expected error for absolute URL as path")
	}
	if _, err := s.Headers("", "/orders", nil); err == nil {
		t.Error("expected error for empty method")
	}

	bad := testCreds()
	bad.Secret = NewSecret("not+base64/url!!")
	_, err := NewHeaderSigner(bad, crypto.SignatureEOA, KeyDecoded, nil)
	var herr *HeaderError
	if !errors.As(err, &herr) {
		t.Fatalf("err = %v, want *HeaderError", err)
	}
	if strings.Contains(err.Error(), "not+base64/url!!") {
		t.Errorf("error leaks secret: %v", err)
	}

	bad = testCreds()
	bad.Passphrase = NewSecret("line\r\nbreak")
	if _, err := NewHeaderSigner(bad, crypto.SignatureEOA, KeyDecoded, nil); err == nil {
		t.Error("expected error for passphrase with CRLF")
	}
}

func TestDecodeKey_PaddingTolerated(t *testing.T) {
	padded, err := DecodeKey(NewSecret(testSecret), KeyDecoded)
	if err != nil {
		t.Fatalf("padded: %v", err)
	}
	bare, err := DecodeKey(NewSecret(strings.TrimRight(testSecret, "=")), KeyDecoded)
	if err != nil {
		t.Fatalf("unpadded: %v", err)
	}
	if string(padded) != string(bare) || string(bare) != "test-secret-0123456789" {
		t.Errorf("decoded %q and %q", padded, bare)
	}
}

func TestParseKeyMode(t *testing.T) {
	for in, want := range map[string]KeyMode{"": KeyDecoded, "decoded": KeyDecoded, "RAW": KeyRaw} {
		got, err := ParseKeyMode(in)
		if err != nil || got != want {
			t.Errorf("ParseKeyMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseKeyMode("hex"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestSecret_Redacted(t *testing.T) {
	creds := testCreds()

	renderings := []string{
		fmt.Sprintf("%v", creds),
		fmt.Sprintf("%+v", creds),
		fmt.Sprintf("%#v", creds),
		fmt.Sprint(creds.Secret),
	}
	js, err := json.Marshal(creds)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	renderings = append(renderings, string(js))

	for _, r := range renderings {
		if strings.Contains(r, testSecret) || strings.Contains(r, testPassphrase) {
			t.Errorf("secret material rendered: %s", r)
		}
	}
	if creds.Secret.Expose() != testSecret {
		t.Error("Expose must return the raw value")
	}
}

func TestHeaderSigner_Redacted(t *testing.T) {
	for _, mode := range []KeyMode{KeyDecoded, KeyRaw} {
		s, err := NewHeaderSigner(testCreds(), crypto.SignatureEOA, mode, nil)
		if err != nil {
			t.Fatalf("NewHeaderSigner: %v", err)
		}
		key, _ := DecodeKey(NewSecret(testSecret), mode)

		core, logs := observer.New(zapcore.InfoLevel)
		zap.New(core).Info("signer", zap.Any("ptr", s), zap.Any("value", *s))
		entries := logs.All()
		if len(entries) != 1 {
			t.Fatalf("logged %d entries", len(entries))
		}

		renderings := []string{
			fmt.Sprintf("%v", s),
			fmt.Sprintf("%+v", s),
			fmt.Sprintf("%#v", s),
			fmt.Sprintf("%+v", *s),
			fmt.Sprintf("%v", entries[0].ContextMap()),
		}
		for _, r := range renderings {
			if strings.Contains(r, testPassphrase) || strings.Contains(r, testSecret) ||
				strings.Contains(r, string(key)) || strings.Contains(r, fmt.Sprint(key)) {
				t.Errorf("%s: secret material rendered: %s", mode, r)
			}
			if strings.Contains(r, testCreds().APIKey) {
				t.Errorf("%s: full api key rendered: %s", mode, r)
			}
		}
	}
}

func TestCredentials_UnmarshalJSON(t *testing.T) {
	var c Credentials
	raw := `{"apiKey":"k-123","secret":"` + testSecret + `","passphrase":"p"}`
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.APIKey != "k-123" || c.Secret.Expose() != testSecret || c.Passphrase.Expose() != "p" {
		t.Errorf("decoded %#v", c)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

type fakeDeriver struct {
	calls int
	creds Credentials
	err   error
}

func (f *fakeDeriver) DeriveAPIKey(context.Context, *crypto.Signer) (Credentials, error) {
	f.calls++
	return f.creds, f.err
}

func TestCredentialStore_SingleHandshake(t *testing.T) {
	signer, _ := crypto.GenerateKey(137)
	d := &fakeDeriver{creds: testCreds()}

	store, err := NewCredentialStore(context.Background(), d, signer, nil)
	if err != nil {
		t.Fatalf("NewCredentialStore: %v", err)
	}
	for i := 0; i < 5; i++ {
		_ = store.Credentials()
	}
	if d.calls != 1 {
		t.Errorf("derive calls = %d, want 1", d.calls)
	}
	if store.Address() != signer.Address().Hex() {
		t.Errorf("address = %s", store.Address())
	}
}

func TestCredentialStore_Failure(t *testing.T) {
	signer, _ := crypto.GenerateKey(137)
	cause := errors.New("status 401")

	_, err := NewCredentialStore(context.Background(), &fakeDeriver{err: cause}, signer, nil)
	var derr *CredentialDerivationError
	if !errors.As(err, &derr) {
		t.Fatalf("err = %v, want *CredentialDerivationError", err)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not wrapped")
	}

	// incomplete credentials are a derivation failure too
	partial := testCreds()
	partial.Passphrase = Secret{}
	if _, err := NewCredentialStore(context.Background(), &fakeDeriver{creds: partial}, signer, nil); !errors.As(err, &derr) {
		t.Errorf("err = %v, want *CredentialDerivationError", err)
	}
}

func TestL1Headers(t *testing.T) {
	signer, _ := crypto.GenerateKey(137)
	clock := util.FixedClock{T: time.Unix(1700000000, 0)}

	h, err := L1Headers(signer, clock, 0)
	if err != nil {
		t.Fatalf("L1Headers: %v", err)
	}
	if h.Get(HeaderL1Address) != signer.Address().Hex() {
		t.Errorf("address = %s", h.Get(HeaderL1Address))
	}
	if h.Get(HeaderL1Timestamp) != "1700000000" || h.Get(HeaderL1Nonce) != "0" {
		t.Errorf("timestamp/nonce = %s/%s", h.Get(HeaderL1Timestamp), h.Get(HeaderL1Nonce))
	}

	sig := h.Get(HeaderL1Signature)
	if !strings.HasPrefix(sig, "0x") || len(sig) != 132 {
		t.Errorf("signature = %q", sig)
	}
}
