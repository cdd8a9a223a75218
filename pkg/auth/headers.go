package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/uhyunpark/clobexec/pkg/crypto"
	"github.com/uhyunpark/clobexec/pkg/util"
)

// L2 header names attached to every private request.
const (
	HeaderAPIKey        = "POLY-API-KEY"
	HeaderSignature     = "POLY-API-SIGNATURE"
	HeaderTimestamp     = "POLY-API-TIMESTAMP"
	HeaderPassphrase    = "POLY-API-PASSPHRASE"
	HeaderSignatureType = "POLY-API-SIGNATURE-TYPE"
)

// KeyMode selects how the API secret becomes the HMAC key.
type KeyMode int

const (
	// KeyDecoded base64url-decodes the secret (padding tolerated).
	KeyDecoded KeyMode = iota
	// KeyRaw uses the secret string's bytes unchanged.
	KeyRaw
)

func (m KeyMode) String() string {
	if m == KeyRaw {
		return "raw"
	}
	return "decoded"
}

// ParseKeyMode accepts "decoded" (default for "") and "raw".
func ParseKeyMode(s string) (KeyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "decoded", "base64":
		return KeyDecoded, nil
	case "raw":
		return KeyRaw, nil
	default:
		return KeyDecoded, fmt.Errorf("unknown hmac key mode %q", s)
	}
}

// HeaderError reports a credential or header value that cannot be used.
type HeaderError struct {
	Field string
	Err   error
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("auth header %s: %v", e.Field, e.Err)
}

func (e *HeaderError) Unwrap() error { return e.Err }

// DecodeKey turns an API secret into HMAC key bytes under mode.
func DecodeKey(secret Secret, mode KeyMode) ([]byte, error) {
	raw := secret.Expose()
	if raw == "" {
		return nil, &HeaderError{Field: "secret", Err: fmt.Errorf("empty")}
	}
	if mode == KeyRaw {
		return []byte(raw), nil
	}
	key, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(raw), "="))
	if err != nil {
		// base64 errors only carry an offset, never the input
		return nil, &HeaderError{Field: "secret", Err: fmt.Errorf("not url-safe base64: %w", err)}
	}
	return key, nil
}

// ComputeSignature returns base64(HMAC-SHA256(key, timestamp||method||path||body)).
func ComputeSignature(key []byte, timestamp, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(timestamp))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// HeaderSigner computes L2 authentication headers. Secret material stays
// wrapped until a signature or header value is produced; every call reads
// the clock afresh.
type HeaderSigner struct {
	apiKey     string
	passphrase Secret
	secret     Secret
	mode       KeyMode
	sigType    string
	clock      util.Clock
}

// NewHeaderSigner validates creds, including the secret's encoding under mode.
func NewHeaderSigner(creds Credentials, sigType crypto.SignatureType, mode KeyMode, clock util.Clock) (*HeaderSigner, error) {
	if clock == nil {
		clock = util.RealClock{}
	}
	if err := checkHeaderValue("api key", creds.APIKey); err != nil {
		return nil, err
	}
	if err := checkHeaderValue("passphrase", creds.Passphrase.Expose()); err != nil {
		return nil, err
	}
	if _, err := DecodeKey(creds.Secret, mode); err != nil {
		return nil, err
	}
	return &HeaderSigner{
		apiKey:     creds.APIKey,
		passphrase: creds.Passphrase,
		secret:     creds.Secret,
		mode:       mode,
		sigType:    sigType.String(),
		clock:      clock,
	}, nil
}

// Sign is the deterministic core of Headers.
func (s *HeaderSigner) Sign(timestamp, method, path string, body []byte) string {
	key, err := DecodeKey(s.secret, s.mode)
	if err != nil {
		// checked in NewHeaderSigner
		return ""
	}
	return ComputeSignature(key, timestamp, method, path, body)
}

// Headers builds the header set for one request. body must be the exact
// bytes that will be transmitted; path is the request path only.
func (s *HeaderSigner) Headers(method, path string, body []byte) (http.Header, error) {
	if method == "" {
		return nil, &HeaderError{Field: "method", Err: fmt.Errorf("empty")}
	}
	if !strings.HasPrefix(path, "/") {
		return nil, &HeaderError{Field: "path", Err: fmt.Errorf("%q is not an absolute path", path)}
	}

	timestamp := strconv.FormatInt(s.clock.Now().UnixMilli(), 10)

	h := make(http.Header, 6)
	h.Set(HeaderAPIKey, s.apiKey)
	h.Set(HeaderSignature, s.Sign(timestamp, method, path, body))
	h.Set(HeaderTimestamp, timestamp)
	h.Set(HeaderPassphrase, s.passphrase.Expose())
	h.Set(HeaderSignatureType, s.sigType)
	h.Set("Content-Type", "application/json")
	return h, nil
}

func (s HeaderSigner) keyPrefix() string {
	return Credentials{APIKey: s.apiKey}.KeyPrefix()
}

func (s HeaderSigner) String() string {
	return fmt.Sprintf("HeaderSigner{api_key:%s key_mode:%s signature_type:%s}", s.keyPrefix(), s.mode, s.sigType)
}

func (s HeaderSigner) GoString() string { return s.String() }

// MarshalLogObject keeps zap.Any from reflecting over the secret fields.
func (s HeaderSigner) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("api_key", s.keyPrefix())
	enc.AddString("key_mode", s.mode.String())
	enc.AddString("signature_type", s.sigType)
	return nil
}

func checkHeaderValue(field, v string) error {
	if v == "" {
		return &HeaderError{Field: field, Err: fmt.Errorf("empty")}
	}
	if strings.ContainsAny(v, "\r\n\x00") {
		return &HeaderError{Field: field, Err: fmt.Errorf("contains control characters")}
	}
	return nil
}
