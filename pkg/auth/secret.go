package auth

import "encoding/json"

const redacted = "[REDACTED]"

// Secret holds a credential that must never reach logs, error strings or
// serialized output. Every formatting path renders a placeholder; the value
// is only reachable through Expose.
type Secret struct {
	v string
}

// NewSecret wraps s.
func NewSecret(s string) Secret { return Secret{v: s} }

// Expose returns the raw value. Call it only where the bytes are consumed.
func (s Secret) Expose() string { return s.v }

// IsZero reports whether the secret is empty.
func (s Secret) IsZero() bool { return s.v == "" }

func (s Secret) String() string {
	return redacted
}

func (s Secret) GoString() string {
	return redacted
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// UnmarshalJSON accepts a JSON string so credentials can be decoded straight
// from the derivation response.
func (s *Secret) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	s.v = v
	return nil
}
