package auth

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/uhyunpark/clobexec/pkg/crypto"
)

// Credentials are the exchange-issued L2 API credentials.
type Credentials struct {
	APIKey     string `json:"apiKey"`
	Secret     Secret `json:"secret"`
	Passphrase Secret `json:"passphrase"`
}

// Validate checks that all three parts are present.
func (c Credentials) Validate() error {
	switch {
	case c.APIKey == "":
		return fmt.Errorf("missing api key")
	case c.Secret.IsZero():
		return fmt.Errorf("missing api secret")
	case c.Passphrase.IsZero():
		return fmt.Errorf("missing passphrase")
	}
	return nil
}

// KeyPrefix returns the first 8 characters of the API key for logging.
func (c Credentials) KeyPrefix() string {
	if len(c.APIKey) <= 8 {
		return c.APIKey
	}
	return c.APIKey[:8] + "..."
}

// Deriver performs the remote credential-derivation handshake.
type Deriver interface {
	DeriveAPIKey(ctx context.Context, signer *crypto.Signer) (Credentials, error)
}

// CredentialDerivationError aborts a run: no order may be attempted without
// credentials.
type CredentialDerivationError struct {
	Address string
	Err     error
}

func (e *CredentialDerivationError) Error() string {
	return fmt.Sprintf("credential derivation failed for %s: %v", e.Address, e.Err)
}

func (e *CredentialDerivationError) Unwrap() error { return e.Err }

// CredentialStore holds the credentials derived once at startup. It has no
// refresh path; the value is read-only after construction.
type CredentialStore struct {
	creds   Credentials
	address string
}

// NewCredentialStore performs exactly one derivation round trip.
func NewCredentialStore(ctx context.Context, deriver Deriver, signer *crypto.Signer, logger *zap.Logger) (*CredentialStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	addr := signer.Address().Hex()

	creds, err := deriver.DeriveAPIKey(ctx, signer)
	if err != nil {
		return nil, &CredentialDerivationError{Address: addr, Err: err}
	}
	if err := creds.Validate(); err != nil {
		return nil, &CredentialDerivationError{Address: addr, Err: err}
	}

	logger.Info("credentials_acquired",
		zap.String("address", addr),
		zap.String("api_key", creds.KeyPrefix()),
	)
	return &CredentialStore{creds: creds, address: addr}, nil
}

// Credentials returns the stored credentials.
func (s *CredentialStore) Credentials() Credentials { return s.creds }

// Address returns the wallet the credentials were derived for.
func (s *CredentialStore) Address() string { return s.address }
