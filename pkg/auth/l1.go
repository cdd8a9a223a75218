package auth

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/clobexec/pkg/crypto"
	"github.com/uhyunpark/clobexec/pkg/util"
)

// L1 header names, sent only on the credential-derivation request.
const (
	HeaderL1Address   = "POLY_ADDRESS"
	HeaderL1Signature = "POLY_SIGNATURE"
	HeaderL1Timestamp = "POLY_TIMESTAMP"
	HeaderL1Nonce     = "POLY_NONCE"
)

// L1Headers proves control of the wallet with an EIP-712 ClobAuth signature
// over the current unix time in seconds.
func L1Headers(signer *crypto.Signer, clock util.Clock, nonce uint64) (http.Header, error) {
	if clock == nil {
		clock = util.RealClock{}
	}
	timestamp := strconv.FormatInt(clock.Now().Unix(), 10)

	e := crypto.NewEIP712Signer(crypto.ClobAuthDomain(signer.ChainID()))
	sig, err := e.SignClobAuth(signer, timestamp, nonce)
	if err != nil {
		return nil, &HeaderError{Field: "l1 signature", Err: err}
	}

	h := make(http.Header, 4)
	h.Set(HeaderL1Address, signer.Address().Hex())
	h.Set(HeaderL1Signature, hexutil.Encode(sig))
	h.Set(HeaderL1Timestamp, timestamp)
	h.Set(HeaderL1Nonce, strconv.FormatUint(nonce, 10))
	return h, nil
}
