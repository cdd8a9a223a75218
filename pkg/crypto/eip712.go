package crypto

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	exchangeDomainName = "Polymarket CTF Exchange"
	clobAuthDomainName = "ClobAuthDomain"
	domainVersion      = "1"

	// ClobAuthMessage is the fixed attestation signed for L1 authentication.
	ClobAuthMessage = "This message attests that I control the given wallet"
)

// Contracts holds the verifying contracts orders are signed against.
type Contracts struct {
	Exchange        common.Address
	NegRiskExchange common.Address
}

var contractsByChain = map[int64]Contracts{
	137: { // Polygon mainnet
		Exchange:        common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"),
		NegRiskExchange: common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a"),
	},
	80002: { // Polygon Amoy
		Exchange:        common.HexToAddress("0xdFE02Eb6733538f8Ea35D585af8DE5958AD99E40"),
		NegRiskExchange: common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a"),
	},
}

// ContractsFor returns the exchange contracts deployed on chainID
func ContractsFor(chainID int64) (Contracts, error) {
	c, ok := contractsByChain[chainID]
	if !ok {
		return Contracts{}, fmt.Errorf("no exchange contracts known for chain %d", chainID)
	}
	return c, nil
}

// SignatureType tells the exchange how the maker relates to the signer.
type SignatureType uint8

const (
	SignatureEOA        SignatureType = 0 // maker == signer
	SignaturePolyProxy  SignatureType = 1 // maker is a Polymarket proxy wallet
	SignatureGnosisSafe SignatureType = 2 // maker is a Gnosis Safe owned by signer
)

func (t SignatureType) String() string {
	switch t {
	case SignatureEOA:
		return "EOA"
	case SignaturePolyProxy:
		return "PolyProxy"
	case SignatureGnosisSafe:
		return "GnosisSafe"
	default:
		return fmt.Sprintf("SignatureType(%d)", uint8(t))
	}
}

// ParseSignatureType accepts "eoa", "proxy" and "gnosis-safe" (case-insensitive)
func ParseSignatureType(s string) (SignatureType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eoa", "0":
		return SignatureEOA, nil
	case "proxy", "poly-proxy", "polyproxy", "1":
		return SignaturePolyProxy, nil
	case "gnosis-safe", "gnosissafe", "safe", "2":
		return SignatureGnosisSafe, nil
	default:
		return 0, fmt.Errorf("unknown signature type %q", s)
	}
}

// EIP712Domain represents the domain separator for EIP-712 typed data
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address // zero for ClobAuth
}

// ExchangeDomain returns the order-signing domain for chainID. Neg-risk
// markets settle on a separate exchange contract.
func ExchangeDomain(chainID int64, negRisk bool) (EIP712Domain, error) {
	c, err := ContractsFor(chainID)
	if err != nil {
		return EIP712Domain{}, err
	}
	contract := c.Exchange
	if negRisk {
		contract = c.NegRiskExchange
	}
	return EIP712Domain{
		Name:              exchangeDomainName,
		Version:           domainVersion,
		ChainID:           big.NewInt(chainID),
		VerifyingContract: contract,
	}, nil
}

// ClobAuthDomain returns the domain used for L1 (wallet) authentication
func ClobAuthDomain(chainID int64) EIP712Domain {
	return EIP712Domain{
		Name:    clobAuthDomainName,
		Version: domainVersion,
		ChainID: big.NewInt(chainID),
	}
}

func (d EIP712Domain) typedDomain() apitypes.TypedDataDomain {
	td := apitypes.TypedDataDomain{
		Name:    d.Name,
		Version: d.Version,
		ChainId: (*math.HexOrDecimal256)(d.ChainID),
	}
	if d.VerifyingContract != (common.Address{}) {
		td.VerifyingContract = d.VerifyingContract.Hex()
	}
	return td
}

func (d EIP712Domain) domainTypes() []apitypes.Type {
	types := []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	}
	if d.VerifyingContract != (common.Address{}) {
		types = append(types, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	return types
}

// Order is the CTF exchange order as covered by the EIP-712 signature
type Order struct {
	Salt          *big.Int
	Maker         common.Address // funder
	Signer        common.Address // key that signs
	Taker         common.Address // zero = public order
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int // unix seconds, 0 = none
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          uint8 // 0 = buy, 1 = sell
	SignatureType SignatureType
}

var orderTypes = []apitypes.Type{
	{Name: "salt", Type: "uint256"},
	{Name: "maker", Type: "address"},
	{Name: "signer", Type: "address"},
	{Name: "taker", Type: "address"},
	{Name: "tokenId", Type: "uint256"},
	{Name: "makerAmount", Type: "uint256"},
	{Name: "takerAmount", Type: "uint256"},
	{Name: "expiration", Type: "uint256"},
	{Name: "nonce", Type: "uint256"},
	{Name: "feeRateBps", Type: "uint256"},
	{Name: "side", Type: "uint8"},
	{Name: "signatureType", Type: "uint8"},
}

var clobAuthTypes = []apitypes.Type{
	{Name: "address", Type: "address"},
	{Name: "timestamp", Type: "string"},
	{Name: "nonce", Type: "uint256"},
	{Name: "message", Type: "string"},
}

// EIP712Signer hashes and signs typed data under one domain
type EIP712Signer struct {
	domain EIP712Domain
}

// NewEIP712Signer creates a new EIP-712 signer with given domain
func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

// HashOrder hashes an order according to EIP-712
// Returns the digest that should be signed
func (e *EIP712Signer) HashOrder(order *Order) ([]byte, error) {
	for name, v := range map[string]*big.Int{
		"salt": order.Salt, "tokenId": order.TokenID, "makerAmount": order.MakerAmount,
		"takerAmount": order.TakerAmount, "expiration": order.Expiration, "nonce": order.Nonce,
		"feeRateBps": order.FeeRateBps,
	} {
		if v == nil {
			return nil, fmt.Errorf("order field %s is nil", name)
		}
	}

	return e.digest("Order", orderTypes, apitypes.TypedDataMessage{
		"salt":          order.Salt.String(),
		"maker":         order.Maker.Hex(),
		"signer":        order.Signer.Hex(),
		"taker":         order.Taker.Hex(),
		"tokenId":       order.TokenID.String(),
		"makerAmount":   order.MakerAmount.String(),
		"takerAmount":   order.TakerAmount.String(),
		"expiration":    order.Expiration.String(),
		"nonce":         order.Nonce.String(),
		"feeRateBps":    order.FeeRateBps.String(),
		"side":          fmt.Sprintf("%d", order.Side),
		"signatureType": fmt.Sprintf("%d", uint8(order.SignatureType)),
	})
}

// SignOrder signs an order and returns the 65-byte signature
func (e *EIP712Signer) SignOrder(signer *Signer, order *Order) ([]byte, error) {
	hash, err := e.HashOrder(order)
	if err != nil {
		return nil, fmt.Errorf("failed to hash order: %w", err)
	}

	signature, err := signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign order: %w", err)
	}

	return signature, nil
}

// RecoverOrderSigner recovers the address that signed an order
func (e *EIP712Signer) RecoverOrderSigner(order *Order, signature []byte) (common.Address, error) {
	hash, err := e.HashOrder(order)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash order: %w", err)
	}

	return RecoverAddress(hash, signature)
}

// HashClobAuth hashes the L1 authentication attestation
func (e *EIP712Signer) HashClobAuth(address common.Address, timestamp string, nonce uint64) ([]byte, error) {
	return e.digest("ClobAuth", clobAuthTypes, apitypes.TypedDataMessage{
		"address":   address.Hex(),
		"timestamp": timestamp,
		"nonce":     fmt.Sprintf("%d", nonce),
		"message":   ClobAuthMessage,
	})
}

// SignClobAuth signs the L1 attestation for the signer's own address
func (e *EIP712Signer) SignClobAuth(signer *Signer, timestamp string, nonce uint64) ([]byte, error) {
	hash, err := e.HashClobAuth(signer.Address(), timestamp, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to hash auth message: %w", err)
	}
	return signer.Sign(hash)
}

func (e *EIP712Signer) digest(primary string, fields []apitypes.Type, msg apitypes.TypedDataMessage) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": e.domain.domainTypes(),
			primary:        fields,
		},
		PrimaryType: primary,
		Domain:      e.domain.typedDomain(),
		Message:     msg,
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// keccak256("\x19\x01" || domainSeparator || typedDataHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256Hash(rawData).Bytes(), nil
}

// ExchangeSigner signs orders for one identity, picking the exchange
// contract by the market's neg-risk flag.
type ExchangeSigner struct {
	signer  *Signer
	std     *EIP712Signer
	negRisk *EIP712Signer
}

// NewExchangeSigner binds signer to the exchange domains of its chain
func NewExchangeSigner(signer *Signer) (*ExchangeSigner, error) {
	std, err := ExchangeDomain(signer.ChainID(), false)
	if err != nil {
		return nil, err
	}
	neg, err := ExchangeDomain(signer.ChainID(), true)
	if err != nil {
		return nil, err
	}
	return &ExchangeSigner{
		signer:  signer,
		std:     NewEIP712Signer(std),
		negRisk: NewEIP712Signer(neg),
	}, nil
}

// SignOrder produces the order signature. The order's Signer field must be
// this identity's address.
func (x *ExchangeSigner) SignOrder(order *Order, negRisk bool) ([]byte, error) {
	if order.Signer != x.signer.Address() {
		return nil, fmt.Errorf("order signer %s does not match identity %s", order.Signer.Hex(), x.signer.Address().Hex())
	}
	if negRisk {
		return x.negRisk.SignOrder(x.signer, order)
	}
	return x.std.SignOrder(x.signer, order)
}
