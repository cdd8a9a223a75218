package crypto

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Gnosis Safe proxy factory used by the exchange to deploy trading wallets
// on Polygon, and the keccak of the proxy creation code it deploys.
var (
	safeFactory      = common.HexToAddress("0xaacFeEa03eb1561C4e67d661e40682Bd20E3541b")
	safeInitCodeHash = common.FromHex("0x2bce2127ff07fb632d16c8347c4ebf501f4841168bed00d9e6ef715ddb6fcecf")
)

// SafeAddress derives the CREATE2 address of the Gnosis Safe owned by owner.
// salt = keccak256(abi.encode(owner))
func SafeAddress(owner common.Address) common.Address {
	var salt [32]byte
	copy(salt[:], crypto.Keccak256(common.LeftPadBytes(owner.Bytes(), 32)))
	return crypto.CreateAddress2(safeFactory, salt, safeInitCodeHash)
}

// FunderFor resolves the maker address for a signature type. An explicit
// funder always wins; a Gnosis Safe funder is derived when none is given.
func FunderFor(signer common.Address, sigType SignatureType, funder common.Address) (common.Address, bool) {
	if funder != (common.Address{}) {
		return funder, true
	}
	switch sigType {
	case SignatureEOA:
		return signer, true
	case SignatureGnosisSafe:
		return SafeAddress(signer), true
	default:
		// proxy wallets are deployed by a different factory; the address
		// has to be supplied
		return common.Address{}, false
	}
}
