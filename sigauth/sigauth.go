// Package sigauth implements domain-separated structured-request digesting
// and ECDSA signer recovery for account authorization requests. All
// functions are pure and safe for concurrent use.
package sigauth

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrInvalidSignatureFormat is returned when a signature is not the
	// canonical 65-byte [R || S || V] encoding.
	ErrInvalidSignatureFormat = errors.New("sigauth: signature must be 65 bytes [R || S || V]")

	// ErrInvalidSignatureValue is returned when recovery yields the null
	// identity, which no key can legitimately produce.
	ErrInvalidSignatureValue = errors.New("sigauth: recovered zero address")
)

// domainTypeHash follows the EIP-712 domain type with name, version,
// chain id, and verifying contract.
var domainTypeHash = crypto.Keccak256Hash(
	[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
)

// Domain binds a digest to one account instance on one chain, so a
// request signed for one account can never authorize another.
type Domain struct {
	Name              string
	Version           string
	ChainID           uint64
	VerifyingContract common.Address
}

// Separator computes the domain separator hash.
func (d Domain) Separator() common.Hash {
	enc := make([]byte, 0, 5*32)
	enc = append(enc, domainTypeHash.Bytes()...)
	enc = append(enc, crypto.Keccak256([]byte(d.Name))...)
	enc = append(enc, crypto.Keccak256([]byte(d.Version))...)
	enc = append(enc, EncodeUint64(d.ChainID)...)
	enc = append(enc, EncodeAddress(d.VerifyingContract)...)
	return crypto.Keccak256Hash(enc)
}

// Digest computes the signable digest of a struct hash under the domain:
// keccak256(0x19 0x01 || domainSeparator || structHash).
func (d Domain) Digest(structHash common.Hash) common.Hash {
	enc := make([]byte, 0, 2+2*32)
	enc = append(enc, 0x19, 0x01)
	enc = append(enc, d.Separator().Bytes()...)
	enc = append(enc, structHash.Bytes()...)
	return crypto.Keccak256Hash(enc)
}

// RecoverSigner recovers the principal that signed digest. The signature
// must be the canonical 65-byte encoding; a V of 27/28 is normalized to
// the 0/1 recovery id.
func RecoverSigner(digest common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignatureFormat
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, ErrInvalidSignatureFormat
	}

	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, ErrInvalidSignatureFormat
	}

	signer := crypto.PubkeyToAddress(*pub)
	if signer == (common.Address{}) {
		return common.Address{}, ErrInvalidSignatureValue
	}
	return signer, nil
}

// Encoding helpers for canonical 32-byte-word struct encoding.

// EncodeAddress left-pads an address to a 32-byte word.
func EncodeAddress(addr common.Address) []byte {
	return common.LeftPadBytes(addr.Bytes(), 32)
}

// EncodeUint64 encodes an unsigned integer as a 32-byte word.
func EncodeUint64(v uint64) []byte {
	return common.LeftPadBytes(new(big.Int).SetUint64(v).Bytes(), 32)
}

// EncodeBig encodes a big integer as a 32-byte word. Nil encodes as zero.
func EncodeBig(v *big.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	return common.LeftPadBytes(v.Bytes(), 32)
}

// HashAddressSlice hashes a dynamic address array as the keccak256 of its
// concatenated word encoding, the canonical encoding of dynamic values
// inside a struct hash.
func HashAddressSlice(addrs []common.Address) common.Hash {
	enc := make([]byte, 0, len(addrs)*32)
	for _, a := range addrs {
		enc = append(enc, EncodeAddress(a)...)
	}
	return crypto.Keccak256Hash(enc)
}

// HashBytes hashes an opaque dynamic byte payload for struct encoding.
func HashBytes(data []byte) common.Hash {
	return crypto.Keccak256Hash(data)
}
