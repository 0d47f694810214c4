package business

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Call is a single forwarded call: destination, transferred native token
// value, and opaque payload handed to the destination.
type Call struct {
	Target common.Address `json:"target"`
	Value  *big.Int       `json:"value"`
	Data   []byte         `json:"data"`
}

// Operation is an externally submitted account action. The selector names
// the requested operation (execute, executeBatch, or an extension
// operation); Calls carries one element for execute and one per forwarded
// call for executeBatch. Nonce is the key-namespaced anti-replay counter:
// the upper 192 bits select an independent sequence, the lower 64 bits are
// the sequence number within it.
type Operation struct {
	Account   common.Address `json:"account"`
	Selector  Selector       `json:"selector"`
	Calls     []Call         `json:"calls"`
	Nonce     *big.Int       `json:"nonce"`
	Signature []byte         `json:"signature"`
}

// NonceKey returns the 192-bit namespace portion of the nonce.
func (op *Operation) NonceKey() *big.Int {
	if op.Nonce == nil {
		return new(big.Int)
	}
	return new(big.Int).Rsh(op.Nonce, 64)
}

// NonceSequence returns the 64-bit sequence portion of the nonce.
func (op *Operation) NonceSequence() uint64 {
	if op.Nonce == nil {
		return 0
	}
	return new(big.Int).And(op.Nonce, new(big.Int).SetUint64(^uint64(0))).Uint64()
}
