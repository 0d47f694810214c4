package business

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/crypto"
)

// Selector is the fixed-width operation identifier of a callable account
// operation. It is the first four bytes of the keccak256 hash of the
// operation's canonical signature string, matching the convention used by
// on-chain function dispatch.
type Selector [4]byte

// SelectorFromSignature derives the selector for a canonical signature
// string such as "execute(address,uint256,bytes)".
func SelectorFromSignature(signature string) Selector {
	var s Selector
	copy(s[:], crypto.Keccak256([]byte(signature))[:4])
	return s
}

// ZeroSelector is the reserved identifier of the implicit default-receive
// operation. It is the only selector exempt from the signature-consistency
// check because "receive()" has no hash-derived identifier.
var ZeroSelector = Selector{}

// Built-in account operations understood by the operation gateway.
var (
	SelectorExecute      = SelectorFromSignature("execute(address,uint256,bytes)")
	SelectorExecuteBatch = SelectorFromSignature("executeBatch(address[],uint256[],bytes[])")
)

func (s Selector) String() string {
	return "0x" + hex.EncodeToString(s[:])
}

// IsZero reports whether s is the reserved default-receive identifier.
func (s Selector) IsZero() bool {
	return s == ZeroSelector
}
