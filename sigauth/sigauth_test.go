package sigauth_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/keyfold/keyfold/sigauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDomain() sigauth.Domain {
	return sigauth.Domain{
		Name:              "KeyfoldAccount",
		Version:           "1",
		ChainID:           31337,
		VerifyingContract: common.HexToAddress("0x00000000000000000000000000000000000aa001"),
	}
}

func TestRecoverSigner_RoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	domain := testDomain()
	structHash := crypto.Keccak256Hash([]byte("some canonical request encoding"))
	digest := domain.Digest(structHash)

	sig, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(t, err)

	recovered, err := sigauth.RecoverSigner(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), recovered)
}

func TestRecoverSigner_NormalizesLegacyV(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	digest := testDomain().Digest(crypto.Keccak256Hash([]byte("payload")))
	sig, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(t, err)

	// Wallets commonly emit V as 27/28 rather than 0/1.
	legacy := make([]byte, len(sig))
	copy(legacy, sig)
	legacy[64] += 27

	recovered, err := sigauth.RecoverSigner(digest, legacy)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), recovered)
}

func TestRecoverSigner_RejectsMalformedSignatures(t *testing.T) {
	digest := testDomain().Digest(crypto.Keccak256Hash([]byte("payload")))

	tests := []struct {
		name string
		sig  []byte
	}{
		{name: "empty", sig: nil},
		{name: "too short", sig: make([]byte, 64)},
		{name: "too long", sig: make([]byte, 66)},
		{name: "bad recovery id", sig: append(make([]byte, 64), 9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sigauth.RecoverSigner(digest, tt.sig)
			assert.ErrorIs(t, err, sigauth.ErrInvalidSignatureFormat)
		})
	}
}

func TestDomain_SeparatorBindsAllFields(t *testing.T) {
	base := testDomain()
	variants := []sigauth.Domain{
		{Name: "Other", Version: base.Version, ChainID: base.ChainID, VerifyingContract: base.VerifyingContract},
		{Name: base.Name, Version: "2", ChainID: base.ChainID, VerifyingContract: base.VerifyingContract},
		{Name: base.Name, Version: base.Version, ChainID: 1, VerifyingContract: base.VerifyingContract},
		{Name: base.Name, Version: base.Version, ChainID: base.ChainID, VerifyingContract: common.HexToAddress("0xdead")},
	}

	for _, v := range variants {
		assert.NotEqual(t, base.Separator(), v.Separator())
	}
}

func TestDomain_DigestDiffersAcrossAccounts(t *testing.T) {
	structHash := crypto.Keccak256Hash([]byte("request"))

	a := testDomain()
	b := testDomain()
	b.VerifyingContract = common.HexToAddress("0x00000000000000000000000000000000000aa002")

	assert.NotEqual(t, a.Digest(structHash), b.Digest(structHash))
}
