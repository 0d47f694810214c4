package permissions_test

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/keyfold/keyfold/permissions"
	"github.com/keyfold/keyfold/storage"
	"github.com/keyfold/keyfold/types/business"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	registry *permissions.Registry
	adminKey *ecdsa.PrivateKey
	admin    common.Address
	now      *uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	adminKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	admin := crypto.PubkeyToAddress(adminKey.PublicKey)

	now := uint64(1500)
	registry, err := permissions.NewRegistry(permissions.Config{
		Account: common.HexToAddress("0x00000000000000000000000000000000000aa001"),
		ChainID: 31337,
		Layout:  storage.NewLayout(),
		Now:     func() uint64 { return now },
	})
	require.NoError(t, err)
	require.NoError(t, registry.SeedAdmin(admin))

	return &fixture{registry: registry, adminKey: adminKey, admin: admin, now: &now}
}

func (f *fixture) sign(t *testing.T, req business.PermissionRequest, key *ecdsa.PrivateKey) []byte {
	t.Helper()
	sig, err := crypto.Sign(f.registry.RequestDigest(req).Bytes(), key)
	require.NoError(t, err)
	return sig
}

func grantRequest(signer common.Address, targets []common.Address, uid byte) business.PermissionRequest {
	return business.PermissionRequest{
		Signer:           signer,
		ApprovedTargets:  targets,
		NativeTokenLimit: big.NewInt(100),
		PermissionStart:  1000,
		PermissionEnd:    2000,
		ValidityStart:    0,
		ValidityEnd:      10_000,
		UID:              common.Hash{31: uid},
	}
}

func TestRequestGrant_InstallsScope(t *testing.T) {
	f := newFixture(t)
	signer := common.HexToAddress("0x1111")
	target := common.HexToAddress("0x2222")

	req := grantRequest(signer, []common.Address{target}, 1)
	require.NoError(t, f.registry.RequestGrant(req, f.sign(t, req, f.adminKey)))

	assert.True(t, f.registry.IsActiveSigner(signer))
	grant, ok := f.registry.Permission(signer)
	require.True(t, ok)
	assert.Equal(t, []common.Address{target}, grant.ApprovedTargets)
	assert.True(t, f.registry.IsProcessed(req.UID))
}

func TestIsActiveSigner_WindowAndTargets(t *testing.T) {
	tests := []struct {
		name    string
		now     uint64
		targets []common.Address
		active  bool
	}{
		{"inside window", 1500, []common.Address{{1}}, true},
		{"at start", 1000, []common.Address{{1}}, true},
		{"before start", 999, []common.Address{{1}}, false},
		{"at end (exclusive)", 2000, []common.Address{{1}}, false},
		{"after end", 2500, []common.Address{{1}}, false},
		{"empty target set", 1500, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			signer := common.HexToAddress("0x1111")

			req := grantRequest(signer, tt.targets, 1)
			require.NoError(t, f.registry.RequestGrant(req, f.sign(t, req, f.adminKey)))

			*f.now = tt.now
			assert.Equal(t, tt.active, f.registry.IsActiveSigner(signer))
		})
	}
}

func TestRequestGrant_ReplacesScopeWholesale(t *testing.T) {
	f := newFixture(t)
	signer := common.HexToAddress("0x1111")
	a, b, c := common.HexToAddress("0xaa"), common.HexToAddress("0xbb"), common.HexToAddress("0xcc")

	first := grantRequest(signer, []common.Address{a, b}, 1)
	require.NoError(t, f.registry.RequestGrant(first, f.sign(t, first, f.adminKey)))

	second := grantRequest(signer, []common.Address{c}, 2)
	require.NoError(t, f.registry.RequestGrant(second, f.sign(t, second, f.adminKey)))

	grant, ok := f.registry.Permission(signer)
	require.True(t, ok)
	assert.Equal(t, []common.Address{c}, grant.ApprovedTargets, "grants replace, never union")
	assert.False(t, grant.ApprovesTarget(a))
	assert.False(t, grant.ApprovesTarget(b))
}

func TestRequestGrant_ConsumedUIDNeverAuthorizesAgain(t *testing.T) {
	f := newFixture(t)
	signer := common.HexToAddress("0x1111")

	req := grantRequest(signer, []common.Address{{1}}, 7)
	require.NoError(t, f.registry.RequestGrant(req, f.sign(t, req, f.adminKey)))

	// Same UID with a fresh, perfectly valid admin signature over a
	// different target set.
	replay := grantRequest(signer, []common.Address{{2}}, 7)
	err := f.registry.RequestGrant(replay, f.sign(t, replay, f.adminKey))
	assert.ErrorIs(t, err, permissions.ErrAlreadyProcessed)
}

func TestRequestGrant_RejectsNonAdminSignature(t *testing.T) {
	f := newFixture(t)
	mallory, err := crypto.GenerateKey()
	require.NoError(t, err)

	req := grantRequest(common.HexToAddress("0x1111"), []common.Address{{1}}, 1)
	assert.ErrorIs(t, f.registry.RequestGrant(req, f.sign(t, req, mallory)), permissions.ErrNotAuthorized)
}

func TestRequestGrant_RejectsAdminTarget(t *testing.T) {
	f := newFixture(t)

	req := grantRequest(f.admin, []common.Address{{1}}, 1)
	assert.ErrorIs(t, f.registry.RequestGrant(req, f.sign(t, req, f.adminKey)), permissions.ErrSignerIsAdmin)
}

func TestRequestGrant_ValidityWindow(t *testing.T) {
	f := newFixture(t)
	signer := common.HexToAddress("0x1111")

	notYet := grantRequest(signer, []common.Address{{1}}, 1)
	notYet.ValidityStart = 2000
	assert.ErrorIs(t, f.registry.RequestGrant(notYet, f.sign(t, notYet, f.adminKey)), permissions.ErrRequestNotYetValid)

	expired := grantRequest(signer, []common.Address{{1}}, 2)
	expired.ValidityEnd = 1500 // exclusive end, now == 1500
	assert.ErrorIs(t, f.registry.RequestGrant(expired, f.sign(t, expired, f.adminKey)), permissions.ErrRequestExpired)
}

func TestRequestGrant_RejectsMalformedSignature(t *testing.T) {
	f := newFixture(t)

	req := grantRequest(common.HexToAddress("0x1111"), []common.Address{{1}}, 1)
	err := f.registry.RequestGrant(req, []byte("not a signature"))
	assert.Error(t, err)
	assert.False(t, f.registry.IsProcessed(req.UID), "failed request must not consume the UID")
}

func TestSetAdmin(t *testing.T) {
	f := newFixture(t)
	other := common.HexToAddress("0x9999")

	assert.ErrorIs(t, f.registry.SetAdmin(other, other, true), permissions.ErrNotAuthorized)

	require.NoError(t, f.registry.SetAdmin(f.admin, other, true))
	assert.True(t, f.registry.IsAdmin(other))
	require.NoError(t, f.registry.SetAdmin(f.admin, other, true), "re-adding is idempotent")

	require.NoError(t, f.registry.SetAdmin(other, f.admin, false))
	assert.False(t, f.registry.IsAdmin(f.admin))

	assert.ErrorIs(t, f.registry.SetAdmin(other, other, false), permissions.ErrLastAdmin)
}

func TestSeedAdmin_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.registry.SeedAdmin(common.HexToAddress("0x1234")), permissions.ErrAlreadySeeded)
}

func TestEnumerations(t *testing.T) {
	f := newFixture(t)
	s1, s2 := common.HexToAddress("0x1111"), common.HexToAddress("0x2222")

	active := grantRequest(s1, []common.Address{{1}}, 1)
	require.NoError(t, f.registry.RequestGrant(active, f.sign(t, active, f.adminKey)))

	dormant := grantRequest(s2, []common.Address{{1}}, 2)
	dormant.PermissionEnd = 1200 // already over at now=1500
	require.NoError(t, f.registry.RequestGrant(dormant, f.sign(t, dormant, f.adminKey)))

	assert.ElementsMatch(t, []common.Address{f.admin}, f.registry.Admins())
	assert.ElementsMatch(t, []common.Address{s1, s2}, f.registry.Signers())
	assert.ElementsMatch(t, []common.Address{s1}, f.registry.ActiveSigners())
}
