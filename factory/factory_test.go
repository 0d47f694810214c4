package factory_test

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/keyfold/keyfold/factory"
	"github.com/keyfold/keyfold/gateway"
	"github.com/keyfold/keyfold/router"
	"github.com/keyfold/keyfold/types/business"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopInvoker struct{}

func (nopInvoker) Invoke(ctx context.Context, call business.Call) ([]byte, error) {
	return nil, nil
}

func newFactory(t *testing.T) *factory.Factory {
	t.Helper()

	implAddr := common.HexToAddress("0x00000000000000000000000000000000000c0de1")
	ext, handler := gateway.NewAccountExtension(implAddr, nopInvoker{})
	defaults, err := router.NewDefaultSet([]router.DefaultExtension{{Extension: ext, Handler: handler}})
	require.NoError(t, err)

	now := uint64(1500)
	return factory.New(factory.Config{
		Address:        common.HexToAddress("0x00000000000000000000000000000000000fac01"),
		EntryPoint:     common.HexToAddress("0x00000000000000000000000000000000000e9001"),
		ChainID:        31337,
		Implementation: implAddr,
		Defaults:       defaults,
		Now:            func() uint64 { return now },
	})
}

func TestCreateAccount_MatchesPrediction(t *testing.T) {
	f := newFactory(t)
	admin := common.HexToAddress("0xad01")
	initData := []byte("init")

	predicted := f.PredictAddress(admin, initData)

	account, err := f.CreateAccount(admin, initData)
	require.NoError(t, err)
	assert.Equal(t, predicted, account.Address())
	assert.True(t, account.IsAdmin(admin), "creating admin is seeded")
	assert.Len(t, account.Extensions(), 1, "default extensions materialize on first init")
}

func TestCreateAccount_Idempotent(t *testing.T) {
	f := newFactory(t)
	admin := common.HexToAddress("0xad01")

	first, err := f.CreateAccount(admin, []byte("x"))
	require.NoError(t, err)
	second, err := f.CreateAccount(admin, []byte("x"))
	require.NoError(t, err)

	assert.Same(t, first, second, "same pair deploys exactly once")
	assert.Equal(t, 1, f.TotalAccounts())
}

func TestCreateAccount_DistinctPairsDistinctAddresses(t *testing.T) {
	f := newFactory(t)
	admin := common.HexToAddress("0xad01")
	other := common.HexToAddress("0xad02")

	a1, err := f.CreateAccount(admin, []byte("x"))
	require.NoError(t, err)
	a2, err := f.CreateAccount(admin, []byte("y"))
	require.NoError(t, err)
	a3, err := f.CreateAccount(other, []byte("x"))
	require.NoError(t, err)

	assert.NotEqual(t, a1.Address(), a2.Address())
	assert.NotEqual(t, a1.Address(), a3.Address())
	assert.NotEqual(t, a2.Address(), a3.Address())
	assert.Equal(t, 3, f.TotalAccounts())
}

func TestPredictAddress_OrderIndependent(t *testing.T) {
	f1 := newFactory(t)
	f2 := newFactory(t)
	admin := common.HexToAddress("0xad01")

	// f2 deploys unrelated accounts first; prediction must not move.
	_, err := f2.CreateAccount(common.HexToAddress("0x01"), nil)
	require.NoError(t, err)
	_, err = f2.CreateAccount(common.HexToAddress("0x02"), nil)
	require.NoError(t, err)

	assert.Equal(t, f1.PredictAddress(admin, []byte("x")), f2.PredictAddress(admin, []byte("x")))
}

func TestSignerIndex_TracksGrantsAndAdmins(t *testing.T) {
	f := newFactory(t)

	adminKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	admin := crypto.PubkeyToAddress(adminKey.PublicKey)

	account, err := f.CreateAccount(admin, nil)
	require.NoError(t, err)

	assert.Equal(t, []common.Address{account.Address()}, f.AccountsOfSigner(admin),
		"seeded admin is indexed at creation")

	signer := common.HexToAddress("0x5151")
	req := business.PermissionRequest{
		Signer:           signer,
		ApprovedTargets:  []common.Address{{1}},
		NativeTokenLimit: big.NewInt(1),
		PermissionStart:  1000,
		PermissionEnd:    2000,
		ValidityEnd:      10_000,
		UID:              common.Hash{31: 1},
	}
	sig, err := crypto.Sign(account.PermissionRequestDigest(req).Bytes(), adminKey)
	require.NoError(t, err)
	require.NoError(t, account.RequestPermissionGrant(req, sig))

	assert.Equal(t, []common.Address{account.Address()}, f.AccountsOfSigner(signer))

	// Revoking by granting an empty target set removes the index entry.
	revoke := req
	revoke.ApprovedTargets = nil
	revoke.UID = common.Hash{31: 2}
	sig, err = crypto.Sign(account.PermissionRequestDigest(revoke).Bytes(), adminKey)
	require.NoError(t, err)
	require.NoError(t, account.RequestPermissionGrant(revoke, sig))

	assert.Empty(t, f.AccountsOfSigner(signer))
}

func TestCallbacks_RejectSpoofedCaller(t *testing.T) {
	f := newFactory(t)
	admin := common.HexToAddress("0xad01")

	account, err := f.CreateAccount(admin, []byte("x"))
	require.NoError(t, err)

	mallory := common.HexToAddress("0xbad")
	wrongSalt := factory.Salt(common.HexToAddress("0xbad"), nil)

	err = f.OnSignerAdded(mallory, wrongSalt, common.HexToAddress("0x5151"))
	assert.ErrorIs(t, err, factory.ErrNotFactoryAccount)

	// A real account address with a mismatched salt is rejected too.
	err = f.OnSignerAdded(account.Address(), wrongSalt, common.HexToAddress("0x5151"))
	assert.ErrorIs(t, err, factory.ErrNotFactoryAccount)

	assert.Empty(t, f.AccountsOfSigner(common.HexToAddress("0x5151")))
}

func TestCallbacks_IdempotentAndCommutative(t *testing.T) {
	f := newFactory(t)
	admin := common.HexToAddress("0xad01")

	account, err := f.CreateAccount(admin, nil)
	require.NoError(t, err)
	signer := common.HexToAddress("0x5151")

	require.NoError(t, f.OnSignerAdded(account.Address(), account.Salt(), signer))
	require.NoError(t, f.OnSignerAdded(account.Address(), account.Salt(), signer))
	assert.Equal(t, []common.Address{account.Address()}, f.AccountsOfSigner(signer))

	require.NoError(t, f.OnSignerRemoved(account.Address(), account.Salt(), signer))
	require.NoError(t, f.OnSignerRemoved(account.Address(), account.Salt(), signer))
	assert.Empty(t, f.AccountsOfSigner(signer))
}

func TestGetAccount(t *testing.T) {
	f := newFactory(t)
	admin := common.HexToAddress("0xad01")

	created, err := f.CreateAccount(admin, nil)
	require.NoError(t, err)

	got, ok := f.GetAccount(created.Address())
	require.True(t, ok)
	assert.Same(t, created, got)

	_, ok = f.GetAccount(common.HexToAddress("0xdead"))
	assert.False(t, ok)
}

func TestCreateAccount_ConcurrentDuplicates(t *testing.T) {
	f := newFactory(t)
	admin := common.HexToAddress("0xad01")
	initData := []byte("race")

	const workers = 16
	results := make(chan *gateway.Account, workers)
	seeded := make(chan bool, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			account, err := f.CreateAccount(admin, initData)
			if err != nil {
				results <- nil
				seeded <- false
				return
			}
			results <- account
			// The admin must already be visible to whichever caller the
			// deployment is handed to, even the ones that lost the race.
			seeded <- account.IsAdmin(admin)
		}()
	}
	wg.Wait()
	close(results)
	close(seeded)

	var first *gateway.Account
	for account := range results {
		require.NotNil(t, account)
		if first == nil {
			first = account
		}
		assert.Same(t, first, account, "every caller gets the one deployed instance")
	}
	for ok := range seeded {
		assert.True(t, ok, "no caller sees a half-initialized account")
	}
	assert.Equal(t, 1, f.TotalAccounts())
}
