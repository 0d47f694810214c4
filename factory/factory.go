// Package factory implements the account factory: deterministic address
// derivation, exactly-once idempotent deployment against a shared
// implementation, and the bidirectional account/signer registry kept
// current through authenticated callbacks from the accounts it deploys.
package factory

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/keyfold/keyfold/gateway"
	"github.com/keyfold/keyfold/permissions"
	"github.com/keyfold/keyfold/router"
	"github.com/keyfold/keyfold/sigauth"
	"github.com/keyfold/keyfold/storage"
	"go.uber.org/zap"
)

var (
	// ErrNotFactoryAccount is returned when a registry callback arrives
	// from an address this factory never deployed. The caller is
	// authenticated by recomputing the deterministic address for the
	// presented salt, so spoofed callbacks from unrelated parties cannot
	// mutate the index.
	ErrNotFactoryAccount = errors.New("factory: caller is not an account of this factory")
)

// firstInitVersion is the initializer version CreateAccount runs on a
// fresh deployment.
const firstInitVersion = 1

// Notifier mirrors registry changes into an external index (e.g. the
// service database). Optional; calls must be idempotent.
type Notifier interface {
	AccountCreated(account, admin common.Address, salt common.Hash)
	SignerAdded(account, signer common.Address)
	SignerRemoved(account, signer common.Address)
}

// Config assembles a factory bound to one shared implementation.
type Config struct {
	Address        common.Address
	EntryPoint     common.Address
	ChainID        uint64
	Implementation common.Address
	Defaults       *router.DefaultSet
	Notifier       Notifier
	Logger         *zap.Logger
	// Now supplies the unix clock for deployed accounts.
	Now func() uint64
}

// Factory deploys accounts at deterministic addresses and indexes them by
// signer.
type Factory struct {
	mu sync.Mutex

	cfg      Config
	implHash common.Hash

	accounts    *storage.AddressSet
	instances   map[common.Address]*gateway.Account
	salts       map[common.Address]common.Hash
	signerIndex map[common.Address]*storage.AddressSet
	// inflight guards addresses whose initializer is still running:
	// instances holds only fully initialized accounts, and a concurrent
	// duplicate create blocks on the channel instead of observing a
	// half-built one.
	inflight map[common.Address]chan struct{}
}

// New creates an empty factory.
func New(cfg Config) *Factory {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Factory{
		cfg:         cfg,
		implHash:    crypto.Keccak256Hash(cfg.Implementation.Bytes()),
		accounts:    storage.NewAddressSet(),
		instances:   make(map[common.Address]*gateway.Account),
		salts:       make(map[common.Address]common.Hash),
		signerIndex: make(map[common.Address]*storage.AddressSet),
		inflight:    make(map[common.Address]chan struct{}),
	}
}

// Salt derives the deployment salt for an admin/init-data pair.
func Salt(admin common.Address, initData []byte) common.Hash {
	enc := make([]byte, 0, 32+len(initData))
	enc = append(enc, sigauth.EncodeAddress(admin)...)
	enc = append(enc, initData...)
	return crypto.Keccak256Hash(enc)
}

// PredictAddress computes the address CreateAccount will produce for the
// pair. Pure function of the factory, the shared implementation, and the
// inputs; independent of deployment order.
func (f *Factory) PredictAddress(admin common.Address, initData []byte) common.Address {
	return f.addressForSalt(Salt(admin, initData))
}

// addressForSalt is the CREATE2-style derivation:
// keccak256(0xff || factory || salt || keccak256(implementation))[12:].
func (f *Factory) addressForSalt(salt common.Hash) common.Address {
	enc := make([]byte, 0, 1+20+32+32)
	enc = append(enc, 0xff)
	enc = append(enc, f.cfg.Address.Bytes()...)
	enc = append(enc, salt.Bytes()...)
	enc = append(enc, f.implHash.Bytes()...)
	return common.BytesToAddress(crypto.Keccak256(enc)[12:])
}

// CreateAccount deploys the account for (admin, initData) exactly once.
// Calling it again with the same pair returns the existing instance
// without redeploying. Deployment is all-or-nothing: a failed initializer
// leaves no registry trace.
func (f *Factory) CreateAccount(admin common.Address, initData []byte) (*gateway.Account, error) {
	salt := Salt(admin, initData)
	addr := f.addressForSalt(salt)

	f.mu.Lock()
	for {
		if existing, ok := f.instances[addr]; ok {
			f.mu.Unlock()
			return existing, nil
		}
		pending, ok := f.inflight[addr]
		if !ok {
			break
		}
		// Another goroutine is initializing this address. Wait for it to
		// settle, then re-check: its deployment either committed or rolled
		// back.
		f.mu.Unlock()
		<-pending
		f.mu.Lock()
	}

	account, err := gateway.New(gateway.Config{
		Address:    addr,
		Factory:    f.cfg.Address,
		Salt:       salt,
		EntryPoint: f.cfg.EntryPoint,
		ChainID:    f.cfg.ChainID,
		Defaults:   f.cfg.Defaults.Clone(),
		Hooks:      []permissions.Hook{&accountHook{factory: f, salt: salt}},
		Now:        f.cfg.Now,
	})
	if err != nil {
		f.mu.Unlock()
		return nil, err
	}
	// Record the salt before Initialize so the seeded admin's hook
	// callback passes caller authentication, but keep the instance out of
	// the registry until the initializer commits. The lock is released
	// because the initializer re-enters the factory through that callback.
	pending := make(chan struct{})
	f.inflight[addr] = pending
	f.salts[addr] = salt
	f.mu.Unlock()

	initErr := account.Initialize(firstInitVersion, admin)

	f.mu.Lock()
	delete(f.inflight, addr)
	if initErr != nil {
		delete(f.salts, addr)
		f.purgeSignerIndex(addr)
		close(pending)
		f.mu.Unlock()
		return nil, initErr
	}
	f.instances[addr] = account
	f.accounts.Add(addr)
	close(pending)
	f.mu.Unlock()

	f.cfg.Logger.Info("account deployed",
		zap.String("account", addr.Hex()),
		zap.String("admin", admin.Hex()),
		zap.String("salt", salt.Hex()))

	if f.cfg.Notifier != nil {
		f.cfg.Notifier.AccountCreated(addr, admin, salt)
	}
	return account, nil
}

// GetAccount returns a deployed instance.
func (f *Factory) GetAccount(addr common.Address) (*gateway.Account, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.instances[addr]
	return account, ok
}

// Accounts enumerates every deployed account.
func (f *Factory) Accounts() []common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts.Values()
}

// AccountsOfSigner enumerates the accounts on which signer currently
// holds granted permission, admins included.
func (f *Factory) AccountsOfSigner(signer common.Address) []common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.signerIndex[signer]
	if !ok {
		return nil
	}
	return set.Values()
}

// TotalAccounts returns the number of deployed accounts.
func (f *Factory) TotalAccounts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts.Len()
}

// OnSignerAdded records that signer holds permission on account. The
// caller proves it is a factory account by presenting its deployment
// salt; the recomputed address must match. Idempotent and commutative
// per (account, signer) pair.
func (f *Factory) OnSignerAdded(account common.Address, salt common.Hash, signer common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.authenticate(account, salt); err != nil {
		return err
	}
	set, ok := f.signerIndex[signer]
	if !ok {
		set = storage.NewAddressSet()
		f.signerIndex[signer] = set
	}
	set.Add(account)
	if f.cfg.Notifier != nil {
		f.cfg.Notifier.SignerAdded(account, signer)
	}
	return nil
}

// OnSignerRemoved records that signer no longer holds permission on
// account, under the same caller authentication as OnSignerAdded.
func (f *Factory) OnSignerRemoved(account common.Address, salt common.Hash, signer common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.authenticate(account, salt); err != nil {
		return err
	}
	if set, ok := f.signerIndex[signer]; ok {
		set.Remove(account)
	}
	if f.cfg.Notifier != nil {
		f.cfg.Notifier.SignerRemoved(account, signer)
	}
	return nil
}

func (f *Factory) authenticate(account common.Address, salt common.Hash) error {
	if f.addressForSalt(salt) != account {
		return ErrNotFactoryAccount
	}
	// The salts map covers deployments still inside Initialize, whose
	// admin-seeding callback arrives before the instance is published.
	if known, ok := f.salts[account]; !ok || known != salt {
		return ErrNotFactoryAccount
	}
	return nil
}

// purgeSignerIndex drops every index entry pointing at account. Called
// under f.mu when a failed initializer rolls back a deployment whose
// hooks already ran.
func (f *Factory) purgeSignerIndex(account common.Address) {
	for _, set := range f.signerIndex {
		set.Remove(account)
	}
}

// accountHook adapts an account's permission registry callbacks onto the
// factory's authenticated callback surface.
type accountHook struct {
	factory *Factory
	salt    common.Hash
}

func (h *accountHook) OnSignerAdded(account, signer common.Address) {
	if err := h.factory.OnSignerAdded(account, h.salt, signer); err != nil {
		h.factory.cfg.Logger.Warn("signer index callback rejected",
			zap.String("account", account.Hex()), zap.Error(err))
	}
}

func (h *accountHook) OnSignerRemoved(account, signer common.Address) {
	if err := h.factory.OnSignerRemoved(account, h.salt, signer); err != nil {
		h.factory.cfg.Logger.Warn("signer index callback rejected",
			zap.String("account", account.Hex()), zap.Error(err))
	}
}

func (h *accountHook) OnAdminSet(account, admin common.Address, enabled bool) {
	if enabled {
		h.OnSignerAdded(account, admin)
	} else {
		h.OnSignerRemoved(account, admin)
	}
}
