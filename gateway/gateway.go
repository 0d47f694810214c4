// Package gateway implements the operation gateway: the single entry
// point all externally triggered account calls pass through. Every call
// clears two checkpoints, signature recovery and scope validation, before
// execution is forwarded through the extension router's dispatch table.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/keyfold/keyfold/constants"
	"github.com/keyfold/keyfold/permissions"
	"github.com/keyfold/keyfold/router"
	"github.com/keyfold/keyfold/sigauth"
	"github.com/keyfold/keyfold/storage"
	"github.com/keyfold/keyfold/types/business"
)

var (
	// ErrNotAuthorized is returned when an execute entry point is called
	// by a principal that is neither an admin nor the coordinator.
	ErrNotAuthorized = errors.New("gateway: caller is not an admin or the entrypoint")

	// ErrInvalidNonce is returned when an operation's sequence number does
	// not match the account's counter for the nonce key. Structural, hence
	// a hard failure rather than a validation result.
	ErrInvalidNonce = errors.New("gateway: invalid nonce sequence")

	// ErrMalformedOperation is returned for structurally broken
	// operations (hard failure, distinct from unauthorized).
	ErrMalformedOperation = errors.New("gateway: malformed operation")

	// ErrAlreadyInitialized is returned when re-running an initializer at
	// the same or a lower version.
	ErrAlreadyInitialized = errors.New("gateway: already initialized at this version")

	// ErrInitializersDisabled is returned once initialization has been
	// disabled forever.
	ErrInitializersDisabled = errors.New("gateway: initializers disabled")
)

// operationTypeHash is the type descriptor bound into every signed
// operation digest.
var operationTypeHash = crypto.Keccak256Hash([]byte(
	"AccountOperation(address account,bytes4 selector,bytes32 callsHash,uint256 nonce)",
))

// TargetInvoker performs the actual forwarded call against a destination.
// The host environment supplies it; a failed forward aborts the enclosing
// operation and its error is propagated unchanged.
type TargetInvoker interface {
	Invoke(ctx context.Context, call business.Call) ([]byte, error)
}

// state is the gateway's storage partition: nonce sequences keyed by the
// 192-bit namespace, the prefund owed to the coordinator, plus the
// initializer state machine.
type state struct {
	nonces       map[string]uint64
	prefund      *big.Int
	initVersion  uint8
	initDisabled bool
}

// Config assembles one account instance.
type Config struct {
	Address    common.Address
	Factory    common.Address
	Salt       common.Hash
	EntryPoint common.Address
	ChainID    uint64
	Defaults   *router.DefaultSet
	Hooks      []permissions.Hook
	// Now supplies the current unix timestamp; defaults to the wall clock.
	Now func() uint64
}

// Account is one deployed account instance: its permission registry, its
// extension router, and the gateway state machine in front of both. All
// public entry points serialize on an internal mutex; forwarded calls run
// after bookkeeping is committed and outside the lock, so a forwarded
// call that loops back re-enters like any other caller and observes only
// committed state.
type Account struct {
	mu sync.Mutex

	address    common.Address
	factory    common.Address
	salt       common.Hash
	entryPoint common.Address
	domain     sigauth.Domain

	layout   *storage.Layout
	registry *permissions.Registry
	router   *router.Router
	state    *state
	now      func() uint64
}

// New wires an account's components onto a fresh storage layout. The
// account is not usable until Initialize seeds its admin.
func New(cfg Config) (*Account, error) {
	layout := storage.NewLayout()

	registry, err := permissions.NewRegistry(permissions.Config{
		Account: cfg.Address,
		ChainID: cfg.ChainID,
		Layout:  layout,
		Hooks:   cfg.Hooks,
		Now:     cfg.Now,
	})
	if err != nil {
		return nil, err
	}

	rtr, err := router.NewRouter(layout, cfg.Defaults)
	if err != nil {
		return nil, err
	}

	st := &state{nonces: make(map[string]uint64), prefund: new(big.Int)}
	if err := layout.Register(constants.GatewayStorageLabel, st); err != nil {
		return nil, err
	}

	now := cfg.Now
	if now == nil {
		now = func() uint64 { return uint64(time.Now().Unix()) }
	}

	return &Account{
		address:    cfg.Address,
		factory:    cfg.Factory,
		salt:       cfg.Salt,
		entryPoint: cfg.EntryPoint,
		domain: sigauth.Domain{
			Name:              constants.SigningDomainName,
			Version:           constants.SigningDomainVersion,
			ChainID:           cfg.ChainID,
			VerifyingContract: cfg.Address,
		},
		layout:   layout,
		registry: registry,
		router:   rtr,
		state:    st,
		now:      now,
	}, nil
}

// Address returns the account's deterministic address.
func (a *Account) Address() common.Address { return a.address }

// Factory returns the creating factory's identity.
func (a *Account) Factory() common.Address { return a.factory }

// Salt returns the creation salt the factory derived the address from.
func (a *Account) Salt() common.Hash { return a.salt }

// Initialize runs the version-guarded initializer: it seeds the creating
// admin and materializes the default extension set into the live dispatch
// tables. Re-running at the same or a lower version fails.
func (a *Account) Initialize(version uint8, admin common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state.initDisabled {
		return ErrInitializersDisabled
	}
	if version <= a.state.initVersion {
		return ErrAlreadyInitialized
	}
	a.state.initVersion = version

	if len(a.registry.Admins()) == 0 {
		if err := a.registry.SeedAdmin(admin); err != nil {
			return err
		}
	}
	return a.router.Materialize()
}

// DisableInitializers moves the initializer state machine to its terminal
// state. Irreversible.
func (a *Account) DisableInitializers() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.initDisabled = true
}

// InitializedVersion returns the highest initializer version that ran.
func (a *Account) InitializedVersion() uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.initVersion
}

// OperationDigest computes the domain-separated digest a signer signs to
// authorize op: the canonical encoding of the requested action and its
// anti-replay counter.
func (a *Account) OperationDigest(op *business.Operation) common.Hash {
	enc := make([]byte, 0, 4*32)
	enc = append(enc, operationTypeHash.Bytes()...)
	enc = append(enc, sigauth.EncodeAddress(op.Account)...)
	enc = append(enc, common.RightPadBytes(op.Selector[:], 32)...)
	enc = append(enc, hashCalls(op.Calls).Bytes()...)
	enc = append(enc, sigauth.EncodeBig(op.Nonce)...)
	return a.domain.Digest(crypto.Keccak256Hash(enc))
}

func hashCalls(calls []business.Call) common.Hash {
	enc := make([]byte, 0, len(calls)*3*32)
	for _, c := range calls {
		enc = append(enc, sigauth.EncodeAddress(c.Target)...)
		enc = append(enc, sigauth.EncodeBig(c.Value)...)
		enc = append(enc, sigauth.HashBytes(c.Data).Bytes()...)
	}
	return crypto.Keccak256Hash(enc)
}

// Validate runs the gateway's two checkpoints against op. Authorization
// failures return the soft ValidationFailed sentinel so a coordinator can
// pre-flight a request; hard errors are reserved for structurally broken
// input and nonce misuse. On success the nonce sequence is consumed and
// the result carries the signer's grant window (unbounded for admins).
// missingFunds is the prefund the coordinator expects the account to
// cover for this operation; a successful validation books it against the
// account (see PrefundOwed), a failed one books nothing.
func (a *Account) Validate(op *business.Operation, missingFunds *big.Int) (business.ValidationResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if op == nil || op.Account != a.address {
		return business.ValidationFailed, ErrMalformedOperation
	}

	// Checkpoint zero: the key-namespaced anti-replay counter. Independent
	// of the permission-grant UID ledger.
	key := op.NonceKey().String()
	if op.NonceSequence() != a.state.nonces[key] {
		return business.ValidationFailed, fmt.Errorf("%w: key %s wants %d got %d",
			ErrInvalidNonce, key, a.state.nonces[key], op.NonceSequence())
	}

	// Checkpoint one: signature recovery.
	signer, err := sigauth.RecoverSigner(a.OperationDigest(op), op.Signature)
	if err != nil {
		if errors.Is(err, sigauth.ErrInvalidSignatureFormat) {
			return business.ValidationFailed, fmt.Errorf("%w: %v", ErrMalformedOperation, err)
		}
		return business.ValidationFailed, nil
	}

	// Checkpoint two: scope. Admins are unrestricted.
	result := business.ValidationResult{}
	if !a.registry.IsAdmin(signer) {
		grant, ok := a.registry.Permission(signer)
		if !ok || !grant.IsActiveAt(a.now()) {
			return business.ValidationFailed, nil
		}
		if !a.callsWithinScope(op, grant) {
			return business.ValidationFailed, nil
		}
		result.ValidAfter = grant.StartTimestamp
		result.ValidUntil = grant.EndTimestamp
	}

	a.state.nonces[key]++
	if missingFunds != nil && missingFunds.Sign() > 0 {
		a.state.prefund.Add(a.state.prefund, missingFunds)
	}
	return result, nil
}

// PrefundOwed returns the cumulative prefund booked by successful
// validations and not yet settled with the coordinator.
func (a *Account) PrefundOwed() *big.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return new(big.Int).Set(a.state.prefund)
}

// callsWithinScope applies the per-call target and value checks. A single
// failing element rejects the whole batch.
func (a *Account) callsWithinScope(op *business.Operation, grant business.SignerPermission) bool {
	switch op.Selector {
	case business.SelectorExecute:
		if len(op.Calls) != 1 {
			return false
		}
	case business.SelectorExecuteBatch:
		if len(op.Calls) == 0 {
			return false
		}
	default:
		// Non-admin signers may only trigger the call operations.
		return false
	}
	for _, c := range op.Calls {
		if !grant.ApprovesTarget(c.Target) || !grant.WithinValueLimit(c.Value) {
			return false
		}
	}
	return true
}

// Execute forwards a validated operation through the dispatch table. Only
// admins and the coordinator entrypoint may call it. The implementation
// runs outside the account lock, after all bookkeeping, and its failure
// aborts the whole operation with the forwarded error.
func (a *Account) Execute(ctx context.Context, caller common.Address, selector business.Selector, calls []business.Call) ([]byte, error) {
	a.mu.Lock()
	if !a.registry.IsAdmin(caller) && caller != a.entryPoint {
		a.mu.Unlock()
		return nil, ErrNotAuthorized
	}
	impl, err := a.router.RouteCall(selector)
	if err != nil {
		a.mu.Unlock()
		return nil, err
	}
	a.mu.Unlock()

	out, err := impl.Invoke(ctx, selector, calls)
	if err != nil {
		return nil, fmt.Errorf("forwarded call failed: %w", err)
	}
	return out, nil
}

// Nonce returns the next expected sequence for a nonce key.
func (a *Account) Nonce(key *big.Int) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.nonces[key.String()]
}

// Permission registry passthroughs. The account is the registry's only
// entry point, so these hold the account lock.

// SetAdmin adds or removes an admin, gated on the caller's admin status.
func (a *Account) SetAdmin(caller, target common.Address, enabled bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.SetAdmin(caller, target, enabled)
}

// RequestPermissionGrant verifies and applies a signed permission request.
func (a *Account) RequestPermissionGrant(req business.PermissionRequest, signature []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.RequestGrant(req, signature)
}

// PermissionRequestDigest exposes the digest admins sign off-line.
func (a *Account) PermissionRequestDigest(req business.PermissionRequest) common.Hash {
	return a.registry.RequestDigest(req)
}

// IsAdmin reports admin membership.
func (a *Account) IsAdmin(addr common.Address) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.IsAdmin(addr)
}

// IsActiveSigner reports whether addr holds a currently usable grant.
func (a *Account) IsActiveSigner(addr common.Address) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.IsActiveSigner(addr)
}

// Permission returns addr's stored grant, if any.
func (a *Account) Permission(addr common.Address) (business.SignerPermission, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.Permission(addr)
}

// Admins enumerates the admin set.
func (a *Account) Admins() []common.Address {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.Admins()
}

// Signers enumerates every principal that ever received a grant.
func (a *Account) Signers() []common.Address {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.Signers()
}

// ActiveSigners enumerates the currently active signers.
func (a *Account) ActiveSigners() []common.Address {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.ActiveSigners()
}

// Extension router passthroughs, admin-gated.

// AddExtension installs an extension. Admin only.
func (a *Account) AddExtension(caller common.Address, ext business.Extension, handler router.Implementation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.registry.IsAdmin(caller) {
		return ErrNotAuthorized
	}
	return a.router.AddExtension(ext, handler)
}

// ReplaceExtension swaps an installed extension. Admin only.
func (a *Account) ReplaceExtension(caller common.Address, ext business.Extension, handler router.Implementation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.registry.IsAdmin(caller) {
		return ErrNotAuthorized
	}
	return a.router.ReplaceExtension(ext, handler)
}

// RemoveExtension uninstalls an extension. Admin only.
func (a *Account) RemoveExtension(caller common.Address, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.registry.IsAdmin(caller) {
		return ErrNotAuthorized
	}
	return a.router.RemoveExtension(name)
}

// EnableFunction binds one function into an installed extension. Admin only.
func (a *Account) EnableFunction(caller common.Address, name string, fn business.ExtensionFunction) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.registry.IsAdmin(caller) {
		return ErrNotAuthorized
	}
	return a.router.EnableFunction(name, fn)
}

// DisableFunction unbinds one selector from an installed extension. Admin only.
func (a *Account) DisableFunction(caller common.Address, name string, selector business.Selector) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.registry.IsAdmin(caller) {
		return ErrNotAuthorized
	}
	return a.router.DisableFunction(name, selector)
}

// Extensions enumerates installed extensions.
func (a *Account) Extensions() []business.Extension {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.router.Extensions()
}

// RouteCall resolves the implementation serving selector.
func (a *Account) RouteCall(selector business.Selector) (router.Implementation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.router.RouteCall(selector)
}
