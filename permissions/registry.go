// Package permissions implements the account's permission registry: the
// admin set, per-signer scope grants, and the processed-request ledger
// providing at-most-once execution of signed authorization requests.
package permissions

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/keyfold/keyfold/constants"
	"github.com/keyfold/keyfold/sigauth"
	"github.com/keyfold/keyfold/storage"
	"github.com/keyfold/keyfold/types/business"
)

var (
	// ErrNotAuthorized is returned when a mutation is attempted by, or a
	// request is signed by, a principal without admin authority.
	ErrNotAuthorized = errors.New("permissions: caller is not an admin")

	// ErrAlreadyProcessed is returned when a request UID was consumed by a
	// previous grant. Consumed UIDs never authorize again.
	ErrAlreadyProcessed = errors.New("permissions: request already processed")

	// ErrRequestNotYetValid is returned before the request validity window.
	ErrRequestNotYetValid = errors.New("permissions: request not yet valid")

	// ErrRequestExpired is returned after the request validity window.
	ErrRequestExpired = errors.New("permissions: request expired")

	// ErrSignerIsAdmin is returned when granting scoped permissions to a
	// principal that already holds unrestricted admin authority.
	ErrSignerIsAdmin = errors.New("permissions: target signer is already an admin")

	// ErrLastAdmin is returned when removing the only remaining admin,
	// which would strand the account.
	ErrLastAdmin = errors.New("permissions: cannot remove the last admin")

	// ErrAlreadySeeded is returned when seeding an admin into a registry
	// that already has one.
	ErrAlreadySeeded = errors.New("permissions: admin set already seeded")
)

// requestTypeHash is the type descriptor bound into every signed
// permission request digest.
var requestTypeHash = crypto.Keccak256Hash([]byte(
	"PermissionRequest(address signer,address[] approvedTargets,uint256 nativeTokenLimit," +
		"uint64 permissionStart,uint64 permissionEnd,uint64 validityStart,uint64 validityEnd,bytes32 uid)",
))

// Hook receives side-effect notifications when the registry's membership
// changes, e.g. so the creating factory can keep its signer index current.
// Callbacks must be idempotent per (account, signer) pair.
type Hook interface {
	OnSignerAdded(account, signer common.Address)
	OnSignerRemoved(account, signer common.Address)
	OnAdminSet(account, admin common.Address, enabled bool)
}

// state is the registry's storage partition.
type state struct {
	admins    *storage.AddressSet
	signers   *storage.AddressSet
	grants    map[common.Address]business.SignerPermission
	processed map[common.Hash]bool
}

// Config assembles a registry for one account instance.
type Config struct {
	Account common.Address
	ChainID uint64
	Layout  *storage.Layout
	Hooks   []Hook
	// Now supplies the current unix timestamp; defaults to the wall clock.
	Now func() uint64
}

// Registry holds the permission state of a single account. It is not safe
// for concurrent use on its own; the owning account serializes access.
type Registry struct {
	account common.Address
	domain  sigauth.Domain
	state   *state
	hooks   []Hook
	now     func() uint64
}

// NewRegistry creates the registry and claims its storage partition in
// the account's layout.
func NewRegistry(cfg Config) (*Registry, error) {
	st := &state{
		admins:    storage.NewAddressSet(),
		signers:   storage.NewAddressSet(),
		grants:    make(map[common.Address]business.SignerPermission),
		processed: make(map[common.Hash]bool),
	}
	if err := cfg.Layout.Register(constants.PermissionsStorageLabel, st); err != nil {
		return nil, err
	}

	now := cfg.Now
	if now == nil {
		now = func() uint64 { return uint64(time.Now().Unix()) }
	}

	return &Registry{
		account: cfg.Account,
		domain: sigauth.Domain{
			Name:              constants.SigningDomainName,
			Version:           constants.SigningDomainVersion,
			ChainID:           cfg.ChainID,
			VerifyingContract: cfg.Account,
		},
		state: st,
		hooks: cfg.Hooks,
		now:   now,
	}, nil
}

// SeedAdmin installs the creating admin. Valid exactly once, while the
// admin set is still empty.
func (r *Registry) SeedAdmin(admin common.Address) error {
	if r.state.admins.Len() != 0 {
		return ErrAlreadySeeded
	}
	r.state.admins.Add(admin)
	for _, h := range r.hooks {
		h.OnAdminSet(r.account, admin, true)
	}
	return nil
}

// SetAdmin adds or removes target from the admin set. Only an existing
// admin may call it; the change is idempotent.
func (r *Registry) SetAdmin(caller, target common.Address, enabled bool) error {
	if !r.IsAdmin(caller) {
		return ErrNotAuthorized
	}
	if enabled {
		if !r.state.admins.Add(target) {
			return nil
		}
	} else {
		if r.state.admins.Len() == 1 && r.state.admins.Contains(target) {
			return ErrLastAdmin
		}
		if !r.state.admins.Remove(target) {
			return nil
		}
	}
	for _, h := range r.hooks {
		h.OnAdminSet(r.account, target, enabled)
	}
	return nil
}

// RequestDigest computes the domain-separated digest an admin signs to
// authorize req. Exposed so off-line signers produce exactly the digest
// the registry verifies.
func (r *Registry) RequestDigest(req business.PermissionRequest) common.Hash {
	enc := make([]byte, 0, 8*32)
	enc = append(enc, requestTypeHash.Bytes()...)
	enc = append(enc, sigauth.EncodeAddress(req.Signer)...)
	enc = append(enc, sigauth.HashAddressSlice(req.ApprovedTargets).Bytes()...)
	enc = append(enc, sigauth.EncodeBig(req.NativeTokenLimit)...)
	enc = append(enc, sigauth.EncodeUint64(req.PermissionStart)...)
	enc = append(enc, sigauth.EncodeUint64(req.PermissionEnd)...)
	enc = append(enc, sigauth.EncodeUint64(req.ValidityStart)...)
	enc = append(enc, sigauth.EncodeUint64(req.ValidityEnd)...)
	enc = append(enc, req.UID.Bytes()...)
	return r.domain.Digest(crypto.Keccak256Hash(enc))
}

// RequestGrant verifies a signed permission request and, on success,
// consumes its UID and replaces the target signer's scope wholesale. The
// previous approved-target set is wiped, never merged.
func (r *Registry) RequestGrant(req business.PermissionRequest, signature []byte) error {
	if r.IsAdmin(req.Signer) {
		return ErrSignerIsAdmin
	}

	now := r.now()
	if now < req.ValidityStart {
		return ErrRequestNotYetValid
	}
	if now >= req.ValidityEnd {
		return ErrRequestExpired
	}

	if r.state.processed[req.UID] {
		return ErrAlreadyProcessed
	}

	signer, err := sigauth.RecoverSigner(r.RequestDigest(req), signature)
	if err != nil {
		return err
	}
	if !r.IsAdmin(signer) {
		return ErrNotAuthorized
	}

	r.state.processed[req.UID] = true

	grant := req.Permission()
	r.state.grants[req.Signer] = grant
	r.state.signers.Add(req.Signer)

	for _, h := range r.hooks {
		if len(grant.ApprovedTargets) > 0 {
			h.OnSignerAdded(r.account, req.Signer)
		} else {
			h.OnSignerRemoved(r.account, req.Signer)
		}
	}
	return nil
}

// IsAdmin reports admin membership.
func (r *Registry) IsAdmin(addr common.Address) bool {
	return r.state.admins.Contains(addr)
}

// IsActiveSigner reports whether addr holds a currently usable grant: the
// clock lies inside [start, end) and the approved-target set is non-empty.
func (r *Registry) IsActiveSigner(addr common.Address) bool {
	grant, ok := r.state.grants[addr]
	return ok && grant.IsActiveAt(r.now())
}

// Permission returns addr's stored grant, if any. Expired grants remain
// stored; only the active check is time-gated.
func (r *Registry) Permission(addr common.Address) (business.SignerPermission, bool) {
	grant, ok := r.state.grants[addr]
	return grant, ok
}

// Admins enumerates the admin set. Order is stable for unchanged entries
// but not across mutations.
func (r *Registry) Admins() []common.Address {
	return r.state.admins.Values()
}

// Signers enumerates every principal that ever received a grant.
func (r *Registry) Signers() []common.Address {
	return r.state.signers.Values()
}

// ActiveSigners enumerates the signers currently active under their
// grants.
func (r *Registry) ActiveSigners() []common.Address {
	all := r.state.signers.Values()
	active := make([]common.Address, 0, len(all))
	for _, s := range all {
		if r.IsActiveSigner(s) {
			active = append(active, s)
		}
	}
	return active
}

// IsProcessed reports whether uid was consumed by a previous request.
func (r *Registry) IsProcessed(uid common.Hash) bool {
	return r.state.processed[uid]
}
