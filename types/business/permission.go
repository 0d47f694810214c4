package business

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SignerPermission is the scope granted to a non-admin signer on one
// account. A grant always replaces the signer's previous scope wholesale;
// there is no partial merge.
type SignerPermission struct {
	Signer           common.Address   `json:"signer"`
	ApprovedTargets  []common.Address `json:"approved_targets"`
	NativeTokenLimit *big.Int         `json:"native_token_limit"`
	StartTimestamp   uint64           `json:"start_timestamp"`
	EndTimestamp     uint64           `json:"end_timestamp"`
}

// IsActiveAt reports whether the grant authorizes actions at time now.
// A signer is active iff now lies in [start, end) and the approved-target
// set is non-empty. Storage is never implicitly expired; only this check
// is time-gated.
func (p SignerPermission) IsActiveAt(now uint64) bool {
	return p.StartTimestamp <= now && now < p.EndTimestamp && len(p.ApprovedTargets) > 0
}

// ApprovesTarget reports whether target is in the approved-target set.
func (p SignerPermission) ApprovesTarget(target common.Address) bool {
	for _, t := range p.ApprovedTargets {
		if t == target {
			return true
		}
	}
	return false
}

// WithinValueLimit reports whether value does not exceed the per-call
// native token limit. A nil limit means zero.
func (p SignerPermission) WithinValueLimit(value *big.Int) bool {
	if value == nil || value.Sign() == 0 {
		return true
	}
	if p.NativeTokenLimit == nil {
		return false
	}
	return value.Cmp(p.NativeTokenLimit) <= 0
}

// PermissionRequest is the off-line-signed authorization request an admin
// produces to install a signer grant. UID is a requester-chosen identifier
// consumed at most once by the processed-request ledger.
type PermissionRequest struct {
	Signer           common.Address   `json:"signer"`
	ApprovedTargets  []common.Address `json:"approved_targets"`
	NativeTokenLimit *big.Int         `json:"native_token_limit"`
	PermissionStart  uint64           `json:"permission_start"`
	PermissionEnd    uint64           `json:"permission_end"`
	ValidityStart    uint64           `json:"validity_start"`
	ValidityEnd      uint64           `json:"validity_end"`
	UID              common.Hash      `json:"uid"`
}

// Permission returns the signer grant the request installs on success.
func (r PermissionRequest) Permission() SignerPermission {
	targets := make([]common.Address, len(r.ApprovedTargets))
	copy(targets, r.ApprovedTargets)
	limit := new(big.Int)
	if r.NativeTokenLimit != nil {
		limit.Set(r.NativeTokenLimit)
	}
	return SignerPermission{
		Signer:           r.Signer,
		ApprovedTargets:  targets,
		NativeTokenLimit: limit,
		StartTimestamp:   r.PermissionStart,
		EndTimestamp:     r.PermissionEnd,
	}
}
