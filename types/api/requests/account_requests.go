package requests

// CreateAccountRequest represents the request body for deploying an account
type CreateAccountRequest struct {
	Admin    string `json:"admin" binding:"required"`
	InitData string `json:"init_data,omitempty"` // hex-encoded, 0x prefix optional
}

// PermissionGrantRequest carries an admin-signed permission request. All
// numeric windows are unix seconds; UID and signature are hex-encoded.
type PermissionGrantRequest struct {
	Signer           string   `json:"signer" binding:"required"`
	ApprovedTargets  []string `json:"approved_targets"`
	NativeTokenLimit string   `json:"native_token_limit,omitempty"` // decimal wei
	PermissionStart  uint64   `json:"permission_start"`
	PermissionEnd    uint64   `json:"permission_end"`
	ValidityStart    uint64   `json:"validity_start"`
	ValidityEnd      uint64   `json:"validity_end"`
	UID              string   `json:"uid" binding:"required"`
	Signature        string   `json:"signature,omitempty"`
}

// SetAdminRequest toggles an address's admin role on an account.
type SetAdminRequest struct {
	Target  string `json:"target" binding:"required"`
	Enabled bool   `json:"enabled"`
}
