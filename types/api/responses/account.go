package responses

// AccountResponse represents the standardized API response for an account
type AccountResponse struct {
	Object    string   `json:"object"`
	Address   string   `json:"address"`
	Admin     string   `json:"admin"`
	Salt      string   `json:"salt"`
	CreatedAt int64    `json:"created_at"`
	Admins    []string `json:"admins,omitempty"`
	Signers   []string `json:"signers,omitempty"`
}

// PredictAddressResponse carries the counterfactual address for an
// admin/init-data pair.
type PredictAddressResponse struct {
	Address string `json:"address"`
}

// PermissionResponse mirrors an active signer permission.
type PermissionResponse struct {
	Signer           string   `json:"signer"`
	ApprovedTargets  []string `json:"approved_targets"`
	NativeTokenLimit string   `json:"native_token_limit"`
	PermissionStart  uint64   `json:"permission_start"`
	PermissionEnd    uint64   `json:"permission_end"`
}

// DigestResponse returns the digest a caller must sign.
type DigestResponse struct {
	Digest string `json:"digest"`
}

// NonceResponse returns the next expected sequence for a nonce key.
type NonceResponse struct {
	Key      string `json:"key"`
	Sequence uint64 `json:"sequence"`
}
