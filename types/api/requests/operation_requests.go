package requests

// CallRequest is one forwarded call inside an operation.
type CallRequest struct {
	Target string `json:"target" binding:"required"`
	Value  string `json:"value,omitempty"` // decimal wei
	Data   string `json:"data,omitempty"`  // hex-encoded
}

// OperationRequest represents a signed account operation. Selector and
// signature are hex-encoded; nonce is decimal (key in the high 192 bits).
type OperationRequest struct {
	Account   string        `json:"account" binding:"required"`
	Selector  string        `json:"selector" binding:"required"`
	Calls     []CallRequest `json:"calls" binding:"required"`
	Nonce     string        `json:"nonce" binding:"required"`
	Signature string        `json:"signature,omitempty"`
	// MissingFunds is the prefund (decimal wei) the coordinator asks the
	// account to cover if validation succeeds. Only read during validate.
	MissingFunds string `json:"missing_funds,omitempty"`
}

// ExecuteRequest forwards calls through an account without the validation
// step; the authenticated caller must be an admin or the entry point.
type ExecuteRequest struct {
	Selector string        `json:"selector" binding:"required"`
	Calls    []CallRequest `json:"calls" binding:"required"`
}
