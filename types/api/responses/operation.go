package responses

// ValidationResponse reports the soft outcome of operation validation.
type ValidationResponse struct {
	SigFailed  bool   `json:"sig_failed"`
	ValidAfter uint64 `json:"valid_after"`
	ValidUntil uint64 `json:"valid_until"`
	Valid      bool   `json:"valid"`
}

// ExecuteResponse carries the return data of a forwarded call batch.
type ExecuteResponse struct {
	ReturnData string `json:"return_data,omitempty"` // hex-encoded
}

// ExtensionFunctionResponse mirrors one routable function.
type ExtensionFunctionResponse struct {
	Selector  string `json:"selector"`
	Signature string `json:"signature"`
}

// ExtensionResponse mirrors an installed extension.
type ExtensionResponse struct {
	Name           string                      `json:"name"`
	MetadataURI    string                      `json:"metadata_uri,omitempty"`
	Implementation string                      `json:"implementation"`
	Functions      []ExtensionFunctionResponse `json:"functions"`
}
