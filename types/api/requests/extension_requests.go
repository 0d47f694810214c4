package requests

// ExtensionFunctionRequest declares one routable function.
type ExtensionFunctionRequest struct {
	Selector  string `json:"selector" binding:"required"` // hex, 4 bytes
	Signature string `json:"signature" binding:"required"`
}

// AddExtensionRequest installs or replaces an extension on an account.
type AddExtensionRequest struct {
	Name           string                     `json:"name" binding:"required"`
	MetadataURI    string                     `json:"metadata_uri,omitempty"`
	Implementation string                     `json:"implementation" binding:"required"`
	Functions      []ExtensionFunctionRequest `json:"functions"`
}

// EnableFunctionRequest adds one function to an installed extension.
type EnableFunctionRequest struct {
	Function ExtensionFunctionRequest `json:"function" binding:"required"`
}
