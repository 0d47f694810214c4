package business

import "github.com/ethereum/go-ethereum/common"

// ExtensionFunction binds one operation identifier to its canonical
// signature string inside an extension.
type ExtensionFunction struct {
	Selector  Selector `json:"selector"`
	Signature string   `json:"signature"`
}

// ExtensionMetadata is the display portion of an extension entry.
type ExtensionMetadata struct {
	Name           string         `json:"name"`
	MetadataURI    string         `json:"metadata_uri"`
	Implementation common.Address `json:"implementation"`
}

// Extension is a named bundle of operation bindings routed to one
// implementation. It is added, replaced, and removed as a unit.
type Extension struct {
	Metadata  ExtensionMetadata   `json:"metadata"`
	Functions []ExtensionFunction `json:"functions"`
}
