package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/keyfold/keyfold/types/api/requests"
	"github.com/keyfold/keyfold/types/api/responses"
	"github.com/keyfold/keyfold/types/business"
)

// ExtensionHandler exposes extension management on deployed accounts.
type ExtensionHandler struct {
	common *CommonServices
}

// NewExtensionHandler creates a new extension handler
func NewExtensionHandler(common *CommonServices) *ExtensionHandler {
	return &ExtensionHandler{common: common}
}

// ListExtensions returns the account's installed extensions in install
// order.
func (h *ExtensionHandler) ListExtensions(c *gin.Context) {
	addr, ok := parseAddressParam(c, "address")
	if !ok {
		return
	}

	exts, err := h.common.accounts.Extensions(addr)
	if err != nil {
		handleServiceError(c, err, "Failed to list extensions")
		return
	}

	out := make([]responses.ExtensionResponse, len(exts))
	for i, ext := range exts {
		out[i] = extensionResponse(ext)
	}
	sendList(c, out)
}

// AddExtension installs an extension. The authenticated caller must be an
// admin of the account.
func (h *ExtensionHandler) AddExtension(c *gin.Context) {
	h.upsertExtension(c, false)
}

// ReplaceExtension swaps an installed extension wholesale.
func (h *ExtensionHandler) ReplaceExtension(c *gin.Context) {
	h.upsertExtension(c, true)
}

func (h *ExtensionHandler) upsertExtension(c *gin.Context, replace bool) {
	addr, ok := parseAddressParam(c, "address")
	if !ok {
		return
	}
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var body requests.AddExtensionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	ext, ok := h.extensionFromBody(c, body)
	if !ok {
		return
	}

	var err error
	if replace {
		err = h.common.accounts.ReplaceExtension(addr, caller, ext)
	} else {
		err = h.common.accounts.AddExtension(addr, caller, ext)
	}
	if err != nil {
		handleServiceError(c, err, "Failed to install extension")
		return
	}
	sendSuccess(c, http.StatusOK, extensionResponse(ext))
}

// RemoveExtension uninstalls the named extension.
func (h *ExtensionHandler) RemoveExtension(c *gin.Context) {
	addr, ok := parseAddressParam(c, "address")
	if !ok {
		return
	}
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	name := c.Param("name")

	if err := h.common.accounts.RemoveExtension(addr, caller, name); err != nil {
		handleServiceError(c, err, "Failed to remove extension")
		return
	}
	sendSuccess(c, http.StatusOK, responses.SuccessResponse{Message: "Extension removed"})
}

// EnableFunction adds one function to an installed extension.
func (h *ExtensionHandler) EnableFunction(c *gin.Context) {
	addr, ok := parseAddressParam(c, "address")
	if !ok {
		return
	}
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	name := c.Param("name")

	var body requests.EnableFunctionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	selector, ok := parseSelectorField(c, body.Function.Selector)
	if !ok {
		return
	}
	fn := business.ExtensionFunction{Selector: selector, Signature: body.Function.Signature}

	if err := h.common.accounts.EnableFunction(addr, caller, name, fn); err != nil {
		handleServiceError(c, err, "Failed to enable function")
		return
	}
	sendSuccess(c, http.StatusOK, responses.SuccessResponse{Message: "Function enabled"})
}

// DisableFunction removes one selector from an installed extension.
func (h *ExtensionHandler) DisableFunction(c *gin.Context) {
	addr, ok := parseAddressParam(c, "address")
	if !ok {
		return
	}
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	name := c.Param("name")
	selector, ok := parseSelectorField(c, c.Param("selector"))
	if !ok {
		return
	}

	if err := h.common.accounts.DisableFunction(addr, caller, name, selector); err != nil {
		handleServiceError(c, err, "Failed to disable function")
		return
	}
	sendSuccess(c, http.StatusOK, responses.SuccessResponse{Message: "Function disabled"})
}

func (h *ExtensionHandler) extensionFromBody(c *gin.Context, body requests.AddExtensionRequest) (business.Extension, bool) {
	impl, ok := parseAddressField(c, "implementation", body.Implementation)
	if !ok {
		return business.Extension{}, false
	}

	functions := make([]business.ExtensionFunction, 0, len(body.Functions))
	for _, f := range body.Functions {
		selector, ok := parseSelectorField(c, f.Selector)
		if !ok {
			return business.Extension{}, false
		}
		functions = append(functions, business.ExtensionFunction{
			Selector:  selector,
			Signature: f.Signature,
		})
	}

	return business.Extension{
		Metadata: business.ExtensionMetadata{
			Name:           body.Name,
			MetadataURI:    body.MetadataURI,
			Implementation: impl,
		},
		Functions: functions,
	}, true
}

func extensionResponse(ext business.Extension) responses.ExtensionResponse {
	functions := make([]responses.ExtensionFunctionResponse, len(ext.Functions))
	for i, f := range ext.Functions {
		functions[i] = responses.ExtensionFunctionResponse{
			Selector:  f.Selector.String(),
			Signature: f.Signature,
		}
	}
	return responses.ExtensionResponse{
		Name:           ext.Metadata.Name,
		MetadataURI:    ext.Metadata.MetadataURI,
		Implementation: ext.Metadata.Implementation.Hex(),
		Functions:      functions,
	}
}
