package handlers

import (
	"encoding/hex"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/keyfold/keyfold/gateway"
	"github.com/keyfold/keyfold/logger"
	"github.com/keyfold/keyfold/permissions"
	"github.com/keyfold/keyfold/router"
	"github.com/keyfold/keyfold/services"
	"github.com/keyfold/keyfold/sigauth"
	"github.com/keyfold/keyfold/types/api/responses"
	"github.com/keyfold/keyfold/types/business"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// CommonServices holds common dependencies used across handlers
type CommonServices struct {
	accounts *services.AccountService
	logger   *zap.Logger
}

// NewCommonServices creates a new instance of CommonServices
func NewCommonServices(accounts *services.AccountService) *CommonServices {
	return &CommonServices{
		accounts: accounts,
		logger:   logger.Log,
	}
}

// sendError logs the error and sends a JSON error response with the
// request's correlation ID attached for debugging.
func sendError(c *gin.Context, statusCode int, message string, err error) {
	correlationID := ""
	if id, exists := c.Get("correlationID"); exists {
		correlationID, _ = id.(string)
	}

	if logger.Log != nil {
		logger.Log.Error(message,
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.String("correlation_id", correlationID),
		)
	}

	c.JSON(statusCode, responses.ErrorResponse{
		Error:         message,
		CorrelationID: correlationID,
	})
}

// sendSuccess sends a success response
func sendSuccess(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// sendList sends a list response
func sendList(c *gin.Context, items interface{}) {
	c.JSON(http.StatusOK, responses.ListResponse{Object: "list", Data: items})
}

// handleServiceError maps service and account errors to HTTP status codes.
func handleServiceError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, services.ErrAccountNotFound):
		sendError(c, http.StatusNotFound, "Account not found", err)
	case errors.Is(err, permissions.ErrNotAuthorized),
		errors.Is(err, gateway.ErrNotAuthorized):
		sendError(c, http.StatusForbidden, "Not authorized", err)
	case errors.Is(err, permissions.ErrAlreadyProcessed),
		errors.Is(err, permissions.ErrRequestNotYetValid),
		errors.Is(err, permissions.ErrRequestExpired),
		errors.Is(err, permissions.ErrSignerIsAdmin),
		errors.Is(err, permissions.ErrLastAdmin),
		errors.Is(err, gateway.ErrInvalidNonce),
		errors.Is(err, gateway.ErrMalformedOperation),
		errors.Is(err, router.ErrExtensionExists),
		errors.Is(err, router.ErrUnknownExtension),
		errors.Is(err, router.ErrEmptyName),
		errors.Is(err, router.ErrNilImplementation),
		errors.Is(err, router.ErrSelectorBound),
		errors.Is(err, router.ErrSelectorMismatch),
		errors.Is(err, router.ErrFunctionNotInExtension),
		errors.Is(err, router.ErrNoSuchOperation),
		errors.Is(err, sigauth.ErrInvalidSignatureFormat),
		errors.Is(err, sigauth.ErrInvalidSignatureValue):
		sendError(c, http.StatusBadRequest, err.Error(), err)
	default:
		sendError(c, http.StatusInternalServerError, message, err)
	}
}

// requireCaller pulls the authenticated caller set by the auth middleware.
func requireCaller(c *gin.Context) (common.Address, bool) {
	v, exists := c.Get("callerAddress")
	if !exists {
		sendError(c, http.StatusUnauthorized, "Missing authenticated caller", nil)
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	if !ok {
		sendError(c, http.StatusUnauthorized, "Missing authenticated caller", nil)
		return common.Address{}, false
	}
	return addr, true
}

func parseAddressParam(c *gin.Context, name string) (common.Address, bool) {
	raw := c.Param(name)
	if !common.IsHexAddress(raw) {
		sendError(c, http.StatusBadRequest, "Invalid address: "+raw, nil)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func parseAddressField(c *gin.Context, field, raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		sendError(c, http.StatusBadRequest, "Invalid "+field+" address: "+raw, nil)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// decodeHex accepts a hex string with or without the 0x prefix. Empty
// input decodes to nil.
func decodeHex(raw string) ([]byte, error) {
	raw = strings.TrimPrefix(raw, "0x")
	if raw == "" {
		return nil, nil
	}
	return hex.DecodeString(raw)
}

func parseHexField(c *gin.Context, field, raw string) ([]byte, bool) {
	b, err := decodeHex(raw)
	if err != nil {
		sendError(c, http.StatusBadRequest, "Invalid hex in "+field, err)
		return nil, false
	}
	return b, true
}

func parseSelectorField(c *gin.Context, raw string) (business.Selector, bool) {
	b, err := decodeHex(raw)
	if err != nil || len(b) != 4 {
		sendError(c, http.StatusBadRequest, "Invalid selector: "+raw, err)
		return business.Selector{}, false
	}
	var sel business.Selector
	copy(sel[:], b)
	return sel, true
}

// parseBigField parses a decimal big integer. Empty input is zero.
func parseBigField(c *gin.Context, field, raw string) (*big.Int, bool) {
	if raw == "" {
		return new(big.Int), true
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		sendError(c, http.StatusBadRequest, "Invalid "+field+": "+raw, nil)
		return nil, false
	}
	return v, true
}

func encodeHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return "0x" + hex.EncodeToString(b)
}
