package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/keyfold/keyfold/types/api/requests"
	"github.com/keyfold/keyfold/types/api/responses"
	"github.com/keyfold/keyfold/types/business"
)

// OperationHandler exposes operation validation and execution.
type OperationHandler struct {
	common *CommonServices
	// now supplies the unix clock for the validity check in responses.
	now func() uint64
}

// NewOperationHandler creates a new operation handler
func NewOperationHandler(common *CommonServices, now func() uint64) *OperationHandler {
	return &OperationHandler{common: common, now: now}
}

// OperationDigest returns the digest a signer must sign for the operation.
func (h *OperationHandler) OperationDigest(c *gin.Context) {
	op, _, ok := h.bindOperation(c)
	if !ok {
		return
	}

	digest, err := h.common.accounts.OperationDigest(op)
	if err != nil {
		handleServiceError(c, err, "Failed to compute operation digest")
		return
	}
	sendSuccess(c, http.StatusOK, responses.DigestResponse{Digest: digest.Hex()})
}

// ValidateOperation runs signature and scope validation. Hard failures
// (unknown account, nonce mismatch, malformed input) map to error
// statuses; signature or scope rejections come back as a 200 with
// sig_failed set, mirroring the soft-failure contract.
func (h *OperationHandler) ValidateOperation(c *gin.Context) {
	op, body, ok := h.bindOperation(c)
	if !ok {
		return
	}
	missingFunds, ok := parseBigField(c, "missing_funds", body.MissingFunds)
	if !ok {
		return
	}

	result, err := h.common.accounts.Validate(op, missingFunds)
	if err != nil {
		handleServiceError(c, err, "Failed to validate operation")
		return
	}

	sendSuccess(c, http.StatusOK, responses.ValidationResponse{
		SigFailed:  result.SigFailed,
		ValidAfter: result.ValidAfter,
		ValidUntil: result.ValidUntil,
		Valid:      result.OK(h.now()),
	})
}

// ExecuteOperation forwards calls through the account. The authenticated
// caller must be an admin or the entry point; signed-operation flows
// validate first, then execute.
func (h *OperationHandler) ExecuteOperation(c *gin.Context) {
	addr, ok := parseAddressParam(c, "address")
	if !ok {
		return
	}
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var body requests.ExecuteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	selector, ok := parseSelectorField(c, body.Selector)
	if !ok {
		return
	}
	calls, ok := h.parseCalls(c, body.Calls)
	if !ok {
		return
	}

	ret, err := h.common.accounts.Execute(c.Request.Context(), addr, caller, selector, calls)
	if err != nil {
		handleServiceError(c, err, "Failed to execute operation")
		return
	}
	sendSuccess(c, http.StatusOK, responses.ExecuteResponse{ReturnData: encodeHex(ret)})
}

func (h *OperationHandler) bindOperation(c *gin.Context) (*business.Operation, requests.OperationRequest, bool) {
	var body requests.OperationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return nil, body, false
	}

	account, ok := parseAddressField(c, "account", body.Account)
	if !ok {
		return nil, body, false
	}
	selector, ok := parseSelectorField(c, body.Selector)
	if !ok {
		return nil, body, false
	}
	calls, ok := h.parseCalls(c, body.Calls)
	if !ok {
		return nil, body, false
	}
	nonce, ok := parseBigField(c, "nonce", body.Nonce)
	if !ok {
		return nil, body, false
	}
	sig, ok := parseHexField(c, "signature", body.Signature)
	if !ok {
		return nil, body, false
	}

	return &business.Operation{
		Account:   account,
		Selector:  selector,
		Calls:     calls,
		Nonce:     nonce,
		Signature: sig,
	}, body, true
}

func (h *OperationHandler) parseCalls(c *gin.Context, reqs []requests.CallRequest) ([]business.Call, bool) {
	calls := make([]business.Call, 0, len(reqs))
	for _, r := range reqs {
		target, ok := parseAddressField(c, "target", r.Target)
		if !ok {
			return nil, false
		}
		value, ok := parseBigField(c, "value", r.Value)
		if !ok {
			return nil, false
		}
		data, ok := parseHexField(c, "data", r.Data)
		if !ok {
			return nil, false
		}
		calls = append(calls, business.Call{Target: target, Value: value, Data: data})
	}
	return calls, true
}
