package handlers

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/keyfold/keyfold/db"
	"github.com/keyfold/keyfold/types/api/requests"
	"github.com/keyfold/keyfold/types/api/responses"
	"github.com/keyfold/keyfold/types/business"
)

// AccountHandler exposes account deployment and registry operations.
type AccountHandler struct {
	common *CommonServices
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(common *CommonServices) *AccountHandler {
	return &AccountHandler{common: common}
}

// CreateAccount deploys the account for an admin/init-data pair. Repeating
// the request returns the existing account.
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req requests.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	admin, ok := parseAddressField(c, "admin", req.Admin)
	if !ok {
		return
	}
	initData, ok := parseHexField(c, "init_data", req.InitData)
	if !ok {
		return
	}

	account, err := h.common.accounts.CreateAccount(c.Request.Context(), admin, initData)
	if err != nil {
		handleServiceError(c, err, "Failed to create account")
		return
	}

	sendSuccess(c, http.StatusCreated, responses.AccountResponse{
		Object:  "account",
		Address: account.Address().Hex(),
		Admin:   admin.Hex(),
		Salt:    account.Salt().Hex(),
		Admins:  hexAddresses(account.Admins()),
		Signers: hexAddresses(account.ActiveSigners()),
	})
}

// PredictAddress returns the counterfactual address without deploying.
func (h *AccountHandler) PredictAddress(c *gin.Context) {
	var req requests.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	admin, ok := parseAddressField(c, "admin", req.Admin)
	if !ok {
		return
	}
	initData, ok := parseHexField(c, "init_data", req.InitData)
	if !ok {
		return
	}

	sendSuccess(c, http.StatusOK, responses.PredictAddressResponse{
		Address: h.common.accounts.PredictAddress(admin, initData).Hex(),
	})
}

// GetAccount returns the persisted record plus the live admin/signer sets.
func (h *AccountHandler) GetAccount(c *gin.Context) {
	addr, ok := parseAddressParam(c, "address")
	if !ok {
		return
	}

	rec, err := h.common.accounts.GetAccountRecord(c.Request.Context(), addr)
	if err != nil {
		handleServiceError(c, err, "Failed to get account")
		return
	}
	account, err := h.common.accounts.GetAccount(addr)
	if err != nil {
		handleServiceError(c, err, "Failed to get account")
		return
	}

	sendSuccess(c, http.StatusOK, responses.AccountResponse{
		Object:    "account",
		Address:   rec.Address.Hex(),
		Admin:     rec.Admin.Hex(),
		Salt:      rec.Salt.Hex(),
		CreatedAt: rec.CreatedAt.Unix(),
		Admins:    hexAddresses(account.Admins()),
		Signers:   hexAddresses(account.ActiveSigners()),
	})
}

// ListAccounts returns every deployed account.
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	recs, err := h.common.accounts.ListAccounts(c.Request.Context())
	if err != nil {
		handleServiceError(c, err, "Failed to list accounts")
		return
	}
	sendList(c, accountResponses(recs))
}

// ListAccountsBySigner returns the accounts a signer currently holds a
// role on.
func (h *AccountHandler) ListAccountsBySigner(c *gin.Context) {
	signer, ok := parseAddressParam(c, "signer")
	if !ok {
		return
	}

	recs, err := h.common.accounts.AccountsBySigner(c.Request.Context(), signer)
	if err != nil {
		handleServiceError(c, err, "Failed to list accounts by signer")
		return
	}
	sendList(c, accountResponses(recs))
}

// PermissionGrantDigest returns the digest an admin must sign to apply
// the permission request.
func (h *AccountHandler) PermissionGrantDigest(c *gin.Context) {
	addr, ok := parseAddressParam(c, "address")
	if !ok {
		return
	}
	req, ok := h.bindPermissionRequest(c)
	if !ok {
		return
	}

	digest, err := h.common.accounts.PermissionRequestDigest(addr, req)
	if err != nil {
		handleServiceError(c, err, "Failed to compute grant digest")
		return
	}
	sendSuccess(c, http.StatusOK, responses.DigestResponse{Digest: digest.Hex()})
}

// SubmitPermissionGrant applies an admin-signed permission request.
func (h *AccountHandler) SubmitPermissionGrant(c *gin.Context) {
	addr, ok := parseAddressParam(c, "address")
	if !ok {
		return
	}

	var body requests.PermissionGrantRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req, ok := h.permissionRequestFromBody(c, body)
	if !ok {
		return
	}
	sig, ok := parseHexField(c, "signature", body.Signature)
	if !ok {
		return
	}

	if err := h.common.accounts.SubmitPermissionGrant(addr, req, sig); err != nil {
		handleServiceError(c, err, "Failed to apply permission grant")
		return
	}
	sendSuccess(c, http.StatusOK, responses.SuccessResponse{Message: "Permission grant applied"})
}

// GetPermission returns the stored permission for a signer.
func (h *AccountHandler) GetPermission(c *gin.Context) {
	addr, ok := parseAddressParam(c, "address")
	if !ok {
		return
	}
	signer, ok := parseAddressParam(c, "signer")
	if !ok {
		return
	}

	account, err := h.common.accounts.GetAccount(addr)
	if err != nil {
		handleServiceError(c, err, "Failed to get account")
		return
	}
	perm, found := account.Permission(signer)
	if !found {
		sendError(c, http.StatusNotFound, "No permission for signer", nil)
		return
	}

	limit := "0"
	if perm.NativeTokenLimit != nil {
		limit = perm.NativeTokenLimit.String()
	}
	sendSuccess(c, http.StatusOK, responses.PermissionResponse{
		Signer:           perm.Signer.Hex(),
		ApprovedTargets:  hexAddresses(perm.ApprovedTargets),
		NativeTokenLimit: limit,
		PermissionStart:  perm.StartTimestamp,
		PermissionEnd:    perm.EndTimestamp,
	})
}

// SetAdmin toggles an address's admin role. The authenticated caller must
// already be an admin of the account.
func (h *AccountHandler) SetAdmin(c *gin.Context) {
	addr, ok := parseAddressParam(c, "address")
	if !ok {
		return
	}
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var body requests.SetAdminRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	target, ok := parseAddressField(c, "target", body.Target)
	if !ok {
		return
	}

	if err := h.common.accounts.SetAdmin(addr, caller, target, body.Enabled); err != nil {
		handleServiceError(c, err, "Failed to set admin")
		return
	}
	sendSuccess(c, http.StatusOK, responses.SuccessResponse{Message: "Admin updated"})
}

// GetNonce returns the next expected sequence for a nonce key.
func (h *AccountHandler) GetNonce(c *gin.Context) {
	addr, ok := parseAddressParam(c, "address")
	if !ok {
		return
	}
	key, ok := parseBigField(c, "key", c.DefaultQuery("key", "0"))
	if !ok {
		return
	}

	seq, err := h.common.accounts.Nonce(addr, key)
	if err != nil {
		handleServiceError(c, err, "Failed to get nonce")
		return
	}
	sendSuccess(c, http.StatusOK, responses.NonceResponse{Key: key.String(), Sequence: seq})
}

func (h *AccountHandler) bindPermissionRequest(c *gin.Context) (business.PermissionRequest, bool) {
	var body requests.PermissionGrantRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return business.PermissionRequest{}, false
	}
	return h.permissionRequestFromBody(c, body)
}

func (h *AccountHandler) permissionRequestFromBody(c *gin.Context, body requests.PermissionGrantRequest) (business.PermissionRequest, bool) {
	signer, ok := parseAddressField(c, "signer", body.Signer)
	if !ok {
		return business.PermissionRequest{}, false
	}
	targets := make([]common.Address, 0, len(body.ApprovedTargets))
	for _, t := range body.ApprovedTargets {
		target, ok := parseAddressField(c, "approved_targets", t)
		if !ok {
			return business.PermissionRequest{}, false
		}
		targets = append(targets, target)
	}
	limit, ok := parseBigField(c, "native_token_limit", body.NativeTokenLimit)
	if !ok {
		return business.PermissionRequest{}, false
	}
	uid, ok := parseHexField(c, "uid", body.UID)
	if !ok || len(uid) != 32 {
		if ok {
			sendError(c, http.StatusBadRequest, "Invalid uid: must be 32 bytes", nil)
		}
		return business.PermissionRequest{}, false
	}

	return business.PermissionRequest{
		Signer:           signer,
		ApprovedTargets:  targets,
		NativeTokenLimit: limit,
		PermissionStart:  body.PermissionStart,
		PermissionEnd:    body.PermissionEnd,
		ValidityStart:    body.ValidityStart,
		ValidityEnd:      body.ValidityEnd,
		UID:              common.BytesToHash(uid),
	}, true
}

func hexAddresses(addrs []common.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Hex()
	}
	return out
}

func accountResponses(recs []db.AccountRecord) []responses.AccountResponse {
	out := make([]responses.AccountResponse, len(recs))
	for i, rec := range recs {
		out[i] = responses.AccountResponse{
			Object:    "account",
			Address:   rec.Address.Hex(),
			Admin:     rec.Admin.Hex(),
			Salt:      rec.Salt.Hex(),
			CreatedAt: rec.CreatedAt.Unix(),
		}
	}
	return out
}
