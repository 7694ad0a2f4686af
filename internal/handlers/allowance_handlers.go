package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cyphera/agent-delegation/internal/delegation"
	"github.com/cyphera/agent-delegation/internal/services"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
)

// AllowanceHandler answers "how much can still be spent" queries
type AllowanceHandler struct {
	common *CommonServices
}

// NewAllowanceHandler creates a new AllowanceHandler instance
func NewAllowanceHandler(common *CommonServices) *AllowanceHandler {
	return &AllowanceHandler{common: common}
}

// TokenPermissionRequest is one token's permission context in an allowance
// query. TokenAddress empty means native currency.
type TokenPermissionRequest struct {
	TokenAddress      string          `json:"token_address,omitempty"`
	PermissionContext string          `json:"permission_context" binding:"required"`
	Scope             json.RawMessage `json:"scope,omitempty"`
}

// QueryAllowancesRequest is the body for POST /api/v1/allowances/query.
type QueryAllowancesRequest struct {
	ChainID           uint64                   `json:"chain_id" binding:"required"`
	DelegationManager string                   `json:"delegation_manager,omitempty"`
	Tokens            []TokenPermissionRequest `json:"tokens" binding:"required"`
}

// QueryAllowances evaluates each token's permission context against live
// enforcer state, falling back to the stored scope per token when a live
// query fails.
func (h *AllowanceHandler) QueryAllowances(c *gin.Context) {
	var req QueryAllowancesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Tokens) == 0 {
		sendError(c, http.StatusBadRequest, "At least one token permission is required", nil)
		return
	}

	manager := h.common.delegationManager
	if req.DelegationManager != "" {
		if !IsAddressValid(req.DelegationManager) {
			sendError(c, http.StatusBadRequest, "Invalid delegation manager address", nil)
			return
		}
		manager = common.HexToAddress(req.DelegationManager)
	}

	perms := make([]services.TokenPermission, 0, len(req.Tokens))
	for _, t := range req.Tokens {
		perm := services.TokenPermission{}

		if t.TokenAddress != "" {
			if !IsAddressValid(t.TokenAddress) {
				sendError(c, http.StatusBadRequest, "Invalid token address", nil)
				return
			}
			addr := common.HexToAddress(t.TokenAddress)
			perm.Token = &addr
		}

		context, err := hexutil.Decode(t.PermissionContext)
		if err != nil {
			sendError(c, http.StatusBadRequest, "Permission context is not valid hex", err)
			return
		}
		perm.PermissionContext = context

		if len(t.Scope) > 0 {
			scope, err := delegation.UnmarshalScope(t.Scope)
			if err != nil {
				sendError(c, http.StatusBadRequest, "Invalid scope", err)
				return
			}
			perm.Scope = scope
		}

		perms = append(perms, perm)
	}

	report := h.common.allowances.QueryAllAllowances(c.Request.Context(), req.ChainID, manager, perms)
	sendSuccess(c, http.StatusOK, report)
}
