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

// DiagnosisHandler classifies failed execution error messages
type DiagnosisHandler struct {
	common *CommonServices
}

// NewDiagnosisHandler creates a new DiagnosisHandler instance
func NewDiagnosisHandler(common *CommonServices) *DiagnosisHandler {
	return &DiagnosisHandler{common: common}
}

// DiagnoseRequest is the body for POST /api/v1/diagnoses. When a permission
// context is supplied, the diagnosis is enriched with live remaining
// allowance for that context.
type DiagnoseRequest struct {
	ErrorMessage      string          `json:"error_message" binding:"required"`
	ChainID           uint64          `json:"chain_id,omitempty"`
	DelegationManager string          `json:"delegation_manager,omitempty"`
	TokenAddress      string          `json:"token_address,omitempty"`
	PermissionContext string          `json:"permission_context,omitempty"`
	Scope             json.RawMessage `json:"scope,omitempty"`
}

// Diagnose classifies the failure message. Classification itself never
// fails; unrecognized input yields the Unknown code with generic remedies.
func (h *DiagnosisHandler) Diagnose(c *gin.Context) {
	var req DiagnoseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var state *services.AllowanceResult
	if req.PermissionContext != "" && req.ChainID != 0 {
		manager := h.common.delegationManager
		if req.DelegationManager != "" {
			if !IsAddressValid(req.DelegationManager) {
				sendError(c, http.StatusBadRequest, "Invalid delegation manager address", nil)
				return
			}
			manager = common.HexToAddress(req.DelegationManager)
		}

		context, err := hexutil.Decode(req.PermissionContext)
		if err != nil {
			sendError(c, http.StatusBadRequest, "Permission context is not valid hex", err)
			return
		}

		perm := services.TokenPermission{PermissionContext: context}
		if req.TokenAddress != "" {
			if !IsAddressValid(req.TokenAddress) {
				sendError(c, http.StatusBadRequest, "Invalid token address", nil)
				return
			}
			addr := common.HexToAddress(req.TokenAddress)
			perm.Token = &addr
		}
		if len(req.Scope) > 0 {
			scope, err := delegation.UnmarshalScope(req.Scope)
			if err != nil {
				sendError(c, http.StatusBadRequest, "Invalid scope", err)
				return
			}
			perm.Scope = scope
		}

		report := h.common.allowances.QueryAllAllowances(c.Request.Context(), req.ChainID, manager, []services.TokenPermission{perm})
		if len(report.Results) == 1 {
			state = &report.Results[0]
		}
	}

	diagnosis := h.common.diagnoses.Diagnose(req.ErrorMessage, state)
	sendSuccess(c, http.StatusOK, diagnosis)
}
