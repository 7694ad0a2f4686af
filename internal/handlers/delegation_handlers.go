package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cyphera/agent-delegation/internal/db"
	"github.com/cyphera/agent-delegation/internal/delegation"
	"github.com/cyphera/agent-delegation/internal/services"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
)

// DelegationHandler handles sub-delegation creation and retrieval
type DelegationHandler struct {
	common *CommonServices
}

// NewDelegationHandler creates a new DelegationHandler instance
func NewDelegationHandler(common *CommonServices) *DelegationHandler {
	return &DelegationHandler{common: common}
}

// CreateSubDelegationRequest is the body for POST /api/v1/sub-delegations.
type CreateSubDelegationRequest struct {
	OwnerAddress      string          `json:"owner_address" binding:"required"`
	ScheduleID        string          `json:"schedule_id" binding:"required"`
	ParentContext     string          `json:"parent_context" binding:"required"`
	SubAgentAddress   string          `json:"sub_agent_address" binding:"required"`
	ChainID           uint64          `json:"chain_id" binding:"required"`
	DelegationManager string          `json:"delegation_manager,omitempty"`
	Scope             json.RawMessage `json:"scope,omitempty"`
}

// CreateSubDelegation builds, signs and persists a sub-delegation chaining
// the agent's granted authority to a sub-agent for one automation schedule.
func (h *DelegationHandler) CreateSubDelegation(c *gin.Context) {
	var req CreateSubDelegationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if !IsAddressValid(req.OwnerAddress) {
		sendError(c, http.StatusBadRequest, "Invalid owner address", nil)
		return
	}
	if !IsAddressValid(req.SubAgentAddress) {
		sendError(c, http.StatusBadRequest, "Invalid sub-agent address", nil)
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

	parentContext, err := hexutil.Decode(req.ParentContext)
	if err != nil {
		sendError(c, http.StatusBadRequest, "Parent context is not valid hex", err)
		return
	}

	// Validate the stored scope envelope up front so a bad advisory record
	// never reaches the store.
	if len(req.Scope) > 0 {
		if _, err := delegation.UnmarshalScope(req.Scope); err != nil {
			sendError(c, http.StatusBadRequest, "Invalid scope", err)
			return
		}
	}

	result, err := h.common.chainBuilder.CreateSubDelegation(c.Request.Context(), services.CreateSubDelegationParams{
		ParentContext:     parentContext,
		ParentSigner:      h.common.agentSigner,
		SubAgentAddress:   common.HexToAddress(req.SubAgentAddress),
		ChainID:           req.ChainID,
		DelegationManager: manager,
	})
	if err != nil {
		switch {
		case errors.Is(err, delegation.ErrEmptyPermissionContext),
			errors.Is(err, delegation.ErrMalformedPermissionContext),
			errors.Is(err, delegation.ErrNoParentDelegation):
			sendError(c, http.StatusBadRequest, "Invalid parent permission context", err)
		case errors.Is(err, delegation.ErrDelegateMismatch):
			sendError(c, http.StatusForbidden, "Agent key does not hold the parent delegation", err)
		default:
			sendError(c, http.StatusInternalServerError, "Failed to create sub-delegation", err)
		}
		return
	}

	record, err := h.common.store.Put(c.Request.Context(), req.OwnerAddress, req.ScheduleID, db.PutSubDelegationParams{
		Delegate:          result.Delegation.Delegate.Hex(),
		Delegator:         result.Delegation.Delegator.Hex(),
		ParentHash:        result.ParentHash.Hex(),
		PermissionContext: result.PermissionContext,
		ChainID:           int64(result.ChainID),
		DelegationManager: result.DelegationManager.Hex(),
		Scope:             req.Scope,
	})
	if err != nil {
		sendError(c, http.StatusInternalServerError, "Failed to persist sub-delegation", err)
		return
	}

	sendSuccess(c, http.StatusCreated, gin.H{
		"record":     record,
		"delegation": result.Delegation,
		"parent_hash": result.ParentHash.Hex(),
	})
}

// GetSubDelegation returns the stored sub-delegation for an owner and
// schedule.
func (h *DelegationHandler) GetSubDelegation(c *gin.Context) {
	owner := c.Param("owner")
	if !IsAddressValid(owner) {
		sendError(c, http.StatusBadRequest, "Invalid owner address", nil)
		return
	}
	scheduleID := c.Param("schedule")

	record, err := h.common.store.Get(c.Request.Context(), owner, scheduleID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "Failed to fetch sub-delegation", err)
		return
	}
	if record == nil {
		sendError(c, http.StatusNotFound, "Sub-delegation not found", nil)
		return
	}

	sendSuccess(c, http.StatusOK, record)
}

// ListSubDelegations returns all sub-delegations stored for an owner.
func (h *DelegationHandler) ListSubDelegations(c *gin.Context) {
	owner := c.Param("owner")
	if !IsAddressValid(owner) {
		sendError(c, http.StatusBadRequest, "Invalid owner address", nil)
		return
	}

	records, err := h.common.store.ListByOwner(c.Request.Context(), owner)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "Failed to list sub-delegations", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   records,
	})
}
