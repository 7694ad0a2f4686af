package handlers

import (
	"context"

	"github.com/cyphera/agent-delegation/internal/db"
	"github.com/cyphera/agent-delegation/internal/logger"
	"github.com/cyphera/agent-delegation/internal/services"
	"github.com/cyphera/agent-delegation/internal/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SubDelegationStore is the persistence contract the handlers depend on.
type SubDelegationStore interface {
	Put(ctx context.Context, ownerAddress, scheduleID string, params db.PutSubDelegationParams) (*db.SubDelegationRecord, error)
	Get(ctx context.Context, ownerAddress, scheduleID string) (*db.SubDelegationRecord, error)
	ListByOwner(ctx context.Context, ownerAddress string) ([]db.SubDelegationRecord, error)
}

// CommonServices holds common dependencies used across handlers
type CommonServices struct {
	store             SubDelegationStore
	chainBuilder      *services.ChainBuilderService
	allowances        *services.AllowanceService
	diagnoses         *services.DiagnosisService
	agentSigner       signer.Signer
	delegationManager common.Address
}

// NewCommonServices creates a new instance of CommonServices
func NewCommonServices(
	store SubDelegationStore,
	chainBuilder *services.ChainBuilderService,
	allowances *services.AllowanceService,
	diagnoses *services.DiagnosisService,
	agentSigner signer.Signer,
	delegationManager common.Address,
) *CommonServices {
	return &CommonServices{
		store:             store,
		chainBuilder:      chainBuilder,
		allowances:        allowances,
		diagnoses:         diagnoses,
		agentSigner:       agentSigner,
		delegationManager: delegationManager,
	}
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse represents a standard success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// sendError is a helper function that combines logging and error response
// It logs the error with the given message and sends a JSON error response
func sendError(c *gin.Context, statusCode int, message string, err error) {
	logger.Error(message,
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
	)
	c.JSON(statusCode, ErrorResponse{Error: message})
}

// sendSuccess is a helper function that sends a success response
func sendSuccess(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// IsAddressValid reports whether the string is a well-formed hex address.
func IsAddressValid(addr string) bool {
	return common.IsHexAddress(addr)
}
