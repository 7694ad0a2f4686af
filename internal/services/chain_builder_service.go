package services

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/cyphera/agent-delegation/internal/constants"
	"github.com/cyphera/agent-delegation/internal/delegation"
	"github.com/cyphera/agent-delegation/internal/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// ChainBuilderService constructs and signs sub-delegations: new links in an
// existing authority chain that hand (a subset of) an agent's granted power
// to a sub-agent.
type ChainBuilderService struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewChainBuilderService creates a new chain builder service.
func NewChainBuilderService(logger *zap.Logger) *ChainBuilderService {
	return &ChainBuilderService{
		logger: logger,
		now:    time.Now,
	}
}

// SubDelegationResult is the outcome of CreateSubDelegation. Persistence is a
// separate, explicit step by the caller.
type SubDelegationResult struct {
	Delegation        delegation.Delegation `json:"delegation"`
	ParentHash        common.Hash           `json:"parent_hash"`
	PermissionContext hexutil.Bytes         `json:"permission_context"`
	SubAgentAddress   common.Address        `json:"sub_agent_address"`
	ChainID           uint64                `json:"chain_id"`
	DelegationManager common.Address        `json:"delegation_manager"`
	CreatedAt         time.Time             `json:"created_at"`
}

// CreateSubDelegationParams carries the inputs for building one
// sub-delegation.
type CreateSubDelegationParams struct {
	ParentContext     []byte
	ParentSigner      signer.Signer
	SubAgentAddress   common.Address
	ChainID           uint64
	DelegationManager common.Address

	// Caveats optionally narrows the sub-delegation beyond the parent's
	// bounds. Empty means the parent's limits apply through the authority
	// chain alone.
	Caveats []delegation.Caveat
}

// CreateSubDelegation decodes the parent context, chains a new delegation off
// its head, signs it under the delegation manager's typed-data domain and
// returns the extended context [sub, ...parents].
func (s *ChainBuilderService) CreateSubDelegation(ctx context.Context, params CreateSubDelegationParams) (*SubDelegationResult, error) {
	parents, err := delegation.Decode(params.ParentContext)
	if err != nil {
		return nil, err
	}
	if len(parents) == 0 {
		return nil, delegation.ErrNoParentDelegation
	}

	// The chain's current head is the delegation the sub-agent's power will
	// derive from.
	parent := parents[0]
	parentHash, err := delegation.Hash(parent)
	if err != nil {
		return nil, fmt.Errorf("failed to hash parent delegation: %w", err)
	}

	// A key that was never granted the parent authority cannot extend it.
	signerAddr := params.ParentSigner.Address()
	if signerAddr != parent.Delegate {
		return nil, fmt.Errorf("%w: signer %s, parent delegate %s",
			delegation.ErrDelegateMismatch, signerAddr.Hex(), parent.Delegate.Hex())
	}

	createdAt := s.now()
	caveats := params.Caveats
	if caveats == nil {
		caveats = []delegation.Caveat{}
	}

	sub := delegation.Delegation{
		Delegate:  params.SubAgentAddress,
		Delegator: signerAddr,
		Authority: parentHash,
		Caveats:   caveats,
		// Millisecond timestamp keeps otherwise-identical delegations unique
		// without external state.
		Salt: (*hexutil.Big)(big.NewInt(createdAt.UnixMilli())),
	}

	digest, err := delegation.SigningDigest(
		constants.DelegationDomainName,
		constants.DelegationDomainVersion,
		delegation.Domain{ChainID: params.ChainID, VerifyingContract: params.DelegationManager},
		sub,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute signing digest: %w", err)
	}

	sig, err := params.ParentSigner.SignDigest(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign sub-delegation: %w", err)
	}
	sub.Signature = sig

	chained := append([]delegation.Delegation{sub}, parents...)
	encoded, err := delegation.Encode(chained)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chained permission context: %w", err)
	}

	s.logger.Info("Created sub-delegation",
		zap.String("parent_hash", parentHash.Hex()),
		zap.String("sub_agent", params.SubAgentAddress.Hex()),
		zap.String("delegator", signerAddr.Hex()),
		zap.Uint64("chain_id", params.ChainID),
		zap.Int("chain_length", len(chained)),
	)

	return &SubDelegationResult{
		Delegation:        sub,
		ParentHash:        parentHash,
		PermissionContext: encoded,
		SubAgentAddress:   params.SubAgentAddress,
		ChainID:           params.ChainID,
		DelegationManager: params.DelegationManager,
		CreatedAt:         createdAt,
	}, nil
}
