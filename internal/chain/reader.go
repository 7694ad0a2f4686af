package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/cyphera/agent-delegation/internal/delegation"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// PeriodTransferState is the on-chain answer for a period-transfer enforcer.
// This state is mutated by every redemption, so it is the only reliable
// source of "how much is left".
type PeriodTransferState struct {
	AvailableAmount *big.Int
	IsNewPeriod     bool
	CurrentPeriod   *big.Int
}

// Reader issues the read-only enforcer queries the allowance service depends
// on. A Reader is bound to one chain id for its lifetime.
type Reader interface {
	ChainID() uint64
	GetPeriodTransferAvailableAmount(ctx context.Context, enforcer common.Address, delegationManager common.Address, del delegation.Delegation) (*PeriodTransferState, error)
}

// Period-transfer enforcers expose
// getAvailableAmount(bytes32 delegationHash, address delegationManager, bytes terms).
const getAvailableAmountABIJSON = `[{"name":"getAvailableAmount","type":"function","stateMutability":"view","inputs":[{"name":"delegationHash","type":"bytes32"},{"name":"delegationManager","type":"address"},{"name":"terms","type":"bytes"}],"outputs":[{"name":"availableAmount","type":"uint256"},{"name":"isNewPeriod","type":"bool"},{"name":"currentPeriod","type":"uint256"}]}]`

var getAvailableAmountABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(getAvailableAmountABIJSON))
	if err != nil {
		panic("failed to parse enforcer ABI: " + err.Error())
	}
	getAvailableAmountABI = parsed
}

// EthReader is the ethclient-backed Reader. The underlying client is safe for
// concurrent use; the chain id it targets never changes after construction.
type EthReader struct {
	client  *ethclient.Client
	chainID uint64
	logger  *zap.Logger
}

// NewEthReader wraps a dialed client for one chain.
func NewEthReader(client *ethclient.Client, chainID uint64, logger *zap.Logger) *EthReader {
	return &EthReader{
		client:  client,
		chainID: chainID,
		logger:  logger,
	}
}

// ChainID returns the chain this reader is bound to.
func (r *EthReader) ChainID() uint64 {
	return r.chainID
}

// GetPeriodTransferAvailableAmount calls getAvailableAmount on the enforcer
// contract for the caveat it enforces within the delegation. The caller
// bounds the call with its context deadline.
func (r *EthReader) GetPeriodTransferAvailableAmount(ctx context.Context, enforcer common.Address, delegationManager common.Address, del delegation.Delegation) (*PeriodTransferState, error) {
	terms, ok := termsForEnforcer(del, enforcer)
	if !ok {
		return nil, fmt.Errorf("delegation carries no caveat for enforcer %s", enforcer.Hex())
	}

	delegationHash, err := delegation.Hash(del)
	if err != nil {
		return nil, fmt.Errorf("failed to hash delegation: %w", err)
	}

	callData, err := getAvailableAmountABI.Pack("getAvailableAmount", delegationHash, delegationManager, []byte(terms))
	if err != nil {
		return nil, fmt.Errorf("failed to pack getAvailableAmount call: %w", err)
	}

	raw, err := r.client.CallContract(ctx, ethereum.CallMsg{
		To:   &enforcer,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("getAvailableAmount call failed: %w", err)
	}

	out, err := getAvailableAmountABI.Unpack("getAvailableAmount", raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getAvailableAmount result: %w", err)
	}
	if len(out) != 3 {
		return nil, fmt.Errorf("unexpected getAvailableAmount arity %d", len(out))
	}

	state := &PeriodTransferState{
		AvailableAmount: *abi.ConvertType(out[0], new(*big.Int)).(**big.Int),
		IsNewPeriod:     *abi.ConvertType(out[1], new(bool)).(*bool),
		CurrentPeriod:   *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
	}

	r.logger.Debug("queried period transfer state",
		zap.Uint64("chain_id", r.chainID),
		zap.String("enforcer", enforcer.Hex()),
		zap.String("available_amount", state.AvailableAmount.String()),
		zap.Bool("is_new_period", state.IsNewPeriod),
	)

	return state, nil
}

// termsForEnforcer finds the terms payload of the caveat bound to the given
// enforcer within the delegation.
func termsForEnforcer(del delegation.Delegation, enforcer common.Address) ([]byte, bool) {
	for _, c := range del.Caveats {
		if c.Enforcer == enforcer {
			return c.Terms, true
		}
	}
	return nil, false
}
