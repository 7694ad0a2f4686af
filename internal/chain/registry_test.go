package chain_test

import (
	"context"
	"testing"

	"github.com/cyphera/agent-delegation/internal/chain"
	"github.com/cyphera/agent-delegation/internal/constants"
	"github.com/cyphera/agent-delegation/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitLogger(constants.TestEnvironment)
}

func TestRegistryRequiresAPIKey(t *testing.T) {
	r := chain.NewRegistry("", logger.Log)
	err := r.Initialize(context.Background(), []chain.Network{
		{ChainID: constants.SepoliaChainID, Name: "Sepolia", RPCSubdomain: "sepolia"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestRegistryReaderUnknownChain(t *testing.T) {
	r := chain.NewRegistry("some-key", logger.Log)
	_, err := r.Reader(constants.SepoliaChainID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no RPC client for chain")
}

func TestRegistrySkipsNetworksWithoutSubdomain(t *testing.T) {
	r := chain.NewRegistry("some-key", logger.Log)
	err := r.Initialize(context.Background(), []chain.Network{
		{ChainID: constants.SepoliaChainID, Name: "Sepolia"},
	})
	// The only network is skipped, so no connection is established.
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no RPC connections")
}
