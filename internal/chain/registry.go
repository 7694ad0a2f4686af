package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// Network describes one chain the service can read from. RPCSubdomain is the
// provider-specific host piece, e.g. "mainnet" or "base-mainnet".
type Network struct {
	ChainID      uint64
	Name         string
	RPCSubdomain string
}

// Registry holds one read-only client per chain id. Clients are dialed once
// at startup and never repointed; lookups after Initialize are read-only and
// safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	readers   map[uint64]*EthReader
	rpcAPIKey string
	logger    *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(rpcAPIKey string, logger *zap.Logger) *Registry {
	return &Registry{
		readers:   make(map[uint64]*EthReader),
		rpcAPIKey: rpcAPIKey,
		logger:    logger,
	}
}

// Initialize dials an RPC client for each configured network. A network that
// fails to dial is skipped with a logged error; at least one connection must
// succeed.
func (r *Registry) Initialize(ctx context.Context, networks []Network) error {
	if r.rpcAPIKey == "" {
		return fmt.Errorf("RPC API key not provided")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, network := range networks {
		if network.RPCSubdomain == "" {
			r.logger.Warn("Network missing RPC subdomain, skipping",
				zap.String("network", network.Name),
			)
			continue
		}

		// Pattern: https://<subdomain>.infura.io/v3/<api_key>
		rpcURL := fmt.Sprintf("https://%s.infura.io/v3/%s", network.RPCSubdomain, r.rpcAPIKey)

		client, err := ethclient.DialContext(ctx, rpcURL)
		if err != nil {
			r.logger.Error("Failed to connect to network RPC",
				zap.String("network", network.Name),
				zap.Uint64("chain_id", network.ChainID),
				zap.Error(err),
			)
			continue
		}

		r.readers[network.ChainID] = NewEthReader(client, network.ChainID, r.logger)

		r.logger.Info("Connected to network RPC",
			zap.String("network", network.Name),
			zap.Uint64("chain_id", network.ChainID),
		)
	}

	if len(r.readers) == 0 {
		return fmt.Errorf("no RPC connections established")
	}

	return nil
}

// Reader returns the reader bound to the given chain id.
func (r *Registry) Reader(chainID uint64) (Reader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reader, ok := r.readers[chainID]
	if !ok {
		return nil, fmt.Errorf("no RPC client for chain %d", chainID)
	}
	return reader, nil
}

// Close closes all RPC connections.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for chainID, reader := range r.readers {
		reader.client.Close()
		r.logger.Info("Closed RPC connection",
			zap.Uint64("chain_id", chainID),
		)
	}
	r.readers = make(map[uint64]*EthReader)
}
