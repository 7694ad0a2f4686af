package agentkey

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RemoteSigner adapts the custody client to the signer interface for one
// address.
type RemoteSigner struct {
	client  *Client
	address common.Address
}

// SignerFor returns a signer backed by the custody service for the given
// address.
func (c *Client) SignerFor(address common.Address) *RemoteSigner {
	return &RemoteSigner{
		client:  c,
		address: address,
	}
}

// Address returns the custodied address.
func (s *RemoteSigner) Address() common.Address {
	return s.address
}

// SignDigest delegates to the custody service.
func (s *RemoteSigner) SignDigest(ctx context.Context, digest common.Hash) (hexutil.Bytes, error) {
	return s.client.SignDigest(ctx, s.address, digest)
}
