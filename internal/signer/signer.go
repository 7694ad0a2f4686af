// Package signer abstracts the signing capability used to authorize
// delegations. The core never manages key material beyond an in-process
// session key; remote custody services plug in behind the same interface.
package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer signs typed-data digests on behalf of one address.
type Signer interface {
	// Address returns the public address the signatures recover to.
	Address() common.Address

	// SignDigest signs a 32-byte typed-data digest and returns a 65-byte
	// [R || S || V] signature with V in {27, 28}.
	SignDigest(ctx context.Context, digest common.Hash) (hexutil.Bytes, error)
}

// LocalSigner signs with an in-process secp256k1 key. Used for the agent's
// session key; user keys never reach this process.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocalSigner wraps an existing private key.
func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// FromHex builds a LocalSigner from a hex-encoded private key (with or
// without 0x prefix).
func FromHex(hexKey string) (*LocalSigner, error) {
	if len(hexKey) >= 2 && hexKey[0:2] == "0x" {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signer key: %w", err)
	}
	return NewLocalSigner(key), nil
}

// Address returns the signer's public address.
func (s *LocalSigner) Address() common.Address {
	return s.address
}

// SignDigest signs the digest directly; the digest is already domain
// separated, so no message prefix is applied.
func (s *LocalSigner) SignDigest(_ context.Context, digest common.Hash) (hexutil.Bytes, error) {
	sig, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	// crypto.Sign returns V as 0/1; on-chain verification expects 27/28.
	sig[64] += 27
	return sig, nil
}

// Recover returns the address that produced the signature over the digest.
// Accepts V as either 0/1 or 27/28.
func Recover(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
