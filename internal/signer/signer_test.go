package signer_test

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/cyphera/agent-delegation/internal/signer"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSignerRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	s := signer.NewLocalSigner(key)
	digest := crypto.Keccak256Hash([]byte("typed data digest"))

	sig, err := s.SignDigest(context.Background(), digest)
	require.NoError(t, err)
	require.Len(t, []byte(sig), 65)
	assert.Contains(t, []byte{27, 28}, sig[64], "V must be 27 or 28")

	recovered, err := signer.Recover(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), recovered)
}

func TestRecoverAcceptsRawV(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	s := signer.NewLocalSigner(key)
	digest := crypto.Keccak256Hash([]byte("payload"))

	sig, err := s.SignDigest(context.Background(), digest)
	require.NoError(t, err)

	raw := make([]byte, 65)
	copy(raw, sig)
	raw[64] -= 27

	recovered, err := signer.Recover(digest, raw)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), recovered)
}

func TestRecoverRejectsBadLength(t *testing.T) {
	_, err := signer.Recover(crypto.Keccak256Hash([]byte("x")), []byte{0x01, 0x02})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid signature length")
}

func TestFromHex(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := "0x" + hex.EncodeToString(crypto.FromECDSA(key))

	s, err := signer.FromHex(hexKey)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address())

	_, err = signer.FromHex("not-a-key")
	assert.Error(t, err)
}
