package delegation_test

import (
	"math/big"
	"testing"

	"github.com/cyphera/agent-delegation/internal/delegation"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleChain() []delegation.Delegation {
	root := delegation.Delegation{
		Delegate:  common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		Delegator: common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		Authority: delegation.RootAuthority,
		Caveats: []delegation.Caveat{
			{
				Enforcer: common.HexToAddress("0x3333333333333333333333333333333333333333"),
				Terms:    hexutil.MustDecode("0x00000000000000000000000000000000000000000000000000000000000f4240"),
				Args:     hexutil.MustDecode("0x01"),
			},
			{
				Enforcer: common.HexToAddress("0x4444444444444444444444444444444444444444"),
				Terms:    hexutil.Bytes{},
			},
		},
		Salt:      (*hexutil.Big)(big.NewInt(7)),
		Signature: hexutil.MustDecode("0x1b2c3d"),
	}
	rootHash, _ := delegation.Hash(root)
	sub := delegation.Delegation{
		Delegate:  common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc"),
		Delegator: common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		Authority: rootHash,
		Salt:      (*hexutil.Big)(big.NewInt(1700000000123)),
		Signature: hexutil.MustDecode("0xdeadbeef"),
	}
	return []delegation.Delegation{sub, root}
}

func TestCodecRoundTrip(t *testing.T) {
	original := sampleChain()

	encoded, err := delegation.Encode(original)
	require.NoError(t, err)
	require.NotEmpty(t, encoded)

	decoded, err := delegation.Decode(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, len(original))

	for i := range original {
		assert.True(t, original[i].Equal(decoded[i]), "delegation %d changed across round trip", i)
		assert.Equal(t, []byte(original[i].Signature), []byte(decoded[i].Signature))
		assert.Zero(t, original[i].SaltInt().Cmp(decoded[i].SaltInt()))
	}
}

func TestCodecRoundTripHex(t *testing.T) {
	original := sampleChain()

	encoded, err := delegation.EncodeHex(original)
	require.NoError(t, err)
	assert.Equal(t, "0x", encoded[:2])

	decoded, err := delegation.DecodeHex(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, len(original))
	for i := range original {
		assert.True(t, original[i].Equal(decoded[i]))
	}
}

func TestDecodeEmptyInput(t *testing.T) {
	tests := []struct {
		name string
		run  func() ([]delegation.Delegation, error)
	}{
		{"nil bytes", func() ([]delegation.Delegation, error) { return delegation.Decode(nil) }},
		{"zero-length bytes", func() ([]delegation.Delegation, error) { return delegation.Decode([]byte{}) }},
		{"empty string", func() ([]delegation.Delegation, error) { return delegation.DecodeHex("") }},
		{"bare 0x prefix", func() ([]delegation.Delegation, error) { return delegation.DecodeHex("0x") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.run()
			assert.ErrorIs(t, err, delegation.ErrEmptyPermissionContext)
		})
	}
}

func TestDecodeMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		run  func() ([]delegation.Delegation, error)
	}{
		{"garbage bytes", func() ([]delegation.Delegation, error) {
			return delegation.Decode([]byte{0x01, 0x02, 0x03})
		}},
		{"truncated blob", func() ([]delegation.Delegation, error) {
			encoded, err := delegation.Encode(sampleChain())
			require.NoError(t, err)
			return delegation.Decode(encoded[:len(encoded)-48])
		}},
		{"invalid hex", func() ([]delegation.Delegation, error) {
			return delegation.DecodeHex("0xzzzz")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.run()
			assert.ErrorIs(t, err, delegation.ErrMalformedPermissionContext)
		})
	}
}

// An encoded empty chain is a real value: it decodes to zero delegations
// without error, unlike absent input.
func TestDecodeEncodedEmptyChain(t *testing.T) {
	encoded, err := delegation.Encode([]delegation.Delegation{})
	require.NoError(t, err)
	require.NotEmpty(t, encoded)

	decoded, err := delegation.Decode(encoded)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestEncodeNormalizesNilByteFields(t *testing.T) {
	d := delegation.Delegation{
		Delegate:  common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		Delegator: common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		Authority: delegation.RootAuthority,
		Caveats: []delegation.Caveat{
			{Enforcer: common.HexToAddress("0x3333333333333333333333333333333333333333")},
		},
		Salt: (*hexutil.Big)(big.NewInt(1)),
	}

	encoded, err := delegation.Encode([]delegation.Delegation{d})
	require.NoError(t, err)

	decoded, err := delegation.Decode(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	require.Len(t, decoded[0].Caveats, 1)
	assert.Empty(t, []byte(decoded[0].Caveats[0].Terms))
	assert.Empty(t, []byte(decoded[0].Caveats[0].Args))
	assert.Empty(t, []byte(decoded[0].Signature))
}
