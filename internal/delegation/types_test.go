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

func TestIsRoot(t *testing.T) {
	root := delegation.Delegation{Authority: delegation.RootAuthority}
	assert.True(t, root.IsRoot())

	chained := delegation.Delegation{Authority: common.HexToHash("0x01")}
	assert.False(t, chained.IsRoot())
}

func TestSaltIntNilSalt(t *testing.T) {
	d := delegation.Delegation{}
	assert.Zero(t, d.SaltInt().Sign())
}

func TestScopeRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		scope delegation.Scope
	}{
		{
			name: "native period",
			scope: delegation.NativePeriodScope{
				PeriodAmount:   (*hexutil.Big)(big.NewInt(1e18)),
				PeriodDuration: 86400,
				StartTime:      1700000000,
				ExpiresAt:      1800000000,
			},
		},
		{
			name: "erc20 period",
			scope: delegation.Erc20PeriodScope{
				Token:          common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
				PeriodAmount:   (*hexutil.Big)(big.NewInt(5000000)),
				PeriodDuration: 604800,
			},
		},
		{
			name: "erc20 total",
			scope: delegation.Erc20TotalScope{
				Token:     common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
				MaxAmount: (*hexutil.Big)(big.NewInt(25000000)),
				ExpiresAt: 1800000000,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := delegation.MarshalScope(tt.scope)
			require.NoError(t, err)

			parsed, err := delegation.UnmarshalScope(data)
			require.NoError(t, err)
			assert.Equal(t, tt.scope.Kind(), parsed.Kind())
			assert.Equal(t, tt.scope, parsed)
		})
	}
}

func TestMarshalScopeNil(t *testing.T) {
	data, err := delegation.MarshalScope(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	parsed, err := delegation.UnmarshalScope(nil)
	require.NoError(t, err)
	assert.Nil(t, parsed)
}

func TestUnmarshalScopeUnknownType(t *testing.T) {
	_, err := delegation.UnmarshalScope([]byte(`{"type":"somethingElse","data":{}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scope type")
}
