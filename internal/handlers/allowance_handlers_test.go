package handlers_test

import (
	"encoding/json"
	"math/big"
	"net/http"
	"testing"

	"github.com/cyphera/agent-delegation/internal/constants"
	"github.com/cyphera/agent-delegation/internal/delegation"
	"github.com/cyphera/agent-delegation/internal/services"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scopedContextHex builds a single-delegation context carrying only a
// timestamp caveat, so no live chain query is attempted.
func scopedContextHex(t *testing.T, expiry uint64) string {
	t.Helper()
	terms := common.LeftPadBytes(new(big.Int).SetUint64(expiry).Bytes(), 32)
	d := delegation.Delegation{
		Delegate:  parseAddr(testSubAgent),
		Delegator: parseAddr(testOwner),
		Authority: delegation.RootAuthority,
		Caveats: []delegation.Caveat{
			{Enforcer: parseAddr("0x1046bb45C8d673d4ea75321280DB34899413c069"), Terms: terms},
		},
		Salt: (*hexutil.Big)(big.NewInt(1)),
	}
	encoded, err := delegation.EncodeHex([]delegation.Delegation{d})
	require.NoError(t, err)
	return encoded
}

func TestQueryAllowancesHandler(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(http.MethodPost, "/api/v1/allowances/query", gin.H{
		"chain_id": constants.SepoliaChainID,
		"tokens": []gin.H{
			{"permission_context": scopedContextHex(t, 1767225600)},
			{
				"token_address":      "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
				"permission_context": scopedContextHex(t, 1798761600),
				"scope": gin.H{
					"type": "erc20PeriodTransfer",
					"data": gin.H{
						"token_address":           "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
						"period_amount":           "0x4c4b40",
						"period_duration_seconds": 604800,
					},
				},
			},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report services.AllowanceReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Len(t, report.Results, 2)
	assert.True(t, report.HasMultipleExpirations)
	assert.NotNil(t, report.Results[0].ExpiresAt)
	assert.NotNil(t, report.Results[1].ExpiresAt)
}

func TestQueryAllowancesHandlerValidation(t *testing.T) {
	f := newHandlerFixture(t)
	validContext := scopedContextHex(t, 1767225600)

	tests := []struct {
		name string
		body gin.H
	}{
		{"missing tokens", gin.H{"chain_id": constants.SepoliaChainID}},
		{"empty tokens", gin.H{"chain_id": constants.SepoliaChainID, "tokens": []gin.H{}}},
		{
			"invalid token address",
			gin.H{
				"chain_id": constants.SepoliaChainID,
				"tokens":   []gin.H{{"token_address": "bogus", "permission_context": validContext}},
			},
		},
		{
			"context not hex",
			gin.H{
				"chain_id": constants.SepoliaChainID,
				"tokens":   []gin.H{{"permission_context": "zzzz"}},
			},
		},
		{
			"invalid delegation manager",
			gin.H{
				"chain_id":           constants.SepoliaChainID,
				"delegation_manager": "bogus",
				"tokens":             []gin.H{{"permission_context": validContext}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/api/v1/allowances/query", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}
