package handlers_test

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cyphera/agent-delegation/internal/constants"
	"github.com/cyphera/agent-delegation/internal/db"
	"github.com/cyphera/agent-delegation/internal/delegation"
	"github.com/cyphera/agent-delegation/internal/enforcer"
	"github.com/cyphera/agent-delegation/internal/handlers"
	"github.com/cyphera/agent-delegation/internal/logger"
	"github.com/cyphera/agent-delegation/internal/services"
	"github.com/cyphera/agent-delegation/internal/signer"
	"github.com/cyphera/agent-delegation/internal/testutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitLogger(constants.TestEnvironment)
	gin.SetMode(gin.TestMode)
}

const (
	testOwner    = "0x1111111111111111111111111111111111111111"
	testSubAgent = "0x2222222222222222222222222222222222222222"
	testManager  = "0xdb9B1e94B5b69Df7e401DDbedE43491141047dB3"
)

type handlerFixture struct {
	store       *testutil.MockSubDelegationStore
	agentSigner *signer.LocalSigner
	router      *gin.Engine
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	agentSigner := signer.NewLocalSigner(key)

	store := &testutil.MockSubDelegationStore{}

	chainBuilder := services.NewChainBuilderService(logger.Log)
	allowances := services.NewAllowanceService(logger.Log, enforcer.DefaultRegistry(), testutil.StaticReaderSource{}, time.Second)
	diagnoses := services.NewDiagnosisService(logger.Log)

	commonServices := handlers.NewCommonServices(
		store,
		chainBuilder,
		allowances,
		diagnoses,
		agentSigner,
		parseAddr(testManager),
	)

	delegationHandler := handlers.NewDelegationHandler(commonServices)
	allowanceHandler := handlers.NewAllowanceHandler(commonServices)
	diagnosisHandler := handlers.NewDiagnosisHandler(commonServices)

	router := gin.New()
	v1 := router.Group("/api/v1")
	v1.POST("/sub-delegations", delegationHandler.CreateSubDelegation)
	v1.GET("/sub-delegations/:owner", delegationHandler.ListSubDelegations)
	v1.GET("/sub-delegations/:owner/:schedule", delegationHandler.GetSubDelegation)
	v1.POST("/allowances/query", allowanceHandler.QueryAllowances)
	v1.POST("/diagnoses", diagnosisHandler.Diagnose)

	return &handlerFixture{
		store:       store,
		agentSigner: agentSigner,
		router:      router,
	}
}

func parseAddr(s string) common.Address {
	return common.HexToAddress(s)
}

func (f *handlerFixture) parentContextHex(t *testing.T, delegate common.Address) string {
	t.Helper()
	root := delegation.Delegation{
		Delegate:  delegate,
		Delegator: parseAddr(testOwner),
		Authority: delegation.RootAuthority,
		Salt:      (*hexutil.Big)(big.NewInt(1)),
		Signature: hexutil.MustDecode("0x0101"),
	}
	encoded, err := delegation.EncodeHex([]delegation.Delegation{root})
	require.NoError(t, err)
	return encoded
}

func (f *handlerFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestCreateSubDelegationHandler(t *testing.T) {
	f := newHandlerFixture(t)

	stored := &db.SubDelegationRecord{
		ID:           uuid.New(),
		OwnerAddress: testOwner,
		ScheduleID:   "sched-1",
	}
	f.store.On("Put", mock.Anything, testOwner, "sched-1", mock.AnythingOfType("db.PutSubDelegationParams")).
		Return(stored, nil)

	w := f.do(http.MethodPost, "/api/v1/sub-delegations", gin.H{
		"owner_address":     testOwner,
		"schedule_id":       "sched-1",
		"parent_context":    f.parentContextHex(t, f.agentSigner.Address()),
		"sub_agent_address": testSubAgent,
		"chain_id":          constants.SepoliaChainID,
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Record     db.SubDelegationRecord `json:"record"`
		Delegation delegation.Delegation  `json:"delegation"`
		ParentHash string                 `json:"parent_hash"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, stored.ScheduleID, resp.Record.ScheduleID)
	assert.Equal(t, parseAddr(testSubAgent), resp.Delegation.Delegate)
	assert.Equal(t, f.agentSigner.Address(), resp.Delegation.Delegator)
	assert.NotEmpty(t, resp.ParentHash)

	f.store.AssertExpectations(t)
}

func TestCreateSubDelegationHandlerValidation(t *testing.T) {
	f := newHandlerFixture(t)
	validContext := f.parentContextHex(t, f.agentSigner.Address())

	tests := []struct {
		name       string
		body       gin.H
		wantStatus int
	}{
		{
			name:       "missing required fields",
			body:       gin.H{"owner_address": testOwner},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "invalid owner address",
			body: gin.H{
				"owner_address":     "not-an-address",
				"schedule_id":       "sched-1",
				"parent_context":    validContext,
				"sub_agent_address": testSubAgent,
				"chain_id":          constants.SepoliaChainID,
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "parent context not hex",
			body: gin.H{
				"owner_address":     testOwner,
				"schedule_id":       "sched-1",
				"parent_context":    "zzzz",
				"sub_agent_address": testSubAgent,
				"chain_id":          constants.SepoliaChainID,
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "parent context malformed",
			body: gin.H{
				"owner_address":     testOwner,
				"schedule_id":       "sched-1",
				"parent_context":    "0xdeadbeef",
				"sub_agent_address": testSubAgent,
				"chain_id":          constants.SepoliaChainID,
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "invalid scope envelope",
			body: gin.H{
				"owner_address":     testOwner,
				"schedule_id":       "sched-1",
				"parent_context":    validContext,
				"sub_agent_address": testSubAgent,
				"chain_id":          constants.SepoliaChainID,
				"scope":             gin.H{"type": "bogus", "data": gin.H{}},
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/api/v1/sub-delegations", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}

	f.store.AssertNotCalled(t, "Put")
}

func TestCreateSubDelegationHandlerDelegateMismatch(t *testing.T) {
	f := newHandlerFixture(t)

	// Parent grants a different key than the handler's agent signer.
	w := f.do(http.MethodPost, "/api/v1/sub-delegations", gin.H{
		"owner_address":     testOwner,
		"schedule_id":       "sched-1",
		"parent_context":    f.parentContextHex(t, parseAddr("0x9999999999999999999999999999999999999999")),
		"sub_agent_address": testSubAgent,
		"chain_id":          constants.SepoliaChainID,
	})

	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	f.store.AssertNotCalled(t, "Put")
}

func TestGetSubDelegationHandler(t *testing.T) {
	f := newHandlerFixture(t)

	stored := &db.SubDelegationRecord{
		ID:           uuid.New(),
		OwnerAddress: testOwner,
		ScheduleID:   "sched-1",
	}
	f.store.On("Get", mock.Anything, testOwner, "sched-1").Return(stored, nil)
	f.store.On("Get", mock.Anything, testOwner, "missing").Return(nil, nil)

	w := f.do(http.MethodGet, "/api/v1/sub-delegations/"+testOwner+"/sched-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var record db.SubDelegationRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, stored.ID, record.ID)

	w = f.do(http.MethodGet, "/api/v1/sub-delegations/"+testOwner+"/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/api/v1/sub-delegations/not-an-address/sched-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSubDelegationsHandler(t *testing.T) {
	f := newHandlerFixture(t)

	f.store.On("ListByOwner", mock.Anything, testOwner).Return([]db.SubDelegationRecord{
		{ID: uuid.New(), OwnerAddress: testOwner, ScheduleID: "sched-1"},
		{ID: uuid.New(), OwnerAddress: testOwner, ScheduleID: "sched-2"},
	}, nil)

	w := f.do(http.MethodGet, "/api/v1/sub-delegations/"+testOwner, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Object string                   `json:"object"`
		Data   []db.SubDelegationRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "list", resp.Object)
	assert.Len(t, resp.Data, 2)
}
