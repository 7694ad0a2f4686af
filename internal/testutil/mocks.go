package testutil

import (
	"context"

	"github.com/cyphera/agent-delegation/internal/chain"
	"github.com/cyphera/agent-delegation/internal/db"
	"github.com/stretchr/testify/mock"
)

// MockSubDelegationStore provides a mock for the sub-delegation store
type MockSubDelegationStore struct {
	mock.Mock
}

func (m *MockSubDelegationStore) Put(ctx context.Context, ownerAddress, scheduleID string, params db.PutSubDelegationParams) (*db.SubDelegationRecord, error) {
	args := m.Called(ctx, ownerAddress, scheduleID, params)
	if rec := args.Get(0); rec != nil {
		return rec.(*db.SubDelegationRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSubDelegationStore) Get(ctx context.Context, ownerAddress, scheduleID string) (*db.SubDelegationRecord, error) {
	args := m.Called(ctx, ownerAddress, scheduleID)
	if rec := args.Get(0); rec != nil {
		return rec.(*db.SubDelegationRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSubDelegationStore) ListByOwner(ctx context.Context, ownerAddress string) ([]db.SubDelegationRecord, error) {
	args := m.Called(ctx, ownerAddress)
	if recs := args.Get(0); recs != nil {
		return recs.([]db.SubDelegationRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

// StaticReaderSource resolves every chain id to one fixed reader, or to an
// error when none is set.
type StaticReaderSource struct {
	R   chain.Reader
	Err error
}

func (s StaticReaderSource) Reader(chainID uint64) (chain.Reader, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.R, nil
}
