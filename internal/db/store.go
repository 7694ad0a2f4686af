// Package db persists sub-delegations keyed by (owner, schedule). The rest
// of the system treats records as immutable once written; only the stored
// advisory scope may be refreshed.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// SubDelegationRecord is one persisted sub-delegation. Addresses are stored
// lowercased so lookups are case-insensitive.
type SubDelegationRecord struct {
	ID                uuid.UUID `json:"id"`
	OwnerAddress      string    `json:"owner_address"`
	ScheduleID        string    `json:"schedule_id"`
	Delegate          string    `json:"delegate"`
	Delegator         string    `json:"delegator"`
	ParentHash        string    `json:"parent_hash"`
	PermissionContext []byte    `json:"permission_context"`
	ChainID           int64     `json:"chain_id"`
	DelegationManager string    `json:"delegation_manager"`
	Scope             []byte    `json:"scope,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// PutSubDelegationParams carries the fields for an upsert. Nil Scope leaves
// any previously stored scope in place.
type PutSubDelegationParams struct {
	Delegate          string
	Delegator         string
	ParentHash        string
	PermissionContext []byte
	ChainID           int64
	DelegationManager string
	Scope             []byte
}

// Store is the pgx-backed sub-delegation store.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewStore creates a store on an existing connection pool.
func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{
		pool:   pool,
		logger: logger,
	}
}

const putSubDelegationSQL = `
INSERT INTO sub_delegations (
	id, owner_address, schedule_id, delegate, delegator, parent_hash,
	permission_context, chain_id, delegation_manager, scope, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
ON CONFLICT (owner_address, schedule_id) DO UPDATE SET
	delegate           = EXCLUDED.delegate,
	delegator          = EXCLUDED.delegator,
	parent_hash        = EXCLUDED.parent_hash,
	permission_context = EXCLUDED.permission_context,
	chain_id           = EXCLUDED.chain_id,
	delegation_manager = EXCLUDED.delegation_manager,
	scope              = COALESCE(EXCLUDED.scope, sub_delegations.scope),
	updated_at         = now()
RETURNING id, owner_address, schedule_id, delegate, delegator, parent_hash,
	permission_context, chain_id, delegation_manager, scope, created_at, updated_at`

// Put upserts a record for (owner, schedule). Concurrent writers for the
// same key resolve last-writer-wins; a nil scope never clobbers a stored one.
func (s *Store) Put(ctx context.Context, ownerAddress, scheduleID string, params PutSubDelegationParams) (*SubDelegationRecord, error) {
	row := s.pool.QueryRow(ctx, putSubDelegationSQL,
		uuid.New(),
		normalizeAddress(ownerAddress),
		scheduleID,
		normalizeAddress(params.Delegate),
		normalizeAddress(params.Delegator),
		params.ParentHash,
		params.PermissionContext,
		params.ChainID,
		normalizeAddress(params.DelegationManager),
		params.Scope,
	)

	record, err := scanSubDelegation(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert sub-delegation: %w", err)
	}

	s.logger.Debug("Stored sub-delegation",
		zap.String("owner", record.OwnerAddress),
		zap.String("schedule_id", record.ScheduleID),
	)

	return record, nil
}

const getSubDelegationSQL = `
SELECT id, owner_address, schedule_id, delegate, delegator, parent_hash,
	permission_context, chain_id, delegation_manager, scope, created_at, updated_at
FROM sub_delegations
WHERE owner_address = $1 AND schedule_id = $2`

// Get fetches the record for (owner, schedule). A missing record is
// (nil, nil), not an error.
func (s *Store) Get(ctx context.Context, ownerAddress, scheduleID string) (*SubDelegationRecord, error) {
	row := s.pool.QueryRow(ctx, getSubDelegationSQL, normalizeAddress(ownerAddress), scheduleID)

	record, err := scanSubDelegation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get sub-delegation: %w", err)
	}
	return record, nil
}

const listSubDelegationsSQL = `
SELECT id, owner_address, schedule_id, delegate, delegator, parent_hash,
	permission_context, chain_id, delegation_manager, scope, created_at, updated_at
FROM sub_delegations
WHERE owner_address = $1
ORDER BY created_at DESC`

// ListByOwner returns all sub-delegations stored for an owner.
func (s *Store) ListByOwner(ctx context.Context, ownerAddress string) ([]SubDelegationRecord, error) {
	rows, err := s.pool.Query(ctx, listSubDelegationsSQL, normalizeAddress(ownerAddress))
	if err != nil {
		return nil, fmt.Errorf("failed to list sub-delegations: %w", err)
	}
	defer rows.Close()

	var records []SubDelegationRecord
	for rows.Next() {
		record, err := scanSubDelegation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sub-delegation: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sub-delegations: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubDelegation(row rowScanner) (*SubDelegationRecord, error) {
	var record SubDelegationRecord
	err := row.Scan(
		&record.ID,
		&record.OwnerAddress,
		&record.ScheduleID,
		&record.Delegate,
		&record.Delegator,
		&record.ParentHash,
		&record.PermissionContext,
		&record.ChainID,
		&record.DelegationManager,
		&record.Scope,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func normalizeAddress(addr string) string {
	return strings.ToLower(addr)
}
