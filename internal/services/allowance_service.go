package services

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/cyphera/agent-delegation/internal/chain"
	"github.com/cyphera/agent-delegation/internal/delegation"
	"github.com/cyphera/agent-delegation/internal/enforcer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// AllowanceSource records where an allowance figure came from. Callers must
// never present a stored-scope fallback as authoritative.
type AllowanceSource string

const (
	SourceLiveQuery   AllowanceSource = "liveQuery"
	SourceStoredScope AllowanceSource = "storedScope"
	SourceUnknown     AllowanceSource = "unknown"
)

// 2100-01-01T00:00:00Z. Timestamp terms past this are treated as corrupt and
// ignored rather than reported as real expirations.
const maxReasonableTimestamp = 4102444800

// AllowanceResult is the per-token answer to "how much can still be spent and
// when does this grant expire".
type AllowanceResult struct {
	// Token is nil for the chain's native currency.
	Token *common.Address `json:"token_address,omitempty"`

	AvailableAmount *big.Int   `json:"available_amount,omitempty"`
	IsNewPeriod     bool       `json:"is_new_period,omitempty"`
	CurrentPeriod   *big.Int   `json:"current_period,omitempty"`
	PeriodAmount    *big.Int   `json:"period_amount,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`

	Source       AllowanceSource `json:"source"`
	QuerySuccess bool            `json:"query_success"`
	QueryError   string          `json:"query_error,omitempty"`
}

// LimitsKnown reports whether any allowance information, live or advisory, is
// available. When false the caller must say "limits unknown" rather than
// invent a figure.
func (r AllowanceResult) LimitsKnown() bool {
	return r.Source != SourceUnknown
}

// AllowanceReport aggregates per-token results. Each token's permission
// context carries its own caveats, so expirations are independent.
type AllowanceReport struct {
	Results                []AllowanceResult `json:"results"`
	HasMultipleExpirations bool              `json:"has_multiple_expirations"`
}

// TokenPermission is one token's permission context plus its advisory stored
// scope.
type TokenPermission struct {
	// Token is nil for native currency.
	Token             *common.Address
	PermissionContext hexutil.Bytes
	Scope             delegation.Scope
}

// ReaderSource resolves the chain reader for a chain id.
type ReaderSource interface {
	Reader(chainID uint64) (chain.Reader, error)
}

// AllowanceService interprets a delegation's caveats against live enforcer
// state. Chain-query failures are soft: they degrade to the stored scope and
// never abort sibling queries.
type AllowanceService struct {
	logger       *zap.Logger
	enforcers    *enforcer.Registry
	readers      ReaderSource
	queryTimeout time.Duration
}

// NewAllowanceService creates a new allowance service. queryTimeout bounds
// each individual enforcer call.
func NewAllowanceService(logger *zap.Logger, enforcers *enforcer.Registry, readers ReaderSource, queryTimeout time.Duration) *AllowanceService {
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}
	return &AllowanceService{
		logger:       logger,
		enforcers:    enforcers,
		readers:      readers,
		queryTimeout: queryTimeout,
	}
}

// QueryRemainingAllowance inspects each caveat of the delegation and returns
// the remaining allowance and expiration for one token. Live enforcer state
// wins; the stored scope is a clearly-flagged fallback.
func (s *AllowanceService) QueryRemainingAllowance(ctx context.Context, chainID uint64, delegationManager common.Address, del delegation.Delegation, scope delegation.Scope, token *common.Address) AllowanceResult {
	result := AllowanceResult{
		Token:  token,
		Source: SourceUnknown,
	}

	reader, readerErr := s.readers.Reader(chainID)

	var queryErr string
	for _, caveat := range del.Caveats {
		role, known := s.enforcers.Lookup(chainID, caveat.Enforcer)
		if !known {
			// Soft: an unrecognized enforcer must not hide the others.
			s.logger.Debug("Unrecognized enforcer in caveat",
				zap.Uint64("chain_id", chainID),
				zap.String("enforcer", caveat.Enforcer.Hex()),
			)
			continue
		}

		switch {
		case role.IsPeriodTransfer():
			if readerErr != nil {
				queryErr = readerErr.Error()
				continue
			}
			callCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
			state, err := reader.GetPeriodTransferAvailableAmount(callCtx, caveat.Enforcer, delegationManager, del)
			cancel()
			if err != nil {
				// Timeout is treated like any other soft query failure.
				queryErr = err.Error()
				s.logger.Warn("Period transfer query failed",
					zap.Uint64("chain_id", chainID),
					zap.String("enforcer", caveat.Enforcer.Hex()),
					zap.Error(err),
				)
				continue
			}
			result.AvailableAmount = state.AvailableAmount
			result.IsNewPeriod = state.IsNewPeriod
			result.CurrentPeriod = state.CurrentPeriod
			result.Source = SourceLiveQuery
			result.QuerySuccess = true

		case role == enforcer.RoleTimestamp:
			if expiry, ok := decodeTimestampTerms(caveat.Terms); ok {
				result.ExpiresAt = &expiry
			} else {
				s.logger.Warn("Ignoring implausible timestamp caveat terms",
					zap.Uint64("chain_id", chainID),
					zap.String("enforcer", caveat.Enforcer.Hex()),
					zap.Int("terms_length", len(caveat.Terms)),
				)
			}
		}
	}

	if result.Source != SourceLiveQuery {
		result.QueryError = queryErr
		s.applyScopeFallback(&result, scope)
	}

	return result
}

// applyScopeFallback fills advisory figures from the stored scope when no
// live query succeeded.
func (s *AllowanceService) applyScopeFallback(result *AllowanceResult, scope delegation.Scope) {
	if scope == nil {
		return
	}

	result.Source = SourceStoredScope

	var expiresAt uint64
	switch v := scope.(type) {
	case delegation.NativePeriodScope:
		result.PeriodAmount = (*big.Int)(v.PeriodAmount)
		expiresAt = v.ExpiresAt
	case delegation.Erc20PeriodScope:
		result.PeriodAmount = (*big.Int)(v.PeriodAmount)
		expiresAt = v.ExpiresAt
	case delegation.Erc20TotalScope:
		result.PeriodAmount = (*big.Int)(v.MaxAmount)
		expiresAt = v.ExpiresAt
	}

	if result.ExpiresAt == nil && expiresAt > 0 && expiresAt <= maxReasonableTimestamp {
		t := time.Unix(int64(expiresAt), 0).UTC()
		result.ExpiresAt = &t
	}
}

// QueryAllAllowances evaluates every token's permission context concurrently.
// One token's failure never cancels another's query; results aggregate
// afterward.
func (s *AllowanceService) QueryAllAllowances(ctx context.Context, chainID uint64, delegationManager common.Address, perms []TokenPermission) *AllowanceReport {
	results := make([]AllowanceResult, len(perms))

	var wg sync.WaitGroup
	for i, perm := range perms {
		wg.Add(1)
		go func(i int, perm TokenPermission) {
			defer wg.Done()
			results[i] = s.queryTokenPermission(ctx, chainID, delegationManager, perm)
		}(i, perm)
	}
	wg.Wait()

	report := &AllowanceReport{
		Results:                results,
		HasMultipleExpirations: hasMultipleExpirations(results),
	}

	s.logger.Info("Allowance query completed",
		zap.Uint64("chain_id", chainID),
		zap.Int("tokens", len(results)),
		zap.Bool("has_multiple_expirations", report.HasMultipleExpirations),
	)

	return report
}

// queryTokenPermission decodes one token's context and queries its head
// delegation. Decode failures are isolated into the token's own result.
func (s *AllowanceService) queryTokenPermission(ctx context.Context, chainID uint64, delegationManager common.Address, perm TokenPermission) AllowanceResult {
	delegations, err := delegation.Decode(perm.PermissionContext)
	if err == nil && len(delegations) == 0 {
		err = delegation.ErrNoParentDelegation
	}
	if err != nil {
		result := AllowanceResult{
			Token:      perm.Token,
			Source:     SourceUnknown,
			QueryError: err.Error(),
		}
		s.applyScopeFallback(&result, perm.Scope)
		return result
	}

	// Element 0 is the delegation the executor will redeem; its caveats are
	// the ones the enforcers will check.
	return s.QueryRemainingAllowance(ctx, chainID, delegationManager, delegations[0], perm.Scope, perm.Token)
}

// decodeTimestampTerms reads the expiration from a timestamp caveat: a
// big-endian unsigned integer in the first 32 bytes. Zero, truncated and
// implausibly-far values (past year 2100) are treated as absent so corrupt
// terms never surface as real expirations.
func decodeTimestampTerms(terms []byte) (time.Time, bool) {
	if len(terms) < 32 {
		return time.Time{}, false
	}
	v := new(big.Int).SetBytes(terms[:32])
	if !v.IsUint64() {
		return time.Time{}, false
	}
	secs := v.Uint64()
	if secs == 0 || secs > maxReasonableTimestamp {
		return time.Time{}, false
	}
	return time.Unix(int64(secs), 0).UTC(), true
}

// hasMultipleExpirations reports whether distinct expiration instants exist
// across the per-token results.
func hasMultipleExpirations(results []AllowanceResult) bool {
	var first *time.Time
	for i := range results {
		exp := results[i].ExpiresAt
		if exp == nil {
			continue
		}
		if first == nil {
			first = exp
			continue
		}
		if !first.Equal(*exp) {
			return true
		}
	}
	return false
}
