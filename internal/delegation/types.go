package delegation

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RootAuthority is the sentinel authority value marking a delegation granted
// directly by the account owner rather than derived from a parent delegation.
var RootAuthority = common.HexToHash("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")

// Caveat is a single narrowing condition attached to a delegation. Terms is
// an enforcer-specific payload fixed at signing time; Args carries
// execution-time data and is excluded from the structured hash.
type Caveat struct {
	Enforcer common.Address `json:"enforcer"`
	Terms    hexutil.Bytes  `json:"terms"`
	Args     hexutil.Bytes  `json:"args"`
}

// Delegation is a signed record granting Delegate the right to act on behalf
// of Delegator within the bounds set by its caveats. Authority is either
// RootAuthority or the structured hash of the parent delegation.
type Delegation struct {
	Delegate  common.Address `json:"delegate"`
	Delegator common.Address `json:"delegator"`
	Authority common.Hash    `json:"authority"`
	Caveats   []Caveat       `json:"caveats"`
	Salt      *hexutil.Big   `json:"salt"`
	Signature hexutil.Bytes  `json:"signature"`
}

// IsRoot reports whether the delegation is a root grant.
func (d Delegation) IsRoot() bool {
	return d.Authority == RootAuthority
}

// SaltInt returns the salt as a big integer, treating a nil salt as zero.
func (d Delegation) SaltInt() *big.Int {
	if d.Salt == nil {
		return new(big.Int)
	}
	return (*big.Int)(d.Salt)
}

// Equal reports field-for-field equality, including signature bytes. nil and
// empty caveat lists compare equal, matching the hashing normalization.
func (d Delegation) Equal(other Delegation) bool {
	if d.Delegate != other.Delegate ||
		d.Delegator != other.Delegator ||
		d.Authority != other.Authority {
		return false
	}
	if d.SaltInt().Cmp(other.SaltInt()) != 0 {
		return false
	}
	if string(d.Signature) != string(other.Signature) {
		return false
	}
	if len(d.Caveats) != len(other.Caveats) {
		return false
	}
	for i := range d.Caveats {
		a, b := d.Caveats[i], other.Caveats[i]
		if a.Enforcer != b.Enforcer ||
			string(a.Terms) != string(b.Terms) ||
			string(a.Args) != string(b.Args) {
			return false
		}
	}
	return true
}

// ScopeKind identifies which variant of advisory scope was stored alongside a
// delegation.
type ScopeKind string

const (
	ScopeNativePeriod ScopeKind = "nativePeriodTransfer"
	ScopeErc20Period  ScopeKind = "erc20PeriodTransfer"
	ScopeErc20Total   ScopeKind = "erc20TotalTransfer"
)

// Scope is the advisory, human-readable description of the caveats attached
// to a delegation. It is display/fallback data only and must never override
// live enforcer state.
type Scope interface {
	Kind() ScopeKind
}

// NativePeriodScope caps native-currency transfers per recurring period.
type NativePeriodScope struct {
	PeriodAmount   *hexutil.Big `json:"period_amount"`
	PeriodDuration uint32       `json:"period_duration_seconds"`
	StartTime      uint64       `json:"start_time,omitempty"`
	ExpiresAt      uint64       `json:"expires_at,omitempty"`
}

func (NativePeriodScope) Kind() ScopeKind { return ScopeNativePeriod }

// Erc20PeriodScope caps transfers of one ERC-20 token per recurring period.
type Erc20PeriodScope struct {
	Token          common.Address `json:"token_address"`
	PeriodAmount   *hexutil.Big   `json:"period_amount"`
	PeriodDuration uint32         `json:"period_duration_seconds"`
	StartTime      uint64         `json:"start_time,omitempty"`
	ExpiresAt      uint64         `json:"expires_at,omitempty"`
}

func (Erc20PeriodScope) Kind() ScopeKind { return ScopeErc20Period }

// Erc20TotalScope caps the lifetime total transferable for one ERC-20 token.
type Erc20TotalScope struct {
	Token     common.Address `json:"token_address"`
	MaxAmount *hexutil.Big   `json:"max_amount"`
	ExpiresAt uint64         `json:"expires_at,omitempty"`
}

func (Erc20TotalScope) Kind() ScopeKind { return ScopeErc20Total }

// scopeEnvelope is the stored JSON form of a scope: the variant payload plus
// a type tag.
type scopeEnvelope struct {
	Type ScopeKind       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalScope serializes a scope with its type tag.
func MarshalScope(s Scope) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scope: %w", err)
	}
	return json.Marshal(scopeEnvelope{Type: s.Kind(), Data: data})
}

// UnmarshalScope parses a stored scope envelope back into its variant.
// Returns nil for empty input.
func UnmarshalScope(data []byte) (Scope, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var env scopeEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scope envelope: %w", err)
	}
	switch env.Type {
	case ScopeNativePeriod:
		var s NativePeriodScope
		if err := json.Unmarshal(env.Data, &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal native period scope: %w", err)
		}
		return s, nil
	case ScopeErc20Period:
		var s Erc20PeriodScope
		if err := json.Unmarshal(env.Data, &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal erc20 period scope: %w", err)
		}
		return s, nil
	case ScopeErc20Total:
		var s Erc20TotalScope
		if err := json.Unmarshal(env.Data, &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal erc20 total scope: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown scope type %q", env.Type)
	}
}
