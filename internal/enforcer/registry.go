// Package enforcer maps on-chain caveat enforcer addresses to the roles this
// system knows how to interpret. Identification is strictly table-driven:
// addresses are configuration per chain, never logic.
package enforcer

import (
	"github.com/cyphera/agent-delegation/internal/constants"
	"github.com/ethereum/go-ethereum/common"
)

// Role names the behavior of a known enforcer contract.
type Role string

const (
	RoleNativeTokenPeriodTransfer Role = "NativeTokenPeriodTransferEnforcer"
	RoleErc20PeriodTransfer       Role = "ERC20PeriodTransferEnforcer"
	RoleErc20TransferAmount       Role = "ERC20TransferAmountEnforcer"
	RoleTimestamp                 Role = "TimestampEnforcer"
)

// IsPeriodTransfer reports whether the role answers getAvailableAmount
// queries.
func (r Role) IsPeriodTransfer() bool {
	return r == RoleNativeTokenPeriodTransfer || r == RoleErc20PeriodTransfer
}

// Registry is the per-chain enforcer address table. It is built once at
// startup and read-only afterwards.
type Registry struct {
	byChain map[uint64]map[common.Address]Role
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byChain: make(map[uint64]map[common.Address]Role),
	}
}

// Register binds an enforcer address to a role on one chain.
func (r *Registry) Register(chainID uint64, addr common.Address, role Role) {
	table, ok := r.byChain[chainID]
	if !ok {
		table = make(map[common.Address]Role)
		r.byChain[chainID] = table
	}
	table[addr] = role
}

// Lookup returns the role registered for an address on a chain.
func (r *Registry) Lookup(chainID uint64, addr common.Address) (Role, bool) {
	table, ok := r.byChain[chainID]
	if !ok {
		return "", false
	}
	role, ok := table[addr]
	return role, ok
}

// AddressFor returns the registered address for a role on a chain, if any.
func (r *Registry) AddressFor(chainID uint64, role Role) (common.Address, bool) {
	for addr, got := range r.byChain[chainID] {
		if got == role {
			return addr, true
		}
	}
	return common.Address{}, false
}

// Framework v1.3.0 deploys the enforcer set at the same addresses on every
// supported chain.
var defaultEnforcers = map[Role]common.Address{
	RoleNativeTokenPeriodTransfer: common.HexToAddress("0x9Bc0FAf4Aca5AE429F4c06aeEaC517520CB16BD9"),
	RoleErc20PeriodTransfer:       common.HexToAddress("0x474e3Ae7E169e940607cC624Da8A15Eb120139aB"),
	RoleErc20TransferAmount:       common.HexToAddress("0xf2394e3cEA8f1A3bAb2e0b77f2d92d966e12a7f9"),
	RoleTimestamp:                 common.HexToAddress("0x1046bb45C8d673d4ea75321280DB34899413c069"),
}

// DefaultRegistry returns the registry for the chains the service supports
// out of the box. Deployments with different addresses override entries via
// Register.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, chainID := range []uint64{
		constants.EthereumMainnetChainID,
		constants.BaseChainID,
		constants.SepoliaChainID,
	} {
		for role, addr := range defaultEnforcers {
			r.Register(chainID, addr, role)
		}
	}
	return r
}
