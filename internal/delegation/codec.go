package delegation

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Permission contexts cross every boundary of the system as a single ABI
// blob: tuple(address,address,bytes32,tuple(address,bytes,bytes)[],uint256,bytes)[].
// Index 0 is the delegation the immediate executor redeems; later entries are
// its ancestors up to the root grant.
var permissionContextArgs abi.Arguments

func init() {
	delegationsType, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "delegate", Type: "address"},
		{Name: "delegator", Type: "address"},
		{Name: "authority", Type: "bytes32"},
		{Name: "caveats", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "enforcer", Type: "address"},
			{Name: "terms", Type: "bytes"},
			{Name: "args", Type: "bytes"},
		}},
		{Name: "salt", Type: "uint256"},
		{Name: "signature", Type: "bytes"},
	})
	if err != nil {
		panic("failed to build permission context ABI type: " + err.Error())
	}
	permissionContextArgs = abi.Arguments{{Name: "delegations", Type: delegationsType}}
}

type wireCaveat struct {
	Enforcer common.Address
	Terms    []byte
	Args     []byte
}

type wireDelegation struct {
	Delegate  common.Address
	Delegator common.Address
	Authority [32]byte
	Caveats   []wireCaveat
	Salt      *big.Int
	Signature []byte
}

// Encode serializes an ordered delegation chain into its binary permission
// context form. Encode and Decode are exact inverses.
func Encode(delegations []Delegation) ([]byte, error) {
	wire := make([]wireDelegation, len(delegations))
	for i, d := range delegations {
		caveats := make([]wireCaveat, len(d.Caveats))
		for j, c := range d.Caveats {
			caveats[j] = wireCaveat{
				Enforcer: c.Enforcer,
				Terms:    emptyIfNil(c.Terms),
				Args:     emptyIfNil(c.Args),
			}
		}
		wire[i] = wireDelegation{
			Delegate:  d.Delegate,
			Delegator: d.Delegator,
			Authority: d.Authority,
			Caveats:   caveats,
			Salt:      d.SaltInt(),
			Signature: emptyIfNil(d.Signature),
		}
	}

	encoded, err := permissionContextArgs.Pack(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to encode permission context: %w", err)
	}
	return encoded, nil
}

// EncodeHex serializes a delegation chain to a 0x-prefixed hex string.
func EncodeHex(delegations []Delegation) (string, error) {
	encoded, err := Encode(delegations)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(encoded), nil
}

// Decode parses a permission context blob back into its delegation chain.
// Empty input is ErrEmptyPermissionContext: "no permission configured" must
// stay distinguishable from a context that decodes to zero delegations.
// Malformed bytes are ErrMalformedPermissionContext and never yield a partial
// result.
func Decode(data []byte) ([]Delegation, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPermissionContext
	}

	out, err := permissionContextArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPermissionContext, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: unexpected unpack arity %d", ErrMalformedPermissionContext, len(out))
	}

	wire := *abi.ConvertType(out[0], new([]wireDelegation)).(*[]wireDelegation)

	delegations := make([]Delegation, len(wire))
	for i, w := range wire {
		caveats := make([]Caveat, len(w.Caveats))
		for j, c := range w.Caveats {
			caveats[j] = Caveat{
				Enforcer: c.Enforcer,
				Terms:    hexutil.Bytes(c.Terms),
				Args:     hexutil.Bytes(c.Args),
			}
		}
		delegations[i] = Delegation{
			Delegate:  w.Delegate,
			Delegator: w.Delegator,
			Authority: common.Hash(w.Authority),
			Caveats:   caveats,
			Salt:      (*hexutil.Big)(w.Salt),
			Signature: hexutil.Bytes(w.Signature),
		}
	}
	return delegations, nil
}

// DecodeHex parses a 0x-prefixed hex permission context. "" and "0x" are
// ErrEmptyPermissionContext; invalid hex is ErrMalformedPermissionContext.
func DecodeHex(s string) ([]Delegation, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if trimmed == "" {
		return nil, ErrEmptyPermissionContext
	}
	data, err := hexutil.Decode("0x" + trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPermissionContext, err)
	}
	return Decode(data)
}

func emptyIfNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
