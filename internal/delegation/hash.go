package delegation

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Type tags of the delegation manager's typed-data scheme. The Delegation tag
// includes the referenced Caveat type string, per EIP-712 encodeType rules.
var (
	delegationTypeHash = crypto.Keccak256Hash([]byte(
		"Delegation(address delegate,address delegator,bytes32 authority,Caveat[] caveats,uint256 salt)Caveat(address enforcer,bytes terms)",
	))
	caveatTypeHash = crypto.Keccak256Hash([]byte(
		"Caveat(address enforcer,bytes terms)",
	))
	eip712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))
)

// HashCaveat computes the structured hash of a single caveat. Args is
// execution-time data and is not part of the caveat's identity.
func HashCaveat(c Caveat) common.Hash {
	buf := make([]byte, 0, 96)
	buf = append(buf, caveatTypeHash.Bytes()...)
	buf = append(buf, common.LeftPadBytes(c.Enforcer.Bytes(), 32)...)
	buf = append(buf, crypto.Keccak256(c.Terms)...)
	return crypto.Keccak256Hash(buf)
}

// HashCaveatList hashes the packed concatenation of the caveat hashes. An
// empty (or nil) list hashes the empty byte sequence, so a delegation with an
// omitted caveats field hashes identically to one with an explicit empty
// list.
func HashCaveatList(caveats []Caveat) common.Hash {
	packed := make([]byte, 0, len(caveats)*32)
	for _, c := range caveats {
		h := HashCaveat(c)
		packed = append(packed, h.Bytes()...)
	}
	return crypto.Keccak256Hash(packed)
}

// Hash computes the structured hash of a delegation, excluding its signature.
// This value is both the signing target and the authority pointer a child
// delegation chains to.
func Hash(d Delegation) (common.Hash, error) {
	salt := d.SaltInt()
	if salt.Sign() < 0 || salt.BitLen() > 256 {
		return common.Hash{}, fmt.Errorf("%w: salt does not fit uint256", ErrMalformedDelegation)
	}

	caveatListHash := HashCaveatList(d.Caveats)

	buf := make([]byte, 0, 192)
	buf = append(buf, delegationTypeHash.Bytes()...)
	buf = append(buf, common.LeftPadBytes(d.Delegate.Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(d.Delegator.Bytes(), 32)...)
	buf = append(buf, d.Authority.Bytes()...)
	buf = append(buf, caveatListHash.Bytes()...)
	buf = append(buf, common.LeftPadBytes(salt.Bytes(), 32)...)
	return crypto.Keccak256Hash(buf), nil
}

// Domain identifies the delegation manager deployment a signature is bound
// to. Signatures over the same delegation content differ across chains and
// across manager contracts, which is what prevents replay.
type Domain struct {
	ChainID           uint64
	VerifyingContract common.Address
}

// DomainSeparator computes the EIP-712 domain separator for the delegation
// manager. Name and version are fixed by the external protocol.
func DomainSeparator(domainName, domainVersion string, dom Domain) common.Hash {
	buf := make([]byte, 0, 160)
	buf = append(buf, eip712DomainTypeHash.Bytes()...)
	buf = append(buf, crypto.Keccak256([]byte(domainName))...)
	buf = append(buf, crypto.Keccak256([]byte(domainVersion))...)
	buf = append(buf, common.LeftPadBytes(new(big.Int).SetUint64(dom.ChainID).Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(dom.VerifyingContract.Bytes(), 32)...)
	return crypto.Keccak256Hash(buf)
}

// SigningDigest computes the digest the delegator signs:
// keccak256(0x1901 || domainSeparator || structHash).
func SigningDigest(domainName, domainVersion string, dom Domain, d Delegation) (common.Hash, error) {
	structHash, err := Hash(d)
	if err != nil {
		return common.Hash{}, err
	}
	sep := DomainSeparator(domainName, domainVersion, dom)

	buf := make([]byte, 0, 66)
	buf = append(buf, 0x19, 0x01)
	buf = append(buf, sep.Bytes()...)
	buf = append(buf, structHash.Bytes()...)
	return crypto.Keccak256Hash(buf), nil
}
