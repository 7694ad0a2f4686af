package services

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cyphera/agent-delegation/internal/delegation"
	"go.uber.org/zap"
)

// DiagnosisCode is the fixed taxonomy a rejected execution is classified
// into.
type DiagnosisCode string

const (
	CodeNativeTokenLimitExceeded DiagnosisCode = "NATIVE_TOKEN_LIMIT_EXCEEDED"
	CodeErc20PeriodLimitExceeded DiagnosisCode = "ERC20_PERIOD_LIMIT_EXCEEDED"
	CodeErc20TotalLimitExceeded  DiagnosisCode = "ERC20_TOTAL_LIMIT_EXCEEDED"
	CodeDelegationExpired        DiagnosisCode = "DELEGATION_EXPIRED"
	CodeDelegationNotYetValid    DiagnosisCode = "DELEGATION_NOT_YET_VALID"
	CodeDelegationRevoked        DiagnosisCode = "DELEGATION_REVOKED"
	CodeInvalidSignature         DiagnosisCode = "INVALID_SIGNATURE"
	CodeTargetNotAllowed         DiagnosisCode = "TARGET_NOT_ALLOWED"
	CodeMethodNotAllowed         DiagnosisCode = "METHOD_NOT_ALLOWED"
	CodeCalldataMismatch         DiagnosisCode = "CALLDATA_MISMATCH"
	CodeInsufficientGasFunds     DiagnosisCode = "INSUFFICIENT_GAS_FUNDS"
	CodeUnknown                  DiagnosisCode = "UNKNOWN"
)

// Diagnosis is the classified explanation of a failed execution, enriched
// with live allowance figures when the caller supplied them.
type Diagnosis struct {
	Code            DiagnosisCode        `json:"code"`
	Meaning         string               `json:"meaning"`
	UserExplanation string               `json:"user_explanation"`
	Remedies        []string             `json:"remedies"`
	ScopeKind       delegation.ScopeKind `json:"scope_kind,omitempty"`

	RemainingAllowance *big.Int        `json:"remaining_allowance,omitempty"`
	ExpiresAt          *time.Time      `json:"expires_at,omitempty"`
	AllowanceSource    AllowanceSource `json:"allowance_source,omitempty"`
}

// diagnosisRule matches one failure pattern. Rules are ordered: token-specific
// patterns come before the generic substrings they contain.
type diagnosisRule struct {
	pattern     string
	code        DiagnosisCode
	meaning     string
	explanation string
	remedies    []string
	scopeKind   delegation.ScopeKind
}

var diagnosisRules = []diagnosisRule{
	{
		pattern:     "NativeTokenPeriodTransferEnforcer:transfer-amount-exceeded",
		code:        CodeNativeTokenLimitExceeded,
		meaning:     "The native-token spending cap for the current period is exhausted.",
		explanation: "This transfer would exceed the ETH amount the permission allows per period.",
		remedies: []string{
			"Wait for the current period to reset.",
			"Ask the account owner to grant a higher period limit.",
			"Send a smaller amount within the remaining allowance.",
		},
		scopeKind: delegation.ScopeNativePeriod,
	},
	{
		pattern:     "ERC20PeriodTransferEnforcer:transfer-amount-exceeded",
		code:        CodeErc20PeriodLimitExceeded,
		meaning:     "The token's spending cap for the current period is exhausted.",
		explanation: "This transfer would exceed the token amount the permission allows per period.",
		remedies: []string{
			"Wait for the current period to reset.",
			"Ask the account owner to grant a higher period limit.",
			"Send a smaller amount within the remaining allowance.",
		},
		scopeKind: delegation.ScopeErc20Period,
	},
	{
		pattern:     "ERC20TransferAmountEnforcer:allowance-exceeded",
		code:        CodeErc20TotalLimitExceeded,
		meaning:     "The lifetime transfer cap for this token is exhausted.",
		explanation: "The total amount this permission may ever move for this token has been reached.",
		remedies: []string{
			"Ask the account owner to grant a new permission with a higher total.",
		},
		scopeKind: delegation.ScopeErc20Total,
	},
	// Generic fallback for period enforcers whose contract name is not in the
	// revert text. Must stay below the token-specific rules above.
	{
		pattern:     "transfer-amount-exceeded",
		code:        CodeErc20PeriodLimitExceeded,
		meaning:     "A spending cap for the current period is exhausted.",
		explanation: "This transfer would exceed the amount the permission allows per period.",
		remedies: []string{
			"Wait for the current period to reset.",
			"Send a smaller amount within the remaining allowance.",
		},
	},
	{
		pattern:     "TimestampEnforcer:expired-delegation",
		code:        CodeDelegationExpired,
		meaning:     "The permission's validity window has ended.",
		explanation: "The permission has expired and can no longer authorize transfers.",
		remedies: []string{
			"Ask the account owner to grant a fresh permission.",
		},
	},
	{
		pattern:     "TimestampEnforcer:early-delegation",
		code:        CodeDelegationNotYetValid,
		meaning:     "The permission's validity window has not started.",
		explanation: "The permission is not valid yet; its start time is in the future.",
		remedies: []string{
			"Retry after the permission's start time.",
		},
	},
	{
		pattern:     "expired",
		code:        CodeDelegationExpired,
		meaning:     "The permission's validity window has ended.",
		explanation: "The permission has expired and can no longer authorize transfers.",
		remedies: []string{
			"Ask the account owner to grant a fresh permission.",
		},
	},
	{
		pattern:     "delegation-revoked",
		code:        CodeDelegationRevoked,
		meaning:     "The account owner revoked the permission chain.",
		explanation: "The permission was revoked and no transfer can be authorized under it.",
		remedies: []string{
			"Ask the account owner to grant a new permission.",
		},
	},
	{
		pattern:     "invalid-delegation-signature",
		code:        CodeInvalidSignature,
		meaning:     "A signature in the delegation chain does not verify.",
		explanation: "One of the delegations in the chain carries a signature that does not match its signer.",
		remedies: []string{
			"Rebuild the sub-delegation from the original permission context.",
			"Verify the chain and delegation manager address used at signing time.",
		},
	},
	{
		pattern:     "AllowedTargetsEnforcer:target-address-not-allowed",
		code:        CodeTargetNotAllowed,
		meaning:     "The recipient is outside the permission's allowed targets.",
		explanation: "The permission restricts recipients, and this address is not one of them.",
		remedies: []string{
			"Send to one of the allowed recipients.",
			"Ask the account owner for a permission covering this recipient.",
		},
	},
	{
		pattern:     "AllowedMethodsEnforcer:method-not-allowed",
		code:        CodeMethodNotAllowed,
		meaning:     "The call's function selector is outside the permission's allowed methods.",
		explanation: "The permission restricts which contract functions may be called, and this one is not allowed.",
		remedies: []string{
			"Use an operation the permission covers.",
		},
	},
	{
		pattern:     "ExactCalldataEnforcer:invalid-calldata",
		code:        CodeCalldataMismatch,
		meaning:     "The call's data does not byte-match the permission's pinned calldata.",
		explanation: "The permission only authorizes one exact call, and this request differs from it.",
		remedies: []string{
			"Re-issue the exact operation the permission was created for.",
		},
	},
	{
		pattern:     "insufficient funds",
		code:        CodeInsufficientGasFunds,
		meaning:     "The executing account cannot cover gas for the transaction.",
		explanation: "The transaction could not be paid for; this is a gas balance problem, not a permission limit.",
		remedies: []string{
			"Fund the executing account with native currency for gas.",
		},
	},
}

// unknownRemedies is the generic remedy list for unclassified failures. The
// no-match branch is a first-class outcome, never an error.
var unknownRemedies = []string{
	"Verify the permission is still active and not expired.",
	"Check the remaining allowance before retrying.",
	"Retry once; transient network errors resolve on their own.",
	"If the failure persists, ask the account owner to re-grant the permission.",
}

// DiagnosisService classifies redemption failure messages against the rule
// table. Pure classification: it performs no network calls of its own.
type DiagnosisService struct {
	logger *zap.Logger
}

// NewDiagnosisService creates a new diagnosis service.
func NewDiagnosisService(logger *zap.Logger) *DiagnosisService {
	return &DiagnosisService{logger: logger}
}

// Diagnose classifies the failure text; first matching rule wins. When live
// allowance state is supplied the explanation carries concrete remaining
// figures instead of generic wording.
func (s *DiagnosisService) Diagnose(errorMessage string, state *AllowanceResult) Diagnosis {
	lowered := strings.ToLower(errorMessage)

	for _, rule := range diagnosisRules {
		if !strings.Contains(lowered, strings.ToLower(rule.pattern)) {
			continue
		}
		diagnosis := Diagnosis{
			Code:            rule.code,
			Meaning:         rule.meaning,
			UserExplanation: rule.explanation,
			Remedies:        append([]string(nil), rule.remedies...),
			ScopeKind:       rule.scopeKind,
		}
		s.enrich(&diagnosis, state)

		s.logger.Info("Classified redemption failure",
			zap.String("code", string(diagnosis.Code)),
			zap.String("pattern", rule.pattern),
		)
		return diagnosis
	}

	s.logger.Info("Redemption failure did not match any known pattern")

	diagnosis := Diagnosis{
		Code:            CodeUnknown,
		Meaning:         "The failure did not match any known permission or enforcer condition.",
		UserExplanation: "The transfer failed for an unrecognized reason.",
		Remedies:        append([]string(nil), unknownRemedies...),
	}
	s.enrich(&diagnosis, state)
	return diagnosis
}

// enrich attaches live allowance context so the explanation is concrete
// ("0.4 ETH left, resets in 3 hours") rather than generic.
func (s *DiagnosisService) enrich(diagnosis *Diagnosis, state *AllowanceResult) {
	if state == nil || !state.LimitsKnown() {
		return
	}

	diagnosis.AllowanceSource = state.Source
	diagnosis.ExpiresAt = state.ExpiresAt

	switch {
	case state.QuerySuccess && state.AvailableAmount != nil:
		diagnosis.RemainingAllowance = state.AvailableAmount
		diagnosis.UserExplanation = fmt.Sprintf("%s You have %s remaining in the current period.",
			diagnosis.UserExplanation, formatTokenAmount(state.AvailableAmount))
	case state.PeriodAmount != nil:
		diagnosis.RemainingAllowance = state.PeriodAmount
		diagnosis.UserExplanation = fmt.Sprintf("%s The stored permission allows up to %s per period (live figure unavailable).",
			diagnosis.UserExplanation, formatTokenAmount(state.PeriodAmount))
	}

	if state.ExpiresAt != nil {
		diagnosis.UserExplanation = fmt.Sprintf("%s The permission expires at %s.",
			diagnosis.UserExplanation, state.ExpiresAt.UTC().Format(time.RFC3339))
	}
}

// formatTokenAmount renders a wei-scale amount as a decimal token figure,
// assuming the conventional 18 decimals.
func formatTokenAmount(amount *big.Int) string {
	if amount == nil {
		return "unknown"
	}
	whole := new(big.Int)
	frac := new(big.Int)
	whole.DivMod(amount, big.NewInt(1e18), frac)
	if frac.Sign() == 0 {
		return whole.String()
	}
	fracStr := fmt.Sprintf("%018s", frac.String())
	fracStr = strings.TrimRight(fracStr, "0")
	return fmt.Sprintf("%s.%s", whole.String(), fracStr)
}
