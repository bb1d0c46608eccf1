package persona

import "vouch/internal/verification"

// callback is the provider-specific success indicator set extracted from the
// callback query.
type callback struct {
	Code      string
	InquiryID string
}

// exchanger turns callback indicators into a verdict. The real
// implementation will exchange the one-time code for a token and query the
// vendor's inquiry endpoint; swapping it in replaces stubExchanger only.
type exchanger interface {
	Verdict(cb callback) verification.Result
}

// stubExchanger satisfies the provider contract deterministically while the
// vendor integration is pending: success iff a code or inquiry identifier is
// present, with the inquiry ID doubling as the attestation reference.
type stubExchanger struct{}

// attestationFallback is recorded when the callback carried a code but no
// inquiry identifier.
const attestationFallback = "persona_sbx"

func (stubExchanger) Verdict(cb callback) verification.Result {
	success := cb.Code != "" || cb.InquiryID != ""

	attestationRef := cb.InquiryID
	if attestationRef == "" {
		attestationRef = attestationFallback
	}

	scoreBin := verification.ScoreBinLow
	if success {
		scoreBin = verification.ScoreBinHigh
	}

	return verification.Result{
		Success:        success,
		AttestationRef: attestationRef,
		Reasons:        []string{ReasonSandbox},
		ScoreBin:       scoreBin,
	}
}
