package disputes

import (
	"fmt"

	"github.com/example/dispute-engine/internal/vault"
)

// SubmissionPackage is the composed, submission-ready result handed to the
// external network-submission layer. The engine produces plain data; wire
// payloads (VROL, Mastercom, ISO 8583) are the collaborator's concern.
type SubmissionPackage struct {
	Dispute             *Dispute            `json:"dispute"`
	ReasonCode          *ReasonCodeInfo     `json:"reason_code,omitempty"`
	RecommendedEvidence []string            `json:"recommended_evidence"`
	Eligibility         EnhancedEligibility `json:"eligibility"`
	Compliance          ComplianceState     `json:"compliance"`
}

// EvidenceValidationError wraps the collected evidence errors so a caller
// can render every problem at once.
type EvidenceValidationError struct {
	Errors []EvidenceError
}

func (e *EvidenceValidationError) Error() string {
	return fmt.Sprintf("evidence validation failed with %d error(s)", len(e.Errors))
}

// PrepareSubmission runs the full pipeline over a validated dispute
// snapshot: tokenization guard, evidence validation, then reason-code
// translation, CE 3.0 evaluation and deadline calculation on the validated
// result. Guard and validation failures block the downstream components;
// eligibility and compliance outcomes are informative states, never errors.
func PrepareSubmission(d *Dispute, priors []PriorTransaction, accountAgeDays int, now int64) (*SubmissionPackage, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	// New submissions require a live token; read-only display does not.
	if d.PaymentMethod.Card != nil {
		if err := vault.IsTokenValid(d.PaymentMethod.Card.TokenizedCardData, now); err != nil {
			return nil, err
		}
	}

	if errs := ValidateEvidence(&d.Evidence); len(errs) > 0 {
		return nil, &EvidenceValidationError{Errors: errs}
	}

	// The three analysis components run independently on the validated
	// dispute; a nil reason-code lookup falls back to the declared reason.
	info := LookupReasonCode(d.CardBrand(), d.NetworkReasonCode())
	category := d.Reason
	if info != nil {
		category = info.Category
	}

	return &SubmissionPackage{
		Dispute:             d,
		ReasonCode:          info,
		RecommendedEvidence: RecommendedEvidence(category),
		Eligibility:         EvaluateCE3Eligibility(d, priors),
		Compliance:          CalculateComplianceState(d, accountAgeDays),
	}, nil
}
