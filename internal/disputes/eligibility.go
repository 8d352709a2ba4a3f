package disputes

import "sort"

// CE3Status is the terminal eligibility state for the Visa Compelling
// Evidence 3.0 program.
type CE3Status string

const (
	CE3Qualified      CE3Status = "qualified"
	CE3RequiresAction CE3Status = "requires_action"
	CE3NotQualified   CE3Status = "not_qualified"
)

// CE3RequiredAction names a remediation the merchant must take before the
// dispute qualifies.
type CE3RequiredAction string

const (
	ActionMissingCustomerEmailAddress        CE3RequiredAction = "missing_customer_email_address"
	ActionMissingCustomerPurchaseIP          CE3RequiredAction = "missing_customer_purchase_ip"
	ActionMissingMerchandiseOrServices       CE3RequiredAction = "missing_merchandise_or_services"
	ActionMissingDisputedTxnDescription      CE3RequiredAction = "missing_disputed_transaction_description"
	ActionMissingPriorTxnCustomerIdentifiers CE3RequiredAction = "missing_prior_transaction_customer_identifiers"
	ActionMissingPriorUndisputedTxns         CE3RequiredAction = "missing_prior_undisputed_transactions"
	ActionTransactionsTooRecent              CE3RequiredAction = "transactions_too_recent"
	ActionTransactionsTooOld                 CE3RequiredAction = "transactions_too_old"
)

// EnhancedEligibility is the evaluator's output. It is derived, never
// independently persisted as truth: callers recompute it whenever
// prior-transaction data changes and persist the snapshot explicitly.
type EnhancedEligibility struct {
	VisaCompellingEvidence3 VisaCE3Eligibility `json:"visa_compelling_evidence_3"`
}

// VisaCE3Eligibility is the tri-state verdict plus remediation flags and the
// prior transactions retained for the submission payload.
type VisaCE3Eligibility struct {
	Status                      CE3Status           `json:"status"`
	RequiredActions             []CE3RequiredAction `json:"required_actions,omitempty"`
	QualifyingPriorTransactions []string            `json:"qualifying_prior_transactions,omitempty"`
}

// Prior-transaction age window, in days. A prior charge counts toward CE 3.0
// only when it settled at least 120 and at most 365 days before the dispute.
const (
	ce3MinPriorAgeDays = 120
	ce3MaxPriorAgeDays = 365

	// ce3MaxPriorTransactions caps how many qualifying priors are carried
	// into the submission payload.
	ce3MaxPriorTransactions = 5

	// ce3MaxDescriptionLength bounds the disputed transaction's product
	// description.
	ce3MaxDescriptionLength = 500

	secondsPerDay = 86400
)

// EvaluateCE3Eligibility determines whether a fraud dispute qualifies for
// Visa Compelling Evidence 3.0. It is pure and idempotent: the same inputs
// always yield the same verdict, and the dispute itself is never mutated.
//
// The candidate set is externally fetched and bounded; candidates with a
// missing or malformed charge date are excluded from the count without
// raising an error.
func EvaluateCE3Eligibility(d *Dispute, priors []PriorTransaction) EnhancedEligibility {
	// Gate: the program applies only to Visa card-absent fraud.
	if d.CardBrand() != BrandVisa ||
		!IsVisaCE3ReasonCode(d.NetworkReasonCode()) ||
		d.Reason != ReasonFraudulent {
		return EnhancedEligibility{
			VisaCompellingEvidence3: VisaCE3Eligibility{Status: CE3NotQualified},
		}
	}

	var missing []CE3RequiredAction

	// Disputed-transaction identifiers. Flag order is stable: identifier
	// flags precede count/age flags.
	txn := disputedTransaction(d)
	if txn == nil || txn.CustomerEmailAddress == "" {
		missing = append(missing, ActionMissingCustomerEmailAddress)
	}
	if txn == nil || txn.CustomerPurchaseIP == "" {
		missing = append(missing, ActionMissingCustomerPurchaseIP)
	}
	if txn == nil || (txn.MerchandiseOrServices != "merchandise" && txn.MerchandiseOrServices != "services") {
		missing = append(missing, ActionMissingMerchandiseOrServices)
	}
	if txn == nil || txn.ProductDescription == "" || len([]rune(txn.ProductDescription)) > ce3MaxDescriptionLength {
		missing = append(missing, ActionMissingDisputedTxnDescription)
	}

	qualifying, tooRecent, tooOld := partitionPriors(d.Created, priors)

	if len(qualifying) > 0 && !anyHasCustomerIdentifier(qualifying) {
		missing = append(missing, ActionMissingPriorTxnCustomerIdentifiers)
	}

	if len(qualifying) < 2 {
		missing = append(missing, ActionMissingPriorUndisputedTxns)
		if tooRecent {
			missing = append(missing, ActionTransactionsTooRecent)
		}
		if tooOld {
			missing = append(missing, ActionTransactionsTooOld)
		}
	}

	result := VisaCE3Eligibility{
		QualifyingPriorTransactions: selectPriorCharges(qualifying),
	}
	if len(missing) == 0 {
		result.Status = CE3Qualified
	} else {
		result.Status = CE3RequiresAction
		result.RequiredActions = missing
	}

	return EnhancedEligibility{VisaCompellingEvidence3: result}
}

func disputedTransaction(d *Dispute) *CE3DisputedTransaction {
	if d.EnhancedEvidence == nil || d.EnhancedEvidence.VisaCompellingEvidence3 == nil {
		return nil
	}
	return d.EnhancedEvidence.VisaCompellingEvidence3.DisputedTransaction
}

// agedPrior pairs a candidate with its age so selection can order by
// proximity to the 120-day boundary.
type agedPrior struct {
	txn     PriorTransaction
	ageDays int64
}

// partitionPriors splits candidates into qualifying priors and records
// whether any non-qualifying candidate failed on recency or staleness.
// Candidates with no usable date are dropped silently.
func partitionPriors(disputeCreated int64, priors []PriorTransaction) (qualifying []agedPrior, tooRecent, tooOld bool) {
	for _, p := range priors {
		if p.ChargeDate <= 0 || p.ChargeDate > disputeCreated {
			continue
		}
		age := (disputeCreated - p.ChargeDate) / secondsPerDay
		switch {
		case age < ce3MinPriorAgeDays:
			tooRecent = true
		case age > ce3MaxPriorAgeDays:
			tooOld = true
		default:
			qualifying = append(qualifying, agedPrior{txn: p, ageDays: age})
		}
	}
	return qualifying, tooRecent, tooOld
}

func anyHasCustomerIdentifier(priors []agedPrior) bool {
	for _, p := range priors {
		if p.txn.CustomerEmailAddress != "" || p.txn.CustomerPurchaseIP != "" ||
			p.txn.CustomerDeviceFingerprint != "" || p.txn.CustomerDeviceID != "" {
			return true
		}
	}
	return false
}

// selectPriorCharges retains at most five qualifying priors for the
// submission payload, preferring the freshest sufficiently-aged evidence:
// candidates closest to the 120-day boundary come first.
func selectPriorCharges(qualifying []agedPrior) []string {
	sorted := make([]agedPrior, len(qualifying))
	copy(sorted, qualifying)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ageDays < sorted[j].ageDays
	})

	if len(sorted) > ce3MaxPriorTransactions {
		sorted = sorted[:ce3MaxPriorTransactions]
	}

	out := make([]string, 0, len(sorted))
	for _, p := range sorted {
		out = append(out, p.txn.Charge)
	}
	return out
}
