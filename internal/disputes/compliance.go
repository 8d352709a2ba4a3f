package disputes

// Regulation is the regime a dispute's deadlines fall under. Exactly one
// regime applies to a dispute, selected once at entry by the payment
// method's funding attribute.
type Regulation string

const (
	RegulationE    Regulation = "reg_e"
	RegulationZ    Regulation = "reg_z"
	RegulationNone Regulation = "non_regulated"
)

// DeadlineAction is the action a deadline obligates.
type DeadlineAction string

const (
	ActionProvisionalCredit DeadlineAction = "provisional_credit"
	ActionInvestigation     DeadlineAction = "investigation"
	ActionAcknowledgment    DeadlineAction = "acknowledgment"
	ActionResolution        DeadlineAction = "resolution"
)

// Deadline is an absolute regulatory target. Missing one is terminal
// (automatic loss); the engine computes targets, downstream schedulers own
// the timers.
type Deadline struct {
	Label       string         `json:"label"`
	DueBy       int64          `json:"due_by"` // Unix epoch seconds
	Description string         `json:"description"`
	Action      DeadlineAction `json:"action"`
}

// ComplianceState is the selected regime and its ordered deadline set.
type ComplianceState struct {
	Regulation Regulation `json:"regulation"`
	Deadlines  []Deadline `json:"deadlines"`
}

// Regulatory windows, offsets from dispute creation.
const (
	regEProvisionalCreditDays    = 10
	regEInvestigationDays        = 45
	regEExtendedInvestigationDays = 90
	regENewAccountAgeDays        = 30

	regZAcknowledgmentDays = 30
	// Reg Z allows "2 billing cycles, max 90 days"; billing-cycle boundaries
	// are an external-system concern, so the fixed upper bound is used.
	regZResolutionDays = 90
)

// CalculateComplianceState derives the applicable regime and deadline set
// for a dispute. Pure and total: identical inputs always produce the same
// ordered list. A NonRegulated result carries no deadlines and is not an
// error; PayPal/Klarna flows follow network SLAs handled elsewhere.
func CalculateComplianceState(d *Dispute, accountAgeDays int) ComplianceState {
	funding := FundingUnknown
	if d.PaymentMethod.Card != nil {
		funding = d.PaymentMethod.Card.Funding
	}

	switch funding {
	case FundingDebit, FundingPrepaid:
		return regEState(d, accountAgeDays)
	case FundingCredit:
		return regZState(d)
	default:
		return ComplianceState{Regulation: RegulationNone}
	}
}

func regEState(d *Dispute, accountAgeDays int) ComplianceState {
	investigationDays := regEInvestigationDays
	// Any one extension condition triggers the 90-day window.
	if accountAgeDays < regENewAccountAgeDays || d.PointOfSale || d.ForeignTransaction {
		investigationDays = regEExtendedInvestigationDays
	}

	return ComplianceState{
		Regulation: RegulationE,
		Deadlines: []Deadline{
			{
				Label:       "ProvisionalCredit",
				DueBy:       d.Created + regEProvisionalCreditDays*secondsPerDay,
				Description: "Issue provisional credit to the cardholder (Reg E, 10 business-equivalent days)",
				Action:      ActionProvisionalCredit,
			},
			{
				Label:       "Investigation",
				DueBy:       d.Created + int64(investigationDays)*secondsPerDay,
				Description: "Complete the error investigation (Reg E)",
				Action:      ActionInvestigation,
			},
		},
	}
}

func regZState(d *Dispute) ComplianceState {
	return ComplianceState{
		Regulation: RegulationZ,
		Deadlines: []Deadline{
			{
				Label:       "Acknowledgment",
				DueBy:       d.Created + regZAcknowledgmentDays*secondsPerDay,
				Description: "Acknowledge the billing error in writing (Reg Z, 30 days)",
				Action:      ActionAcknowledgment,
			},
			{
				Label:       "Resolution",
				DueBy:       d.Created + regZResolutionDays*secondsPerDay,
				Description: "Resolve the billing error (Reg Z, two billing cycles capped at 90 days)",
				Action:      ActionResolution,
			},
		},
	}
}
