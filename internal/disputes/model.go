package disputes

import (
	"crypto/rand"
	"fmt"
	"regexp"

	"github.com/example/dispute-engine/internal/vault"
)

// DisputeStatus is the dispute lifecycle state.
type DisputeStatus string

const (
	StatusWarningNeedsResponse DisputeStatus = "warning_needs_response"
	StatusWarningUnderReview   DisputeStatus = "warning_under_review"
	StatusWarningClosed        DisputeStatus = "warning_closed"
	StatusNeedsResponse        DisputeStatus = "needs_response"
	StatusUnderReview          DisputeStatus = "under_review"
	StatusChargeRefunded       DisputeStatus = "charge_refunded"
	StatusWon                  DisputeStatus = "won"
	StatusLost                 DisputeStatus = "lost"
)

// DisputeReason is the canonical classification the four network code tables
// map into.
type DisputeReason string

const (
	ReasonCreditNotProcessed   DisputeReason = "credit_not_processed"
	ReasonDuplicate            DisputeReason = "duplicate"
	ReasonFraudulent           DisputeReason = "fraudulent"
	ReasonGeneral              DisputeReason = "general"
	ReasonProductNotReceived   DisputeReason = "product_not_received"
	ReasonProductUnacceptable  DisputeReason = "product_unacceptable"
	ReasonSubscriptionCanceled DisputeReason = "subscription_canceled"
	ReasonUnrecognized         DisputeReason = "unrecognized"
)

// CardBrand is a card network.
type CardBrand string

const (
	BrandVisa       CardBrand = "visa"
	BrandMastercard CardBrand = "mastercard"
	BrandAmex       CardBrand = "amex"
	BrandDiscover   CardBrand = "discover"
	BrandJCB        CardBrand = "jcb"
	BrandDiners     CardBrand = "diners"
	BrandUnionPay   CardBrand = "unionpay"
)

// CardFunding selects the regulatory regime for deadline computation.
type CardFunding string

const (
	FundingCredit  CardFunding = "credit"
	FundingDebit   CardFunding = "debit"
	FundingPrepaid CardFunding = "prepaid"
	FundingUnknown CardFunding = "unknown"
)

// BalanceTransactionType is the ledger entry classification.
type BalanceTransactionType string

const (
	TxnDispute          BalanceTransactionType = "dispute"
	TxnDisputeReversal  BalanceTransactionType = "dispute_reversal"
	TxnDisputeFee       BalanceTransactionType = "dispute_fee"
	TxnDisputeFeeRefund BalanceTransactionType = "dispute_fee_refund"
)

// Identifier patterns. These must validate exactly; callers integrate with
// external systems that reject anything else.
var (
	DisputeIDPattern            = regexp.MustCompile(`^dp_[A-Za-z0-9]{24}$`)
	ChargeIDPattern             = regexp.MustCompile(`^ch_[A-Za-z0-9]{24}$`)
	BalanceTransactionIDPattern = regexp.MustCompile(`^txn_[A-Za-z0-9]{24}$`)
	currencyPattern             = regexp.MustCompile(`^[a-z]{3}$`)
)

// Dispute is the canonical in-memory representation of a chargeback.
// Amounts are integers in the currency's minor unit; timestamps are Unix
// epoch seconds.
type Dispute struct {
	ID                 string                `json:"id"`
	Amount             int64                 `json:"amount"`
	Currency           string                `json:"currency"`
	Status             DisputeStatus         `json:"status"`
	Reason             DisputeReason         `json:"reason"`
	Created            int64                 `json:"created"`
	Charge             string                `json:"charge,omitempty"`
	PaymentIntent      string                `json:"payment_intent,omitempty"`
	EvidenceDetails    EvidenceDetails       `json:"evidence_details"`
	Evidence           Evidence              `json:"evidence"`
	EnhancedEvidence   *EnhancedEvidence     `json:"enhanced_evidence,omitempty"`
	PaymentMethod      PaymentMethodDetails  `json:"payment_method_details"`
	BalanceTxns        []BalanceTransaction  `json:"balance_transactions"`
	PointOfSale        bool                  `json:"point_of_sale"`
	ForeignTransaction bool                  `json:"foreign_transaction"`
}

// PaymentMethodDetails carries exactly one active variant, selected by Type.
type PaymentMethodDetails struct {
	Type   string         `json:"type"`
	Card   *CardDetails   `json:"card,omitempty"`
	PayPal *PayPalDetails `json:"paypal,omitempty"`
	Klarna *KlarnaDetails `json:"klarna,omitempty"`
}

// CardDetails describes the disputed card payment. The card itself is only
// ever a tokenized reference.
type CardDetails struct {
	vault.TokenizedCardData
	Brand             CardBrand   `json:"brand"`
	Funding           CardFunding `json:"funding"`
	NetworkReasonCode string      `json:"network_reason_code,omitempty"`
}

// PayPalDetails describes a PayPal-funded dispute. PayPal disputes follow
// network-specific SLAs, not Reg E/Z.
type PayPalDetails struct {
	PayerEmail    string `json:"payer_email,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// KlarnaDetails describes a Klarna-funded dispute.
type KlarnaDetails struct {
	ReasonCode string `json:"reason_code,omitempty"`
}

// EvidenceDetails tracks submission state for a dispute's evidence.
type EvidenceDetails struct {
	DueBy               int64                `json:"due_by,omitempty"` // zero when no deadline has been set
	HasEvidence         bool                 `json:"has_evidence"`
	PastDue             bool                 `json:"past_due"`
	SubmissionCount     int                  `json:"submission_count"`
	EnhancedEligibility *EnhancedEligibility `json:"enhanced_eligibility,omitempty"`
}

// RecomputePastDue derives past_due from the deadline; it is never stored
// authoritatively.
func (ed *EvidenceDetails) RecomputePastDue(now int64) {
	ed.PastDue = ed.DueBy != 0 && ed.DueBy < now
}

// BalanceTransaction is an immutable ledger entry attached to a dispute.
type BalanceTransaction struct {
	ID       string                 `json:"id"`
	Amount   int64                  `json:"amount"`
	Currency string                 `json:"currency"`
	Type     BalanceTransactionType `json:"type"`
	Created  int64                  `json:"created"`
	Fee      int64                  `json:"fee"`
	Net      int64                  `json:"net"`
}

// PriorTransaction is a read-only projection of a previously completed,
// undisputed charge, supplied by the external transaction store.
type PriorTransaction struct {
	Charge                    string `json:"charge"`
	ChargeDate                int64  `json:"charge_date,omitempty"` // zero when unknown
	CustomerEmailAddress      string `json:"customer_email_address,omitempty"`
	CustomerPurchaseIP        string `json:"customer_purchase_ip,omitempty"`
	CustomerDeviceFingerprint string `json:"customer_device_fingerprint,omitempty"`
	CustomerDeviceID          string `json:"customer_device_id,omitempty"`
	ShippingAddress           string `json:"shipping_address,omitempty"`
}

// EnhancedEvidence holds the Visa Compelling Evidence 3.0 submission data.
type EnhancedEvidence struct {
	VisaCompellingEvidence3 *VisaCE3Evidence `json:"visa_compelling_evidence_3,omitempty"`
}

// VisaCE3Evidence is the CE 3.0 payload: the disputed transaction's customer
// identifiers plus prior undisputed transactions sharing them.
type VisaCE3Evidence struct {
	DisputedTransaction         *CE3DisputedTransaction `json:"disputed_transaction,omitempty"`
	PriorUndisputedTransactions []PriorTransaction      `json:"prior_undisputed_transactions,omitempty"`
}

// CE3DisputedTransaction describes the transaction under dispute for the
// CE 3.0 program.
type CE3DisputedTransaction struct {
	CustomerEmailAddress      string `json:"customer_email_address,omitempty"`
	CustomerPurchaseIP        string `json:"customer_purchase_ip,omitempty"`
	CustomerDeviceFingerprint string `json:"customer_device_fingerprint,omitempty"`
	CustomerDeviceID          string `json:"customer_device_id,omitempty"`
	MerchandiseOrServices     string `json:"merchandise_or_services,omitempty"` // "merchandise" or "services"
	ProductDescription        string `json:"product_description,omitempty"`
	ShippingAddress           string `json:"shipping_address,omitempty"`
}

var validStatuses = map[DisputeStatus]struct{}{
	StatusWarningNeedsResponse: {}, StatusWarningUnderReview: {}, StatusWarningClosed: {},
	StatusNeedsResponse: {}, StatusUnderReview: {}, StatusChargeRefunded: {},
	StatusWon: {}, StatusLost: {},
}

var validReasons = map[DisputeReason]struct{}{
	ReasonCreditNotProcessed: {}, ReasonDuplicate: {}, ReasonFraudulent: {},
	ReasonGeneral: {}, ReasonProductNotReceived: {}, ReasonProductUnacceptable: {},
	ReasonSubscriptionCanceled: {}, ReasonUnrecognized: {},
}

// IsTerminal reports whether the dispute has reached a final outcome.
// EvidenceDetails becomes immutable once terminal.
func (d *Dispute) IsTerminal() bool {
	return d.Status == StatusWon || d.Status == StatusLost
}

// CardBrand returns the card brand, or empty when the payment method is not
// a card.
func (d *Dispute) CardBrand() CardBrand {
	if d.PaymentMethod.Card == nil {
		return ""
	}
	return d.PaymentMethod.Card.Brand
}

// NetworkReasonCode returns the network-native reason code for card
// disputes, or empty otherwise.
func (d *Dispute) NetworkReasonCode() string {
	if d.PaymentMethod.Card == nil {
		return ""
	}
	return d.PaymentMethod.Card.NetworkReasonCode
}

// Validate enforces the structural invariants of the data model. Components
// downstream of the validator assume these hold and carry no defensive
// branching of their own.
func (d *Dispute) Validate() error {
	if !DisputeIDPattern.MatchString(d.ID) {
		return fmt.Errorf("dispute id %q must match %s", d.ID, DisputeIDPattern.String())
	}
	if d.Amount <= 0 {
		return fmt.Errorf("dispute amount must be positive, got %d", d.Amount)
	}
	if !currencyPattern.MatchString(d.Currency) {
		return fmt.Errorf("currency %q must be a lowercase ISO 4217 code", d.Currency)
	}
	if _, ok := validStatuses[d.Status]; !ok {
		return fmt.Errorf("unknown dispute status %q", d.Status)
	}
	if _, ok := validReasons[d.Reason]; !ok {
		return fmt.Errorf("unknown dispute reason %q", d.Reason)
	}
	if d.Created <= 0 {
		return fmt.Errorf("dispute created timestamp is required")
	}
	if d.Charge != "" && !ChargeIDPattern.MatchString(d.Charge) {
		return fmt.Errorf("charge id %q must match %s", d.Charge, ChargeIDPattern.String())
	}
	if err := d.PaymentMethod.validate(); err != nil {
		return err
	}
	for _, txn := range d.BalanceTxns {
		if !BalanceTransactionIDPattern.MatchString(txn.ID) {
			return fmt.Errorf("balance transaction id %q must match %s", txn.ID, BalanceTransactionIDPattern.String())
		}
	}
	return nil
}

func (pm *PaymentMethodDetails) validate() error {
	active := 0
	if pm.Card != nil {
		active++
	}
	if pm.PayPal != nil {
		active++
	}
	if pm.Klarna != nil {
		active++
	}
	if active != 1 {
		return fmt.Errorf("exactly one payment method variant must be set, got %d", active)
	}

	switch pm.Type {
	case "card":
		if pm.Card == nil {
			return fmt.Errorf("payment method type is card but card details are missing")
		}
	case "paypal":
		if pm.PayPal == nil {
			return fmt.Errorf("payment method type is paypal but paypal details are missing")
		}
	case "klarna":
		if pm.Klarna == nil {
			return fmt.Errorf("payment method type is klarna but klarna details are missing")
		}
	default:
		return fmt.Errorf("unknown payment method type %q", pm.Type)
	}
	return nil
}

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewID generates an identifier of the external form prefix_ plus 24
// alphanumeric characters, e.g. NewID("dp") -> "dp_...".
func NewID(prefix string) string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("id generation: %v", err))
	}
	for i := range b {
		b[i] = idAlphabet[int(b[i])%len(idAlphabet)]
	}
	return prefix + "_" + string(b)
}
