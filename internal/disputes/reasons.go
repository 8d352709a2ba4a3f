package disputes

// ReasonCodeInfo describes a network-native reason code and the canonical
// category it maps to.
type ReasonCodeInfo struct {
	Description string        `json:"description"`
	Category    DisputeReason `json:"category"`
}

// NetworkReasonCode is a reverse-lookup result: a network's code for a
// canonical category.
type NetworkReasonCode struct {
	Network     CardBrand `json:"network"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
}

// The four network tables are independent, hand-curated constants. Network
// rulebooks evolve independently and at different cadences; a change to one
// table must never risk corrupting another, so they are never merged into a
// unified schema. Codes are matched exactly as issued: "10.4" is not "104".

var visaReasonCodes = map[string]ReasonCodeInfo{
	"10.1":   {"EMV Liability Shift Counterfeit Fraud", ReasonFraudulent},
	"10.2":   {"EMV Liability Shift Non-Counterfeit Fraud", ReasonFraudulent},
	"10.3":   {"Other Fraud - Card-Present Environment", ReasonFraudulent},
	"10.4":   {"Other Fraud - Card-Absent Environment", ReasonFraudulent},
	"10.5":   {"Visa Fraud Monitoring Program", ReasonFraudulent},
	"11.1":   {"Card Recovery Bulletin", ReasonGeneral},
	"11.2":   {"Declined Authorization", ReasonGeneral},
	"11.3":   {"No Authorization", ReasonGeneral},
	"12.1":   {"Late Presentment", ReasonGeneral},
	"12.2":   {"Incorrect Transaction Code", ReasonGeneral},
	"12.3":   {"Incorrect Currency", ReasonGeneral},
	"12.4":   {"Incorrect Account Number", ReasonGeneral},
	"12.5":   {"Incorrect Amount", ReasonGeneral},
	"12.6.1": {"Duplicate Processing", ReasonDuplicate},
	"12.6.2": {"Paid by Other Means", ReasonDuplicate},
	"12.7":   {"Invalid Data", ReasonGeneral},
	"13.1":   {"Merchandise/Services Not Received", ReasonProductNotReceived},
	"13.2":   {"Cancelled Recurring Transaction", ReasonSubscriptionCanceled},
	"13.3":   {"Not as Described or Defective Merchandise/Services", ReasonProductUnacceptable},
	"13.4":   {"Counterfeit Merchandise", ReasonProductUnacceptable},
	"13.5":   {"Misrepresentation", ReasonProductUnacceptable},
	"13.6":   {"Credit Not Processed", ReasonCreditNotProcessed},
	"13.7":   {"Cancelled Merchandise/Services", ReasonCreditNotProcessed},
	"13.8":   {"Original Credit Transaction Not Accepted", ReasonGeneral},
	"13.9":   {"Non-Receipt of Cash or Load Transaction Value", ReasonProductNotReceived},
}

var mastercardReasonCodes = map[string]ReasonCodeInfo{
	"4807": {"Warning Bulletin File", ReasonGeneral},
	"4808": {"Authorization-Related Chargeback", ReasonGeneral},
	"4812": {"Account Number Not on File", ReasonGeneral},
	"4831": {"Transaction Amount Differs", ReasonGeneral},
	"4834": {"Point-of-Interaction Error / Duplicate Processing", ReasonDuplicate},
	"4837": {"No Cardholder Authorization", ReasonFraudulent},
	"4840": {"Fraudulent Processing of Transactions", ReasonFraudulent},
	"4841": {"Cancelled Recurring or Digital Goods Transaction", ReasonSubscriptionCanceled},
	"4842": {"Late Presentment", ReasonGeneral},
	"4846": {"Correct Transaction Currency Code Not Provided", ReasonGeneral},
	"4849": {"Questionable Merchant Activity", ReasonFraudulent},
	"4853": {"Cardholder Dispute - Defective/Not as Described", ReasonProductUnacceptable},
	"4855": {"Goods or Services Not Provided", ReasonProductNotReceived},
	"4859": {"Addendum, No-Show, or ATM Dispute", ReasonGeneral},
	"4860": {"Credit Not Processed", ReasonCreditNotProcessed},
	"4863": {"Cardholder Does Not Recognize - Potential Fraud", ReasonUnrecognized},
	"4870": {"Chip Liability Shift", ReasonFraudulent},
	"4871": {"Chip/PIN Liability Shift - Lost/Stolen/Never Received", ReasonFraudulent},
}

var amexReasonCodes = map[string]ReasonCodeInfo{
	"A01": {"Charge Amount Exceeds Authorization Amount", ReasonGeneral},
	"A02": {"No Valid Authorization", ReasonGeneral},
	"A08": {"Authorization Approval Expired", ReasonGeneral},
	"C02": {"Credit Not Processed", ReasonCreditNotProcessed},
	"C04": {"Goods/Services Returned or Refused", ReasonCreditNotProcessed},
	"C05": {"Goods/Services Cancelled", ReasonCreditNotProcessed},
	"C08": {"Goods/Services Not Received or Only Partially Received", ReasonProductNotReceived},
	"C14": {"Paid by Other Means", ReasonDuplicate},
	"C18": {"No Show or CARDeposit Cancelled", ReasonGeneral},
	"C28": {"Cancelled Recurring Billing", ReasonSubscriptionCanceled},
	"C31": {"Goods/Services Not as Described", ReasonProductUnacceptable},
	"C32": {"Goods/Services Damaged or Defective", ReasonProductUnacceptable},
	"F10": {"Missing Imprint", ReasonFraudulent},
	"F14": {"Missing Signature", ReasonFraudulent},
	"F24": {"No Cardmember Authorization", ReasonFraudulent},
	"F29": {"Card Not Present", ReasonFraudulent},
	"F30": {"EMV Counterfeit", ReasonFraudulent},
	"F31": {"EMV Lost/Stolen/Non-Received", ReasonFraudulent},
	"P08": {"Duplicate Charge", ReasonDuplicate},
	"R03": {"Insufficient Reply", ReasonGeneral},
	"R13": {"No Reply", ReasonGeneral},
	"M01": {"Chargeback Authorization", ReasonUnrecognized},
}

var discoverReasonCodes = map[string]ReasonCodeInfo{
	"UA01": {"Fraud - Card Present Transaction", ReasonFraudulent},
	"UA02": {"Fraud - Card Not Present Transaction", ReasonFraudulent},
	"UA05": {"Fraud - Chip Card Counterfeit Transaction", ReasonFraudulent},
	"UA06": {"Fraud - Chip and PIN Transaction", ReasonFraudulent},
	"AA":   {"Cardholder Does Not Recognize", ReasonUnrecognized},
	"AP":   {"Canceled Recurring Payment", ReasonSubscriptionCanceled},
	"AW":   {"Altered Amount", ReasonGeneral},
	"CD":   {"Credit/Debit Posted Incorrectly", ReasonGeneral},
	"DP":   {"Duplicate Processing", ReasonDuplicate},
	"IC":   {"Illegible Sales Data", ReasonGeneral},
	"NF":   {"Non-Receipt of Cash from ATM", ReasonProductNotReceived},
	"RG":   {"Non-Receipt of Goods, Services, or Cash", ReasonProductNotReceived},
	"RM":   {"Cardholder Disputes Quality of Goods or Services", ReasonProductUnacceptable},
	"RN2":  {"Credit Not Received", ReasonCreditNotProcessed},
}

// visaCE3ReasonCode is the single Visa code eligible for the Compelling
// Evidence 3.0 program.
const visaCE3ReasonCode = "10.4"

// LookupReasonCode resolves a network-native code against that network's
// table. A nil result is not an error: networks issue new codes faster than
// tables update, and callers fall back to the merchant-declared reason.
func LookupReasonCode(network CardBrand, code string) *ReasonCodeInfo {
	var table map[string]ReasonCodeInfo
	switch network {
	case BrandVisa:
		table = visaReasonCodes
	case BrandMastercard:
		table = mastercardReasonCodes
	case BrandAmex:
		table = amexReasonCodes
	case BrandDiscover:
		table = discoverReasonCodes
	default:
		return nil
	}

	info, ok := table[code]
	if !ok {
		return nil
	}
	return &info
}

// ReasonCodesByCategory scans all four tables and returns every network code
// mapping to the given canonical category. Used to explain to a merchant
// which network codes correspond to their internal classification.
func ReasonCodesByCategory(category DisputeReason) []NetworkReasonCode {
	var out []NetworkReasonCode
	scan := func(network CardBrand, table map[string]ReasonCodeInfo) {
		for code, info := range table {
			if info.Category == category {
				out = append(out, NetworkReasonCode{Network: network, Code: code, Description: info.Description})
			}
		}
	}
	scan(BrandVisa, visaReasonCodes)
	scan(BrandMastercard, mastercardReasonCodes)
	scan(BrandAmex, amexReasonCodes)
	scan(BrandDiscover, discoverReasonCodes)
	return out
}

// recommendedEvidence maps each canonical category to the evidence fields a
// submission UI should request, strongest first.
var recommendedEvidence = map[DisputeReason][]string{
	ReasonFraudulent: {
		"customer_email_address", "customer_purchase_ip", "customer_signature",
		"receipt", "shipping_documentation", "product_description",
	},
	ReasonProductNotReceived: {
		"shipping_documentation", "shipping_carrier", "shipping_tracking_number",
		"shipping_date", "customer_communication",
	},
	ReasonProductUnacceptable: {
		"product_description", "customer_communication", "refund_policy_disclosure",
		"service_documentation",
	},
	ReasonDuplicate: {
		"duplicate_charge_id", "duplicate_charge_explanation",
		"duplicate_charge_documentation", "receipt",
	},
	ReasonSubscriptionCanceled: {
		"cancellation_policy", "cancellation_policy_disclosure",
		"cancellation_rebuttal", "customer_communication",
	},
	ReasonCreditNotProcessed: {
		"refund_policy", "refund_policy_disclosure", "refund_refusal_explanation",
		"customer_communication",
	},
	ReasonUnrecognized: {
		"receipt", "product_description", "customer_email_address",
		"customer_communication",
	},
	ReasonGeneral: {
		"receipt", "customer_communication", "product_description",
		"uncategorized_text",
	},
}

// RecommendedEvidence returns the ordered evidence-field names for a
// category. Unknown categories fall back to the general list.
func RecommendedEvidence(category DisputeReason) []string {
	fields, ok := recommendedEvidence[category]
	if !ok {
		fields = recommendedEvidence[ReasonGeneral]
	}
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

// IsVisaCE3ReasonCode reports whether a network code gates into the Visa
// Compelling Evidence 3.0 program. True only for "10.4".
func IsVisaCE3ReasonCode(code string) bool {
	return code == visaCE3ReasonCode
}
