package disputes

// Evidence is the merchant's dispute response: 18 text fields and 9 file
// references, all optional. File fields hold opaque upload handles, never
// raw bytes; their size budget (4,500,000 bytes total) is enforced by the
// upload subsystem at upload time.
type Evidence struct {
	// Text fields.
	AccessActivityLog            string `json:"access_activity_log,omitempty"`
	BillingAddress               string `json:"billing_address,omitempty"`
	CancellationPolicyDisclosure string `json:"cancellation_policy_disclosure,omitempty"`
	CancellationRebuttal         string `json:"cancellation_rebuttal,omitempty"`
	CustomerEmailAddress         string `json:"customer_email_address,omitempty"`
	CustomerName                 string `json:"customer_name,omitempty"`
	CustomerPurchaseIP           string `json:"customer_purchase_ip,omitempty"`
	DuplicateChargeExplanation   string `json:"duplicate_charge_explanation,omitempty"`
	DuplicateChargeID            string `json:"duplicate_charge_id,omitempty"`
	ProductDescription           string `json:"product_description,omitempty"`
	RefundPolicyDisclosure       string `json:"refund_policy_disclosure,omitempty"`
	RefundRefusalExplanation     string `json:"refund_refusal_explanation,omitempty"`
	ServiceDate                  string `json:"service_date,omitempty"`
	ShippingAddress              string `json:"shipping_address,omitempty"`
	ShippingCarrier              string `json:"shipping_carrier,omitempty"`
	ShippingDate                 string `json:"shipping_date,omitempty"`
	ShippingTrackingNumber       string `json:"shipping_tracking_number,omitempty"`
	UncategorizedText            string `json:"uncategorized_text,omitempty"`

	// File reference fields (opaque upload handles).
	CancellationPolicy           string `json:"cancellation_policy,omitempty"`
	CustomerCommunication        string `json:"customer_communication,omitempty"`
	CustomerSignature            string `json:"customer_signature,omitempty"`
	DuplicateChargeDocumentation string `json:"duplicate_charge_documentation,omitempty"`
	Receipt                      string `json:"receipt,omitempty"`
	RefundPolicy                 string `json:"refund_policy,omitempty"`
	ServiceDocumentation         string `json:"service_documentation,omitempty"`
	ShippingDocumentation        string `json:"shipping_documentation,omitempty"`
	UncategorizedFile            string `json:"uncategorized_file,omitempty"`
}

// TotalTextBudget is the aggregate character limit across all populated text
// fields of a single evidence record.
const TotalTextBudget = 150000

// TotalFileBudget is the aggregate byte limit across referenced files,
// enforced externally at upload time.
const TotalFileBudget = 4500000

// evidenceField pairs a wire name with an accessor so aggregate checks can
// iterate a compile-time-known field list instead of reflecting.
type evidenceField struct {
	name string
	get  func(*Evidence) string
}

var textFields = []evidenceField{
	{"access_activity_log", func(e *Evidence) string { return e.AccessActivityLog }},
	{"billing_address", func(e *Evidence) string { return e.BillingAddress }},
	{"cancellation_policy_disclosure", func(e *Evidence) string { return e.CancellationPolicyDisclosure }},
	{"cancellation_rebuttal", func(e *Evidence) string { return e.CancellationRebuttal }},
	{"customer_email_address", func(e *Evidence) string { return e.CustomerEmailAddress }},
	{"customer_name", func(e *Evidence) string { return e.CustomerName }},
	{"customer_purchase_ip", func(e *Evidence) string { return e.CustomerPurchaseIP }},
	{"duplicate_charge_explanation", func(e *Evidence) string { return e.DuplicateChargeExplanation }},
	{"duplicate_charge_id", func(e *Evidence) string { return e.DuplicateChargeID }},
	{"product_description", func(e *Evidence) string { return e.ProductDescription }},
	{"refund_policy_disclosure", func(e *Evidence) string { return e.RefundPolicyDisclosure }},
	{"refund_refusal_explanation", func(e *Evidence) string { return e.RefundRefusalExplanation }},
	{"service_date", func(e *Evidence) string { return e.ServiceDate }},
	{"shipping_address", func(e *Evidence) string { return e.ShippingAddress }},
	{"shipping_carrier", func(e *Evidence) string { return e.ShippingCarrier }},
	{"shipping_date", func(e *Evidence) string { return e.ShippingDate }},
	{"shipping_tracking_number", func(e *Evidence) string { return e.ShippingTrackingNumber }},
	{"uncategorized_text", func(e *Evidence) string { return e.UncategorizedText }},
}

var fileFields = []evidenceField{
	{"cancellation_policy", func(e *Evidence) string { return e.CancellationPolicy }},
	{"customer_communication", func(e *Evidence) string { return e.CustomerCommunication }},
	{"customer_signature", func(e *Evidence) string { return e.CustomerSignature }},
	{"duplicate_charge_documentation", func(e *Evidence) string { return e.DuplicateChargeDocumentation }},
	{"receipt", func(e *Evidence) string { return e.Receipt }},
	{"refund_policy", func(e *Evidence) string { return e.RefundPolicy }},
	{"service_documentation", func(e *Evidence) string { return e.ServiceDocumentation }},
	{"shipping_documentation", func(e *Evidence) string { return e.ShippingDocumentation }},
	{"uncategorized_file", func(e *Evidence) string { return e.UncategorizedFile }},
}

// fieldLimits are per-field character maximums for populated text fields.
// Short identifier fields cap at 254, addresses at 1500, narrative fields
// at 20000.
var fieldLimits = map[string]int{
	"access_activity_log":            20000,
	"billing_address":                1500,
	"cancellation_policy_disclosure": 20000,
	"cancellation_rebuttal":          20000,
	"customer_email_address":         254,
	"customer_name":                  254,
	"customer_purchase_ip":           254,
	"duplicate_charge_explanation":   20000,
	"duplicate_charge_id":            254,
	"product_description":            20000,
	"refund_policy_disclosure":       20000,
	"refund_refusal_explanation":     20000,
	"service_date":                   254,
	"shipping_address":               1500,
	"shipping_carrier":               254,
	"shipping_date":                  254,
	"shipping_tracking_number":       254,
	"uncategorized_text":             20000,
}

// TotalTextLength sums the character counts of all populated text fields.
func (e *Evidence) TotalTextLength() int {
	total := 0
	for _, f := range textFields {
		total += len([]rune(f.get(e)))
	}
	return total
}

// HasAnyField reports whether any of the 27 evidence fields is populated.
func (e *Evidence) HasAnyField() bool {
	for _, f := range textFields {
		if f.get(e) != "" {
			return true
		}
	}
	for _, f := range fileFields {
		if f.get(e) != "" {
			return true
		}
	}
	return false
}
