package vault

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// TokenStatus is the lifecycle state of a card token.
type TokenStatus string

const (
	TokenStatusActive    TokenStatus = "active"
	TokenStatusSuspended TokenStatus = "suspended"
	TokenStatusRevoked   TokenStatus = "revoked"
)

// TokenizedCardData is the only card representation this system accepts.
// Full PAN, CVV and PIN never appear in any persisted structure; upstream
// tokenization replaces them before a dispute reaches the engine.
type TokenizedCardData struct {
	Token       string      `json:"token"`
	Last4       string      `json:"last4"`
	Fingerprint string      `json:"fingerprint"`
	Provider    string      `json:"provider,omitempty"`
	Format      string      `json:"format,omitempty"`
	Status      TokenStatus `json:"status"`
	Expiry      int64       `json:"expiry,omitempty"` // Unix epoch seconds, zero when unset
}

var (
	tokenPattern       = regexp.MustCompile(`^tok_[A-Za-z0-9]{24}$`)
	fingerprintPattern = regexp.MustCompile(`^[A-Za-z0-9]{32}$`)
	last4Pattern       = regexp.MustCompile(`^[0-9]{4}$`)
)

// Sentinel errors for the guard's taxonomy. SensitiveDataDetected blocks all
// downstream processing; the other two are fatal only for new submissions.
var (
	ErrSensitiveDataDetected  = errors.New("sensitive card data detected")
	ErrInvalidTokenFormat     = errors.New("invalid token format")
	ErrTokenExpiredOrInactive = errors.New("token expired or inactive")
)

// forbiddenFields are payload keys that indicate raw cardholder data.
// Matching is case-insensitive.
var forbiddenFields = map[string]struct{}{
	"pan":                    {},
	"cvv":                    {},
	"cvc":                    {},
	"cvv2":                   {},
	"pin":                    {},
	"card_number":            {},
	"cardnumber":             {},
	"primary_account_number": {},
	"track1":                 {},
	"track2":                 {},
	"track_data":             {},
	"magnetic_stripe":        {},
}

// SensitiveDataError reports which forbidden keys a payload carried.
type SensitiveDataError struct {
	Fields []string
}

func (e *SensitiveDataError) Error() string {
	return fmt.Sprintf("sensitive card data detected in fields: %s", strings.Join(e.Fields, ", "))
}

func (e *SensitiveDataError) Unwrap() error { return ErrSensitiveDataDetected }

// ContainsSensitiveCardData reports whether a decoded payload carries any
// forbidden raw-card field, descending into nested objects and arrays.
func ContainsSensitiveCardData(payload map[string]any) []string {
	var found []string
	scanForSensitiveKeys(payload, &found)
	return found
}

func scanForSensitiveKeys(v any, found *[]string) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if _, bad := forbiddenFields[strings.ToLower(k)]; bad {
				*found = append(*found, k)
			}
			scanForSensitiveKeys(child, found)
		}
	case []any:
		for _, child := range t {
			scanForSensitiveKeys(child, found)
		}
	}
}

// GuardPayload rejects a decoded payload that carries raw cardholder data.
// A non-nil error here is a PCI violation risk and must never be stripped
// silently.
func GuardPayload(payload map[string]any) error {
	if fields := ContainsSensitiveCardData(payload); len(fields) > 0 {
		return &SensitiveDataError{Fields: fields}
	}
	return nil
}

// ValidateCardIdentifier checks that a card reference is properly tokenized:
// token, fingerprint and last4 must all match their exact formats.
func ValidateCardIdentifier(card TokenizedCardData) error {
	if !tokenPattern.MatchString(card.Token) {
		return fmt.Errorf("%w: token must match %s", ErrInvalidTokenFormat, tokenPattern.String())
	}
	if !fingerprintPattern.MatchString(card.Fingerprint) {
		return fmt.Errorf("%w: fingerprint must be 32 alphanumeric characters", ErrInvalidTokenFormat)
	}
	if !last4Pattern.MatchString(card.Last4) {
		return fmt.Errorf("%w: last4 must be exactly 4 digits", ErrInvalidTokenFormat)
	}
	return nil
}

// IsTokenValid reports whether a token may back a new evidence submission:
// format-valid, status active, and not past its expiry. Expired or suspended
// tokens still permit read-only display of the dispute.
func IsTokenValid(card TokenizedCardData, now int64) error {
	if err := ValidateCardIdentifier(card); err != nil {
		return err
	}
	if card.Status != TokenStatusActive {
		return fmt.Errorf("%w: status is %q", ErrTokenExpiredOrInactive, card.Status)
	}
	if card.Expiry != 0 && card.Expiry <= now {
		return fmt.Errorf("%w: token expired", ErrTokenExpiredOrInactive)
	}
	return nil
}

const maskRune = '*'

// MaskToken renders a token safe for logs: first 4 and last 4 characters are
// kept, the middle is replaced with a fixed-width mask. The result never
// equals the input.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat(string(maskRune), 8)
	}
	return token[:4] + strings.Repeat(string(maskRune), 4) + token[len(token)-4:]
}
