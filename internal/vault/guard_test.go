package vault

import (
	"errors"
	"strings"
	"testing"
)

func validCard() TokenizedCardData {
	return TokenizedCardData{
		Token:       "tok_4kGxQ2nXbT8sWvCpLrYdM3Ez",
		Last4:       "4242",
		Fingerprint: "Fp4kGxQ2nXbT8sWvCpLrYdM3EzAb12Cd",
		Status:      TokenStatusActive,
	}
}

func TestGuardPayloadClean(t *testing.T) {
	payload := map[string]any{
		"amount":   12500,
		"currency": "usd",
		"payment_method_details": map[string]any{
			"type": "card",
			"card": map[string]any{"token": "tok_4kGxQ2nXbT8sWvCpLrYdM3Ez", "brand": "visa"},
		},
	}
	if err := GuardPayload(payload); err != nil {
		t.Fatalf("clean payload rejected: %v", err)
	}
}

func TestGuardPayloadForbiddenKeys(t *testing.T) {
	cases := []map[string]any{
		{"pan": "4111111111111111"},
		{"CVV": "123"}, // case-insensitive
		{"card_number": "x"},
		{"track2": "x"},
		{"nested": map[string]any{"deeper": map[string]any{"pin": "0000"}}},
		{"items": []any{map[string]any{"cvc": "999"}}},
	}

	for i, payload := range cases {
		err := GuardPayload(payload)
		if err == nil {
			t.Errorf("case %d: forbidden payload accepted", i)
			continue
		}
		if !errors.Is(err, ErrSensitiveDataDetected) {
			t.Errorf("case %d: error does not unwrap to the sentinel: %v", i, err)
		}
		var sde *SensitiveDataError
		if !errors.As(err, &sde) || len(sde.Fields) == 0 {
			t.Errorf("case %d: error does not report fields", i)
		}
	}
}

func TestGuardPayloadReportsAllFields(t *testing.T) {
	payload := map[string]any{
		"pan": "x",
		"nested": map[string]any{
			"cvv": "y",
		},
	}
	found := ContainsSensitiveCardData(payload)
	if len(found) != 2 {
		t.Errorf("expected both forbidden fields reported, got %v", found)
	}
}

func TestValidateCardIdentifier(t *testing.T) {
	if err := ValidateCardIdentifier(validCard()); err != nil {
		t.Fatalf("valid card rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*TokenizedCardData)
	}{
		{"empty token", func(c *TokenizedCardData) { c.Token = "" }},
		{"wrong prefix", func(c *TokenizedCardData) { c.Token = "tk_4kGxQ2nXbT8sWvCpLrYdM3Ez" }},
		{"short token", func(c *TokenizedCardData) { c.Token = "tok_short" }},
		{"long token", func(c *TokenizedCardData) { c.Token = "tok_" + strings.Repeat("a", 25) }},
		{"token with symbol", func(c *TokenizedCardData) { c.Token = "tok_4kGxQ2nXbT8sWvCpLrYdM3E!" }},
		{"short fingerprint", func(c *TokenizedCardData) { c.Fingerprint = "abc" }},
		{"raw-looking last4", func(c *TokenizedCardData) { c.Last4 = "411111" }},
		{"alpha last4", func(c *TokenizedCardData) { c.Last4 = "42ab" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validCard()
			tc.mutate(&c)
			err := ValidateCardIdentifier(c)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidTokenFormat) {
				t.Errorf("expected format sentinel, got %v", err)
			}
		})
	}
}

func TestIsTokenValid(t *testing.T) {
	now := int64(1700000000)

	if err := IsTokenValid(validCard(), now); err != nil {
		t.Fatalf("active unexpired token rejected: %v", err)
	}

	c := validCard()
	c.Expiry = now + 1
	if err := IsTokenValid(c, now); err != nil {
		t.Errorf("token expiring after now rejected: %v", err)
	}

	c.Expiry = now
	if err := IsTokenValid(c, now); !errors.Is(err, ErrTokenExpiredOrInactive) {
		t.Errorf("token expiring exactly now must be rejected, got %v", err)
	}

	for _, status := range []TokenStatus{TokenStatusSuspended, TokenStatusRevoked} {
		c := validCard()
		c.Status = status
		if err := IsTokenValid(c, now); !errors.Is(err, ErrTokenExpiredOrInactive) {
			t.Errorf("status %s must be rejected, got %v", status, err)
		}
	}
}

func TestMaskToken(t *testing.T) {
	tok := "tok_4kGxQ2nXbT8sWvCpLrYdM3Ez"
	masked := MaskToken(tok)

	if masked == tok {
		t.Fatal("mask returned the input unchanged")
	}
	if !strings.HasPrefix(masked, "tok_") || !strings.HasSuffix(masked, "M3Ez") {
		t.Errorf("mask should keep first and last four characters: %s", masked)
	}
	if !strings.Contains(masked, "****") {
		t.Errorf("mask should hide the middle: %s", masked)
	}

	// Short inputs are fully masked, never echoed.
	for _, short := range []string{"", "a", "12345678"} {
		if got := MaskToken(short); got != "********" {
			t.Errorf("MaskToken(%q) = %q", short, got)
		}
	}
}
