package disputes

import "testing"

func TestLookupReasonCode(t *testing.T) {
	cases := []struct {
		network CardBrand
		code    string
		want    DisputeReason
	}{
		{BrandVisa, "10.4", ReasonFraudulent},
		{BrandVisa, "13.1", ReasonProductNotReceived},
		{BrandMastercard, "4837", ReasonFraudulent},
		{BrandAmex, "F29", ReasonFraudulent},
		{BrandDiscover, "UA02", ReasonFraudulent},
	}

	for _, tc := range cases {
		info := LookupReasonCode(tc.network, tc.code)
		if info == nil {
			t.Errorf("%s/%s: expected a mapping, got nil", tc.network, tc.code)
			continue
		}
		if info.Category != tc.want {
			t.Errorf("%s/%s: category %s, want %s", tc.network, tc.code, info.Category, tc.want)
		}
		if info.Description == "" {
			t.Errorf("%s/%s: empty description", tc.network, tc.code)
		}
	}
}

func TestLookupReasonCodeUnknown(t *testing.T) {
	// Codes never cross networks and matching is exact.
	cases := []struct {
		network CardBrand
		code    string
	}{
		{BrandVisa, "4837"},       // mastercard code on visa
		{BrandMastercard, "10.4"}, // visa code on mastercard
		{BrandVisa, "10.04"},      // near miss
		{BrandVisa, " 10.4"},      // whitespace
		{BrandVisa, "99.9"},       // nonexistent
		{BrandJCB, "10.4"},        // network without a table
		{"", "10.4"},
	}

	for _, tc := range cases {
		if info := LookupReasonCode(tc.network, tc.code); info != nil {
			t.Errorf("%q/%q: expected nil, got %+v", tc.network, tc.code, info)
		}
	}
}

func TestReasonCodesByCategory(t *testing.T) {
	codes := ReasonCodesByCategory(ReasonFraudulent)
	if len(codes) == 0 {
		t.Fatal("no fraud codes found")
	}

	networks := map[CardBrand]bool{}
	for _, c := range codes {
		networks[c.Network] = true
		// Every returned code must round-trip through the lookup.
		info := LookupReasonCode(c.Network, c.Code)
		if info == nil || info.Category != ReasonFraudulent {
			t.Errorf("%s/%s does not round-trip", c.Network, c.Code)
		}
	}
	for _, n := range []CardBrand{BrandVisa, BrandMastercard, BrandAmex, BrandDiscover} {
		if !networks[n] {
			t.Errorf("no fraud code from %s", n)
		}
	}
}

func TestRecommendedEvidence(t *testing.T) {
	fraud := RecommendedEvidence(ReasonFraudulent)
	if len(fraud) == 0 {
		t.Fatal("no recommendations for fraud")
	}

	// Unknown categories fall back to the general list.
	fallback := RecommendedEvidence(DisputeReason("something_else"))
	general := RecommendedEvidence(ReasonGeneral)
	if len(fallback) != len(general) {
		t.Errorf("fallback differs from general: %v vs %v", fallback, general)
	}

	// Returned slices are copies; mutating one must not leak.
	fraud[0] = "tampered"
	if RecommendedEvidence(ReasonFraudulent)[0] == "tampered" {
		t.Error("RecommendedEvidence returns shared backing array")
	}
}

func TestIsVisaCE3ReasonCode(t *testing.T) {
	if !IsVisaCE3ReasonCode("10.4") {
		t.Error("10.4 must gate into CE 3.0")
	}
	for _, code := range []string{"10.1", "13.1", "4837", "", "10.40"} {
		if IsVisaCE3ReasonCode(code) {
			t.Errorf("%q must not gate into CE 3.0", code)
		}
	}
}
