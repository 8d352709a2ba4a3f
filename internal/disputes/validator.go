package disputes

import (
	"fmt"
	"regexp"
)

// EvidenceErrorCode classifies evidence validation failures.
type EvidenceErrorCode string

const (
	ErrCodeTextLimitExceeded EvidenceErrorCode = "text_limit_exceeded"
	ErrCodeFieldTooLong      EvidenceErrorCode = "field_too_long"
	ErrCodeInvalidFormat     EvidenceErrorCode = "invalid_format"
)

// EvidenceError is a single validation failure. Failures are collected, not
// short-circuited, so a merchant sees every problem in one pass and can fix
// them all in a single resubmission.
type EvidenceError struct {
	Code   EvidenceErrorCode `json:"code"`
	Field  string            `json:"field,omitempty"`
	Actual int               `json:"actual,omitempty"`
	Limit  int               `json:"limit,omitempty"`
}

func (e EvidenceError) Error() string {
	switch e.Code {
	case ErrCodeTextLimitExceeded:
		return fmt.Sprintf("combined evidence text is %d characters, limit is %d", e.Actual, e.Limit)
	case ErrCodeFieldTooLong:
		return fmt.Sprintf("field %s is %d characters, limit is %d", e.Field, e.Actual, e.Limit)
	case ErrCodeInvalidFormat:
		return fmt.Sprintf("field %s has an invalid format", e.Field)
	default:
		return fmt.Sprintf("evidence error %s on field %s", e.Code, e.Field)
	}
}

var (
	emailPattern      = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	datePrefixPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
)

// dateFields must begin with YYYY-MM-DD when populated.
var dateFields = map[string]struct{}{
	"service_date":  {},
	"shipping_date": {},
}

// ValidateEvidence checks every populated field against its individual limit
// and format, plus the aggregate text budget. The returned slice is empty
// when the evidence is valid. File reference fields are checked only for
// handle presence; size enforcement belongs to the upload subsystem.
func ValidateEvidence(e *Evidence) []EvidenceError {
	var errs []EvidenceError

	if total := e.TotalTextLength(); total > TotalTextBudget {
		errs = append(errs, EvidenceError{
			Code:   ErrCodeTextLimitExceeded,
			Actual: total,
			Limit:  TotalTextBudget,
		})
	}

	for _, f := range textFields {
		val := f.get(e)
		if val == "" {
			continue
		}

		if limit := fieldLimits[f.name]; len([]rune(val)) > limit {
			errs = append(errs, EvidenceError{
				Code:   ErrCodeFieldTooLong,
				Field:  f.name,
				Actual: len([]rune(val)),
				Limit:  limit,
			})
		}

		if f.name == "customer_email_address" && !emailPattern.MatchString(val) {
			errs = append(errs, EvidenceError{Code: ErrCodeInvalidFormat, Field: f.name})
		}
		if _, isDate := dateFields[f.name]; isDate && !datePrefixPattern.MatchString(val) {
			errs = append(errs, EvidenceError{Code: ErrCodeInvalidFormat, Field: f.name})
		}
	}

	return errs
}
