package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/dispute-engine/internal/disputes"
	"github.com/example/dispute-engine/internal/ledger"
	"github.com/example/dispute-engine/internal/security"
	"github.com/example/dispute-engine/internal/vault"
)

type createDisputeRequest struct {
	Amount             int64                         `json:"amount"`
	Currency           string                        `json:"currency"`
	Reason             disputes.DisputeReason        `json:"reason"`
	Charge             string                        `json:"charge"`
	PaymentIntent      string                        `json:"payment_intent"`
	PaymentMethod      disputes.PaymentMethodDetails `json:"payment_method_details"`
	DueBy              int64                         `json:"due_by"`
	PointOfSale        bool                          `json:"point_of_sale"`
	ForeignTransaction bool                          `json:"foreign_transaction"`
}

type disputeResponse struct {
	CorrelationID string            `json:"correlation_id"`
	Dispute       *disputes.Dispute `json:"dispute"`
}

type evidenceResponse struct {
	CorrelationID   string            `json:"correlation_id"`
	DisputeID       string            `json:"dispute_id"`
	TotalTextLength int               `json:"total_text_length"`
	Dispute         *disputes.Dispute `json:"dispute"`
}

type evidenceErrorResponse struct {
	CorrelationID string                   `json:"correlation_id"`
	Error         string                   `json:"error"`
	Details       []disputes.EvidenceError `json:"details"`
}

type eligibilityRequest struct {
	PriorTransactions []disputes.PriorTransaction `json:"prior_transactions"`
}

type eligibilityResponse struct {
	CorrelationID string                       `json:"correlation_id"`
	DisputeID     string                       `json:"dispute_id"`
	Eligibility   disputes.EnhancedEligibility `json:"eligibility"`
	Recommended   []string                     `json:"recommended_evidence"`
}

type deadlinesResponse struct {
	CorrelationID string                   `json:"correlation_id"`
	DisputeID     string                   `json:"dispute_id"`
	Compliance    disputes.ComplianceState `json:"compliance"`
}

type reasonCodeResponse struct {
	CorrelationID string                   `json:"correlation_id"`
	Network       disputes.CardBrand       `json:"network"`
	Code          string                   `json:"code"`
	Info          *disputes.ReasonCodeInfo `json:"info"`
	Recommended   []string                 `json:"recommended_evidence"`
}

type reasonCodeListResponse struct {
	CorrelationID string                       `json:"correlation_id"`
	Category      disputes.DisputeReason       `json:"category"`
	Codes         []disputes.NetworkReasonCode `json:"codes"`
}

type resolveDisputeRequest struct {
	Outcome disputes.DisputeStatus `json:"outcome"`
}

type resolveDisputeResponse struct {
	CorrelationID string                        `json:"correlation_id"`
	DisputeID     string                        `json:"dispute_id"`
	Outcome       disputes.DisputeStatus        `json:"outcome"`
	Transactions  []disputes.BalanceTransaction `json:"balance_transactions"`
	Net           int64                         `json:"net"`
}

// decodeGuarded decodes the request body once as a raw map for the
// tokenization guard and once into the typed request. The schema middleware
// already restored the body for re-reading.
func decodeGuarded(w http.ResponseWriter, r *http.Request, dst any) bool {
	var raw map[string]any
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&raw); err != nil {
		security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
		return false
	}

	if err := vault.GuardPayload(raw); err != nil {
		var sde *vault.SensitiveDataError
		if errors.As(err, &sde) {
			writeJSON(w, r, http.StatusUnprocessableEntity, map[string]any{
				"error":            "sensitive_data_detected",
				"forbidden_fields": sde.Fields,
				"correlation_id":   security.CorrelationIDFromContext(r.Context()),
			})
			return false
		}
		security.WriteJSONError(w, r, http.StatusUnprocessableEntity, "sensitive_data_detected")
		return false
	}

	// Re-marshal rather than re-read: the body reader is already consumed.
	buf, err := json.Marshal(raw)
	if err != nil {
		security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
		return false
	}
	if err := json.Unmarshal(buf, dst); err != nil {
		security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
		return false
	}
	return true
}

// maskedForResponse returns a shallow copy with the card token masked.
// Stored rows keep the full token; responses never do.
func maskedForResponse(d *disputes.Dispute) *disputes.Dispute {
	if d == nil || d.PaymentMethod.Card == nil {
		return d
	}
	out := *d
	card := *d.PaymentMethod.Card
	card.Token = vault.MaskToken(card.Token)
	pm := d.PaymentMethod
	pm.Card = &card
	out.PaymentMethod = pm
	return &out
}

func handleCreateDispute(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createDisputeRequest
		if !decodeGuarded(w, r, &req) {
			return
		}

		d := &disputes.Dispute{
			ID:                 disputes.NewID("dp"),
			Amount:             req.Amount,
			Currency:           req.Currency,
			Status:             disputes.StatusNeedsResponse,
			Reason:             req.Reason,
			Created:            time.Now().Unix(),
			Charge:             req.Charge,
			PaymentIntent:      req.PaymentIntent,
			PaymentMethod:      req.PaymentMethod,
			PointOfSale:        req.PointOfSale,
			ForeignTransaction: req.ForeignTransaction,
		}
		d.EvidenceDetails.DueBy = req.DueBy

		// Hydrate the card from the token registry so downstream checks
		// run against the canonical record, not client-supplied fields.
		if d.PaymentMethod.Card != nil && deps.Tokens != nil {
			stored, err := deps.Tokens.Lookup(r.Context(), d.PaymentMethod.Card.Token)
			if err != nil {
				if errors.Is(err, vault.ErrTokenNotFound) {
					security.WriteJSONError(w, r, http.StatusUnprocessableEntity, "unknown_token")
					return
				}
				security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
				return
			}
			d.PaymentMethod.Card.TokenizedCardData = *stored
		}

		if err := d.Validate(); err != nil {
			security.WriteJSONError(w, r, http.StatusUnprocessableEntity, "invalid_dispute")
			return
		}

		d.BalanceTxns = ledger.CreationEntries(d)

		if err := deps.Store.CreateDispute(r.Context(), d); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_request")
			return
		}
		if deps.Ledger != nil {
			if err := deps.Ledger.Post(r.Context(), d.ID, d.BalanceTxns); err != nil {
				deps.Logger.Error("ledger_post_failed", "dispute_id", d.ID, "error", err)
			}
		}
		if deps.Auditor != nil {
			deps.Auditor.AppendEvent(auditEvent("dispute.created", d.ID, r))
		}
		DisputesCreated.WithLabelValues(string(d.CardBrand())).Inc()

		writeJSON(w, r, http.StatusCreated, disputeResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Dispute:       maskedForResponse(d),
		})
	}
}

func handleGetDispute(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := loadDispute(deps, w, r)
		if !ok {
			return
		}

		d.EvidenceDetails.RecomputePastDue(time.Now().Unix())

		writeJSON(w, r, http.StatusOK, disputeResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Dispute:       maskedForResponse(d),
		})
	}
}

func handleSubmitEvidence(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := loadDispute(deps, w, r)
		if !ok {
			return
		}

		var e disputes.Evidence
		if !decodeGuarded(w, r, &e) {
			return
		}

		// New submissions require a live token; the registry is re-resolved
		// because the token may have been suspended or expired since the
		// dispute was opened.
		if d.PaymentMethod.Card != nil && deps.Tokens != nil {
			stored, err := deps.Tokens.Lookup(r.Context(), d.PaymentMethod.Card.Token)
			if err != nil {
				if errors.Is(err, vault.ErrTokenNotFound) {
					security.WriteJSONError(w, r, http.StatusUnprocessableEntity, "unknown_token")
					return
				}
				security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
				return
			}
			if err := vault.IsTokenValid(*stored, time.Now().Unix()); err != nil {
				security.WriteJSONError(w, r, http.StatusUnprocessableEntity, "token_expired_or_inactive")
				return
			}
		}

		if errs := disputes.ValidateEvidence(&e); len(errs) > 0 {
			writeJSON(w, r, http.StatusUnprocessableEntity, evidenceErrorResponse{
				CorrelationID: security.CorrelationIDFromContext(r.Context()),
				Error:         "evidence_validation_failed",
				Details:       errs,
			})
			return
		}

		if err := deps.Store.UpdateEvidence(r.Context(), d.ID, &e); err != nil {
			if errors.Is(err, disputes.ErrDisputeClosed) {
				security.WriteJSONError(w, r, http.StatusConflict, "dispute_closed")
				return
			}
			security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
		if deps.Auditor != nil {
			deps.Auditor.AppendEvent(auditEvent("dispute.evidence_submitted", d.ID, r))
		}
		EvidenceSubmissions.Inc()

		updated, err := deps.Store.GetDispute(r.Context(), d.ID)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}

		writeJSON(w, r, http.StatusOK, evidenceResponse{
			CorrelationID:   security.CorrelationIDFromContext(r.Context()),
			DisputeID:       d.ID,
			TotalTextLength: e.TotalTextLength(),
			Dispute:         maskedForResponse(updated),
		})
	}
}

func handleEvaluateEligibility(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := loadDispute(deps, w, r)
		if !ok {
			return
		}

		var req eligibilityRequest
		if !decodeGuarded(w, r, &req) {
			return
		}

		el := disputes.EvaluateCE3Eligibility(d, req.PriorTransactions)
		if err := deps.Store.SaveEligibility(r.Context(), d.ID, &el); err != nil {
			if errors.Is(err, disputes.ErrDisputeClosed) {
				security.WriteJSONError(w, r, http.StatusConflict, "dispute_closed")
				return
			}
			security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
		if deps.Auditor != nil {
			deps.Auditor.AppendEvent(auditEvent("dispute.eligibility_evaluated", d.ID, r))
		}
		EligibilityVerdicts.WithLabelValues(string(el.VisaCompellingEvidence3.Status)).Inc()

		var recommended []string
		if info := disputes.LookupReasonCode(d.CardBrand(), d.NetworkReasonCode()); info != nil {
			recommended = disputes.RecommendedEvidence(info.Category)
		} else {
			recommended = disputes.RecommendedEvidence(d.Reason)
		}

		writeJSON(w, r, http.StatusOK, eligibilityResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			DisputeID:     d.ID,
			Eligibility:   el,
			Recommended:   recommended,
		})
	}
}

func handleGetDeadlines(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := loadDispute(deps, w, r)
		if !ok {
			return
		}

		accountAgeDays := 365
		if v := r.URL.Query().Get("account_age_days"); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil || i < 0 {
				security.WriteJSONError(w, r, http.StatusBadRequest, "validation_error")
				return
			}
			accountAgeDays = i
		}

		writeJSON(w, r, http.StatusOK, deadlinesResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			DisputeID:     d.ID,
			Compliance:    disputes.CalculateComplianceState(d, accountAgeDays),
		})
	}
}

func handleGetReasonCode(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		network := disputes.CardBrand(chi.URLParam(r, "network"))
		code := chi.URLParam(r, "code")

		info := disputes.LookupReasonCode(network, code)
		if info == nil {
			security.WriteJSONError(w, r, http.StatusNotFound, "unknown_reason_code")
			return
		}

		writeJSON(w, r, http.StatusOK, reasonCodeResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Network:       network,
			Code:          code,
			Info:          info,
			Recommended:   disputes.RecommendedEvidence(info.Category),
		})
	}
}

func handleListReasonCodes(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := disputes.DisputeReason(r.URL.Query().Get("category"))
		if category == "" {
			security.WriteJSONError(w, r, http.StatusBadRequest, "validation_error")
			return
		}

		codes := disputes.ReasonCodesByCategory(category)
		writeJSON(w, r, http.StatusOK, reasonCodeListResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Category:      category,
			Codes:         codes,
		})
	}
}

func handleResolveDispute(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := loadDispute(deps, w, r)
		if !ok {
			return
		}

		var req resolveDisputeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		now := time.Now().Unix()
		txns, err := ledger.ResolutionEntries(d, req.Outcome, now)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusUnprocessableEntity, "invalid_outcome")
			return
		}

		if err := deps.Store.ResolveDispute(r.Context(), d.ID, req.Outcome); err != nil {
			if errors.Is(err, disputes.ErrDisputeClosed) {
				security.WriteJSONError(w, r, http.StatusConflict, "dispute_closed")
				return
			}
			security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
		if deps.Ledger != nil && len(txns) > 0 {
			if err := deps.Ledger.Post(r.Context(), d.ID, txns); err != nil {
				deps.Logger.Error("ledger_post_failed", "dispute_id", d.ID, "error", err)
			}
		}
		if deps.Auditor != nil {
			deps.Auditor.AppendEvent(auditEvent("dispute.resolved", d.ID, r))
		}
		DisputesResolved.WithLabelValues(string(req.Outcome)).Inc()

		net := ledger.NetSum(txns)
		if deps.Ledger != nil {
			if all, err := deps.Ledger.ForDispute(r.Context(), d.ID); err == nil {
				net = ledger.NetSum(all)
			}
		}

		writeJSON(w, r, http.StatusOK, resolveDisputeResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			DisputeID:     d.ID,
			Outcome:       req.Outcome,
			Transactions:  txns,
			Net:           net,
		})
	}
}

func loadDispute(deps Dependencies, w http.ResponseWriter, r *http.Request) (*disputes.Dispute, bool) {
	if deps.Store == nil {
		security.WriteJSONError(w, r, http.StatusServiceUnavailable, "store_unavailable")
		return nil, false
	}

	id := chi.URLParam(r, "dispute_id")
	if !disputes.DisputeIDPattern.MatchString(id) {
		security.WriteJSONError(w, r, http.StatusBadRequest, "validation_error")
		return nil, false
	}

	d, err := deps.Store.GetDispute(r.Context(), id)
	if err != nil {
		if errors.Is(err, disputes.ErrDisputeNotFound) {
			security.WriteJSONError(w, r, http.StatusNotFound, "dispute_not_found")
			return nil, false
		}
		security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
		return nil, false
	}
	return d, true
}
