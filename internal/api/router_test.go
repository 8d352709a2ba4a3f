package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/example/dispute-engine/internal/auth"
	"github.com/example/dispute-engine/internal/disputes"
	"github.com/example/dispute-engine/internal/security"
	"github.com/example/dispute-engine/internal/vault"
	"github.com/example/dispute-engine/pkg/audit"
)

const testToken = "tok_4kGxQ2nXbT8sWvCpLrYdM3Ez"

type memoryClientStore struct {
	clients map[string]*auth.Client
}

func (m *memoryClientStore) GetClient(ctx context.Context, clientID string) (*auth.Client, error) {
	c := m.clients[clientID]
	if c == nil {
		return nil, auth.ErrClientNotFound
	}
	return c, nil
}

type memoryDisputeStore struct {
	mu       sync.Mutex
	disputes map[string]*disputes.Dispute
	created  int
}

func newMemoryDisputeStore() *memoryDisputeStore {
	return &memoryDisputeStore{disputes: map[string]*disputes.Dispute{}}
}

func (m *memoryDisputeStore) CreateDispute(ctx context.Context, d *disputes.Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.disputes[d.ID] = &cp
	m.created++
	return nil
}

func (m *memoryDisputeStore) GetDispute(ctx context.Context, id string) (*disputes.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.disputes[id]
	if d == nil {
		return nil, disputes.ErrDisputeNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memoryDisputeStore) UpdateEvidence(ctx context.Context, id string, e *disputes.Evidence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.disputes[id]
	if d == nil {
		return disputes.ErrDisputeNotFound
	}
	if d.IsTerminal() {
		return disputes.ErrDisputeClosed
	}
	d.Evidence = *e
	d.EvidenceDetails.HasEvidence = e.HasAnyField()
	d.EvidenceDetails.SubmissionCount++
	switch d.Status {
	case disputes.StatusNeedsResponse:
		d.Status = disputes.StatusUnderReview
	case disputes.StatusWarningNeedsResponse:
		d.Status = disputes.StatusWarningUnderReview
	}
	return nil
}

func (m *memoryDisputeStore) SaveEligibility(ctx context.Context, id string, el *disputes.EnhancedEligibility) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.disputes[id]
	if d == nil {
		return disputes.ErrDisputeNotFound
	}
	if d.IsTerminal() {
		return disputes.ErrDisputeClosed
	}
	cp := *el
	d.EvidenceDetails.EnhancedEligibility = &cp
	return nil
}

func (m *memoryDisputeStore) ResolveDispute(ctx context.Context, id string, outcome disputes.DisputeStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.disputes[id]
	if d == nil {
		return disputes.ErrDisputeNotFound
	}
	if d.IsTerminal() {
		return disputes.ErrDisputeClosed
	}
	d.Status = outcome
	return nil
}

type fakeLedger struct {
	mu    sync.Mutex
	posts map[string][]disputes.BalanceTransaction
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{posts: map[string][]disputes.BalanceTransaction{}}
}

func (f *fakeLedger) Post(ctx context.Context, disputeID string, txns []disputes.BalanceTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts[disputeID] = append(f.posts[disputeID], txns...)
	return nil
}

func (f *fakeLedger) ForDispute(ctx context.Context, disputeID string) ([]disputes.BalanceTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]disputes.BalanceTransaction(nil), f.posts[disputeID]...), nil
}

type memoryTokens struct {
	cards map[string]vault.TokenizedCardData
}

func (m *memoryTokens) Lookup(ctx context.Context, token string) (*vault.TokenizedCardData, error) {
	card, ok := m.cards[token]
	if !ok {
		return nil, vault.ErrTokenNotFound
	}
	return &card, nil
}

type auditSpy struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *auditSpy) Append(payload string) *audit.LogEntry {
	return &audit.LogEntry{Hash: payload}
}

func (a *auditSpy) AppendEvent(ev audit.Event) *audit.LogEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	return &audit.LogEntry{}
}

func (a *auditSpy) kinds() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, ev := range a.events {
		out = append(out, ev.Kind)
	}
	return out
}

func newTestDeps(t *testing.T) Dependencies {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	keySet, err := auth.NewKeySet()
	require.NoError(t, err)

	store := &memoryClientStore{clients: map[string]*auth.Client{
		"read-client":  {ID: "read-client", SecretHash: mustHash(t, "read-secret"), Scopes: []string{auth.ScopeDisputesRead}},
		"write-client": {ID: "write-client", SecretHash: mustHash(t, "write-secret"), Scopes: []string{auth.ScopeDisputesWrite}},
		"full-client":  {ID: "full-client", SecretHash: mustHash(t, "full-secret"), Scopes: []string{auth.ScopeDisputesRead, auth.ScopeDisputesWrite}},
	}}

	tokens := &memoryTokens{cards: map[string]vault.TokenizedCardData{
		testToken: {
			Token:       testToken,
			Last4:       "4242",
			Fingerprint: "Fp4kGxQ2nXbT8sWvCpLrYdM3EzAb12Cd",
			Status:      vault.TokenStatusActive,
		},
	}}

	return Dependencies{
		OAuth:        &auth.OAuthServer{Store: store, Keys: keySet, Issuer: "test", AccessTokenTTL: 5 * time.Minute},
		JWTValidator: &auth.JWTValidator{KeySet: keySet, Issuer: "test"},
		Store:        newMemoryDisputeStore(),
		Ledger:       newFakeLedger(),
		Tokens:       tokens,
		Auditor:      &auditSpy{},
		RateLimiter:  &security.RedisTokenBucket{Redis: rdb, Prefix: "test", Capacity: 100, RefillRate: 100},
		IPAllowlist:  nil,
		MaxBodyBytes: 1 << 20,
	}
}

func mustHash(t *testing.T, secret string) string {
	h, err := auth.HashClientSecret(secret)
	require.NoError(t, err)
	return h
}

func issueToken(t *testing.T, deps Dependencies, clientID, clientSecret, scope string) string {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(deps.OAuth.TokenHandler))
	defer ts.Close()

	form := []byte("grant_type=client_credentials&scope=" + url.QueryEscape(scope))
	req, _ := http.NewRequest(http.MethodPost, ts.URL, bytes.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(clientID, clientSecret)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tr struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))
	require.NotEmpty(t, tr.AccessToken)
	return tr.AccessToken
}

func doJSON(t *testing.T, method, target, bearer string, body any) *http.Response {
	t.Helper()

	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, target, rdr)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func createPayload() map[string]any {
	return map[string]any{
		"amount":   12500,
		"currency": "usd",
		"reason":   "fraudulent",
		"charge":   "ch_4kGxQ2nXbT8sWvCpLrYdM3Ez",
		"payment_method_details": map[string]any{
			"type": "card",
			"card": map[string]any{
				"token":               testToken,
				"brand":               "visa",
				"funding":             "debit",
				"network_reason_code": "10.4",
			},
		},
	}
}

func TestAuthFailuresAndValidation(t *testing.T) {
	deps := newTestDeps(t)
	h, err := NewRouter(deps)
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	defer ts.Close()

	// No bearer token.
	resp, err := http.Get(ts.URL + "/v1/disputes/dp_4kGxQ2nXbT8sWvCpLrYdM3Ez")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Read scope cannot create.
	readToken := issueToken(t, deps, "read-client", "read-secret", auth.ScopeDisputesRead)
	resp = doJSON(t, http.MethodPost, ts.URL+"/v1/disputes", readToken, createPayload())
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Schema violation is rejected before the store sees it.
	writeToken := issueToken(t, deps, "write-client", "write-secret", auth.ScopeDisputesWrite)
	resp = doJSON(t, http.MethodPost, ts.URL+"/v1/disputes", writeToken, map[string]any{"amount": 12500})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, 0, deps.Store.(*memoryDisputeStore).created)
}

func TestDisputeLifecycle(t *testing.T) {
	deps := newTestDeps(t)
	h, err := NewRouter(deps)
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	defer ts.Close()

	token := issueToken(t, deps, "full-client", "full-secret",
		auth.ScopeDisputesRead+" "+auth.ScopeDisputesWrite)

	// Create.
	resp := doJSON(t, http.MethodPost, ts.URL+"/v1/disputes", token, createPayload())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(security.CorrelationIDHeader))

	created := decodeBody(t, resp)
	dispute := created["dispute"].(map[string]any)
	disputeID := dispute["id"].(string)
	require.Regexp(t, `^dp_[A-Za-z0-9]{24}$`, disputeID)
	require.Equal(t, "needs_response", dispute["status"])

	// Responses mask the token. The stored row keeps it intact.
	card := dispute["payment_method_details"].(map[string]any)["card"].(map[string]any)
	require.NotEqual(t, testToken, card["token"])
	require.Contains(t, card["token"], "****")
	stored, err := deps.Store.GetDispute(context.Background(), disputeID)
	require.NoError(t, err)
	require.Equal(t, testToken, stored.PaymentMethod.Card.Token)

	base := ts.URL + "/v1/disputes/" + disputeID

	// Evidence moves the dispute under review.
	resp = doJSON(t, http.MethodPost, base+"/evidence", token, map[string]any{
		"customer_email_address": "cardholder@example.com",
		"product_description":    "annual subscription renewal",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Equal(t, "under_review", body["dispute"].(map[string]any)["status"])

	// Eligibility: no disputed-transaction identifiers were supplied, so the
	// verdict asks for them even with enough qualifying priors.
	priorDate := time.Now().AddDate(0, 0, -200).Unix()
	resp = doJSON(t, http.MethodPost, base+"/eligibility", token, map[string]any{
		"prior_transactions": []map[string]any{
			{"charge": "ch_prior0000000000000000001", "charge_date": priorDate, "customer_email_address": "cardholder@example.com"},
			{"charge": "ch_prior0000000000000000002", "charge_date": priorDate, "customer_email_address": "cardholder@example.com"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	verdict := body["eligibility"].(map[string]any)["visa_compelling_evidence_3"].(map[string]any)
	require.Equal(t, "requires_action", verdict["status"])
	require.NotEmpty(t, body["recommended_evidence"])

	// Deadlines: a debit card falls under Reg E.
	resp = doJSON(t, http.MethodGet, base+"/deadlines?account_age_days=365", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	require.Equal(t, "reg_e", body["compliance"].(map[string]any)["regulation"])

	// Resolve won: the full lifecycle nets to zero.
	resp = doJSON(t, http.MethodPost, base+"/resolve", token, map[string]any{"outcome": "won"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	require.Equal(t, "won", body["outcome"])
	require.Equal(t, float64(0), body["net"])

	// Terminal disputes refuse further transitions and evidence.
	resp = doJSON(t, http.MethodPost, base+"/resolve", token, map[string]any{"outcome": "lost"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
	resp = doJSON(t, http.MethodPost, base+"/evidence", token, map[string]any{"product_description": "late"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// EvidenceDetails, including the eligibility snapshot, is frozen too.
	resp = doJSON(t, http.MethodPost, base+"/eligibility", token, map[string]any{
		"prior_transactions": []map[string]any{},
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	require.Equal(t, []string{
		"dispute.created",
		"dispute.evidence_submitted",
		"dispute.eligibility_evaluated",
		"dispute.resolved",
	}, deps.Auditor.(*auditSpy).kinds())
}

func TestEvidenceRequiresLiveToken(t *testing.T) {
	deps := newTestDeps(t)
	h, err := NewRouter(deps)
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	defer ts.Close()

	token := issueToken(t, deps, "full-client", "full-secret",
		auth.ScopeDisputesRead+" "+auth.ScopeDisputesWrite)

	resp := doJSON(t, http.MethodPost, ts.URL+"/v1/disputes", token, createPayload())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	disputeID := decodeBody(t, resp)["dispute"].(map[string]any)["id"].(string)

	// The card token is suspended after the dispute opens.
	registry := deps.Tokens.(*memoryTokens)
	card := registry.cards[testToken]
	card.Status = vault.TokenStatusSuspended
	registry.cards[testToken] = card

	resp = doJSON(t, http.MethodPost, ts.URL+"/v1/disputes/"+disputeID+"/evidence", token, map[string]any{
		"product_description": "annual subscription renewal",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, "token_expired_or_inactive", decodeBody(t, resp)["error"])

	stored, err := deps.Store.GetDispute(context.Background(), disputeID)
	require.NoError(t, err)
	require.False(t, stored.EvidenceDetails.HasEvidence)
	require.Equal(t, 0, stored.EvidenceDetails.SubmissionCount)

	// Reads of the same dispute stay available: token liveness is fatal
	// only for new submissions.
	resp = doJSON(t, http.MethodGet, ts.URL+"/v1/disputes/"+disputeID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Reinstating the token unblocks submissions.
	card.Status = vault.TokenStatusActive
	registry.cards[testToken] = card
	resp = doJSON(t, http.MethodPost, ts.URL+"/v1/disputes/"+disputeID+"/evidence", token, map[string]any{
		"product_description": "annual subscription renewal",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestSensitiveDataRejected(t *testing.T) {
	deps := newTestDeps(t)
	h, err := NewRouter(deps)
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	defer ts.Close()

	token := issueToken(t, deps, "full-client", "full-secret",
		auth.ScopeDisputesRead+" "+auth.ScopeDisputesWrite)

	resp := doJSON(t, http.MethodPost, ts.URL+"/v1/disputes", token, createPayload())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	disputeID := decodeBody(t, resp)["dispute"].(map[string]any)["id"].(string)

	resp = doJSON(t, http.MethodPost, ts.URL+"/v1/disputes/"+disputeID+"/evidence", token, map[string]any{
		"product_description": "mail order",
		"pan":                 "redacted",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Equal(t, "sensitive_data_detected", body["error"])
	require.Contains(t, body["forbidden_fields"], "pan")

	stored, err := deps.Store.GetDispute(context.Background(), disputeID)
	require.NoError(t, err)
	require.False(t, stored.EvidenceDetails.HasEvidence)
}

func TestEvidenceValidationErrorsCollected(t *testing.T) {
	deps := newTestDeps(t)
	h, err := NewRouter(deps)
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	defer ts.Close()

	token := issueToken(t, deps, "full-client", "full-secret",
		auth.ScopeDisputesRead+" "+auth.ScopeDisputesWrite)

	resp := doJSON(t, http.MethodPost, ts.URL+"/v1/disputes", token, createPayload())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	disputeID := decodeBody(t, resp)["dispute"].(map[string]any)["id"].(string)

	resp = doJSON(t, http.MethodPost, ts.URL+"/v1/disputes/"+disputeID+"/evidence", token, map[string]any{
		"customer_email_address": strings.Repeat("a", 250) + "@example.com",
		"service_date":           "June 1st",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Equal(t, "evidence_validation_failed", body["error"])
	require.Len(t, body["details"], 2)
}

func TestUnknownTokenRejected(t *testing.T) {
	deps := newTestDeps(t)
	h, err := NewRouter(deps)
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	defer ts.Close()

	token := issueToken(t, deps, "write-client", "write-secret", auth.ScopeDisputesWrite)

	payload := createPayload()
	payload["payment_method_details"].(map[string]any)["card"].(map[string]any)["token"] = "tok_NeverRegisteredAnywhere0"
	resp := doJSON(t, http.MethodPost, ts.URL+"/v1/disputes", token, payload)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, "unknown_token", decodeBody(t, resp)["error"])
}

func TestReasonCodeEndpoints(t *testing.T) {
	deps := newTestDeps(t)
	h, err := NewRouter(deps)
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	defer ts.Close()

	token := issueToken(t, deps, "read-client", "read-secret", auth.ScopeDisputesRead)

	resp := doJSON(t, http.MethodGet, ts.URL+"/v1/reason-codes/visa/10.4", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Equal(t, "fraudulent", body["info"].(map[string]any)["category"])
	require.NotEmpty(t, body["recommended_evidence"])

	resp = doJSON(t, http.MethodGet, ts.URL+"/v1/reason-codes/visa/99.9", token, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "unknown_reason_code", decodeBody(t, resp)["error"])

	resp = doJSON(t, http.MethodGet, ts.URL+"/v1/reason-codes?category=fraudulent", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, decodeBody(t, resp)["codes"])

	resp = doJSON(t, http.MethodGet, ts.URL+"/v1/reason-codes", token, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestRateLimitTrips(t *testing.T) {
	deps := newTestDeps(t)
	deps.RateLimiter.Capacity = 1
	deps.RateLimiter.RefillRate = 0.0000001

	h, err := NewRouter(deps)
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/oauth/jwks.json")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/oauth/jwks.json")
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestBodySizeLimit(t *testing.T) {
	deps := newTestDeps(t)
	deps.MaxBodyBytes = 32

	h, err := NewRouter(deps)
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	defer ts.Close()

	token := issueToken(t, deps, "write-client", "write-secret", auth.ScopeDisputesWrite)

	resp := doJSON(t, http.MethodPost, ts.URL+"/v1/disputes", token, createPayload())
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	resp.Body.Close()
}
