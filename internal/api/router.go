package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/dispute-engine/internal/auth"
	"github.com/example/dispute-engine/internal/disputes"
	"github.com/example/dispute-engine/internal/security"
	"github.com/example/dispute-engine/internal/vault"
	"github.com/example/dispute-engine/pkg/audit"
)

type Auditor interface {
	Append(payload string) *audit.LogEntry
	AppendEvent(ev audit.Event) *audit.LogEntry
}

// DisputeStore is the persistence surface the handlers need.
type DisputeStore interface {
	CreateDispute(ctx context.Context, d *disputes.Dispute) error
	GetDispute(ctx context.Context, id string) (*disputes.Dispute, error)
	UpdateEvidence(ctx context.Context, id string, e *disputes.Evidence) error
	SaveEligibility(ctx context.Context, id string, el *disputes.EnhancedEligibility) error
	ResolveDispute(ctx context.Context, id string, outcome disputes.DisputeStatus) error
}

// LedgerWriter posts balance transactions derived from dispute transitions
// and reads back a dispute's lifecycle for net reporting.
type LedgerWriter interface {
	Post(ctx context.Context, disputeID string, txns []disputes.BalanceTransaction) error
	ForDispute(ctx context.Context, disputeID string) ([]disputes.BalanceTransaction, error)
}

// TokenRegistry hydrates tokenized card data from a stored token reference.
type TokenRegistry interface {
	Lookup(ctx context.Context, token string) (*vault.TokenizedCardData, error)
}

type Dependencies struct {
	Logger       *slog.Logger
	OAuth        *auth.OAuthServer
	JWTValidator *auth.JWTValidator

	Store  DisputeStore
	Ledger LedgerWriter
	Tokens TokenRegistry

	Auditor      Auditor
	RateLimiter  *security.RedisTokenBucket
	IPAllowlist  []*net.IPNet
	MaxBodyBytes int64
}

func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	createV, err := security.NewJSONSchemaValidator(createDisputeSchema)
	if err != nil {
		return nil, err
	}
	evidenceV, err := security.NewJSONSchemaValidator(submitEvidenceSchema)
	if err != nil {
		return nil, err
	}
	eligibilityV, err := security.NewJSONSchemaValidator(evaluateEligibilitySchema)
	if err != nil {
		return nil, err
	}
	resolveV, err := security.NewJSONSchemaValidator(resolveDisputeSchema)
	if err != nil {
		return nil, err
	}

	onAuthError := func(w http.ResponseWriter, r *http.Request, status int, code string) {
		security.WriteJSONError(w, r, status, code)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(security.CorrelationID)
	r.Use(RequestLogger(deps.Logger))
	r.Use(MetricsMiddleware)
	r.Use(security.BodySizeLimit(deps.MaxBodyBytes))
	r.Use(security.IPAllowlist(deps.IPAllowlist))
	if deps.RateLimiter != nil {
		r.Use(security.RateLimitMiddleware(deps.RateLimiter, rateLimitKeyByIP))
	}
	if deps.Auditor != nil {
		r.Use(AuditMiddleware(deps.Auditor))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if deps.OAuth != nil {
		r.Post("/oauth/token", deps.OAuth.TokenHandler)
		r.Get("/oauth/jwks.json", deps.OAuth.JWKSHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Authenticate(deps.JWTValidator, onAuthError))

		read := auth.RequireScopes(onAuthError, auth.ScopeDisputesRead)
		write := auth.RequireScopes(onAuthError, auth.ScopeDisputesWrite)

		r.Route("/disputes", func(r chi.Router) {
			r.With(write, createV.Middleware).Post("/", handleCreateDispute(deps))

			r.Route("/{dispute_id}", func(r chi.Router) {
				r.With(read).Get("/", handleGetDispute(deps))
				r.With(write, evidenceV.Middleware).Post("/evidence", handleSubmitEvidence(deps))
				r.With(write, eligibilityV.Middleware).Post("/eligibility", handleEvaluateEligibility(deps))
				r.With(read).Get("/deadlines", handleGetDeadlines(deps))
				r.With(write, resolveV.Middleware).Post("/resolve", handleResolveDispute(deps))
			})
		})

		r.Route("/reason-codes", func(r chi.Router) {
			r.With(read).Get("/", handleListReasonCodes(deps))
			r.With(read).Get("/{network}/{code}", handleGetReasonCode(deps))
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	return r, nil
}

func rateLimitKeyByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	return "ip:" + host
}
