package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/revpilot-ai/revpilot/agent/health"
	"github.com/revpilot-ai/revpilot/agent/react"
	"github.com/revpilot-ai/revpilot/crmsync"
	"github.com/revpilot-ai/revpilot/pkg/hubspot"
)

// ChatAgent runs one conversational turn.
type ChatAgent interface {
	HandleQuery(ctx context.Context, req react.QueryRequest) (*react.QueryResponse, error)
}

// DealSyncer imports CRM deals for a workspace.
type DealSyncer interface {
	Sync(ctx context.Context, workspaceID string) (*crmsync.Result, error)
}

// HealthScorer computes an account health score for a workspace.
type HealthScorer interface {
	Score(ctx context.Context, workspaceID string) (*health.AccountHealthScore, error)
}

// DealReader pages through live CRM deals.
type DealReader interface {
	DealsPage(ctx context.Context, after string, limit int) ([]hubspot.Deal, string, error)
}

// API bundles the handlers behind the HTTP surface.
type API struct {
	agent  ChatAgent
	syncer DealSyncer
	scorer HealthScorer
	crm    DealReader
}

func NewAPI(agent ChatAgent, syncer DealSyncer, scorer HealthScorer, crm DealReader) *API {
	return &API{agent: agent, syncer: syncer, scorer: scorer, crm: crm}
}

func (a *API) Router(rateLimit int) http.Handler {
	if rateLimit <= 0 {
		rateLimit = 60
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(rateLimit, time.Minute))

	r.Get("/healthz", a.handleHealthz)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", a.handleChat)
		r.Post("/integrations/hubspot/sync", a.handleSync)
		r.Get("/integrations/hubspot/deals", a.handleListDeals)
		r.Get("/workspaces/{workspaceID}/health", a.handleWorkspaceHealth)
	})
	return r
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		id, _ := r.Context().Value(requestIDKey).(string)
		log.Info().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
