package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	contractx "github.com/revpilot-ai/revpilot/agent/contract"
	"github.com/revpilot-ai/revpilot/agent/react"
	"github.com/revpilot-ai/revpilot/pkg/hubspot"
)

const maxRequestBody = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("server: encoding response failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (a *API) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleChat(w http.ResponseWriter, r *http.Request) {
	var req react.QueryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := a.agent.HandleQuery(r.Context(), req)
	if err != nil {
		if errors.Is(err, contractx.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Str("workspace_id", req.WorkspaceID).Msg("server: chat turn failed")
		writeError(w, http.StatusBadGateway, "agent run failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type syncRequest struct {
	WorkspaceID string `json:"workspace_id"`
}

func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.WorkspaceID) == "" {
		writeError(w, http.StatusBadRequest, "workspace_id is required")
		return
	}

	result, err := a.syncer.Sync(r.Context(), req.WorkspaceID)
	if err != nil {
		writeUpstreamError(w, err, "sync failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleListDeals(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = v
	}

	deals, next, err := a.crm.DealsPage(r.Context(), r.URL.Query().Get("after"), limit)
	if err != nil {
		writeUpstreamError(w, err, "listing deals failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deals":       deals,
		"next_cursor": next,
	})
}

func (a *API) handleWorkspaceHealth(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	if strings.TrimSpace(workspaceID) == "" {
		writeError(w, http.StatusBadRequest, "workspace id is required")
		return
	}

	score, err := a.scorer.Score(r.Context(), workspaceID)
	if err != nil {
		writeUpstreamError(w, err, "health scoring failed")
		return
	}
	writeJSON(w, http.StatusOK, score)
}

// writeUpstreamError maps CRM client sentinels onto HTTP statuses so a
// misconfigured key or an upstream outage is distinguishable to callers.
func writeUpstreamError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, hubspot.ErrUnauthorized), errors.Is(err, hubspot.ErrForbidden):
		writeError(w, http.StatusBadGateway, "crm credentials rejected")
	case errors.Is(err, hubspot.ErrNotFound):
		writeError(w, http.StatusNotFound, "crm object not found")
	case errors.Is(err, hubspot.ErrRateLimited):
		writeError(w, http.StatusServiceUnavailable, "crm rate limit reached, retry later")
	case errors.Is(err, hubspot.ErrUpstreamError), errors.Is(err, hubspot.ErrUnavailable),
		errors.Is(err, hubspot.ErrBadResponse):
		writeError(w, http.StatusBadGateway, "crm upstream unavailable")
	default:
		log.Error().Err(err).Msg("server: " + msg)
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}
