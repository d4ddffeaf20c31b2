package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/Vovarama1992/rental-intake-bot/internal/intake"
)

const SourceAPI = "api"

type Engine interface {
	Chat(ctx context.Context, clientID, text string) (intake.TurnResult, error)
	Reset(ctx context.Context, clientID string) error
	GetClient(ctx context.Context, clientID string) (intake.ClientRecord, error)
	ListAllClients(ctx context.Context) ([]intake.ClientRecord, error)
	Stats(ctx context.Context) intake.Stats
	HealthCheck(ctx context.Context) intake.Health
}

type EventLister interface {
	ListIntegrationEvents(ctx context.Context, clientID, kind string) ([]intake.IntegrationEvent, error)
}

type Handler struct {
	engine Engine
	events EventLister
}

func NewHandler(engine Engine, events EventLister) *Handler {
	return &Handler{engine: engine, events: events}
}

type chatRequest struct {
	ClientID    string `json:"client_id"`
	Text        string `json:"text"`
	DisplayName string `json:"display_name"`
}

// Chat — тестовый вход в диалог без мессенджера.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.ClientID) == "" {
		http.Error(w, "missing client_id", http.StatusBadRequest)
		return
	}

	ctx := intake.WithOrigin(r.Context(), intake.Origin{Source: SourceAPI, DisplayName: payload.DisplayName})
	res, err := h.engine.Chat(ctx, payload.ClientID, payload.Text)
	if err != nil {
		log.Error().Err(err).Str("client_id", payload.ClientID).Msg("httpapi: chat failed")
		http.Error(w, "processing error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.Reset(r.Context(), id); err != nil {
		log.Error().Err(err).Str("client_id", id).Msg("httpapi: reset failed")
		http.Error(w, "processing error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "client_id": id})
}

type clientView struct {
	intake.ClientRecord
	Summary map[string]string `json:"summary"`
}

func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.engine.GetClient(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("client_id", id).Msg("httpapi: get client failed")
		http.Error(w, "processing error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, clientView{ClientRecord: rec, Summary: intake.FormatClient(rec)})
}

func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	all, err := h.engine.ListAllClients(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("httpapi: list clients failed")
		http.Error(w, "processing error", http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("completed") == "true" {
		done := all[:0]
		for _, c := range all {
			if c.IsComplete {
				done = append(done, c)
			}
		}
		all = done
	}
	if all == nil {
		all = []intake.ClientRecord{}
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	evs, err := h.events.ListIntegrationEvents(r.Context(), id, r.URL.Query().Get("kind"))
	if err != nil {
		log.Error().Err(err).Str("client_id", id).Msg("httpapi: list events failed")
		http.Error(w, "processing error", http.StatusInternalServerError)
		return
	}
	if evs == nil {
		evs = []intake.IntegrationEvent{}
	}
	writeJSON(w, http.StatusOK, evs)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health := h.engine.HealthCheck(r.Context())
	status := http.StatusOK
	if health.Status != intake.HealthHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Stats(r.Context()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("httpapi: write response")
	}
}
