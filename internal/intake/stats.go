package intake

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type Stats struct {
	ClientCount             int64     `json:"client_count"`
	MessageCount            int64     `json:"message_count"`
	CompletionCount         int64     `json:"completion_count"`
	ActiveConversationCount int       `json:"active_conversation_count"`
	ProviderErrors          int64     `json:"provider_errors"`
	ExtractionFailures      int64     `json:"extraction_failures"`
	ObserverFailures        int64     `json:"observer_failures"`
	UptimeHours             float64   `json:"uptime_hours"`
	StartedAt               time.Time `json:"started_at"`
}

type ConfigSummary struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	MaxHistory  int     `json:"max_history"`
	Store       string  `json:"store"`
}

type Health struct {
	Status      string        `json:"status"`
	UptimeHours float64       `json:"uptime_hours"`
	Stats       Stats         `json:"stats"`
	Config      ConfigSummary `json:"config"`
	Error       string        `json:"error,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

const (
	HealthHealthy = "healthy"
	HealthError   = "error"
)

// Stats is eventually consistent with the store; counters are in-process.
func (e *Engine) Stats(ctx context.Context) Stats {
	active, err := e.history.Active(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("intake: active conversation count unavailable")
	}
	return Stats{
		ClientCount:             e.totalClients.Load(),
		MessageCount:            e.totalMessages.Load(),
		CompletionCount:         e.completedClients.Load(),
		ActiveConversationCount: active,
		ProviderErrors:          e.providerErrors.Load(),
		ExtractionFailures:      e.extractionFailures.Load(),
		ObserverFailures:        e.observerFailures.Load(),
		UptimeHours:             e.uptime().Hours(),
		StartedAt:               e.startedAt,
	}
}

func (e *Engine) HealthCheck(ctx context.Context) Health {
	h := Health{
		Status:      HealthHealthy,
		UptimeHours: e.uptime().Hours(),
		Stats:       e.Stats(ctx),
		Config: ConfigSummary{
			Model:       e.cfg.Model,
			Temperature: e.cfg.Temperature,
			MaxTokens:   e.cfg.MaxTokens,
			MaxHistory:  e.cfg.MaxHistory,
			Store:       e.cfg.StoreLabel,
		},
		Timestamp: e.now(),
	}
	if err := e.store.Ping(ctx); err != nil {
		h.Status = HealthError
		h.Error = err.Error()
	}
	return h
}

func (e *Engine) uptime() time.Duration {
	return e.now().Sub(e.startedAt)
}
