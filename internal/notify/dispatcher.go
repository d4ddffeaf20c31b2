package notify

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/Vovarama1992/rental-intake-bot/internal/intake"
	"github.com/Vovarama1992/rental-intake-bot/internal/metrics"
)

const EventLeadNotification = "lead_notification"

// DefaultChannel is passed to the Sender when no operators are configured.
const DefaultChannel int64 = 0

var ErrNoDelivery = errors.New("notify: lead was not delivered to any operator")

// Sender доставляет готовый HTML в чат оператора.
type Sender interface {
	Send(ctx context.Context, chatID int64, html string) error
}

// EventStore is the part of the store the dispatcher needs.
type EventStore interface {
	RecordIntegrationEvent(ctx context.Context, ev intake.IntegrationEvent) (int64, error)
	UpdateIntegrationEventStatus(ctx context.Context, id int64, status intake.EventStatus) error
}

type Dispatcher struct {
	store     EventStore
	sender    Sender
	operators []int64
	metrics   *metrics.NotifyMetrics

	sent atomic.Int64
}

func NewDispatcher(store EventStore, sender Sender, operators []int64, m *metrics.NotifyMetrics) *Dispatcher {
	return &Dispatcher{
		store:     store,
		sender:    sender,
		operators: append([]int64(nil), operators...),
		metrics:   m,
	}
}

// Notify records the lead as an integration event and fans it out to the
// operators. The event ends delivered if at least one send succeeded.
func (d *Dispatcher) Notify(ctx context.Context, lead Lead) error {
	logger := log.With().Str("component", "notify").Str("client_id", lead.ClientID).Logger()

	id, err := d.store.RecordIntegrationEvent(ctx, intake.IntegrationEvent{
		ClientID: lead.ClientID,
		Kind:     EventLeadNotification,
		Payload:  lead.payload(),
		Status:   intake.EventPending,
	})
	if err != nil {
		return errors.Wrap(err, "notify: record event")
	}

	targets := d.operators
	if len(targets) == 0 {
		targets = []int64{DefaultChannel}
	}

	text := Format(lead)
	delivered := 0
	for _, chatID := range targets {
		if err := d.sender.Send(ctx, chatID, text); err != nil {
			d.metrics.ObserveDelivery("failed")
			logger.Error().Err(err).Int64("chat_id", chatID).Msg("notify: delivery failed")
			continue
		}
		delivered++
		d.metrics.ObserveDelivery("delivered")
	}

	status := intake.EventDelivered
	if delivered == 0 {
		status = intake.EventFailed
	}
	if err := d.store.UpdateIntegrationEventStatus(ctx, id, status); err != nil {
		return errors.Wrap(err, "notify: update event")
	}

	if delivered == 0 {
		return ErrNoDelivery
	}
	d.sent.Add(1)
	logger.Info().Int("operators", delivered).Str("source", lead.Source).Msg("notify: lead delivered")
	return nil
}

// CompletionObserver hooks the dispatcher into the engine.
func (d *Dispatcher) CompletionObserver() intake.CompletionObserver {
	return intake.CompletionFunc(func(ctx context.Context, rec intake.ClientRecord) error {
		return d.Notify(ctx, LeadFrom(ctx, rec))
	})
}

// Sent is the number of leads delivered to at least one operator.
func (d *Dispatcher) Sent() int64 { return d.sent.Load() }

// LogSender пишет уведомления в лог, когда Telegram не настроен.
type LogSender struct{}

func (LogSender) Send(_ context.Context, chatID int64, html string) error {
	log.Info().Str("component", "notify").Int64("chat_id", chatID).Str("text", html).Msg("notify: lead (log only)")
	return nil
}
