package intake

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type MessageEvent struct {
	ClientID string
	Text     string
	Result   TurnResult
}

type ErrorEvent struct {
	ClientID string
	Text     string
	Err      error
}

type CompletionObserver interface {
	OnCompletion(ctx context.Context, rec ClientRecord) error
}

type MessageObserver interface {
	OnMessage(ctx context.Context, ev MessageEvent) error
}

type ErrorObserver interface {
	OnError(ctx context.Context, ev ErrorEvent) error
}

type CompletionFunc func(ctx context.Context, rec ClientRecord) error

func (f CompletionFunc) OnCompletion(ctx context.Context, rec ClientRecord) error { return f(ctx, rec) }

type MessageFunc func(ctx context.Context, ev MessageEvent) error

func (f MessageFunc) OnMessage(ctx context.Context, ev MessageEvent) error { return f(ctx, ev) }

type ErrorFunc func(ctx context.Context, ev ErrorEvent) error

func (f ErrorFunc) OnError(ctx context.Context, ev ErrorEvent) error { return f(ctx, ev) }

const (
	observerCompletion = "completion"
	observerMessage    = "message"
	observerError      = "error"
)

// observers holds append-only handler lists, invoked in registration order.
type observers struct {
	mu         sync.RWMutex
	completion []CompletionObserver
	message    []MessageObserver
	errs       []ErrorObserver

	// failed is called once per handler that returned an error or panicked.
	failed func(kind string)
}

func (o *observers) addCompletion(h CompletionObserver) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completion = append(o.completion, h)
}

func (o *observers) addMessage(h MessageObserver) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.message = append(o.message, h)
}

func (o *observers) addError(h ErrorObserver) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, h)
}

func (o *observers) fireMessage(ctx context.Context, ev MessageEvent) {
	o.mu.RLock()
	hs := append([]MessageObserver(nil), o.message...)
	o.mu.RUnlock()

	for _, h := range hs {
		o.call(observerMessage, ev.ClientID, func() error { return h.OnMessage(ctx, ev) })
	}
}

func (o *observers) fireCompletion(ctx context.Context, rec ClientRecord) {
	o.mu.RLock()
	hs := append([]CompletionObserver(nil), o.completion...)
	o.mu.RUnlock()

	for _, h := range hs {
		// каждый обработчик получает свою копию
		snapshot := rec.Clone()
		o.call(observerCompletion, rec.ClientID, func() error { return h.OnCompletion(ctx, snapshot) })
	}
}

func (o *observers) fireError(ctx context.Context, ev ErrorEvent) {
	o.mu.RLock()
	hs := append([]ErrorObserver(nil), o.errs...)
	o.mu.RUnlock()

	for _, h := range hs {
		o.call(observerError, ev.ClientID, func() error { return h.OnError(ctx, ev) })
	}
}

func (o *observers) call(kind, clientID string, fn func() error) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Errorf("panic: %v", r)
			}
		}()
		err = fn()
	}()
	if err == nil {
		return
	}

	log.Error().Err(err).Str("client_id", clientID).Str("observer", kind).Msg("intake: observer failed")
	if o.failed != nil {
		o.failed(kind)
	}
}
