package intake

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Vovarama1992/rental-intake-bot/internal/ai"
	"github.com/Vovarama1992/rental-intake-bot/internal/history"
	"github.com/Vovarama1992/rental-intake-bot/internal/metrics"
)

var ErrEmptyClientID = errors.New("intake: client id is empty")

const clientLabel = "Клиент"

// Engine owns client records, the conversation windows and observer dispatch.
// Turns of one client are serialized; different clients run concurrently.
type Engine struct {
	cfg     Config
	store   Store
	llm     ai.Completer
	history history.Buffer
	metrics *metrics.IntakeMetrics
	now     func() time.Time

	locks *keyedMutex

	mu      sync.RWMutex
	clients map[string]ClientRecord

	observers observers

	startedAt          time.Time
	totalClients       atomic.Int64
	totalMessages      atomic.Int64
	completedClients   atomic.Int64
	providerErrors     atomic.Int64
	extractionFailures atomic.Int64
	observerFailures   atomic.Int64
}

type Option func(*Engine)

func WithMetrics(m *metrics.IntakeMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds the engine and seeds the aggregate counters from the store.
func New(ctx context.Context, cfg Config, store Store, llm ai.Completer, buf history.Buffer, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil || llm == nil {
		return nil, errors.New("intake: store and completer are required")
	}
	if buf == nil {
		buf = history.NewMemoryBuffer(cfg.MaxHistory)
	}

	e := &Engine{
		cfg:     cfg,
		store:   store,
		llm:     llm,
		history: buf,
		now:     time.Now,
		locks:   newKeyedMutex(),
		clients: make(map[string]ClientRecord),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.startedAt = e.now()
	e.observers.failed = func(kind string) {
		e.observerFailures.Add(1)
		e.metrics.ObserveObserverFailure(kind)
	}

	if err := e.loadCounters(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) loadCounters(ctx context.Context) error {
	total, err := e.store.CountAll(ctx)
	if err != nil {
		return errors.Wrap(err, "intake: count clients")
	}
	completed, err := e.store.CountCompleted(ctx)
	if err != nil {
		return errors.Wrap(err, "intake: count completed")
	}
	messages, err := e.store.CountMessages(ctx)
	if err != nil {
		return errors.Wrap(err, "intake: count messages")
	}
	e.totalClients.Store(total)
	e.completedClients.Store(completed)
	e.totalMessages.Store(messages)
	return nil
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) OnCompletion(h CompletionObserver) *Engine {
	e.observers.addCompletion(h)
	return e
}

func (e *Engine) OnMessage(h MessageObserver) *Engine {
	e.observers.addMessage(h)
	return e
}

func (e *Engine) OnError(h ErrorObserver) *Engine {
	e.observers.addError(h)
	return e
}

// Chat runs one client turn. Provider failures come back as a TurnResult with
// the technical-error reply; only store failures are returned as errors.
func (e *Engine) Chat(ctx context.Context, clientID, text string) (TurnResult, error) {
	if strings.TrimSpace(clientID) == "" {
		return TurnResult{}, ErrEmptyClientID
	}

	unlock := e.locks.Lock(clientID)
	defer unlock()

	turnID := uuid.NewString()
	logger := log.With().Str("client_id", clientID).Str("turn_id", turnID).Logger()

	rec, isNew, err := e.resolve(ctx, clientID)
	if err != nil {
		return TurnResult{}, err
	}
	if rec.MessageCount > 0 {
		e.rebuildWindow(ctx, logger, rec)
	}
	wasComplete := rec.IsComplete

	logger.Info().Int("message_count", rec.MessageCount+1).Int("text_len", len(text)).Msg("intake: inbound message")

	now := e.now()
	rec.MessageCount++
	rec.UpdatedAt = now
	rec.RawTranscript = appendTranscript(rec.RawTranscript, clientLabel, text)
	e.totalMessages.Add(1)

	if err := e.history.Append(ctx, clientID, history.Turn{Role: history.RoleClient, Text: text}); err != nil {
		e.evict(clientID)
		return TurnResult{}, errors.Wrap(err, "intake: append client turn")
	}
	if err := e.store.AppendMessage(ctx, MessageLog{ClientID: clientID, Sender: SenderClient, Content: text, Timestamp: now}); err != nil {
		e.evict(clientID)
		return TurnResult{}, errors.Wrap(err, "intake: log client message")
	}

	reply, err := e.generate(ctx, rec)
	if err != nil {
		return e.failTurn(ctx, logger, rec, isNew, turnID, text, err)
	}

	completedNow := false
	if strings.Contains(reply, e.cfg.CompletionMarker) {
		reply = strings.TrimSpace(strings.ReplaceAll(reply, e.cfg.CompletionMarker, ""))
		if !wasComplete {
			completedNow = true
			completedAt := e.now()
			rec.IsComplete = true
			rec.CompletedAt = &completedAt
			rec.ExtractedData = e.extract(ctx, logger, rec)
		}
	}

	rec.RawTranscript = appendTranscript(rec.RawTranscript, e.cfg.AssistantName, reply)
	rec.UpdatedAt = e.now()

	if err := e.history.Append(ctx, clientID, history.Turn{Role: history.RoleAssistant, Text: reply}); err != nil {
		e.evict(clientID)
		return TurnResult{}, errors.Wrap(err, "intake: append assistant turn")
	}
	if err := e.store.AppendMessage(ctx, MessageLog{ClientID: clientID, Sender: SenderAssistant, Content: reply, Timestamp: rec.UpdatedAt}); err != nil {
		e.evict(clientID)
		return TurnResult{}, errors.Wrap(err, "intake: log assistant message")
	}
	if err := e.commit(ctx, rec, isNew); err != nil {
		return TurnResult{}, err
	}
	if completedNow {
		e.completedClients.Add(1)
		e.metrics.ObserveCompletion()
	}

	result := TurnResult{
		TurnID:    turnID,
		Reply:     reply,
		Completed: completedNow,
	}
	if completedNow {
		result.ExtractedData = cloneData(rec.ExtractedData)
		logger.Info().Interface("extracted", rec.ExtractedData).Msg("intake: dialogue completed")
	}
	e.metrics.ObserveTurn("ok")

	e.observers.fireMessage(ctx, MessageEvent{ClientID: clientID, Text: text, Result: result})
	if completedNow {
		e.observers.fireCompletion(ctx, rec)
	}

	return result, nil
}

// failTurn keeps what step one recorded (count and transcript) and answers
// with the fixed technical message.
func (e *Engine) failTurn(ctx context.Context, logger zerolog.Logger, rec ClientRecord, isNew bool, turnID, text string, cause error) (TurnResult, error) {
	e.providerErrors.Add(1)
	e.metrics.ObserveTurn("provider_error")
	logger.Error().Err(cause).Msg("intake: completion provider failed")

	if err := e.commit(ctx, rec, isNew); err != nil {
		return TurnResult{}, err
	}

	e.observers.fireError(ctx, ErrorEvent{ClientID: rec.ClientID, Text: text, Err: cause})
	return TurnResult{TurnID: turnID, Reply: e.cfg.TechnicalErrorMessage}, nil
}

func (e *Engine) generate(ctx context.Context, rec ClientRecord) (string, error) {
	window, err := e.history.Window(ctx, rec.ClientID)
	if err != nil {
		return "", errors.Wrap(err, "intake: read window")
	}

	msgs := make([]ai.Message, 0, len(window)+1)
	for _, t := range window {
		role := ai.RoleUser
		if t.Role == history.RoleAssistant {
			role = ai.RoleAssistant
		}
		msgs = append(msgs, ai.Message{Role: role, Text: t.Text})
	}
	if rec.MessageCount == 1 && e.cfg.FirstTurnInstruction != "" {
		msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Text: e.cfg.FirstTurnInstruction})
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	started := time.Now()
	reply, err := e.llm.Complete(ctx, ai.Request{
		System:      e.cfg.SystemPrompt,
		Messages:    msgs,
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
	})
	e.metrics.ObserveProviderLatency("reply", time.Since(started).Seconds())
	return reply, err
}

// extract never fails the turn: any problem yields an empty mapping.
func (e *Engine) extract(ctx context.Context, logger zerolog.Logger, rec ClientRecord) map[string]any {
	prompt := BuildExtractionPrompt(e.cfg.ExtractionPrompt, rec.RawTranscript)

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	started := time.Now()
	raw, err := e.llm.Complete(ctx, ai.Request{
		Messages:    []ai.Message{{Role: ai.RoleUser, Text: prompt}},
		Temperature: e.cfg.ExtractionTemperature,
		MaxTokens:   e.cfg.ExtractionMaxTokens,
	})
	e.metrics.ObserveProviderLatency("extraction", time.Since(started).Seconds())
	if err != nil {
		e.extractionFailed()
		logger.Error().Err(err).Msg("intake: extraction call failed")
		return map[string]any{}
	}

	data, err := ParseExtraction(raw)
	if err != nil {
		e.extractionFailed()
		logger.Warn().Err(err).Int("raw_len", len(raw)).Msg("intake: extraction response not parseable")
		logger.Debug().Str("raw", raw).Msg("intake: unparseable extraction response")
		return map[string]any{}
	}
	return data
}

func (e *Engine) extractionFailed() {
	e.extractionFailures.Add(1)
	e.metrics.ObserveExtractionFailure()
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.LLMTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.LLMTimeout)
}

// Reset starts a new lifetime for the client. It never notifies observers.
func (e *Engine) Reset(ctx context.Context, clientID string) error {
	if strings.TrimSpace(clientID) == "" {
		return ErrEmptyClientID
	}

	unlock := e.locks.Lock(clientID)
	defer unlock()

	known := e.cached(clientID)
	if !known {
		_, found, err := e.store.LoadClient(ctx, clientID)
		if err != nil {
			return errors.Wrap(err, "intake: load client")
		}
		known = found
	}

	if err := e.commit(ctx, NewClientRecord(clientID, e.now()), !known); err != nil {
		return err
	}

	if err := e.history.Clear(ctx, clientID); err != nil {
		return errors.Wrap(err, "intake: clear window")
	}

	log.Info().Str("client_id", clientID).Msg("intake: client reset")
	return nil
}

// GetClient returns a snapshot. Unknown ids get a zero-state record that is
// neither persisted nor cached.
func (e *Engine) GetClient(ctx context.Context, clientID string) (ClientRecord, error) {
	if strings.TrimSpace(clientID) == "" {
		return ClientRecord{}, ErrEmptyClientID
	}
	rec, _, err := e.resolve(ctx, clientID)
	if err != nil {
		return ClientRecord{}, err
	}
	return rec, nil
}

func (e *Engine) ListAllClients(ctx context.Context) ([]ClientRecord, error) {
	ids, err := e.store.ListClientIDs(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "intake: list clients")
	}

	out := make([]ClientRecord, 0, len(ids))
	for _, id := range ids {
		rec, _, err := e.resolve(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// resolve returns a private copy of the client's record. Only persisted
// records enter the cache; isNew reports a client the store has never seen.
func (e *Engine) resolve(ctx context.Context, clientID string) (rec ClientRecord, isNew bool, err error) {
	e.mu.RLock()
	cached, ok := e.clients[clientID]
	e.mu.RUnlock()
	if ok {
		return cached.Clone(), false, nil
	}

	stored, found, err := e.store.LoadClient(ctx, clientID)
	if err != nil {
		return ClientRecord{}, false, errors.Wrap(err, "intake: load client")
	}
	if !found {
		return NewClientRecord(clientID, e.now()), true, nil
	}

	e.mu.Lock()
	if existing, ok := e.clients[clientID]; ok {
		e.mu.Unlock()
		return existing.Clone(), false, nil
	}
	e.clients[clientID] = stored.Clone()
	e.mu.Unlock()
	return stored, false, nil
}

// rebuildWindow refills an empty window from the message log of the current
// lifetime: after a restart with the in-memory buffer or an expired Redis key.
func (e *Engine) rebuildWindow(ctx context.Context, logger zerolog.Logger, rec ClientRecord) {
	window, err := e.history.Window(ctx, rec.ClientID)
	if err != nil || len(window) > 0 {
		return
	}

	msgs, err := e.store.ListMessages(ctx, rec.ClientID, rec.CreatedAt, e.cfg.MaxHistory)
	if err != nil {
		logger.Warn().Err(err).Msg("intake: cannot rebuild window")
		return
	}
	if len(msgs) == 0 {
		return
	}

	turns := make([]history.Turn, 0, len(msgs))
	for _, m := range msgs {
		role := history.RoleClient
		if m.Sender == SenderAssistant {
			role = history.RoleAssistant
		}
		turns = append(turns, history.Turn{Role: role, Text: m.Content})
	}
	if err := e.history.Replace(ctx, rec.ClientID, turns); err != nil {
		logger.Warn().Err(err).Msg("intake: cannot rebuild window")
		return
	}
	logger.Debug().Int("turns", len(turns)).Msg("intake: window rebuilt from message log")
}

// commit writes the record durably and only then publishes it to the cache.
// created counts the first save of a client.
func (e *Engine) commit(ctx context.Context, rec ClientRecord, created bool) error {
	if err := e.store.SaveClient(ctx, rec); err != nil {
		e.evict(rec.ClientID)
		return errors.Wrap(err, "intake: save client")
	}
	e.mu.Lock()
	e.clients[rec.ClientID] = rec.Clone()
	e.mu.Unlock()
	if created {
		e.totalClients.Add(1)
	}
	return nil
}

func (e *Engine) evict(clientID string) {
	e.mu.Lock()
	delete(e.clients, clientID)
	e.mu.Unlock()
}

func (e *Engine) cached(clientID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.clients[clientID]
	return ok
}

func appendTranscript(transcript, speaker, text string) string {
	return transcript + "\n" + speaker + ": " + text
}
