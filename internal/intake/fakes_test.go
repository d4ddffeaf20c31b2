package intake

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Vovarama1992/rental-intake-bot/internal/ai"
)

type memStore struct {
	mu       sync.Mutex
	clients  map[string]ClientRecord
	messages []MessageLog
	events   []IntegrationEvent
	saves    int
	saveErr  error
	pingErr  error
}

func newMemStore() *memStore {
	return &memStore{clients: make(map[string]ClientRecord)}
}

func (s *memStore) LoadClient(_ context.Context, id string) (ClientRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.clients[id]
	return rec.Clone(), ok, nil
}

func (s *memStore) SaveClient(_ context.Context, rec ClientRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.clients[rec.ClientID] = rec.Clone()
	return nil
}

func (s *memStore) ListClientIDs(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memStore) AppendMessage(_ context.Context, msg MessageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = int64(len(s.messages) + 1)
	s.messages = append(s.messages, msg)
	return nil
}

func (s *memStore) ListMessages(_ context.Context, clientID string, since time.Time, limit int) ([]MessageLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []MessageLog
	for _, m := range s.messages {
		if m.ClientID == clientID && !m.Timestamp.Before(since) {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *memStore) CountAll(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.clients)), nil
}

func (s *memStore) CountCompleted(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.clients {
		if c.IsComplete {
			n++
		}
	}
	return n, nil
}

func (s *memStore) CountMessages(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.messages)), nil
}

func (s *memStore) RecordIntegrationEvent(_ context.Context, ev IntegrationEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev.ID = int64(len(s.events) + 1)
	s.events = append(s.events, ev)
	return ev.ID, nil
}

func (s *memStore) ListIntegrationEvents(_ context.Context, clientID, kind string) ([]IntegrationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []IntegrationEvent
	for _, ev := range s.events {
		if ev.ClientID == clientID && (kind == "" || ev.Kind == kind) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *memStore) UpdateIntegrationEventStatus(_ context.Context, id int64, status EventStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].ID == id {
			s.events[i].Status = status
			return nil
		}
	}
	return errors.New("not found")
}

func (s *memStore) Ping(context.Context) error { return s.pingErr }

func (s *memStore) get(id string) (ClientRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.clients[id]
	return rec, ok
}

type llmReply struct {
	text string
	err  error
}

// fakeLLM answers from a queue and records every request. An exhausted queue
// answers with a neutral question.
type fakeLLM struct {
	mu       sync.Mutex
	queue    []llmReply
	requests []ai.Request
}

func (f *fakeLLM) push(text string) *fakeLLM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, llmReply{text: text})
	return f
}

func (f *fakeLLM) fail(err error) *fakeLLM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, llmReply{err: err})
	return f
}

func (f *fakeLLM) Complete(_ context.Context, req ai.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.queue) == 0 {
		return "Расскажите, пожалуйста, подробнее?", nil
	}
	r := f.queue[0]
	f.queue = f.queue[1:]
	return r.text, r.err
}

func (f *fakeLLM) calls() []ai.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ai.Request(nil), f.requests...)
}

type alwaysFail struct{}

func (alwaysFail) Complete(context.Context, ai.Request) (string, error) {
	return "", &ai.ProviderError{Op: "chat completion", Err: errors.New("connection refused")}
}
