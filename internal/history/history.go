package history

import (
	"context"
	"sync"
)

type Role string

const (
	RoleClient    Role = "client"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in the context window sent to the model.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Buffer keeps a bounded sliding window of turns per client.
// Implementations drop the oldest turns once the window exceeds its limit.
type Buffer interface {
	Append(ctx context.Context, clientID string, turn Turn) error
	Window(ctx context.Context, clientID string) ([]Turn, error)
	Replace(ctx context.Context, clientID string, turns []Turn) error
	Clear(ctx context.Context, clientID string) error
	Active(ctx context.Context) (int, error)
}

// Trim returns the last max turns. max <= 0 means no limit.
func Trim(turns []Turn, max int) []Turn {
	if max <= 0 || len(turns) <= max {
		return turns
	}
	out := make([]Turn, max)
	copy(out, turns[len(turns)-max:])
	return out
}

// MemoryBuffer is the default process-local window.
type MemoryBuffer struct {
	mu      sync.RWMutex
	max     int
	windows map[string][]Turn
}

func NewMemoryBuffer(max int) *MemoryBuffer {
	return &MemoryBuffer{
		max:     max,
		windows: make(map[string][]Turn),
	}
}

func (b *MemoryBuffer) Append(_ context.Context, clientID string, turn Turn) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.windows[clientID] = Trim(append(b.windows[clientID], turn), b.max)
	return nil
}

func (b *MemoryBuffer) Window(_ context.Context, clientID string) ([]Turn, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	w := b.windows[clientID]
	out := make([]Turn, len(w))
	copy(out, w)
	return out, nil
}

func (b *MemoryBuffer) Replace(_ context.Context, clientID string, turns []Turn) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(turns) == 0 {
		delete(b.windows, clientID)
		return nil
	}
	w := make([]Turn, len(turns))
	copy(w, turns)
	b.windows[clientID] = Trim(w, b.max)
	return nil
}

func (b *MemoryBuffer) Clear(_ context.Context, clientID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.windows, clientID)
	return nil
}

func (b *MemoryBuffer) Active(_ context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.windows), nil
}
