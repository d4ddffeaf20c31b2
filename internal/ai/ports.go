package ai

import (
	"context"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Completer — внешний интеллект, не знает ни про клиентов, ни про БД
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Message — универсальный формат диалога для AI
type Message struct {
	Role string // "user" | "assistant" | "system"
	Text string
}

// Request is one completion call. System goes first, Messages follow in order.
type Request struct {
	System      string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// ProviderError wraps any failure of the completion backend: transport, timeout,
// non-2xx status or a response without usable choices.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return "ai: " + e.Op + " failed"
	}
	return fmt.Sprintf("ai: %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
