package avito

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.avito.ru"

var ErrRateLimited = errors.New("avito: rate limit exceeded")

type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("avito: api error %d: %s", e.Status, e.Message)
}

const (
	DirectionIn  = "in"
	DirectionOut = "out"

	TypeText = "text"
)

// Chat — переписка по одному объявлению.
type Chat struct {
	ID           string
	ItemID       int64
	ItemTitle    string
	ClientUserID int64
	ClientName   string
	Created      int64
	Updated      int64
}

type Message struct {
	ID        string
	ChatID    string
	AuthorID  int64
	Type      string
	Direction string
	Text      string
	Created   int64
	IsRead    bool
}

// Body is the text of a text message and "[type]" for anything else.
func (m Message) Body() string {
	if m.Type == TypeText || m.Type == "" {
		return m.Text
	}
	return "[" + m.Type + "]"
}

// Client — Avito Messenger API, не чаще одного запроса в секунду.
type Client struct {
	baseURL string
	token   string
	userID  int64
	client  *http.Client
	limiter *rate.Limiter
}

func NewClient(token string, userID int64, baseURL string) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("avito: access token is empty")
	}
	if userID == 0 {
		return nil, errors.New("avito: user id is empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		userID:  userID,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}, nil
}

// WithLimiter replaces the request pacing; tests use rate.Inf.
func (c *Client) WithLimiter(l *rate.Limiter) *Client {
	c.limiter = l
	return c
}

type rawUser struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type rawMessage struct {
	ID        string `json:"id"`
	AuthorID  int64  `json:"author_id"`
	Type      string `json:"type"`
	Direction string `json:"direction"`
	Created   int64  `json:"created"`
	IsRead    bool   `json:"is_read"`
	Content   struct {
		Text string `json:"text"`
	} `json:"content"`
}

type rawChat struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
	Updated int64  `json:"updated"`
	Context struct {
		Value struct {
			ID    int64  `json:"id"`
			Title string `json:"title"`
		} `json:"value"`
	} `json:"context"`
	Users []rawUser `json:"users"`
}

func (c *Client) ListChats(ctx context.Context, unreadOnly bool, limit int) ([]Chat, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("unread_only", strconv.FormatBool(unreadOnly))

	var resp struct {
		Chats []rawChat `json:"chats"`
	}
	if err := c.do(ctx, http.MethodGet, c.account("/messenger/v2", "/chats")+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	out := make([]Chat, 0, len(resp.Chats))
	for _, rc := range resp.Chats {
		chat := Chat{
			ID:         rc.ID,
			ItemID:     rc.Context.Value.ID,
			ItemTitle:  rc.Context.Value.Title,
			ClientName: "Unknown",
			Created:    rc.Created,
			Updated:    rc.Updated,
		}
		for _, u := range rc.Users {
			if u.ID != c.userID {
				chat.ClientUserID = u.ID
				chat.ClientName = u.Name
				break
			}
		}
		out = append(out, chat)
	}
	return out, nil
}

// ListMessages accepts both a bare array and {"messages": [...]}.
func (c *Client) ListMessages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	var raw json.RawMessage
	path := c.account("/messenger/v3", "/chats/"+url.PathEscape(chatID)+"/messages/") + "?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	var items []rawMessage
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, errors.Wrap(err, "avito: decode messages")
		}
	} else {
		var wrapped struct {
			Messages []rawMessage `json:"messages"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, errors.Wrap(err, "avito: decode messages")
		}
		items = wrapped.Messages
	}

	out := make([]Message, 0, len(items))
	for _, m := range items {
		msg := Message{
			ID:        m.ID,
			ChatID:    chatID,
			AuthorID:  m.AuthorID,
			Type:      m.Type,
			Direction: m.Direction,
			Text:      m.Content.Text,
			Created:   m.Created,
			IsRead:    m.IsRead,
		}
		if msg.Type == "" {
			msg.Type = TypeText
		}
		if msg.Direction == "" {
			msg.Direction = DirectionIn
		}
		out = append(out, msg)
	}
	return out, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	body := map[string]any{
		"message": map[string]any{"text": text},
		"type":    TypeText,
	}
	return c.do(ctx, http.MethodPost, c.account("/messenger/v1", "/chats/"+url.PathEscape(chatID)+"/messages"), body, nil)
}

func (c *Client) MarkRead(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodPost, c.account("/messenger/v1", "/chats/"+url.PathEscape(chatID)+"/read"), nil, nil)
}

func (c *Client) account(version, suffix string) string {
	return version + "/accounts/" + strconv.FormatInt(c.userID, 10) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "avito: rate limiter")
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "avito: encode request")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "avito: build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "avito: %s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "avito: read response")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 300:
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}

	if result == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(raw, result), "avito: decode response")
}

func errorMessage(raw []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "Unknown error"
	}
	return s
}
