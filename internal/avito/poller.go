package avito

import (
	"context"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/Vovarama1992/rental-intake-bot/internal/intake"
)

const (
	SourceAvito = "avito"

	chatsPerPoll    = 50
	messagesPerChat = 20
	maxProcessedIDs = 10000

	firstMessagePrefix = "[Клиент написал по объявлению квартиры] "
)

type API interface {
	ListChats(ctx context.Context, unreadOnly bool, limit int) ([]Chat, error)
	ListMessages(ctx context.Context, chatID string, limit int) ([]Message, error)
	SendMessage(ctx context.Context, chatID, text string) error
	MarkRead(ctx context.Context, chatID string) error
}

type Engine interface {
	Chat(ctx context.Context, clientID, text string) (intake.TurnResult, error)
	GetClient(ctx context.Context, clientID string) (intake.ClientRecord, error)
}

type PollerStats struct {
	ChatsProcessed    int64 `json:"chats_processed"`
	MessagesProcessed int64 `json:"messages_processed"`
	Completions       int64 `json:"completions"`
	Errors            int64 `json:"errors"`
}

// Poller забирает непрочитанные чаты Avito и прогоняет входящие сообщения
// через движок диалога. Run and Poll are not safe for concurrent use.
type Poller struct {
	api      API
	engine   Engine
	interval time.Duration
	backoff  time.Duration

	processed map[string]struct{}

	chats       atomic.Int64
	messages    atomic.Int64
	completions atomic.Int64
	errs        atomic.Int64
}

func NewPoller(api API, engine Engine, interval, backoff time.Duration) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if backoff <= 0 {
		backoff = 60 * time.Second
	}
	return &Poller{
		api:       api,
		engine:    engine,
		interval:  interval,
		backoff:   backoff,
		processed: make(map[string]struct{}),
	}
}

// ClientID maps an Avito conversation to a dialogue id: one dialogue per
// client per listing.
func ClientID(clientUserID, itemID int64) string {
	return SourceAvito + ":" + strconv.FormatInt(clientUserID, 10) + ":" + strconv.FormatInt(itemID, 10)
}

func (p *Poller) Run(ctx context.Context) error {
	log.Info().Str("component", "avito").Dur("interval", p.interval).Msg("avito: polling started")
	for {
		wait := p.interval
		if err := p.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Str("component", "avito").Dur("retry_in", p.backoff).Msg("avito: poll failed")
			wait = p.backoff
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// Poll runs one cycle. Only a failure to list chats fails the cycle; a broken
// chat is logged and skipped.
func (p *Poller) Poll(ctx context.Context) error {
	chats, err := p.api.ListChats(ctx, true, chatsPerPoll)
	if err != nil {
		p.errs.Add(1)
		return errors.Wrap(err, "avito: list chats")
	}

	for _, chat := range chats {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := p.processChat(ctx, chat); err != nil {
			p.errs.Add(1)
			log.Error().Err(err).Str("component", "avito").Str("chat_id", chat.ID).Msg("avito: chat failed")
			continue
		}
		p.chats.Add(1)
	}
	return nil
}

func (p *Poller) processChat(ctx context.Context, chat Chat) error {
	msgs, err := p.api.ListMessages(ctx, chat.ID, messagesPerChat)
	if err != nil {
		return errors.Wrap(err, "list messages")
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Created < msgs[j].Created })

	for _, m := range msgs {
		if m.Direction != DirectionIn || m.IsRead {
			continue
		}
		if _, done := p.processed[m.ID]; done {
			continue
		}
		if err := p.processMessage(ctx, chat, m); err != nil {
			return errors.Wrapf(err, "message %s", m.ID)
		}
	}
	return nil
}

func (p *Poller) processMessage(ctx context.Context, chat Chat, m Message) error {
	clientID := ClientID(chat.ClientUserID, chat.ItemID)
	logger := log.With().Str("component", "avito").Str("client_id", clientID).Str("chat_id", chat.ID).Logger()

	text := m.Body()
	rec, err := p.engine.GetClient(ctx, clientID)
	if err != nil {
		return err
	}
	if rec.MessageCount == 0 {
		text = firstMessagePrefix + text
	}

	ctx = intake.WithOrigin(ctx, intake.Origin{
		Source:          SourceAvito,
		DisplayName:     chat.ClientName,
		ExternalItemRef: strconv.FormatInt(chat.ItemID, 10),
	})
	res, err := p.engine.Chat(ctx, clientID, text)
	if err != nil {
		return err
	}

	if err := p.api.SendMessage(ctx, chat.ID, res.Reply); err != nil {
		return errors.Wrap(err, "send reply")
	}
	if err := p.api.MarkRead(ctx, chat.ID); err != nil {
		logger.Warn().Err(err).Msg("avito: mark read failed")
	}

	p.remember(m.ID)
	p.messages.Add(1)
	if res.Completed {
		p.completions.Add(1)
	}
	logger.Info().Str("client_name", chat.ClientName).Bool("completed", res.Completed).Msg("avito: message processed")
	return nil
}

// remember bounds the dedup set; read flags on Avito's side cover what is forgotten.
func (p *Poller) remember(id string) {
	if len(p.processed) >= maxProcessedIDs {
		p.processed = make(map[string]struct{})
	}
	p.processed[id] = struct{}{}
}

func (p *Poller) Stats() PollerStats {
	return PollerStats{
		ChatsProcessed:    p.chats.Load(),
		MessagesProcessed: p.messages.Load(),
		Completions:       p.completions.Load(),
		Errors:            p.errs.Load(),
	}
}
