package telegram

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Vovarama1992/rental-intake-bot/internal/intake"
)

const (
	SourceTelegram = "telegram"
	leadsLimit     = 10
)

// API — то, что бот использует от Bot API.
type API interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Engine is the dialogue engine surface the bot drives.
type Engine interface {
	Chat(ctx context.Context, clientID, text string) (intake.TurnResult, error)
	Reset(ctx context.Context, clientID string) error
	GetClient(ctx context.Context, clientID string) (intake.ClientRecord, error)
	ListAllClients(ctx context.Context) ([]intake.ClientRecord, error)
	Stats(ctx context.Context) intake.Stats
}

type Bot struct {
	api         API
	engine      Engine
	operators   map[int64]struct{}
	pollTimeout time.Duration
	retryDelay  time.Duration
	offset      int64
}

func NewBot(api API, engine Engine, operators []int64, pollTimeout time.Duration) *Bot {
	ops := make(map[int64]struct{}, len(operators))
	for _, id := range operators {
		ops[id] = struct{}{}
	}
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	return &Bot{
		api:         api,
		engine:      engine,
		operators:   ops,
		pollTimeout: pollTimeout,
		retryDelay:  5 * time.Second,
	}
}

// ClientID maps a Telegram user to a dialogue id.
func ClientID(userID int64) string {
	return SourceTelegram + ":" + strconv.FormatInt(userID, 10)
}

// Run polls until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	log.Info().Str("component", "telegram").Int("operators", len(b.operators)).Msg("telegram: polling started")
	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := b.api.GetUpdates(ctx, b.offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Str("component", "telegram").Msg("telegram: getUpdates failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(b.retryDelay):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= b.offset {
				b.offset = u.UpdateID + 1
			}
			b.Handle(ctx, u)
		}
	}
}

// Handle processes one update. Failures are answered and logged, never returned.
func (b *Bot) Handle(ctx context.Context, u Update) {
	m := u.Message
	if m == nil || m.From == nil {
		return
	}

	text := strings.TrimSpace(m.Text)
	if cmd, ok := command(text); ok {
		b.reply(ctx, m.Chat.ID, b.handleCommand(ctx, m.From, cmd))
		return
	}
	if text == "" {
		b.reply(ctx, m.Chat.ID, "Пока я понимаю только текстовые сообщения 🙂")
		return
	}
	b.reply(ctx, m.Chat.ID, b.handleText(ctx, m.From, text))
}

func (b *Bot) handleCommand(ctx context.Context, from *User, cmd string) string {
	clientID := ClientID(from.ID)
	switch cmd {
	case "start":
		return b.welcome(from)
	case "help":
		return b.help(from.ID)
	case "reset":
		if err := b.engine.Reset(ctx, clientID); err != nil {
			log.Error().Err(err).Str("client_id", clientID).Msg("telegram: reset failed")
			return "❌ Не удалось сбросить диалог, попробуйте позже."
		}
		return "🔄 Диалог сброшен. Можете начать заново."
	case "info":
		rec, err := b.engine.GetClient(ctx, clientID)
		if err != nil {
			log.Error().Err(err).Str("client_id", clientID).Msg("telegram: info failed")
			return intake.DefaultTechnicalErrorMessage
		}
		return renderInfo(rec)
	case "stats":
		if !b.isOperator(from.ID) {
			return "❌ Доступ запрещен"
		}
		return renderStats(b.engine.Stats(ctx))
	case "leads":
		if !b.isOperator(from.ID) {
			return "❌ Доступ запрещен"
		}
		clients, err := b.engine.ListAllClients(ctx)
		if err != nil {
			log.Error().Err(err).Msg("telegram: list clients failed")
			return "❌ Ошибка получения заявок"
		}
		return renderLeads(clients)
	default:
		return "Неизвестная команда. /help — список команд."
	}
}

func (b *Bot) handleText(ctx context.Context, from *User, text string) string {
	clientID := ClientID(from.ID)
	ctx = intake.WithOrigin(ctx, intake.Origin{
		Source:      SourceTelegram,
		DisplayName: displayName(from),
	})

	res, err := b.engine.Chat(ctx, clientID, text)
	if err != nil {
		log.Error().Err(err).Str("client_id", clientID).Msg("telegram: chat failed")
		return intake.DefaultTechnicalErrorMessage
	}

	out := html.EscapeString(res.Reply)
	if res.Completed {
		out += "\n\n" + renderSummary(res.ExtractedData)
	}
	return out
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.api.SendMessage(ctx, chatID, text); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("telegram: send failed")
	}
}

func (b *Bot) isOperator(userID int64) bool {
	_, ok := b.operators[userID]
	return ok
}

func (b *Bot) welcome(from *User) string {
	var s strings.Builder
	fmt.Fprintf(&s, "👋 <b>Здравствуйте, %s!</b>\n\n", html.EscapeString(displayName(from)))
	s.WriteString("Я помогу оформить заявку на аренду квартиры. Просто напишите сообщение, и мы начнём.\n\n")
	s.WriteString(b.help(from.ID))
	return s.String()
}

func (b *Bot) help(userID int64) string {
	var s strings.Builder
	s.WriteString("<b>Команды:</b>\n")
	s.WriteString("/reset — начать диалог заново\n")
	s.WriteString("/info — текущая заявка\n")
	s.WriteString("/help — эта справка")
	if b.isOperator(userID) {
		s.WriteString("\n\n<b>Для менеджеров:</b>\n")
		s.WriteString("/stats — статистика системы\n")
		s.WriteString("/leads — последние заявки")
	}
	return s.String()
}

// command extracts "reset" from "/reset" or "/reset@SomeBot args".
func command(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name := strings.Fields(text[1:])
	if len(name) == 0 {
		return "", false
	}
	cmd := name[0]
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), true
}

func displayName(u *User) string {
	switch {
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return "@" + u.Username
	default:
		return strconv.FormatInt(u.ID, 10)
	}
}

func renderInfo(rec intake.ClientRecord) string {
	f := intake.FormatClient(rec)
	var s strings.Builder
	s.WriteString("📄 <b>Ваша заявка</b>\n\n")
	if !rec.IsComplete {
		fmt.Fprintf(&s, "📊 <b>Статус:</b> %s\n", f["status"])
		fmt.Fprintf(&s, "💬 <b>Сообщений:</b> %s\n", f["message_count"])
		if p := strings.TrimSpace(f["dialog_preview"]); p != "" {
			fmt.Fprintf(&s, "\n<i>%s</i>", html.EscapeString(p))
		}
		return s.String()
	}
	fmt.Fprintf(&s, "👤 <b>Имя:</b> %s\n", html.EscapeString(f["name"]))
	fmt.Fprintf(&s, "📱 <b>Телефон:</b> %s\n", html.EscapeString(f["phone"]))
	fmt.Fprintf(&s, "🏠 <b>Жильцы:</b> %s\n", html.EscapeString(f["residents_info"]))
	fmt.Fprintf(&s, "👶 <b>Дети:</b> %s\n", f["children_status"])
	fmt.Fprintf(&s, "🐕 <b>Животные:</b> %s\n", f["pets_status"])
	fmt.Fprintf(&s, "📅 <b>Срок аренды:</b> %s\n", html.EscapeString(f["rental_period"]))
	fmt.Fprintf(&s, "🗓️ <b>Дата заезда:</b> %s\n", html.EscapeString(f["move_in_deadline"]))
	fmt.Fprintf(&s, "📊 <b>Статус:</b> %s", f["status"])
	return s.String()
}

func renderSummary(d map[string]any) string {
	var s strings.Builder
	s.WriteString("✅ <b>Заявка принята!</b>\n")
	fmt.Fprintf(&s, "👤 %s\n", html.EscapeString(intake.Text(d, "name", "имя не указано")))
	fmt.Fprintf(&s, "📱 %s", html.EscapeString(intake.Text(d, "phone", "телефон не указан")))
	return s.String()
}

func renderStats(st intake.Stats) string {
	var s strings.Builder
	s.WriteString("📊 <b>СТАТИСТИКА СИСТЕМЫ</b>\n\n")
	fmt.Fprintf(&s, "👥 Всего клиентов: %d\n", st.ClientCount)
	fmt.Fprintf(&s, "✅ Завершенных заявок: %d\n", st.CompletionCount)
	fmt.Fprintf(&s, "💬 Всего сообщений: %d\n", st.MessageCount)
	fmt.Fprintf(&s, "🗣 Активных диалогов: %d\n", st.ActiveConversationCount)
	fmt.Fprintf(&s, "⚠️ Ошибок провайдера: %d\n", st.ProviderErrors)
	fmt.Fprintf(&s, "⏰ Время работы: %.1f ч", st.UptimeHours)
	return s.String()
}

func renderLeads(clients []intake.ClientRecord) string {
	var done []intake.ClientRecord
	for _, c := range clients {
		if c.IsComplete {
			done = append(done, c)
		}
	}
	if len(done) == 0 {
		return "📭 Пока нет завершенных заявок"
	}

	sort.SliceStable(done, func(i, j int) bool {
		return completedAt(done[i]).After(completedAt(done[j]))
	})
	total := len(done)
	if len(done) > leadsLimit {
		done = done[:leadsLimit]
	}

	var s strings.Builder
	fmt.Fprintf(&s, "📋 <b>ПОСЛЕДНИЕ ЗАЯВКИ (%d из %d)</b>\n", len(done), total)
	for i, c := range done {
		fmt.Fprintf(&s, "\n<b>%d.</b> %s\n", i+1, html.EscapeString(intake.Text(c.ExtractedData, "name", "Не указано")))
		fmt.Fprintf(&s, "📱 %s\n", html.EscapeString(intake.Text(c.ExtractedData, "phone", "Не указан")))
		fmt.Fprintf(&s, "⏰ %s\n", completedAt(c).Format("02.01 15:04"))
		fmt.Fprintf(&s, "🆔 <code>%s</code>\n", html.EscapeString(c.ClientID))
	}
	return s.String()
}

func completedAt(c intake.ClientRecord) time.Time {
	if c.CompletedAt != nil {
		return *c.CompletedAt
	}
	return c.UpdatedAt
}
