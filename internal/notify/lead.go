package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/Vovarama1992/rental-intake-bot/internal/intake"
)

// Lead — заявка, которая уходит операторам после завершения диалога.
type Lead struct {
	Source          string         `json:"source"`
	ClientID        string         `json:"client_id"`
	DisplayName     string         `json:"display_name,omitempty"`
	ExternalItemRef string         `json:"external_item_ref,omitempty"`
	ExtractedData   map[string]any `json:"extracted_data"`
	CompletedAt     string         `json:"completed_at"`
}

// LeadFrom builds the payload from a completed record and the origin carried
// by ctx. Without an origin the source is the client id prefix.
func LeadFrom(ctx context.Context, rec intake.ClientRecord) Lead {
	lead := Lead{
		ClientID:      rec.ClientID,
		ExtractedData: rec.ExtractedData,
	}
	if lead.ExtractedData == nil {
		lead.ExtractedData = map[string]any{}
	}

	completed := rec.UpdatedAt
	if rec.CompletedAt != nil {
		completed = *rec.CompletedAt
	}
	lead.CompletedAt = completed.Format(time.RFC3339)

	if o, ok := intake.OriginFrom(ctx); ok {
		lead.Source = o.Source
		lead.DisplayName = o.DisplayName
		lead.ExternalItemRef = o.ExternalItemRef
	}
	if lead.Source == "" {
		lead.Source = "api"
		if i := strings.IndexByte(rec.ClientID, ':'); i > 0 {
			lead.Source = rec.ClientID[:i]
		}
	}
	return lead
}

func (l Lead) payload() map[string]any {
	return map[string]any{
		"source":            l.Source,
		"client_id":         l.ClientID,
		"display_name":      l.DisplayName,
		"external_item_ref": l.ExternalItemRef,
		"extracted_data":    l.ExtractedData,
		"completed_at":      l.CompletedAt,
	}
}

// Format renders the operator notification in Telegram HTML.
func Format(l Lead) string {
	d := l.ExtractedData
	field := func(key, fallback string) string {
		return html.EscapeString(intake.Text(d, key, fallback))
	}

	var b strings.Builder
	b.WriteString("🎉 <b>НОВАЯ ЗАЯВКА!</b>\n\n")
	fmt.Fprintf(&b, "👤 <b>Клиент:</b> %s\n", html.EscapeString(orDefault(l.DisplayName, "Не указано")))
	fmt.Fprintf(&b, "🔗 <b>Источник:</b> %s\n", html.EscapeString(l.Source))
	if l.ExternalItemRef != "" {
		fmt.Fprintf(&b, "🏠 <b>Объявление:</b> %s\n", html.EscapeString(l.ExternalItemRef))
	}
	fmt.Fprintf(&b, "🆔 <b>Диалог:</b> <code>%s</code>\n\n", html.EscapeString(l.ClientID))

	b.WriteString("📋 <b>СОБРАННЫЕ ДАННЫЕ:</b>\n")
	fmt.Fprintf(&b, "👤 <b>Имя:</b> %s\n", field("name", "❌ не указано"))
	fmt.Fprintf(&b, "📱 <b>Телефон:</b> %s\n", field("phone", "❌ не указан"))
	fmt.Fprintf(&b, "🏠 <b>Состав семьи:</b> %s\n", field("residents_info", "❌ не указано"))
	fmt.Fprintf(&b, "👥 <b>Количество жильцов:</b> %s\n", field("residents_count", "❌ не указано"))
	fmt.Fprintf(&b, "👶 <b>Дети:</b> %s\n", intake.TriState(d, "has_children", "✅ есть", "❌ нет", "❓ не указано"))
	fmt.Fprintf(&b, "🐕 <b>Животные:</b> %s\n", intake.TriState(d, "has_pets", "✅ есть", "❌ нет", "❓ не указано"))
	if info := intake.Text(d, "pets_info", ""); info != "" {
		fmt.Fprintf(&b, "🐾 <b>Какие животные:</b> %s\n", html.EscapeString(info))
	}
	fmt.Fprintf(&b, "📅 <b>Срок аренды:</b> %s\n", field("rental_period", "❌ не указан"))
	fmt.Fprintf(&b, "🗓️ <b>Дата заезда:</b> %s\n\n", field("move_in_deadline", "❌ не указана"))

	fmt.Fprintf(&b, "⏰ <b>Завершено:</b> %s", html.EscapeString(truncate(l.CompletedAt, 19)))
	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
