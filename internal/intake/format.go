package intake

import (
	"strconv"
	"unicode/utf8"
)

const previewLength = 200

// FormatClient renders a record for operators: a transcript preview while the
// dialogue is running, the collected fields once it is complete.
func FormatClient(rec ClientRecord) map[string]string {
	if !rec.IsComplete {
		return map[string]string{
			"message_count":  strconv.Itoa(rec.MessageCount),
			"status":         "В процессе",
			"dialog_preview": preview(rec.RawTranscript, previewLength),
		}
	}

	d := rec.ExtractedData
	return map[string]string{
		"name":             Text(d, "name", "❌ не указано"),
		"phone":            Text(d, "phone", "❌ не указан"),
		"residents_info":   Text(d, "residents_info", "❌ не указано"),
		"children_status":  TriState(d, "has_children", "✅ есть", "❌ нет", "❓ не указано"),
		"pets_status":      TriState(d, "has_pets", "✅ есть", "❌ нет", "❓ не указано"),
		"rental_period":    Text(d, "rental_period", "❌ не указан"),
		"move_in_deadline": Text(d, "move_in_deadline", "❌ не указана"),
		"message_count":    strconv.Itoa(rec.MessageCount),
		"status":           "✅ Завершена",
	}
}

// Text returns the field as a string, or fallback when it is absent, null or empty.
func Text(d map[string]any, key, fallback string) string {
	v, ok := d[key]
	if !ok || v == nil {
		return fallback
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return fallback
		}
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "да"
		}
		return "нет"
	default:
		return fallback
	}
}

// TriState maps a boolean field to yes/no and anything else to unknown.
func TriState(d map[string]any, key, yes, no, unknown string) string {
	b, ok := d[key].(bool)
	switch {
	case !ok:
		return unknown
	case b:
		return yes
	default:
		return no
	}
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
