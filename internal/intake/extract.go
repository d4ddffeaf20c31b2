package intake

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

var ErrExtractionParse = errors.New("intake: no JSON object in extraction response")

const dialogHistoryPlaceholder = "{dialog_history}"

func BuildExtractionPrompt(template, transcript string) string {
	if !strings.Contains(template, dialogHistoryPlaceholder) {
		return template + "\n\n" + transcript
	}
	return strings.ReplaceAll(template, dialogHistoryPlaceholder, transcript)
}

// ParseExtraction decodes the span from the first '{' to the last '}' of the
// model output. Prose around the object is tolerated, nothing else is.
func ParseExtraction(text string) (map[string]any, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, ErrExtractionParse
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, errors.Wrap(ErrExtractionParse, err.Error())
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
