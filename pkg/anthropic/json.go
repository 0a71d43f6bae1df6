package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// DecodeJSON extracts the first JSON object or array from model output,
// tolerating code fences and surrounding prose, and decodes it into v.
func DecodeJSON(text string, v any) error {
	raw := extractJSON(text)
	if raw == "" {
		return eris.New("anthropic: no json in response")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return eris.Wrap(err, "anthropic: decode json")
	}
	return nil
}

func extractJSON(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end < start {
		return ""
	}
	return text[start : end+1]
}
