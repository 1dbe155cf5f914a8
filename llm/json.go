package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrNoJSON = errors.New("llm: no json object in response")

var codeFence = regexp.MustCompile("```(?:json|JSON)?")

// ExtractJSON returns the outermost {...} block of text, ignoring markdown
// code fences and any chatter around it.
func ExtractJSON(text string) (string, bool) {
	cleaned := strings.TrimSpace(codeFence.ReplaceAllString(text, ""))

	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start < 0 || end <= start {
		return "", false
	}

	return cleaned[start : end+1], true
}

// DecodeJSON extracts the JSON object in text and unmarshals it into v.
func DecodeJSON(text string, v any) error {
	raw, ok := ExtractJSON(text)
	if !ok {
		return ErrNoJSON
	}

	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("llm: decode json: %w", err)
	}

	return nil
}
