package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrParse is returned when the oracle output holds no decodable JSON object.
var ErrParse = errors.New("unparseable oracle output")

// ExtractJSON returns the substring from the first '{' up to and including
// the first '}' after it. Nested objects are not supported: the cut happens
// at the first closing brace.
func ExtractJSON(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("%w: no opening brace", ErrParse)
	}
	end := strings.IndexByte(s[start:], '}')
	if end < 0 {
		return "", fmt.Errorf("%w: no closing brace", ErrParse)
	}
	return s[start : start+end+1], nil
}

// decodePayload cuts the JSON object out of raw and decodes it into v.
// Field names match case-insensitively.
func decodePayload(raw string, v any) error {
	payload, err := ExtractJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("%w: %w", ErrParse, err)
	}
	return nil
}

// flexString accepts a JSON string, null, or an array of strings. Arrays
// are joined with spaces, since small models like to list keywords.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var parts []string
	if err := json.Unmarshal(b, &parts); err != nil {
		return fmt.Errorf("expected string or string array, got %s", b)
	}
	*f = flexString(strings.Join(parts, " "))
	return nil
}

// extraction mirrors the object requested by QueryTranscript.
type extraction struct {
	PodcastName flexString `json:"PodcastName"`
	Keywords    flexString `json:"Keywords"`
	Date        flexString `json:"Date"`
}

// dateExtraction mirrors the object requested by DateTranscript.
type dateExtraction struct {
	StartDate flexString `json:"startDate"`
	EndDate   flexString `json:"endDate"`
}
