// Package catalog turns raw upstream list pages into typed, deduplicated
// shows and episodes.
package catalog

import (
	"bytes"
	"encoding/json"
	"strings"
)

// UnknownCategory is the key used for shows without a usable category
const UnknownCategory = "unknown"

// Show is one catalog entry. Raw keeps the upstream object for export.
type Show struct {
	ID          string
	Name        string
	Category    *string
	CategoryRaw *string
	Img         *string
	Link        *string
	Date        *string

	// CategoryText is category as text, numbers included; it orders the
	// flat show export only.
	CategoryText *string

	Raw json.RawMessage
}

// Episode belongs to exactly one show. Raw keeps the upstream object for export.
type Episode struct {
	ID   string
	Name *string
	Date *string
	Link *string

	Raw json.RawMessage
}

// CategoryKey returns the grouping key: the category text, or "unknown" when
// it is missing, blank or not a string.
func (s Show) CategoryKey() string {
	if s.Category == nil || strings.TrimSpace(*s.Category) == "" {
		return UnknownCategory
	}
	return *s.Category
}

// exportCategory is the category sort key of the flat show export
func (s Show) exportCategory() string {
	if s.CategoryText != nil {
		return *s.CategoryText
	}
	return deref(s.Category)
}

// Title returns the episode name, empty when absent
func (e Episode) Title() string {
	return deref(e.Name)
}

// DateText returns the episode date, empty when absent
func (e Episode) DateText() string {
	return deref(e.Date)
}

// DecodeShow converts one raw catalog item. Fields of an unexpected type decode as absent.
func DecodeShow(raw json.RawMessage) Show {
	fields := decodeObject(raw)
	return Show{
		ID:           coerceID(fields["id"]),
		Name:         coerceID(fields["name"]),
		Category:     stringField(fields["category"]),
		CategoryRaw:  stringField(fields["categoryRaw"]),
		CategoryText: textField(fields["category"]),
		Img:          stringField(fields["img"]),
		Link:         stringField(fields["link"]),
		Date:         textField(fields["date"]),
		Raw:          raw,
	}
}

// DecodeEpisode converts one raw episode item
func DecodeEpisode(raw json.RawMessage) Episode {
	fields := decodeObject(raw)
	return Episode{
		ID:   coerceID(fields["id"]),
		Name: textField(fields["name"]),
		Date: textField(fields["date"]),
		Link: stringField(fields["link"]),
		Raw:  raw,
	}
}

// DecodeEpisodes converts a list of raw episode items
func DecodeEpisodes(items []json.RawMessage) []Episode {
	out := make([]Episode, 0, len(items))
	for _, item := range items {
		out = append(out, DecodeEpisode(item))
	}
	return out
}

func decodeObject(raw json.RawMessage) map[string]json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	return fields
}

// coerceID renders strings as-is and numbers as their literal text.
// Falsy values (null, "", 0, false) and containers coerce to "".
func coerceID(raw json.RawMessage) string {
	v := textField(raw)
	if v == nil {
		return ""
	}
	return *v
}

// textField accepts strings and non-zero numbers
func textField(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		return &s
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil
		}
		if f, err := n.Float64(); err == nil && f == 0 {
			return nil
		}
		s := n.String()
		return &s
	}
	return nil
}

// stringField accepts strings only
func stringField(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
