package catalog

import (
	"encoding/json"

	"github.com/glefebvre/vodharvest/internal/errors"
)

type pageEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type pageData struct {
	Data json.RawMessage `json:"data"`
}

// ExtractItems returns the object items of a show list page.
// The page must look like {"data": {"data": [...]}}; anything else is a
// MalformedResponse carrying the page. Non-object items are skipped.
func ExtractItems(envelope json.RawMessage) ([]json.RawMessage, error) {
	list, ok := listData(envelope)
	if !ok {
		return nil, errors.MalformedResponse("Unexpected /vod response shape", envelope)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(list.Data, &items); err != nil || !isArray(list.Data) {
		return nil, errors.MalformedResponse("Unexpected /vod.data.data shape", envelope)
	}

	return objectsOnly(items), nil
}

// EpisodeItems returns the object items of an episode list page. ok is false
// when the page has no object "data", which ends the show's episode walk
// without an error. A missing or non-list item array yields no items.
func EpisodeItems(envelope json.RawMessage) (items []json.RawMessage, ok bool) {
	list, ok := listData(envelope)
	if !ok {
		return nil, false
	}

	if !isArray(list.Data) {
		return nil, true
	}
	if err := json.Unmarshal(list.Data, &items); err != nil {
		return nil, true
	}
	return objectsOnly(items), true
}

func listData(envelope json.RawMessage) (pageData, bool) {
	var env pageEnvelope
	if err := json.Unmarshal(envelope, &env); err != nil || !isObject(env.Data) {
		return pageData{}, false
	}
	var data pageData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return pageData{}, false
	}
	return data, true
}

func objectsOnly(items []json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		if isObject(item) {
			out = append(out, item)
		}
	}
	return out
}

func isObject(raw json.RawMessage) bool {
	return firstByte(raw) == '{'
}

func isArray(raw json.RawMessage) bool {
	return firstByte(raw) == '['
}

func firstByte(raw json.RawMessage) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b
		}
	}
	return 0
}
