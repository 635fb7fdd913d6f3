package domain

import (
	"time"

	json "github.com/goccy/go-json"
)

// MergeTimestamp stamps object payloads with the server arrival time in
// milliseconds before they are relayed, retained, or delivered.
// Non-object payloads pass through untouched.
func MergeTimestamp(payload json.RawMessage, at time.Time) json.RawMessage {
	var m map[string]interface{}
	if err := json.Unmarshal(payload, &m); err != nil || m == nil {
		return payload
	}
	m["timestamp"] = at.UnixMilli()
	data, err := json.Marshal(m)
	if err != nil {
		return payload
	}
	return data
}
