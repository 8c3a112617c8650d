package models

import (
	"encoding/json"
	"time"
)

// Verdict is the outcome of classifying one post text.
type Verdict struct {
	IsCommission bool    `json:"is_commission"`
	Confidence   float64 `json:"confidence"`
	Reason       string  `json:"reason"`
	Fingerprint  string  `json:"content_fingerprint"`
	// Timestamp is RFC 3339 and only set once the verdict is stored.
	Timestamp string `json:"timestamp,omitempty"`
}

// UnmarshalJSON also accepts the older content_hash key.
func (v *Verdict) UnmarshalJSON(data []byte) error {
	type plain Verdict
	aux := struct {
		*plain
		ContentHash string `json:"content_hash"`
	}{plain: (*plain)(v)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if v.Fingerprint == "" {
		v.Fingerprint = aux.ContentHash
	}
	return nil
}

// StampedAt parses Timestamp. ok is false when it is missing or unparsable.
func (v Verdict) StampedAt() (t time.Time, ok bool) {
	if v.Timestamp == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, v.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Stamp records t as the verdict timestamp.
func (v *Verdict) Stamp(t time.Time) {
	v.Timestamp = t.UTC().Format(time.RFC3339Nano)
}
