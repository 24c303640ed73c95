/*
Copyright 2026 The Activity Tracker Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package events

import (
	"encoding/json"
	"time"

	"github.com/gravitational/trace"
)

// timestampFormat is ISO 8601 UTC with millisecond precision, the only
// time representation the tracking server accepts.
const timestampFormat = "2006-01-02T15:04:05.000Z"

// Timestamp is a UTC wall clock instant that marshals to ISO 8601 with
// millisecond precision. The zero value marshals as an empty string and
// unmarshals from empty or null.
type Timestamp struct {
	time.Time
}

// At converts a standard library time into a wire timestamp.
func At(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.UTC().Format(timestampFormat))
}

// UnmarshalJSON implements json.Unmarshaler. Inputs with more than
// millisecond precision are accepted and truncated by the next marshal.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return trace.Wrap(err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return trace.BadParameter("invalid timestamp %q: %v", s, err)
	}
	t.Time = parsed.UTC()
	return nil
}

// StartOfDay returns midnight at the start of t's calendar date, in t's
// location. Day rollover uses the local calendar, so callers pass local
// times here and let Timestamp convert to UTC on the wire.
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59.999 of t's calendar date, in t's location.
// Sessions closed by day rollover end at this instant.
func EndOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// SameDay reports whether a and b fall on the same calendar date when both
// are observed in a's location.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}
