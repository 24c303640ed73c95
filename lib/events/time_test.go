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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimestampMarshal(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{
			name: "millisecond precision",
			in:   time.Date(2024, 1, 15, 10, 30, 45, int(123*time.Millisecond), time.UTC),
			want: `"2024-01-15T10:30:45.123Z"`,
		},
		{
			name: "sub-millisecond truncated",
			in:   time.Date(2024, 1, 15, 10, 30, 45, 123456789, time.UTC),
			want: `"2024-01-15T10:30:45.123Z"`,
		},
		{
			name: "non-UTC converted",
			in:   time.Date(2024, 1, 15, 10, 30, 45, 0, time.FixedZone("IST", 5*3600+1800)),
			want: `"2024-01-15T05:00:45.000Z"`,
		},
		{
			name: "zero value",
			in:   time.Time{},
			want: `""`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := json.Marshal(At(tt.in))
			require.NoError(t, err)
			require.Equal(t, tt.want, string(out))
		})
	}
}

func TestTimestampUnmarshal(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2024-01-15T10:30:45.123Z"`), &ts))
	require.Equal(t, time.Date(2024, 1, 15, 10, 30, 45, int(123*time.Millisecond), time.UTC), ts.Time)

	// Extra precision from the server is accepted.
	require.NoError(t, json.Unmarshal([]byte(`"2024-01-15T10:30:45.123456Z"`), &ts))
	require.Equal(t, 2024, ts.Year())

	// Offsets are normalized to UTC.
	require.NoError(t, json.Unmarshal([]byte(`"2024-01-15T10:30:45.000+05:30"`), &ts))
	require.Equal(t, time.UTC, ts.Location())
	require.Equal(t, 5, ts.Hour())

	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	require.True(t, ts.IsZero())

	require.NoError(t, json.Unmarshal([]byte(`""`), &ts))
	require.True(t, ts.IsZero())

	require.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestTimestampRoundTrip(t *testing.T) {
	orig := At(time.Date(2024, 6, 1, 23, 59, 59, int(999*time.Millisecond), time.UTC))
	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var back Timestamp
	require.NoError(t, json.Unmarshal(data, &back))
	require.True(t, orig.Equal(back.Time), "want %v, got %v", orig, back)
}

func TestDayBoundaries(t *testing.T) {
	zone := time.FixedZone("UTC+2", 2*3600)
	in := time.Date(2024, 1, 15, 13, 45, 12, 345, zone)

	start := StartOfDay(in)
	require.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, zone), start)

	end := EndOfDay(in)
	require.Equal(t, time.Date(2024, 1, 15, 23, 59, 59, int(999*time.Millisecond), zone), end)
	require.Equal(t, `"2024-01-15T21:59:59.999Z"`, mustMarshal(t, At(end)))
}

func TestSameDay(t *testing.T) {
	zone := time.FixedZone("UTC+2", 2*3600)
	tests := []struct {
		name string
		a, b time.Time
		want bool
	}{
		{
			name: "same local date",
			a:    time.Date(2024, 1, 15, 0, 0, 1, 0, zone),
			b:    time.Date(2024, 1, 15, 23, 59, 0, 0, zone),
			want: true,
		},
		{
			name: "across midnight",
			a:    time.Date(2024, 1, 15, 23, 59, 0, 0, zone),
			b:    time.Date(2024, 1, 16, 0, 1, 0, 0, zone),
			want: false,
		},
		{
			name: "UTC instant converted into local date",
			// 23:00 UTC on the 15th is already the 16th at UTC+2.
			a:    time.Date(2024, 1, 16, 1, 0, 0, 0, zone),
			b:    time.Date(2024, 1, 15, 23, 0, 0, 0, time.UTC),
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, SameDay(tt.a, tt.b))
		})
	}
}

func mustMarshal(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
