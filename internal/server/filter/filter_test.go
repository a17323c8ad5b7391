package filter

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/neowatch/pkg/errors"
	"github.com/agentstation/neowatch/pkg/special"
)

// TestParseEventFilter tests query parameter parsing into special.Filter.
func TestParseEventFilter(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected special.Filter
	}{
		{
			name:     "empty query",
			query:    "",
			expected: special.Filter{},
		},
		{
			name:     "active only",
			query:    "active=true",
			expected: special.Filter{ActiveOnly: true},
		},
		{
			name:     "explicit false",
			query:    "active=false",
			expected: special.Filter{},
		},
		{
			name:  "comma separated origins",
			query: "origin=interstellar,unknown",
			expected: special.Filter{
				Origins: []special.Origin{special.OriginInterstellar, special.OriginUnknown},
			},
		},
		{
			name:  "repeated origins",
			query: "origin=interstellar&origin=solar_system",
			expected: special.Filter{
				Origins: []special.Origin{special.OriginInterstellar, special.OriginSolarSystem},
			},
		},
		{
			name:  "everything",
			query: "active=1&type=interstellar_object&min_priority=high",
			expected: special.Filter{
				ActiveOnly:  true,
				Types:       []special.Type{special.TypeInterstellarObject},
				MinPriority: special.PriorityHigh,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/events?"+tt.query, nil)
			got, err := ParseEventFilter(req)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseEventFilterRejectsUnknownValues(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"bad boolean", "active=maybe"},
		{"unknown type", "type=comet"},
		{"unknown origin", "origin=andromeda"},
		{"unknown priority", "min_priority=urgent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/events?"+tt.query, nil)
			_, err := ParseEventFilter(req)
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
		})
	}
}
