// Package filter provides query parameter parsing for the event listing
// endpoints.
package filter

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/agentstation/neowatch/pkg/errors"
	"github.com/agentstation/neowatch/pkg/special"
)

// Query parameter names.
const (
	ParamActive      = "active"
	ParamType        = "type"
	ParamOrigin      = "origin"
	ParamMinPriority = "min_priority"
)

// ParseEventFilter extracts an event filter from the request's query string.
// List parameters accept comma-separated values and may repeat. Unknown
// enum values are rejected rather than silently ignored.
func ParseEventFilter(r *http.Request) (special.Filter, error) {
	q := r.URL.Query()
	var f special.Filter

	if v := q.Get(ParamActive); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return special.Filter{}, errors.NewValidationError(ParamActive, v, "must be a boolean")
		}
		f.ActiveOnly = b
	}

	for _, v := range splitValues(q[ParamType]) {
		t, err := special.ParseType(v)
		if err != nil {
			return special.Filter{}, err
		}
		f.Types = append(f.Types, t)
	}

	for _, v := range splitValues(q[ParamOrigin]) {
		o, err := special.ParseOrigin(v)
		if err != nil {
			return special.Filter{}, err
		}
		f.Origins = append(f.Origins, o)
	}

	if v := q.Get(ParamMinPriority); v != "" {
		p, err := special.ParsePriority(v)
		if err != nil {
			return special.Filter{}, errors.NewValidationError(ParamMinPriority, v, err.Error())
		}
		f.MinPriority = p
	}

	return f, nil
}

// splitValues flattens repeated and comma-separated parameter values.
func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
