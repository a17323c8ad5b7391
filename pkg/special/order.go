package special

import (
	"cmp"
	"slices"
	"strings"

	"github.com/agentstation/neowatch/pkg/errors"
)

// TieBreak orders events of equal priority by event time.
type TieBreak string

const (
	// TieBreakSoonest puts the earliest event time first.
	TieBreakSoonest TieBreak = "soonest"
	// TieBreakLatest puts the latest event time first.
	TieBreakLatest TieBreak = "latest"
)

// ParseTieBreak parses a tie-break name; empty means soonest.
func ParseTieBreak(s string) (TieBreak, error) {
	switch TieBreak(strings.ToLower(strings.TrimSpace(s))) {
	case "", TieBreakSoonest:
		return TieBreakSoonest, nil
	case TieBreakLatest:
		return TieBreakLatest, nil
	}
	return "", errors.NewValidationError("tie_break", s, "must be soonest or latest")
}

// Compare orders a before b when it is more urgent: higher priority first,
// then event time per tie-break, then creation time, then id. The result is
// a total order.
func Compare(a, b Event, tb TieBreak) int {
	if c := cmp.Compare(b.Priority.Rank(), a.Priority.Rank()); c != 0 {
		return c
	}
	c := cmp.Compare(a.EventTimestamp, b.EventTimestamp)
	if tb == TieBreakLatest {
		c = -c
	}
	if c != 0 {
		return c
	}
	if c := cmp.Compare(a.CreatedAt, b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// Sort orders events in place by Compare.
func Sort(events []Event, tb TieBreak) {
	slices.SortFunc(events, func(a, b Event) int { return Compare(a, b, tb) })
}

// Filter selects events for a listing. A zero Filter matches everything.
type Filter struct {
	ActiveOnly  bool
	Types       []Type
	Origins     []Origin
	MinPriority Priority
}

// Active is the filter behind the active listing.
func Active() Filter {
	return Filter{ActiveOnly: true}
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Event) bool {
	if f.ActiveOnly && !e.IsActive {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, e.Type) {
		return false
	}
	if len(f.Origins) > 0 && !slices.Contains(f.Origins, e.Origin) {
		return false
	}
	if f.MinPriority != "" && e.Priority.Rank() < f.MinPriority.Rank() {
		return false
	}
	return true
}

// Validate checks the filter's enum values.
func (f Filter) Validate() error {
	for _, t := range f.Types {
		if _, err := ParseType(string(t)); err != nil {
			return err
		}
	}
	for _, o := range f.Origins {
		if _, err := ParseOrigin(string(o)); err != nil {
			return err
		}
	}
	if f.MinPriority != "" {
		if _, err := ParsePriority(string(f.MinPriority)); err != nil {
			return err
		}
	}
	return nil
}

// Key returns a stable string form of the filter, used as a cache key.
func (f Filter) Key() string {
	var b strings.Builder
	if f.ActiveOnly {
		b.WriteString("active")
	} else {
		b.WriteString("all")
	}
	types := make([]string, len(f.Types))
	for i, t := range f.Types {
		types[i] = string(t)
	}
	slices.Sort(types)
	origins := make([]string, len(f.Origins))
	for i, o := range f.Origins {
		origins[i] = string(o)
	}
	slices.Sort(origins)
	b.WriteString("|t=" + strings.Join(types, ","))
	b.WriteString("|o=" + strings.Join(origins, ","))
	b.WriteString("|p=" + string(f.MinPriority))
	return b.String()
}
