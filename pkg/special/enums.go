package special

import (
	"slices"
	"strings"

	"github.com/agentstation/neowatch/pkg/errors"
)

// Type is the category of a special event.
type Type string

const (
	// TypeInterstellarObject is a passage of an object of interstellar origin.
	TypeInterstellarObject Type = "interstellar_object"
)

// Types returns every known event type.
func Types() []Type {
	return []Type{TypeInterstellarObject}
}

// IsValid reports whether t is a known event type.
func (t Type) IsValid() bool { return slices.Contains(Types(), t) }

// String returns the string representation of the type.
func (t Type) String() string { return string(t) }

// ParseType parses a stored or submitted type value.
func ParseType(s string) (Type, error) {
	return parseEnum("type", s, Types())
}

// Origin classifies where an object came from.
type Origin string

const (
	OriginInterstellar Origin = "interstellar"
	OriginSolarSystem  Origin = "solar_system"
	OriginUnknown      Origin = "unknown"
)

// Origins returns every known origin.
func Origins() []Origin {
	return []Origin{OriginInterstellar, OriginSolarSystem, OriginUnknown}
}

// IsValid reports whether o is a known origin.
func (o Origin) IsValid() bool { return slices.Contains(Origins(), o) }

// String returns the string representation of the origin.
func (o Origin) String() string { return string(o) }

// ParseOrigin parses a stored or submitted origin value.
func ParseOrigin(s string) (Origin, error) {
	return parseEnum("origin", s, Origins())
}

// DistanceUnit is the unit of a closest-approach distance.
type DistanceUnit string

const (
	DistanceKilometers        DistanceUnit = "km"
	DistanceAstronomicalUnits DistanceUnit = "au"
	DistanceLunarDistances    DistanceUnit = "ld"
)

// DistanceUnits returns every known distance unit.
func DistanceUnits() []DistanceUnit {
	return []DistanceUnit{DistanceKilometers, DistanceAstronomicalUnits, DistanceLunarDistances}
}

// IsValid reports whether u is a known distance unit.
func (u DistanceUnit) IsValid() bool { return slices.Contains(DistanceUnits(), u) }

// String returns the string representation of the unit.
func (u DistanceUnit) String() string { return string(u) }

// ParseDistanceUnit parses a stored or submitted distance unit.
func ParseDistanceUnit(s string) (DistanceUnit, error) {
	return parseEnum("distance.unit", s, DistanceUnits())
}

// VelocityUnit is the unit of a relative velocity.
type VelocityUnit string

const (
	VelocityKilometersPerSecond VelocityUnit = "km/s"
	VelocityMetersPerSecond     VelocityUnit = "m/s"
	VelocityKilometersPerHour   VelocityUnit = "km/h"
)

// VelocityUnits returns every known velocity unit.
func VelocityUnits() []VelocityUnit {
	return []VelocityUnit{VelocityKilometersPerSecond, VelocityMetersPerSecond, VelocityKilometersPerHour}
}

// IsValid reports whether u is a known velocity unit.
func (u VelocityUnit) IsValid() bool { return slices.Contains(VelocityUnits(), u) }

// String returns the string representation of the unit.
func (u VelocityUnit) String() string { return string(u) }

// ParseVelocityUnit parses a stored or submitted velocity unit.
func ParseVelocityUnit(s string) (VelocityUnit, error) {
	return parseEnum("velocity.unit", s, VelocityUnits())
}

// Priority is the urgency of an event. Priorities are totally ordered:
// low < medium < high < critical.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Priorities returns every priority in ascending order.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
}

// Rank returns the position of p in the priority order, starting at 1 for
// low. Unknown priorities rank 0.
func (p Priority) Rank() int {
	return slices.Index(Priorities(), p) + 1
}

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool { return p.Rank() > 0 }

// String returns the string representation of the priority.
func (p Priority) String() string { return string(p) }

// ParsePriority parses a stored or submitted priority.
func ParsePriority(s string) (Priority, error) {
	return parseEnum("priority", s, Priorities())
}

func parseEnum[T ~string](field, s string, members []T) (T, error) {
	v := T(strings.TrimSpace(s))
	if slices.Contains(members, v) {
		return v, nil
	}
	allowed := make([]string, len(members))
	for i, m := range members {
		allowed[i] = string(m)
	}
	return "", errors.NewValidationError(field, s, "must be one of "+strings.Join(allowed, ", "))
}
