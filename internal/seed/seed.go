// Package seed loads special events from YAML files and creates them
// through the mutation path, so observers see every seeded event.
package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/neowatch/pkg/errors"
	"github.com/agentstation/neowatch/pkg/special"
)

// File is the layout of a seed file:
//
//	events:
//	  - name: 3I/ATLAS
//	    type: interstellar_object
//	    origin: interstellar
//	    eventDate: "2025-10-29T00:00:00Z"
//	    distance: {value: "1.356", unit: au}
//	    velocity: {value: "58", unit: km/s}
//	    priority: high
//
// Decimal values may be quoted to keep every digit. Quote dates too, so
// they reach the decoder as RFC 3339 strings.
type File struct {
	Events []special.Fields `json:"events"`
}

// Creator creates events.
type Creator interface {
	Create(ctx context.Context, fields special.Fields) (special.Event, error)
}

// Load reads and parses a seed file.
func Load(path string) ([]special.Fields, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapResource("read", "seed file", path, err)
	}
	fields, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return fields, nil
}

// Parse parses seed YAML. The document is converted to JSON and decoded
// with the same rules as the HTTP API, so unknown keys are rejected.
func Parse(data []byte) ([]special.Fields, error) {
	raw, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, errors.NewValidationError("yaml", nil, err.Error())
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, errors.NewValidationError("events", nil, err.Error())
	}
	return f.Events, nil
}

// Result reports what Apply created.
type Result struct {
	Created []special.Event
}

// Apply creates each entry in order and stops at the first failure. The
// error names the failing entry; entries before it stay created.
func Apply(ctx context.Context, c Creator, entries []special.Fields) (Result, error) {
	var res Result
	for i, fields := range entries {
		e, err := c.Create(ctx, fields)
		if err != nil {
			return res, fmt.Errorf("seed entry %d (%q): %w", i, fields.Name, err)
		}
		res.Created = append(res.Created, e)
	}
	return res, nil
}
