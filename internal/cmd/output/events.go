package output

import (
	"io"
	"slices"
	"strings"
	"time"

	"github.com/agentstation/neowatch/pkg/special"
)

// FormatEvents writes events in the given format.
func FormatEvents(w io.Writer, format Format, list []special.Event) error {
	if list == nil {
		list = []special.Event{}
	}
	if format.IsTable() {
		return NewFormatter(format).Format(w, EventsToTableData(list, format == FormatWide))
	}
	return NewFormatter(format).Format(w, list)
}

// FormatEvent writes one event in the given format.
func FormatEvent(w io.Writer, format Format, e special.Event) error {
	if format.IsTable() {
		return NewFormatter(format).Format(w, EventToTableData(e))
	}
	return NewFormatter(format).Format(w, e)
}

// EventsToTableData lays out events one per row, in the order given.
func EventsToTableData(list []special.Event, wide bool) Data {
	headers := []string{"ID", "Name", "Priority", "Event Date", "Distance", "Active"}
	align := []Align{AlignLeft, AlignLeft, AlignLeft, AlignLeft, AlignRight, AlignCenter}
	if wide {
		headers = append(headers, "Type", "Origin", "Velocity", "Updated")
		align = append(align, AlignLeft, AlignLeft, AlignRight, AlignLeft)
	}

	rows := make([][]string, 0, len(list))
	for _, e := range list {
		row := []string{
			e.ID,
			e.Name,
			string(e.Priority),
			e.EventDate.Format(time.RFC3339),
			distance(e.Distance),
			yesNo(e.IsActive),
		}
		if wide {
			row = append(row,
				string(e.Type),
				string(e.Origin),
				velocity(e.Velocity),
				time.UnixMilli(e.UpdatedAt).UTC().Format(time.RFC3339),
			)
		}
		rows = append(rows, row)
	}
	return Data{Headers: headers, Rows: rows, ColumnAlignment: align}
}

// EventToTableData lays out one event as property/value pairs.
func EventToTableData(e special.Event) Data {
	rows := [][]string{
		{"ID", e.ID},
		{"Name", e.Name},
		{"Description", e.Description},
		{"Type", string(e.Type)},
		{"Origin", string(e.Origin)},
		{"Event Date", e.EventDate.Format(time.RFC3339)},
		{"Distance", distance(e.Distance)},
		{"Velocity", velocity(e.Velocity)},
		{"Priority", string(e.Priority)},
		{"Active", yesNo(e.IsActive)},
		{"Created", time.UnixMilli(e.CreatedAt).UTC().Format(time.RFC3339)},
		{"Updated", time.UnixMilli(e.UpdatedAt).UTC().Format(time.RFC3339)},
	}
	if len(e.Metadata) > 0 {
		keys := make([]string, 0, len(e.Metadata))
		for k := range e.Metadata {
			keys = append(keys, k)
		}
		rows = append(rows, []string{"Metadata", strings.Join(slices.Sorted(slices.Values(keys)), ", ")})
	}
	return Data{Headers: []string{"Property", "Value"}, Rows: rows}
}

func distance(d special.Distance) string {
	return d.Value.String() + " " + string(d.Unit)
}

func velocity(v *special.Velocity) string {
	if v == nil {
		return "-"
	}
	return v.Value.String() + " " + string(v.Unit)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
