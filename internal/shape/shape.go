package shape

import (
	"fmt"
	"time"

	"github.com/triage-ai/icio-mcp/internal/executor"
)

// Format selects how a column value is rendered.
type Format string

const (
	FormatText    Format = "text"
	FormatInt     Format = "int"
	FormatRatio   Format = "ratio"
	FormatPercent Format = "percent"
	FormatTime    Format = "time"
)

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	switch f {
	case FormatText, FormatInt, FormatRatio, FormatPercent, FormatTime:
		return true
	}
	return false
}

// Column maps one source column onto one output field. The same source may
// feed several fields (e.g. a raw ratio and its percentage rendering).
type Column struct {
	Source string
	Field  string
	Format Format
}

// Record is one shaped output row.
type Record map[string]any

// Rows shapes every row with the given column mapping. The result is never
// nil so it encodes as an empty JSON array.
func Rows(rows []executor.Row, cols []Column) ([]Record, error) {
	out := make([]Record, 0, len(rows))
	for i, row := range rows {
		rec, err := shapeRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("shape row %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func shapeRow(row executor.Row, cols []Column) (Record, error) {
	rec := make(Record, len(cols))
	for _, c := range cols {
		v, err := Value(row[c.Source], c.Format)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Source, err)
		}
		rec[c.Field] = v
	}
	return rec, nil
}

// Value renders a single driver value.
func Value(v any, f Format) (any, error) {
	switch f {
	case FormatText:
		if v == nil {
			return "", nil
		}
		return fmt.Sprint(v), nil
	case FormatInt:
		return intValue(v)
	case FormatRatio:
		d, err := Ratio(v)
		if err != nil {
			return nil, err
		}
		if !d.Valid {
			return nil, nil
		}
		return d.Decimal.InexactFloat64(), nil
	case FormatPercent:
		d, err := Ratio(v)
		if err != nil {
			return nil, err
		}
		return Percent(d), nil
	case FormatTime:
		return timeValue(v)
	default:
		return nil, fmt.Errorf("unknown format %q", f)
	}
}

func intValue(v any) (any, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		var i int64
		if _, err := fmt.Sscan(n, &i); err != nil {
			return nil, fmt.Errorf("parse int %q: %w", n, err)
		}
		return i, nil
	default:
		return nil, fmt.Errorf("unexpected int value %T", v)
	}
}

// timeValue renders timestamps as ISO-8601 with microseconds and offset.
func timeValue(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return t.Format("2006-01-02T15:04:05.999999Z07:00"), nil
	case string:
		return t, nil
	default:
		return nil, fmt.Errorf("unexpected time value %T", v)
	}
}
