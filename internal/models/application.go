// internal/models/application.go
package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Application maps catalog field names to the values entered for them.
// Values are strings when they come from an HTML form and JSON numbers
// when they come from the API or the demo generator.
type Application map[string]interface{}

// Clone returns a shallow copy. Values are scalars so this freezes the
// application for one evaluation.
func (a Application) Clone() Application {
	out := make(Application, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// IsEmpty reports whether no field has been filled in.
func (a Application) IsEmpty() bool {
	return len(a) == 0
}

// String renders a field for display. Missing fields yield "".
func (a Application) String(name string) string {
	raw, ok := a[name]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Int reads a numeric field leniently. Missing or unparseable values
// count as 0; fractional values are truncated.
func (a Application) Int(name string) int64 {
	n, err := ParseInt(a[name])
	if err != nil {
		return 0
	}
	return n
}

// ParseInt converts a JSON number, Go integer or numeric string (thousands
// separators allowed) to an int64.
func ParseInt(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case float64:
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case string:
		cleaned := strings.TrimSpace(strings.ReplaceAll(v, ",", ""))
		if n, err := strconv.ParseInt(cleaned, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("not a number: %q", v)
		}
		return int64(f), nil
	default:
		return 0, fmt.Errorf("not a number: %T", raw)
	}
}
