package watch

import (
	"encoding/json"
	"fmt"
	"math"
)

// Validate checks the structure of a raw snapshot and converts it.
//
// The first malformed element fails the whole snapshot. Missing name/status
// values are not an error here: they surface as IncompleteRecord when the
// record is interpreted.
func Validate(raw any, fields Fields) (Snapshot, error) {
	fields = fields.withDefaults()

	m, ok := raw.(map[string]any)
	if !ok {
		return Snapshot{}, malformed("", "response is %s, want object", jsonType(raw))
	}

	rv, ok := m[fields.Records]
	if !ok {
		return Snapshot{}, malformed(fields.Records, "missing key %q", fields.Records)
	}
	items, ok := rv.([]any)
	if !ok {
		return Snapshot{}, malformed(fields.Records, "%q is %s, want array", fields.Records, jsonType(rv))
	}

	snap := Snapshot{Records: make([]Record, 0, len(items))}
	for i, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			return Snapshot{}, malformed(fields.Records, "%s[%d] is %s, want object", fields.Records, i, jsonType(it))
		}
		name, err := optionalString(obj, fields.Name, fields.Records, i)
		if err != nil {
			return Snapshot{}, err
		}
		status, err := optionalString(obj, fields.Status, fields.Records, i)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Records = append(snap.Records, Record{Name: name, Status: status})
	}

	if av, ok := m[fields.Advance]; ok && av != nil {
		n, ok := asInt64(av)
		if !ok {
			return Snapshot{}, malformed(fields.Advance, "%q is %s, want integer", fields.Advance, jsonType(av))
		}
		snap.Advance = n
		snap.HasAdvance = true
	}
	return snap, nil
}

func malformed(field, format string, args ...any) *Error {
	return &Error{Kind: MalformedResponse, Field: field, Msg: fmt.Sprintf(format, args...)}
}

func optionalString(obj map[string]any, key, list string, idx int) (string, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", malformed(key, "%s[%d].%s is %s, want string", list, idx, key, jsonType(v))
	}
	return s, nil
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	case float64:
		return floatToInt64(x)
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint32:
		return int64(x), true
	default:
		return 0, false
	}
}

func floatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, int, int32, int64, uint32:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
