// Package params converts, encodes, decodes and validates operation
// parameters against the definitions of a parsed contract.
package params

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"

	"github.com/mabou7agar/laravel-api-model-client-sub002/internal/spec"
)

// ConversionError reports a value that could not be coerced to its declared
// type.
type ConversionError struct {
	Value  any
	Type   string
	Format string
	Reason string
}

func (e *ConversionError) Error() string {
	target := e.Type
	if e.Format != "" {
		target += " (" + e.Format + ")"
	}
	return fmt.Sprintf("cannot convert %#v to %s: %s", e.Value, target, e.Reason)
}

func conversionError(value any, typ, format, reason string) error {
	return &ConversionError{Value: value, Type: typ, Format: format, Reason: reason}
}

const (
	dateLayout      = "2006-01-02"
	dateTimeSpaced  = "2006-01-02 15:04:05"
	dateTimeDefault = time.RFC3339
)

// Convert coerces value to the OpenAPI type and format. Integers come back
// as int64, numbers as float64, arrays as []any and objects as
// map[string]any. Nil and empty strings convert to nil for scalar types.
func Convert(value any, typ, format string) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch typ {
	case "integer", "number":
		return toNumber(value, typ, format)
	case "boolean":
		return toBoolean(value)
	case "string":
		return toString(value, format)
	case "array":
		return toArray(value), nil
	case "object":
		return toObject(value)
	default:
		return value, nil
	}
}

// ConvertSchema converts value against schema, descending into array items
// and declared object properties. References are resolved through reg.
func ConvertSchema(value any, schema *spec.SchemaDefinition, reg spec.Registry) (any, error) {
	s, err := reg.Resolve(schema)
	if err != nil || s == nil {
		return value, nil
	}
	out, err := Convert(value, s.Type, s.Format)
	if err != nil {
		return nil, err
	}
	switch v := out.(type) {
	case []any:
		if s.Items == nil {
			return v, nil
		}
		items := make([]any, len(v))
		for i, item := range v {
			converted, err := ConvertSchema(item, s.Items, reg)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			items[i] = converted
		}
		return items, nil
	case map[string]any:
		if len(s.Properties) == 0 {
			return v, nil
		}
		obj := make(map[string]any, len(v))
		for k, pv := range v {
			prop, declared := s.Properties[k]
			if !declared {
				obj[k] = pv
				continue
			}
			converted, err := ConvertSchema(pv, prop, reg)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", k, err)
			}
			obj[k] = converted
		}
		return obj, nil
	}
	return out, nil
}

func toNumber(value any, typ, format string) (any, error) {
	if s, ok := value.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		if typ == "integer" {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n, nil
			}
		}
		value = s
	}
	if typ == "integer" {
		if n, ok, err := exactInteger(value, format); ok || err != nil {
			return n, err
		}
	}
	f, ok := numeric(value)
	if !ok {
		return nil, conversionError(value, typ, format, "not numeric")
	}
	if typ == "number" {
		return f, nil
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return nil, conversionError(value, typ, format, "not a whole number")
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, conversionError(value, typ, format, "out of int64 range")
	}
	return int64(f), nil
}

// exactInteger converts Go integer kinds and integral json.Numbers without
// a float64 round trip. ok is false when value needs the float path.
func exactInteger(value any, format string) (any, bool, error) {
	switch v := value.(type) {
	case int:
		return int64(v), true, nil
	case int8:
		return int64(v), true, nil
	case int16:
		return int64(v), true, nil
	case int32:
		return int64(v), true, nil
	case int64:
		return v, true, nil
	case uint8:
		return int64(v), true, nil
	case uint16:
		return int64(v), true, nil
	case uint32:
		return int64(v), true, nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return nil, false, conversionError(value, "integer", format, "out of int64 range")
		}
		return int64(v), true, nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, false, conversionError(value, "integer", format, "out of int64 range")
		}
		return int64(v), true, nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true, nil
		}
	}
	return nil, false, nil
}

// numeric reads any Go numeric value, json.Number or numeric string.
func numeric(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, !math.IsNaN(v)
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil && !math.IsNaN(f)
	default:
		return 0, false
	}
}

func toBoolean(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "":
			return nil, nil
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		}
		return nil, conversionError(value, "boolean", "", "not a boolean")
	}
	if f, ok := numeric(value); ok {
		return f != 0, nil
	}
	return nil, conversionError(value, "boolean", "", "not a boolean")
}

func toString(value any, format string) (any, error) {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case bool:
		s = strconv.FormatBool(v)
	case time.Time:
		return formatTime(v, format), nil
	case strfmt.DateTime:
		return formatTime(time.Time(v), format), nil
	case map[string]any, []any:
		return nil, nil
	default:
		if k := reflect.ValueOf(value).Kind(); k == reflect.Slice || k == reflect.Array || k == reflect.Map {
			return nil, nil
		}
		if f, ok := numeric(value); ok {
			if format == "date" || format == "date-time" {
				return formatTime(time.Unix(int64(f), 0).UTC(), format), nil
			}
			s = formatScalar(value)
			break
		}
		s = fmt.Sprint(value)
	}

	switch format {
	case "date", "date-time":
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		t, ok := parseTime(s)
		if !ok {
			return nil, conversionError(value, "string", format, "unrecognised date")
		}
		return formatTime(t, format), nil
	case "email":
		return strings.ToLower(strings.TrimSpace(s)), nil
	case "uri", "url":
		return strings.TrimSpace(s), nil
	case "uuid":
		if u, err := uuid.Parse(strings.TrimSpace(s)); err == nil {
			return u.String(), nil
		}
		return strings.ToLower(strings.TrimSpace(s)), nil
	case "byte":
		return base64.StdEncoding.EncodeToString([]byte(s)), nil
	default:
		return s, nil
	}
}

func formatTime(t time.Time, format string) string {
	if format == "date" {
		return t.Format(dateLayout)
	}
	return t.Format(dateTimeDefault)
}

// parseTime accepts RFC 3339 and its common variants, plain dates,
// "YYYY-MM-DD HH:MM:SS" and unix seconds.
func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if dt, err := strfmt.ParseDateTime(s); err == nil && !time.Time(dt).IsZero() {
		return time.Time(dt), true
	}
	for _, layout := range []string{dateLayout, dateTimeSpaced} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), true
	}
	return time.Time{}, false
}

func toArray(value any) any {
	switch v := value.(type) {
	case []any:
		return v
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		if out, ok := decodeJSON[[]any](s); ok {
			return out
		}
		if strings.Contains(s, ",") {
			parts := strings.Split(s, ",")
			out := make([]any, len(parts))
			for i, p := range parts {
				out[i] = strings.TrimSpace(p)
			}
			return out
		}
		return []any{v}
	}
	if items, ok := asList(value); ok {
		return items
	}
	return []any{value}
}

func toObject(value any) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		return v, nil
	case map[string]string:
		out := make(map[string]any, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		if out, ok := decodeJSON[map[string]any](v); ok {
			return out, nil
		}
	}
	return nil, conversionError(value, "object", "", "not an object")
}

// asList copies any slice or array except []byte into []any.
func asList(value any) ([]any, bool) {
	if items, ok := value.([]any); ok {
		return items, true
	}
	if _, ok := value.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func decodeJSON[T any](raw string) (T, bool) {
	var out T
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || (trimmed[0] != '[' && trimmed[0] != '{') {
		return out, false
	}
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return out, false
	}
	return out, true
}
