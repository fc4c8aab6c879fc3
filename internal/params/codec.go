package params

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mabou7agar/laravel-api-model-client-sub002/internal/spec"
)

// Serialize encodes an already converted value for the wire. Arrays and
// objects follow style and explode; scalars are rendered as plain text.
// Object keys are emitted in sorted order.
func Serialize(name string, value any, style spec.Style, explode bool) string {
	switch v := value.(type) {
	case nil:
		return ""
	case map[string]any:
		return objectSerializer(style)(v, explode)
	}
	if items, ok := asList(value); ok {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = formatScalar(item)
		}
		return arraySerializer(style)(name, parts, explode)
	}
	return formatScalar(value)
}

type arrayEncoder func(name string, items []string, explode bool) string

type objectEncoder func(obj map[string]any, explode bool) string

func arraySerializer(style spec.Style) arrayEncoder {
	switch style {
	case spec.StyleForm:
		return serializeFormArray
	case spec.StyleSpaceDelimited:
		return serializeDelimitedArray(" ")
	case spec.StylePipeDelimited:
		return serializeDelimitedArray("|")
	default:
		return serializeDelimitedArray(",")
	}
}

// serializeFormArray renders name=a&name=b when exploded, a,b otherwise.
func serializeFormArray(name string, items []string, explode bool) string {
	if !explode {
		return strings.Join(items, ",")
	}
	pairs := make([]string, len(items))
	for i, item := range items {
		pairs[i] = url.QueryEscape(name) + "=" + url.QueryEscape(item)
	}
	return strings.Join(pairs, "&")
}

func serializeDelimitedArray(sep string) arrayEncoder {
	return func(_ string, items []string, _ bool) string {
		return strings.Join(items, sep)
	}
}

func objectSerializer(style spec.Style) objectEncoder {
	switch style {
	case spec.StyleForm:
		return serializeFormObject
	case spec.StyleSpaceDelimited:
		return serializeDelimitedObject(" ")
	case spec.StylePipeDelimited:
		return serializeDelimitedObject("|")
	default:
		return serializeSimpleObject
	}
}

// serializeFormObject renders k=v&k2=v2 when exploded, k,v,k2,v2 otherwise.
func serializeFormObject(obj map[string]any, explode bool) string {
	if !explode {
		return serializeDelimitedObject(",")(obj, false)
	}
	keys := sortedKeys(obj)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = url.QueryEscape(k) + "=" + url.QueryEscape(formatScalar(obj[k]))
	}
	return strings.Join(pairs, "&")
}

// serializeSimpleObject renders k=v,k2=v2 when exploded, k,v,k2,v2 otherwise.
func serializeSimpleObject(obj map[string]any, explode bool) string {
	if !explode {
		return serializeDelimitedObject(",")(obj, false)
	}
	keys := sortedKeys(obj)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + formatScalar(obj[k])
	}
	return strings.Join(pairs, ",")
}

func serializeDelimitedObject(sep string) objectEncoder {
	return func(obj map[string]any, _ bool) string {
		keys := sortedKeys(obj)
		parts := make([]string, 0, 2*len(keys))
		for _, k := range keys {
			parts = append(parts, k, formatScalar(obj[k]))
		}
		return strings.Join(parts, sep)
	}
}

// Deserialize inverts Serialize for the given type and style. A raw value
// that is itself a JSON array or object is accepted as is. Array items and
// object values come back as strings; converting them is left to Convert.
func Deserialize(name, raw, typ string, style spec.Style, explode bool) (any, error) {
	switch typ {
	case "array":
		if v, ok := decodeJSON[[]any](raw); ok {
			return v, nil
		}
		return arrayDeserializer(style)(name, raw, explode), nil
	case "object":
		if v, ok := decodeJSON[map[string]any](raw); ok {
			return v, nil
		}
		return objectDeserializer(style)(raw, explode)
	default:
		return raw, nil
	}
}

type arrayDecoder func(name, raw string, explode bool) []any

type objectDecoder func(raw string, explode bool) (map[string]any, error)

func arrayDeserializer(style spec.Style) arrayDecoder {
	switch style {
	case spec.StyleForm:
		return deserializeFormArray
	case spec.StyleSpaceDelimited:
		return deserializeDelimitedArray(" ")
	case spec.StylePipeDelimited:
		return deserializeDelimitedArray("|")
	default:
		return deserializeDelimitedArray(",")
	}
}

func deserializeFormArray(name, raw string, explode bool) []any {
	if !explode {
		raw = strings.TrimPrefix(raw, name+"=")
		return deserializeDelimitedArray(",")(name, raw, false)
	}
	out := []any{}
	if raw == "" {
		return out
	}
	for _, part := range strings.Split(raw, "&") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			out = append(out, unescape(part))
			continue
		}
		if unescape(key) == name {
			out = append(out, unescape(value))
		}
	}
	return out
}

func deserializeDelimitedArray(sep string) arrayDecoder {
	return func(_ string, raw string, _ bool) []any {
		out := []any{}
		if raw == "" {
			return out
		}
		for _, part := range strings.Split(raw, sep) {
			out = append(out, part)
		}
		return out
	}
}

func objectDeserializer(style spec.Style) objectDecoder {
	switch style {
	case spec.StyleForm:
		return deserializeFormObject
	case spec.StyleSpaceDelimited:
		return deserializeDelimitedObject(" ")
	case spec.StylePipeDelimited:
		return deserializeDelimitedObject("|")
	default:
		return deserializeSimpleObject
	}
}

func deserializeFormObject(raw string, explode bool) (map[string]any, error) {
	if !explode {
		return deserializeDelimitedObject(",")(raw, false)
	}
	out := map[string]any{}
	if raw == "" {
		return out, nil
	}
	for _, part := range strings.Split(raw, "&") {
		key, value, _ := strings.Cut(part, "=")
		out[unescape(key)] = unescape(value)
	}
	return out, nil
}

func deserializeSimpleObject(raw string, explode bool) (map[string]any, error) {
	if !explode {
		return deserializeDelimitedObject(",")(raw, false)
	}
	out := map[string]any{}
	if raw == "" {
		return out, nil
	}
	for _, part := range strings.Split(raw, ",") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			return nil, fmt.Errorf("object member %q has no value", part)
		}
		out[key] = value
	}
	return out, nil
}

func deserializeDelimitedObject(sep string) objectDecoder {
	return func(raw string, _ bool) (map[string]any, error) {
		out := map[string]any{}
		if raw == "" {
			return out, nil
		}
		parts := strings.Split(raw, sep)
		if len(parts)%2 != 0 {
			return nil, fmt.Errorf("object %q has an unpaired key", raw)
		}
		for i := 0; i < len(parts); i += 2 {
			out[parts[i]] = parts[i+1]
		}
		return out, nil
	}
}

// ParseQuery decodes a raw query string for the query parameters in defs and
// converts each present value to its schema type. Absent parameters are
// omitted from the result.
func ParseQuery(rawQuery string, defs []spec.ParameterDefinition, reg spec.Registry) (map[string]any, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	out := make(map[string]any)
	for _, p := range defs {
		if p.In != spec.InQuery {
			continue
		}
		raw, present, err := queryValue(values, p, reg)
		if err != nil {
			return nil, fmt.Errorf("query parameter %s: %w", p.Name, err)
		}
		if !present {
			continue
		}
		converted, err := ConvertSchema(raw, p.Schema, reg)
		if err != nil {
			return nil, fmt.Errorf("query parameter %s: %w", p.Name, err)
		}
		out[p.Name] = converted
	}
	return out, nil
}

func queryValue(values url.Values, p spec.ParameterDefinition, reg spec.Registry) (any, bool, error) {
	schema, _ := reg.Resolve(p.Schema)
	typ := ""
	if schema != nil {
		typ = schema.Type
	}
	exploded := p.Style == spec.StyleForm && p.Explode

	if typ == "object" && exploded {
		// Exploded form objects spread their members over separate keys.
		obj := map[string]any{}
		for name := range schema.Properties {
			if vs, ok := values[name]; ok && len(vs) > 0 {
				obj[name] = vs[0]
			}
		}
		return obj, len(obj) > 0, nil
	}

	vs, ok := values[p.Name]
	if !ok || len(vs) == 0 {
		return nil, false, nil
	}
	switch typ {
	case "array":
		if exploded {
			items := make([]any, len(vs))
			for i, v := range vs {
				items[i] = v
			}
			return items, true, nil
		}
		v, err := Deserialize(p.Name, vs[0], typ, p.Style, p.Explode)
		return v, true, err
	case "object":
		v, err := Deserialize(p.Name, vs[0], typ, p.Style, p.Explode)
		return v, true, err
	default:
		return vs[0], true, nil
	}
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// formatScalar renders a converted value as wire text. Structured values
// nested inside arrays or objects are JSON encoded.
func formatScalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
