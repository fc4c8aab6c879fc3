package params

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mabou7agar/laravel-api-model-client-sub002/internal/spec"
)

func TestConvert(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		value  any
		typ    string
		format string
		want   any
	}{
		{"integer from string", "42", "integer", "", int64(42)},
		{"integer from float", 7.0, "integer", "", int64(7)},
		{"integer from empty", "", "integer", "", nil},
		{"number from string", "2.5", "number", "", 2.5},
		{"number from int", 3, "number", "", 3.0},
		{"boolean yes", "Yes", "boolean", "", true},
		{"boolean off", "OFF", "boolean", "", false},
		{"boolean numeric", 2, "boolean", "", true},
		{"boolean zero", 0, "boolean", "", false},
		{"email trimmed and lowered", "  Jane@Example.COM ", "string", "email", "jane@example.com"},
		{"uri trimmed", " https://x.test/a ", "string", "uri", "https://x.test/a"},
		{"uuid lowered", "A987FBC9-4BED-3078-CF07-9141BA07C9F3", "string", "uuid", "a987fbc9-4bed-3078-cf07-9141ba07c9f3"},
		{"byte", "hello", "string", "byte", "aGVsbG8="},
		{"date from date-time", "2024-03-05T10:00:00Z", "string", "date", "2024-03-05"},
		{"date from spaced", "2024-03-05 10:11:12", "string", "date-time", "2024-03-05T10:11:12Z"},
		{"date from unix", int64(0), "string", "date", "1970-01-01"},
		{"date from time", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "string", "date", "2024-01-02"},
		{"number to string", 1.5, "string", "", "1.5"},
		{"array to string is nil", []any{"a"}, "string", "", nil},
		{"object to string is nil", map[string]any{"a": 1}, "string", "", nil},
		{"array passthrough", []any{"a", 1}, "array", "", []any{"a", 1}},
		{"array from json", `[1,"b"]`, "array", "", []any{1.0, "b"}},
		{"array from commas", "a, b,c", "array", "", []any{"a", "b", "c"}},
		{"array from scalar", "solo", "array", "", []any{"solo"}},
		{"array from typed slice", []string{"x", "y"}, "array", "", []any{"x", "y"}},
		{"object passthrough", map[string]any{"a": 1}, "object", "", map[string]any{"a": 1}},
		{"object from json", `{"a":"b"}`, "object", "", map[string]any{"a": "b"}},
		{"nil stays nil", nil, "integer", "", nil},
		{"untyped passthrough", "x", "", "", "x"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Convert(tt.value, tt.typ, tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvert_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		value  any
		typ    string
		format string
	}{
		{"integer from text", "abc", "integer", ""},
		{"integer from fraction", "2.5", "integer", ""},
		{"number from bool", true, "number", ""},
		{"boolean from text", "maybe", "boolean", ""},
		{"object from text", "not json", "object", ""},
		{"bad date", "yesterday", "string", "date"},
		{"integer above int64 range", "1e20", "integer", ""},
		{"float at int64 boundary", 9.3e18, "integer", ""},
		{"uint64 above int64 range", uint64(math.MaxUint64), "integer", ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Convert(tt.value, tt.typ, tt.format)
			var ce *ConversionError
			require.True(t, errors.As(err, &ce), "expected ConversionError, got %v", err)
			assert.Equal(t, tt.typ, ce.Type)
			assert.Equal(t, tt.value, ce.Value)
		})
	}
}

func TestConvert_IntegerKeepsPrecision(t *testing.T) {
	t.Parallel()
	got, err := Convert("9223372036854775807", "integer", "")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got)

	got, err = Convert(int64(math.MaxInt64), "integer", "")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got)

	got, err = Convert(json.Number("9007199254740993"), "integer", "")
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), got)
}

func TestConvertSchema_ArrayItems(t *testing.T) {
	t.Parallel()
	reg := spec.Registry{"Id": {Name: "Id", Type: "integer"}}
	schema := &spec.SchemaDefinition{Type: "array", Items: &spec.SchemaDefinition{Ref: "Id"}}

	got, err := ConvertSchema("1,2,3", schema, reg)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, got)

	_, err = ConvertSchema("1,x", schema, reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 1")
}

func TestSerialize_Arrays(t *testing.T) {
	t.Parallel()
	values := []any{"a b", int64(2), 3.5}
	tests := []struct {
		style   spec.Style
		explode bool
		want    string
	}{
		{spec.StyleForm, true, "ids=a+b&ids=2&ids=3.5"},
		{spec.StyleForm, false, "a b,2,3.5"},
		{spec.StyleSpaceDelimited, false, "a b 2 3.5"},
		{spec.StylePipeDelimited, false, "a b|2|3.5"},
		{spec.StyleSimple, false, "a b,2,3.5"},
		{spec.StyleSimple, true, "a b,2,3.5"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Serialize("ids", values, tt.style, tt.explode), "%s explode=%v", tt.style, tt.explode)
	}
}

func TestSerialize_Objects(t *testing.T) {
	t.Parallel()
	obj := map[string]any{"role": "admin", "firstName": "Alex"}
	assert.Equal(t, "firstName=Alex&role=admin", Serialize("id", obj, spec.StyleForm, true))
	assert.Equal(t, "firstName,Alex,role,admin", Serialize("id", obj, spec.StyleForm, false))
	assert.Equal(t, "firstName,Alex,role,admin", Serialize("id", obj, spec.StyleSimple, false))
	assert.Equal(t, "firstName=Alex,role=admin", Serialize("id", obj, spec.StyleSimple, true))
}

func TestSerialize_Scalars(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "5", Serialize("n", int64(5), spec.StyleForm, true))
	assert.Equal(t, "true", Serialize("b", true, spec.StyleSimple, false))
	assert.Equal(t, "", Serialize("x", nil, spec.StyleSimple, false))
}

func TestSerializeDeserialize_RoundTrip(t *testing.T) {
	t.Parallel()
	inputs := [][]any{
		{"available", "pending"},
		{"1", "22", "333"},
		{"single"},
		{},
		{"with space", "a&b", "x=y"},
	}
	styles := []spec.Style{spec.StyleSimple, spec.StyleForm, spec.StyleSpaceDelimited, spec.StylePipeDelimited}
	for _, style := range styles {
		for _, explode := range []bool{true, false} {
			for _, in := range inputs {
				if style != spec.StyleForm || !explode {
					if containsAny(in, " ", "&", "=", ",") {
						// Delimited encodings cannot carry their own separator.
						continue
					}
				}
				wire := Serialize("tags", in, style, explode)
				got, err := Deserialize("tags", wire, "array", style, explode)
				require.NoError(t, err)
				assert.Equal(t, in, got, "%s explode=%v wire=%q", style, explode, wire)
			}
		}
	}
}

func TestSerializeDeserialize_NumericRoundTrip(t *testing.T) {
	t.Parallel()
	converted, err := Convert([]any{1, 2.5, "3"}, "array", "")
	require.NoError(t, err)
	wire := Serialize("n", converted, spec.StylePipeDelimited, false)
	assert.Equal(t, "1|2.5|3", wire)

	got, err := Deserialize("n", wire, "array", spec.StylePipeDelimited, false)
	require.NoError(t, err)
	assert.Equal(t, []any{"1", "2.5", "3"}, got)
}

func TestDeserialize(t *testing.T) {
	t.Parallel()
	got, err := Deserialize("status", "status=available,pending", "array", spec.StyleForm, false)
	require.NoError(t, err)
	assert.Equal(t, []any{"available", "pending"}, got)

	got, err = Deserialize("ids", `["a","b"]`, "array", spec.StylePipeDelimited, false)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, got)

	got, err = Deserialize("id", "role,admin,firstName,Alex", "object", spec.StyleSimple, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"role": "admin", "firstName": "Alex"}, got)

	got, err = Deserialize("id", "role=admin&firstName=Alex", "object", spec.StyleForm, true)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"role": "admin", "firstName": "Alex"}, got)

	_, err = Deserialize("id", "role,admin,dangling", "object", spec.StyleSimple, false)
	assert.Error(t, err)

	got, err = Deserialize("q", "plain", "string", spec.StyleForm, true)
	require.NoError(t, err)
	assert.Equal(t, "plain", got)
}

func TestParseQuery(t *testing.T) {
	t.Parallel()
	defs := []spec.ParameterDefinition{
		{
			Name: "status", In: spec.InQuery, Style: spec.StyleForm, Explode: false,
			Schema: &spec.SchemaDefinition{Type: "array", Items: &spec.SchemaDefinition{Type: "string"}},
		},
		{
			Name: "id", In: spec.InQuery, Style: spec.StyleForm, Explode: true,
			Schema: &spec.SchemaDefinition{Type: "array", Items: &spec.SchemaDefinition{Type: "integer"}},
		},
		{
			Name: "tags", In: spec.InQuery, Style: spec.StylePipeDelimited,
			Schema: &spec.SchemaDefinition{Type: "array", Items: &spec.SchemaDefinition{Type: "string"}},
		},
		{Name: "limit", In: spec.InQuery, Style: spec.StyleForm, Explode: true, Schema: &spec.SchemaDefinition{Type: "integer"}},
		{Name: "active", In: spec.InQuery, Style: spec.StyleForm, Explode: true, Schema: &spec.SchemaDefinition{Type: "boolean"}},
		{Name: "X-Trace", In: spec.InHeader, Schema: &spec.SchemaDefinition{Type: "string"}},
		{Name: "missing", In: spec.InQuery, Schema: &spec.SchemaDefinition{Type: "string"}},
	}

	got, err := ParseQuery("status=available,pending&id=3&id=4&tags=a|b&limit=10&active=yes&X-Trace=abc", defs, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"status": []any{"available", "pending"},
		"id":     []any{int64(3), int64(4)},
		"tags":   []any{"a", "b"},
		"limit":  int64(10),
		"active": true,
	}, got)
}

func TestParseQuery_ExplodedObject(t *testing.T) {
	t.Parallel()
	defs := []spec.ParameterDefinition{{
		Name: "filter", In: spec.InQuery, Style: spec.StyleForm, Explode: true,
		Schema: &spec.SchemaDefinition{Type: "object", Properties: map[string]*spec.SchemaDefinition{
			"min_age": {Type: "integer"},
			"city":    {Type: "string"},
		}},
	}}
	got, err := ParseQuery("min_age=18&city=Oslo&other=1", defs, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"filter": map[string]any{"min_age": int64(18), "city": "Oslo"}}, got)
}

func TestParseQuery_ConversionFailure(t *testing.T) {
	t.Parallel()
	defs := []spec.ParameterDefinition{{Name: "limit", In: spec.InQuery, Schema: &spec.SchemaDefinition{Type: "integer"}}}
	_, err := ParseQuery("limit=ten", defs, nil)
	var ce *ConversionError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "limit")
}

func containsAny(items []any, subs ...string) bool {
	for _, item := range items {
		s, _ := item.(string)
		for _, sub := range subs {
			for i := 0; i+len(sub) <= len(s); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}
