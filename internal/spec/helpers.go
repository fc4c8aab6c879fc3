package spec

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func safeStr(s string) string { return strings.TrimSpace(s) }

func paramKey(in Location, name string) string { return string(in) + ":" + name }

// rawString reads a string field from a raw mapping.
func rawString(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func rawBool(m map[string]any, key string) (bool, bool) {
	b, ok := m[key].(bool)
	return b, ok
}

// rawFloat reads a numeric field; JSON yields float64 and YAML yields int.
func rawFloat(m map[string]any, key string) *float64 {
	v, ok := m[key]
	if !ok {
		return nil
	}
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	return &f
}

func rawInt(m map[string]any, key string) *int {
	f := rawFloat(m, key)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func rawStringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// operationIDs allocates unique operation ids, synthesizing one from the
// method and path when the document does not declare it.
type operationIDs struct {
	seen map[string]int
}

func newOperationIDs() *operationIDs {
	return &operationIDs{seen: make(map[string]int)}
}

func (o *operationIDs) next(declared string, method HttpMethod, path string) string {
	id := strings.TrimSpace(declared)
	if id == "" {
		id = SynthesizeOperationID(method, path)
	}
	n := o.seen[id]
	o.seen[id] = n + 1
	if n == 0 {
		return id
	}
	for {
		n++
		candidate := id + "_" + strconv.Itoa(n)
		if _, taken := o.seen[candidate]; !taken {
			o.seen[candidate] = 1
			return candidate
		}
	}
}

// SynthesizeOperationID derives an id from method and path, e.g.
// GET /pets/{id} becomes get_pets_id.
func SynthesizeOperationID(method HttpMethod, path string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(string(method)))
	underscore := true
	for _, r := range strings.ToLower(path) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if underscore {
				b.WriteByte('_')
				underscore = false
			}
			b.WriteRune(r)
			continue
		}
		underscore = true
	}
	return b.String()
}

// componentName strips the local component prefix from a $ref.
func componentName(ref, section string) string {
	prefix := "#/components/" + section + "/"
	if strings.HasPrefix(ref, prefix) {
		return strings.TrimPrefix(ref, prefix)
	}
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}
