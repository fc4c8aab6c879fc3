package spec

import (
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// GenerateModelMappings groups endpoints by resource and infers the CRUD role
// of each operation, the resource attributes and relationship hints.
func GenerateModelMappings(endpoints map[string]*Endpoint, reg Registry) map[string]*ModelMapping {
	ordered := make([]*Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if ep != nil {
			ordered = append(ordered, ep)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Path == ordered[j].Path {
			return methodRank(ordered[i].Method) < methodRank(ordered[j].Method)
		}
		return ordered[i].Path < ordered[j].Path
	})

	mappings := make(map[string]*ModelMapping)
	members := make(map[string][]*Endpoint)
	for _, ep := range ordered {
		base, resource, item, ok := splitResourcePath(ep.Path)
		if !ok {
			continue
		}
		mm, exists := mappings[resource]
		if !exists {
			mm = &ModelMapping{Resource: resource, ModelName: ModelName(resource), BaseEndpoint: base}
			mappings[resource] = mm
		}
		if len(base) < len(mm.BaseEndpoint) {
			mm.BaseEndpoint = base
		}
		members[resource] = append(members[resource], ep)

		t, ok := inferOperation(ep.Method, item)
		if !ok {
			continue
		}
		if _, taken := mm.Operation(t); taken {
			continue
		}
		mm.Operations = append(mm.Operations, MappedOperation{Type: t, OperationID: ep.OperationID})
	}

	for resource, mm := range mappings {
		mm.SchemaName = primarySchemaName(mm, members[resource], endpoints, reg)
		if mm.SchemaName == "" {
			continue
		}
		schema, err := reg.Resolve(reg[mm.SchemaName])
		if err != nil || schema == nil {
			continue
		}
		mm.Attributes = attributes(schema, reg)
		mm.Relationships = relationships(mm.SchemaName, schema, reg)
	}
	return mappings
}

// ModelName converts a resource segment to a singular studly name, e.g.
// pet_owners becomes PetOwner.
func ModelName(resource string) string {
	parts := strings.FieldsFunc(resource, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	})
	if len(parts) == 0 {
		return ""
	}
	parts[len(parts)-1] = inflection.Singular(parts[len(parts)-1])
	caser := cases.Title(language.English, cases.NoLower)
	for i, p := range parts {
		parts[i] = caser.String(p)
	}
	return strings.Join(parts, "")
}

// splitResourcePath returns the collection path, the resource name and
// whether the path addresses a single item (ends in a path parameter).
func splitResourcePath(path string) (base, resource string, item, ok bool) {
	var segments []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return "", "", false, false
	}
	if isPathParam(segments[len(segments)-1]) {
		item = true
		segments = segments[:len(segments)-1]
	}
	if len(segments) == 0 || isPathParam(segments[len(segments)-1]) {
		return "", "", false, false
	}
	return "/" + strings.Join(segments, "/"), segments[len(segments)-1], item, true
}

func isPathParam(seg string) bool {
	return strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}")
}

func inferOperation(m HttpMethod, item bool) (OperationType, bool) {
	switch {
	case m == GET && !item:
		return OpIndex, true
	case m == POST && !item:
		return OpStore, true
	case m == GET && item:
		return OpShow, true
	case (m == PUT || m == PATCH) && item:
		return OpUpdate, true
	case m == DELETE && item:
		return OpDestroy, true
	default:
		return "", false
	}
}

func methodRank(m HttpMethod) int {
	for i, candidate := range httpMethods {
		if candidate == m {
			return i
		}
	}
	return len(httpMethods)
}

func primarySchemaName(mm *ModelMapping, members []*Endpoint, endpoints map[string]*Endpoint, reg Registry) string {
	for _, name := range sortedKeys(reg) {
		if strings.EqualFold(name, mm.ModelName) || strings.EqualFold(name, mm.Resource) {
			return name
		}
	}
	for _, t := range []OperationType{OpShow, OpIndex, OpStore, OpUpdate} {
		id, ok := mm.Operation(t)
		if !ok {
			continue
		}
		ep := endpoints[id]
		if name := responseSchemaName(ep); name != "" {
			return name
		}
		if (t == OpStore || t == OpUpdate) && ep.RequestBody != nil {
			if name := contentSchemaName(ep.RequestBody.Content); name != "" {
				return name
			}
		}
	}
	for _, ep := range members {
		if name := responseSchemaName(ep); name != "" {
			return name
		}
	}
	return ""
}

func responseSchemaName(ep *Endpoint) string {
	if ep == nil {
		return ""
	}
	for _, code := range sortedKeys(ep.Responses) {
		if !strings.HasPrefix(code, "2") {
			continue
		}
		if name := contentSchemaName(ep.Responses[code].Content); name != "" {
			return name
		}
	}
	return ""
}

// contentSchemaName prefers JSON media and unwraps arrays of references.
func contentSchemaName(content map[string]*SchemaDefinition) string {
	mimes := sortedKeys(content)
	sort.SliceStable(mimes, func(i, j int) bool {
		return strings.Contains(mimes[i], "json") && !strings.Contains(mimes[j], "json")
	})
	for _, mime := range mimes {
		s := content[mime]
		if s == nil {
			continue
		}
		if s.Ref != "" {
			return s.Ref
		}
		if s.Type == "array" && s.Items != nil && s.Items.Ref != "" {
			return s.Items.Ref
		}
	}
	return ""
}

func attributes(schema *SchemaDefinition, reg Registry) []AttributeDescriptor {
	out := make([]AttributeDescriptor, 0, len(schema.Properties))
	for _, name := range sortedKeys(schema.Properties) {
		prop := schema.Properties[name]
		attr := AttributeDescriptor{Name: name, Required: schema.IsRequired(name)}
		if prop != nil {
			attr.Ref = prop.Ref
			if prop.Type == "array" && prop.Items != nil {
				attr.Ref = prop.Items.Ref
			}
			resolved, err := reg.Resolve(prop)
			if err == nil && resolved != nil {
				attr.Type = resolved.Type
				attr.Format = resolved.Format
				attr.Nullable = resolved.Nullable
			}
		}
		out = append(out, attr)
	}
	return out
}

func relationships(self string, schema *SchemaDefinition, reg Registry) []RelationshipHint {
	var out []RelationshipHint
	for _, name := range sortedKeys(schema.Properties) {
		prop := schema.Properties[name]
		if prop == nil {
			continue
		}
		target, cardinality := "", One
		switch {
		case prop.Ref != "":
			target = prop.Ref
		case prop.Type == "array" && prop.Items != nil && prop.Items.Ref != "":
			target, cardinality = prop.Items.Ref, Many
		default:
			continue
		}
		if target == self || !isObjectSchema(reg, target) {
			continue
		}
		out = append(out, RelationshipHint{Name: name, TargetResource: target, Cardinality: cardinality})
	}
	return out
}

func isObjectSchema(reg Registry, name string) bool {
	s, err := reg.Resolve(&SchemaDefinition{Ref: name})
	if err != nil || s == nil {
		return false
	}
	return s.Type == "object" || (s.Type == "" && len(s.Properties) > 0)
}
