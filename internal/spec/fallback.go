package spec

import (
	"fmt"
	"strings"
)

// ExtractEndpointsRaw synthesizes endpoints straight from the raw tree. It is
// used when the typed walk yields nothing, e.g. for path items using features
// the typed model cannot represent.
func ExtractEndpointsRaw(raw RawDocument) (map[string]*Endpoint, error) {
	paths, ok := raw["paths"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("paths must be a mapping, got %T", raw["paths"])
	}
	out := make(map[string]*Endpoint)
	ids := newOperationIDs()
	docSecurity := rawSecurity(raw["security"])

	for _, p := range sortedKeys(paths) {
		item, ok := paths[p].(map[string]any)
		if !ok {
			continue
		}
		baseParams := make(map[string]ParameterDefinition)
		for _, rp := range rawList(item["parameters"]) {
			if pd, ok := rawParameter(raw, rp); ok {
				baseParams[paramKey(pd.In, pd.Name)] = pd
			}
		}

		for _, m := range httpMethods {
			op, ok := item[strings.ToLower(string(m))].(map[string]any)
			if !ok {
				continue
			}
			merged := make(map[string]ParameterDefinition, len(baseParams))
			for k, v := range baseParams {
				merged[k] = v
			}
			for _, rp := range rawList(op["parameters"]) {
				if pd, ok := rawParameter(raw, rp); ok {
					merged[paramKey(pd.In, pd.Name)] = pd
				}
			}

			deprecated, _ := rawBool(op, "deprecated")
			ep := &Endpoint{
				OperationID: ids.next(rawString(op, "operationId"), m, p),
				Path:        p,
				Method:      m,
				Summary:     rawString(op, "summary"),
				Description: rawString(op, "description"),
				Tags:        rawStringList(op["tags"]),
				Parameters:  sortParameters(merged),
				Responses:   make(map[string]ResponseSpec),
				Deprecated:  deprecated,
			}
			if ep.Tags == nil {
				ep.Tags = []string{}
			}

			if rb, ok := resolveRawRef(raw, op["requestBody"], "requestBodies"); ok {
				required, _ := rawBool(rb, "required")
				ep.RequestBody = &RequestBody{
					Description: rawString(rb, "description"),
					Required:    required,
					Content:     rawContent(rb["content"]),
				}
			}

			if responses, ok := op["responses"].(map[string]any); ok {
				for code, rr := range responses {
					resp, ok := resolveRawRef(raw, rr, "responses")
					if !ok {
						continue
					}
					ep.Responses[code] = ResponseSpec{
						Description: rawString(resp, "description"),
						Content:     rawContent(resp["content"]),
					}
				}
			}

			if sec, present := op["security"]; present {
				ep.Security = rawSecurity(sec)
			} else {
				ep.Security = docSecurity
			}

			out[ep.OperationID] = ep
		}
	}
	return out, nil
}

// ExtractSchemasRaw walks components.schemas of the raw tree.
func ExtractSchemasRaw(raw RawDocument) (Registry, error) {
	reg := make(Registry)
	components, present := raw["components"]
	if !present || components == nil {
		return reg, nil
	}
	cm, ok := components.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("components must be a mapping, got %T", components)
	}
	schemas, present := cm["schemas"]
	if !present || schemas == nil {
		return reg, nil
	}
	sm, ok := schemas.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("components.schemas must be a mapping, got %T", schemas)
	}
	for _, name := range sortedKeys(sm) {
		def, err := SchemaFromRaw(sm[name])
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
		def.Name = name
		reg[name] = def
	}
	return reg, nil
}

// SchemaFromRaw converts a raw schema mapping to a SchemaDefinition.
func SchemaFromRaw(v any) (*SchemaDefinition, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("schema must be a mapping, got %T", v)
	}
	if ref := rawString(m, "$ref"); ref != "" {
		return &SchemaDefinition{Ref: componentName(ref, "schemas")}, nil
	}
	s := &SchemaDefinition{
		Format:      rawString(m, "format"),
		Description: rawString(m, "description"),
		Pattern:     rawString(m, "pattern"),
		Required:    rawStringList(m["required"]),
		Default:     m["default"],
		Minimum:     rawFloat(m, "minimum"),
		Maximum:     rawFloat(m, "maximum"),
		MultipleOf:  rawFloat(m, "multipleOf"),
		MinLength:   rawInt(m, "minLength"),
		MaxLength:   rawInt(m, "maxLength"),
		MinItems:    rawInt(m, "minItems"),
		MaxItems:    rawInt(m, "maxItems"),
	}
	s.Type, s.Nullable = rawType(m)
	if b, ok := rawBool(m, "nullable"); ok && b {
		s.Nullable = true
	}
	s.UniqueItems, _ = rawBool(m, "uniqueItems")

	// 3.0 uses boolean exclusive flags, 3.1 uses numeric bounds.
	switch ex := m["exclusiveMinimum"].(type) {
	case bool:
		s.ExclusiveMinimum = ex
	default:
		if f, ok := toFloat(ex); ok {
			s.Minimum, s.ExclusiveMinimum = &f, true
		}
	}
	switch ex := m["exclusiveMaximum"].(type) {
	case bool:
		s.ExclusiveMaximum = ex
	default:
		if f, ok := toFloat(ex); ok {
			s.Maximum, s.ExclusiveMaximum = &f, true
		}
	}

	if enum, ok := m["enum"].([]any); ok && len(enum) > 0 {
		s.Enum = append([]any(nil), enum...)
	}
	if items, present := m["items"]; present && items != nil {
		def, err := SchemaFromRaw(items)
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		s.Items = def
	}
	if props, ok := m["properties"].(map[string]any); ok && len(props) > 0 {
		s.Properties = make(map[string]*SchemaDefinition, len(props))
		for name, pv := range props {
			def, err := SchemaFromRaw(pv)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", name, err)
			}
			s.Properties[name] = def
		}
	}
	for _, member := range rawList(m["allOf"]) {
		def, err := SchemaFromRaw(member)
		if err != nil {
			return nil, fmt.Errorf("allOf: %w", err)
		}
		mergeAllOf(s, def)
	}
	if s.Type == "" && len(s.Properties) > 0 {
		s.Type = "object"
	}
	return s, nil
}

// rawType reads "type", accepting the 3.1 list form such as [string, "null"].
func rawType(m map[string]any) (string, bool) {
	switch t := m["type"].(type) {
	case string:
		return strings.TrimSpace(t), false
	case []any:
		typ, nullable := "", false
		for _, entry := range t {
			s, _ := entry.(string)
			if s == "null" {
				nullable = true
				continue
			}
			if typ == "" {
				typ = s
			}
		}
		return typ, nullable
	default:
		return "", false
	}
}

func rawParameter(raw RawDocument, v any) (ParameterDefinition, bool) {
	m, ok := resolveRawRef(raw, v, "parameters")
	if !ok {
		return ParameterDefinition{}, false
	}
	var schema *SchemaDefinition
	if sv, present := m["schema"]; present {
		schema, _ = SchemaFromRaw(sv)
	} else if content := rawContent(m["content"]); len(content) > 0 {
		for _, mime := range sortedKeys(content) {
			schema = content[mime]
			break
		}
	}
	var explode *bool
	if b, ok := rawBool(m, "explode"); ok {
		explode = &b
	}
	required, _ := rawBool(m, "required")
	pd := newParameter(rawString(m, "name"), Location(strings.ToLower(rawString(m, "in"))), required, schema, rawString(m, "style"), explode)
	pd.Description = rawString(m, "description")
	pd.Deprecated, _ = rawBool(m, "deprecated")
	pd.Extensions = rawExtensions(m)
	return pd, pd.Name != ""
}

// resolveRawRef returns v as a mapping, following a local
// #/components/<section>/<name> reference when present.
func resolveRawRef(raw RawDocument, v any, section string) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	ref := rawString(m, "$ref")
	if ref == "" {
		return m, true
	}
	components, _ := raw["components"].(map[string]any)
	entries, _ := components[section].(map[string]any)
	target, ok := entries[componentName(ref, section)].(map[string]any)
	return target, ok
}

func rawContent(v any) map[string]*SchemaDefinition {
	content, ok := v.(map[string]any)
	if !ok || len(content) == 0 {
		return nil
	}
	out := make(map[string]*SchemaDefinition, len(content))
	for mime, mv := range content {
		mt, ok := mv.(map[string]any)
		if !ok {
			continue
		}
		var schema *SchemaDefinition
		if sv, present := mt["schema"]; present {
			schema, _ = SchemaFromRaw(sv)
		}
		out[mime] = schema
	}
	return out
}

func rawSecurity(v any) []SecurityRequirement {
	list := rawList(v)
	if len(list) == 0 {
		return nil
	}
	out := make([]SecurityRequirement, 0, len(list))
	for _, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		sr := make(SecurityRequirement, len(m))
		for scheme, scopes := range m {
			sr[scheme] = rawStringList(scopes)
			if sr[scheme] == nil {
				sr[scheme] = []string{}
			}
		}
		out = append(out, sr)
	}
	return out
}

func rawSecuritySchemes(raw RawDocument) map[string]SecurityScheme {
	components, _ := raw["components"].(map[string]any)
	schemes, _ := components["securitySchemes"].(map[string]any)
	if len(schemes) == 0 {
		return nil
	}
	out := make(map[string]SecurityScheme, len(schemes))
	for name, sv := range schemes {
		m, ok := sv.(map[string]any)
		if !ok {
			continue
		}
		out[name] = SecurityScheme{
			Type:         rawString(m, "type"),
			Scheme:       rawString(m, "scheme"),
			BearerFormat: rawString(m, "bearerFormat"),
			In:           rawString(m, "in"),
			Name:         rawString(m, "name"),
			Description:  rawString(m, "description"),
		}
	}
	return out
}

func rawExtensions(m map[string]any) map[string]any {
	var out map[string]any
	for k, v := range m {
		if !strings.HasPrefix(k, "x-") {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[k] = v
	}
	return out
}

func rawList(v any) []any {
	list, _ := v.([]any)
	return list
}
