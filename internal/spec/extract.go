package spec

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// LoadTyped re-encodes the raw tree and loads it as a kin-openapi document.
// External references are not followed.
func LoadTyped(raw RawDocument) (*openapi3.T, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("typed load: %w", err)
	}
	return doc, nil
}

// ExtractEndpoints walks a typed document into endpoints keyed by operation id.
func ExtractEndpoints(doc *openapi3.T) (map[string]*Endpoint, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}
	out := make(map[string]*Endpoint)
	if doc.Paths == nil {
		return out, nil
	}
	ids := newOperationIDs()

	// Sort paths for determinism
	pathKeys := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		pathKeys = append(pathKeys, p)
	}
	sort.Strings(pathKeys)

	for _, p := range pathKeys {
		item := doc.Paths[p]
		if item == nil {
			continue
		}
		// Merge parameters: path-level first, overridden by op-level.
		baseParams := make(map[string]ParameterDefinition)
		for _, pref := range item.Parameters {
			if pd, ok := parameterFromRef(pref); ok {
				baseParams[paramKey(pd.In, pd.Name)] = pd
			}
		}

		ops := map[HttpMethod]*openapi3.Operation{
			GET:     item.Get,
			POST:    item.Post,
			PUT:     item.Put,
			PATCH:   item.Patch,
			DELETE:  item.Delete,
			HEAD:    item.Head,
			OPTIONS: item.Options,
			TRACE:   item.Trace,
		}
		for _, m := range httpMethods {
			op := ops[m]
			if op == nil {
				continue
			}
			merged := make(map[string]ParameterDefinition, len(baseParams))
			for k, v := range baseParams {
				merged[k] = v
			}
			for _, pref := range op.Parameters {
				if pd, ok := parameterFromRef(pref); ok {
					merged[paramKey(pd.In, pd.Name)] = pd
				}
			}

			ep := &Endpoint{
				OperationID: ids.next(op.OperationID, m, p),
				Path:        p,
				Method:      m,
				Summary:     safeStr(op.Summary),
				Description: safeStr(op.Description),
				Tags:        cleanTags(op.Tags),
				Parameters:  sortParameters(merged),
				Responses:   make(map[string]ResponseSpec),
				Deprecated:  op.Deprecated,
			}

			if op.RequestBody != nil && op.RequestBody.Value != nil {
				rb := op.RequestBody.Value
				ep.RequestBody = &RequestBody{
					Description: safeStr(rb.Description),
					Required:    rb.Required,
					Content:     contentSchemas(rb.Content),
				}
			}

			for code, rref := range op.Responses {
				if rref == nil || rref.Value == nil {
					continue
				}
				desc := ""
				if rref.Value.Description != nil {
					desc = safeStr(*rref.Value.Description)
				}
				ep.Responses[code] = ResponseSpec{Description: desc, Content: contentSchemas(rref.Value.Content)}
			}

			if op.Security != nil {
				ep.Security = securityRequirements(*op.Security)
			} else {
				ep.Security = securityRequirements(doc.Security)
			}

			out[ep.OperationID] = ep
		}
	}
	return out, nil
}

// ExtractSchemas walks components.schemas of a typed document.
func ExtractSchemas(doc *openapi3.T) (Registry, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}
	reg := make(Registry)
	if doc.Components == nil {
		return reg, nil
	}
	for _, name := range sortedKeys(doc.Components.Schemas) {
		def := schemaFromRef(doc.Components.Schemas[name])
		if def == nil {
			continue
		}
		def.Name = name
		reg[name] = def
	}
	return reg, nil
}

func parameterFromRef(pref *openapi3.ParameterRef) (ParameterDefinition, bool) {
	if pref == nil || pref.Value == nil {
		return ParameterDefinition{}, false
	}
	p := pref.Value
	schema := schemaFromRef(p.Schema)
	if schema == nil && len(p.Content) > 0 {
		for _, mime := range sortedKeys(p.Content) {
			if mt := p.Content[mime]; mt != nil && mt.Schema != nil {
				schema = schemaFromRef(mt.Schema)
				break
			}
		}
	}
	pd := newParameter(safeStr(p.Name), Location(strings.ToLower(safeStr(p.In))), p.Required, schema, p.Style, p.Explode)
	pd.Description = safeStr(p.Description)
	pd.Deprecated = p.Deprecated
	pd.Extensions = extensions(p.Extensions)
	return pd, pd.Name != ""
}

// newParameter applies OpenAPI location defaults for style and explode.
func newParameter(name string, in Location, required bool, schema *SchemaDefinition, style string, explode *bool) ParameterDefinition {
	st, ex := DefaultStyle(in)
	if style != "" {
		if parsed, ok := ParseStyle(style); ok {
			st = parsed
			// explode defaults to true only for form.
			ex = parsed == StyleForm
		}
	}
	if explode != nil {
		ex = *explode
	}
	if in == InPath {
		required = true
	}
	return ParameterDefinition{
		Name:     name,
		In:       in,
		Required: required,
		Schema:   schema,
		Style:    st,
		Explode:  ex,
	}
}

func sortParameters(merged map[string]ParameterDefinition) []ParameterDefinition {
	params := make([]ParameterDefinition, 0, len(merged))
	for _, v := range merged {
		params = append(params, v)
	}
	sort.Slice(params, func(i, j int) bool {
		if params[i].In == params[j].In {
			return params[i].Name < params[j].Name
		}
		return params[i].In < params[j].In
	})
	return params
}

func contentSchemas(content openapi3.Content) map[string]*SchemaDefinition {
	if len(content) == 0 {
		return nil
	}
	out := make(map[string]*SchemaDefinition, len(content))
	for mime, mt := range content {
		if mt == nil {
			continue
		}
		out[mime] = schemaFromRef(mt.Schema)
	}
	return out
}

func schemaFromRef(ref *openapi3.SchemaRef) *SchemaDefinition {
	if ref == nil {
		return nil
	}
	if ref.Ref != "" {
		return &SchemaDefinition{Ref: componentName(ref.Ref, "schemas")}
	}
	if ref.Value == nil {
		return nil
	}
	v := ref.Value
	s := &SchemaDefinition{
		Type:             safeStr(v.Type),
		Format:           safeStr(v.Format),
		Description:      safeStr(v.Description),
		Required:         append([]string(nil), v.Required...),
		Pattern:          v.Pattern,
		Default:          v.Default,
		Nullable:         v.Nullable,
		Minimum:          v.Min,
		Maximum:          v.Max,
		ExclusiveMinimum: v.ExclusiveMin,
		ExclusiveMaximum: v.ExclusiveMax,
		MultipleOf:       v.MultipleOf,
		UniqueItems:      v.UniqueItems,
	}
	if len(v.Enum) > 0 {
		s.Enum = append([]any(nil), v.Enum...)
	}
	if v.MinLength > 0 {
		s.MinLength = intPtr(int(v.MinLength))
	}
	if v.MaxLength != nil {
		s.MaxLength = intPtr(int(*v.MaxLength))
	}
	if v.MinItems > 0 {
		s.MinItems = intPtr(int(v.MinItems))
	}
	if v.MaxItems != nil {
		s.MaxItems = intPtr(int(*v.MaxItems))
	}
	if v.Items != nil {
		s.Items = schemaFromRef(v.Items)
	}
	if len(v.Properties) > 0 {
		s.Properties = make(map[string]*SchemaDefinition, len(v.Properties))
		for name, prop := range v.Properties {
			if def := schemaFromRef(prop); def != nil {
				s.Properties[name] = def
			}
		}
	}
	// allOf members contribute their properties and required lists.
	for _, member := range v.AllOf {
		mergeAllOf(s, schemaFromRef(member))
	}
	if s.Type == "" && len(s.Properties) > 0 {
		s.Type = "object"
	}
	return s
}

// mergeAllOf folds an inline allOf member into s. Referenced members are kept
// as property-less links; they are resolved through the registry on demand.
func mergeAllOf(s, member *SchemaDefinition) {
	if member == nil || member.Ref != "" {
		return
	}
	if s.Type == "" {
		s.Type = member.Type
	}
	if len(member.Properties) > 0 && s.Properties == nil {
		s.Properties = make(map[string]*SchemaDefinition, len(member.Properties))
	}
	for name, prop := range member.Properties {
		if _, exists := s.Properties[name]; !exists {
			s.Properties[name] = prop
		}
	}
	for _, r := range member.Required {
		if !s.IsRequired(r) {
			s.Required = append(s.Required, r)
		}
	}
}

func securityRequirements(reqs openapi3.SecurityRequirements) []SecurityRequirement {
	if len(reqs) == 0 {
		return nil
	}
	out := make([]SecurityRequirement, 0, len(reqs))
	for _, req := range reqs {
		sr := make(SecurityRequirement, len(req))
		for scheme, scopes := range req {
			sr[scheme] = append([]string{}, scopes...)
		}
		out = append(out, sr)
	}
	return out
}

func securitySchemes(doc *openapi3.T) map[string]SecurityScheme {
	if doc == nil || doc.Components == nil || len(doc.Components.SecuritySchemes) == 0 {
		return nil
	}
	out := make(map[string]SecurityScheme, len(doc.Components.SecuritySchemes))
	for name, ref := range doc.Components.SecuritySchemes {
		if ref == nil || ref.Value == nil {
			continue
		}
		v := ref.Value
		out[name] = SecurityScheme{
			Type:         v.Type,
			Scheme:       v.Scheme,
			BearerFormat: v.BearerFormat,
			In:           v.In,
			Name:         v.Name,
			Description:  safeStr(v.Description),
		}
	}
	return out
}

func cleanTags(in []string) []string {
	tags := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// extensions copies x- values, decoding any raw JSON left by the loader.
func extensions(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if raw, ok := v.(json.RawMessage); ok {
			var decoded any
			if err := json.Unmarshal(raw, &decoded); err == nil {
				v = decoded
			}
		}
		out[k] = v
	}
	return out
}

func intPtr(n int) *int { return &n }
