package spec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type RuleKind string

const (
	RuleRequired   RuleKind = "required"
	RuleType       RuleKind = "type"
	RuleFormat     RuleKind = "format"
	RuleMin        RuleKind = "min"
	RuleMax        RuleKind = "max"
	RuleMinLength  RuleKind = "min_length"
	RuleMaxLength  RuleKind = "max_length"
	RuleRegex      RuleKind = "regex"
	RuleIn         RuleKind = "in"
	RuleMinItems   RuleKind = "min_items"
	RuleMaxItems   RuleKind = "max_items"
	RuleDistinct   RuleKind = "distinct"
	RuleMultipleOf RuleKind = "multiple_of"
)

// Rule is one declarative constraint on an attribute.
type Rule struct {
	Kind RuleKind
	// Value carries the type name, format, bound, pattern or enum values.
	Value any
	// Strict marks exclusive numeric bounds.
	Strict bool
}

func (r Rule) String() string {
	switch r.Kind {
	case RuleRequired, RuleDistinct:
		return string(r.Kind)
	case RuleType, RuleFormat:
		return fmt.Sprint(r.Value)
	case RuleMin:
		if r.Strict {
			return "gt:" + formatNumber(r.Value)
		}
		return "min:" + formatNumber(r.Value)
	case RuleMax:
		if r.Strict {
			return "lt:" + formatNumber(r.Value)
		}
		return "max:" + formatNumber(r.Value)
	case RuleRegex:
		return "regex:/" + fmt.Sprint(r.Value) + "/"
	case RuleIn:
		values, _ := r.Value.([]any)
		parts := make([]string, 0, len(values))
		for _, v := range values {
			parts = append(parts, fmt.Sprint(v))
		}
		return "in:" + strings.Join(parts, ",")
	default:
		return string(r.Kind) + ":" + formatNumber(r.Value)
	}
}

func formatNumber(v any) string {
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// RuleSet maps attribute names to their ordered rules. Nested properties use
// dotted names and array items use ".*".
type RuleSet map[string][]Rule

// Attributes returns the attribute names in sorted order.
func (rs RuleSet) Attributes() []string { return sortedKeys(rs) }

// Strings renders each attribute's rules in compact form.
func (rs RuleSet) Strings() map[string][]string {
	out := make(map[string][]string, len(rs))
	for attr, rules := range rs {
		rendered := make([]string, 0, len(rules))
		for _, r := range rules {
			rendered = append(rendered, r.String())
		}
		out[attr] = rendered
	}
	return out
}

// Has reports whether attr carries a rule of the given kind.
func (rs RuleSet) Has(attr string, kind RuleKind) bool {
	for _, r := range rs[attr] {
		if r.Kind == kind {
			return true
		}
	}
	return false
}

func (rs RuleSet) add(attr string, rules ...Rule) {
	for _, r := range rules {
		if r.Kind == RuleRequired && rs.Has(attr, RuleRequired) {
			continue
		}
		rs[attr] = append(rs[attr], r)
	}
}

// merge appends other's rules, skipping exact duplicates.
func (rs RuleSet) merge(other RuleSet) {
	for _, attr := range other.Attributes() {
	next:
		for _, r := range other[attr] {
			for _, existing := range rs[attr] {
				if existing.String() == r.String() {
					continue next
				}
			}
			rs[attr] = append(rs[attr], r)
		}
	}
}

// ValidationRules are generated once per contract.
type ValidationRules struct {
	Schemas    map[string]RuleSet // by schema name
	Operations map[string]RuleSet // by operation id, from parameters
}

// GenerateSchemaRules derives rules for every property of an object schema,
// or for the single attribute "value" when schema is not an object.
func GenerateSchemaRules(schema *SchemaDefinition, reg Registry) RuleSet {
	rs := make(RuleSet)
	g := ruleGenerator{reg: reg, visiting: make(map[string]struct{})}
	if schema != nil && schema.Name != "" {
		g.visiting[schema.Name] = struct{}{}
	}
	resolved := g.resolve(schema)
	if resolved == nil {
		return rs
	}
	if resolved.Type == "object" || len(resolved.Properties) > 0 {
		g.properties(rs, "", resolved)
		return rs
	}
	g.attribute(rs, "value", schema, false)
	return rs
}

// GenerateParameterRules derives the rules for one parameter.
func GenerateParameterRules(p ParameterDefinition, reg Registry) RuleSet {
	rs := make(RuleSet)
	g := ruleGenerator{reg: reg, visiting: make(map[string]struct{})}
	g.attribute(rs, p.Name, p.Schema, p.Required)
	return rs
}

type ruleGenerator struct {
	reg      Registry
	visiting map[string]struct{}
}

func (g ruleGenerator) resolve(s *SchemaDefinition) *SchemaDefinition {
	resolved, err := g.reg.Resolve(s)
	if err != nil {
		return nil
	}
	return resolved
}

func (g ruleGenerator) properties(rs RuleSet, prefix string, s *SchemaDefinition) {
	for _, name := range sortedKeys(s.Properties) {
		g.attribute(rs, joinAttr(prefix, name), s.Properties[name], s.IsRequired(name))
	}
	// Required properties without a declared schema still get a rule.
	for _, name := range s.Required {
		if _, declared := s.Properties[name]; !declared {
			rs.add(joinAttr(prefix, name), Rule{Kind: RuleRequired})
		}
	}
}

func (g ruleGenerator) attribute(rs RuleSet, attr string, schema *SchemaDefinition, required bool) {
	if required {
		rs.add(attr, Rule{Kind: RuleRequired})
	}
	if _, ok := rs[attr]; !ok {
		rs[attr] = nil
	}
	if schema == nil {
		return
	}
	if ref := schema.Ref; ref != "" {
		if _, loop := g.visiting[ref]; loop {
			return
		}
		g.visiting[ref] = struct{}{}
		defer delete(g.visiting, ref)
	}
	s := g.resolve(schema)
	if s == nil {
		return
	}

	if t := ruleType(s.Type); t != "" {
		rs.add(attr, Rule{Kind: RuleType, Value: t})
	}
	switch s.Format {
	case "email", "date", "date-time", "uuid":
		rs.add(attr, Rule{Kind: RuleFormat, Value: s.Format})
	case "url", "uri":
		rs.add(attr, Rule{Kind: RuleFormat, Value: "url"})
	}
	if s.Minimum != nil {
		rs.add(attr, Rule{Kind: RuleMin, Value: *s.Minimum, Strict: s.ExclusiveMinimum})
	}
	if s.Maximum != nil {
		rs.add(attr, Rule{Kind: RuleMax, Value: *s.Maximum, Strict: s.ExclusiveMaximum})
	}
	if s.MultipleOf != nil {
		rs.add(attr, Rule{Kind: RuleMultipleOf, Value: *s.MultipleOf})
	}
	if s.MinLength != nil {
		rs.add(attr, Rule{Kind: RuleMinLength, Value: *s.MinLength})
	}
	if s.MaxLength != nil {
		rs.add(attr, Rule{Kind: RuleMaxLength, Value: *s.MaxLength})
	}
	if s.Pattern != "" {
		rs.add(attr, Rule{Kind: RuleRegex, Value: s.Pattern})
	}
	if len(s.Enum) > 0 {
		rs.add(attr, Rule{Kind: RuleIn, Value: append([]any(nil), s.Enum...)})
	}
	if s.MinItems != nil {
		rs.add(attr, Rule{Kind: RuleMinItems, Value: *s.MinItems})
	}
	if s.MaxItems != nil {
		rs.add(attr, Rule{Kind: RuleMaxItems, Value: *s.MaxItems})
	}
	if s.UniqueItems {
		rs.add(attr, Rule{Kind: RuleDistinct})
	}

	switch {
	case s.Type == "array" && s.Items != nil:
		g.attribute(rs, attr+".*", s.Items, false)
	case len(s.Properties) > 0:
		g.properties(rs, attr, s)
	}
}

func ruleType(t string) string {
	switch t {
	case "integer":
		return "integer"
	case "number":
		return "numeric"
	case "boolean":
		return "boolean"
	case "array":
		return "array"
	case "string":
		return "string"
	case "object":
		return "object"
	default:
		return ""
	}
}

func joinAttr(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// generateValidationRules builds rule sets for every schema and operation.
func generateValidationRules(reg Registry, endpoints map[string]*Endpoint) ValidationRules {
	vr := ValidationRules{
		Schemas:    make(map[string]RuleSet, len(reg)),
		Operations: make(map[string]RuleSet, len(endpoints)),
	}
	for _, name := range sortedKeys(reg) {
		vr.Schemas[name] = GenerateSchemaRules(reg[name], reg)
	}
	for _, id := range sortedKeys(endpoints) {
		rs := make(RuleSet)
		for _, p := range endpoints[id].Parameters {
			rs.merge(GenerateParameterRules(p, reg))
		}
		vr.Operations[id] = rs
	}
	return vr
}

// ErrNoRules is returned by PrimaryRules when the contract defines nothing.
var ErrNoRules = errors.New("contract defines no validation rules")

// PrimaryRules selects the single rule set callers use for a document: the
// first mapped resource with a schema, else the first declared schema, else
// the merge of every operation's parameter rules.
func (c *Contract) PrimaryRules() (RuleSet, error) {
	for _, resource := range sortedKeys(c.ModelMappings) {
		mm := c.ModelMappings[resource]
		if mm == nil || mm.SchemaName == "" {
			continue
		}
		if rs, ok := c.ValidationRules.Schemas[mm.SchemaName]; ok && len(rs) > 0 {
			return rs, nil
		}
	}
	for _, name := range sortedKeys(c.ValidationRules.Schemas) {
		if rs := c.ValidationRules.Schemas[name]; len(rs) > 0 {
			return rs, nil
		}
	}
	merged := make(RuleSet)
	for _, id := range sortedKeys(c.ValidationRules.Operations) {
		merged.merge(c.ValidationRules.Operations[id])
	}
	if len(merged) == 0 {
		return nil, ErrNoRules
	}
	return merged, nil
}

// RulesFor returns the rule set for a mapped resource or a schema name.
func (c *Contract) RulesFor(name string) (RuleSet, bool) {
	if mm, ok := c.ModelMappings[name]; ok && mm.SchemaName != "" {
		rs, ok := c.ValidationRules.Schemas[mm.SchemaName]
		return rs, ok
	}
	rs, ok := c.ValidationRules.Schemas[name]
	return rs, ok
}
