package params

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-openapi/strfmt"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/mabou7agar/laravel-api-model-client-sub002/internal/spec"
)

// ValidationError is one constraint violation. Path is empty for the value
// itself, a property name, an item index like "[2]", or a combination.
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// uuidPattern matches the RFC 4122 text layout.
var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// Validator checks values against schema definitions. It never fails; every
// violation is returned. A Validator is safe for concurrent use.
type Validator struct {
	reg spec.Registry

	// patterns caches compiled regular expressions by source.
	patterns sync.Map
}

// NewValidator returns a validator resolving references through reg.
func NewValidator(reg spec.Registry) *Validator {
	return &Validator{reg: reg}
}

// ValidateParameter checks value against a parameter definition. A missing
// value is only a violation when the parameter is required.
func (v *Validator) ValidateParameter(value any, p spec.ParameterDefinition) []ValidationError {
	if isEmpty(value) {
		if p.Required {
			return []ValidationError{{Path: p.Name, Message: fmt.Sprintf("The %s field is required.", p.Name)}}
		}
		return nil
	}
	return v.Validate(value, p.Schema, p.Name)
}

// Validate checks value against schema and prefixes violations with path.
func (v *Validator) Validate(value any, schema *spec.SchemaDefinition, path string) []ValidationError {
	s, err := v.reg.Resolve(schema)
	if err != nil || s == nil || value == nil {
		return nil
	}

	switch s.Type {
	case "integer", "number":
		f, ok := numeric(value)
		if !ok || isBool(value) || (s.Type == "integer" && f != math.Trunc(f)) {
			if s.Type == "integer" {
				return fail(path, "Value must be an integer")
			}
			return fail(path, "Value must be a number")
		}
		return append(v.numberChecks(f, s, path), v.enumCheck(value, s, path)...)
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fail(path, "Value must be a boolean")
		}
		return v.enumCheck(value, s, path)
	case "string":
		str, ok := value.(string)
		if !ok {
			return fail(path, "Value must be a string")
		}
		return v.stringChecks(str, s, path)
	case "array":
		items, ok := asList(value)
		if !ok {
			return fail(path, "Value must be an array")
		}
		return v.arrayChecks(items, s, path)
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return fail(path, "Value must be an object")
		}
		return v.objectChecks(obj, s, path)
	default:
		if str, ok := value.(string); ok {
			return v.stringChecks(str, s, path)
		}
		if obj, ok := value.(map[string]any); ok && len(s.Properties) > 0 {
			return v.objectChecks(obj, s, path)
		}
		return v.enumCheck(value, s, path)
	}
}

func (v *Validator) numberChecks(f float64, s *spec.SchemaDefinition, path string) []ValidationError {
	var errs []ValidationError
	if s.Minimum != nil {
		lo := *s.Minimum
		switch {
		case s.ExclusiveMinimum && f <= lo:
			errs = append(errs, violation(path, "Value must be greater than %s", number(lo)))
		case !s.ExclusiveMinimum && f < lo:
			errs = append(errs, violation(path, "Value must be greater than or equal to %s", number(lo)))
		}
	}
	if s.Maximum != nil {
		hi := *s.Maximum
		switch {
		case s.ExclusiveMaximum && f >= hi:
			errs = append(errs, violation(path, "Value must be less than %s", number(hi)))
		case !s.ExclusiveMaximum && f > hi:
			errs = append(errs, violation(path, "Value must be less than or equal to %s", number(hi)))
		}
	}
	if s.MultipleOf != nil && *s.MultipleOf != 0 && !isMultipleOf(f, *s.MultipleOf) {
		errs = append(errs, violation(path, "Value must be a multiple of %s", number(*s.MultipleOf)))
	}
	return errs
}

// isMultipleOf compares the shortest decimal forms of f and m exactly, so
// 0.3 counts as a multiple of 0.1.
func isMultipleOf(f, m float64) bool {
	if f == math.Trunc(f) && m == math.Trunc(m) {
		return math.Mod(f, m) == 0
	}
	fr, ok1 := new(big.Rat).SetString(strconv.FormatFloat(f, 'g', -1, 64))
	mr, ok2 := new(big.Rat).SetString(strconv.FormatFloat(m, 'g', -1, 64))
	if !ok1 || !ok2 {
		return math.Mod(f, m) == 0
	}
	return new(big.Rat).Quo(fr, mr).IsInt()
}

func (v *Validator) stringChecks(str string, s *spec.SchemaDefinition, path string) []ValidationError {
	var errs []ValidationError
	length := utf8.RuneCountInString(str)
	if s.MinLength != nil && length < *s.MinLength {
		errs = append(errs, violation(path, "Value must be at least %d characters", *s.MinLength))
	}
	if s.MaxLength != nil && length > *s.MaxLength {
		errs = append(errs, violation(path, "Value must not exceed %d characters", *s.MaxLength))
	}
	if s.Pattern != "" {
		re, err := v.pattern(s.Pattern)
		switch {
		case err != nil:
			errs = append(errs, violation(path, "Invalid pattern %q: %v", s.Pattern, err))
		case !re.MatchString(str):
			errs = append(errs, violation(path, "Value does not match the required pattern"))
		}
	}
	errs = append(errs, v.enumCheck(str, s, path)...)
	if msg := formatViolation(str, s.Format); msg != "" {
		errs = append(errs, ValidationError{Path: path, Message: msg})
	}
	return errs
}

// formatViolation returns the message for a string that does not satisfy
// format, or "" when it does or the format is not checked.
func formatViolation(str, format string) string {
	switch format {
	case "email":
		if validation.Validate(str, is.EmailFormat) != nil {
			return "Value must be a valid email address"
		}
	case "uri", "url":
		if validation.Validate(str, is.URL) != nil {
			return "Value must be a valid URL"
		}
	case "uuid":
		if !uuidPattern.MatchString(str) {
			return "Value must be a valid UUID"
		}
	case "date":
		if !strfmt.IsDate(str) {
			return "Value must be a valid date"
		}
	case "date-time":
		if !strfmt.IsDateTime(str) {
			return "Value must be a valid date-time"
		}
	}
	return ""
}

func (v *Validator) arrayChecks(items []any, s *spec.SchemaDefinition, path string) []ValidationError {
	var errs []ValidationError
	if s.MinItems != nil && len(items) < *s.MinItems {
		errs = append(errs, violation(path, "Array must contain at least %d items", *s.MinItems))
	}
	if s.MaxItems != nil && len(items) > *s.MaxItems {
		errs = append(errs, violation(path, "Array must not contain more than %d items", *s.MaxItems))
	}
	if s.UniqueItems && !unique(items) {
		errs = append(errs, violation(path, "Array items must be unique"))
	}
	if s.Items != nil {
		for i, item := range items {
			errs = append(errs, v.Validate(item, s.Items, fmt.Sprintf("%s[%d]", path, i))...)
		}
	}
	return errs
}

func (v *Validator) objectChecks(obj map[string]any, s *spec.SchemaDefinition, path string) []ValidationError {
	var errs []ValidationError
	for _, name := range s.Required {
		if _, ok := obj[name]; !ok {
			errs = append(errs, ValidationError{Path: joinPath(path, name), Message: "Missing required property: " + name})
		}
	}
	for _, name := range sortedKeys(s.Properties) {
		value, ok := obj[name]
		if !ok {
			continue
		}
		errs = append(errs, v.Validate(value, s.Properties[name], joinPath(path, name))...)
	}
	return errs
}

func (v *Validator) enumCheck(value any, s *spec.SchemaDefinition, path string) []ValidationError {
	if len(s.Enum) == 0 {
		return nil
	}
	want := formatScalar(value)
	allowed := make([]string, len(s.Enum))
	for i, e := range s.Enum {
		allowed[i] = formatScalar(e)
		if allowed[i] == want {
			return nil
		}
	}
	return fail(path, "Value must be one of: "+strings.Join(allowed, ", "))
}

func (v *Validator) pattern(src string) (*regexp.Regexp, error) {
	if cached, ok := v.patterns.Load(src); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, err
	}
	actual, _ := v.patterns.LoadOrStore(src, re)
	return actual.(*regexp.Regexp), nil
}

// unique compares items by their JSON encoding.
func unique(items []any) bool {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		b, err := json.Marshal(item)
		key := string(b)
		if err != nil {
			key = fmt.Sprintf("%#v", item)
		}
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
	}
	return true
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

func isBool(value any) bool {
	_, ok := value.(bool)
	return ok
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func number(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func fail(path, msg string) []ValidationError {
	return []ValidationError{{Path: path, Message: msg}}
}

func violation(path, format string, args ...any) ValidationError {
	return ValidationError{Path: path, Message: fmt.Sprintf(format, args...)}
}
