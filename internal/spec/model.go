package spec

import "time"

// Canonical contract model shared by the codec, validator and router.

type HttpMethod string

const (
	GET     HttpMethod = "GET"
	POST    HttpMethod = "POST"
	PUT     HttpMethod = "PUT"
	DELETE  HttpMethod = "DELETE"
	PATCH   HttpMethod = "PATCH"
	HEAD    HttpMethod = "HEAD"
	OPTIONS HttpMethod = "OPTIONS"
	TRACE   HttpMethod = "TRACE"
)

// httpMethods lists operation keys in the order they are extracted.
var httpMethods = []HttpMethod{GET, POST, PUT, PATCH, DELETE, HEAD, OPTIONS, TRACE}

// RawDocument is the decoded source tree. Nested mappings are map[string]any.
type RawDocument map[string]any

type Location string

const (
	InQuery  Location = "query"
	InPath   Location = "path"
	InHeader Location = "header"
	InCookie Location = "cookie"
)

// Style is an OpenAPI parameter serialization style.
type Style int

const (
	StyleSimple Style = iota
	StyleForm
	StyleSpaceDelimited
	StylePipeDelimited
)

func (s Style) String() string {
	switch s {
	case StyleForm:
		return "form"
	case StyleSpaceDelimited:
		return "spaceDelimited"
	case StylePipeDelimited:
		return "pipeDelimited"
	default:
		return "simple"
	}
}

// ParseStyle maps an OpenAPI style name to a Style. Unknown names map to
// StyleSimple and ok=false.
func ParseStyle(name string) (Style, bool) {
	switch name {
	case "simple":
		return StyleSimple, true
	case "form":
		return StyleForm, true
	case "spaceDelimited":
		return StyleSpaceDelimited, true
	case "pipeDelimited":
		return StylePipeDelimited, true
	default:
		return StyleSimple, false
	}
}

// DefaultStyle returns the OpenAPI default style and explode flag for a location.
func DefaultStyle(in Location) (Style, bool) {
	switch in {
	case InQuery, InCookie:
		return StyleForm, true
	default:
		return StyleSimple, false
	}
}

type Info struct {
	Title       string
	Version     string
	Description string
}

type Server struct {
	URL         string
	Description string
}

// SecurityRequirement maps a scheme name to its required scopes.
type SecurityRequirement map[string][]string

type SecurityScheme struct {
	Type         string
	Scheme       string
	BearerFormat string
	In           string
	Name         string
	Description  string
}

type Endpoint struct {
	OperationID string
	Path        string
	Method      HttpMethod
	Summary     string
	Description string
	Tags        []string
	Parameters  []ParameterDefinition
	RequestBody *RequestBody
	Responses   map[string]ResponseSpec
	Security    []SecurityRequirement
	Deprecated  bool
}

// Parameter returns the named parameter, if declared.
func (e *Endpoint) Parameter(name string) (ParameterDefinition, bool) {
	for _, p := range e.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterDefinition{}, false
}

type ParameterDefinition struct {
	Name        string
	In          Location
	Required    bool
	Schema      *SchemaDefinition
	Style       Style
	Explode     bool
	Description string
	Deprecated  bool
	Extensions  map[string]any
}

type RequestBody struct {
	Description string
	Required    bool
	Content     map[string]*SchemaDefinition // by media type
}

type ResponseSpec struct {
	Description string
	Content     map[string]*SchemaDefinition // by media type
}

// SchemaDefinition is a JSON-Schema subset. When Ref is set the definition is
// a reference to the named component schema and other fields are unset.
type SchemaDefinition struct {
	Name        string
	Ref         string
	Type        string
	Format      string
	Description string
	Properties  map[string]*SchemaDefinition
	Required    []string
	Items       *SchemaDefinition
	Enum        []any
	Pattern     string
	Default     any
	Nullable    bool

	Minimum          *float64
	Maximum          *float64
	ExclusiveMinimum bool
	ExclusiveMaximum bool
	MultipleOf       *float64

	MinLength *int
	MaxLength *int

	MinItems    *int
	MaxItems    *int
	UniqueItems bool
}

// IsRequired reports whether prop is listed in Required.
func (s *SchemaDefinition) IsRequired(prop string) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Required {
		if r == prop {
			return true
		}
	}
	return false
}

type OperationType string

const (
	OpIndex   OperationType = "index"
	OpShow    OperationType = "show"
	OpStore   OperationType = "store"
	OpUpdate  OperationType = "update"
	OpDestroy OperationType = "destroy"
)

type Cardinality string

const (
	One  Cardinality = "one"
	Many Cardinality = "many"
)

type MappedOperation struct {
	Type        OperationType
	OperationID string
}

type AttributeDescriptor struct {
	Name     string
	Type     string
	Format   string
	Required bool
	Nullable bool
	Ref      string
}

type RelationshipHint struct {
	Name           string
	TargetResource string
	Cardinality    Cardinality
}

type ModelMapping struct {
	Resource      string
	ModelName     string
	BaseEndpoint  string
	SchemaName    string
	Operations    []MappedOperation
	Attributes    []AttributeDescriptor
	Relationships []RelationshipHint
}

// Operation returns the operation id mapped to t, if any.
func (m *ModelMapping) Operation(t OperationType) (string, bool) {
	for _, op := range m.Operations {
		if op.Type == t {
			return op.OperationID, true
		}
	}
	return "", false
}

// Contract is the immutable output of one Parse call.
type Contract struct {
	OpenAPI         string
	Source          string
	ParsedAt        time.Time
	Info            Info
	Endpoints       map[string]*Endpoint
	Schemas         Registry
	ModelMappings   map[string]*ModelMapping
	ValidationRules ValidationRules
	Servers         []Server
	Security        []SecurityRequirement
	SecuritySchemes map[string]SecurityScheme
	Paths           map[string]any // unprocessed paths section
	Diagnostics     []Diagnostic
}

// Endpoint returns the endpoint with the given operation id.
func (c *Contract) Endpoint(operationID string) (*Endpoint, bool) {
	ep, ok := c.Endpoints[operationID]
	return ep, ok
}

// OperationIDs returns every operation id in sorted order.
func (c *Contract) OperationIDs() []string {
	return sortedKeys(c.Endpoints)
}
