package query

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/mabou7agar/laravel-api-model-client-sub002/internal/params"
	"github.com/mabou7agar/laravel-api-model-client-sub002/internal/spec"
)

// DefaultPageSize is used to turn a page number into an offset when the
// caller supplied no page size.
const DefaultPageSize = 15

// Router validates, converts, serializes and classifies the parameters of
// one endpoint. It holds no per-call state and is safe for concurrent use.
type Router struct {
	endpoint        *spec.Endpoint
	registry        spec.Registry
	validator       *params.Validator
	defs            map[string]spec.ParameterDefinition
	defaultPageSize int
	logger          log.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithDefaultPageSize sets the page size assumed when only a page is given.
func WithDefaultPageSize(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.defaultPageSize = n
		}
	}
}

// WithLogger sets the logger used by Apply for skipped parameters.
func WithLogger(l log.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter builds a router for endpoint, resolving schema references
// through reg.
func NewRouter(endpoint *spec.Endpoint, reg spec.Registry, opts ...Option) *Router {
	r := &Router{
		endpoint:        endpoint,
		registry:        reg,
		validator:       params.NewValidator(reg),
		defs:            map[string]spec.ParameterDefinition{},
		defaultPageSize: DefaultPageSize,
		logger:          log.NewNopLogger(),
	}
	if endpoint != nil {
		for _, p := range endpoint.Parameters {
			// Query definitions win over other locations sharing a name.
			if existing, ok := r.defs[p.Name]; ok && existing.In == spec.InQuery {
				continue
			}
			r.defs[p.Name] = p
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Endpoint returns the endpoint the router was built for.
func (r *Router) Endpoint() *spec.Endpoint { return r.endpoint }

// Route processes every supplied parameter and fails on the first
// parameter that cannot be converted, validated or classified.
func (r *Router) Route(values map[string]any) (*Result, error) {
	if err := r.checkRequired(values); err != nil {
		return nil, err
	}
	res := newResult()
	for _, name := range r.order(values) {
		if err := r.route(res, name, values[name]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Apply is the bulk form of Route: parameters that fail are logged and
// skipped, and the result holds everything else.
func (r *Router) Apply(values map[string]any) *Result {
	if err := r.checkRequired(values); err != nil {
		level.Warn(r.logger).Log("msg", "required parameter missing", "operation", r.operationID(), "err", err)
	}
	res := newResult()
	for _, name := range r.order(values) {
		if err := r.route(res, name, values[name]); err != nil {
			level.Warn(r.logger).Log("msg", "skipping parameter", "operation", r.operationID(), "param", name, "err", err)
		}
	}
	return res
}

// RouteQuery decodes rawQuery with each declared parameter's style and
// routes the result. Undeclared keys and keys naming non-query parameters
// are passed through as strings, and bracketed keys such as price[min] are
// gathered into filter sub-forms.
func (r *Router) RouteQuery(rawQuery string) (*Result, error) {
	values, err := r.decodeQuery(rawQuery)
	if err != nil {
		return nil, err
	}
	return r.Route(values)
}

// ApplyQuery decodes rawQuery like RouteQuery and routes it with Apply.
// Only a query string that cannot be decoded at all is an error.
func (r *Router) ApplyQuery(rawQuery string) (*Result, error) {
	values, err := r.decodeQuery(rawQuery)
	if err != nil {
		return nil, err
	}
	return r.Apply(values), nil
}

// Execute routes values and hands the result to exec.
func (r *Router) Execute(ctx context.Context, exec Executor, values map[string]any) (*Result, error) {
	res, err := r.Route(values)
	if err != nil {
		return nil, err
	}
	if err := exec.Execute(ctx, r.endpoint, res); err != nil {
		return res, fmt.Errorf("execute %s: %w", r.operationID(), err)
	}
	return res, nil
}

func (r *Router) operationID() string {
	if r.endpoint == nil {
		return ""
	}
	return r.endpoint.OperationID
}

func (r *Router) decodeQuery(rawQuery string) (map[string]any, error) {
	var declared []spec.ParameterDefinition
	for _, name := range sortedKeys(r.defs) {
		if p := r.defs[name]; p.In == spec.InQuery {
			declared = append(declared, p)
		}
	}
	values, err := params.ParseQuery(rawQuery, declared, r.registry)
	if err != nil {
		return nil, &ParameterError{Name: "query", Reason: "cannot decode query", Cause: err}
	}
	raw, _ := url.ParseQuery(rawQuery)
	for key, vs := range raw {
		if len(vs) == 0 {
			continue
		}
		if base, member, ok := bracketKey(key); ok {
			if p, isDeclared := r.defs[base]; isDeclared && r.isObject(p) {
				continue
			}
			sub, _ := values[base].(map[string]any)
			if sub == nil {
				sub = map[string]any{}
				values[base] = sub
			}
			sub[member] = vs[0]
			continue
		}
		if _, seen := values[key]; seen {
			continue
		}
		if p, isDeclared := r.defs[key]; isDeclared && p.In == spec.InQuery {
			continue
		}
		values[key] = vs[0]
	}
	return values, nil
}

// bracketKey splits "name[member]".
func bracketKey(key string) (base, member string, ok bool) {
	open := strings.IndexByte(key, '[')
	if open <= 0 || !strings.HasSuffix(key, "]") {
		return "", "", false
	}
	return key[:open], key[open+1 : len(key)-1], true
}

// order sorts names, placing pagination sizes first so page numbers are
// converted with the size the caller asked for.
func (r *Router) order(values map[string]any) []string {
	names := sortedKeys(values)
	sort.SliceStable(names, func(i, j int) bool {
		return r.isPageSize(names[i]) && !r.isPageSize(names[j])
	})
	return names
}

func (r *Router) isPageSize(name string) bool {
	return Classify(r.definition(name)) == PurposePagination && paginationRoleOf(name) == roleSize
}

// definition returns the declared parameter, or an optional untyped query
// parameter for undeclared names.
func (r *Router) definition(name string) spec.ParameterDefinition {
	if p, ok := r.defs[name]; ok {
		return p
	}
	return spec.ParameterDefinition{Name: name, In: spec.InQuery, Style: spec.StyleForm, Explode: true}
}

func (r *Router) checkRequired(values map[string]any) error {
	for _, name := range sortedKeys(r.defs) {
		p := r.defs[name]
		if p.In != spec.InQuery || !p.Required {
			continue
		}
		if _, ok := values[name]; ok {
			continue
		}
		return &ParameterError{Name: name, Reason: "missing required parameter", Violations: r.validator.ValidateParameter(nil, p)}
	}
	return nil
}

func (r *Router) route(res *Result, name string, raw any) error {
	def := r.definition(name)
	purpose := Classify(def)

	if purpose == PurposeFilter {
		if sub, ok := raw.(map[string]any); ok && !r.isObject(def) && isSubForm(sub) {
			return r.routeSubForm(res, def, sub)
		}
	}

	value, err := params.ConvertSchema(raw, def.Schema, r.registry)
	if err != nil {
		return &ParameterError{Name: name, Reason: "cannot convert value", Cause: err}
	}
	if purpose == PurposePagination && paginationRoleOf(name) == roleSize {
		if err := r.checkPageSize(def, value); err != nil {
			return err
		}
	}
	if violations := r.validator.ValidateParameter(value, def); len(violations) > 0 {
		return &ParameterError{Name: name, Reason: "invalid value", Violations: violations}
	}
	if value == nil || value == "" {
		return nil
	}

	r.setParam(res, def, value)
	switch purpose {
	case PurposePagination:
		return r.paginate(res, def, value)
	case PurposeSort:
		return r.sortBy(res, def, value)
	case PurposeSearch:
		s := Search{Field: searchField(name), Term: text(value)}
		res.Searches = append(res.Searches, s)
		res.Predicates = append(res.Predicates, searchPredicate(s))
		return nil
	default:
		return r.filter(res, def, value)
	}
}

func (r *Router) setParam(res *Result, def spec.ParameterDefinition, value any) {
	res.Params[def.Name] = params.Serialize(def.Name, value, def.Style, def.Explode)
	if def.In != spec.InQuery {
		return
	}
	res.query[def.Name] = true
	switch value.(type) {
	case []any, map[string]any:
		res.exploded[def.Name] = def.Style == spec.StyleForm && def.Explode
	}
}

func (r *Router) schema(def spec.ParameterDefinition) *spec.SchemaDefinition {
	s, err := r.registry.Resolve(def.Schema)
	if err != nil {
		return nil
	}
	return s
}

func (r *Router) isObject(def spec.ParameterDefinition) bool {
	s := r.schema(def)
	return s != nil && s.Type == "object"
}

func (r *Router) checkPageSize(def spec.ParameterDefinition, value any) error {
	s := r.schema(def)
	if s == nil || s.Maximum == nil || value == nil {
		return nil
	}
	size, ok := number(value)
	if !ok || size <= *s.Maximum {
		return nil
	}
	return &ParameterError{
		Name:   def.Name,
		Reason: fmt.Sprintf("page size %s exceeds maximum %s", text(size), text(*s.Maximum)),
		Cause:  ErrPageSizeExceeded,
	}
}

func (r *Router) paginate(res *Result, def spec.ParameterDefinition, value any) error {
	n, ok := value.(int64)
	if !ok {
		converted, err := params.Convert(value, "integer", "")
		if err != nil {
			return &ParameterError{Name: def.Name, Reason: "pagination value must be a whole number", Cause: err}
		}
		n, _ = converted.(int64)
	}
	switch paginationRoleOf(def.Name) {
	case roleOffset:
		if n < 0 {
			return &ParameterError{Name: def.Name, Reason: "offset must not be negative"}
		}
		res.Pagination.Offset = int(n)
	case rolePage:
		if n < 1 {
			n = 1
		}
		size := res.Pagination.Limit
		if size == 0 {
			size = r.defaultPageSize
			res.Pagination.Limit = size
		}
		if n-1 > int64(math.MaxInt/size) {
			return &ParameterError{Name: def.Name, Reason: "page number out of range"}
		}
		res.Pagination.Offset = int(n-1) * size
	default:
		if n < 1 {
			return &ParameterError{Name: def.Name, Reason: "page size must be positive"}
		}
		res.Pagination.Limit = int(n)
	}
	return nil
}

// sortBy accepts "field", "-field", "field:direction" and comma separated
// lists of those. A parameter named like name_order may carry only the
// direction.
func (r *Router) sortBy(res *Result, def spec.ParameterDefinition, value any) error {
	var entries []string
	if items, ok := value.([]any); ok {
		for _, item := range items {
			entries = append(entries, text(item))
		}
	} else {
		entries = strings.Split(text(value), ",")
	}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		s, err := parseSort(def.Name, entry)
		if err != nil {
			return &ParameterError{Name: def.Name, Reason: err.Error()}
		}
		res.Sorts = append(res.Sorts, s)
	}
	return nil
}

func parseSort(name, entry string) (Sort, error) {
	lower := strings.ToLower(name)
	if d := Direction(strings.ToLower(entry)); d == Asc || d == Desc {
		for _, suffix := range []string{"_sort", "_order"} {
			if field := strings.TrimSuffix(lower, suffix); field != lower && field != "" {
				return Sort{Field: name[:len(field)], Direction: d}, nil
			}
		}
	}
	if strings.HasPrefix(entry, "-") {
		return Sort{Field: entry[1:], Direction: Desc}, nil
	}
	field, dir, found := strings.Cut(entry, ":")
	if !found {
		return Sort{Field: entry, Direction: Asc}, nil
	}
	d := Direction(strings.ToLower(strings.TrimSpace(dir)))
	if d != Asc && d != Desc {
		return Sort{}, fmt.Errorf("invalid sort direction %q", dir)
	}
	return Sort{Field: strings.TrimSpace(field), Direction: d}, nil
}

// searchField maps name_search and name_query to name. Generic search
// parameters search every field.
func searchField(name string) string {
	lower := strings.ToLower(name)
	if searchNames[lower] {
		return ""
	}
	for _, suffix := range []string{"_search", "_query"} {
		if field := strings.TrimSuffix(lower, suffix); field != lower && field != "" {
			return name[:len(field)]
		}
	}
	return ""
}

func (r *Router) filter(res *Result, def spec.ParameterDefinition, value any) error {
	f := Filter{Field: def.Name, Operator: "=", Value: value}
	switch v := value.(type) {
	case []any:
		f.Operator = "IN"
	case string:
		if s := r.schema(def); s == nil || s.Type == "" {
			f.Operator = "LIKE"
			f.Value = "%" + v + "%"
		}
	}
	return addFilter(res, def.Name, f)
}

func addFilter(res *Result, name string, f Filter) error {
	p, err := filterPredicate(f)
	if err != nil {
		return &ParameterError{Name: name, Reason: "cannot build filter", Cause: err}
	}
	res.Filters = append(res.Filters, f)
	res.Predicates = append(res.Predicates, p)
	return nil
}

// isSubForm reports whether m is one of the structured filter forms:
// {min,max}, {operator,value}, {in} or {not_in}.
func isSubForm(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	_, hasOp := m["operator"]
	_, hasValue := m["value"]
	if hasOp && hasValue && len(m) == 2 {
		return true
	}
	if len(m) == 1 {
		for k := range m {
			return k == "in" || k == "not_in" || k == "min" || k == "max"
		}
	}
	_, hasMin := m["min"]
	_, hasMax := m["max"]
	return hasMin && hasMax && len(m) == 2
}

func (r *Router) routeSubForm(res *Result, def spec.ParameterDefinition, sub map[string]any) error {
	name := def.Name
	itemSchema := def.Schema
	if s := r.schema(def); s != nil && s.Type == "array" && s.Items != nil {
		itemSchema = s.Items
	}
	scalar := func(key string, raw any) (any, error) {
		v, err := params.ConvertSchema(raw, itemSchema, r.registry)
		if err != nil {
			return nil, &ParameterError{Name: name, Reason: "cannot convert " + key, Cause: err}
		}
		if violations := r.validator.Validate(v, itemSchema, name+"["+key+"]"); len(violations) > 0 {
			return nil, &ParameterError{Name: name, Reason: "invalid " + key, Violations: violations}
		}
		return v, nil
	}
	list := func(key string, raw any) ([]any, error) {
		items, _ := params.Convert(raw, "array", "")
		values, _ := items.([]any)
		out := make([]any, len(values))
		for i, item := range values {
			v, err := scalar(key, item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	var filters []Filter
	switch {
	case sub["operator"] != nil:
		opName := text(sub["operator"])
		op, ok := Operator(opName)
		if !ok {
			return &ParameterError{Name: name, Reason: fmt.Sprintf("operator %q is not supported", opName), Cause: ErrUnknownOperator}
		}
		var value any
		var err error
		if op == "IN" || op == "NOT IN" {
			value, err = list("value", sub["value"])
		} else {
			value, err = scalar("value", sub["value"])
		}
		if err != nil {
			return err
		}
		filters = append(filters, Filter{Field: name, Operator: op, Value: value})
		res.Params[name+"[operator]"] = opName
		res.Params[name+"[value]"] = params.Serialize(name, value, spec.StyleSimple, false)
	case sub["in"] != nil || sub["not_in"] != nil:
		key, op := "in", "IN"
		if sub["in"] == nil {
			key, op = "not_in", "NOT IN"
		}
		values, err := list(key, sub[key])
		if err != nil {
			return err
		}
		filters = append(filters, Filter{Field: name, Operator: op, Value: values})
		res.Params[name+"["+key+"]"] = params.Serialize(name, values, spec.StyleSimple, false)
	default:
		for _, bound := range []struct{ key, op string }{{"min", ">="}, {"max", "<="}} {
			raw, ok := sub[bound.key]
			if !ok || raw == nil {
				continue
			}
			v, err := scalar(bound.key, raw)
			if err != nil {
				return err
			}
			filters = append(filters, Filter{Field: name, Operator: bound.op, Value: v})
			res.Params[name+"["+bound.key+"]"] = params.Serialize(name, v, spec.StyleSimple, false)
		}
	}
	for _, f := range filters {
		if err := addFilter(res, name, f); err != nil {
			return err
		}
	}
	for key := range res.Params {
		if strings.HasPrefix(key, name+"[") && def.In == spec.InQuery {
			res.query[key] = true
		}
	}
	return nil
}
