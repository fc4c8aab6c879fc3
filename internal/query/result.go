package query

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/mabou7agar/laravel-api-model-client-sub002/internal/params"
	"github.com/mabou7agar/laravel-api-model-client-sub002/internal/spec"
)

var (
	// ErrPageSizeExceeded is the cause of a ParameterError for a page size
	// above the declared maximum.
	ErrPageSizeExceeded = errors.New("page size exceeds the declared maximum")
	// ErrUnknownOperator is the cause of a ParameterError for a filter
	// operator outside the operator table.
	ErrUnknownOperator = errors.New("unknown filter operator")
)

// ParameterError names the parameter that could not be routed and why.
type ParameterError struct {
	Name       string
	Reason     string
	Violations []params.ValidationError
	Cause      error
}

func (e *ParameterError) Error() string {
	msg := fmt.Sprintf("parameter %s: %s", e.Name, e.Reason)
	if len(e.Violations) > 0 {
		parts := make([]string, len(e.Violations))
		for i, v := range e.Violations {
			parts[i] = v.String()
		}
		msg += ": " + strings.Join(parts, "; ")
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ParameterError) Unwrap() error { return e.Cause }

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Pagination is the accumulated offset and page size. A zero Limit means
// the caller did not ask for one.
type Pagination struct {
	Offset int
	Limit  int
}

// Sort orders results by Field.
type Sort struct {
	Field     string
	Direction Direction
}

// Filter restricts Field with one operator from the operator table.
type Filter struct {
	Field    string
	Operator string
	Value    any
}

// Search matches Term as a case-insensitive substring. An empty Field
// searches every string field.
type Search struct {
	Field string
	Term  string
}

// Predicate reports whether a record satisfies one filter or search.
type Predicate func(record map[string]any) bool

// Result is the routed form of one call's parameters.
type Result struct {
	// Params holds the serialized outgoing value of every routed parameter.
	Params     map[string]string
	Pagination Pagination
	Sorts      []Sort
	Filters    []Filter
	Searches   []Search
	Predicates []Predicate

	query    map[string]bool
	exploded map[string]bool
}

func newResult() *Result {
	return &Result{
		Params:   map[string]string{},
		query:    map[string]bool{},
		exploded: map[string]bool{},
	}
}

// Encode renders the query-located parameters as a query string with keys
// in sorted order. Exploded form values are emitted as their own pairs.
func (r *Result) Encode() string {
	var parts []string
	for _, name := range sortedKeys(r.Params) {
		if !r.query[name] {
			continue
		}
		if r.exploded[name] {
			if r.Params[name] != "" {
				parts = append(parts, r.Params[name])
			}
			continue
		}
		parts = append(parts, url.QueryEscape(name)+"="+url.QueryEscape(r.Params[name]))
	}
	return strings.Join(parts, "&")
}

// Match applies the predicates, sorts and pagination to records in memory.
func (r *Result) Match(records []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(records))
next:
	for _, rec := range records {
		for _, p := range r.Predicates {
			if !p(rec) {
				continue next
			}
		}
		out = append(out, rec)
	}
	if len(r.Sorts) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, s := range r.Sorts {
				c, ok := compare(out[i][s.Field], out[j][s.Field])
				if !ok || c == 0 {
					continue
				}
				if s.Direction == Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if r.Pagination.Offset > 0 {
		if r.Pagination.Offset >= len(out) {
			return out[:0]
		}
		out = out[r.Pagination.Offset:]
	}
	if r.Pagination.Limit > 0 && len(out) > r.Pagination.Limit {
		out = out[:r.Pagination.Limit]
	}
	return out
}

// Executor performs the transport call for a routed endpoint.
type Executor interface {
	Execute(ctx context.Context, endpoint *spec.Endpoint, result *Result) error
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
