// Package query routes caller-supplied parameters of one endpoint into
// outgoing wire values and pagination, sort, search and filter sets.
package query

import (
	"strings"

	"github.com/mabou7agar/laravel-api-model-client-sub002/internal/spec"
)

// Purpose is the role a parameter plays in a collection query.
type Purpose string

const (
	PurposeFilter     Purpose = "filter"
	PurposePagination Purpose = "pagination"
	PurposeSort       Purpose = "sort"
	PurposeSearch     Purpose = "search"
)

// PurposeExtension overrides name based classification.
const PurposeExtension = "x-purpose"

var (
	pageSizeNames = map[string]bool{"limit": true, "per_page": true, "page_size": true}
	offsetNames   = map[string]bool{"offset": true, "skip": true}
	sortNames     = map[string]bool{"sort": true, "order_by": true, "sort_by": true}
	searchNames   = map[string]bool{"search": true, "query": true, "q": true, "filter": true}
)

// Classify returns the purpose of p: an explicit x-purpose extension wins,
// then name heuristics, then PurposeFilter.
func Classify(p spec.ParameterDefinition) Purpose {
	if v, ok := p.Extensions[PurposeExtension].(string); ok {
		switch Purpose(strings.ToLower(strings.TrimSpace(v))) {
		case PurposePagination:
			return PurposePagination
		case PurposeSort:
			return PurposeSort
		case PurposeSearch:
			return PurposeSearch
		case PurposeFilter:
			return PurposeFilter
		}
	}
	return classifyName(p.Name)
}

func classifyName(name string) Purpose {
	n := strings.ToLower(name)
	switch {
	case pageSizeNames[n] || offsetNames[n] || n == "page":
		return PurposePagination
	case sortNames[n] || strings.HasSuffix(n, "_sort") || strings.HasSuffix(n, "_order"):
		return PurposeSort
	case searchNames[n] || strings.Contains(n, "search") || strings.Contains(n, "query"):
		return PurposeSearch
	default:
		return PurposeFilter
	}
}

// paginationRole distinguishes size, offset and page parameters.
type paginationRole int

const (
	roleSize paginationRole = iota
	roleOffset
	rolePage
)

func paginationRoleOf(name string) paginationRole {
	n := strings.ToLower(name)
	switch {
	case offsetNames[n]:
		return roleOffset
	case n == "page":
		return rolePage
	default:
		return roleSize
	}
}

// operators maps filter operator names to their query form.
var operators = map[string]string{
	"eq":       "=",
	"ne":       "!=",
	"gt":       ">",
	"gte":      ">=",
	"lt":       "<",
	"lte":      "<=",
	"like":     "LIKE",
	"not_like": "NOT LIKE",
	"in":       "IN",
	"not_in":   "NOT IN",
}

// Operator returns the query form of a filter operator name.
func Operator(name string) (string, bool) {
	op, ok := operators[strings.ToLower(strings.TrimSpace(name))]
	return op, ok
}
