package query

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mabou7agar/laravel-api-model-client-sub002/internal/params"
	"github.com/mabou7agar/laravel-api-model-client-sub002/internal/spec"
)

func ptr[T any](v T) *T { return &v }

func listPets() *spec.Endpoint {
	return &spec.Endpoint{
		OperationID: "get_pets",
		Path:        "/pets",
		Method:      spec.GET,
		Parameters: []spec.ParameterDefinition{
			{Name: "X-Tenant", In: spec.InHeader, Style: spec.StyleSimple, Schema: &spec.SchemaDefinition{Type: "string"}},
			{Name: "id", In: spec.InQuery, Style: spec.StyleForm, Explode: true,
				Schema: &spec.SchemaDefinition{Type: "array", Items: &spec.SchemaDefinition{Type: "integer"}}},
			{Name: "limit", In: spec.InQuery, Style: spec.StyleForm, Explode: true,
				Schema: &spec.SchemaDefinition{Type: "integer", Minimum: ptr(1.0), Maximum: ptr(100.0)}},
			{Name: "name", In: spec.InQuery, Style: spec.StyleForm, Explode: true, Schema: &spec.SchemaDefinition{Type: "string"}},
			{Name: "page", In: spec.InQuery, Style: spec.StyleForm, Explode: true, Schema: &spec.SchemaDefinition{Type: "integer"}},
			{Name: "price", In: spec.InQuery, Style: spec.StyleForm, Explode: true, Schema: &spec.SchemaDefinition{Type: "number"}},
			{Name: "q", In: spec.InQuery, Style: spec.StyleForm, Explode: true, Schema: &spec.SchemaDefinition{Type: "string"}},
			{Name: "order", In: spec.InQuery, Style: spec.StyleForm, Explode: true,
				Schema: &spec.SchemaDefinition{Type: "string"}, Extensions: map[string]any{"x-purpose": "sort"}},
			{Name: "status", In: spec.InQuery, Style: spec.StyleForm, Explode: false,
				Schema: &spec.SchemaDefinition{Type: "array", Items: &spec.SchemaDefinition{Type: "string", Enum: []any{"available", "pending", "sold"}}}},
		},
	}
}

func pets() []map[string]any {
	return []map[string]any{
		{"name": "Rex", "price": 5.0, "status": "available"},
		{"name": "Tom", "price": 12.0, "status": "sold"},
		{"name": "Max", "price": 8.0, "status": "pending"},
		{"name": "Rexy", "price": 3.0, "status": "pending"},
	}
}

func TestRoute_PageSizeAboveMaximum(t *testing.T) {
	t.Parallel()
	r := NewRouter(listPets(), nil)
	_, err := r.Route(map[string]any{"limit": 150})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPageSizeExceeded)
	assert.Contains(t, err.Error(), "100")

	var pe *ParameterError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "limit", pe.Name)

	res, err := r.Route(map[string]any{"limit": 100})
	require.NoError(t, err)
	assert.Equal(t, 100, res.Pagination.Limit)
}

func TestRoute_Pagination(t *testing.T) {
	t.Parallel()
	r := NewRouter(listPets(), nil)

	res, err := r.Route(map[string]any{"limit": "20", "page": "3"})
	require.NoError(t, err)
	assert.Equal(t, Pagination{Offset: 40, Limit: 20}, res.Pagination)

	res, err = r.Route(map[string]any{"page": 3})
	require.NoError(t, err)
	assert.Equal(t, Pagination{Offset: 30, Limit: DefaultPageSize}, res.Pagination)

	res, err = NewRouter(listPets(), nil, WithDefaultPageSize(10)).Route(map[string]any{"page": 0})
	require.NoError(t, err)
	assert.Equal(t, Pagination{Offset: 0, Limit: 10}, res.Pagination)

	res, err = r.Route(map[string]any{"offset": "7"})
	require.NoError(t, err)
	assert.Equal(t, Pagination{Offset: 7}, res.Pagination)

	for _, page := range []any{"1e20", "1e19", "9223372036854775807", int64(math.MaxInt64)} {
		res, err = r.Route(map[string]any{"page": page})
		var pe *ParameterError
		require.ErrorAs(t, err, &pe, "page %v", page)
		assert.Equal(t, "page", pe.Name)
		assert.Nil(t, res)
	}
}

func TestRoute_Sort(t *testing.T) {
	t.Parallel()
	r := NewRouter(listPets(), nil)
	res, err := r.Route(map[string]any{"order": "name:desc, -price,created_at", "price_order": "asc"})
	require.NoError(t, err)
	assert.Equal(t, []Sort{
		{Field: "name", Direction: Desc},
		{Field: "price", Direction: Desc},
		{Field: "created_at", Direction: Asc},
		{Field: "price", Direction: Asc},
	}, res.Sorts)

	_, err = r.Route(map[string]any{"order": "name:sideways"})
	var pe *ParameterError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "order", pe.Name)
}

func TestRoute_Filters(t *testing.T) {
	t.Parallel()
	r := NewRouter(listPets(), nil)
	res, err := r.Route(map[string]any{
		"status": "available,pending",
		"price":  "5",
		"color":  "re",
	})
	require.NoError(t, err)
	assert.Equal(t, []Filter{
		{Field: "color", Operator: "LIKE", Value: "%re%"},
		{Field: "price", Operator: "=", Value: 5.0},
		{Field: "status", Operator: "IN", Value: []any{"available", "pending"}},
	}, res.Filters)
	assert.Len(t, res.Predicates, 3)
	assert.Equal(t, map[string]string{"color": "re", "price": "5", "status": "available,pending"}, res.Params)
}

func TestRoute_FilterSubForms(t *testing.T) {
	t.Parallel()
	r := NewRouter(listPets(), nil)

	res, err := r.Route(map[string]any{"price": map[string]any{"min": "4", "max": 10}})
	require.NoError(t, err)
	assert.Equal(t, []Filter{
		{Field: "price", Operator: ">=", Value: 4.0},
		{Field: "price", Operator: "<=", Value: 10.0},
	}, res.Filters)
	assert.Equal(t, "4", res.Params["price[min]"])

	res, err = r.Route(map[string]any{"price": map[string]any{"operator": "gte", "value": "3"}})
	require.NoError(t, err)
	assert.Equal(t, []Filter{{Field: "price", Operator: ">=", Value: 3.0}}, res.Filters)

	res, err = r.Route(map[string]any{"status": map[string]any{"not_in": []any{"sold"}}})
	require.NoError(t, err)
	assert.Equal(t, []Filter{{Field: "status", Operator: "NOT IN", Value: []any{"sold"}}}, res.Filters)

	res, err = r.Route(map[string]any{"name": map[string]any{"operator": "not_like", "value": "T%"}})
	require.NoError(t, err)
	assert.Len(t, res.Match(pets()), 3)

	_, err = r.Route(map[string]any{"price": map[string]any{"operator": "between", "value": 1}})
	assert.ErrorIs(t, err, ErrUnknownOperator)

	_, err = r.Route(map[string]any{"status": map[string]any{"in": []any{"lost"}}})
	var pe *ParameterError
	require.ErrorAs(t, err, &pe)
	require.Len(t, pe.Violations, 1)
	assert.Equal(t, "Value must be one of: available, pending, sold", pe.Violations[0].Message)
}

func TestRoute_Search(t *testing.T) {
	t.Parallel()
	r := NewRouter(listPets(), nil)
	res, err := r.Route(map[string]any{"q": "rex", "name_search": "ma"})
	require.NoError(t, err)
	assert.Equal(t, []Search{{Field: "name", Term: "ma"}, {Field: "", Term: "rex"}}, res.Searches)
	assert.Empty(t, res.Match(pets()))

	res, err = r.Route(map[string]any{"q": "rex"})
	require.NoError(t, err)
	assert.Len(t, res.Match(pets()), 2)
}

func TestRoute_ConversionFailure(t *testing.T) {
	t.Parallel()
	_, err := NewRouter(listPets(), nil).Route(map[string]any{"limit": "ten"})
	var pe *ParameterError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "limit", pe.Name)
	var ce *params.ConversionError
	assert.ErrorAs(t, err, &ce)
}

func TestRoute_ValidationFailureNamesConstraint(t *testing.T) {
	t.Parallel()
	_, err := NewRouter(listPets(), nil).Route(map[string]any{"status": "lost"})
	var pe *ParameterError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, []params.ValidationError{
		{Path: "status[0]", Message: "Value must be one of: available, pending, sold"},
	}, pe.Violations)
	assert.Contains(t, err.Error(), "status[0]")
}

func TestRoute_RequiredParameter(t *testing.T) {
	t.Parallel()
	ep := &spec.Endpoint{OperationID: "search", Parameters: []spec.ParameterDefinition{
		{Name: "api_key", In: spec.InQuery, Required: true, Schema: &spec.SchemaDefinition{Type: "string"}},
	}}
	_, err := NewRouter(ep, nil).Route(map[string]any{})
	var pe *ParameterError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "api_key", pe.Name)
	assert.Equal(t, "The api_key field is required.", pe.Violations[0].Message)
}

func TestApply_SkipsAndLogs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	r := NewRouter(listPets(), nil, WithLogger(log.NewLogfmtLogger(log.NewSyncWriter(&buf))))
	res := r.Apply(map[string]any{"limit": "ten", "name": "Rex", "status": "lost"})

	assert.Equal(t, map[string]string{"name": "Rex"}, res.Params)
	assert.Equal(t, []Filter{{Field: "name", Operator: "=", Value: "Rex"}}, res.Filters)
	assert.Contains(t, buf.String(), "skipping parameter")
	assert.Contains(t, buf.String(), "param=limit")
	assert.Contains(t, buf.String(), "param=status")
	assert.Contains(t, buf.String(), "level=warn")
}

func TestResult_Encode(t *testing.T) {
	t.Parallel()
	r := NewRouter(listPets(), nil)
	res, err := r.Route(map[string]any{
		"X-Tenant": "acme",
		"id":       []any{1, 2},
		"status":   []any{"available", "pending"},
		"name":     "a b",
	})
	require.NoError(t, err)
	assert.Equal(t, "acme", res.Params["X-Tenant"])
	assert.Equal(t, "id=1&id=2&name=a+b&status=available%2Cpending", res.Encode())
}

func TestResult_Match(t *testing.T) {
	t.Parallel()
	r := NewRouter(listPets(), nil)
	res, err := r.Route(map[string]any{"status": "available,pending", "order": "price:desc", "limit": 2})
	require.NoError(t, err)
	got := res.Match(pets())
	require.Len(t, got, 2)
	assert.Equal(t, "Max", got[0]["name"])
	assert.Equal(t, "Rex", got[1]["name"])

	res, err = r.Route(map[string]any{"status": "available,pending", "order": "price:desc", "limit": 2, "page": 2})
	require.NoError(t, err)
	got = res.Match(pets())
	require.Len(t, got, 1)
	assert.Equal(t, "Rexy", got[0]["name"])
}

func TestRouteQuery(t *testing.T) {
	t.Parallel()
	r := NewRouter(listPets(), nil)
	res, err := r.RouteQuery("status=available,pending&price[min]=4&price[max]=10&limit=5&color=gr")
	require.NoError(t, err)
	assert.Equal(t, 5, res.Pagination.Limit)
	assert.Equal(t, []Filter{
		{Field: "color", Operator: "LIKE", Value: "%gr%"},
		{Field: "price", Operator: ">=", Value: 4.0},
		{Field: "price", Operator: "<=", Value: 10.0},
		{Field: "status", Operator: "IN", Value: []any{"available", "pending"}},
	}, res.Filters)
	assert.Equal(t, "color=gr&limit=5&price%5Bmax%5D=10&price%5Bmin%5D=4&status=available%2Cpending", res.Encode())

	_, err = r.RouteQuery("limit=500")
	assert.ErrorIs(t, err, ErrPageSizeExceeded)
}

func TestApplyQuery_SkipsFailures(t *testing.T) {
	t.Parallel()
	r := NewRouter(listPets(), nil)
	res, err := r.ApplyQuery("limit=500&name=Rex")
	require.NoError(t, err)
	assert.Zero(t, res.Pagination.Limit)
	assert.NotContains(t, res.Params, "limit")
	assert.Equal(t, "Rex", res.Params["name"])
}

func TestRouteQuery_NonQueryParameters(t *testing.T) {
	t.Parallel()
	r := NewRouter(listPets(), nil)
	res, err := r.RouteQuery("X-Tenant=acme&limit=2")
	require.NoError(t, err)
	assert.Equal(t, "acme", res.Params["X-Tenant"])
	assert.Equal(t, "limit=2", res.Encode())
}

type recordingExecutor struct {
	endpoint *spec.Endpoint
	result   *Result
	err      error
}

func (e *recordingExecutor) Execute(_ context.Context, endpoint *spec.Endpoint, result *Result) error {
	e.endpoint, e.result = endpoint, result
	return e.err
}

func TestRouter_Execute(t *testing.T) {
	t.Parallel()
	ep := listPets()
	r := NewRouter(ep, nil)

	exec := &recordingExecutor{}
	res, err := r.Execute(context.Background(), exec, map[string]any{"limit": 3})
	require.NoError(t, err)
	assert.Same(t, ep, exec.endpoint)
	assert.Same(t, res, exec.result)

	boom := errors.New("boom")
	_, err = r.Execute(context.Background(), &recordingExecutor{err: boom}, map[string]any{"limit": 3})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "get_pets")

	exec = &recordingExecutor{}
	_, err = r.Execute(context.Background(), exec, map[string]any{"limit": 300})
	assert.ErrorIs(t, err, ErrPageSizeExceeded)
	assert.Nil(t, exec.result)
}

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := map[string]Purpose{
		"limit":         PurposePagination,
		"per_page":      PurposePagination,
		"page":          PurposePagination,
		"skip":          PurposePagination,
		"sort_by":       PurposeSort,
		"created_order": PurposeSort,
		"name_sort":     PurposeSort,
		"q":             PurposeSearch,
		"filter":        PurposeSearch,
		"title_search":  PurposeSearch,
		"category":      PurposeFilter,
	}
	for name, want := range tests {
		assert.Equal(t, want, Classify(spec.ParameterDefinition{Name: name}), name)
	}
	override := spec.ParameterDefinition{Name: "limit", Extensions: map[string]any{"x-purpose": "filter"}}
	assert.Equal(t, PurposeFilter, Classify(override))
	unknown := spec.ParameterDefinition{Name: "limit", Extensions: map[string]any{"x-purpose": "bogus"}}
	assert.Equal(t, PurposePagination, Classify(unknown))
}

func TestOperator(t *testing.T) {
	t.Parallel()
	table := map[string]string{
		"eq": "=", "ne": "!=", "gt": ">", "gte": ">=", "lt": "<", "lte": "<=",
		"like": "LIKE", "not_like": "NOT LIKE", "in": "IN", "not_in": "NOT IN",
	}
	for name, want := range table {
		got, ok := Operator(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	_, ok := Operator("between")
	assert.False(t, ok)
}
