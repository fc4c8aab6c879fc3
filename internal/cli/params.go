package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mabou7agar/laravel-api-model-client-sub002/internal/query"
	"github.com/mabou7agar/laravel-api-model-client-sub002/internal/spec"
)

// ParamsConfig captures the options for the params command.
type ParamsConfig struct {
	EngineConfig
	Source    string
	Operation string
	Query     string
	Records   string
	Output    string
	Lenient   bool
}

var paramsRunner = runParams

func newParamsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params <source>",
		Short: "Route a query string through one operation's parameters",
		Long: "Decode, convert and validate a query string against the parameters of one operation, then print " +
			"the outgoing request along with the pagination, sort, filter and search sets it implies.",
		Example: strings.TrimSpace(`  apicontract params ./openapi.yaml --operation get_pets --query "limit=10&sort=-name&status=available"
  apicontract params ./openapi.yaml --operation get_pets --query "price[min]=5" --records pets.json`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := resolveEngineConfig(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			operation, err := flags.GetString("operation")
			if err != nil {
				return err
			}
			rawQuery, err := flags.GetString("query")
			if err != nil {
				return err
			}
			records, err := flags.GetString("records")
			if err != nil {
				return err
			}
			output, err := flags.GetString("output")
			if err != nil {
				return err
			}
			lenient, err := flags.GetBool("lenient")
			if err != nil {
				return err
			}
			if flags.Changed("page-size") {
				size, err := flags.GetInt("page-size")
				if err != nil {
					return err
				}
				engine.DefaultPageSize = size
			}
			cfg := &ParamsConfig{
				EngineConfig: *engine,
				Source:       strings.TrimSpace(args[0]),
				Operation:    strings.TrimSpace(operation),
				Query:        strings.TrimPrefix(strings.TrimSpace(rawQuery), "?"),
				Records:      strings.TrimSpace(records),
				Output:       strings.ToLower(strings.TrimSpace(output)),
				Lenient:      lenient,
			}
			if err := cfg.validate(); err != nil {
				return err
			}
			return paramsRunner(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.String("operation", "", "Operation id to route parameters for")
	flags.String("query", "", "Query string to route (e.g. limit=10&sort=-name)")
	flags.String("records", "", "JSON file with an array of records to filter, sort and paginate")
	flags.StringP("output", "o", "yaml", "Output format (yaml|json)")
	flags.Bool("lenient", false, "Skip parameters that fail instead of stopping at the first")
	flags.Int("page-size", 0, "Page size assumed when only a page number is given")
	addEngineFlags(flags)

	return cmd
}

func (c *ParamsConfig) validate() error {
	if c.Operation == "" {
		return newUsageError("params: --operation is required")
	}
	if c.DefaultPageSize <= 0 {
		return newUsageError(fmt.Sprintf("params: --page-size must be positive, got %d", c.DefaultPageSize))
	}
	switch c.Output {
	case "yaml", "json":
	default:
		return newUsageError(fmt.Sprintf("params: unsupported --output %q (allowed: yaml, json)", c.Output))
	}
	return nil
}

type routedView struct {
	Operation  string            `json:"operation" yaml:"operation"`
	Request    string            `json:"request" yaml:"request"`
	Params     map[string]string `json:"params" yaml:"params"`
	Pagination paginationView    `json:"pagination" yaml:"pagination"`
	Sorts      []sortView        `json:"sorts,omitempty" yaml:"sorts,omitempty"`
	Filters    []filterView      `json:"filters,omitempty" yaml:"filters,omitempty"`
	Searches   []searchView      `json:"searches,omitempty" yaml:"searches,omitempty"`
	Records    []map[string]any  `json:"records,omitempty" yaml:"records,omitempty"`
}

type paginationView struct {
	Offset int `json:"offset" yaml:"offset"`
	Limit  int `json:"limit" yaml:"limit"`
}

type sortView struct {
	Field     string `json:"field" yaml:"field"`
	Direction string `json:"direction" yaml:"direction"`
}

type filterView struct {
	Field    string `json:"field" yaml:"field"`
	Operator string `json:"operator" yaml:"operator"`
	Value    any    `json:"value" yaml:"value"`
}

type searchView struct {
	Field string `json:"field,omitempty" yaml:"field,omitempty"`
	Term  string `json:"term" yaml:"term"`
}

func runParams(ctx context.Context, cfg *ParamsConfig, out io.Writer) error {
	contract, err := loadContract(ctx, &cfg.EngineConfig, cfg.Source)
	if err != nil {
		return err
	}
	endpoint, ok := contract.Endpoint(cfg.Operation)
	if !ok {
		return newUsageError(fmt.Sprintf("params: unknown operation %q (available: %s)", cfg.Operation, strings.Join(contract.OperationIDs(), ", ")))
	}

	router := query.NewRouter(endpoint, contract.Schemas,
		query.WithDefaultPageSize(cfg.DefaultPageSize),
		query.WithLogger(newLogger(os.Stderr, cfg.Verbose)),
	)
	var res *query.Result
	if cfg.Lenient {
		res, err = router.ApplyQuery(cfg.Query)
	} else {
		res, err = router.RouteQuery(cfg.Query)
	}
	if err != nil {
		var pe *query.ParameterError
		if errors.As(err, &pe) {
			return newUsageError(fmt.Sprintf("params: %v", pe))
		}
		return err
	}

	var request requestLine
	if err := request.Execute(ctx, endpoint, res); err != nil {
		return err
	}
	view := routedView{
		Operation:  endpoint.OperationID,
		Request:    request.String(),
		Params:     res.Params,
		Pagination: paginationView{Offset: res.Pagination.Offset, Limit: res.Pagination.Limit},
	}
	for _, s := range res.Sorts {
		view.Sorts = append(view.Sorts, sortView{Field: s.Field, Direction: string(s.Direction)})
	}
	for _, f := range res.Filters {
		view.Filters = append(view.Filters, filterView{Field: f.Field, Operator: f.Operator, Value: f.Value})
	}
	for _, s := range res.Searches {
		view.Searches = append(view.Searches, searchView{Field: s.Field, Term: s.Term})
	}

	if cfg.Records != "" {
		records, err := readRecords(cfg.Records)
		if err != nil {
			return err
		}
		view.Records = res.Match(records)
	}
	return encode(out, cfg.Output, view)
}

func readRecords(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newUsageError(fmt.Sprintf("read records file %q: %v", path, err))
	}
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, newUsageError(fmt.Sprintf("parse records file %q: %v", path, err))
	}
	return records, nil
}

// requestLine is a query.Executor that renders the outgoing request instead
// of sending it.
type requestLine struct {
	method string
	target string
}

func (r *requestLine) Execute(_ context.Context, endpoint *spec.Endpoint, res *query.Result) error {
	path := endpoint.Path
	for _, p := range endpoint.Parameters {
		if p.In != spec.InPath {
			continue
		}
		value, ok := res.Params[p.Name]
		if !ok {
			continue
		}
		path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(value))
	}
	if q := res.Encode(); q != "" {
		path += "?" + q
	}
	r.method = strings.ToUpper(string(endpoint.Method))
	r.target = path
	return nil
}

func (r *requestLine) String() string {
	return r.method + " " + r.target
}

var _ query.Executor = (*requestLine)(nil)
