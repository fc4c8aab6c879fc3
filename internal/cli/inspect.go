package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mabou7agar/laravel-api-model-client-sub002/internal/query"
	"github.com/mabou7agar/laravel-api-model-client-sub002/internal/spec"
)

// InspectConfig captures the options for the inspect command.
type InspectConfig struct {
	EngineConfig
	Source  string
	Output  string
	Section string
}

var inspectSections = []string{"all", "info", "endpoints", "schemas", "models", "rules"}

var inspectRunner = runInspect

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <source>",
		Short: "Print the extracted contract as YAML or JSON",
		Long: "Print the contract extracted from an OpenAPI document: info, endpoints with classified parameters, " +
			"schemas, model mappings and generated validation rules.",
		Example: strings.TrimSpace(`  apicontract inspect ./openapi.yaml --section endpoints
  apicontract inspect ./openapi.yaml -o json --section rules`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := resolveEngineConfig(cmd)
			if err != nil {
				return err
			}
			output, err := cmd.Flags().GetString("output")
			if err != nil {
				return err
			}
			section, err := cmd.Flags().GetString("section")
			if err != nil {
				return err
			}
			cfg := &InspectConfig{
				EngineConfig: *engine,
				Source:       strings.TrimSpace(args[0]),
				Output:       strings.ToLower(strings.TrimSpace(output)),
				Section:      strings.ToLower(strings.TrimSpace(section)),
			}
			if err := cfg.validate(); err != nil {
				return err
			}
			return inspectRunner(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringP("output", "o", "yaml", "Output format (yaml|json)")
	cmd.Flags().String("section", "all", "Section to print ("+strings.Join(inspectSections, "|")+")")
	addEngineFlags(cmd.Flags())

	return cmd
}

func (c *InspectConfig) validate() error {
	switch c.Output {
	case "yaml", "json":
	default:
		return newUsageError(fmt.Sprintf("inspect: unsupported --output %q (allowed: yaml, json)", c.Output))
	}
	for _, s := range inspectSections {
		if c.Section == s {
			return nil
		}
	}
	return newUsageError(fmt.Sprintf("inspect: unsupported --section %q (allowed: %s)", c.Section, strings.Join(inspectSections, ", ")))
}

func runInspect(ctx context.Context, cfg *InspectConfig, out io.Writer) error {
	contract, err := loadContract(ctx, &cfg.EngineConfig, cfg.Source)
	if err != nil {
		return err
	}
	view := newContractView(contract)

	var doc any = view
	switch cfg.Section {
	case "info":
		doc = view.Info
	case "endpoints":
		doc = view.Endpoints
	case "schemas":
		doc = view.Schemas
	case "models":
		doc = view.Models
	case "rules":
		doc = view.Rules
	}
	return encode(out, cfg.Output, doc)
}

func encode(out io.Writer, format string, doc any) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

type contractView struct {
	OpenAPI     string         `json:"openapi" yaml:"openapi"`
	Source      string         `json:"source" yaml:"source"`
	Info        infoView       `json:"info" yaml:"info"`
	Servers     []string       `json:"servers,omitempty" yaml:"servers,omitempty"`
	Endpoints   []endpointView `json:"endpoints" yaml:"endpoints"`
	Schemas     []schemaView   `json:"schemas" yaml:"schemas"`
	Models      []modelView    `json:"models" yaml:"models"`
	Rules       rulesView      `json:"rules" yaml:"rules"`
	Diagnostics []string       `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

type infoView struct {
	Title       string `json:"title" yaml:"title"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type endpointView struct {
	OperationID string          `json:"operationId" yaml:"operationId"`
	Method      string          `json:"method" yaml:"method"`
	Path        string          `json:"path" yaml:"path"`
	Summary     string          `json:"summary,omitempty" yaml:"summary,omitempty"`
	Tags        []string        `json:"tags,omitempty" yaml:"tags,omitempty"`
	Deprecated  bool            `json:"deprecated,omitempty" yaml:"deprecated,omitempty"`
	Parameters  []parameterView `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Body        string          `json:"body,omitempty" yaml:"body,omitempty"`
}

type parameterView struct {
	Name     string `json:"name" yaml:"name"`
	In       string `json:"in" yaml:"in"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Style    string `json:"style" yaml:"style"`
	Explode  bool   `json:"explode" yaml:"explode"`
	Purpose  string `json:"purpose" yaml:"purpose"`
}

type schemaView struct {
	Name       string   `json:"name" yaml:"name"`
	Type       string   `json:"type,omitempty" yaml:"type,omitempty"`
	Ref        string   `json:"ref,omitempty" yaml:"ref,omitempty"`
	Properties []string `json:"properties,omitempty" yaml:"properties,omitempty"`
	Required   []string `json:"required,omitempty" yaml:"required,omitempty"`
}

type modelView struct {
	Resource      string            `json:"resource" yaml:"resource"`
	Model         string            `json:"model" yaml:"model"`
	BaseEndpoint  string            `json:"baseEndpoint" yaml:"baseEndpoint"`
	Schema        string            `json:"schema,omitempty" yaml:"schema,omitempty"`
	Operations    map[string]string `json:"operations" yaml:"operations"`
	Attributes    []string          `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Relationships []string          `json:"relationships,omitempty" yaml:"relationships,omitempty"`
}

type rulesView struct {
	Schemas    map[string]map[string][]string `json:"schemas" yaml:"schemas"`
	Operations map[string]map[string][]string `json:"operations" yaml:"operations"`
}

func newContractView(c *spec.Contract) contractView {
	v := contractView{
		OpenAPI: c.OpenAPI,
		Source:  c.Source,
		Info:    infoView{Title: c.Info.Title, Version: c.Info.Version, Description: c.Info.Description},
		Rules: rulesView{
			Schemas:    map[string]map[string][]string{},
			Operations: map[string]map[string][]string{},
		},
	}
	for _, s := range c.Servers {
		v.Servers = append(v.Servers, s.URL)
	}
	for _, id := range c.OperationIDs() {
		v.Endpoints = append(v.Endpoints, newEndpointView(c.Endpoints[id], c.Schemas))
	}
	for _, name := range sortedNames(c.Schemas) {
		s := c.Schemas[name]
		if s == nil {
			continue
		}
		sv := schemaView{Name: name, Type: s.Type, Ref: s.Ref, Required: s.Required}
		sv.Properties = sortedNames(s.Properties)
		v.Schemas = append(v.Schemas, sv)
	}
	for _, resource := range sortedNames(c.ModelMappings) {
		v.Models = append(v.Models, newModelView(c.ModelMappings[resource]))
	}
	for name, rs := range c.ValidationRules.Schemas {
		v.Rules.Schemas[name] = rs.Strings()
	}
	for id, rs := range c.ValidationRules.Operations {
		v.Rules.Operations[id] = rs.Strings()
	}
	for _, d := range c.Diagnostics {
		v.Diagnostics = append(v.Diagnostics, d.String())
	}
	return v
}

func newEndpointView(ep *spec.Endpoint, reg spec.Registry) endpointView {
	v := endpointView{
		OperationID: ep.OperationID,
		Method:      string(ep.Method),
		Path:        ep.Path,
		Summary:     ep.Summary,
		Tags:        ep.Tags,
		Deprecated:  ep.Deprecated,
	}
	for _, p := range ep.Parameters {
		pv := parameterView{
			Name:     p.Name,
			In:       string(p.In),
			Required: p.Required,
			Style:    p.Style.String(),
			Explode:  p.Explode,
			Purpose:  string(query.Classify(p)),
		}
		if s, err := reg.Resolve(p.Schema); err == nil && s != nil {
			pv.Type = s.Type
		}
		v.Parameters = append(v.Parameters, pv)
	}
	if ep.RequestBody != nil {
		v.Body = strings.Join(sortedNames(ep.RequestBody.Content), ", ")
	}
	return v
}

func newModelView(m *spec.ModelMapping) modelView {
	v := modelView{
		Resource:     m.Resource,
		Model:        m.ModelName,
		BaseEndpoint: m.BaseEndpoint,
		Schema:       m.SchemaName,
		Operations:   map[string]string{},
	}
	for _, op := range m.Operations {
		v.Operations[string(op.Type)] = op.OperationID
	}
	for _, a := range m.Attributes {
		desc := a.Name + ": " + a.Type
		if a.Required {
			desc += " (required)"
		}
		v.Attributes = append(v.Attributes, desc)
	}
	for _, r := range m.Relationships {
		v.Relationships = append(v.Relationships, fmt.Sprintf("%s -> %s (%s)", r.Name, r.TargetResource, r.Cardinality))
	}
	return v
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
