package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/mabou7agar/laravel-api-model-client-sub002/internal/spec"
)

// ValidateConfig captures the options for the validate command.
type ValidateConfig struct {
	EngineConfig
	Source string
	Strict bool
}

var validateRunner = runValidate

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <source>",
		Short: "Parse an OpenAPI document and report its contract summary",
		Long: "Parse an OpenAPI 3.x document from a file or http(s) URL, check its version and structure, " +
			"and report the extracted endpoints, schemas and model mappings along with any extraction warnings.",
		Example: strings.TrimSpace(`  apicontract validate ./openapi.yaml
  apicontract --config apicontract.yaml validate https://example.com/openapi.json --strict`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := resolveEngineConfig(cmd)
			if err != nil {
				return err
			}
			strict, err := cmd.Flags().GetBool("strict")
			if err != nil {
				return err
			}
			cfg := &ValidateConfig{
				EngineConfig: *engine,
				Source:       strings.TrimSpace(args[0]),
				Strict:       strict,
			}
			return validateRunner(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().Bool("strict", false, "Fail when extraction produced warnings")
	addEngineFlags(cmd.Flags())

	return cmd
}

func runValidate(ctx context.Context, cfg *ValidateConfig, out io.Writer) error {
	contract, err := loadContract(ctx, &cfg.EngineConfig, cfg.Source)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "OK %s\n", contract.Source)
	fmt.Fprintf(out, "  openapi:   %s\n", contract.OpenAPI)
	fmt.Fprintf(out, "  title:     %s (%s)\n", contract.Info.Title, contract.Info.Version)
	fmt.Fprintf(out, "  endpoints: %d\n", len(contract.Endpoints))
	fmt.Fprintf(out, "  schemas:   %d\n", len(contract.Schemas))
	fmt.Fprintf(out, "  models:    %d\n", len(contract.ModelMappings))
	for _, d := range contract.Diagnostics {
		fmt.Fprintf(out, "warning: %s\n", d)
	}

	if cfg.Strict && len(contract.Diagnostics) > 0 {
		return fmt.Errorf("validate: %d extraction warning(s) in %s", len(contract.Diagnostics), contract.Source)
	}
	return nil
}

// loadContract parses source with the configured engine, mapping structured
// spec errors into friendly usage messages.
func loadContract(ctx context.Context, cfg *EngineConfig, source string) (*spec.Contract, error) {
	if source == "" {
		return nil, newUsageError("a source path or URL is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(os.Stderr, cfg.Verbose)
	contract, err := cfg.parser(logger).Parse(ctx, source, cfg.CacheEnabled)
	if err != nil {
		return nil, specFailure(err)
	}
	level.Debug(logger).Log("msg", "parsed contract", "source", contract.Source, "endpoints", len(contract.Endpoints), "diagnostics", len(contract.Diagnostics))
	return contract, nil
}

func specFailure(err error) error {
	var se *spec.SpecError
	if !errors.As(err, &se) {
		return err
	}
	msg := se.Message
	if se.Location != "" {
		msg = fmt.Sprintf("%s\nLocation: %s", msg, se.Location)
	}
	if se.JSONPointer != "" {
		msg = fmt.Sprintf("%s\nPointer: %s", msg, se.JSONPointer)
	}
	return newUsageError(msg)
}
