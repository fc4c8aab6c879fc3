package cli

import (
    "fmt"

    "github.com/spf13/cobra"
)

// Execute runs the apicontract CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd constructs the root command so tests can exercise the CLI easily.
func NewRootCmd() *cobra.Command {
    cmd := &cobra.Command{
        Use:           "apicontract",
        Short:         "Turn OpenAPI documents into API contracts",
        Long:          "apicontract parses OpenAPI 3.x documents into contracts: endpoints, schemas, model mappings and validation rules, and routes query parameters through them.",
        SilenceErrors: true,
        SilenceUsage:  true,
        RunE: func(cmd *cobra.Command, args []string) error {
            return cmd.Help()
        },
    }

    // Convert Cobra flag errors (like unknown flags) into friendly usage errors
    // that also show the command's help text.
    cmd.SetFlagErrorFunc(flagUsageError)

    cmd.PersistentFlags().StringP("config", "c", "", "Config file path (YAML or JSON)")
    cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging output")

    for _, sub := range []*cobra.Command{newValidateCmd(), newInspectCmd(), newParamsCmd(), newInitCmd()} {
        sub.SetFlagErrorFunc(flagUsageError)
        cmd.AddCommand(sub)
    }

    return cmd
}

func flagUsageError(c *cobra.Command, err error) error {
    return newUsageError(fmt.Sprintf("%v\n\n%s", err, c.UsageString()))
}
