package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/proxyforge/proxyforge/internal/jobspec"
)

var validateCmd = &cobra.Command{
	Use:   "validate <jobspec.json>",
	Short: "Validate a JobSpec file without creating a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	spec, err := jobspec.Load(args[0])
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return fail(exitIO, "%v", err)
		}
		return fail(exitValidation, "%v", err)
	}
	if err := spec.Validate(); err != nil {
		return fail(exitValidation, "%v", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (jobspec_version %s, %d sources)\n", args[0], spec.Version, len(spec.Sources))
	return nil
}
