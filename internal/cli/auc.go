package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"simrelease/internal/registry"
)

// NewAucCommand creates the auc command.
func NewAucCommand(root *RootOptions) *cobra.Command {
	var env, batchFile string
	cmd := &cobra.Command{
		Use:   "auc [identifier...]",
		Short: "Build and deliver an AUC batch without touching SIM status",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, ok := registry.ParseEnvironment(env)
			if !ok {
				return NewExitError(ExitCommandError, "invalid environment")
			}
			ids, err := collectIdentifiers(cmd.InOrStdin(), batchFile, args)
			if err != nil {
				return err
			}
			return root.withCore(cmd, func(ctx context.Context, core Core) error {
				res := core.CreateAuc(ctx, ids, e)
				out := cmd.OutOrStdout()
				if root.JSON {
					if err := writeJSON(out, res); err != nil {
						return err
					}
				} else {
					rows := [][]string{
						{"success", fmt.Sprint(res.Success)},
						{"processed", strings.Join(res.Processed, ",")},
						{"skipped", strings.Join(res.Skipped, ",")},
						{"filename", res.Filename},
						{"message", res.Message},
					}
					if err := writeTable(out, []string{"FIELD", "VALUE"}, rows); err != nil {
						return err
					}
				}
				if !res.Success {
					return NewExitError(ExitFailure, res.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&env, "env", "UAT", "target environment (PROD|UAT)")
	cmd.Flags().StringVar(&batchFile, "batch-file", "", "file with one identifier per line")
	return cmd
}
