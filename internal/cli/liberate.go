package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"simrelease/internal/liberation"
	"simrelease/internal/registry"
)

type liberateOptions struct {
	env       string
	batchFile string
	actor     string
	role      string
}

// NewLiberateCommand creates the liberate command.
func NewLiberateCommand(root *RootOptions) *cobra.Command {
	opts := &liberateOptions{}
	cmd := &cobra.Command{
		Use:   "liberate [identifier...]",
		Short: "Release SIM cards so they can be sold again",
		Long: `Liberate releases each SIM in the chosen registry and provisions its AUC.

Identifiers are 12-digit card bodies or full serial numbers, given as
arguments or one per line in --batch-file ("-" reads stdin).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLiberate(cmd, root, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.env, "env", "UAT", "target environment (PROD|UAT)")
	cmd.Flags().StringVar(&opts.batchFile, "batch-file", "", "file with one identifier per line")
	cmd.Flags().StringVar(&opts.actor, "actor", "", "operator recorded in the audit trail (defaults to $USER)")
	cmd.Flags().StringVar(&opts.role, "role", "cli", "role recorded in the audit trail")
	return cmd
}

func runLiberate(cmd *cobra.Command, root *RootOptions, opts *liberateOptions, args []string) error {
	env, ok := registry.ParseEnvironment(opts.env)
	if !ok {
		return NewExitError(ExitCommandError, "invalid environment")
	}
	ids, err := collectIdentifiers(cmd.InOrStdin(), opts.batchFile, args)
	if err != nil {
		return err
	}
	actor := opts.actor
	if actor == "" {
		actor = root.getenv("USER")
	}

	return root.withCore(cmd, func(ctx context.Context, core Core) error {
		outcomes, err := core.Liberate(ctx, liberation.Request{
			Identifiers: ids,
			Environment: env,
			Actor:       actor,
			Role:        opts.role,
			Batch:       opts.batchFile != "",
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "liberation failed", err)
		}

		summary := liberation.Summarize(outcomes)
		out := cmd.OutOrStdout()
		if root.JSON {
			err = writeJSON(out, struct {
				Success bool                 `json:"success"`
				Results []liberation.Outcome `json:"results"`
				Message string               `json:"message"`
			}{true, outcomes, summary.Message()})
		} else {
			rows := make([][]string, len(outcomes))
			for i, o := range outcomes {
				rows[i] = []string{o.Sim, string(o.Status), o.Message}
			}
			if err = writeTable(out, []string{"SIM", "STATUS", "MESSAGE"}, rows); err == nil {
				_, err = fmt.Fprintln(out, summary.Message())
			}
		}
		if err != nil {
			return err
		}
		if summary.Anomalies > 0 {
			return NewExitError(ExitFailure, fmt.Sprintf("%d anomalies", summary.Anomalies))
		}
		return nil
	})
}

// collectIdentifiers merges args with the lines of batchFile, trimming and
// dropping blanks.
func collectIdentifiers(stdin io.Reader, batchFile string, args []string) ([]string, error) {
	var ids []string
	for _, a := range args {
		if strings.TrimSpace(a) != "" {
			ids = append(ids, a)
		}
	}
	if batchFile != "" {
		r := stdin
		if batchFile != "-" {
			f, err := os.Open(batchFile)
			if err != nil {
				return nil, WrapExitError(ExitCommandError, "open batch file", err)
			}
			defer f.Close()
			r = f
		}
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			if line := sc.Text(); strings.TrimSpace(line) != "" {
				ids = append(ids, line)
			}
		}
		if err := sc.Err(); err != nil {
			return nil, WrapExitError(ExitCommandError, "read batch file", err)
		}
	}
	if len(ids) == 0 {
		return nil, NewExitError(ExitCommandError, "no ICCID provided")
	}
	return ids, nil
}
