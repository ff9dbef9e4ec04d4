package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"simrelease/internal/iccid"
)

type normalized struct {
	Input  string `json:"input"`
	Serial string `json:"serial"`
	Valid  bool   `json:"valid"`
}

// NewNormalizeCommand creates the normalize command. It only reads the SIM
// prefix and suffix from configuration and never opens a registry.
func NewNormalizeCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize identifier...",
		Short: "Show the serial number each identifier resolves to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.config()
			if err != nil {
				return WrapExitError(ExitCommandError, "load configuration", err)
			}
			n, err := iccid.New(cfg.SIM.Prefix, cfg.SIM.Suffix)
			if err != nil {
				return WrapExitError(ExitCommandError, "sim identifiers", err)
			}

			results := make([]normalized, len(args))
			rows := make([][]string, len(args))
			for i, a := range args {
				s := n.Normalize(a)
				results[i] = normalized{Input: a, Serial: s, Valid: n.IsValid(s)}
				rows[i] = []string{a, s, fmt.Sprint(results[i].Valid)}
			}
			if root.JSON {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			return writeTable(cmd.OutOrStdout(), []string{"INPUT", "SERIAL", "VALID"}, rows)
		},
	}
}
