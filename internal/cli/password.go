package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"simrelease/internal/identity"
)

// NewHashPasswordCommand creates hash-password, which prints the bcrypt hash
// for a static directory entry. The password is read from stdin.
func NewHashPasswordCommand(_ *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password for the static user directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			password := strings.TrimRight(line, "\r\n")
			if password == "" {
				if err != nil {
					return WrapExitError(ExitCommandError, "read password", err)
				}
				return NewExitError(ExitCommandError, "empty password")
			}
			hash, err := identity.HashPassword(password)
			if err != nil {
				return WrapExitError(ExitCommandError, "hash password", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}
