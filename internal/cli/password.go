package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/OldStager01/elastic-orchestrator/internal/auth"
	"github.com/OldStager01/elastic-orchestrator/pkg/validation"
	"github.com/spf13/cobra"
)

var allowWeak bool

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print a bcrypt hash for api.admin_password_hash",
	Long:  "Hashes the argument, or the first line of stdin when no argument is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var password string
		if len(args) == 1 {
			password = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}
		if password == "" {
			return errors.New("password must not be empty")
		}
		if !allowWeak {
			if err := validation.ValidatePassword(password); err != nil {
				return err
			}
		}

		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	hashPasswordCmd.Flags().BoolVar(&allowWeak, "allow-weak", false, "skip the password strength check")
	rootCmd.AddCommand(hashPasswordCmd)
}
