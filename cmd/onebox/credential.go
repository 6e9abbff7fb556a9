package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nhle/onebox/internal/credential"
)

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage credentials in the system keyring",
}

var credentialSetCmd = &cobra.Command{
	Use:   "set <key>",
	Short: "Store a credential",
	Long: "Store a secret under the given key in the system keyring. The " +
		"value is read from the terminal without echo, or from stdin when piped.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		var value string
		if term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintf(cmd.OutOrStdout(), "Value for %s: ", key)
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("reading secret: %w", err)
			}
			value = string(raw)
		} else {
			scanner := bufio.NewScanner(os.Stdin)
			if scanner.Scan() {
				value = scanner.Text()
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading secret: %w", err)
			}
		}

		value = strings.TrimSpace(value)
		if value == "" {
			return fmt.Errorf("empty credential value")
		}

		if err := credential.NewKeyring().Set(key, value); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored credential %q.\n", key)
		return nil
	},
}

var credentialDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if err := credential.NewKeyring().Delete(key); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted credential %q.\n", key)
		return nil
	},
}

func init() {
	credentialCmd.AddCommand(credentialSetCmd)
	credentialCmd.AddCommand(credentialDeleteCmd)
}
