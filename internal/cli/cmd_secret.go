package cli

import (
	"bufio"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"nirsvault/internal/secret"
)

func newSecretCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the warehouse password in the macOS Keychain",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set",
			Short: "Store the warehouse password read from stdin",
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := keychain()
				if err != nil {
					return err
				}
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				password := strings.TrimRight(line, "\r\n")
				if password == "" {
					if err != nil {
						return fmt.Errorf("read password: %w", err)
					}
					return errors.New("empty password")
				}
				key := g.cfg.Warehouse.SecretKey()
				if err := store.Set(key, []byte(password)); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "stored", key)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Remove the stored warehouse password",
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := keychain()
				if err != nil {
					return err
				}
				return store.Delete(g.cfg.Warehouse.SecretKey())
			},
		},
	)
	return cmd
}

func keychain() (*secret.KeychainStore, error) {
	if runtime.GOOS != "darwin" {
		return nil, fmt.Errorf("the keychain is only available on macOS; set %s instead",
			secret.NewEnvStore().Fallback)
	}
	return secret.NewKeychainStore(), nil
}
