package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// CLIConfig carries the settings the token commands need
type CLIConfig struct {
	DatabasePath string
}

// TokenRootCmd returns the `token` command tree for managing the
// persisted credential cache.
func TokenRootCmd(cfg *CLIConfig) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the cached service credential",
	}

	var ttlSeconds int
	setCmd := &cobra.Command{
		Use:   "set <token>",
		Short: "Install a credential obtained from an external auth flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := OpenTokenStore(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()

			cred := &Credential{
				Token:     args[0],
				ExpiresAt: time.Now().Add(time.Duration(ttlSeconds) * time.Second),
			}
			if err := store.Save(context.Background(), cred, ""); err != nil {
				return err
			}
			fmt.Printf("Credential saved (expires %s)\n", cred.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	setCmd.Flags().IntVar(&ttlSeconds, "ttl", 3600, "token lifetime in seconds")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the cached credential's expiry",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := OpenTokenStore(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()

			cred, _, err := store.Load(context.Background())
			if err != nil {
				fmt.Println("No credential cached.")
				return nil
			}

			if cred.Usable(time.Now()) {
				fmt.Printf("Credential valid until %s\n", cred.ExpiresAt.Format(time.RFC3339))
			} else {
				fmt.Printf("Credential expired at %s\n", cred.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the cached credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := OpenTokenStore(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Clear(context.Background()); err != nil {
				return err
			}
			fmt.Println("Credential cleared.")
			return nil
		},
	}

	tokenCmd.AddCommand(setCmd, statusCmd, clearCmd)
	return tokenCmd
}
