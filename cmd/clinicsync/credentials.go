package main

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"clinicsync/internal/config"
	"clinicsync/internal/credentials"
)

func newCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the remote access key",
		Long: `Securely manage the remote backend's access key using the system keyring.

The access key is looked up in three places (in priority order):
  1. System keyring (most secure) - recommended
  2. CLINICSYNC_REMOTE_ACCESS_KEY environment variable
  3. remote.access_key in the config file (least secure)

Keys are stored per remote host, taken from remote.url unless given.

Examples:
  # Store the key (interactive prompt)
  clinicsync credentials set

  # Check where the key comes from
  clinicsync credentials get

  # Remove the stored key
  clinicsync credentials delete`,
	}

	cmd.AddCommand(newCredentialsSetCmd())
	cmd.AddCommand(newCredentialsGetCmd())
	cmd.AddCommand(newCredentialsDeleteCmd())

	return cmd
}

// hostArg returns the host named on the command line, or the configured remote's
func hostArg(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	host := config.GetConfig().RemoteHost()
	if host == "" {
		return "", fmt.Errorf("no host given and remote.url is not set")
	}
	return host, nil
}

func newCredentialsSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set [host] [access-key]",
		Short: "Store the access key in the system keyring",
		Long: `Store the remote access key securely in the system keyring.

Without an access-key argument the key is read interactively, which keeps
it out of shell history.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := hostArg(args)
			if err != nil {
				return err
			}

			var key string
			if len(args) == 2 {
				key = args[1]
			} else {
				fmt.Printf("Enter access key for %s: ", host)
				keyBytes, err := term.ReadPassword(int(syscall.Stdin))
				fmt.Println() // New line after key input
				if err != nil {
					return fmt.Errorf("failed to read access key: %w", err)
				}
				key = strings.TrimSpace(string(keyBytes))
			}
			if key == "" {
				return fmt.Errorf("access key cannot be empty")
			}

			if err := credentials.Set(host, key); err != nil {
				if !credentials.IsAvailable() {
					return fmt.Errorf("system keyring is not available. Try the environment variable instead:\n  export %s=<access-key>", credentials.EnvAccessKey)
				}
				return err
			}

			fmt.Printf("✓ Access key stored for %s\n", host)
			if config.GetConfig().Remote.AccessKey != "" {
				fmt.Println("\nYou can now remove remote.access_key from your config file.")
			}
			return nil
		},
	}

	return cmd
}

func newCredentialsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [host]",
		Short: "Show where the access key is found",
		Long: `Check which source provides the access key for a host.

The key itself is never printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := hostArg(args)
			if err != nil {
				return err
			}

			creds, err := credentials.NewResolver().Resolve(host, config.GetConfig().Remote.AccessKey)
			if err != nil {
				fmt.Printf("✗ No access key found for %s\n", host)
				fmt.Println("\nAvailable options:")
				fmt.Println("  1. Store in keyring:")
				fmt.Printf("     clinicsync credentials set %s\n", host)
				fmt.Println("  2. Set the environment variable:")
				fmt.Printf("     export %s=<access-key>\n", credentials.EnvAccessKey)
				fmt.Println("  3. Add remote.access_key to the config file (not recommended)")
				return err
			}

			fmt.Printf("✓ Access key found for %s\n", host)
			fmt.Printf("  Source: %s\n", creds.Source)
			return nil
		},
	}
}

func newCredentialsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [host]",
		Short: "Remove the access key from the system keyring",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := hostArg(args)
			if err != nil {
				return err
			}
			if err := credentials.Delete(host); err != nil {
				return err
			}
			fmt.Printf("✓ Access key removed for %s\n", host)
			return nil
		},
	}
}
