package cli

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"clawpanel/internal/config"
	"clawpanel/internal/gateway"
)

// NewConnectCmd creates the connect command, which checks credentials against
// the gateway and optionally saves them.
func NewConnectCmd() *cobra.Command {
	var (
		url   string
		token string
		save  bool
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Verify the gateway connection",
		Long: `Connect to the gateway, complete the authentication handshake, and
report the result. With --save, working settings are written to the
config file for later sessions.`,
		Example: `  # Verify with the configured settings
  clawpanel connect

  # Try a different gateway and keep it on success
  clawpanel connect --url ws://10.0.0.5:18789/ws --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gatewayConfig()
			if err != nil {
				return err
			}

			gwCfg := gateway.Config{
				GatewayURL: cfg.Gateway.URL,
				Token:      cfg.Gateway.Token,
				Password:   cfg.Gateway.Password,
			}
			if url != "" {
				gwCfg.GatewayURL = url
			}
			if token != "" {
				gwCfg.Token = token
			}

			if gwCfg.Token == "" && gwCfg.Password == "" {
				fmt.Print("Gateway password (leave empty for none): ")
				passBytes, err := term.ReadPassword(int(syscall.Stdin))
				fmt.Println()
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				gwCfg.Password = strings.TrimSpace(string(passBytes))
			}

			client := gateway.NewClient(gateway.Handlers{}, gateway.Options{})
			defer client.Disconnect()

			if err := client.ConnectAndVerify(gwCfg); err != nil {
				return fmt.Errorf("verify failed: %w", err)
			}

			fmt.Printf("Connected to %s\n", gwCfg.GatewayURL)

			if save {
				if err := config.Set("gateway.url", gwCfg.GatewayURL); err != nil {
					return err
				}
				if gwCfg.Token != "" {
					if err := config.Set("gateway.token", gwCfg.Token); err != nil {
						return err
					}
				}
				if gwCfg.Password != "" {
					if err := config.Set("gateway.password", gwCfg.Password); err != nil {
						return err
					}
				}
				fmt.Println("Settings saved.")
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "gateway WebSocket URL (reads from config if not specified)")
	cmd.Flags().StringVar(&token, "token", "", "gateway auth token")
	cmd.Flags().BoolVar(&save, "save", false, "save working settings to the config file")

	return cmd
}
