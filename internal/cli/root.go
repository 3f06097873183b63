// Package cli wires up the clawpanel command tree.
package cli

import (
	"github.com/spf13/cobra"

	"clawpanel/internal/config"
	"clawpanel/pkg/logger"
)

// GlobalFlags holds flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
}

var globalFlags GlobalFlags

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "clawpanel",
		Short: "Clawpanel - interactive gateway chat panel",
		Long: `Clawpanel is a terminal panel for chatting with an agent through
its gateway WebSocket protocol. It handles authentication, streaming
replies, media references, and automatic reconnection.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}

			configPath := globalFlags.ConfigPath
			if configPath == "" {
				var err error
				configPath, err = config.DefaultConfigPath()
				if err != nil {
					return err
				}
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logLevel := cfg.Log.Level
			if globalFlags.Verbose {
				logLevel = "debug"
			}
			if globalFlags.Quiet {
				logLevel = "error"
			}

			return logger.Init(logger.LogConfig{
				Level:  logLevel,
				Format: cfg.Log.Format,
				File:   cfg.Log.File,
			})
		},
	}

	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "quiet mode")

	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewConfigCmd())
	rootCmd.AddCommand(NewConnectCmd())
	rootCmd.AddCommand(NewChatCmd())
	rootCmd.AddCommand(NewHistoryCmd())
	rootCmd.AddCommand(NewMockGatewayCmd())

	return rootCmd
}

// gatewayConfig builds the connection settings from the loaded config.
func gatewayConfig() (cfg *config.Config, err error) {
	cfg = config.GetConfig()
	if cfg == nil {
		cfg, err = config.Load("")
	}
	return cfg, err
}
