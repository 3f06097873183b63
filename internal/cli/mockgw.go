package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"clawpanel/internal/mockgw"
)

// NewMockGatewayCmd creates the mockgw command. The mock gateway speaks just
// enough of the protocol for local development and demos without a real
// agent behind it.
func NewMockGatewayCmd() *cobra.Command {
	var (
		addr      string
		token     string
		password  string
		filesRoot string
	)

	cmd := &cobra.Command{
		Use:   "mockgw",
		Short: "Run a mock gateway for local development",
		Example: `  # Open gateway on the default port
  clawpanel mockgw

  # Require a token, serve files from a directory
  clawpanel mockgw --token dev-token --files ./testdata`,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := mockgw.New(mockgw.Options{
				Token:     token,
				Password:  password,
				FilesRoot: filesRoot,
				ChatDeltas: []string{
					"Thinking",
					"Thinking this through",
					"Thinking this through... done.",
				},
				FinalMessage:  "",
				DeltaInterval: 300 * time.Millisecond,
			})

			fmt.Printf("Mock gateway listening on ws://%s/ws\n", addr)
			return srv.ListenAndServe(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:18789", "listen address")
	cmd.Flags().StringVar(&token, "token", "", "require this auth token")
	cmd.Flags().StringVar(&password, "password", "", "require this password")
	cmd.Flags().StringVar(&filesRoot, "files", "", "serve files.read from this directory")

	return cmd
}
