package main

import (
	"fmt"
	"os"

	"clawpanel/internal/cli"
	"clawpanel/pkg/logger"
)

func main() {
	defer logger.Close()

	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
