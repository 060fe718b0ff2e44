package main

import (
	"fmt"
	"os"

	"reservations/internal/cli"
)

func main() {
	if err := cli.NewRootCommand(cli.OpenFactoryBackend).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
