// Command backend is the mirrors-qa control-plane binary: it serves the API
// surface, runs the scheduler loop, reconciles the mirror list, and exposes
// operator subcommands for provisioning workers and countries.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "backend",
	Short: "mirrors-qa control-plane binary",
}

func main() {
	rootCmd.AddCommand(serveCmd, schedulerCmd, updateMirrorsCmd, createWorkerCmd, updateWorkerCmd, createCountriesCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
