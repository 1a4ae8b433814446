package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "jbapi",
	Short: "jbapi - HTTP-to-container API gateway",
	Long: `jbapi accepts HTTP requests addressed to a named logical API, forwards
the payload over a per-API queue to a pool of sandboxed worker containers,
and maintains that pool at a size proportional to observed load.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"jbapi version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
}
