package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/luma/argus/cmd/gen"
	"github.com/luma/argus/internal/meta"
)

var rootCmd = &cobra.Command{
	Use:     "argus",
	Short:   "Argus multiplexes physical sensor drivers behind one event stream",
	Version: meta.Version,
}

func init() {
	rootCmd.AddCommand(StartCmd)
	rootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
