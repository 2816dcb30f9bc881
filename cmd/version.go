package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/inovacc/chatdb/internal/application"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X github.com/inovacc/chatdb/cmd.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	// no config or database needed
	PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
	PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, _ []string) {
		v := Version
		if info, ok := debug.ReadBuildInfo(); ok && v == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s, %s/%s)\n", application.AppName, v, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
