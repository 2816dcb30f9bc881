package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/inovacc/chatdb/internal/application"
	"github.com/inovacc/chatdb/internal/encoding"
	"github.com/spf13/cobra"
)

var flagConfigForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the INI configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the effective configuration as an INI file",
	Long: `Write the configuration in effect for this run, including flag and
environment overrides, to path. Without path the default config file in the
application directory is written. An existing file is kept unless --force
is given.

Examples:
  chatdb config init
  chatdb --backend sqlite config init ./chatdb.ini`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath(args)
		if err != nil {
			return err
		}

		if _, err := os.Stat(path); err == nil && !flagConfigForce {
			return fmt.Errorf("config file %s exists (use --force to overwrite)", path)
		}

		if err := encoding.EnsureDir(filepath.Dir(path)); err != nil {
			return err
		}

		if err := current.cfg.Save(path); err != nil {
			return fmt.Errorf("write config %s: %w", path, err)
		}

		current.logger.Info("config written", "path", path)

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)

		return nil
	},
}

func configPath(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}

	return application.GetConfigFile()
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVar(&flagConfigForce, "force", false, "Overwrite an existing config file")
}
