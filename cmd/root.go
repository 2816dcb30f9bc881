package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/inovacc/chatdb/internal/application"
	"github.com/inovacc/chatdb/internal/chatdb"
	"github.com/inovacc/chatdb/internal/config"
	"github.com/inovacc/chatdb/internal/docstore"
	"github.com/inovacc/chatdb/internal/log"
	"github.com/spf13/cobra"
)

var (
	flagConfig    string
	flagDataDir   string
	flagBackend   string
	flagDB        string
	flagDBVersion uint64
	flagLogLevel  string
	flagLogFormat string
	flagStringKey bool
)

// session is the state prepared for every command run.
type session struct {
	cfg    *config.Config
	facade *chatdb.Facade
	logger *slog.Logger
}

var current *session

var rootCmd = &cobra.Command{
	Use:   application.AppName,
	Short: "Store and query chat message history",
	Long: `chatdb is a command-line client for an embedded chat message store.

Messages live in the "singleChat" store of a named database, keyed by an
auto-incrementing sequenceId and indexed by sequenceId, link and messageType.
Databases are single files under the data directory, backed by bbolt or SQLite.

Settings come from defaults, an optional INI file, CHATDB_* environment
variables and flags, later sources winning.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(*cobra.Command, []string) error {
		return log.Close()
	},
}

// Execute runs the root command. Errors are printed with their store error
// code and the process exits 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		if code := docstore.ErrorName(err); code != "UnknownError" {
			_, _ = fmt.Fprintf(os.Stderr, "Code:  %s\n", code)
		}

		os.Exit(1)
	}
}

// GetRootCmd returns the root command for introspection purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "INI config file (default $CHATDB_CONFIG or <config dir>/chatdb/config.ini)")
	pf.StringVar(&flagDataDir, "data-dir", "", "Directory holding the database files")
	pf.StringVar(&flagBackend, "backend", "", "Storage backend: bolt or sqlite")
	pf.StringVar(&flagDB, "db", "", "Database name")
	pf.Uint64Var(&flagDBVersion, "db-version", 0, "Schema version to open the database at")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&flagLogFormat, "log-format", "", "Log format: text or json")
	pf.BoolVar(&flagStringKey, "string-key", false, "Treat keys and index values as strings even when numeric")
}

func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	flags := cmd.Flags()

	if flags.Changed("data-dir") {
		cfg.Storage.DataDir = flagDataDir
	}

	if flags.Changed("backend") {
		cfg.Storage.Backend = flagBackend
	}

	if flags.Changed("db") {
		cfg.Database.Name = flagDB
	}

	if flags.Changed("db-version") {
		cfg.Database.Version = flagDBVersion
	}

	if flags.Changed("log-level") {
		cfg.Log.Level = flagLogLevel
	}

	if flags.Changed("log-format") {
		cfg.Log.Format = flagLogFormat
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	log.Init(log.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})

	factory := docstore.NewFactory(cfg.Storage.DataDir, cfg.Storage.Backend, log.L())

	current = &session{
		cfg:    cfg,
		facade: chatdb.New(factory, log.L()),
		logger: log.WithComponent("cli"),
	}

	current.logger.Debug("configuration loaded",
		slog.String("source", cfg.Source),
		slog.String("data_dir", cfg.Storage.DataDir),
		slog.String("backend", cfg.Storage.Backend),
		slog.String("db", cfg.Database.Name))

	return nil
}

// withDatabase opens the configured database, runs fn and closes it.
func withDatabase(fn func(f *chatdb.Facade, db *docstore.Database) error) (err error) {
	if current == nil {
		return fmt.Errorf("%s: not initialised", application.AppName)
	}

	f := current.facade

	db, err := f.OpenDatabase(current.cfg.Database.Name, current.cfg.Database.Version)
	if err != nil {
		return err
	}

	defer func() {
		if cerr := f.CloseDatabase(db); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return fn(f, db)
}
