package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/inovacc/chatdb/internal/chatdb"
	"github.com/inovacc/chatdb/internal/docstore"
	"github.com/inovacc/chatdb/internal/encoding"
	"github.com/spf13/cobra"
)

// dbSummary is printed by open.
type dbSummary struct {
	Name    string   `json:"name"`
	Version uint64   `json:"version"`
	Backend string   `json:"backend"`
	Path    string   `json:"path"`
	Stores  []string `json:"stores"`
}

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Create or upgrade the database",
	Long: `Open the database at --db-version, creating it when absent. Opening at a
higher version than the stored one runs the schema upgrade; a lower version
fails.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDatabase(func(_ *chatdb.Facade, db *docstore.Database) error {
			return printJSON(cmd, dbSummary{
				Name:    db.Name(),
				Version: db.Version(),
				Backend: current.cfg.Storage.Backend,
				Path:    db.Path(),
				Stores:  db.ObjectStoreNames(),
			})
		})
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDatabase(func(_ *chatdb.Facade, db *docstore.Database) error {
			return printJSON(cmd, db.Schema())
		})
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Delete the database and all its messages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		name := current.cfg.Database.Name

		if err := current.facade.DeleteDatabase(name); err != nil {
			return err
		}

		return printJSON(cmd, map[string]string{"dropped": name})
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "List the databases in the data directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		factory := current.facade.Factory()

		names, err := factory.Databases()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()

		_, _ = fmt.Fprintf(out, "Data directory: %s\n", factory.Dir())
		_, _ = fmt.Fprintf(out, "Backend:        %s\n", factory.Driver())

		if current.cfg.Source != "" {
			_, _ = fmt.Fprintf(out, "Config:         %s\n", current.cfg.Source)
		}

		if len(names) == 0 {
			_, _ = fmt.Fprintln(out, "\nNo databases.")
			return nil
		}

		_, _ = fmt.Fprintln(out)

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "NAME\tVERSION\tMESSAGES\tSIZE")

		for _, name := range names {
			version, count, err := describe(name)
			if err != nil {
				return fmt.Errorf("database %s: %w", name, err)
			}

			size := encoding.FileSize(factory.Path(name))

			_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", name, version, count, humanize.Bytes(uint64(size)))
		}

		return w.Flush()
	},
}

// describe reports the stored version and message count of a database.
func describe(name string) (uint64, string, error) {
	db, err := current.facade.Factory().Open(name, 0, nil)
	if err != nil {
		return 0, "", err
	}
	defer db.Close()

	count := "-"

	err = db.View(chatdb.StoreName, func(s *docstore.ObjectStore) error {
		n, err := s.Count(nil)
		count = humanize.Comma(int64(n))

		return err
	})
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return 0, "", err
	}

	return db.Version(), count, nil
}

func init() {
	rootCmd.AddCommand(openCmd, schemaCmd, dropCmd, infoCmd)
}
