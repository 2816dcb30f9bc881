package cmd

import (
	"errors"

	"github.com/inovacc/chatdb/internal/chatdb"
	"github.com/inovacc/chatdb/internal/docstore"
	"github.com/inovacc/chatdb/internal/model"
	"github.com/spf13/cobra"
)

var (
	flagInsertFile string
	flagUpdateFile string
	flagPageSize   int
	flagPage       int
)

var insertCmd = &cobra.Command{
	Use:   "insert [json|-]",
	Short: "Insert messages unless their sequenceId exists",
	Long: `Insert one message (a JSON object) or several (a JSON array).

A message whose sequenceId is already stored is left untouched and reported
with "exists": true. Messages without a sequenceId get the next generated one.

Examples:
  chatdb insert '{"sequenceId":1,"link":"a","messageType":"text"}'
  echo '[{"link":"a"},{"link":"b"}]' | chatdb insert
  chatdb insert --file messages.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recs, err := readRecords(cmd, args, flagInsertFile)
		if err != nil {
			return err
		}

		return withDatabase(func(f *chatdb.Facade, db *docstore.Database) error {
			results := make([]chatdb.InsertResult, 0, len(recs))

			for _, rec := range recs {
				res, err := f.Insert(db, chatdb.StoreName, rec)
				if err != nil {
					return err
				}

				results = append(results, res)
			}

			if len(results) == 1 {
				return printJSON(cmd, results[0])
			}

			return printJSON(cmd, results)
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <sequenceId>",
	Short: "Print the message with the given key",
	Long:  `Print the message stored under the key, or null when there is none.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(f *chatdb.Facade, db *docstore.Database) error {
			rec, err := f.GetByKey(db, chatdb.StoreName, parseKey(args[0]))
			if err != nil {
				return err
			}

			return printJSON(cmd, rec)
		})
	},
}

var findCmd = &cobra.Command{
	Use:   "find <index> <value>",
	Short: "Print the first message matching an index value",
	Long: `Print the first message, in index order, whose index value equals value.
Indexes: sequenceId, link, messageType.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(f *chatdb.Facade, db *docstore.Database) error {
			rec, err := f.GetByIndex(db, chatdb.StoreName, args[0], parseKey(args[1]))
			if err != nil {
				return err
			}

			return printJSON(cmd, rec)
		})
	},
}

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Print every message in key order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDatabase(func(f *chatdb.Facade, db *docstore.Database) error {
			recs, err := f.GetAll(db, chatdb.StoreName)
			if err != nil {
				return err
			}

			return printJSON(cmd, recs)
		})
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan <index> <value>",
	Short: "Print every message matching an index value",
	Long: `Print the messages whose index value equals value, in index order.

With --page-size, only page --page (1-based) is printed.

Examples:
  chatdb scan link a
  chatdb scan messageType text --page-size 20 --page 2`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("page") && !cmd.Flags().Changed("page-size") {
			return errors.New("--page requires --page-size")
		}

		return withDatabase(func(f *chatdb.Facade, db *docstore.Database) error {
			var (
				recs []model.Record
				err  error
			)

			if cmd.Flags().Changed("page-size") {
				recs, err = f.ScanByIndexPaged(db, chatdb.StoreName, args[0], parseKey(args[1]), flagPageSize, flagPage)
			} else {
				recs, err = f.ScanByIndex(db, chatdb.StoreName, args[0], parseKey(args[1]))
			}

			if err != nil {
				return err
			}

			return printJSON(cmd, recs)
		})
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <sequenceId> [json|-]",
	Short: "Replace the message stored under a key",
	Long: `Write the message under the key, replacing any stored message.
The key is stored as the message's sequenceId; a message carrying a
different sequenceId is rejected.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := readRecord(cmd, args[1:], flagUpdateFile)
		if err != nil {
			return err
		}

		return withDatabase(func(f *chatdb.Facade, db *docstore.Database) error {
			return f.UpdateByKey(db, chatdb.StoreName, parseKey(args[0]), rec)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <sequenceId>",
	Short: "Delete the message stored under a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return withDatabase(func(f *chatdb.Facade, db *docstore.Database) error {
			return f.DeleteByKey(db, chatdb.StoreName, parseKey(args[0]))
		})
	},
}

var deleteByCmd = &cobra.Command{
	Use:   "delete-by <index> <value>",
	Short: "Delete every message matching an index value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(f *chatdb.Facade, db *docstore.Database) error {
			n, err := f.DeleteByIndex(db, chatdb.StoreName, args[0], parseKey(args[1]))
			if err != nil {
				return err
			}

			return printJSON(cmd, map[string]int{"deleted": n})
		})
	},
}

func init() {
	rootCmd.AddCommand(insertCmd, getCmd, findCmd, allCmd, scanCmd, updateCmd, deleteCmd, deleteByCmd)

	insertCmd.Flags().StringVarP(&flagInsertFile, "file", "f", "", "Read messages from a JSON file")
	updateCmd.Flags().StringVarP(&flagUpdateFile, "file", "f", "", "Read the message from a JSON file")

	scanCmd.Flags().IntVar(&flagPageSize, "page-size", 0, "Messages per page")
	scanCmd.Flags().IntVar(&flagPage, "page", 1, "Page number, starting at 1")
}
