package cmd

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/inovacc/chatdb/internal/encoding"
	"github.com/inovacc/chatdb/internal/model"
	"github.com/spf13/cobra"
)

// parseKey turns a command-line value into a store key: a number when it
// parses as a finite number and --string-key is not set, else a string.
func parseKey(s string) any {
	if flagStringKey {
		return s
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return s
	}

	return f
}

// readRecords reads one JSON object or an array of objects from the
// argument, from --file, or from stdin when the argument is "-" or absent.
func readRecords(cmd *cobra.Command, args []string, file string) ([]model.Record, error) {
	var data []byte

	switch {
	case file != "":
		raw, err := encoding.ReadFile(file)
		if err != nil {
			return nil, err
		}

		if raw == nil {
			return nil, fmt.Errorf("file %s not found", file)
		}

		data = raw
	case len(args) > 0 && args[0] != "-":
		data = []byte(args[0])
	default:
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}

		data = raw
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("no record given")
	}

	if data[0] == '[' {
		recs, err := encoding.ParseJSON[[]model.Record](data)
		if err != nil {
			return nil, err
		}

		return *recs, nil
	}

	rec, err := encoding.ParseJSON[model.Record](data)
	if err != nil {
		return nil, err
	}

	return []model.Record{*rec}, nil
}

func readRecord(cmd *cobra.Command, args []string, file string) (model.Record, error) {
	recs, err := readRecords(cmd, args, file)
	if err != nil {
		return nil, err
	}

	if len(recs) != 1 {
		return nil, fmt.Errorf("expected one record, got %d", len(recs))
	}

	return recs[0], nil
}

func printJSON(cmd *cobra.Command, v any) error {
	return encoding.WriteJSON(cmd.OutOrStdout(), v)
}
