package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/milestonesync/internal/records"
)

func newRecordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Manage client records",
	}
	cmd.AddCommand(newRecordsImportCmd())
	cmd.AddCommand(newRecordsListCmd())
	return cmd
}

func newRecordsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Load client records from a JSON array",
		Long: `Insert or replace client records from a JSON array of records. Reminder
markers already stored for a record are kept.

Use "-" to read from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := readRecords(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				n, err := importRecords(ctx, a.store, recs)
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d records\n", n, len(recs))
				return err
			})
		},
	}
}

func newRecordsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print active records as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				recs, err := a.store.ListActive(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), recs)
			})
		},
	}
}

func readRecords(stdin io.Reader, path string) ([]records.ClientRecord, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}

	var recs []records.ClientRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("failed to parse records: %w", err)
	}
	for i, r := range recs {
		if r.ID == "" {
			return nil, fmt.Errorf("record %d has no id", i)
		}
	}
	return recs, nil
}

// importRecords upserts recs in order and stops at the first failure.
func importRecords(ctx context.Context, store records.Store, recs []records.ClientRecord) (int, error) {
	importer, ok := store.(records.Importer)
	if !ok {
		return 0, fmt.Errorf("record store %T does not support import", store)
	}
	for i, r := range recs {
		if err := importer.Upsert(ctx, r); err != nil {
			return i, fmt.Errorf("failed to import record %s: %w", r.ID, err)
		}
	}
	return len(recs), nil
}
