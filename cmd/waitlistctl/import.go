package main

import (
	"encoding/json"
	"fmt"
	"os"

	"evently-waitlist/internal/app"
	"evently-waitlist/internal/waitlist"

	"github.com/spf13/cobra"
)

func newImportCmd() *cobra.Command {
	var (
		file             string
		dryRun           bool
		notify           bool
		errorOnDuplicate bool
		defaultPriority  string
	)

	c := &cobra.Command{
		Use:   "import EVENT_ID",
		Short: "Import waitlist entries from a JSON file of rows",
		Long: `Import reads a JSON array of rows shaped like the bulk import API body:
  [{"email": "a@example.com", "first_name": "Ada", "priority": "VIP", "ticket_quantity": 2}]
Unknown users are created; users already waiting are skipped unless --error-on-duplicate is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			body, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}
			var rows []waitlist.ImportRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to parse %s: %w", file, err)
			}

			return withApp(cmd.Context(), func(a *app.App) error {
				result, err := a.Engine.Bulk.BulkImport(cmd.Context(), ids[0], rows,
					waitlist.BulkOptions{DryRun: dryRun, NotifyUsers: notify},
					waitlist.ImportOptions{ErrorOnDuplicate: errorOnDuplicate, DefaultPriority: waitlist.Priority(defaultPriority)},
				)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}

	c.Flags().StringVarP(&file, "file", "f", "", "JSON file with import rows (required)")
	c.Flags().BoolVar(&dryRun, "dry-run", false, "validate and report without writing")
	c.Flags().BoolVar(&notify, "notify", false, "notify imported users")
	c.Flags().BoolVar(&errorOnDuplicate, "error-on-duplicate", false, "report users already waiting as failures")
	c.Flags().StringVar(&defaultPriority, "default-priority", "", "tier for rows without one")
	_ = c.MarkFlagRequired("file")
	return c
}
