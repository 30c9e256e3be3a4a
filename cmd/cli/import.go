package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/matmarket/procure-service/internal/catalog"
	"github.com/matmarket/procure-service/internal/database"
	"github.com/matmarket/procure-service/internal/storage"
)

var (
	importRegion string
	importDryRun bool
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import <sheet.xlsx>",
	Short: "Validate a price sheet and load it into the catalog database",
	Long: `Parse and validate a supplier price sheet (xlsx) and upsert its shops,
listings, and bulk tiers into the given region. Rows that fail validation are
reported and skipped; the import succeeds as long as any rows are usable.

Use --dry-run to validate without writing to the database.`,
	Example: `  procure-service import catalog.xlsx --region zagreb
  procure-service import catalog.xlsx --region zagreb --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importRegion, "region", "", "Target region for the imported rows")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate only, do not write to the database")
	importCmd.MarkFlagRequired("region")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read price sheet: %w", err)
	}

	result, err := catalog.ImportSheet(content)
	if err != nil {
		return fmt.Errorf("parse price sheet: %w", err)
	}

	displayRowErrors(result)
	logger.Info().
		Int("shops", len(result.Shops)).
		Int("listings", len(result.Listings)).
		Int("row_errors", len(result.Errors)).
		Msg("Price sheet validated")

	if len(result.Shops) == 0 && len(result.Listings) == 0 {
		return fmt.Errorf("no usable rows in sheet")
	}

	if importDryRun {
		fmt.Println("Dry run, nothing written.")
		return nil
	}

	repo := catalog.NewRepository(database.Pool())
	if err := repo.SaveSheet(ctx, importRegion, result); err != nil {
		return fmt.Errorf("save sheet: %w", err)
	}

	archiveSheet(ctx, args[0], content, result)

	logger.Info().Str("region", importRegion).Msg("Import complete")
	return nil
}

// archiveSheet keeps a copy of the imported sheet for audit and replay.
// Archiving failures don't fail the import, the data is already persisted.
func archiveSheet(ctx context.Context, path string, content []byte, result *catalog.SheetResult) {
	if cfg == nil || cfg.Storage.Path == "" {
		return
	}

	store, err := storage.NewLocalStorage(cfg.Storage.Path)
	if err != nil {
		logger.Warn().Err(err).Msg("Sheet archive unavailable")
		return
	}

	importedAt := time.Now()
	key := storage.BuildSheetKey(importRegion, importedAt, path)
	meta := &storage.Metadata{
		Region:       importRegion,
		OriginalName: path,
		ImportedAt:   importedAt,
		Shops:        len(result.Shops),
		Listings:     len(result.Listings),
		RowErrors:    len(result.Errors),
		Checksum:     storage.ComputeChecksum(content),
	}
	if err := store.Put(ctx, key, content, meta); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Failed to archive sheet")
		return
	}
	logger.Info().Str("key", key).Msg("Sheet archived")
}

func displayRowErrors(result *catalog.SheetResult) {
	for _, warning := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}
	if len(result.Errors) == 0 {
		return
	}

	w := tabwriter.NewWriter(os.Stderr, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SHEET\tROW\tERROR")
	for _, e := range result.Errors {
		fmt.Fprintf(w, "%s\t%d\t%s\n", e.Sheet, e.Row, e.Message)
	}
	w.Flush()
}
