package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/typeprobe/internal/database"
	"github.com/dbsmedya/typeprobe/internal/logger"
	"github.com/dbsmedya/typeprobe/internal/pipeline"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and sandbox schema",
	Long: `Validate checks the configuration file, provisions a throwaway sandbox,
applies the structural migrations and confirms that every declared entity's
table exists. The sandbox is always destroyed afterwards.

Example:
  typeprobe validate --config typeprobe.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cmd.Printf("✓ Configuration valid (%d entities)\n", len(cfg.Discovery.Entities))

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	ctx, cancel := database.SetupSignalHandler(nil)
	defer cancel()

	p, err := pipeline.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	checks, err := p.Check(ctx)
	if err != nil {
		return fmt.Errorf("sandbox check failed: %w", err)
	}
	cmd.Println("✓ Sandbox provisioned and migrated")

	setOutputWriter(cmd.OutOrStdout())
	defer resetOutputWriter()

	failed := printTableChecks(checks)
	if failed > 0 {
		return fmt.Errorf("%d entit(ies) failed validation", failed)
	}

	cmd.Println("\nAll entities valid")
	return nil
}

// printTableChecks prints one row per entity and returns the number of
// failures.
func printTableChecks(checks []pipeline.TableCheck) int {
	fmt.Fprintln(outputWriter)
	printSection("Tables")

	failed := 0
	rows := make([][]cell, 0, len(checks))
	for _, c := range checks {
		status := cell{text: "ok", style: okStyle}
		columns := fmt.Sprintf("%d", c.Columns)
		switch {
		case !c.Exists:
			failed++
			status = cell{text: "table missing", style: failStyle}
			columns = "-"
		case c.Err != nil:
			failed++
			status = cell{text: c.Err.Error(), style: failStyle}
		}
		rows = append(rows, []cell{plain(c.Entity), plain(c.Table), plain(columns), status})
	}
	printTable([]string{"ENTITY", "TABLE", "COLUMNS", "STATUS"}, rows)
	return failed
}
