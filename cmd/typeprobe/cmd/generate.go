package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/typeprobe/internal/database"
	"github.com/dbsmedya/typeprobe/internal/logger"
	"github.com/dbsmedya/typeprobe/internal/pipeline"
)

var (
	generateDryRun  bool
	generateVerbose bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Probe every entity and write TypeScript declarations",
	Long: `Generate provisions an ephemeral sandbox database, seeds two probe
records per entity, runs each bound transform over them and writes one
declaration file per resource type plus an index manifest.

The generation process follows these steps:
  1. Provision the sandbox and apply structural migrations
  2. Discover columns and relations for every declared entity
  3. Seed a full and a null probe record per entity
  4. Run transforms and trace output values back to their columns
  5. Deduplicate declarations and write them in dependency order

Entity-level failures are reported and skipped; the run goes on.

Example:
  typeprobe generate --config typeprobe.yaml
  typeprobe generate --dry-run`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().BoolVar(&generateDryRun, "dry-run", false,
		"Print the declarations instead of writing them")
	generateCmd.Flags().BoolVarP(&generateVerbose, "verbose", "v", false,
		"With --dry-run, print every rendered file")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Infow("Starting generation",
		"config", GetConfigFile(),
		"entities", len(cfg.Discovery.Entities),
		"dry_run", generateDryRun,
	)

	ctx, cancel := database.SetupSignalHandler(func(sig os.Signal) {
		log.Warnw("Received shutdown signal - tearing down sandbox", "signal", sig.String())
	})
	defer cancel()

	p, err := pipeline.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	res, err := p.Run(ctx, pipeline.Options{DryRun: generateDryRun})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Generation cancelled by user")
			return nil
		}
		return fmt.Errorf("generation failed: %w", err)
	}

	setOutputWriter(cmd.OutOrStdout())
	defer resetOutputWriter()

	printRunReport(res)
	if res.DryRun && generateVerbose {
		printDeclarations(res)
	}

	log.Infow("Generation complete",
		"declarations", strings.Join(declarationNames(res.Output), ","),
		"issues", len(res.Issues),
		"duration", res.Duration.String(),
	)
	return nil
}
