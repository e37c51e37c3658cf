package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/typeprobe/internal/config"
)

var listEntitiesCmd = &cobra.Command{
	Use:   "list-entities",
	Short: "List all entities declared in configuration",
	Long: `List-entities displays the declared entity catalog: tables, bound
transforms and relations, in declaration order.

Example:
  typeprobe list-entities --config typeprobe.yaml`,
	RunE: runListEntities,
}

func init() {
	rootCmd.AddCommand(listEntitiesCmd)
}

func runListEntities(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ids := cfg.ListEntities()
	if len(ids) == 0 {
		cmd.Printf("No entities declared in %s\n", configFile)
		return nil
	}

	cmd.Printf("Entities declared in %s:\n\n", configFile)

	for i, id := range ids {
		e, _ := cfg.GetEntity(id)

		cmd.Printf("%d. %s\n", i+1, e.ID)
		cmd.Printf("   Table:       %s\n", e.Table)
		if e.PrimaryKey != "" {
			cmd.Printf("   Primary Key: %s\n", e.PrimaryKey)
		}
		if e.Transform != "" {
			cmd.Printf("   Transform:   %s\n", e.Transform)
		} else {
			cmd.Printf("   Transform:   (none)\n")
		}

		cmd.Printf("   Relations:   %d\n", len(e.Relations))
		for _, rel := range e.Relations {
			mult := rel.Multiplicity
			if mult == "" {
				mult = "one"
			}
			cmd.Printf("      - %s -> %s (%s)\n", rel.Name, rel.Target, mult)
		}

		if i < len(ids)-1 {
			cmd.Println()
		}
	}

	cmd.Printf("\nTotal: %d entit(ies)\n", len(ids))
	return nil
}
