package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/typeprobe/internal/config"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile     string
	logLevel    string
	logFormat   string
	outputDir   string
	concurrency int
)

var rootCmd = &cobra.Command{
	Use:   "typeprobe",
	Short: "Infer TypeScript declarations from opaque transforms",
	Long: `typeprobe seeds an ephemeral sandbox database with two probe records per
entity, runs each entity's transform over them and infers TypeScript
declarations from what comes out.

Features:
  - Fingerprint tokens trace output values back to their source columns
  - A full and a null probe per entity separate optional from nullable fields
  - Enum columns become named string-literal unions
  - Nested transforms become cross-referenced, deduplicated declarations`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "typeprobe.yaml",
		"Path to configuration file")

	// Logging overrides
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	// Generation overrides
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "",
		"Override output directory for generated declarations")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0,
		"Override number of entities probed concurrently")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel    string
	LogFormat   string
	OutputDir   string
	Concurrency int
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:    logLevel,
		LogFormat:   logFormat,
		OutputDir:   outputDir,
		Concurrency: concurrency,
	}
}

// loadConfig reads the config file, applies flag overrides and validates
// the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	o := GetCLIOverrides()
	cfg.ApplyOverrides(o.LogLevel, o.LogFormat, o.OutputDir, o.Concurrency)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
