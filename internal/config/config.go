// Package config provides configuration structures and loading for typeprobe.
package config

// Config represents the complete application configuration.
type Config struct {
	Sandbox    SandboxConfig    `yaml:"sandbox" mapstructure:"sandbox"`
	Discovery  DiscoveryConfig  `yaml:"discovery" mapstructure:"discovery"`
	Transforms TransformsConfig `yaml:"transforms" mapstructure:"transforms"`
	Generation GenerationConfig `yaml:"generation" mapstructure:"generation"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

// SandboxConfig describes the ephemeral database the probes are written to.
type SandboxConfig struct {
	Driver             string `yaml:"driver" mapstructure:"driver"` // sqlite or mysql
	Path               string `yaml:"path" mapstructure:"path"`     // sqlite database file
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	Database           string `yaml:"database" mapstructure:"database"`
	TLS                string `yaml:"tls" mapstructure:"tls"` // disable, preferred, required
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
	MigrationsDir      string `yaml:"migrations_dir" mapstructure:"migrations_dir"`
	Keep               bool   `yaml:"keep" mapstructure:"keep"` // leave the sandbox in place after the run
}

// DiscoveryConfig is the declared entity catalog.
type DiscoveryConfig struct {
	Entities []EntityConfig `yaml:"entities" mapstructure:"entities"`
}

// EntityConfig declares one entity, its backing table, transform and relations.
type EntityConfig struct {
	ID         string           `yaml:"id" mapstructure:"id"`
	Table      string           `yaml:"table" mapstructure:"table"`
	PrimaryKey string           `yaml:"primary_key" mapstructure:"primary_key"` // overrides introspected PK
	Transform  string           `yaml:"transform" mapstructure:"transform"`
	Relations  []RelationConfig `yaml:"relations" mapstructure:"relations"`
}

// RelationConfig declares a relation from one entity to another.
type RelationConfig struct {
	Name         string `yaml:"name" mapstructure:"name"`
	Target       string `yaml:"target" mapstructure:"target"`
	Multiplicity string `yaml:"multiplicity" mapstructure:"multiplicity"` // "one" or "many"
}

// TransformsConfig points at Starlark transform scripts.
type TransformsConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// GenerationConfig controls inference and declaration output.
type GenerationConfig struct {
	OutputDir               string   `yaml:"output_dir" mapstructure:"output_dir"`
	StripSuffixes           []string `yaml:"strip_suffixes" mapstructure:"strip_suffixes"`
	Concurrency             int      `yaml:"concurrency" mapstructure:"concurrency"`
	MaxRelationDepth        int      `yaml:"max_relation_depth" mapstructure:"max_relation_depth"`
	TransformTimeoutSeconds float64  `yaml:"transform_timeout_seconds" mapstructure:"transform_timeout_seconds"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Sandbox: SandboxConfig{
			Driver:             "sqlite",
			Path:               ".typeprobe/sandbox.sqlite",
			Port:               3306,
			TLS:                "preferred",
			MaxConnections:     10,
			MaxIdleConnections: 5,
			MigrationsDir:      "database/migrations",
		},
		Transforms: TransformsConfig{
			Dir: "transforms",
		},
		Generation: GenerationConfig{
			OutputDir:        "resources/js/types/generated",
			StripSuffixes:    []string{"Resource"},
			Concurrency:      4,
			MaxRelationDepth: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// GetEntity retrieves an entity declaration by id.
func (c *Config) GetEntity(id string) (*EntityConfig, bool) {
	for i := range c.Discovery.Entities {
		if c.Discovery.Entities[i].ID == id {
			return &c.Discovery.Entities[i], true
		}
	}
	return nil, false
}

// ListEntities returns the declared entity ids in declaration order.
func (c *Config) ListEntities() []string {
	ids := make([]string, 0, len(c.Discovery.Entities))
	for _, e := range c.Discovery.Entities {
		ids = append(ids, e.ID)
	}
	return ids
}
