package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateSandbox()...)
	errors = append(errors, c.validateDiscovery()...)
	errors = append(errors, c.validateGeneration()...)
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateSandbox() ValidationErrors {
	var errors ValidationErrors
	sb := &c.Sandbox

	switch sb.Driver {
	case "sqlite", "":
		if sb.Path == "" {
			errors = append(errors, ValidationError{
				Field:   "sandbox.path",
				Message: "path is required for the sqlite driver",
			})
		}
	case "mysql":
		if sb.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "sandbox.host",
				Message: "host is required for the mysql driver",
			})
		}
		if sb.Port <= 0 || sb.Port > 65535 {
			errors = append(errors, ValidationError{
				Field:   "sandbox.port",
				Message: "port must be between 1 and 65535",
			})
		}
		if sb.User == "" {
			errors = append(errors, ValidationError{
				Field:   "sandbox.user",
				Message: "user is required for the mysql driver",
			})
		}
		if sb.Database == "" {
			errors = append(errors, ValidationError{
				Field:   "sandbox.database",
				Message: "database name is required for the mysql driver",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "sandbox.driver",
			Message: "driver must be 'sqlite' or 'mysql'",
		})
	}

	validTLS := map[string]bool{"disable": true, "preferred": true, "required": true, "": true}
	if !validTLS[sb.TLS] {
		errors = append(errors, ValidationError{
			Field:   "sandbox.tls",
			Message: "tls must be 'disable', 'preferred', or 'required'",
		})
	}

	if sb.MaxConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   "sandbox.max_connections",
			Message: "max_connections cannot be negative",
		})
	}

	if sb.MaxIdleConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   "sandbox.max_idle_connections",
			Message: "max_idle_connections cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateDiscovery() ValidationErrors {
	var errors ValidationErrors

	if len(c.Discovery.Entities) == 0 {
		errors = append(errors, ValidationError{
			Field:   "discovery.entities",
			Message: "at least one entity must be declared",
		})
	}

	seen := make(map[string]bool, len(c.Discovery.Entities))
	for i, e := range c.Discovery.Entities {
		prefix := fmt.Sprintf("discovery.entities[%d]", i)
		if e.ID == "" {
			errors = append(errors, ValidationError{
				Field:   prefix + ".id",
				Message: "id is required",
			})
		} else if seen[e.ID] {
			errors = append(errors, ValidationError{
				Field:   prefix + ".id",
				Message: fmt.Sprintf("duplicate entity id %q", e.ID),
			})
		}
		seen[e.ID] = true

		if e.Table == "" {
			errors = append(errors, ValidationError{
				Field:   prefix + ".table",
				Message: "table is required",
			})
		}

		for j, rel := range e.Relations {
			relPrefix := fmt.Sprintf("%s.relations[%d]", prefix, j)
			errors = append(errors, validateRelation(relPrefix, &rel)...)
		}
	}

	return errors
}

func validateRelation(prefix string, rel *RelationConfig) ValidationErrors {
	var errors ValidationErrors

	if rel.Name == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".name",
			Message: "name is required",
		})
	}
	if rel.Target == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".target",
			Message: "target is required",
		})
	}

	validMultiplicity := map[string]bool{"one": true, "many": true, "": true}
	if !validMultiplicity[rel.Multiplicity] {
		errors = append(errors, ValidationError{
			Field:   prefix + ".multiplicity",
			Message: "multiplicity must be 'one' or 'many'",
		})
	}

	return errors
}

func (c *Config) validateGeneration() ValidationErrors {
	var errors ValidationErrors

	if c.Generation.OutputDir == "" {
		errors = append(errors, ValidationError{
			Field:   "generation.output_dir",
			Message: "output_dir is required",
		})
	}

	if c.Generation.Concurrency <= 0 {
		errors = append(errors, ValidationError{
			Field:   "generation.concurrency",
			Message: "concurrency must be positive",
		})
	}

	if c.Generation.MaxRelationDepth < 0 {
		errors = append(errors, ValidationError{
			Field:   "generation.max_relation_depth",
			Message: "max_relation_depth cannot be negative",
		})
	}

	if c.Generation.TransformTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "generation.transform_timeout_seconds",
			Message: "transform_timeout_seconds cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}
