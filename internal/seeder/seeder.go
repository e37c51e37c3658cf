// Package seeder writes the two differential probe rows of every entity.
//
// The full probe populates every column. The null probe is identical in
// shape but sets every nullable column to NULL. Text-like values are
// fingerprint tokens so the transform output can be traced back to the
// column; enum and range columns use declared members and bounds instead.
package seeder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/dbsmedya/typeprobe/internal/fingerprint"
	"github.com/dbsmedya/typeprobe/internal/logger"
	"github.com/dbsmedya/typeprobe/internal/schema"
	"github.com/dbsmedya/typeprobe/internal/types"
)

// ErrTableMissing is wrapped by SeedError when an entity has no backing table.
var ErrTableMissing = errors.New("table does not exist in the sandbox")

// SeedError is an entity that could not be seeded. The entity is excluded
// from probing; the run continues.
type SeedError struct {
	Entity string
	Column string
	Err    error
}

func (e *SeedError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("seeding %s.%s failed: %v", e.Entity, e.Column, e.Err)
	}
	return fmt.Sprintf("seeding %s failed: %v", e.Entity, e.Err)
}

func (e *SeedError) Unwrap() error {
	return e.Err
}

// Store persists probe rows.
type Store interface {
	HasTable(ctx context.Context, table string) (bool, error)
	Insert(ctx context.Context, table, keyColumn string, attrs *types.Attributes) (types.RecordHandle, error)
}

// Seeder builds and persists probe rows. It is safe for concurrent use when
// the store is.
type Seeder struct {
	registry *fingerprint.Registry
	store    Store
	logger   *logger.Logger
}

// New creates a seeder issuing tokens from registry.
func New(registry *fingerprint.Registry, store Store, log *logger.Logger) *Seeder {
	if log == nil {
		log = logger.NewNop()
	}
	return &Seeder{registry: registry, store: store, logger: log.WithPhase("seed")}
}

// Seed writes both probes of e and returns them with their row handles.
func (s *Seeder) Seed(ctx context.Context, e *schema.Entity) (types.ProbePair, error) {
	var pair types.ProbePair

	if len(e.Columns) == 0 {
		return pair, &SeedError{Entity: e.ID, Err: fmt.Errorf("%s: %w", e.Table, ErrTableMissing)}
	}
	ok, err := s.store.HasTable(ctx, e.Table)
	if err != nil {
		return pair, &SeedError{Entity: e.ID, Err: err}
	}
	if !ok {
		return pair, &SeedError{Entity: e.ID, Err: fmt.Errorf("%s: %w", e.Table, ErrTableMissing)}
	}

	full, null, err := s.Values(e)
	if err != nil {
		return pair, err
	}

	keyColumn := ""
	if pk, ok := e.PrimaryKey(); ok {
		keyColumn = pk.Name
	}

	log := s.logger.WithEntity(e.ID).WithTable(e.Table)
	for _, kind := range types.ProbeKinds {
		values := full
		if kind == types.ProbeNull {
			values = null
		}
		h, err := s.store.Insert(ctx, e.Table, keyColumn, values)
		if err != nil {
			return types.ProbePair{}, &SeedError{Entity: e.ID, Err: fmt.Errorf("%s probe: %w", kind, err)}
		}
		rec := &types.ProbeRecord{Entity: e.ID, Kind: kind, Values: values, Handle: h}
		if kind == types.ProbeNull {
			pair.Null = rec
		} else {
			pair.Full = rec
		}
		log.WithProbe(string(kind)).Debugw("Probe seeded", "row", h.String())
	}
	return pair, nil
}

// Values computes the full and null probe values of e without persisting
// them. Columns appear in declaration order in both maps.
func (s *Seeder) Values(e *schema.Entity) (full, null *types.Attributes, err error) {
	full = types.NewAttributes()
	null = types.NewAttributes()

	for _, col := range e.Columns {
		for _, kind := range types.ProbeKinds {
			v, err := s.value(e.ID, col, kind)
			if err != nil {
				return nil, nil, &SeedError{Entity: e.ID, Column: col.Name, Err: err}
			}
			if kind == types.ProbeNull {
				null.Set(col.Name, v)
			} else {
				full.Set(col.Name, v)
			}
		}
	}
	return full, null, nil
}

func (s *Seeder) value(entityID string, col schema.Column, kind types.ProbeKind) (interface{}, error) {
	// nullable columns are null in the null probe, even enums and ranges
	if kind == types.ProbeNull && col.Nullable && !col.PrimaryKey {
		return nil, nil
	}

	if col.PrimaryKey && col.Kind.IsNumeric() {
		if kind == types.ProbeNull {
			return int64(2), nil
		}
		return int64(1), nil
	}

	if col.HasEnum() {
		if kind == types.ProbeNull && len(col.EnumValues) > 1 {
			return col.EnumValues[1], nil
		}
		return col.EnumValues[0], nil
	}

	if col.Range != nil && col.Kind.IsNumeric() {
		return rangeValue(col, kind), nil
	}

	token := s.registry.Make(entityID, col.Name, col.Kind, col.Nullable)

	switch col.Kind {
	case schema.KindInteger:
		return int64(tokenHash(token) % 1_000_000), nil
	case schema.KindFloat:
		return float64(tokenHash(token)%100_000)/100 + 0.25, nil
	case schema.KindBoolean:
		return kind == types.ProbeFull, nil
	case schema.KindTemporal:
		return s.temporal(token, col), nil
	case schema.KindJSON:
		encoded, err := json.Marshal(token)
		if err != nil {
			return nil, err
		}
		s.bind(string(encoded), token, col)
		return string(encoded), nil
	default:
		return s.text(token, col), nil
	}
}

func rangeValue(col schema.Column, kind types.ProbeKind) interface{} {
	bound := col.Range.Min
	if kind == types.ProbeNull {
		bound = col.Range.Max
	}
	if col.Kind == schema.KindInteger {
		if kind == types.ProbeNull {
			return int64(math.Floor(bound))
		}
		return int64(math.Ceil(bound))
	}
	return bound
}

// text returns the token itself, truncated to the declared length. A
// truncated token cannot be resolved and is not aliased, since different
// columns may truncate to the same prefix.
func (s *Seeder) text(token string, col schema.Column) string {
	if col.MaxLength > 0 && len(token) > col.MaxLength {
		s.logger.WithFields(map[string]interface{}{
			"column":     col.Name,
			"max_length": col.MaxLength,
			"token":      token,
		}).Debugw("Fingerprint truncated to column length")
		return token[:col.MaxLength]
	}
	return token
}

// temporalBase anchors token-derived timestamps.
var temporalBase = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

func (s *Seeder) temporal(token string, col schema.Column) string {
	// within ~20 years of the base, whole seconds
	at := temporalBase.Add(time.Duration(tokenHash(token)%(20*365*24*3600)) * time.Second)

	layout := "2006-01-02 15:04:05"
	decl := strings.ToLower(col.DeclaredType)
	switch {
	case strings.HasPrefix(decl, "datetime"), strings.HasPrefix(decl, "timestamp"):
	case strings.HasPrefix(decl, "date"):
		layout = "2006-01-02"
		at = at.Truncate(24 * time.Hour)
	case strings.HasPrefix(decl, "time"):
		layout = "15:04:05"
	}

	value := at.Format(layout)
	s.bind(value, token, col)
	// drivers may hand the value back as a time.Time, normalized to RFC 3339
	if layout != "15:04:05" {
		s.bind(at.Format(time.RFC3339), token, col)
	}
	return value
}

func (s *Seeder) bind(value, token string, col schema.Column) {
	if !s.registry.Bind(value, token) {
		s.logger.Debugw("Fingerprint alias already taken, column will not resolve",
			"column", col.Name, "value", value)
	}
}

func tokenHash(token string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(token))
	return h.Sum64()
}

// SeedAll seeds every entity in order. Failing entities are reported and
// skipped; the others are still seeded.
func (s *Seeder) SeedAll(ctx context.Context, entities []*schema.Entity) (map[string]types.ProbePair, []error) {
	pairs := make(map[string]types.ProbePair, len(entities))
	var errs []error
	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		pair, err := s.Seed(ctx, e)
		if err != nil {
			s.logger.WithEntity(e.ID).Warnw("Entity skipped", "error", err)
			errs = append(errs, err)
			continue
		}
		pairs[e.ID] = pair
	}
	return pairs, errs
}
