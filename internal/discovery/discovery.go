// Package discovery resolves the declared entity catalog into schema
// entities: which entities exist, their columns, relations and transforms.
// Relations are taken from configuration only; nothing is inferred from
// transform code.
package discovery

import (
	"context"
	"fmt"

	"github.com/dbsmedya/typeprobe/internal/config"
	"github.com/dbsmedya/typeprobe/internal/introspect"
	"github.com/dbsmedya/typeprobe/internal/schema"
	"github.com/dbsmedya/typeprobe/internal/transform"
)

// DiscoveryError is an entity that could not be resolved. The entity is
// skipped; the run continues.
type DiscoveryError struct {
	Entity string
	Err    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery of %s failed: %v", e.Entity, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// Catalog answers discovery queries from the declared entity list.
type Catalog struct {
	decls        []config.EntityConfig
	byID         map[string]*config.EntityConfig
	introspector introspect.Introspector
	transforms   *transform.Registry
}

// NewCatalog builds a catalog. The introspector may be nil until the sandbox
// is migrated; ColumnsFor then fails.
func NewCatalog(cfg *config.DiscoveryConfig, in introspect.Introspector, transforms *transform.Registry) *Catalog {
	c := &Catalog{
		decls:        cfg.Entities,
		byID:         make(map[string]*config.EntityConfig, len(cfg.Entities)),
		introspector: in,
		transforms:   transforms,
	}
	for i := range c.decls {
		c.byID[c.decls[i].ID] = &c.decls[i]
	}
	return c
}

// WithIntrospector returns a copy of the catalog bound to in.
func (c *Catalog) WithIntrospector(in introspect.Introspector) *Catalog {
	cp := *c
	cp.introspector = in
	return &cp
}

// ListEntities returns entity ids in declaration order.
func (c *Catalog) ListEntities() []string {
	ids := make([]string, len(c.decls))
	for i, d := range c.decls {
		ids[i] = d.ID
	}
	return ids
}

// Declared returns the declaration of an entity.
func (c *Catalog) Declared(id string) (*config.EntityConfig, bool) {
	d, ok := c.byID[id]
	return d, ok
}

func (c *Catalog) lookup(id string) (*config.EntityConfig, error) {
	d, ok := c.byID[id]
	if !ok {
		return nil, &DiscoveryError{Entity: id, Err: fmt.Errorf("entity is not declared")}
	}
	return d, nil
}

// ColumnsFor introspects the entity's table. A missing table yields no
// columns; the seeder reports it.
func (c *Catalog) ColumnsFor(ctx context.Context, id string) ([]schema.Column, error) {
	d, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	if c.introspector == nil {
		return nil, &DiscoveryError{Entity: id, Err: fmt.Errorf("no schema introspector bound")}
	}
	cols, err := c.introspector.ColumnsFor(ctx, d.Table)
	if err != nil {
		return nil, &DiscoveryError{Entity: id, Err: err}
	}

	if d.PrimaryKey != "" {
		found := false
		for i := range cols {
			cols[i].PrimaryKey = cols[i].Name == d.PrimaryKey
			if cols[i].PrimaryKey {
				cols[i].Nullable = false
				found = true
			}
		}
		if len(cols) > 0 && !found {
			return nil, &DiscoveryError{Entity: id, Err: fmt.Errorf("primary key column %q not found in %s", d.PrimaryKey, d.Table)}
		}
	}
	return cols, nil
}

// RelationsFor returns the declared relations. Every target must be a
// declared entity.
func (c *Catalog) RelationsFor(id string) ([]schema.Relation, error) {
	d, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	rels := make([]schema.Relation, 0, len(d.Relations))
	for _, r := range d.Relations {
		if _, ok := c.byID[r.Target]; !ok {
			return nil, &DiscoveryError{Entity: id, Err: fmt.Errorf("relation %s targets undeclared entity %q", r.Name, r.Target)}
		}
		mult := schema.One
		if r.Multiplicity == string(schema.Many) {
			mult = schema.Many
		}
		rels = append(rels, schema.Relation{Name: r.Name, Target: r.Target, Multiplicity: mult})
	}
	return rels, nil
}

// TransformFor returns the entity's transform, or nil when none is bound.
func (c *Catalog) TransformFor(id string) (transform.Transform, error) {
	d, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	if d.Transform == "" {
		return nil, nil
	}
	if c.transforms == nil {
		return nil, &DiscoveryError{Entity: id, Err: &transform.ErrUnknownTransform{Name: d.Transform}}
	}
	t, err := c.transforms.Lookup(d.Transform)
	if err != nil {
		return nil, &DiscoveryError{Entity: id, Err: err}
	}
	return t, nil
}

// Entity resolves one entity completely.
func (c *Catalog) Entity(ctx context.Context, id string) (*schema.Entity, error) {
	d, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	cols, err := c.ColumnsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	rels, err := c.RelationsFor(id)
	if err != nil {
		return nil, err
	}
	if _, err := c.TransformFor(id); err != nil {
		return nil, err
	}

	e := &schema.Entity{
		ID:        d.ID,
		Table:     d.Table,
		Columns:   cols,
		Relations: rels,
		Transform: d.Transform,
	}
	if err := e.Validate(); err != nil {
		return nil, &DiscoveryError{Entity: id, Err: err}
	}
	return e, nil
}

// Discover resolves every declared entity. Entities that fail are returned
// as DiscoveryErrors alongside the ones that resolved.
func (c *Catalog) Discover(ctx context.Context) ([]*schema.Entity, []error) {
	var (
		entities []*schema.Entity
		errs     []error
	)
	for _, id := range c.ListEntities() {
		e, err := c.Entity(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entities = append(entities, e)
	}
	return entities, errs
}
