// Package pipeline runs one generation: discovery, sandbox provisioning,
// seeding, probing, inference, synthesis and output, in that order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dbsmedya/typeprobe/internal/config"
	"github.com/dbsmedya/typeprobe/internal/discovery"
	"github.com/dbsmedya/typeprobe/internal/fingerprint"
	"github.com/dbsmedya/typeprobe/internal/infer"
	"github.com/dbsmedya/typeprobe/internal/logger"
	"github.com/dbsmedya/typeprobe/internal/probe"
	"github.com/dbsmedya/typeprobe/internal/sandbox"
	"github.com/dbsmedya/typeprobe/internal/schema"
	"github.com/dbsmedya/typeprobe/internal/script"
	"github.com/dbsmedya/typeprobe/internal/seeder"
	"github.com/dbsmedya/typeprobe/internal/synth"
	"github.com/dbsmedya/typeprobe/internal/transform"
	"github.com/dbsmedya/typeprobe/internal/types"
	"github.com/dbsmedya/typeprobe/internal/writer"
)

// Options control a single run.
type Options struct {
	DryRun bool
}

// Pipeline coordinates a generation run. Transforms come from the configured
// script directory and from anything registered on Transforms() before Run.
type Pipeline struct {
	cfg        *config.Config
	logger     *logger.Logger
	transforms *transform.Registry
	loaded     bool
}

// New creates a pipeline for cfg.
func New(cfg *config.Config, log *logger.Logger) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Pipeline{cfg: cfg, logger: log, transforms: transform.NewRegistry()}, nil
}

// Transforms returns the registry transforms are resolved from.
func (p *Pipeline) Transforms() *transform.Registry {
	return p.transforms
}

// LoadTransforms compiles the script directory into the registry. Only the
// first call loads anything.
func (p *Pipeline) LoadTransforms() (int, error) {
	if p.loaded {
		return 0, nil
	}
	p.loaded = true
	if p.cfg.Transforms.Dir == "" {
		return 0, nil
	}
	n, err := script.NewLoader(p.cfg.Transforms.Dir, p.transforms).LoadInto(p.transforms)
	if err != nil {
		return 0, fmt.Errorf("failed to load transforms: %w", err)
	}
	p.logger.Infow("Transforms loaded", "count", n, "dir", p.cfg.Transforms.Dir)
	return n, nil
}

// state is everything one run accumulates.
type state struct {
	result  *Result
	reports map[string]*EntityReport

	mu sync.Mutex // guards result.Issues and reports during probing
}

func (s *state) fail(entity string, phase Phase, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result.Issues = append(s.result.Issues, Issue{Entity: entity, Phase: phase, Err: err})
	if r, ok := s.reports[entity]; ok {
		r.Status = StatusFailed
		r.Phase = phase
		r.Reason = err.Error()
	}
}

// Run executes the whole pipeline. Entity-scoped failures end up in
// Result.Issues; a sandbox failure aborts the run and is returned as an
// error, after tearing the sandbox down.
func (p *Pipeline) Run(ctx context.Context, opts Options) (result *Result, err error) {
	st := &state{
		result:  &Result{StartedAt: time.Now(), DryRun: opts.DryRun},
		reports: make(map[string]*EntityReport),
	}
	defer func() {
		st.result.CompletedAt = time.Now()
		st.result.Duration = st.result.CompletedAt.Sub(st.result.StartedAt)
	}()

	for _, e := range p.cfg.Discovery.Entities {
		r := &EntityReport{ID: e.ID, Table: e.Table, Transform: e.Transform, Status: StatusPending}
		if e.Transform == "" {
			r.Status, r.Reason = StatusNoTransform, "no transform bound"
		}
		st.reports[e.ID] = r
		st.result.Entities = append(st.result.Entities, r)
	}

	if _, err := p.LoadTransforms(); err != nil {
		return nil, err
	}

	sb := sandbox.New(&p.cfg.Sandbox, p.logger)
	defer func() {
		// teardown runs even when ctx was cancelled
		tctx := context.Background()
		var terr error
		if p.cfg.Sandbox.Keep {
			terr = sb.Close(tctx)
			p.logger.Infow("Sandbox kept", "path", p.cfg.Sandbox.Path, "database", p.cfg.Sandbox.Database)
		} else {
			terr = sb.Destroy(tctx)
		}
		if terr != nil && err == nil {
			result, err = nil, terr
		}
	}()

	if err := sb.Provision(ctx); err != nil {
		return nil, err
	}
	if err := sb.ApplyStructuralMigrations(ctx); err != nil {
		return nil, err
	}
	// rows inserted by data migrations would collide with seeded keys
	if err := sb.TruncateAll(ctx); err != nil {
		return nil, err
	}

	catalog := discovery.NewCatalog(&p.cfg.Discovery, sb.Introspector(), p.transforms)
	entities, errs := catalog.Discover(ctx)
	for _, e := range errs {
		st.fail(entityOf(e), PhaseDiscovery, e)
		p.logger.WithEntity(entityOf(e)).Warnw("Entity skipped", "phase", string(PhaseDiscovery), "error", e)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	registry := fingerprint.NewRegistry()
	pairs, errs := seeder.New(registry, sb, p.logger).SeedAll(ctx, entities)
	for _, e := range errs {
		var sbErr *sandbox.SandboxError
		if errors.As(e, &sbErr) || errors.Is(e, sandbox.ErrNotProvisioned) {
			return nil, e
		}
		if errors.Is(e, context.Canceled) || errors.Is(e, context.DeadlineExceeded) {
			return nil, e
		}
		st.fail(entityOf(e), PhaseSeed, e)
	}

	engine := infer.NewEngine(registry, infer.NewNamer(p.cfg.Generation.StripSuffixes), p.logger)
	seeded := make(map[string]*schema.Entity, len(pairs))
	for _, e := range entities {
		if pair, ok := pairs[e.ID]; ok {
			engine.Register(e, pair)
			seeded[e.ID] = e
			st.reports[e.ID].Seeded = true
		}
	}

	loader := &recordLoader{
		sandbox:  sb,
		entities: seeded,
		pairs:    pairs,
		maxDepth: p.cfg.Generation.MaxRelationDepth,
		logger:   p.logger,
	}

	results, err := p.probeAll(ctx, st, catalog, engine, loader, entities)
	if err != nil {
		return nil, err
	}

	s := synth.New(p.logger)
	for _, res := range results {
		if res == nil {
			continue
		}
		s.Add(res)
		r := st.reports[res.Entity]
		r.Status = StatusInferred
		r.TypeName = res.TypeName
		r.Fields = len(res.Fields)
		r.Ambiguities = len(res.Ambiguities)
		st.result.Ambiguities = append(st.result.Ambiguities, res.Ambiguities...)
	}

	out, err := s.Synthesize()
	if err != nil {
		return nil, err
	}
	st.result.Output = out

	files, err := writer.New(p.cfg.Generation.OutputDir, opts.DryRun, p.logger).Write(out)
	if err != nil {
		return nil, err
	}
	st.result.Files = files

	p.logger.Infow("Generation complete",
		"declarations", len(out.Declarations),
		"fingerprints", registry.Len(),
		"skipped", len(st.result.Skipped()),
		"issues", len(st.result.Issues),
		"dry_run", opts.DryRun,
	)
	return st.result, nil
}

// probeAll runs every seeded entity's transform over its two probes and
// infers its declaration. Entities run concurrently up to the configured
// limit; results come back in entity order.
func (p *Pipeline) probeAll(ctx context.Context, st *state, catalog *discovery.Catalog, engine *infer.Engine,
	loader *recordLoader, entities []*schema.Entity) ([]*infer.Result, error) {
	timeout := time.Duration(p.cfg.Generation.TransformTimeoutSeconds * float64(time.Second))
	prober := probe.New(timeout, p.logger)

	results := make([]*infer.Result, len(entities))
	g, gctx := errgroup.WithContext(ctx)
	if n := p.cfg.Generation.Concurrency; n > 0 {
		g.SetLimit(n)
	}

	for i, e := range entities {
		if _, ok := loader.entities[e.ID]; !ok || e.Transform == "" {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			log := p.logger.WithEntity(e.ID)

			t, err := catalog.TransformFor(e.ID)
			if err != nil {
				st.fail(e.ID, PhaseProbe, err)
				return nil
			}

			full, null := loader.Load(gctx, e.ID, types.ProbeFull), loader.Load(gctx, e.ID, types.ProbeNull)
			out, err := prober.ProbePair(gctx, e.ID, t, full, null)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
					return ctxErr
				}
				log.Warnw("Entity skipped", "phase", string(PhaseProbe), "error", err)
				st.fail(e.ID, PhaseProbe, err)
				return nil
			}

			res := engine.Infer(e.ID, out)
			if len(res.Fields) == 0 {
				log.Warnw("Transform output has no fields", "transform", t.Name())
			}
			results[i] = res
			log.Debugw("Entity inferred", "type", res.TypeName, "fields", len(res.Fields))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// entityOf extracts the entity an entity-scoped error belongs to.
func entityOf(err error) string {
	var de *discovery.DiscoveryError
	if errors.As(err, &de) {
		return de.Entity
	}
	var se *seeder.SeedError
	if errors.As(err, &se) {
		return se.Entity
	}
	var te *probe.TransformError
	if errors.As(err, &te) {
		return te.Entity
	}
	return ""
}

// Check provisions and migrates the sandbox, resolves every declared entity
// and reports whether its table exists, then tears the sandbox down. It
// writes nothing.
func (p *Pipeline) Check(ctx context.Context) (checks []TableCheck, err error) {
	if _, err := p.LoadTransforms(); err != nil {
		return nil, err
	}

	sb := sandbox.New(&p.cfg.Sandbox, p.logger)
	defer func() {
		if derr := sb.Destroy(context.Background()); derr != nil && err == nil {
			checks, err = nil, derr
		}
	}()

	if err := sb.Provision(ctx); err != nil {
		return nil, err
	}
	if err := sb.ApplyStructuralMigrations(ctx); err != nil {
		return nil, err
	}

	catalog := discovery.NewCatalog(&p.cfg.Discovery, sb.Introspector(), p.transforms)
	for _, id := range catalog.ListEntities() {
		decl, _ := catalog.Declared(id)
		c := TableCheck{Entity: id, Table: decl.Table}

		exists, err := sb.HasTable(ctx, decl.Table)
		if err != nil {
			return nil, err
		}
		c.Exists = exists

		e, err := catalog.Entity(ctx, id)
		if err != nil {
			c.Err = err
		} else {
			c.Columns = len(e.Columns)
		}
		checks = append(checks, c)
	}
	return checks, nil
}
