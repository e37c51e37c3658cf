package pipeline

import (
	"context"

	"github.com/dbsmedya/typeprobe/internal/logger"
	"github.com/dbsmedya/typeprobe/internal/schema"
	"github.com/dbsmedya/typeprobe/internal/transform"
	"github.com/dbsmedya/typeprobe/internal/types"
)

// fetcher reads a persisted probe row back from storage.
type fetcher interface {
	Fetch(ctx context.Context, h types.RecordHandle) (*types.Attributes, error)
}

// recordLoader builds the records handed to transforms: the persisted probe
// row plus related probe rows of the same kind, up to maxDepth levels.
type recordLoader struct {
	sandbox  fetcher
	entities map[string]*schema.Entity
	pairs    map[string]types.ProbePair
	maxDepth int
	logger   *logger.Logger
}

// Load returns the kind probe of entity with its relations attached.
func (l *recordLoader) Load(ctx context.Context, entity string, kind types.ProbeKind) *transform.Record {
	return l.load(ctx, entity, kind, 0)
}

func (l *recordLoader) load(ctx context.Context, entity string, kind types.ProbeKind, depth int) *transform.Record {
	rec := transform.NewRecord(entity, kind, l.attributes(ctx, entity, kind))
	if depth >= l.maxDepth {
		return rec
	}

	e := l.entities[entity]
	if e == nil {
		return rec
	}
	for _, rel := range e.Relations {
		if _, seeded := l.entities[rel.Target]; !seeded {
			// never loaded; transforms see the relation as missing
			continue
		}
		child := l.load(ctx, rel.Target, kind, depth+1)
		rec.SetRelation(rel.Name, rel.Target, rel.IsMany(), child)
	}
	return rec
}

// attributes prefers the stored row so transforms see driver-normalized
// values, and falls back to the seeded values.
func (l *recordLoader) attributes(ctx context.Context, entity string, kind types.ProbeKind) *types.Attributes {
	pr := l.pairs[entity].Get(kind)
	if pr == nil {
		return types.NewAttributes()
	}
	if l.sandbox != nil {
		attrs, err := l.sandbox.Fetch(ctx, pr.Handle)
		if err == nil {
			return attrs
		}
		l.logger.WithEntity(entity).Debugw("Probe read-back failed, using seeded values",
			"probe", string(kind), "row", pr.Handle.String(), "error", err)
	}
	return pr.Values.Copy()
}
