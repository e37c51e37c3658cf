// Package probe runs transforms against probe records and captures their
// output once into a closed set of Value variants.
package probe

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/dbsmedya/typeprobe/internal/logger"
	"github.com/dbsmedya/typeprobe/internal/transform"
	"github.com/dbsmedya/typeprobe/internal/types"
)

// ErrTimeout is wrapped by TransformError when a transform exceeds the
// configured timeout.
var ErrTimeout = errors.New("transform timed out")

// TransformError is a transform that failed, panicked or timed out during
// probing. The entity is skipped; the run continues.
type TransformError struct {
	Entity    string
	Transform string
	Probe     types.ProbeKind
	Err       error
	Panicked  bool
}

func (e *TransformError) Error() string {
	verb := "failed"
	if e.Panicked {
		verb = "panicked"
	}
	return fmt.Sprintf("transform %s %s on %s probe of %s: %v", e.Transform, verb, e.Probe, e.Entity, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// Outputs are the captured outputs of both probes of one entity.
type Outputs struct {
	Entity    string
	Transform string
	Full      *Object
	Null      *Object
}

// Prober invokes transforms. A zero timeout means no limit.
type Prober struct {
	timeout    time.Duration
	maxNesting int
	logger     *logger.Logger
}

// New creates a prober.
func New(timeout time.Duration, log *logger.Logger) *Prober {
	if log == nil {
		log = logger.NewNop()
	}
	return &Prober{timeout: timeout, maxNesting: DefaultMaxNesting, logger: log.WithPhase("probe")}
}

// Probe runs t exactly once on rec, unauthenticated and outside any route,
// and captures the output. Failures and panics come back as *TransformError.
func (p *Prober) Probe(ctx context.Context, entityID string, t transform.Transform, rec *transform.Record) (Value, error) {
	ctx = transform.WithInvocation(ctx, transform.Invocation{Probe: rec.Kind})
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	type result struct {
		value    Value
		err      error
		panicked bool
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.WithEntity(entityID).WithProbe(string(rec.Kind)).
					Debugw("Transform panic", "panic", r, "stack", string(debug.Stack()))
				done <- result{err: fmt.Errorf("%v", r), panicked: true}
			}
		}()
		out, err := t.Apply(ctx, rec)
		if err != nil {
			done <- result{err: err}
			return
		}
		v, err := Capture(ctx, out, p.maxNesting)
		done <- result{value: v, err: err}
	}()

	wrap := func(err error, panicked bool) error {
		return &TransformError{Entity: entityID, Transform: t.Name(), Probe: rec.Kind, Err: err, Panicked: panicked}
	}

	// a transform that ignores ctx keeps running in its goroutine; its
	// result is dropped
	select {
	case r := <-done:
		if r.err != nil {
			return nil, wrap(r.err, r.panicked)
		}
		return r.value, nil
	case <-ctx.Done():
		p.logger.WithEntity(entityID).WithProbe(string(rec.Kind)).
			Debugw("Transform abandoned", "transform", t.Name(), "error", ctx.Err())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, wrap(fmt.Errorf("%w after %s", ErrTimeout, p.timeout), false)
		}
		return nil, wrap(ctx.Err(), false)
	}
}

// ProbePair probes both records of an entity. Both outputs must be objects.
func (p *Prober) ProbePair(ctx context.Context, entityID string, t transform.Transform, full, null *transform.Record) (*Outputs, error) {
	out := &Outputs{Entity: entityID, Transform: t.Name()}
	for _, rec := range []*transform.Record{full, null} {
		v, err := p.Probe(ctx, entityID, t, rec)
		if err != nil {
			return nil, err
		}
		obj, ok := v.(*Object)
		if !ok {
			return nil, &TransformError{Entity: entityID, Transform: t.Name(), Probe: rec.Kind,
				Err: fmt.Errorf("output is %s, want an object", describe(v))}
		}
		if rec.Kind == types.ProbeNull {
			out.Null = obj
		} else {
			out.Full = obj
		}
	}
	p.logger.WithEntity(entityID).Debugw("Transform probed", "transform", t.Name(),
		"full_fields", out.Full.Len(), "null_fields", out.Null.Len())
	return out, nil
}

func describe(v Value) string {
	switch v.(type) {
	case Scalar:
		return "a scalar"
	case List:
		return "a list"
	case CrossReference:
		return "a nested resource"
	case Null:
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
