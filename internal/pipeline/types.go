package pipeline

import (
	"fmt"
	"time"

	"github.com/dbsmedya/typeprobe/internal/infer"
	"github.com/dbsmedya/typeprobe/internal/synth"
	"github.com/dbsmedya/typeprobe/internal/writer"
)

// Phase names the pipeline step an issue came from.
type Phase string

const (
	PhaseDiscovery Phase = "discovery"
	PhaseSeed      Phase = "seed"
	PhaseProbe     Phase = "probe"
	PhaseInfer     Phase = "infer"
)

// Issue is an entity-scoped failure. The entity was skipped; the run went on.
type Issue struct {
	Entity string
	Phase  Phase
	Err    error
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s: %s: %v", i.Entity, i.Phase, i.Err)
}

// Status is the outcome for one entity.
type Status string

const (
	StatusPending     Status = "pending"
	StatusInferred    Status = "inferred"
	StatusNoTransform Status = "no transform"
	StatusFailed      Status = "failed"
)

// EntityReport summarizes what happened to one declared entity.
type EntityReport struct {
	ID          string
	Table       string
	Transform   string
	TypeName    string
	Status      Status
	Phase       Phase // set when Status is StatusFailed
	Reason      string
	Seeded      bool
	Fields      int
	Ambiguities int
}

// Result is the outcome of one generation run.
type Result struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	DryRun      bool

	Entities    []*EntityReport // declaration order
	Issues      []Issue
	Ambiguities []*infer.ProvenanceAmbiguity
	Output      *synth.Output
	Files       []writer.File
}

// Skipped returns the entities that produced no declaration of their own.
func (r *Result) Skipped() []*EntityReport {
	var out []*EntityReport
	for _, e := range r.Entities {
		if e.Status != StatusInferred {
			out = append(out, e)
		}
	}
	return out
}

// TableCheck is the validate outcome for one entity.
type TableCheck struct {
	Entity  string
	Table   string
	Exists  bool
	Columns int
	Err     error
}
