// Package fingerprint issues traceable sentinel tokens for seeded column
// values and resolves observed values back to the column that produced them.
//
// A Registry is scoped to one generation run. It is created at run start,
// passed explicitly to the seeder and the inference engine, and dropped at
// run end.
package fingerprint

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dbsmedya/typeprobe/internal/schema"
)

// TokenPrefix starts every issued token.
const TokenPrefix = "tf"

// seqWidth is the zero-padded width of the sequence part of a token. All
// tokens of a run share one length, so a token cut short by a column length
// can never equal another issued token.
const seqWidth = 6

// Fingerprint records which column a token was issued for.
type Fingerprint struct {
	Token    string
	EntityID string
	Column   string
	Kind     schema.Kind
	Nullable bool
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%s.%s(%s)", f.EntityID, f.Column, f.Kind)
}

// Registry maps tokens, and values derived from tokens, to fingerprints.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	runID   string
	seq     uint64
	byToken map[string]*Fingerprint
	aliases map[string]*Fingerprint
}

// NewRegistry returns an empty registry with a fresh run identifier.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Reset()
	return r
}

// Reset discards every issued token and starts a new run identifier, so
// tokens from a previous run can never resolve.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runID = strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	r.seq = 0
	r.byToken = make(map[string]*Fingerprint)
	r.aliases = make(map[string]*Fingerprint)
}

// Make issues a new token for (entityID, column). Every call returns a token
// that has never been issued before, even for identical arguments.
func (r *Registry) Make(entityID, column string, kind schema.Kind, nullable bool) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	token := TokenPrefix + r.runID + "_" + formatSeq(r.seq)
	r.byToken[token] = &Fingerprint{
		Token:    token,
		EntityID: entityID,
		Column:   column,
		Kind:     kind,
		Nullable: nullable,
	}
	return token
}

func formatSeq(seq uint64) string {
	s := strconv.FormatUint(seq, 36)
	if len(s) < seqWidth {
		s = strings.Repeat("0", seqWidth-len(s)) + s
	}
	return s
}

// Bind registers value as an alias of an issued token. Seeders use it when a
// column cannot store the raw token and stores a value derived from it.
// It returns false when the token is unknown or when value is already bound
// to a different fingerprint; an ambiguous alias is never overwritten.
func (r *Registry) Bind(value, token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	fp, ok := r.byToken[token]
	if !ok {
		return false
	}
	if existing, ok := r.byToken[value]; ok && existing != fp {
		return false
	}
	if existing, ok := r.aliases[value]; ok {
		return existing == fp
	}
	r.aliases[value] = fp
	return true
}

// Resolve looks up the fingerprint that produced value. Matching is exact;
// only string values can match.
func (r *Registry) Resolve(value interface{}) (Fingerprint, bool) {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return Fingerprint{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if fp, ok := r.byToken[s]; ok {
		return *fp, true
	}
	if fp, ok := r.aliases[s]; ok {
		return *fp, true
	}
	return Fingerprint{}, false
}

// IsTruncated reports whether value is a strict prefix of an issued token,
// i.e. a token cut short by a column length. Such values never resolve;
// Resolve does not match prefixes.
func (r *Registry) IsTruncated(value string) bool {
	if len(value) <= len(TokenPrefix) || !strings.HasPrefix(value, TokenPrefix) {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for token := range r.byToken {
		if len(token) > len(value) && strings.HasPrefix(token, value) {
			return true
		}
	}
	return false
}

// Len returns the number of issued tokens.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byToken)
}
