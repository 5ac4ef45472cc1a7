// Package gallery owns the set of known identities and their reference
// embeddings, including the on-disk cache that skips re-encoding across runs.
package gallery

import (
	"fmt"
	"sort"

	"github.com/kozaktomas/face-attendance/internal/identity"
)

// EmbeddingDim is the expected length of a face embedding vector.
const EmbeddingDim = 128

// Identity is one known person: a stable key plus one or more reference
// embeddings. All references participate in matching.
type Identity struct {
	Key        string      // normalized key, unique within a gallery
	Name       string      // display name, first-seen spelling
	Embeddings [][]float32 // reference embeddings, build order
	Sources    []string    // source image filename per embedding
}

// Gallery is an immutable snapshot of known identities. Iteration order is
// the sorted key order frozen at build time, so matching is deterministic.
type Gallery struct {
	identities []Identity
}

// Identities returns the identities in frozen sorted-key order.
// Callers must not mutate the returned slice.
func (g *Gallery) Identities() []Identity {
	return g.identities
}

// Len returns the number of identities.
func (g *Gallery) Len() int {
	return len(g.identities)
}

// NumEmbeddings returns the total number of reference embeddings.
func (g *Gallery) NumEmbeddings() int {
	n := 0
	for i := range g.identities {
		n += len(g.identities[i].Embeddings)
	}
	return n
}

// Lookup returns the identity for a normalized key, or nil.
func (g *Gallery) Lookup(key string) *Identity {
	i := sort.Search(len(g.identities), func(i int) bool {
		return g.identities[i].Key >= key
	})
	if i < len(g.identities) && g.identities[i].Key == key {
		return &g.identities[i]
	}
	return nil
}

// Builder accumulates reference embeddings grouped by normalized identity key.
type Builder struct {
	byKey map[string]*Identity
	warnf func(format string, args ...any)
}

// NewBuilder creates an empty gallery builder. warnf receives non-fatal
// notices (normalized key collisions); nil discards them.
func NewBuilder(warnf func(format string, args ...any)) *Builder {
	if warnf == nil {
		warnf = func(string, ...any) {}
	}
	return &Builder{
		byKey: make(map[string]*Identity),
		warnf: warnf,
	}
}

// Add records one reference embedding for the given display name. Names that
// normalize to the same key merge under the first-seen spelling.
func (b *Builder) Add(name, source string, embedding []float32) error {
	if len(embedding) != EmbeddingDim {
		return fmt.Errorf("embedding for %q has %d dimensions, want %d", name, len(embedding), EmbeddingDim)
	}

	key := identity.Normalize(name)
	if key == "" {
		return fmt.Errorf("filename %q yields an empty identity key", source)
	}

	id, ok := b.byKey[key]
	if !ok {
		b.byKey[key] = &Identity{Key: key, Name: name, Embeddings: [][]float32{embedding}, Sources: []string{source}}
		return nil
	}
	if id.Name != name {
		b.warnf("Warning: %q and %q normalize to the same identity %q, merging under %q\n", id.Name, name, key, id.Name)
	}
	id.Embeddings = append(id.Embeddings, embedding)
	id.Sources = append(id.Sources, source)
	return nil
}

// Len returns the number of distinct identities accumulated so far.
func (b *Builder) Len() int {
	return len(b.byKey)
}

// Build freezes the accumulated identities into a gallery snapshot.
func (b *Builder) Build() *Gallery {
	identities := make([]Identity, 0, len(b.byKey))
	for _, id := range b.byKey {
		identities = append(identities, *id)
	}
	sort.Slice(identities, func(i, j int) bool {
		return identities[i].Key < identities[j].Key
	})
	return &Gallery{identities: identities}
}
