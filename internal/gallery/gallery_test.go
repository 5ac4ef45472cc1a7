package gallery

import (
	"fmt"
	"strings"
	"testing"
)

// emb builds a full-size embedding with the leading values set.
func emb(vals ...float32) []float32 {
	e := make([]float32, EmbeddingDim)
	copy(e, vals)
	return e
}

func TestBuilderGroupsByIdentity(t *testing.T) {
	b := NewBuilder(nil)
	adds := []struct {
		name   string
		source string
	}{
		{"JaneSmith", "JaneSmith_1.jpg"},
		{"JaneSmith", "JaneSmith_2.jpg"},
		{"JohnDoe", "JohnDoe.jpg"},
	}
	for i, a := range adds {
		if err := b.Add(a.name, a.source, emb(float32(i))); err != nil {
			t.Fatalf("Add(%s) error = %v", a.name, err)
		}
	}

	g := b.Build()
	if g.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", g.Len())
	}
	if g.NumEmbeddings() != 3 {
		t.Errorf("NumEmbeddings() = %d, want 3", g.NumEmbeddings())
	}

	jane := g.Lookup("janesmith")
	if jane == nil {
		t.Fatal("Lookup(janesmith) = nil")
	}
	if len(jane.Embeddings) != 2 {
		t.Errorf("JaneSmith has %d embeddings, want 2", len(jane.Embeddings))
	}
	if jane.Sources[0] != "JaneSmith_1.jpg" || jane.Sources[1] != "JaneSmith_2.jpg" {
		t.Errorf("sources = %v", jane.Sources)
	}
}

func TestBuilderRejectsWrongDimension(t *testing.T) {
	b := NewBuilder(nil)
	if err := b.Add("JohnDoe", "JohnDoe.jpg", make([]float32, 64)); err == nil {
		t.Fatal("Add() accepted a 64-dim embedding")
	}
}

func TestBuilderNormalizedKeyCollision(t *testing.T) {
	var warnings []string
	b := NewBuilder(func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	})

	// "Jiří" and "jiri" normalize to the same key; they merge under the
	// first-seen spelling.
	if err := b.Add("Jiří", "Jiří_1.jpg", emb(1)); err != nil {
		t.Fatal(err)
	}
	if err := b.Add("jiri", "jiri_2.jpg", emb(2)); err != nil {
		t.Fatal(err)
	}

	g := b.Build()
	if g.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after merge", g.Len())
	}
	id := g.Identities()[0]
	if id.Name != "Jiří" {
		t.Errorf("Name = %q, want first-seen spelling Jiří", id.Name)
	}
	if len(id.Embeddings) != 2 {
		t.Errorf("got %d embeddings, want 2", len(id.Embeddings))
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "merging") {
		t.Errorf("warnings = %v, want one merge warning", warnings)
	}
}

func TestGalleryFrozenOrder(t *testing.T) {
	b := NewBuilder(nil)
	for _, name := range []string{"Zara", "Adam", "Milan"} {
		if err := b.Add(name, name+".jpg", emb(1)); err != nil {
			t.Fatal(err)
		}
	}

	g := b.Build()
	var keys []string
	for _, id := range g.Identities() {
		keys = append(keys, id.Key)
	}
	want := []string{"adam", "milan", "zara"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("iteration order = %v, want %v", keys, want)
		}
	}
}

func TestFindOutliersFlagsMislabeledReference(t *testing.T) {
	b := NewBuilder(nil)
	// Two tight clusters plus one Alice-labeled embedding sitting in Bob's.
	for i := 0; i < 3; i++ {
		if err := b.Add("Alice", fmt.Sprintf("Alice_%d.jpg", i), emb(float32(i)*0.01)); err != nil {
			t.Fatal(err)
		}
		if err := b.Add("Bob", fmt.Sprintf("Bob_%d.jpg", i), emb(1+float32(i)*0.01)); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.Add("Alice", "Alice_odd.jpg", emb(1.005)); err != nil {
		t.Fatal(err)
	}

	outliers := FindOutliers(b.Build(), 3)
	if len(outliers) == 0 {
		t.Fatal("FindOutliers() found nothing, want the mislabeled Alice reference")
	}
	if outliers[0].Source != "Alice_odd.jpg" {
		t.Errorf("top outlier source = %q, want Alice_odd.jpg", outliers[0].Source)
	}
	if outliers[0].ForeignNeighbors*2 <= outliers[0].Neighbors {
		t.Errorf("outlier neighbor counts inconsistent: %+v", outliers[0])
	}
}

func TestFindOutliersCleanGallery(t *testing.T) {
	b := NewBuilder(nil)
	for i := 0; i < 3; i++ {
		if err := b.Add("Alice", fmt.Sprintf("Alice_%d.jpg", i), emb(float32(i)*0.01)); err != nil {
			t.Fatal(err)
		}
		if err := b.Add("Bob", fmt.Sprintf("Bob_%d.jpg", i), emb(1+float32(i)*0.01)); err != nil {
			t.Fatal(err)
		}
	}

	if outliers := FindOutliers(b.Build(), 2); len(outliers) != 0 {
		t.Errorf("FindOutliers() = %+v, want none for clean clusters", outliers)
	}
}
