package gallery

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func buildTestGallery(t *testing.T) *Gallery {
	t.Helper()
	b := NewBuilder(nil)
	adds := []struct {
		name   string
		source string
		lead   float32
	}{
		{"JaneSmith", "JaneSmith_1.jpg", 0.125},
		{"JaneSmith", "JaneSmith_2.jpg", 0.25},
		{"JohnDoe", "JohnDoe.jpg", 0.5},
	}
	for _, a := range adds {
		if err := b.Add(a.name, a.source, emb(a.lead)); err != nil {
			t.Fatal(err)
		}
	}
	return b.Build()
}

func TestCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "encodings.gob")
	g := buildTestGallery(t)

	meta := CacheMetadata{ImageCount: 3, SourceHash: "abc", BuildTime: time.Now()}
	if err := SaveCache(path, g, meta); err != nil {
		t.Fatalf("SaveCache() error = %v", err)
	}

	loaded, loadedMeta, err := LoadCache(path)
	if err != nil {
		t.Fatalf("LoadCache() error = %v", err)
	}

	// Embeddings must survive the round trip bit for bit, so a cached gallery
	// matches exactly like a freshly built one.
	if !reflect.DeepEqual(loaded.Identities(), g.Identities()) {
		t.Error("loaded identities differ from saved identities")
	}
	if loadedMeta.ImageCount != 3 || loadedMeta.SourceHash != "abc" {
		t.Errorf("metadata = %+v", loadedMeta)
	}
	if loadedMeta.IdentityCount != 2 || loadedMeta.EmbeddingCount != 3 {
		t.Errorf("derived counts = %d identities, %d embeddings", loadedMeta.IdentityCount, loadedMeta.EmbeddingCount)
	}
}

func TestLoadCacheMissing(t *testing.T) {
	_, _, err := LoadCache(filepath.Join(t.TempDir(), "encodings.gob"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("LoadCache() error = %v, want fs.ErrNotExist", err)
	}
}

func TestLoadCacheCorrupt(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, path string)
	}{
		{
			name: "garbage gob data",
			setup: func(t *testing.T, path string) {
				if err := os.WriteFile(path, []byte("not a gob stream"), 0640); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name: "missing metadata sidecar",
			setup: func(t *testing.T, path string) {
				if err := SaveCache(path, buildTestGallery(t), CacheMetadata{}); err != nil {
					t.Fatal(err)
				}
				if err := os.Remove(path + ".meta"); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name: "garbage metadata sidecar",
			setup: func(t *testing.T, path string) {
				if err := SaveCache(path, buildTestGallery(t), CacheMetadata{}); err != nil {
					t.Fatal(err)
				}
				if err := os.WriteFile(path+".meta", []byte("{"), 0640); err != nil {
					t.Fatal(err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "encodings.gob")
			tt.setup(t, path)

			_, _, err := LoadCache(path)
			if !errors.Is(err, ErrCacheCorrupt) {
				t.Errorf("LoadCache() error = %v, want ErrCacheCorrupt", err)
			}
		})
	}
}

func TestFingerprintChangesWithSource(t *testing.T) {
	dir := t.TempDir()
	writeImage := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0640); err != nil {
			t.Fatal(err)
		}
	}

	writeImage("JohnDoe.jpg", "one")
	count1, hash1, err := Fingerprint(dir)
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if count1 != 1 {
		t.Errorf("count = %d, want 1", count1)
	}

	writeImage("JaneSmith.jpg", "two")
	count2, hash2, err := Fingerprint(dir)
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if count2 != 2 {
		t.Errorf("count = %d, want 2", count2)
	}
	if hash1 == hash2 {
		t.Error("hash unchanged after adding an image")
	}
}

func TestListImagesFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.JPG", "a.png", "notes.txt", "c.jpeg"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0640); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.jpg"), 0750); err != nil {
		t.Fatal(err)
	}

	files, err := ListImages(dir)
	if err != nil {
		t.Fatalf("ListImages() error = %v", err)
	}
	want := []string{"a.png", "b.JPG", "c.jpeg"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("ListImages() = %v, want %v", files, want)
	}
}
