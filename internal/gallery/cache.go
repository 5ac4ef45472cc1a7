package gallery

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrCacheCorrupt marks a cache file that exists but cannot be decoded.
// Callers treat it as cache-absent and rebuild.
var ErrCacheCorrupt = errors.New("gallery cache corrupt")

const cacheMetadataVersion = 1

// CacheMetadata is the JSON sidecar written next to the gallery cache.
// The fingerprint decides whether the source directory changed since the
// cache was built.
type CacheMetadata struct {
	Version        int       `json:"version"`
	ImageCount     int       `json:"image_count"`
	SourceHash     string    `json:"source_hash"`
	IdentityCount  int       `json:"identity_count"`
	EmbeddingCount int       `json:"embedding_count"`
	BuildTime      time.Time `json:"build_time"`
}

// Fingerprint summarizes the training images in dir: how many there are and
// a hash over their names, sizes, and modification times.
func Fingerprint(dir string) (count int, hash string, err error) {
	files, err := ListImages(dir)
	if err != nil {
		return 0, "", err
	}

	h := sha256.New()
	for _, name := range files {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			return 0, "", fmt.Errorf("stat %s: %w", name, err)
		}
		fmt.Fprintf(h, "%s|%d|%d\n", name, info.Size(), info.ModTime().UnixNano())
	}

	return len(files), hex.EncodeToString(h.Sum(nil)), nil
}

// ListImages returns the image filenames in dir, sorted for stable ordering.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading image directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// SaveCache persists the gallery and its metadata sidecar atomically:
// each file is written to a temp file in the same directory and renamed,
// so a crash mid-write never leaves a partial cache that Load would trust.
func SaveCache(path string, g *Gallery, meta CacheMetadata) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(g.identities); err != nil {
		return fmt.Errorf("encoding gallery: %w", err)
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("writing gallery cache: %w", err)
	}

	meta.Version = cacheMetadataVersion
	meta.IdentityCount = g.Len()
	meta.EmbeddingCount = g.NumEmbeddings()
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling cache metadata: %w", err)
	}
	if err := writeFileAtomic(path+".meta", metaData); err != nil {
		return fmt.Errorf("writing cache metadata: %w", err)
	}

	return nil
}

// LoadCache reads a previously saved gallery and its metadata sidecar.
// A missing cache returns fs.ErrNotExist; an unreadable one wraps
// ErrCacheCorrupt.
func LoadCache(path string) (*Gallery, CacheMetadata, error) {
	var meta CacheMetadata

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, meta, err
		}
		return nil, meta, fmt.Errorf("reading gallery cache: %w", err)
	}

	var identities []Identity
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&identities); err != nil {
		return nil, meta, fmt.Errorf("%w: decoding %s: %v", ErrCacheCorrupt, path, err)
	}
	for i := range identities {
		for _, emb := range identities[i].Embeddings {
			if len(emb) != EmbeddingDim {
				return nil, meta, fmt.Errorf("%w: identity %q has a %d-dim embedding, want %d",
					ErrCacheCorrupt, identities[i].Key, len(emb), EmbeddingDim)
			}
		}
	}

	metaData, err := os.ReadFile(path + ".meta")
	if err != nil {
		return nil, meta, fmt.Errorf("%w: reading metadata sidecar: %v", ErrCacheCorrupt, err)
	}
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, meta, fmt.Errorf("%w: decoding metadata sidecar: %v", ErrCacheCorrupt, err)
	}
	if meta.Version != cacheMetadataVersion {
		return nil, meta, fmt.Errorf("%w: metadata version %d, want %d", ErrCacheCorrupt, meta.Version, cacheMetadataVersion)
	}

	// The cache was saved from sorted identities, but re-sort in case the
	// file predates a key normalization change.
	sort.Slice(identities, func(i, j int) bool {
		return identities[i].Key < identities[j].Key
	})
	return &Gallery{identities: identities}, meta, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
