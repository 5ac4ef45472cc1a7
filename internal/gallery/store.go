package gallery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/schollz/progressbar/v3"
)

// Encoder is the slice of the embedding service the store needs.
// *embedder.Client satisfies it; tests substitute a fake.
type Encoder interface {
	EncodeTrainingImage(ctx context.Context, imageData []byte) ([]float32, error)
}

// Store builds the gallery from a directory of reference images and caches
// the result so re-encoding is skipped across runs.
type Store struct {
	imagesDir string
	cachePath string
	encoder   Encoder
	progress  bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithProgress enables a terminal progress bar during builds.
func WithProgress() StoreOption {
	return func(s *Store) { s.progress = true }
}

// NewStore creates a store over the given source directory and cache path.
func NewStore(imagesDir, cachePath string, encoder Encoder, opts ...StoreOption) *Store {
	s := &Store{
		imagesDir: imagesDir,
		cachePath: cachePath,
		encoder:   encoder,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadOrBuild returns the cached gallery when the cache is intact and the
// source directory has not changed; otherwise it re-encodes the source images
// and persists a fresh cache. force skips the cache entirely.
func (s *Store) LoadOrBuild(ctx context.Context, force bool) (*Gallery, error) {
	if !force {
		if g := s.loadValidCache(); g != nil {
			return g, nil
		}
	}
	return s.Build(ctx)
}

// loadValidCache returns the cached gallery only when it decodes cleanly and
// its fingerprint matches the current source directory.
func (s *Store) loadValidCache() *Gallery {
	g, meta, err := LoadCache(s.cachePath)
	if err != nil {
		if errors.Is(err, ErrCacheCorrupt) {
			fmt.Printf("Warning: %v, rebuilding\n", err)
		} else if !errors.Is(err, fs.ErrNotExist) {
			fmt.Printf("Warning: could not read gallery cache: %v, rebuilding\n", err)
		}
		return nil
	}

	count, hash, err := Fingerprint(s.imagesDir)
	if err != nil {
		fmt.Printf("Warning: could not fingerprint %s: %v, rebuilding\n", s.imagesDir, err)
		return nil
	}
	if count != meta.ImageCount || hash != meta.SourceHash {
		fmt.Printf("Training images changed since last build, rebuilding gallery\n")
		return nil
	}

	return g
}

// Build enumerates the source images, encodes each through the embedding
// service, groups the results by identity, and persists the cache. A single
// bad image is skipped with a warning; it never aborts the build.
func (s *Store) Build(ctx context.Context) (*Gallery, error) {
	files, err := ListImages(s.imagesDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no training images found in %s", s.imagesDir)
	}

	var bar *progressbar.ProgressBar
	if s.progress {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("Encoding faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}

	builder := NewBuilder(func(format string, args ...any) {
		fmt.Printf(format, args...)
	})

	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.encodeOne(ctx, builder, name); err != nil {
			fmt.Printf("Warning: skipping %s: %v\n", name, err)
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		fmt.Println()
	}

	if builder.Len() == 0 {
		return nil, fmt.Errorf("no usable training images in %s", s.imagesDir)
	}

	g := builder.Build()

	count, hash, err := Fingerprint(s.imagesDir)
	if err != nil {
		return nil, fmt.Errorf("fingerprinting %s: %w", s.imagesDir, err)
	}
	meta := CacheMetadata{
		ImageCount: count,
		SourceHash: hash,
		BuildTime:  time.Now(),
	}
	if err := SaveCache(s.cachePath, g, meta); err != nil {
		return nil, err
	}

	return g, nil
}

// encodeOne reads and encodes a single training image into the builder.
func (s *Store) encodeOne(ctx context.Context, builder *Builder, name string) error {
	data, err := os.ReadFile(filepath.Join(s.imagesDir, name)) //nolint:gosec // name comes from ReadDir
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	embedding, err := s.encoder.EncodeTrainingImage(ctx, data)
	if err != nil {
		var extractErr *embedder.ExtractionError
		if errors.As(err, &extractErr) {
			extractErr.File = name
		}
		return err
	}

	return builder.Add(identity.ParseFilename(name), name, embedding)
}
