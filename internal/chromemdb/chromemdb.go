// Package chromemdb persists indexes as chromem-go exports inside a directory
// that is swapped in atomically on every rebuild.
package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"docqa/internal/config"
	"docqa/internal/helper"
	"docqa/internal/index"
	"docqa/internal/models"
)

const (
	ManifestFile = "manifest.yaml"
	dataFile     = "index.gob"
)

// rename is swapped in tests to simulate filesystem failures.
var rename = os.Rename

// Store keeps one index under a directory path.
type Store struct {
	path          string
	collection    string
	compress      bool
	encryptionKey string
}

func NewStore(cfg config.IndexConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: index path is required", models.ErrConfiguration)
	}
	if cfg.EncryptionKey != "" && len(cfg.EncryptionKey) != 32 {
		return nil, fmt.Errorf("%w: encryption key must be 32 bytes long", models.ErrConfiguration)
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "docs"
	}
	return &Store{
		path:          filepath.Clean(cfg.Path),
		collection:    collection,
		compress:      cfg.Compress,
		encryptionKey: cfg.EncryptionKey,
	}, nil
}

func (s *Store) Path() string { return s.path }

// rejectEmbedding is the collection embedding func. Every document and query
// arrives with its vector already computed.
func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromemdb: documents must carry precomputed embeddings")
}

func (s *Store) exportName() string {
	name := dataFile
	if s.compress {
		name += ".gz"
	}
	if s.encryptionKey != "" {
		name += ".enc"
	}
	return name
}

// Persist writes idx into a staging directory and swaps it with the live one.
func (s *Store) Persist(ctx context.Context, idx *index.Memory) (err error) {
	m := idx.Manifest()
	staging := fmt.Sprintf("%s.staging-%s", s.path, m.BuildID)
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("failed to clear staging directory: %w", err)
	}
	if err := helper.CreateFolder(staging); err != nil {
		return err
	}
	keepStaging := false
	defer func() {
		if err != nil && !keepStaging {
			if rmErr := os.RemoveAll(staging); rmErr != nil {
				log.Warn().Err(rmErr).Str("path", staging).Msg("Failed to remove staging directory")
			}
		}
	}()

	db := chromem.NewDB()
	coll, err := db.CreateCollection(s.collection, map[string]string{"build_id": m.BuildID}, rejectEmbedding)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	if docs := toDocuments(idx.Entries()); len(docs) > 0 {
		if err := coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return fmt.Errorf("failed to add documents: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	log.Debug().
		Str("collection", s.collection).
		Str("staging", staging).
		Bool("compress", s.compress).
		Int("count", coll.Count()).
		Msg("Exporting index")
	if err := db.ExportToFile(filepath.Join(staging, s.exportName()), s.compress, s.encryptionKey, s.collection); err != nil {
		return fmt.Errorf("failed to export index: %w", err)
	}
	if err := writeManifest(filepath.Join(staging, ManifestFile), m); err != nil {
		return err
	}

	if err := s.swap(staging, m.BuildID); err != nil {
		keepStaging = errors.Is(err, models.ErrIndexRebuild)
		return err
	}
	log.Info().Str("path", s.path).Str("build_id", m.BuildID).Int("count", m.Count).Msg("Index persisted")
	return nil
}

func (s *Store) swap(staging, buildID string) error {
	backup := ""
	_, err := os.Stat(s.path)
	switch {
	case err == nil:
		backup = fmt.Sprintf("%s.old-%s", s.path, buildID)
		if err := rename(s.path, backup); err != nil {
			return fmt.Errorf("failed to move previous index aside: %w", err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("failed to stat index path: %w", err)
	}

	if err := rename(staging, s.path); err != nil {
		if backup == "" {
			return fmt.Errorf("failed to install index: %w", err)
		}
		if restoreErr := rename(backup, s.path); restoreErr != nil {
			return fmt.Errorf("%w: install failed (%v) and previous index could not be restored from %s (%v)",
				models.ErrIndexRebuild, err, backup, restoreErr)
		}
		return fmt.Errorf("failed to install index, previous index restored: %w", err)
	}

	if backup != "" {
		if err := os.RemoveAll(backup); err != nil {
			log.Warn().Err(err).Str("path", backup).Msg("Failed to remove previous index")
		}
	}
	return nil
}

// Load imports the live index. It returns models.ErrIndexNotFound when no
// complete index exists at the path.
func (s *Store) Load(ctx context.Context) (index.Index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := ReadManifest(s.path)
	if err != nil {
		return nil, err
	}

	file, err := findExport(s.path)
	if err != nil {
		return nil, err
	}
	db := chromem.NewDB()
	if err := db.ImportFromFile(file, s.encryptionKey, s.collection); err != nil {
		return nil, fmt.Errorf("failed to import index %s: %w", file, err)
	}
	coll := db.GetCollection(s.collection, rejectEmbedding)
	if coll == nil {
		return nil, fmt.Errorf("%w: collection %q missing from %s", models.ErrIndexNotFound, s.collection, file)
	}
	if coll.Count() != m.Count {
		return nil, fmt.Errorf("index %s holds %d entries, manifest says %d", s.path, coll.Count(), m.Count)
	}
	log.Debug().Str("path", s.path).Str("build_id", m.BuildID).Int("count", m.Count).Msg("Index loaded")
	return &Index{coll: coll, manifest: m}, nil
}

// ReadManifest reads the manifest of the index directory at path.
func ReadManifest(path string) (models.Manifest, error) {
	var m models.Manifest
	data, err := os.ReadFile(filepath.Join(path, ManifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return m, fmt.Errorf("%w: %s", models.ErrIndexNotFound, path)
	}
	if err != nil {
		return m, fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.FormatVersion != models.ManifestFormatVersion {
		return m, fmt.Errorf("%w: unsupported format version %d", models.ErrIndexNotFound, m.FormatVersion)
	}
	return m, nil
}

func writeManifest(path string, m models.Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func findExport(dir string) (string, error) {
	for _, name := range []string{dataFile, dataFile + ".gz", dataFile + ".enc", dataFile + ".gz.enc"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: no index data in %s", models.ErrIndexNotFound, dir)
}
