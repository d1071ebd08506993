package parser

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"docqa/internal/models"
)

var DefaultInclude = []string{"**/*.pdf", "**/*.txt", "**/*.md", "**/*.docx", "**/*.pptx", "**/*.xlsx", "**/*.xlsm"}

// Loader discovers and parses the source files of a corpus directory.
type Loader struct {
	include []string
	workers int
}

type LoadResult struct {
	Documents []models.Document
	Failed    []*models.FileError
	Files     int
}

func NewLoader(include []string, workers int) *Loader {
	if len(include) == 0 {
		include = DefaultInclude
	}
	if workers <= 0 {
		workers = 1
	}
	return &Loader{include: include, workers: workers}
}

// Load parses every matching file under root. Files that fail are reported in
// LoadResult.Failed and skipped. When no document is produced the result is
// returned together with models.ErrEmptyCorpus.
func (l *Loader) Load(ctx context.Context, root string) (*LoadResult, error) {
	info, err := os.Stat(root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn().Str("root", root).Msg("Corpus directory does not exist")
		return &LoadResult{}, fmt.Errorf("%w: %s does not exist", models.ErrEmptyCorpus, root)
	case err != nil:
		return nil, fmt.Errorf("failed to stat corpus %s: %w", root, err)
	case !info.IsDir():
		return nil, fmt.Errorf("%w: corpus path %s is not a directory", models.ErrConfiguration, root)
	}

	files, err := l.discover(root)
	if err != nil {
		return nil, err
	}
	log.Info().Str("root", root).Int("files", len(files)).Msg("Discovered source files")

	slots := make([][]models.Document, len(files))
	failures := make([]error, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, rel := range files {
		i, rel := i, rel
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i], failures[i] = parseFile(root, rel)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &LoadResult{Files: len(files)}
	for i, rel := range files {
		if failures[i] != nil {
			fe := &models.FileError{Path: rel, Err: failures[i]}
			log.Warn().Err(failures[i]).Str("file", rel).Msg("Skipping source file")
			res.Failed = append(res.Failed, fe)
			continue
		}
		res.Documents = append(res.Documents, slots[i]...)
	}

	log.Info().Int("documents", len(res.Documents)).Int("failed", len(res.Failed)).Msg("Loaded corpus")
	if len(res.Documents) == 0 {
		return res, fmt.Errorf("%w: no documents under %s", models.ErrEmptyCorpus, root)
	}
	return res, nil
}

// discover returns the matching files relative to root, slash separated and sorted.
func (l *Loader) discover(root string) ([]string, error) {
	fsys := os.DirFS(root)
	seen := make(map[string]struct{})
	for _, pattern := range l.include {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly(), doublestar.WithCaseInsensitive())
		if err != nil {
			return nil, fmt.Errorf("%w: bad include pattern %q: %v", models.ErrConfiguration, pattern, err)
		}
		for _, m := range matches {
			if !Supported(strings.ToLower(path.Ext(m))) {
				continue
			}
			seen[m] = struct{}{}
		}
	}
	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

func parseFile(root, rel string) (docs []models.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("parser panic: %v", r)
		}
	}()

	p := parsers[strings.ToLower(path.Ext(rel))]
	pages, err := p.parse(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, err
	}
	for _, pg := range pages {
		if strings.TrimSpace(pg.text) == "" {
			continue
		}
		docs = append(docs, models.Document{
			Content: pg.text,
			Metadata: models.Metadata{
				SourcePath: rel,
				PageNumber: pg.number,
				DocType:    p.docType,
			},
		})
	}
	return docs, nil
}
