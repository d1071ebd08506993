// Package db stores indexes in Postgres with the pgvector extension.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"docqa/internal/config"
	"docqa/internal/index"
	"docqa/internal/models"
)

const insertBatchSize = 500

type ChunkRow struct {
	bun.BaseModel `bun:"table:docqa_chunks,alias:c"`
	ID            string          `bun:"id,pk"`
	Content       string          `bun:"content,notnull"`
	SourcePath    string          `bun:"source_path,notnull"`
	PageNumber    int             `bun:"page_number,notnull"`
	DocType       string          `bun:"doc_type,notnull"`
	ChunkIndex    int             `bun:"chunk_index,notnull"`
	StartOffset   int             `bun:"start_offset,notnull"`
	EndOffset     int             `bun:"end_offset,notnull"`
	Ordinal       int             `bun:"ordinal,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
	Score         float64         `bun:"score,scanonly"`
}

type ManifestRow struct {
	bun.BaseModel `bun:"table:docqa_chunks_manifest,alias:m"`
	TableName     string          `bun:"table_name,pk"`
	Manifest      models.Manifest `bun:"manifest,type:jsonb,notnull"`
	UpdatedAt     time.Time       `bun:"updated_at,notnull"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with the configured driver. No connection is
// made until the first query.
func ConnectDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: database dsn is required", models.ErrConfiguration)
	}
	switch cfg.Driver {
	case "pq":
		return sql.Open("postgres", cfg.DSN)
	case "", "pgdriver":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN))), nil
	default:
		return nil, fmt.Errorf("%w: unknown database driver %q", models.ErrConfiguration, cfg.Driver)
	}
}

// Store keeps one index in the table pair <table> and <table>_manifest.
type Store struct {
	db    *bun.DB
	table string
}

func NewStore(db *bun.DB, table string) *Store {
	if table == "" {
		table = "docqa_chunks"
	}
	return &Store{db: db, table: table}
}

func (s *Store) stagingTable() string  { return s.table + "_staging" }
func (s *Store) manifestTable() string { return s.table + "_manifest" }

// Persist rebuilds the table inside one transaction. A failure rolls back to
// the previous index.
func (s *Store) Persist(ctx context.Context, idx *index.Memory) error {
	m := idx.Manifest()
	staging := s.stagingTable()

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return fmt.Errorf("failed to create vector extension: %w", err)
		}
		if _, err := tx.NewDropTable().Table(staging).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop staging table: %w", err)
		}
		if _, err := tx.NewCreateTable().Model((*ChunkRow)(nil)).ModelTableExpr("?", bun.Ident(staging)).Exec(ctx); err != nil {
			return fmt.Errorf("failed to create staging table: %w", err)
		}
		if m.Dimension > 0 {
			if _, err := tx.ExecContext(ctx, "ALTER TABLE ? ALTER COLUMN embedding TYPE vector(?)", bun.Ident(staging), m.Dimension); err != nil {
				return fmt.Errorf("failed to set vector dimension: %w", err)
			}
		}

		rows := toRows(idx.Entries())
		for start := 0; start < len(rows); start += insertBatchSize {
			end := min(start+insertBatchSize, len(rows))
			batch := rows[start:end]
			if _, err := tx.NewInsert().Model(&batch).ModelTableExpr("?", bun.Ident(staging)).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert chunks %d-%d: %w", start, end, err)
			}
		}

		if _, err := tx.NewDropTable().Table(s.table).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop previous table: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "ALTER TABLE ? RENAME TO ?", bun.Ident(staging), bun.Ident(s.table)); err != nil {
			return fmt.Errorf("failed to rename staging table: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "ALTER INDEX IF EXISTS ? RENAME TO ?", bun.Ident(staging+"_pkey"), bun.Ident(s.table+"_pkey")); err != nil {
			return fmt.Errorf("failed to rename primary key: %w", err)
		}
		if m.Dimension > 0 {
			if _, err := tx.ExecContext(ctx, "CREATE INDEX ? ON ? USING hnsw (embedding vector_cosine_ops)",
				bun.Ident(s.table+"_embedding_idx"), bun.Ident(s.table)); err != nil {
				return fmt.Errorf("failed to create hnsw index: %w", err)
			}
		}

		if _, err := tx.NewCreateTable().Model((*ManifestRow)(nil)).ModelTableExpr("?", bun.Ident(s.manifestTable())).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create manifest table: %w", err)
		}
		row := &ManifestRow{TableName: s.table, Manifest: m, UpdatedAt: time.Now().UTC()}
		if _, err := tx.NewInsert().Model(row).ModelTableExpr("?", bun.Ident(s.manifestTable())).
			On("CONFLICT (table_name) DO UPDATE").
			Set("manifest = EXCLUDED.manifest").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to upsert manifest: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Info().Str("table", s.table).Str("build_id", m.BuildID).Int("count", m.Count).Msg("Index persisted")
	return nil
}

// Load reads the manifest and returns an index searching the table server side.
func (s *Store) Load(ctx context.Context) (index.Index, error) {
	m, err := s.ReadManifest(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := s.tableExists(ctx, s.table)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: table %s", models.ErrIndexNotFound, s.table)
	}
	return &Index{db: s.db, table: s.table, manifest: m}, nil
}

func (s *Store) ReadManifest(ctx context.Context) (models.Manifest, error) {
	ok, err := s.tableExists(ctx, s.manifestTable())
	if err != nil {
		return models.Manifest{}, err
	}
	if !ok {
		return models.Manifest{}, fmt.Errorf("%w: table %s", models.ErrIndexNotFound, s.manifestTable())
	}

	var row ManifestRow
	err = s.db.NewSelect().
		Model(&row).
		ModelTableExpr("? AS m", bun.Ident(s.manifestTable())).
		Where("m.table_name = ?", s.table).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Manifest{}, fmt.Errorf("%w: no manifest for %s", models.ErrIndexNotFound, s.table)
	}
	if err != nil {
		return models.Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}
	if row.Manifest.FormatVersion != models.ManifestFormatVersion {
		return models.Manifest{}, fmt.Errorf("%w: unsupported format version %d", models.ErrIndexNotFound, row.Manifest.FormatVersion)
	}
	return row.Manifest, nil
}

func (s *Store) tableExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, "SELECT to_regclass(?) IS NOT NULL", name).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return exists, nil
}

func toRows(entries []index.Entry) []ChunkRow {
	rows := make([]ChunkRow, len(entries))
	for i, e := range entries {
		md := e.Chunk.Metadata
		rows[i] = ChunkRow{
			ID:          e.Chunk.ID,
			Content:     e.Chunk.Text,
			SourcePath:  md.SourcePath,
			PageNumber:  md.PageNumber,
			DocType:     md.DocType,
			ChunkIndex:  md.ChunkIndex,
			StartOffset: md.StartOffset,
			EndOffset:   md.EndOffset,
			Ordinal:     md.Ordinal,
			Embedding:   pgvector.NewVector(e.Vector),
		}
	}
	return rows
}
