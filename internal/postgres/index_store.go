package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/turbolytics/docket/internal/index"
	"go.uber.org/zap"
)

const DefaultTable = "docket_indexes"

var _ index.Store = (*IndexStore)(nil)

// IndexStore keeps one row per dataset holding the index document. Each save
// is a single upsert inside a transaction, so a reader sees either the old
// row or the new one.
type IndexStore struct {
	pool   *pgxpool.Pool
	table  string
	logger *zap.Logger
	now    func() time.Time
}

// NewIndexStore connects using a postgres:// URL. The table query parameter
// overrides DefaultTable and is not passed on to the server.
func NewIndexStore(ctx context.Context, uri *url.URL, logger *zap.Logger) (*IndexStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	query := uri.Query()
	table := query.Get("table")
	if table == "" {
		table = DefaultTable
	}
	query.Del("table")

	cleanURI := *uri
	cleanURI.RawQuery = query.Encode()

	pool, err := pgxpool.New(ctx, cleanURI.String())
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	s := &IndexStore{
		pool:   pool,
		table:  pgx.Identifier{table}.Sanitize(),
		logger: logger,
		now:    time.Now,
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("Postgres index store ready",
		zap.String("host", uri.Hostname()),
		zap.String("table", table),
	)
	return s, nil
}

func (s *IndexStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	dataset    INTEGER PRIMARY KEY,
	document   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`, s.table))
	if err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

func (s *IndexStore) Load(ctx context.Context, dataset int) (*index.Index, error) {
	var document []byte
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT document FROM %s WHERE dataset = $1`, s.table),
		dataset,
	).Scan(&document)
	if errors.Is(err, pgx.ErrNoRows) {
		s.logger.Info("No index found", zap.Int("dataset", dataset))
		return index.New(dataset), nil
	}
	if err != nil {
		return nil, err
	}
	return index.Decode(document, dataset)
}

func (s *IndexStore) Save(ctx context.Context, idx *index.Index) error {
	record := *idx
	record.UpdatedAt = s.now().UTC()

	document, err := json.Marshal(&record)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (dataset, document, updated_at)
VALUES ($1, $2::jsonb, $3)
ON CONFLICT (dataset) DO UPDATE
SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`, s.table),
		idx.Dataset, string(document), record.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	idx.UpdatedAt = record.UpdatedAt
	return nil
}

func (s *IndexStore) Close() error {
	s.pool.Close()
	return nil
}
