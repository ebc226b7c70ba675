package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"cryptopost_bot/internal/model"
	"cryptopost_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// SavePublication upserts a publication record by its dedup key.
func (s *SQLite) SavePublication(ctx context.Context, rec model.PublicationRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO publications (kind, dedup_key, published_at, status)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(dedup_key) DO UPDATE SET
		   kind = excluded.kind,
		   published_at = excluded.published_at,
		   status = excluded.status`,
		string(rec.Kind), rec.DedupKey, rec.PublishedAt.UTC().Format(timeLayout), string(rec.Status),
	)
	if err != nil {
		return fmt.Errorf("save publication: %w", err)
	}
	return nil
}

// ListPublishedSince returns all published records newer than cutoff,
// oldest first.
func (s *SQLite) ListPublishedSince(ctx context.Context, cutoff time.Time) ([]model.PublicationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, dedup_key, published_at, status
		 FROM publications
		 WHERE status = ? AND published_at >= ?
		 ORDER BY published_at`,
		string(model.StatusPublished), cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("query publications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []model.PublicationRecord
	for rows.Next() {
		var rec model.PublicationRecord
		var kind, status, published string
		if err := rows.Scan(&kind, &rec.DedupKey, &published, &status); err != nil {
			return nil, fmt.Errorf("scan publication: %w", err)
		}
		rec.Kind = model.PublicationKind(kind)
		rec.Status = model.PublicationStatus(status)
		rec.PublishedAt, _ = time.Parse(timeLayout, published)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// PruneBefore deletes records older than cutoff and reports how many went.
func (s *SQLite) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM publications WHERE published_at < ?`,
		cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("prune publications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
