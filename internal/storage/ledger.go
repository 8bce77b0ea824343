package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reelshare/internal/models"
)

const (
	DefaultRecentLimit = 20
	MaxRecentLimit     = 100
)

// Ledger records completed ingestions.
type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) Record(ctx context.Context, ing *models.Ingestion) error {
	if ing == nil {
		return errors.New("nil ingestion")
	}
	if ing.ID == "" {
		ing.ID = uuid.NewString()
	}
	if ing.CreatedAt.IsZero() {
		ing.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO ingestions (id, source, source_ref, remote_name, file_uri, mime_type, size_bytes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ing.ID, string(ing.Source), ing.SourceRef, ing.RemoteName, ing.FileURI, ing.MimeType, ing.SizeBytes, ing.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert ingestion: %w", err)
	}
	return nil
}

// Recent returns the newest ingestions first. limit is clamped to [1, MaxRecentLimit].
func (l *Ledger) Recent(ctx context.Context, limit int) ([]*models.Ingestion, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, source, source_ref, remote_name, file_uri, mime_type, size_bytes, created_at
		 FROM ingestions ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query ingestions: %w", err)
	}
	defer rows.Close()

	var out []*models.Ingestion
	for rows.Next() {
		var (
			ing    models.Ingestion
			source string
		)
		if err := rows.Scan(&ing.ID, &source, &ing.SourceRef, &ing.RemoteName, &ing.FileURI, &ing.MimeType, &ing.SizeBytes, &ing.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ingestion: %w", err)
		}
		ing.Source = models.SourceKind(source)
		out = append(out, &ing)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
