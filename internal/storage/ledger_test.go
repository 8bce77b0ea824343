package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelshare/internal/config"
	"reelshare/internal/models"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{
		"sqlite3": {DSN: filepath.Join(t.TempDir(), "reelshare.db")},
	}}
	db, err := Open("sqlite3", cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(db, "sqlite3"))
	// migrations are idempotent
	require.NoError(t, Migrate(db, "sqlite3"))
	return NewLedger(db)
}

func TestLedgerRecordAndRecent(t *testing.T) {
	ledger := openTestLedger(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, kind := range []models.SourceKind{models.SourceLocal, models.SourceURL, models.SourceYouTube} {
		require.NoError(t, ledger.Record(ctx, &models.Ingestion{
			Source:     kind,
			SourceRef:  string(kind) + "-ref",
			RemoteName: "files/" + string(kind),
			FileURI:    "https://files.example/" + string(kind),
			MimeType:   "video/mp4",
			SizeBytes:  int64(100 * (i + 1)),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := ledger.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.SourceYouTube, got[0].Source)
	assert.Equal(t, models.SourceURL, got[1].Source)
	assert.EqualValues(t, 300, got[0].SizeBytes)
	assert.True(t, got[0].CreatedAt.Equal(base.Add(2*time.Minute)))
	assert.Len(t, got[0].ID, 36)

	all, err := ledger.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLedgerKeepsProvidedID(t *testing.T) {
	ledger := openTestLedger(t)
	ing := &models.Ingestion{ID: "fixed-id", Source: models.SourceURL, SourceRef: "u", RemoteName: "files/x", FileURI: "uri", MimeType: "text/plain"}
	require.NoError(t, ledger.Record(context.Background(), ing))
	assert.False(t, ing.CreatedAt.IsZero())

	// duplicate ids are rejected by the primary key
	assert.Error(t, ledger.Record(context.Background(), ing))

	got, err := ledger.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fixed-id", got[0].ID)
}

func TestOpenRejectsUnknownDatabase(t *testing.T) {
	_, err := Open("sqlite3", &config.Config{})
	assert.Error(t, err)

	_, err = Open("postgres", &config.Config{Databases: map[string]config.DatabaseConfig{"postgres": {DSN: "x"}}})
	assert.Error(t, err)

	assert.Error(t, Migrate(nil, "oracle"))
}

func TestMySQLDSN(t *testing.T) {
	dsn, err := mysqlDSN(config.DatabaseConfig{
		Host: "db.internal", Username: "reel", Password: "pw", DBName: "reelshare", Params: "charset=utf8mb4",
	})
	require.NoError(t, err)
	assert.Contains(t, dsn, "reel:pw@tcp(db.internal:3306)/reelshare?")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")

	dsn, err = mysqlDSN(config.DatabaseConfig{DSN: "u:p@/d"})
	require.NoError(t, err)
	assert.Equal(t, "u:p@/d", dsn)
}
