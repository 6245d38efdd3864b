package document_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphloom/features/document"
)

func TestPostgresRepo_ExistsByHash(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	t.Run("Exists", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM documents WHERE content_hash = $1 AND deleted_at IS NULL)")).
			WithArgs("hash123").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		exists, err := repo.ExistsByHash(context.Background(), "hash123")
		assert.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("Missing", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WithArgs("other").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		exists, err := repo.ExistsByHash(context.Background(), "other")
		assert.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	doc := &document.Document{
		Name:        "report.pdf",
		Modality:    "document",
		MimeType:    "application/pdf",
		SizeBytes:   1024,
		Locator:     "abc_report.pdf",
		ContentHash: "hash",
		Status:      document.StatusPending,
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs(doc.Name, doc.Modality, doc.MimeType, doc.SizeBytes, doc.Locator, doc.ContentHash, doc.Status).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("doc-1", "2026-01-01 00:00:00", "2026-01-01 00:00:00"))

	require.NoError(t, repo.Save(context.Background(), doc))
	assert.Equal(t, "doc-1", doc.ID)
	assert.NotEmpty(t, doc.CreatedAt)
}

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	rows := sqlmock.NewRows([]string{
		"id", "name", "modality", "mime_type", "size_bytes", "locator", "content_hash",
		"status", "chunk_count", "last_error", "created_at", "updated_at",
	}).AddRow("doc-1", "report.pdf", "document", "application/pdf", int64(1024), "abc_report.pdf", "hash",
		"processed", 7, "", "2026-01-01", "2026-01-02")

	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE id = $1 AND deleted_at IS NULL")).
		WithArgs("doc-1").
		WillReturnRows(rows)

	doc, err := repo.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", doc.Name)
	assert.Equal(t, "processed", doc.Status)
	assert.Equal(t, 7, doc.ChunkCount)
}

func TestPostgresRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	rows := sqlmock.NewRows([]string{
		"id", "name", "modality", "mime_type", "size_bytes", "status", "chunk_count",
		"last_error", "created_at", "updated_at",
	}).
		AddRow("doc-1", "a.txt", "text", "text/plain", int64(10), "processed", 1, "", "2026-01-01", "2026-01-01").
		AddRow("doc-2", "b.mp4", "video", "video/mp4", int64(99), "failed", 0, "video overview call: boom", "2026-01-01", "2026-01-01")

	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE deleted_at IS NULL ORDER BY created_at DESC")).
		WillReturnRows(rows)

	docs, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "doc-1", docs[0].ID)
	assert.Equal(t, "video overview call: boom", docs[1].LastError)
}

func TestPostgresRepo_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET status = $1, last_error = NULLIF($2, ''), updated_at = NOW() WHERE id = $3")).
		WithArgs("failed", "no content extracted from document", "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.UpdateStatus(context.Background(), "doc-1", "failed", "no content extracted from document"))
}

func TestPostgresRepo_SetProcessed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("SET status = 'processed', chunk_count = $1")).
		WithArgs(12, "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.SetProcessed(context.Background(), "doc-1", 12))
}

func TestPostgresRepo_SoftDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET deleted_at = NOW() WHERE id = $1")).
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.SoftDelete(context.Background(), "doc-1"))
}

func TestPostgresRepo_Count(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM documents WHERE deleted_at IS NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
