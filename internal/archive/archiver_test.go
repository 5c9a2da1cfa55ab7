package archive

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/orrn/remoteprint/internal/config"
	"github.com/orrn/remoteprint/internal/db"
)

func seedSubmission(t *testing.T, conn *sql.DB, reference, createdAt string) {
	t.Helper()
	_, err := conn.Exec(`
		INSERT INTO submissions (reference, printer_id, content_type, qty, copies, status, created_at)
		VALUES (?, 1, 'pdf_base64', 1, 1, 'submitted', ?)
	`, reference, createdAt)
	require.NoError(t, err)
}

func countRows(t *testing.T, conn *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM submissions").Scan(&n))
	return n
}

func newTestArchiver(t *testing.T) (*Archiver, *sql.DB) {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(filepath.Join(dir, "main.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	a, err := NewArchiver(conn, config.ArchiveConfig{
		Path:          filepath.Join(dir, "archives"),
		RetentionDays: 30,
	}, WithClock(func() time.Time { return now }), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return a, conn
}

func TestArchiver_MovesOldSubmissions(t *testing.T) {
	ctx := context.Background()
	a, conn := newTestArchiver(t)

	seedSubmission(t, conn, "old-1", "2026-01-01 10:00:00")
	seedSubmission(t, conn, "old-2", "2026-02-01 00:00:00")
	seedSubmission(t, conn, "recent", "2026-03-10 09:00:00")

	moved, err := a.RunArchive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, moved)
	assert.Equal(t, 1, countRows(t, conn))

	moved, err = a.RunArchive(ctx)
	require.NoError(t, err)
	assert.Zero(t, moved)

	archives, err := a.ListArchives()
	require.NoError(t, err)
	require.Len(t, archives, 1)
	assert.Equal(t, "archive_2026_03.db", archives[0].Filename)
	assert.Equal(t, "2026-03", archives[0].Month)

	info, err := a.GetArchiveInfo(ctx, "archive_2026_03.db")
	require.NoError(t, err)
	assert.Equal(t, 2, info.SubmissionCount)
	assert.Positive(t, info.Size)
}

func TestArchiver_DeleteArchive(t *testing.T) {
	ctx := context.Background()
	a, conn := newTestArchiver(t)
	seedSubmission(t, conn, "old", "2025-12-24 08:00:00")

	_, err := a.RunArchive(ctx)
	require.NoError(t, err)

	require.NoError(t, a.DeleteArchive("archive_2026_03.db"))
	_, err = a.GetArchiveInfo(ctx, "archive_2026_03.db")
	assert.ErrorIs(t, err, ErrArchiveNotFound)
	assert.ErrorIs(t, a.DeleteArchive("archive_2026_03.db"), ErrArchiveNotFound)

	archives, err := a.ListArchives()
	require.NoError(t, err)
	assert.Empty(t, archives)
}

func TestArchiver_RejectsForeignNames(t *testing.T) {
	a, _ := newTestArchiver(t)

	for _, name := range []string{"../main.db", "main.db", "archive_2026_03.txt", "sub/archive_2026_03.db"} {
		_, err := a.GetArchiveInfo(context.Background(), name)
		assert.ErrorIs(t, err, ErrArchiveNotFound, name)
	}
}

func TestArchiver_StartStop(t *testing.T) {
	dir := t.TempDir()
	conn, err := db.Open(filepath.Join(dir, "main.db"))
	require.NoError(t, err)
	defer conn.Close()

	seedSubmission(t, conn, "ancient", "2000-01-01 00:00:00")

	a, err := NewArchiver(conn, config.ArchiveConfig{
		Path:     filepath.Join(dir, "archives"),
		Interval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, 90, a.RetentionDays())

	a.Start()
	assert.Eventually(t, func() bool {
		return countRows(t, conn) == 0
	}, 2*time.Second, 10*time.Millisecond)
	a.Stop()
	a.Stop()
}
