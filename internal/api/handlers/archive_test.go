package handlers

import (
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/remoteprint/internal/archive"
	"github.com/orrn/remoteprint/internal/config"
	"github.com/orrn/remoteprint/internal/db"
)

func TestArchives(t *testing.T) {
	env := newTestEnv(t)

	archiver, err := archive.NewArchiver(db.GetDB(), config.ArchiveConfig{
		Path:          filepath.Join(t.TempDir(), "archives"),
		RetentionDays: 3650,
	})
	require.NoError(t, err)
	NewArchiveHandler(archiver).RegisterRoutes(env.router.Group("/api"))

	w := env.do(http.MethodGet, "/api/archives", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[ArchiveListResponse](t, w)
	assert.Zero(t, list.Count)
	assert.Equal(t, 3650, list.RetentionDays)

	w = env.do(http.MethodPost, "/api/archives/run", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Zero(t, decode[ArchiveRunResponse](t, w).Archived, "recent submissions stay in place")

	w = env.do(http.MethodGet, "/api/archives", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list = decode[ArchiveListResponse](t, w)
	require.Equal(t, 1, list.Count)
	name := list.Archives[0].Filename

	w = env.do(http.MethodGet, "/api/archives/"+name, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, decode[archive.ArchiveFile](t, w).SubmissionCount)

	w = env.do(http.MethodGet, "/api/archives/"+name+"/download", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), name)

	w = env.do(http.MethodDelete, "/api/archives/"+name, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodGet, "/api/archives/"+name, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
