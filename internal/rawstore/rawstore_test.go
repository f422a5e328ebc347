package rawstore

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, retentionDays int) *Store {
	t.Helper()
	return New(t.TempDir(), retentionDays, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type billPayload struct {
	Number string `json:"number"`
	Title  string `json:"title"`
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := testStore(t, 0)

	path, err := s.Save(billPayload{Number: "HR21", Title: "A bill"},
		"bill", "117", "HR", "21", "details.json")
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, filepath.Join(s.root, "bill", "117", "HR", "21", "details.json"), path)

	var got billPayload
	require.NoError(t, s.Load(&got, "bill", "117", "HR", "21", "details.json"))
	assert.Equal(t, "HR21", got.Number)
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	s := testStore(t, 0)

	var got billPayload
	err := s.Load(&got, "bill", "117", "HR", "404", "details.json")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.LoadBytes("bill", "117", "HR", "404", "text.xml")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOverwriteCreatesBackup(t *testing.T) {
	s := testStore(t, 0)
	stamps := []time.Time{
		time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC),
	}
	i := 0
	s.now = func() time.Time { ts := stamps[i]; i++; return ts }

	for _, title := range []string{"first", "second", "third"} {
		_, err := s.Save(billPayload{Number: "HR21", Title: title},
			"bill", "117", "HR", "21", "list.json")
		require.NoError(t, err)
	}

	dir := filepath.Join(s.root, "bill", "117", "HR", "21")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var backups int
	for _, e := range entries {
		if e.Name() == "list.json" {
			continue
		}
		assert.Contains(t, e.Name(), "list.json.bak.")
		backups++
	}
	assert.Equal(t, 2, backups)

	var got billPayload
	require.NoError(t, s.Load(&got, "bill", "117", "HR", "21", "list.json"))
	assert.Equal(t, "third", got.Title)
}

func TestSaveBytesStoresVerbatim(t *testing.T) {
	s := testStore(t, 0)
	doc := []byte(`<bill><title>A bill</title></bill>`)

	_, err := s.SaveBytes(doc, "bill", "117", "HR", "21", "text.xml")
	require.NoError(t, err)

	got, err := s.LoadBytes("bill", "117", "HR", "21", "text.xml")
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestCleanupRemovesOnlyExpiredBackups(t *testing.T) {
	s := testStore(t, 7)

	_, err := s.Save(billPayload{Title: "current"}, "bill", "117", "HR", "21", "list.json")
	require.NoError(t, err)

	dir := filepath.Join(s.root, "bill", "117", "HR", "21")
	oldBackup := filepath.Join(dir, "list.json.bak.20240101_000000")
	freshBackup := filepath.Join(dir, "list.json.bak.20250601_000000")
	require.NoError(t, os.WriteFile(oldBackup, []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(freshBackup, []byte("{}"), 0o644))

	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(oldBackup, past, past))

	removed, err := s.Cleanup()
	require.NoError(t, err)

	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, oldBackup)
	assert.FileExists(t, freshBackup)
	assert.FileExists(t, filepath.Join(dir, "list.json"))
}

func TestCleanupDisabledWithoutRetention(t *testing.T) {
	s := testStore(t, 0)
	removed, err := s.Cleanup()
	require.NoError(t, err)
	assert.Zero(t, removed)
}
