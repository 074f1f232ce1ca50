package persist

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/ride-pilot/internal/engine"
)

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	return NewFileStore(dir, log.New(io.Discard, "", 0)), dir
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	started := time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)
	p := 180.5
	snap := engine.Snapshot{
		Mode:        "workout",
		FTP:         240,
		WorkoutName: "Steady Hour",
		Running:     true,
		StartedAt:   &started,
		ElapsedSec:  120,
		Samples: []engine.Sample{
			{T: 1, Power: &p},
			{T: 2},
		},
	}

	require.NoError(t, store.SaveSessionSnapshot(snap))

	loaded, err := store.LoadSessionSnapshot()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "workout", loaded.Mode)
	assert.Equal(t, 240, loaded.FTP)
	assert.True(t, loaded.Running)
	require.NotNil(t, loaded.StartedAt)
	assert.True(t, started.Equal(*loaded.StartedAt))
	require.Len(t, loaded.Samples, 2)
	require.NotNil(t, loaded.Samples[0].Power)
	assert.Equal(t, 180.5, *loaded.Samples[0].Power)
	assert.Nil(t, loaded.Samples[1].Power)
}

func TestLoadSnapshot_NoneExists(t *testing.T) {
	store, _ := newTestStore(t)

	loaded, err := store.LoadSessionSnapshot()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestLoadSnapshot_MissingFieldsDefaultToZero(t *testing.T) {
	store, dir := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "session.json"), []byte(`{"ftp":300}`), 0644))

	loaded, err := store.LoadSessionSnapshot()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 300, loaded.FTP)
	assert.Equal(t, "", loaded.Mode)
	assert.False(t, loaded.Running)
	assert.Nil(t, loaded.StartedAt)
}

func TestLoadSnapshot_CorruptFile(t *testing.T) {
	store, dir := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "session.json"), []byte("{not json"), 0644))

	loaded, err := store.LoadSessionSnapshot()
	assert.Error(t, err)
	assert.Nil(t, loaded)
}

func TestClearSnapshot(t *testing.T) {
	store, _ := newTestStore(t)

	// Clearing with nothing persisted is not an error.
	require.NoError(t, store.ClearSessionSnapshot())

	require.NoError(t, store.SaveSessionSnapshot(engine.Snapshot{Mode: "erg"}))
	require.NoError(t, store.ClearSessionSnapshot())

	loaded, err := store.LoadSessionSnapshot()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSaveSnapshot_LatestWins(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.SaveSessionSnapshot(engine.Snapshot{ElapsedSec: 10}))
	require.NoError(t, store.SaveSessionSnapshot(engine.Snapshot{ElapsedSec: 11}))

	loaded, err := store.LoadSessionSnapshot()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 11, loaded.ElapsedSec)
}

func TestSaveRideRecord(t *testing.T) {
	store, dir := newTestStore(t)

	rec := engine.RideRecord{
		WorkoutName: "Steady Hour",
		FTP:         240,
		StartedAt:   time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC),
		DurationSec: 3600,
		Samples:     []engine.Sample{{T: 1}},
	}
	require.NoError(t, store.SaveRideRecord(rec))

	path := filepath.Join(dir, "rides", "ride-20250601-070000.json")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"workoutName": "Steady Hour"`)
	assert.Contains(t, string(raw), `"durationSec": 3600`)
}
