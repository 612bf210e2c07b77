package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"vm-migrator/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreSaveLoadRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	job := models.NewMigrationJob("i-abc123")
	job.RunID = "run-1"
	job.CurrentStage = models.StageExport
	job.Status = models.JobStatusRunning
	job.SetArtifact(models.StageSnapshot, "snap-0001")
	job.SetArtifact(models.StageImageBuild, "ami-0001")
	require.NoError(t, store.Save(job))

	loaded, err := store.Load("i-abc123")
	require.NoError(t, err)
	assert.Equal(t, models.StageExport, loaded.CurrentStage)
	assert.Equal(t, models.JobStatusRunning, loaded.Status)
	assert.Equal(t, "snap-0001", loaded.Artifact(models.StageSnapshot))
	assert.Equal(t, "ami-0001", loaded.Artifact(models.StageImageBuild))
}

func TestFileStoreLoadMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("i-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	job := models.NewMigrationJob("i-abc123")
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Save(job))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "i-abc123.json", entries[0].Name())
}

func TestFileStoreIgnoresUnknownFields(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	// A checkpoint written by a newer build with extra fields still
	// loads; unknown fields are dropped.
	raw := map[string]any{
		"instance_id":   "i-abc123",
		"current_stage": "import",
		"status":        "running",
		"artifacts":     map[string]string{"snapshot": "snap-0001"},
		"shiny_new":     true,
	}
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "i-abc123.json"), data, 0o600))

	job, err := store.Load("i-abc123")
	require.NoError(t, err)
	assert.Equal(t, models.StageImport, job.CurrentStage)
	assert.Equal(t, "snap-0001", job.Artifact(models.StageSnapshot))
}

func TestFileStoreLoadToleratesMissingArtifacts(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	data := []byte(`{"instance_id":"i-abc123","current_stage":"snapshot","status":"pending"}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "i-abc123.json"), data, 0o600))

	job, err := store.Load("i-abc123")
	require.NoError(t, err)
	require.NotNil(t, job.Artifacts)
	job.SetArtifact(models.StageSnapshot, "snap-0001")
}

func TestFileStoreAcquireRejectsActiveJob(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	job := models.NewMigrationJob("i-abc123")
	require.NoError(t, store.Acquire(job))
	assert.Equal(t, models.JobStatusRunning, job.Status)

	assert.ErrorIs(t, store.Acquire(models.NewMigrationJob("i-abc123")), ErrJobActive)

	// A different instance is unaffected.
	require.NoError(t, store.Acquire(models.NewMigrationJob("i-def456")))
}

func TestFileStoreTerminalSaveReleasesActivation(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	job := models.NewMigrationJob("i-abc123")
	require.NoError(t, store.Acquire(job))

	job.Status = models.JobStatusFailed
	require.NoError(t, store.Save(job))

	// The next run may re-acquire once the previous one is terminal.
	require.NoError(t, store.Acquire(models.NewMigrationJob("i-abc123")))
}

func TestFileStoreReacquiresAfterCrash(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	job := models.NewMigrationJob("i-abc123")
	require.NoError(t, store.Acquire(job))

	// A fresh process sees a running checkpoint on disk but no
	// in-process activation, so resume is allowed.
	restarted, err := NewFileStore(dir)
	require.NoError(t, err)
	loaded, err := restarted.Load("i-abc123")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, loaded.Status)
	require.NoError(t, restarted.Acquire(loaded))
}

func TestFileStoreList(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	for _, id := range []string{"i-abc123", "i-def456"} {
		require.NoError(t, store.Save(models.NewMigrationJob(id)))
	}
	// Event files and garbage are skipped.
	require.NoError(t, store.RecordEvent(models.JobEvent{InstanceID: "i-abc123"}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	jobs, err := store.List()
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	ids := map[string]bool{}
	for _, j := range jobs {
		ids[j.InstanceID] = true
	}
	assert.True(t, ids["i-abc123"])
	assert.True(t, ids["i-def456"])
}

func TestFileStoreRecordEventAppends(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	from := models.JobStatusPending
	require.NoError(t, store.RecordEvent(models.JobEvent{
		InstanceID: "i-abc123",
		RunID:      "run-1",
		Stage:      models.StageSnapshot,
		FromStatus: &from,
		ToStatus:   models.JobStatusRunning,
		Reason:     "run_started",
	}))
	require.NoError(t, store.RecordEvent(models.JobEvent{
		InstanceID: "i-abc123",
		RunID:      "run-1",
		Stage:      models.StageImageBuild,
		ToStatus:   models.JobStatusRunning,
		Reason:     "stage_completed:snapshot",
	}))

	data, err := os.ReadFile(filepath.Join(dir, "i-abc123.events"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "run_started")
	assert.Contains(t, string(data), "stage_completed:snapshot")
}
