package stages_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"vm-migrator/core/models"
	"vm-migrator/core/spec"
	"vm-migrator/core/stages"
	"vm-migrator/storage"

	"github.com/stretchr/testify/require"
)

// fakeSource is an in-memory source cloud. Operations can be made to
// fail by registering an error under the operation name.
type fakeSource struct {
	mu sync.Mutex

	snapshots map[string]string // name -> id
	images    map[string]string // name -> id
	exported  map[string]string // bucket -> key
	blob      []byte

	// exportPendingPolls is how many status polls report pending
	// before the export completes.
	exportPendingPolls int
	exportFails        bool
	exportPolls        int
	// exportStatusErrs is how many status polls error out before the
	// status call starts answering.
	exportStatusErrs int

	calls map[string]int
	fail  map[string]error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		snapshots: map[string]string{},
		images:    map[string]string{},
		exported:  map[string]string{},
		blob:      []byte("raw disk bytes"),
		calls:     map[string]int{},
		fail:      map[string]error{},
	}
}

func (f *fakeSource) called(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.fail[op]
}

func (f *fakeSource) FindSnapshot(ctx context.Context, name string) (string, error) {
	if err := f.called("FindSnapshot"); err != nil {
		return "", err
	}
	return f.snapshots[name], nil
}

func (f *fakeSource) CreateSnapshot(ctx context.Context, instanceID, name string) (string, error) {
	if err := f.called("CreateSnapshot"); err != nil {
		return "", err
	}
	id := fmt.Sprintf("snap-%04d", f.calls["CreateSnapshot"])
	f.snapshots[name] = id
	return id, nil
}

func (f *fakeSource) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	if err := f.called("DeleteSnapshot"); err != nil {
		return err
	}
	for name, id := range f.snapshots {
		if id == snapshotID {
			delete(f.snapshots, name)
		}
	}
	return nil
}

func (f *fakeSource) FindImage(ctx context.Context, name string) (string, error) {
	if err := f.called("FindImage"); err != nil {
		return "", err
	}
	return f.images[name], nil
}

func (f *fakeSource) CreateImage(ctx context.Context, snapshotID, name string) (string, error) {
	if err := f.called("CreateImage"); err != nil {
		return "", err
	}
	id := fmt.Sprintf("ami-%04d", f.calls["CreateImage"])
	f.images[name] = id
	return id, nil
}

func (f *fakeSource) DeregisterImage(ctx context.Context, imageID string) error {
	if err := f.called("DeregisterImage"); err != nil {
		return err
	}
	for name, id := range f.images {
		if id == imageID {
			delete(f.images, name)
		}
	}
	return nil
}

func (f *fakeSource) FindExportedObject(ctx context.Context, bucket, prefix string) (string, error) {
	if err := f.called("FindExportedObject"); err != nil {
		return "", err
	}
	return f.exported[bucket], nil
}

func (f *fakeSource) StartExport(ctx context.Context, imageID, bucket, prefix, format string) (string, error) {
	if err := f.called("StartExport"); err != nil {
		return "", err
	}
	return "export-task-1", nil
}

func (f *fakeSource) ExportStatus(ctx context.Context, taskID string) (stages.ExportStatus, error) {
	if err := f.called("ExportStatus"); err != nil {
		return stages.ExportStatus{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exportPolls++
	if f.exportStatusErrs > 0 {
		f.exportStatusErrs--
		return stages.ExportStatus{}, fmt.Errorf("connection reset by peer")
	}
	if f.exportFails {
		return stages.ExportStatus{Failed: true, Message: "export failed"}, nil
	}
	if f.exportPolls <= f.exportPendingPolls {
		return stages.ExportStatus{}, nil
	}
	key := "vm-migrate/i-abc123/export-task-1.raw"
	f.exported["src-exports"] = key
	return stages.ExportStatus{Done: true, Key: key}, nil
}

func (f *fakeSource) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := f.called("GetObject"); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(f.blob)), nil
}

// fakeDest is an in-memory destination cloud.
type fakeDest struct {
	mu sync.Mutex

	buckets   map[string]bool
	objects   map[string][]byte // bucket/object -> data
	images    map[string]bool
	instances map[string]bool

	importPendingPolls int
	importFails        bool
	importPolls        int

	calls map[string]int
	fail  map[string]error
}

func newFakeDest() *fakeDest {
	return &fakeDest{
		buckets:   map[string]bool{},
		objects:   map[string][]byte{},
		images:    map[string]bool{},
		instances: map[string]bool{},
		calls:     map[string]int{},
		fail:      map[string]error{},
	}
}

func (f *fakeDest) called(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.fail[op]
}

func (f *fakeDest) EnsureBucket(ctx context.Context, bucket string) error {
	if err := f.called("EnsureBucket"); err != nil {
		return err
	}
	f.buckets[bucket] = true
	return nil
}

func (f *fakeDest) ObjectExists(ctx context.Context, bucket, object string) (bool, error) {
	if err := f.called("ObjectExists"); err != nil {
		return false, err
	}
	_, ok := f.objects[bucket+"/"+object]
	return ok, nil
}

func (f *fakeDest) UploadObject(ctx context.Context, bucket, object string, r io.Reader) (string, error) {
	if err := f.called("UploadObject"); err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.objects[bucket+"/"+object] = data
	return "gs://" + bucket + "/" + object, nil
}

func (f *fakeDest) DeleteObject(ctx context.Context, bucket, object string) error {
	if err := f.called("DeleteObject"); err != nil {
		return err
	}
	delete(f.objects, bucket+"/"+object)
	return nil
}

func (f *fakeDest) FindImage(ctx context.Context, name string) (bool, error) {
	if err := f.called("FindImage"); err != nil {
		return false, err
	}
	return f.images[name], nil
}

func (f *fakeDest) StartImageImport(ctx context.Context, name, sourceURI, osHint string) (string, error) {
	if err := f.called("StartImageImport"); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.images[name] = true
	f.mu.Unlock()
	return "operation-import-1", nil
}

func (f *fakeDest) ImportStatus(ctx context.Context, opID string) (bool, bool, error) {
	if err := f.called("ImportStatus"); err != nil {
		return false, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.importPolls++
	if f.importFails {
		return false, true, nil
	}
	return f.importPolls > f.importPendingPolls, false, nil
}

func (f *fakeDest) DeleteImage(ctx context.Context, name string) error {
	if err := f.called("DeleteImage"); err != nil {
		return err
	}
	delete(f.images, name)
	return nil
}

func (f *fakeDest) FindInstance(ctx context.Context, name, zone string) (bool, error) {
	if err := f.called("FindInstance"); err != nil {
		return false, err
	}
	return f.instances[name], nil
}

func (f *fakeDest) CreateInstance(ctx context.Context, inst stages.InstanceSpec) (string, error) {
	if err := f.called("CreateInstance"); err != nil {
		return "", err
	}
	f.instances[inst.Name] = true
	return inst.Name, nil
}

func (f *fakeDest) DeleteInstance(ctx context.Context, name, zone string) error {
	if err := f.called("DeleteInstance"); err != nil {
		return err
	}
	delete(f.instances, name)
	return nil
}

// testSpec returns a migration section with millisecond poll intervals.
func testSpec(instanceID string) *spec.MigrationSection {
	return &spec.MigrationSection{
		InstanceID: instanceID,
		Source: spec.SourceSection{
			Region:       "us-east-1",
			ExportBucket: "src-exports",
			ExportFormat: "raw",
		},
		Destination: spec.DestinationSection{
			Project:     "dest-project",
			Zone:        "us-central1-a",
			Network:     "default",
			MachineType: "n1-standard-1",
			Bucket:      "dst-images",
			OSHint:      "debian-9",
		},
		Polling: spec.PollingSection{
			ExportInterval: "1ms",
			ExportAttempts: 60,
			ImportInterval: "1ms",
			ImportAttempts: 60,
		},
		RetryBudget: 3,
	}
}

// testDeps builds a full fake dependency set over a temp staging dir.
func testDeps(t *testing.T, instanceID string) (stages.Deps, *fakeSource, *fakeDest) {
	t.Helper()
	source := newFakeSource()
	dest := newFakeDest()
	staging, err := storage.NewStagingDir(t.TempDir(), instanceID)
	require.NoError(t, err)
	return stages.Deps{Source: source, Dest: dest, Spec: testSpec(instanceID), Staging: staging}, source, dest
}

// stageAt returns the pipeline stage with the given name.
func stageAt(t *testing.T, deps stages.Deps, name models.Stage) stages.Stage {
	t.Helper()
	for _, st := range stages.Pipeline(deps) {
		if st.Name() == name {
			return st
		}
	}
	t.Fatalf("no pipeline stage named %s", name)
	return nil
}

// completedThrough returns a job with artifacts recorded for every
// stage up to and including through.
func completedThrough(instanceID string, through models.Stage, deps stages.Deps) *models.MigrationJob {
	job := models.NewMigrationJob(instanceID)
	artifacts := map[models.Stage]string{
		models.StageSnapshot:     "snap-0001",
		models.StageImageBuild:   "ami-0001",
		models.StageExport:       "src-exports/vm-migrate/" + instanceID + "/export-task-1.raw",
		models.StageTransferDown: deps.Staging.BlobPath(),
		models.StageTransferUp:   "gs://dst-images/" + stages.DestObjectKey(instanceID),
		models.StageImport:       stages.DestImageName(instanceID),
		models.StageProvision:    stages.DestInstanceName(instanceID),
	}
	limit := models.StageIndex(through)
	for i, s := range models.PipelineStages {
		if i > limit {
			break
		}
		job.SetArtifact(s, artifacts[s])
	}
	if limit+1 < len(models.PipelineStages) {
		job.CurrentStage = models.PipelineStages[limit+1]
	} else {
		job.CurrentStage = models.StageCleanup
	}
	return job
}
