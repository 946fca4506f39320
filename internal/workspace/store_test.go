package workspace

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/scanio-hub/internal/task"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), resty.New(), hclog.NewNullLogger())
	require.NoError(t, err)
	return s
}

func filesystemTask(path string) *task.Task {
	now := time.Now().UTC()
	return &task.Task{
		ID:        uuid.New(),
		Tenant:    "acme",
		ProjectID: "proj-1",
		Type:      task.TypeCodeScan,
		Spec:      task.Spec{Source: task.SourceSpec{Kind: task.SourceFilesystem, Path: path}},
		Status:    task.StatusPending,
		Lifecycle: task.ActiveLifecycle(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMaterializeFilesystemCopiesTree(t *testing.T) {
	s := newTestStore(t)

	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "internal"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "internal", "main.go"), []byte("package main\n"), 0o644))

	tsk := filesystemTask(src)
	ref, err := s.Materialize(context.Background(), tsk)
	require.NoError(t, err)
	assert.Equal(t, task.NewArtifactRef("source_bundle", tsk.ID.String()), ref)

	dir, err := s.Resolve("acme", ref)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "internal", "main.go"))
	require.NoError(t, err)
	assert.Equal(t, "package main\n", string(data))
}

func TestMaterializeArchiveUnpacksZip(t *testing.T) {
	s := newTestStore(t)

	archive := filepath.Join(t.TempDir(), "src.zip")
	f, err := os.Create(archive)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("pkg/util.go")
	require.NoError(t, err)
	_, err = w.Write([]byte("package pkg\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	tsk := filesystemTask("")
	tsk.Spec.Source = task.SourceSpec{Kind: task.SourceArchive, Path: archive}

	ref, err := s.Materialize(context.Background(), tsk)
	require.NoError(t, err)

	dir, err := s.Resolve("acme", ref)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "pkg", "util.go"))
	require.NoError(t, err)
	assert.Equal(t, "package pkg\n", string(data))
}

func TestExtractZipRejectsPathTraversal(t *testing.T) {
	s := newTestStore(t)

	archive := filepath.Join(t.TempDir(), "evil.zip")
	f, err := os.Create(archive)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("../../escape.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("pwned"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	tsk := filesystemTask("")
	tsk.Spec.Source = task.SourceSpec{Kind: task.SourceArchive, Path: archive}

	_, err = s.Materialize(context.Background(), tsk)
	require.Error(t, err)
}

func TestPutAndResolveArtifact(t *testing.T) {
	s := newTestStore(t)

	ref, err := s.Put("acme", "sarif", "stage-1", []byte(`{"version":"2.1.0"}`))
	require.NoError(t, err)

	path, err := s.Resolve("acme", ref)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"2.1.0"}`, string(data))
}

func TestResolveRejectsTraversalAndUnknownRefs(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Resolve("acme", task.ArtifactRef("sarif:../../etc/passwd"))
	require.Error(t, err)

	_, err = s.Resolve("acme", task.ArtifactRef("malformed"))
	require.Error(t, err)

	_, err = s.Resolve("acme", task.NewArtifactRef("sarif", "missing"))
	require.Error(t, err)
}

func TestResolveScopesArtifactsByTenant(t *testing.T) {
	s := newTestStore(t)

	ref, err := s.Put("acme", "sarif", "stage-1", []byte("{}"))
	require.NoError(t, err)

	// Same reference, different tenant: not found.
	_, err = s.Resolve("globex", ref)
	require.Error(t, err)

	// A tenant segment cannot climb out of its tree.
	_, err = s.Resolve("../acme", ref)
	require.Error(t, err)

	_, err = s.Put("", "sarif", "stage-2", []byte("{}"))
	require.Error(t, err)
}

func TestProfileRulesetReferencesPublishedArtifact(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ProfileRuleset("acme", "strict")
	require.Error(t, err)

	published, err := s.Put("acme", "ruleset", "profile-strict", []byte("rules: [sqli]\n"))
	require.NoError(t, err)

	ref, err := s.ProfileRuleset("acme", "strict")
	require.NoError(t, err)
	assert.Equal(t, published, ref)
}
