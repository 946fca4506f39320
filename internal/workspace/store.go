// Package workspace materializes a task's source into an addressable
// on-disk workspace and stores the artifacts stages produce.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/scanio-hub/internal/task"
	scanerrors "github.com/scan-io-git/scanio-hub/pkg/shared/errors"
	"github.com/scan-io-git/scanio-hub/pkg/shared/files"
)

// Store owns the workspace directory tree. Workspaces are scoped per task id
// and never shared across concurrent tasks.
type Store struct {
	root   string
	client *resty.Client
	logger hclog.Logger
}

// NewStore creates a workspace Store rooted at root.
func NewStore(root string, client *resty.Client, logger hclog.Logger) (*Store, error) {
	for _, dir := range []string{root, filepath.Join(root, "tasks"), filepath.Join(root, "artifacts")} {
		if err := files.CreateFolderIfNotExists(dir); err != nil {
			return nil, err
		}
	}
	return &Store{root: root, client: client, logger: logger}, nil
}

// TaskDir returns the workspace directory of the task. Workspaces are
// segmented by tenant; a tenant never resolves into another tenant's tree.
func (s *Store) TaskDir(tenant string, taskID uuid.UUID) string {
	return filepath.Join(s.root, "tasks", tenant, taskID.String())
}

// Materialize brings the task's source spec into its workspace and returns
// the source_bundle artifact reference.
func (s *Store) Materialize(ctx context.Context, t *task.Task) (task.ArtifactRef, error) {
	if t.Tenant == "" {
		return "", scanerrors.NewValidationError("tenant", "must be set")
	}
	dir := s.TaskDir(t.Tenant, t.ID)
	if err := files.RemoveAndRecreate(dir); err != nil {
		return "", err
	}

	src := t.Spec.Source
	var err error
	switch src.Kind {
	case task.SourceGit:
		err = s.materializeGit(ctx, src, dir)
	case task.SourceArchive:
		err = s.materializeArchive(src.Path, dir)
	case task.SourceFilesystem:
		err = files.CopyDir(src.Path, dir)
	case task.SourceURL:
		err = s.materializeURL(ctx, src.DownloadURL, dir)
	case task.SourceSBOM:
		err = files.CopyFile(src.Path, filepath.Join(dir, "sbom.json"))
	case task.SourceImage:
		// The scanner pulls the image itself; record the reference.
		err = os.WriteFile(filepath.Join(dir, "image-ref"), []byte(src.ImageRef), 0o644)
	default:
		return "", scanerrors.NewValidationError("source.kind", "unsupported source kind %q", src.Kind)
	}
	if err != nil {
		return "", fmt.Errorf("failed to materialize %s source: %w", src.Kind, err)
	}

	s.logger.Info("workspace materialized", "task", t.ID, "kind", src.Kind, "dir", dir)
	return task.NewArtifactRef("source_bundle", t.ID.String()), nil
}

// Put stores content under an artifact reference owned by the tenant and
// returns it.
func (s *Store) Put(tenant, kind, id string, content []byte) (task.ArtifactRef, error) {
	path, err := s.artifactPath(tenant, kind, id)
	if err != nil {
		return "", err
	}
	if err := files.CreateFolderIfNotExists(filepath.Dir(path)); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact %s:%s: %w", kind, id, err)
	}
	return task.NewArtifactRef(kind, id), nil
}

// PutFile moves an existing file under an artifact reference owned by the
// tenant.
func (s *Store) PutFile(tenant, kind, id, srcPath string) (task.ArtifactRef, error) {
	path, err := s.artifactPath(tenant, kind, id)
	if err != nil {
		return "", err
	}
	if err := files.CopyFile(srcPath, path); err != nil {
		return "", err
	}
	return task.NewArtifactRef(kind, id), nil
}

// ProfileRuleset returns the reference of the latest published ruleset for
// the named profile. Publication overwrites in place, so "profile-<name>"
// always points at the current revision; a profile nobody published is
// not-found.
func (s *Store) ProfileRuleset(tenant, profile string) (task.ArtifactRef, error) {
	ref := task.NewArtifactRef("ruleset", "profile-"+profile)
	if _, err := s.Resolve(tenant, ref); err != nil {
		return "", err
	}
	return ref, nil
}

// Resolve maps an artifact reference to its on-disk path within the
// tenant's tree. A source_bundle ref resolves to the task workspace;
// everything else lives under the artifacts tree. Ownership is structural:
// resolution only ever looks inside the given tenant's segment, so an
// artifact of another tenant comes back not-found.
func (s *Store) Resolve(tenant string, ref task.ArtifactRef) (string, error) {
	kind, id := ref.Kind(), ref.Identifier()
	if kind == "" || id == "" {
		return "", scanerrors.NewValidationError("artifact", "malformed reference %q", string(ref))
	}

	if kind == "source_bundle" {
		taskID, err := uuid.Parse(id)
		if err != nil {
			return "", scanerrors.NewValidationError("artifact", "malformed source bundle id %q", id)
		}
		dir := s.TaskDir(tenant, taskID)
		if _, err := os.Stat(dir); err != nil {
			return "", scanerrors.NewNotFoundError("artifact", string(ref))
		}
		return dir, nil
	}

	path, err := s.artifactPath(tenant, kind, id)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", scanerrors.NewNotFoundError("artifact", string(ref))
	}
	return path, nil
}

// artifactPath builds the storage path and rejects tenants or identifiers
// that would escape the tenant's artifact tree.
func (s *Store) artifactPath(tenant, kind, id string) (string, error) {
	if tenant == "" {
		return "", scanerrors.NewValidationError("tenant", "must be set")
	}
	base := filepath.Join(s.root, "artifacts", tenant)
	if !strings.HasPrefix(base, filepath.Join(s.root, "artifacts")+string(filepath.Separator)) {
		return "", scanerrors.NewValidationError("tenant", "tenant %q escapes the artifact tree", tenant)
	}
	clean := filepath.Clean(filepath.Join(base, kind, id))
	if !strings.HasPrefix(clean, base+string(filepath.Separator)) {
		return "", scanerrors.NewValidationError("artifact", "reference %s:%s escapes the artifact tree", kind, id)
	}
	return clean, nil
}

func (s *Store) materializeURL(ctx context.Context, url, dir string) error {
	if url == "" {
		return scanerrors.NewValidationError("source.download_url", "must be set")
	}
	target := filepath.Join(dir, "download")
	resp, err := s.client.R().SetContext(ctx).SetOutput(target).Get(url)
	if err != nil {
		return fmt.Errorf("failed to download %q: %w", url, err)
	}
	if resp.IsError() {
		return fmt.Errorf("download of %q returned %s", url, resp.Status())
	}

	if isArchive(target) {
		defer os.Remove(target)
		return extractArchive(target, dir)
	}
	return nil
}
