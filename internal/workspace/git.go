package workspace

import (
	"context"
	"fmt"

	"github.com/gitsight/go-vcsurl"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/scan-io-git/scanio-hub/internal/task"
	scanerrors "github.com/scan-io-git/scanio-hub/pkg/shared/errors"
	log "github.com/scan-io-git/scanio-hub/pkg/shared/logger"
)

// materializeGit performs a shallow clone of the task's repository into the
// workspace and checks out the requested ref.
func (s *Store) materializeGit(ctx context.Context, src task.SourceSpec, dir string) error {
	if src.CloneURL == "" {
		return scanerrors.NewValidationError("source.clone_url", "must be set")
	}
	info, err := vcsurl.Parse(src.CloneURL)
	if err != nil {
		s.logger.Error("failed to parse VCS URL", "VCSURL", src.CloneURL, "error", err)
		return fmt.Errorf("failed to parse VCS URL: %w", err)
	}

	output := log.GetLoggerOutput(s.logger)

	opts := &git.CloneOptions{
		URL:      src.CloneURL,
		Progress: output,
		Depth:    1,
	}
	if src.Ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(src.Ref)
	}

	s.logger.Debug("starting repository fetch", "repository", info.Name, "ref", src.Ref, "cloneURL", src.CloneURL, "targetFolder", dir)
	repo, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		// A branch reference that does not exist may still be a tag or a
		// commit hash; retry with the default HEAD and resolve afterwards.
		if src.Ref == "" || err != plumbing.ErrReferenceNotFound {
			s.logger.Error("error occurred during clone", "error", err, "targetFolder", dir)
			return fmt.Errorf("error occurred during clone: %w", err)
		}
		opts.ReferenceName = ""
		opts.Depth = 0
		repo, err = git.PlainCloneContext(ctx, dir, false, opts)
		if err != nil {
			s.logger.Error("error occurred during clone", "error", err, "targetFolder", dir)
			return fmt.Errorf("error occurred during clone: %w", err)
		}
		if err := checkoutRevision(repo, src.Ref, dir); err != nil {
			return err
		}
	}

	s.logger.Info("repository fetch completed", "repository", info.Name, "ref", src.Ref, "targetFolder", dir)
	return nil
}

// checkoutRevision resolves an arbitrary revision (tag or commit hash) and
// checks it out with a hard reset.
func checkoutRevision(repo *git.Repository, rev, dir string) error {
	h, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return fmt.Errorf("error resolving revision %q: %w", rev, err)
	}
	w, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("error accessing worktree: %w", err)
	}
	if err := w.Checkout(&git.CheckoutOptions{Hash: *h, Force: true}); err != nil {
		return fmt.Errorf("error occurred during checkout of %q in %s: %w", rev, dir, err)
	}
	return nil
}
