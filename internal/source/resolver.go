// Package source resolves a caller-supplied source reference to a local
// filesystem checkout the adapters can read. Local directories pass through;
// git URLs are cloned into a temporary directory; GitHub owner/repo shorthand
// is resolved through the API first.
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/google/go-github/v58/github"
	"go.uber.org/zap"

	"github.com/halcyonsec/scangate/internal/config"
)

// Checkout is a resolved, readable working tree. Callers must Release it when
// the scan is done; for local directories Release is a no-op and for cloned
// repositories it removes the temporary directory.
type Checkout struct {
	Path   string
	Branch string
	Commit string

	cleanup func() error
}

// NewCheckout builds a checkout over an existing path. The cleanup function
// may be nil for directories the caller owns.
func NewCheckout(path, branch, commit string, cleanup func() error) *Checkout {
	return &Checkout{Path: path, Branch: branch, Commit: commit, cleanup: cleanup}
}

// Release frees any temporary resources held by the checkout. Safe to call
// more than once.
func (c *Checkout) Release() error {
	if c.cleanup == nil {
		return nil
	}
	fn := c.cleanup
	c.cleanup = nil
	return fn()
}

// Resolver turns source references into checkouts.
type Resolver struct {
	cfg    config.SourceConfig
	gh     *github.Client
	logger *zap.Logger
}

// NewResolver builds a resolver. The GitHub client is only used for
// owner/repo shorthand references.
func NewResolver(cfg config.SourceConfig, logger *zap.Logger) *Resolver {
	gh := github.NewClient(nil)
	if cfg.GitHubToken != "" {
		gh = gh.WithAuthToken(cfg.GitHubToken)
	}
	return &Resolver{cfg: cfg, gh: gh, logger: logger.Named("source")}
}

// Resolve maps a source reference to a checkout. Inability to reach the
// target at all is a fatal scan error and is returned as such.
func (r *Resolver) Resolve(ctx context.Context, sourceRef string) (*Checkout, error) {
	if r.cfg.CloneTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.CloneTimeout)
		defer cancel()
	}

	// Local directory.
	if info, err := os.Stat(sourceRef); err == nil && info.IsDir() {
		abs, err := filepath.Abs(sourceRef)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path %q: %w", sourceRef, err)
		}
		co := &Checkout{Path: abs}
		// Best-effort provenance when the directory is itself a git repo.
		if repo, err := git.PlainOpen(abs); err == nil {
			if head, err := repo.Head(); err == nil {
				co.Branch = head.Name().Short()
				co.Commit = head.Hash().String()
			}
		}
		return co, nil
	}

	cloneURL := sourceRef
	if isGitHubShorthand(sourceRef) {
		resolved, err := r.resolveShorthand(ctx, sourceRef)
		if err != nil {
			return nil, err
		}
		cloneURL = resolved
	} else if !isRemoteURL(sourceRef) {
		return nil, fmt.Errorf("source %q is neither a local directory, a git URL, nor owner/repo shorthand", sourceRef)
	}

	return r.clone(ctx, cloneURL)
}

func (r *Resolver) resolveShorthand(ctx context.Context, ref string) (string, error) {
	parts := strings.SplitN(ref, "/", 2)
	repo, _, err := r.gh.Repositories.Get(ctx, parts[0], parts[1])
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q via GitHub API: %w", ref, err)
	}
	r.logger.Debug("Resolved shorthand reference",
		zap.String("ref", ref),
		zap.String("clone_url", repo.GetCloneURL()),
		zap.String("default_branch", repo.GetDefaultBranch()))
	return repo.GetCloneURL(), nil
}

func (r *Resolver) clone(ctx context.Context, url string) (*Checkout, error) {
	dir, err := os.MkdirTemp(r.cfg.CloneDir, "scangate-checkout-")
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout directory: %w", err)
	}
	cleanup := func() error { return os.RemoveAll(dir) }

	opts := &git.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
	}
	if r.cfg.GitHubToken != "" && strings.HasPrefix(url, "https://") {
		// go-git accepts any non-empty username with a token.
		opts.Auth = &githttp.BasicAuth{Username: "scangate", Password: r.cfg.GitHubToken}
	}

	repo, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		_ = cleanup()
		return nil, fmt.Errorf("failed to clone %q: %w", url, err)
	}

	co := &Checkout{Path: dir, cleanup: cleanup}
	if head, err := repo.Head(); err == nil {
		co.Branch = head.Name().Short()
		co.Commit = head.Hash().String()
	}

	r.logger.Info("Cloned repository",
		zap.String("url", url), zap.String("branch", co.Branch), zap.String("commit", co.Commit))
	return co, nil
}

// isRemoteURL reports whether the reference is an explicit git remote.
func isRemoteURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") ||
		strings.HasPrefix(ref, "https://") ||
		strings.HasPrefix(ref, "ssh://") ||
		strings.HasPrefix(ref, "git@")
}

// isGitHubShorthand matches bare "owner/repo" references.
func isGitHubShorthand(ref string) bool {
	if isRemoteURL(ref) || strings.Contains(ref, "\\") {
		return false
	}
	parts := strings.Split(ref, "/")
	return len(parts) == 2 && parts[0] != "" && parts[1] != "" && !strings.Contains(ref, " ")
}
