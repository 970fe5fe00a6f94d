// Package workspace implements the scoped per-delivery clone directory
// lifecycle of spec §4.8/§5: acquisition performs the nine git steps,
// release unconditionally removes the directory even under cancellation.
// It generalizes the teacher's gitexec.NewRunner (single os.MkdirTemp +
// defer Clean) into the full checkout-mode matrix runners need (PR head,
// merge base, tag, explicit ref) while keeping gitexec as the underlying
// git-step primitive.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/gh-fleet/webhook-server/internal/gitexec"
)

// Options describes what to check out, mirroring
// _prepare_cloned_repo_dir(clone_dir, pull_request?, is_merged?, checkout?, tag_name?).
type Options struct {
	Owner, Repo string
	Token       string
	GitName     string
	GitEmail    string

	// Exactly one of these selects the checkout mode; Checkout takes
	// precedence, then IsMerged+PRNumber, then Tag, then PRNumber alone.
	Checkout  string // explicit branch/tag/sha
	PRNumber  int
	BaseRef   string // required to merge base when PR is also set
	IsMerged  bool
	Tag       string
}

// Workspace is a scoped clone directory. Release must be called exactly
// once, ideally via defer, regardless of how Acquire's steps fared.
type Workspace struct {
	Dir string

	runner *gitexec.Runner
}

// Acquire performs the nine-step clone described in §4.8. Steps short
// circuit on first failure; the returned (Result, error) tuple's stdout is
// empty on success. On any return path where acquisition failed, the
// caller still owns a Workspace whose Release is safe to call (Dir may not
// exist yet, RemoveAll tolerates that).
func Acquire(ctx context.Context, opts Options) (*Workspace, Result, error) {
	baseDir := filepath.Join(os.TempDir(), "webhook-workspaces")
	_ = os.MkdirAll(baseDir, 0o755)
	scoped := filepath.Join(baseDir, uuid.NewString())

	runner, err := gitexec.NewRunner(scoped, "GIT_ASKPASS=true")
	if err != nil {
		return &Workspace{Dir: scoped}, Result{}, fmt.Errorf("workspace: mkdir: %w", err)
	}
	ws := &Workspace{Dir: runner.WorkDir, runner: runner}

	// 1. clone (authenticated URL; token redacted by gitexec internally)
	if err := runner.CloneWithToken(ctx, opts.Owner, opts.Repo, opts.Token); err != nil {
		return ws, Result{Stderr: err.Error()}, fmt.Errorf("clone: %w", err)
	}
	// 2. configure git identity
	if err := runner.ConfigUser(ctx, opts.GitName, opts.GitEmail); err != nil {
		return ws, Result{Stderr: err.Error()}, fmt.Errorf("config user: %w", err)
	}
	// 3. configure PR-head fetch refspec
	if err := runner.ConfigurePRFetch(ctx); err != nil {
		return ws, Result{Stderr: err.Error()}, fmt.Errorf("configure pr fetch: %w", err)
	}
	// 4. remote update
	var refspecs []string
	if opts.BaseRef != "" {
		refspecs = append(refspecs, opts.BaseRef+":refs/remotes/origin/"+opts.BaseRef)
	}
	if opts.PRNumber > 0 {
		refspecs = append(refspecs, fmt.Sprintf("refs/pull/%d/head:refs/remotes/origin/pr/%d", opts.PRNumber, opts.PRNumber))
	}
	if opts.Tag != "" {
		refspecs = append(refspecs, fmt.Sprintf("refs/tags/%s:refs/tags/%s", opts.Tag, opts.Tag))
	}
	if err := runner.Fetch(ctx, refspecs...); err != nil {
		return ws, Result{Stderr: err.Error()}, fmt.Errorf("remote update: %w", err)
	}

	switch {
	// 5. explicit checkout, optionally merged with base
	case opts.Checkout != "":
		if err := runner.CheckoutRef(ctx, opts.Checkout); err != nil {
			return ws, Result{Stderr: err.Error()}, fmt.Errorf("checkout %s: %w", opts.Checkout, err)
		}
		if opts.PRNumber > 0 {
			if err := runner.MergeBase(ctx, opts.BaseRef); err != nil {
				return ws, Result{Stderr: err.Error()}, fmt.Errorf("merge base %s: %w", opts.BaseRef, err)
			}
		}
	// 6. merged PR: checkout base ref
	case opts.IsMerged && opts.PRNumber > 0:
		if err := runner.CheckoutBranchFrom(ctx, opts.BaseRef, "origin/"+opts.BaseRef); err != nil {
			return ws, Result{Stderr: err.Error()}, fmt.Errorf("checkout base: %w", err)
		}
	// 7. tag checkout
	case opts.Tag != "":
		if err := runner.CheckoutRef(ctx, opts.Tag); err != nil {
			return ws, Result{Stderr: err.Error()}, fmt.Errorf("checkout tag %s: %w", opts.Tag, err)
		}
	// 8. open PR: checkout pr head, merge base
	case opts.PRNumber > 0:
		prBranch := fmt.Sprintf("origin/pr/%d", opts.PRNumber)
		if err := runner.CheckoutBranchFrom(ctx, fmt.Sprintf("pr-%d", opts.PRNumber), prBranch); err != nil {
			return ws, Result{Stderr: err.Error()}, fmt.Errorf("checkout pr head: %w", err)
		}
		if err := runner.MergeBase(ctx, opts.BaseRef); err != nil {
			return ws, Result{Stderr: err.Error()}, fmt.Errorf("merge base %s: %w", opts.BaseRef, err)
		}
	default:
		return ws, Result{}, fmt.Errorf("workspace: no checkout target specified")
	}

	return ws, Result{}, nil
}

// Result mirrors the (success, stdout, stderr) tuple callers must consult.
type Result struct {
	Stdout string
	Stderr string
}

// Release unconditionally removes the workspace directory. It must run
// even if the acquiring goroutine was cancelled mid-step, so callers
// should defer it immediately after Acquire returns a non-nil Workspace.
func (w *Workspace) Release() {
	if w == nil || w.Dir == "" {
		return
	}
	if err := os.RemoveAll(w.Dir); err != nil {
		slog.Warn("workspace.release_error", "dir", w.Dir, "err", err)
	}
}

// Sub creates a nested, UUID-suffixed subpath for a concurrent runner
// within the same delivery (§5: "nested workspaces ... each get their own
// UUID-suffixed subpath").
func (w *Workspace) Sub(label string) string {
	safe := strings.ReplaceAll(label, "/", "-")
	return filepath.Join(w.Dir, fmt.Sprintf("%s-%s", safe, uuid.NewString()[:8]))
}
