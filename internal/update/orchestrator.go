package update

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"pyseed/internal/logging"
	"pyseed/internal/project"
	"pyseed/internal/remote"
)

// DefaultPreserve lists the local paths kept across every replace.
var DefaultPreserve = []string{".git"}

// Request describes one update.
type Request struct {
	ProjectRoot string
	Ref         remote.Ref
	// Token is empty for anonymous access.
	Token    string
	Mode     project.Mode
	Override project.Override
	DryRun   bool
}

// Result is a finished (or simulated) update.
type Result struct {
	Plan    Plan
	Summary Summary
	DryRun  bool
}

// Orchestrator fetches, validates and installs updates.
type Orchestrator struct {
	Source remote.Source
	// Preserve holds .gitignore-style patterns, relative to project/, for
	// local paths that survive a replace. Nil uses DefaultPreserve.
	Preserve []string
	Logger   *slog.Logger
	// Progress receives short stage names.
	Progress func(stage string)

	// failAt injects a failure at the named install step.
	failAt func(step string) error
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logging.L()
}

func (o *Orchestrator) stage(name string) {
	o.logger().Info("update", "stage", name)
	if o.Progress != nil {
		o.Progress(name)
	}
}

func (o *Orchestrator) preserve() gitignore.Matcher {
	if o.Preserve == nil {
		return PreserveMatcher(DefaultPreserve)
	}
	return PreserveMatcher(o.Preserve)
}

func (o *Orchestrator) inject(step string) error {
	if o.failAt == nil {
		return nil
	}
	return o.failAt(step)
}

// Plan fetches the remote tree and validates it. Nothing local changes.
func (o *Orchestrator) Plan(ctx context.Context, req Request) (Plan, error) {
	o.stage("fetching " + req.Ref.String())
	tree, err := o.Source.Fetch(ctx, req.Ref, req.Token)
	if err != nil {
		return Plan{}, err
	}
	o.stage("validating")
	return NewPlan(req.Mode, req.Ref, tree, req.Override)
}

// Apply plans the update and installs it into project/. Any failure before
// the final swap leaves the project exactly as it was.
func (o *Orchestrator) Apply(ctx context.Context, req Request) (Result, error) {
	plan, err := o.Plan(ctx, req)
	if err != nil {
		return Result{}, err
	}
	target := filepath.Join(req.ProjectRoot, project.SubtreeDir)
	keep := o.preserve()
	before, err := SnapshotDir(target, keep)
	if err != nil {
		return Result{}, err
	}
	want := plan.Expected(before)
	summary := Diff(before, want)
	res := Result{Plan: plan, Summary: summary, DryRun: req.DryRun}

	log := o.logger().With("mode", plan.Mode, "scope", plan.Scope, "revision", plan.Revision)
	if req.DryRun {
		log.Info("dry run", "added", len(summary.Added), "modified", len(summary.Modified), "removed", len(summary.Removed))
		return res, nil
	}

	o.stage("installing")
	if err := o.install(ctx, req.ProjectRoot, plan, keep); err != nil {
		return Result{}, err
	}
	after, err := SnapshotDir(target, keep)
	if err != nil {
		return Result{}, err
	}
	res.Summary.AfterDigest = after.Digest()
	if res.Summary.AfterDigest != want.Digest() {
		log.Warn("installed tree differs from plan", "planned", want.Digest(), "installed", res.Summary.AfterDigest)
	}
	log.Info("update applied", "added", len(summary.Added), "modified", len(summary.Modified),
		"removed", len(summary.Removed), "unchanged", summary.Unchanged)
	return res, nil
}

// install writes plan into a staging directory beside project/, moves
// preserved local paths into it and swaps it in. Subtree updates also carry
// over every local file the plan does not overwrite. The previous project/ is
// kept as a backup until the swap succeeds and restored otherwise.
func (o *Orchestrator) install(ctx context.Context, root string, plan Plan, keep gitignore.Matcher) (err error) {
	target := filepath.Join(root, project.SubtreeDir)
	staging, err := os.MkdirTemp(root, ".project-staging-*")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()
	//nolint:gosec // G302: project directory uses standard permissions
	if err := os.Chmod(staging, 0755); err != nil {
		return fmt.Errorf("prepare staging directory: %w", err)
	}

	for _, p := range plan.Paths() {
		if err := ctx.Err(); err != nil {
			return err
		}
		f := plan.payload[p]
		dst := filepath.Join(staging, filepath.FromSlash(p))
		//nolint:gosec // G301: project directories use standard permissions
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return fmt.Errorf("stage %s: %w", p, err)
		}
		mode := f.Mode.Perm()
		if mode == 0 {
			mode = 0644
		}
		if err := os.WriteFile(dst, f.Data, mode); err != nil {
			return fmt.Errorf("stage %s: %w", p, err)
		}
	}
	if err := o.inject("staged"); err != nil {
		return err
	}

	_, statErr := os.Stat(target)
	hasTarget := statErr == nil
	if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", target, statErr)
	}
	if !hasTarget {
		if err := os.Rename(staging, target); err != nil {
			return fmt.Errorf("install %s: %w", target, err)
		}
		return nil
	}

	backup := filepath.Join(root, fmt.Sprintf(".project-backup-%d", os.Getpid()))
	if err := os.RemoveAll(backup); err != nil {
		return fmt.Errorf("clear backup: %w", err)
	}
	if err := os.Rename(target, backup); err != nil {
		return fmt.Errorf("back up %s: %w", target, err)
	}

	var moved []string
	live := staging
	defer func() {
		if err == nil {
			return
		}
		for _, rel := range moved {
			_ = os.Rename(filepath.Join(live, rel), filepath.Join(backup, rel))
		}
		if live == target {
			_ = os.RemoveAll(target)
		}
		if restoreErr := os.Rename(backup, target); restoreErr != nil {
			o.logger().Error("restore project failed", "backup", backup, "error", restoreErr)
		}
	}()

	carry := func(rel string, isDir bool) bool {
		if keep.Match(strings.Split(rel, "/"), isDir) {
			return true
		}
		return plan.Scope == ScopeSubtree && !isDir && !plan.Overwrites(rel)
	}
	moved, err = movePreserved(backup, staging, carry)
	if err != nil {
		return err
	}
	if err = o.inject("preserved"); err != nil {
		return err
	}
	if err = os.Rename(staging, target); err != nil {
		return fmt.Errorf("install %s: %w", target, err)
	}
	live = target
	if err = o.inject("swapped"); err != nil {
		return err
	}
	if rmErr := os.RemoveAll(backup); rmErr != nil {
		o.logger().Warn("remove backup failed", "backup", backup, "error", rmErr)
	}
	return nil
}

// movePreserved moves the local paths selected by carry from src into dst.
// A selected directory moves whole. The moved paths are returned relative
// to both roots, even on error.
func movePreserved(src, dst string, carry func(rel string, isDir bool) bool) ([]string, error) {
	var moved []string
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == src {
			return nil
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if !carry(filepath.ToSlash(rel), d.IsDir()) {
			return nil
		}
		to := filepath.Join(dst, rel)
		if err := os.RemoveAll(to); err != nil {
			return err
		}
		//nolint:gosec // G301: project directories use standard permissions
		if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
			return err
		}
		if err := os.Rename(p, to); err != nil {
			return err
		}
		moved = append(moved, rel)
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return moved, fmt.Errorf("preserve local files: %w", err)
	}
	return moved, nil
}
