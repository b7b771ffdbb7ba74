package app

import (
	"context"
	"errors"
	"fmt"

	"pyseed/internal/auth"
	apperrors "pyseed/internal/errors"
	"pyseed/internal/github"
	"pyseed/internal/journal"
	"pyseed/internal/project"
	"pyseed/internal/relaunch"
	"pyseed/internal/remote"
	"pyseed/internal/update"
)

// UpdateRequest carries the update command's flags.
type UpdateRequest struct {
	Mode   string
	Paths  map[string]string
	Branch string
	Force  bool
	DryRun bool
	// NoRestart skips the restart after a successful update.
	NoRestart bool
	// Applied is called after a successful install, before any restart.
	Applied func(UpdateOutcome)
}

// UpdateOutcome reports what Update did.
type UpdateOutcome struct {
	Ref            remote.Ref
	Classification project.Classification
	Credential     auth.Source
	Version        update.VersionInfo
	// VersionChecked is false when the version comparison failed and the
	// update went ahead regardless.
	VersionChecked bool
	UpToDate       bool
	Result         update.Result
	Restarted      bool
	ExitCode       int
}

// Ref returns the remote repository: the configured one, otherwise the
// origin remote of the project, which is remembered for later runs.
func (a *App) Ref() (remote.Ref, error) {
	if a.Repo != "" {
		return remote.ParseRef(a.Repo)
	}
	origin, err := remote.DiscoverOrigin(a.Root)
	if err != nil {
		return remote.Ref{}, apperrors.New(apperrors.CodeConfigurationError,
			"no remote repository configured; set github.repo to owner/name", err)
	}
	ref, err := remote.ParseRef(origin)
	if err != nil {
		return remote.Ref{}, apperrors.New(apperrors.CodeConfigurationError,
			fmt.Sprintf("origin remote %q is not a usable repository", origin), err)
	}
	a.Repo = origin
	if ref.IsGitHub() && a.RememberRepo != nil {
		if err := a.RememberRepo(ref.FullName()); err != nil {
			a.logger().Warn("remember repository failed", "repository", ref.FullName(), "error", err)
		}
	}
	return ref, nil
}

func (a *App) source(ref remote.Ref) remote.Source {
	if a.sourceFor != nil {
		return a.sourceFor(ref)
	}
	return remote.SourceFor(ref, remote.GitHubSource{Client: a.GitHub})
}

// credential probes the repository anonymously and only resolves a
// credential when anonymous access is not enough.
func (a *App) credential(ctx context.Context, ref remote.Ref) (auth.Credential, error) {
	none := auth.Credential{Source: auth.SourceNone}
	if !ref.IsGitHub() {
		return none, nil
	}
	a.stage("checking repository access")
	vis, err := a.GitHub.Visibility(ctx, ref.Owner, ref.Name)
	if err != nil {
		if errors.Is(err, github.ErrNetworkFailure) {
			return none, apperrors.New(apperrors.CodeRemoteUnreachable,
				fmt.Sprintf("cannot reach %s", ref), err)
		}
		return none, err
	}
	a.logger().Info("repository visibility", "repository", ref.FullName(), "visibility", vis)
	if vis == github.VisibilityPublic {
		return none, nil
	}
	a.stage("authenticating")
	return a.Resolver.Resolve(ctx, ref.FullName())
}

// pinBranch resolves the default branch of a GitHub ref without one, so the
// version check and the download read the same branch. On failure the ref
// is returned unchanged.
func (a *App) pinBranch(ctx context.Context, ref remote.Ref, token string) remote.Ref {
	if ref.Branch != "" || !ref.IsGitHub() {
		return ref
	}
	r, err := a.GitHub.WithToken(token).Repository(ctx, ref.Owner, ref.Name)
	if err != nil || r.DefaultBranch == "" {
		a.logger().Debug("default branch unknown", "repository", ref.FullName(), "error", err)
		return ref
	}
	return ref.WithBranch(r.DefaultBranch)
}

// Update classifies the project, fetches the remote, installs the update
// scoped by mode and restarts the manager exactly once on success. Dry runs,
// up-to-date projects and processes that are themselves a restart never
// restart.
func (a *App) Update(ctx context.Context, req UpdateRequest) (UpdateOutcome, error) {
	var out UpdateOutcome
	started := a.clock()

	ref, err := a.Ref()
	if err != nil {
		return out, err
	}
	if req.Branch != "" {
		ref = ref.WithBranch(req.Branch)
	}
	out.Ref = ref

	o, err := a.Override(req.Mode, req.Paths)
	if err != nil {
		return out, apperrors.New(apperrors.CodeConfigurationError, err.Error(), err)
	}
	out.Classification = a.Classify(o)
	mode := out.Classification.Mode
	log := a.logger().With("repository", ref.String(), "mode", mode)

	entry := journal.Entry{Kind: journal.KindUpdate, StartedAt: started, Mode: string(mode), Remote: ref.String(), DryRun: req.DryRun}
	fail := func(err error) (UpdateOutcome, error) {
		entry.FinishedAt = a.clock()
		entry.Outcome = string(apperrors.CodeOf(err))
		entry.Message = err.Error()
		a.record(ctx, entry)
		return out, err
	}

	cred, err := a.credential(ctx, ref)
	if err != nil {
		return fail(err)
	}
	out.Credential = cred.Source
	ref = a.pinBranch(ctx, ref, cred.Token)
	out.Ref = ref
	src := a.source(ref)

	a.stage("checking version")
	info, err := update.Checker{Source: src}.Check(ctx, a.Root, ref, cred.Token, mode, o)
	switch {
	case err == nil:
		out.Version = info
		out.VersionChecked = true
	case apperrors.IsCode(err, apperrors.CodeRemoteUnreachable):
		return fail(err)
	default:
		log.Warn("version check failed, updating anyway", "error", err)
	}
	if out.VersionChecked && !info.UpdateAvailable && !req.Force {
		log.Info("already up to date", "local", info.Local, "remote", info.Remote)
		out.UpToDate = true
		return out, nil
	}

	orch := &update.Orchestrator{
		Source:   src,
		Preserve: a.Preserve,
		Logger:   a.logger(),
		Progress: a.Progress,
	}
	res, err := orch.Apply(ctx, update.Request{
		ProjectRoot: a.Root,
		Ref:         ref,
		Token:       cred.Token,
		Mode:        mode,
		Override:    o,
		DryRun:      req.DryRun,
	})
	if err != nil {
		return fail(err)
	}
	out.Result = res
	entry.FinishedAt = a.clock()
	entry.Revision = res.Plan.Revision
	entry.Added = len(res.Summary.Added)
	entry.Modified = len(res.Summary.Modified)
	entry.Removed = len(res.Summary.Removed)
	a.record(ctx, entry)

	if req.DryRun {
		return out, nil
	}
	if req.Applied != nil {
		req.Applied(out)
	}
	if req.NoRestart {
		return out, nil
	}
	if a.getenv(relaunch.RestartEnv) != "" {
		log.Warn("already restarted after an update, not restarting again")
		return out, nil
	}
	a.stage(StageRestarting)
	code, err := a.Supervisor.Restart(ctx)
	if err != nil {
		return out, err
	}
	out.Restarted = true
	out.ExitCode = code
	return out, nil
}

// CheckVersion compares local and remote versions without updating.
func (a *App) CheckVersion(ctx context.Context, flagMode string) (update.VersionInfo, error) {
	ref, err := a.Ref()
	if err != nil {
		return update.VersionInfo{}, err
	}
	o, err := a.Override(flagMode, nil)
	if err != nil {
		return update.VersionInfo{}, apperrors.New(apperrors.CodeConfigurationError, err.Error(), err)
	}
	mode := a.Classify(o).Mode
	cred, err := a.credential(ctx, ref)
	if err != nil {
		return update.VersionInfo{}, err
	}
	ref = a.pinBranch(ctx, ref, cred.Token)
	return update.Checker{Source: a.source(ref)}.Check(ctx, a.Root, ref, cred.Token, mode, o)
}
