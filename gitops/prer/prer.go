package prer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/valyala/fasttemplate"

	"github.com/byte4ever/image_updater/gitops/git"
	"github.com/byte4ever/image_updater/updater"
)

// DefaultBranch is the deployment branch used when
// Config.Branch is empty.
const DefaultBranch = "image-updater/images"

// DefaultBodyTemplate renders the pull request body.
// Available variables: {report}, {commit_message}, {branch},
// {count}.
const DefaultBodyTemplate = "Automated container image update.\n\n{report}\n"

var errNoRepo = errors.New("repository must be set")

// Config holds all settings for publishing an update run.
// Use a Config struct instead of many arguments.
type Config struct {
	// Repo is the work tree holding the output
	// documents.
	Repo *git.Repo

	// PrimaryBranch is the pull request target (e.g.
	// "main"). Empty means the branch checked out when
	// Publish starts.
	PrimaryBranch string

	// Branch is the deployment branch the commit is
	// pushed to. It is recreated from HEAD on every
	// run.
	Branch string

	// BodyTemplate overrides DefaultBodyTemplate.
	BodyTemplate string

	// DryRun commits locally but skips push and pull
	// request creation.
	DryRun bool

	// Provider creates pull requests on a git
	// hosting platform. When nil the branch is pushed
	// without opening a pull request.
	Provider git.GitProvider
}

// Publish commits and pushes the documents changed by res and
// opens a pull request titled with its commit message. It is a
// no-op when res changed nothing.
func Publish(ctx context.Context, cfg Config, res updater.Result) error {
	const errCtx = "publishing image updates"

	if res.CommitMessage == "" {
		slog.Info("no image changes, nothing to publish")

		return nil
	}

	if cfg.Repo == nil {
		return fmt.Errorf("%s: %w", errCtx, errNoRepo)
	}

	clean, err := cfg.Repo.IsClean(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if clean {
		slog.Info("work tree clean, nothing to publish", "dir", cfg.Repo.Dir)

		return nil
	}

	target := cfg.PrimaryBranch
	if target == "" {
		if target, err = cfg.Repo.CurrentBranch(ctx); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	if err := warnUnrelated(ctx, cfg.Repo, res.ChangedFiles); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	branch := cfg.Branch
	if branch == "" {
		branch = DefaultBranch
	}

	if err := cfg.Repo.RecreateBranch(ctx, branch); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	committed, err := cfg.Repo.Commit(
		ctx, res.CommitMessage, res.Report, res.ChangedFiles...,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if !committed {
		slog.Info("output documents unchanged in git", "branch", branch)

		return nil
	}

	if cfg.DryRun {
		slog.Info(
			"dry run: skipping push and PR creation",
			"branch", branch,
			"message", res.CommitMessage,
		)

		return nil
	}

	if err := cfg.Repo.Push(ctx, branch); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if cfg.Provider == nil {
		slog.Info("pushed branch without pull request", "branch", branch)

		return nil
	}

	if err := cfg.Provider.CreatePR(
		ctx,
		branch,
		target,
		res.CommitMessage,
		renderBody(cfg.BodyTemplate, branch, res),
	); err != nil {
		return fmt.Errorf(
			"%s: create PR for %s: %w", errCtx, branch, err,
		)
	}

	return nil
}

// warnUnrelated logs tracked files that differ from the index
// but are not output documents of this run. They stay out of
// the commit.
func warnUnrelated(ctx context.Context, repo *git.Repo, outputs []string) error {
	dirty, err := repo.GetChangedFiles(ctx)
	if err != nil {
		return err
	}

	own, err := repo.Relative(outputs...)
	if err != nil {
		return err
	}

	var unrelated []string

	for _, f := range dirty {
		if !slices.Contains(own, f) {
			unrelated = append(unrelated, f)
		}
	}

	if len(unrelated) > 0 {
		slog.Warn("leaving unrelated changes uncommitted", "files", unrelated)
	}

	return nil
}

// renderBody fills the pull request body template. Uses
// valyala/fasttemplate for substitution.
func renderBody(tpl, branch string, res updater.Result) string {
	if tpl == "" {
		tpl = DefaultBodyTemplate
	}

	return fasttemplate.ExecuteStringStd(tpl, "{", "}", map[string]any{
		"report":         res.Report,
		"commit_message": res.CommitMessage,
		"branch":         branch,
		"count":          fmt.Sprint(len(res.Records)),
	})
}
