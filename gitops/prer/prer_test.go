package prer_test

import (
	"context"
	"errors"
	"os"
	oe "os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/image_updater/gitops/git"
	"github.com/byte4ever/image_updater/gitops/prer"
	"github.com/byte4ever/image_updater/manifest"
	"github.com/byte4ever/image_updater/updater"
)

type prCall struct {
	from, to, title, body string
}

type workspace struct {
	repo   *git.Repo
	remote string
	output string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()

	remote := t.TempDir()
	gitCmd(t, remote, "init", "--bare", "-b", "main")

	dir := t.TempDir()
	for _, args := range [][]string{
		{"init", "-b", "main"},
		{"config", "user.email", "test@test.com"},
		{"config", "user.name", "Test"},
		{"config", "core.hooksPath", "/dev/null"},
		{"remote", "add", "origin", remote},
	} {
		gitCmd(t, dir, args...)
	}

	output := filepath.Join(dir, "values.yaml")
	require.NoError(t, os.WriteFile(output, []byte("app:\n  tag: 1.2.0\n"), 0o600))
	gitCmd(t, dir, "add", "values.yaml")
	gitCmd(t, dir, "commit", "-m", "seed")

	repo, err := git.Open(context.Background(), dir)
	require.NoError(t, err)

	return &workspace{repo: repo, remote: remote, output: output}
}

func (ws *workspace) change(t *testing.T) updater.Result {
	t.Helper()

	require.NoError(t, os.WriteFile(
		ws.output, []byte("app:\n  tag: 1.3.0\n"), 0o600,
	))

	return updater.Result{
		CommitMessage: "Update app to 1.3.0",
		Report:        "app: image version updated from org/app:1.2.0 to org/app:1.3.0",
		Records: []manifest.Record{
			{KeyPath: "app", OldTag: "1.2.0", NewTag: "1.3.0"},
		},
		ChangedFiles: []string{ws.output},
	}
}

func recordingProvider(calls *[]prCall) git.GitProvider {
	return git.GitProviderFunc(
		func(_ context.Context, from, to, title, body string) error {
			*calls = append(*calls, prCall{from, to, title, body})

			return nil
		},
	)
}

func TestPublish_commits_pushes_and_opens_pr(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)

	var calls []prCall

	err := prer.Publish(context.Background(), prer.Config{
		Repo:          ws.repo,
		PrimaryBranch: "main",
		Provider:      recordingProvider(&calls),
	}, ws.change(t))
	require.NoError(t, err)

	require.Len(t, calls, 1)
	assert.Equal(t, prer.DefaultBranch, calls[0].from)
	assert.Equal(t, "main", calls[0].to)
	assert.Equal(t, "Update app to 1.3.0", calls[0].title)
	assert.Contains(t, calls[0].body, "org/app:1.3.0")

	msg := gitOut(t, ws.remote, "log", "-1", "--pretty=%B", prer.DefaultBranch)
	assert.True(t, strings.HasPrefix(msg, "Update app to 1.3.0"))
	assert.Contains(t, msg, "image version updated")

	content := gitOut(t, ws.remote, "show", prer.DefaultBranch+":values.yaml")
	assert.Contains(t, content, "1.3.0")
}

func TestPublish_nothing_changed(t *testing.T) {
	t.Parallel()

	var calls []prCall

	err := prer.Publish(context.Background(), prer.Config{
		Provider: recordingProvider(&calls),
	}, updater.Result{Report: "app: no change in image version org/app:1.3.0"})

	require.NoError(t, err)
	assert.Empty(t, calls)
}

func TestPublish_dry_run(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)

	var calls []prCall

	err := prer.Publish(context.Background(), prer.Config{
		Repo:          ws.repo,
		PrimaryBranch: "main",
		Branch:        "deploy/images",
		DryRun:        true,
		Provider:      recordingProvider(&calls),
	}, ws.change(t))
	require.NoError(t, err)

	assert.Empty(t, calls)

	branch, err := ws.repo.CurrentBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "deploy/images", branch)

	//nolint:gosec // test helper
	cmd := oe.CommandContext(
		context.Background(),
		"git", "rev-parse", "--verify", "refs/heads/deploy/images",
	)
	cmd.Dir = ws.remote
	assert.Error(t, cmd.Run())
}

func TestPublish_targets_checked_out_branch(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)

	var calls []prCall

	err := prer.Publish(context.Background(), prer.Config{
		Repo:     ws.repo,
		Provider: recordingProvider(&calls),
	}, ws.change(t))
	require.NoError(t, err)

	require.Len(t, calls, 1)
	assert.Equal(t, "main", calls[0].to)
}

func TestPublish_clean_work_tree(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)

	var calls []prCall

	err := prer.Publish(context.Background(), prer.Config{
		Repo:     ws.repo,
		Provider: recordingProvider(&calls),
	}, updater.Result{
		CommitMessage: "Update app to 1.3.0",
		ChangedFiles:  []string{ws.output},
	})
	require.NoError(t, err)

	assert.Empty(t, calls)

	branch, err := ws.repo.CurrentBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}

func TestPublish_leaves_unrelated_changes(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)

	notes := filepath.Join(ws.repo.Dir, "NOTES.md")
	require.NoError(t, os.WriteFile(notes, []byte("v1\n"), 0o600))
	gitCmd(t, ws.repo.Dir, "add", "NOTES.md")
	gitCmd(t, ws.repo.Dir, "commit", "-m", "notes")
	require.NoError(t, os.WriteFile(notes, []byte("v2\n"), 0o600))

	var calls []prCall

	err := prer.Publish(context.Background(), prer.Config{
		Repo:     ws.repo,
		Provider: recordingProvider(&calls),
	}, ws.change(t))
	require.NoError(t, err)
	require.Len(t, calls, 1)

	assert.Equal(
		t,
		"values.yaml",
		strings.TrimSpace(gitOut(t, ws.remote, "show", "--name-only", "--pretty=", prer.DefaultBranch)),
	)

	changed, err := ws.repo.GetChangedFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"NOTES.md"}, changed)
}

func TestPublish_provider_error(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)

	errBoom := errors.New("boom")

	err := prer.Publish(context.Background(), prer.Config{
		Repo:          ws.repo,
		PrimaryBranch: "main",
		Provider: git.GitProviderFunc(
			func(context.Context, string, string, string, string) error {
				return errBoom
			},
		),
	}, ws.change(t))

	require.ErrorIs(t, err, errBoom)
	assert.ErrorContains(t, err, "create PR for "+prer.DefaultBranch)
}

func TestPublish_missing_repo(t *testing.T) {
	t.Parallel()

	err := prer.Publish(context.Background(), prer.Config{}, updater.Result{
		CommitMessage: "Update app to 1.3.0",
	})

	assert.ErrorContains(t, err, "repository must be set")
}

func TestRenderBody(t *testing.T) {
	t.Parallel()

	res := updater.Result{
		CommitMessage: "Update a to 2",
		Report:        "a: updated",
		Records:       []manifest.Record{{KeyPath: "a"}},
	}

	assert.Equal(
		t,
		"Automated container image update.\n\na: updated\n",
		prer.RenderBodyForTest("", "b", res),
	)
	assert.Equal(
		t,
		"1 change on b: Update a to 2",
		prer.RenderBodyForTest("{count} change on {branch}: {commit_message}", "b", res),
	)
}

func gitOut(tb testing.TB, dir string, args ...string) string {
	tb.Helper()

	//nolint:gosec // test helper
	cmd := oe.CommandContext(context.Background(), "git", args...)
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()
	require.NoError(tb, err, string(out))

	return string(out)
}

func gitCmd(tb testing.TB, dir string, args ...string) {
	tb.Helper()

	gitOut(tb, dir, args...)
}
