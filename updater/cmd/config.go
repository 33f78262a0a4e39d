package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/byte4ever/image_updater/gitops/git"
	"github.com/byte4ever/image_updater/gitops/git/bitbucket"
	"github.com/byte4ever/image_updater/gitops/git/github"
	"github.com/byte4ever/image_updater/gitops/git/gitlab"
	"github.com/byte4ever/image_updater/registry"
)

const envPrefix = "IMAGE_UPDATER"

const (
	keyLogLevel          = "log_level"
	keyPlan              = "plan"
	keyCommitTemplate    = "commit_template"
	keyChangedTemplate   = "changed_template"
	keyUnchangedTemplate = "unchanged_template"
	keyGHCRToken         = "ghcr_token"
	keyGitLabUsername    = "gitlab_username"
	keyGitLabToken       = "gitlab_token"
	keyDockerUsername    = "docker_username"
	keyDockerPassword    = "docker_password"
	keyOutputFile        = "github_output"
	keySummaryFile       = "github_step_summary"
	keyPublish           = "publish"
	keyDryRun            = "dry_run"
	keyRepoDir           = "repo_dir"
	keyPrimaryBranch     = "primary_branch"
	keyBranch            = "branch"
	keyBodyTemplate      = "pr_body_template"
	keyLabels            = "pr_labels"
	keyGitServer         = "git_server"
	keyGitHubOwner       = "github_repo_owner"
	keyGitHubRepo        = "github_repo"
	keyGitHubToken       = "github_token"
	keyGitHubEnterprise  = "github_enterprise_host"
	keyGitLabHost        = "gitlab_host"
	keyGitLabRepo        = "gitlab_repo"
	keyGitLabAPIToken    = "gitlab_access_token"
	keyBitbucketEndpoint = "bitbucket_api_endpoint"
	keyBitbucketUser     = "bitbucket_user"
	keyBitbucketPassword = "bitbucket_password"
)

// Registry endpoints of the built-in registrations.
const (
	ghcrHost        = "ghcr.io"
	ghcrRealm       = "https://ghcr.io/token"
	gitlabHost      = "registry.gitlab.com"
	gitlabRealm     = "https://gitlab.com/jwt/auth"
	gitlabService   = "container_registry"
	dockerHubHost   = "docker.io"
	dockerHubRealm  = "https://auth.docker.io/token"
	dockerHubAPI    = "https://registry-1.docker.io"
	dockerHubServer = "registry.docker.io"
)

var errUnknownServer = errors.New("unknown git server")

// providerSettings bundles provider-specific values to
// keep newGitProvider under the 4-argument limit.
type providerSettings struct {
	ghRepoOwner  string
	ghRepo       string
	ghToken      string
	ghEnterprise string
	glHost       string
	glRepo       string
	glToken      string
	bbEndpoint   string
	bbUser       string
	bbPassword   string
	labels       []string
}

type settings struct {
	PlanFile          string
	CommitTemplate    string
	ChangedTemplate   string
	UnchangedTemplate string

	GHCRToken      string
	GitLabUsername string
	GitLabToken    string
	DockerUsername string
	DockerPassword string

	OutputFile  string
	SummaryFile string

	Publish       bool
	DryRun        bool
	RepoDir       string
	PrimaryBranch string
	Branch        string
	BodyTemplate  string
	GitServer     string
	Provider      providerSettings
}

// envAliases lists the unprefixed variables CI runners
// already provide, checked after the prefixed name.
var envAliases = map[string][]string{
	keyGHCRToken:      {"GHCR_TOKEN"},
	keyGitLabUsername: {"GITLAB_USERNAME"},
	keyGitLabToken:    {"GITLAB_TOKEN"},
	keyOutputFile:     {"GITHUB_OUTPUT"},
	keySummaryFile:    {"GITHUB_STEP_SUMMARY"},
	keyGitHubToken:    {"GITHUB_TOKEN"},
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	fl := cmd.Flags()

	fl.String(keyLogLevel, "info", "Log level (debug, info, warn, error)")
	fl.String(keyPlan, "update-images.yaml", "Update plan file")
	fl.String(keyCommitTemplate, "", "Commit message fragment template")
	fl.String(keyChangedTemplate, "", "Report line template for updated keys")
	fl.String(keyUnchangedTemplate, "", "Report line template for unchanged keys")

	fl.String(keyGHCRToken, "", "Bearer token for ghcr.io")
	fl.String(keyGitLabUsername, "", "Username for registry.gitlab.com")
	fl.String(keyGitLabToken, "", "Token for registry.gitlab.com")
	fl.String(keyDockerUsername, "", "Username for docker.io")
	fl.String(keyDockerPassword, "", "Password or token for docker.io")

	fl.String(keyOutputFile, "", "File receiving commit-message=<msg>")
	fl.String(keySummaryFile, "", "File receiving the change report")

	fl.Bool(keyPublish, false, "Commit, push and open a pull request")
	fl.Bool(keyDryRun, false, "Commit locally but skip push and PR creation")
	fl.String(keyRepoDir, ".", "Git work tree holding the output documents")
	fl.String(keyPrimaryBranch, "", "Pull request target branch (default: the checked out branch)")
	fl.String(keyBranch, "", "Deployment branch (default image-updater/images)")
	fl.String(keyBodyTemplate, "", "Pull request body template")
	fl.StringSlice(keyLabels, nil, "Labels for created pull requests")

	fl.String(keyGitServer, "github", "Git hosting platform: github, gitlab, bitbucket or none")
	fl.String(keyGitHubOwner, "", "GitHub repository owner")
	fl.String(keyGitHubRepo, "", "GitHub repository name")
	fl.String(keyGitHubToken, "", "GitHub access token")
	fl.String(keyGitHubEnterprise, "", "GitHub Enterprise hostname")
	fl.String(keyGitLabHost, "", "GitLab instance URL")
	fl.String(keyGitLabRepo, "", "GitLab project path (org/project)")
	fl.String(keyGitLabAPIToken, "", "GitLab API access token")
	fl.String(keyBitbucketEndpoint, "", "Bitbucket Server pull-requests REST URL")
	fl.String(keyBitbucketUser, "", "Bitbucket API username")
	fl.String(keyBitbucketPassword, "", "Bitbucket API password or token")

	_ = v.BindPFlags(fl)
}

func initConfig(v *viper.Viper, configFile string) error {
	const errCtx = "loading configuration"

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, aliases := range envAliases {
		names := append(
			[]string{envPrefix + "_" + strings.ToUpper(key)},
			aliases...,
		)

		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	if configFile == "" {
		return nil
	}

	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

func loadSettings(v *viper.Viper) (settings, error) {
	cfg := settings{
		PlanFile:          v.GetString(keyPlan),
		CommitTemplate:    v.GetString(keyCommitTemplate),
		ChangedTemplate:   v.GetString(keyChangedTemplate),
		UnchangedTemplate: v.GetString(keyUnchangedTemplate),
		GHCRToken:         v.GetString(keyGHCRToken),
		GitLabUsername:    v.GetString(keyGitLabUsername),
		GitLabToken:       v.GetString(keyGitLabToken),
		DockerUsername:    v.GetString(keyDockerUsername),
		DockerPassword:    v.GetString(keyDockerPassword),
		OutputFile:        v.GetString(keyOutputFile),
		SummaryFile:       v.GetString(keySummaryFile),
		Publish:           v.GetBool(keyPublish),
		DryRun:            v.GetBool(keyDryRun),
		RepoDir:           v.GetString(keyRepoDir),
		PrimaryBranch:     v.GetString(keyPrimaryBranch),
		Branch:            v.GetString(keyBranch),
		BodyTemplate:      v.GetString(keyBodyTemplate),
		GitServer:         v.GetString(keyGitServer),
		Provider: providerSettings{
			ghRepoOwner:  v.GetString(keyGitHubOwner),
			ghRepo:       v.GetString(keyGitHubRepo),
			ghToken:      v.GetString(keyGitHubToken),
			ghEnterprise: v.GetString(keyGitHubEnterprise),
			glHost:       v.GetString(keyGitLabHost),
			glRepo:       v.GetString(keyGitLabRepo),
			glToken:      v.GetString(keyGitLabAPIToken),
			bbEndpoint:   v.GetString(keyBitbucketEndpoint),
			bbUser:       v.GetString(keyBitbucketUser),
			bbPassword:   v.GetString(keyBitbucketPassword),
			labels:       v.GetStringSlice(keyLabels),
		},
	}

	if cfg.PlanFile == "" {
		return settings{}, errors.New("plan file must be set")
	}

	return cfg, nil
}

// registrations builds the registry table. Pattern: Strategy
// -- each host gets the authentication its registry expects.
func registrations(cfg settings) ([]registry.Registration, error) {
	const errCtx = "building registry table"

	var ghcr registry.Strategy

	if cfg.GHCRToken != "" {
		st, err := registry.NewStaticToken(cfg.GHCRToken)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		ghcr = st
	} else {
		ex, err := registry.NewTokenExchange(registry.ExchangeConfig{
			Realm:   ghcrRealm,
			Service: ghcrHost,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		ghcr = ex
	}

	if cfg.GitLabUsername == "" && cfg.GitLabToken == "" {
		slog.Warn(
			"no GitLab registry credentials, using anonymous token exchange",
			"host", gitlabHost,
		)
	}

	gl, err := registry.NewTokenExchange(registry.ExchangeConfig{
		Realm:    gitlabRealm,
		Service:  gitlabService,
		Username: cfg.GitLabUsername,
		Password: cfg.GitLabToken,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", errCtx, gitlabHost, err)
	}

	hub, err := registry.NewTokenExchange(registry.ExchangeConfig{
		Realm:    dockerHubRealm,
		Service:  dockerHubServer,
		Username: cfg.DockerUsername,
		Password: cfg.DockerPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", errCtx, dockerHubHost, err)
	}

	return []registry.Registration{
		{Pattern: ghcrHost, Strategy: ghcr},
		{Pattern: gitlabHost, Strategy: gl},
		{Pattern: dockerHubHost, APIBase: dockerHubAPI, Strategy: hub},
	}, nil
}

// newGitProvider creates a git.GitProvider based on the
// server name. Pattern: Factory -- selects platform
// implementation at runtime. "none" pushes without a pull
// request.
func newGitProvider(
	server string,
	ps providerSettings,
) (git.GitProvider, error) {
	const errCtx = "creating git provider"

	switch server {
	case "github":
		p, err := github.NewProvider(github.Config{
			RepoOwner:      ps.ghRepoOwner,
			Repo:           ps.ghRepo,
			AccessToken:    ps.ghToken,
			EnterpriseHost: ps.ghEnterprise,
			Labels:         ps.labels,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return p, nil

	case "gitlab":
		p, err := gitlab.NewProvider(gitlab.Config{
			Host:        ps.glHost,
			Repo:        ps.glRepo,
			AccessToken: ps.glToken,
			Labels:      ps.labels,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return p, nil

	case "bitbucket":
		p, err := bitbucket.NewProvider(bitbucket.Config{
			APIEndpoint: ps.bbEndpoint,
			User:        ps.bbUser,
			Password:    ps.bbPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return p, nil

	case "none", "":
		return nil, nil //nolint:nilnil // no provider means push only

	default:
		return nil, fmt.Errorf("%s: %w %q", errCtx, errUnknownServer, server)
	}
}
