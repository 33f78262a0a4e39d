package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	gh "github.com/google/go-github/v68/github"
)

// Config holds the settings needed to create a GitHub
// pull request provider.
type Config struct {
	// RepoOwner is the GitHub user or organisation
	// that owns the repository.
	RepoOwner string
	// Repo is the repository name (without owner).
	Repo string
	// AccessToken is a personal access token or
	// GitHub App token used for authentication.
	AccessToken string
	// EnterpriseHost is an optional GitHub Enterprise
	// hostname (e.g. "git.corp.example.com"). Leave
	// empty for github.com.
	EnterpriseHost string
	// APIURL overrides the REST API base URL. It wins
	// over EnterpriseHost.
	APIURL string
	// Labels are added to every created pull request.
	Labels []string
	// HTTPClient is used for API calls. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

// Provider creates pull requests on GitHub.
//
// Pattern: Strategy -- implements git.GitProvider.
type Provider struct {
	client    *gh.Client
	repoOwner string
	repo      string
	labels    []string
}

// NewProvider validates cfg and returns a Provider
// ready to create pull requests.
func NewProvider(cfg Config) (*Provider, error) {
	const errCtx = "creating github provider"

	if cfg.RepoOwner == "" {
		return nil, fmt.Errorf(
			"%s: repo owner must be set", errCtx,
		)
	}

	if cfg.Repo == "" {
		return nil, fmt.Errorf(
			"%s: repo must be set", errCtx,
		)
	}

	if cfg.AccessToken == "" {
		return nil, fmt.Errorf(
			"%s: access token must be set", errCtx,
		)
	}

	client := gh.NewClient(cfg.HTTPClient).
		WithAuthToken(cfg.AccessToken)

	switch {
	case cfg.APIURL != "":
		base, err := url.Parse(
			strings.TrimSuffix(cfg.APIURL, "/") + "/",
		)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: api url: %w", errCtx, err,
			)
		}

		client.BaseURL = base

	case cfg.EnterpriseHost != "":
		baseURL := "https://" +
			cfg.EnterpriseHost + "/api/v3/"
		uploadURL := "https://" +
			cfg.EnterpriseHost + "/api/uploads/"

		var err error

		client, err = client.WithEnterpriseURLs(
			baseURL, uploadURL,
		)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: enterprise urls: %w",
				errCtx, err,
			)
		}
	}

	return &Provider{
		client:    client,
		repoOwner: cfg.RepoOwner,
		repo:      cfg.Repo,
		labels:    cfg.Labels,
	}, nil
}

// CreatePR creates a pull request from branch "from"
// into branch "to" and applies the configured labels. If
// a PR already exists (HTTP 422) the error is suppressed;
// the force-pushed branch already updated it.
func (p *Provider) CreatePR(
	ctx context.Context,
	from string,
	to string,
	title string,
	body string,
) error {
	const errCtx = "creating github pull request"

	pr := &gh.NewPullRequest{
		Title: &title,
		Head:  &from,
		Base:  &to,
		Body:  &body,
	}

	created, resp, err := p.client.PullRequests.Create(
		ctx, p.repoOwner, p.repo, pr,
	)
	if err == nil {
		slog.Info(
			"created pull request",
			"url", created.GetHTMLURL(),
			"number", created.GetNumber(),
		)

		return p.label(ctx, created.GetNumber())
	}

	// HTTP 422: PR already exists for this
	// head/base pair.
	if resp != nil &&
		resp.StatusCode ==
			http.StatusUnprocessableEntity {
		slog.Info(
			"reusing existing pull request",
			"branch", from,
		)

		return nil
	}

	logError(err)

	return fmt.Errorf("%s: %w", errCtx, err)
}

func (p *Provider) label(ctx context.Context, number int) error {
	const errCtx = "labelling github pull request"

	if len(p.labels) == 0 {
		return nil
	}

	_, _, err := p.client.Issues.AddLabelsToIssue(
		ctx, p.repoOwner, p.repo, number, p.labels,
	)
	if err != nil {
		logError(err)

		return fmt.Errorf("%s #%d: %w", errCtx, number, err)
	}

	return nil
}

// logError logs the details of a GitHub API error. go-github
// has already consumed the response body into the
// *gh.ErrorResponse.
func logError(err error) {
	var apiErr *gh.ErrorResponse
	if !errors.As(err, &apiErr) {
		return
	}

	details := make([]string, 0, len(apiErr.Errors))
	for _, e := range apiErr.Errors {
		parts := slices.DeleteFunc(
			[]string{e.Resource, e.Field, e.Code, e.Message},
			func(s string) bool { return s == "" },
		)
		details = append(details, strings.Join(parts, " "))
	}

	attrs := []any{"message", apiErr.Message}

	if apiErr.Response != nil {
		attrs = append(attrs, "status", apiErr.Response.StatusCode)
	}

	if len(details) > 0 {
		attrs = append(attrs, "errors", details)
	}

	if apiErr.DocumentationURL != "" {
		attrs = append(attrs, "documentation_url", apiErr.DocumentationURL)
	}

	slog.Warn("github api error", attrs...)
}
