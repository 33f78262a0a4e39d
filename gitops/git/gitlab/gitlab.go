// Package gitlab implements a git.GitProvider that opens merge
// requests on GitLab for image update branches.
package gitlab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	gl "gitlab.com/gitlab-org/api/client-go"
)

// Config holds the settings needed to create a GitLab
// merge request provider.
type Config struct {
	// Host is the base URL of the GitLab instance
	// (e.g. "https://gitlab.com").
	Host string
	// Repo is the full project path
	// (e.g. "org/project").
	Repo string
	// AccessToken is a personal or project access
	// token used for authentication.
	AccessToken string
	// Labels are set on every created merge request.
	Labels []string
	// RemoveSourceBranch asks GitLab to delete the
	// update branch once the merge request is merged.
	RemoveSourceBranch bool
	// HTTPClient is used for API calls. Defaults to the
	// client-go default.
	HTTPClient *http.Client
}

// Provider creates merge requests on GitLab.
//
// Pattern: Strategy -- implements git.GitProvider.
type Provider struct {
	client       *gl.Client
	repo         string
	labels       []string
	removeSource bool
}

// NewProvider validates cfg and returns a Provider
// ready to create merge requests.
func NewProvider(cfg Config) (*Provider, error) {
	const errCtx = "creating gitlab provider"

	if cfg.AccessToken == "" {
		return nil, fmt.Errorf(
			"%s: access token must be set", errCtx,
		)
	}

	if cfg.Repo == "" {
		return nil, fmt.Errorf(
			"%s: repo must be set", errCtx,
		)
	}

	host := cfg.Host
	if host == "" {
		host = "https://gitlab.com"
	}

	opts := []gl.ClientOptionFunc{gl.WithBaseURL(host)}
	if cfg.HTTPClient != nil {
		opts = append(opts, gl.WithHTTPClient(cfg.HTTPClient))
	}

	client, err := gl.NewClient(cfg.AccessToken, opts...)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: new client: %w", errCtx, err,
		)
	}

	return &Provider{
		client:       client,
		repo:         cfg.Repo,
		labels:       cfg.Labels,
		removeSource: cfg.RemoveSourceBranch,
	}, nil
}

// CreatePR creates a merge request from branch "from"
// into branch "to" with body as description. If a MR
// already exists (HTTP 409) the error is suppressed.
func (p *Provider) CreatePR(
	ctx context.Context,
	from string,
	to string,
	title string,
	body string,
) error {
	const errCtx = "creating gitlab merge request"

	opts := gl.CreateMergeRequestOptions{
		Title:        &title,
		Description:  &body,
		SourceBranch: &from,
		TargetBranch: &to,
	}

	if len(p.labels) > 0 {
		labels := gl.LabelOptions(p.labels)
		opts.Labels = &labels
	}

	if p.removeSource {
		opts.RemoveSourceBranch = &p.removeSource
	}

	created, resp, err := p.client.MergeRequests.CreateMergeRequest(
		p.repo, &opts, gl.WithContext(ctx),
	)
	if err == nil {
		slog.Info(
			"created merge request",
			"url", created.WebURL,
		)

		return nil
	}

	// HTTP 409: MR already exists for this source
	// branch.
	if resp != nil &&
		resp.StatusCode == http.StatusConflict {
		slog.Info(
			"reusing existing merge request",
			"branch", from,
		)

		return nil
	}

	// client-go has already drained the body into the
	// *gl.ErrorResponse.
	var apiErr *gl.ErrorResponse
	if errors.As(err, &apiErr) {
		slog.Warn(
			"gitlab api error",
			"message", apiErr.Message,
			"body", string(apiErr.Body),
		)
	}

	return fmt.Errorf("%s: %w", errCtx, err)
}
