package registry

import (
	"context"
	// Register the hash functions go-digest validates against.
	_ "crypto/sha256"
	_ "crypto/sha512"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// MediaTypeDockerManifest is the Docker image manifest v2,
// schema 2 media type.
const MediaTypeDockerManifest = "application/vnd.docker.distribution.manifest.v2+json"

// maxTagPages stops a registry that keeps returning "next"
// links from looping forever.
const maxTagPages = 1000

var (
	errEmptyDigest  = errors.New("config.digest is empty")
	errTooManyPages = fmt.Errorf("tag list exceeds %d pages", maxTagPages)
)

// tagList is the body of GET /v2/<repo>/tags/list.
type tagList struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// Client performs registry API calls.
type Client struct {
	httpClient *http.Client
}

// NewClient returns a Client using hc, or http.DefaultClient
// when hc is nil.
func NewClient(hc *http.Client) *Client {
	return &Client{httpClient: clientOrDefault(hc)}
}

// ListTags returns the tags of the repository at apiBase
// ("<scheme>://<host>/v2/<repo>"). Paginated answers are
// followed through their Link rel="next" header. Duplicate
// tags across pages are dropped.
func (c *Client) ListTags(
	ctx context.Context,
	apiBase string,
	cred Credential,
) ([]string, error) {
	const errCtx = "listing tags"

	var (
		tags []string
		seen = make(map[string]struct{})
		next = apiBase + "/tags/list"
	)

	for page := 0; next != ""; page++ {
		if page == maxTagPages {
			return nil, fmt.Errorf("%s: %w", errCtx, &RegistryRequestError{
				URL: next,
				Err: errTooManyPages,
			})
		}

		rep, err := get(ctx, c.httpClient, next, authHeader(cred))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		var tl tagList
		if err := json.Unmarshal(rep.body, &tl); err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, rep.decodeError(err))
		}

		for _, tag := range tl.Tags {
			if _, dup := seen[tag]; dup {
				continue
			}

			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}

		following, err := nextPage(next, rep.header.Get("Link"))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		if following == next {
			break
		}

		next = following
	}

	return tags, nil
}

// FetchConfigDigest returns the config digest of the manifest
// tagged tag in the repository at apiBase.
func (c *Client) FetchConfigDigest(
	ctx context.Context,
	apiBase string,
	tag string,
	cred Credential,
) (string, error) {
	const errCtx = "fetching config digest"

	header := authHeader(cred)
	header.Set("Accept", strings.Join([]string{
		MediaTypeDockerManifest,
		ocispec.MediaTypeImageManifest,
	}, ", "))

	rep, err := get(ctx, c.httpClient, apiBase+"/manifests/"+tag, header)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	var manifest ocispec.Manifest
	if err := json.Unmarshal(rep.body, &manifest); err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, rep.decodeError(err))
	}

	if manifest.Config.Digest == "" {
		return "", &DigestNotFoundError{Tag: tag, Err: errEmptyDigest}
	}

	dgst, err := digest.Parse(string(manifest.Config.Digest))
	if err != nil {
		return "", &DigestNotFoundError{Tag: tag, Err: err}
	}

	return dgst.String(), nil
}

// nextPage extracts the rel="next" target of an RFC 5988 Link
// header and resolves it against the current URL. It returns
// "" when there is no next page.
func nextPage(current, link string) (string, error) {
	if link == "" {
		return "", nil
	}

	for _, part := range strings.Split(link, ",") {
		target, params, ok := strings.Cut(part, ";")
		if !ok || !isNextRel(params) {
			continue
		}

		target = strings.TrimSpace(target)
		target = strings.TrimPrefix(target, "<")
		target = strings.TrimSuffix(target, ">")

		base, err := url.Parse(current)
		if err != nil {
			return "", fmt.Errorf("parsing %q: %w", current, err)
		}

		ref, err := url.Parse(target)
		if err != nil {
			return "", fmt.Errorf("parsing link %q: %w", target, err)
		}

		return base.ResolveReference(ref).String(), nil
	}

	return "", nil
}

func isNextRel(params string) bool {
	for _, param := range strings.Split(params, ";") {
		key, val, ok := strings.Cut(strings.TrimSpace(param), "=")
		if ok && strings.EqualFold(key, "rel") &&
			strings.Trim(val, `"`) == "next" {
			return true
		}
	}

	return false
}
