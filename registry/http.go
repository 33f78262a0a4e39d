package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// UserAgent identifies this tool on every registry request.
// It can be overridden at build time with -ldflags -X.
var UserAgent = "image-updater/unknown"

// maxBodySize bounds how much of a registry response is read.
// Tag lists of large repositories stay well below it.
const maxBodySize = 16 << 20

// reply is a fully read, successful HTTP response.
type reply struct {
	url    string
	status int
	header http.Header
	body   []byte
}

// get performs a GET with the given headers and reads the
// whole body. Transport failures and non-2xx statuses are
// reported as RegistryRequestError.
func get(
	ctx context.Context,
	hc *http.Client,
	rawURL string,
	header http.Header,
) (*reply, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, rawURL, nil,
	)
	if err != nil {
		return nil, &RegistryRequestError{
			URL: rawURL,
			Err: fmt.Errorf("building request: %w", err),
		}
	}

	for key, vals := range header {
		for _, val := range vals {
			req.Header.Add(key, val)
		}
	}

	req.Header.Set("User-Agent", UserAgent)

	slog.Debug("registry request", "url", rawURL)

	resp, err := hc.Do(req)
	if err != nil {
		return nil, &RegistryRequestError{URL: rawURL, Err: err}
	}

	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &RegistryRequestError{
			URL:    rawURL,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("reading body: %w", err),
		}
	}

	slog.Debug(
		"registry response",
		"url", rawURL,
		"status", resp.StatusCode,
	)

	if resp.StatusCode < http.StatusOK ||
		resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &RegistryRequestError{
			URL:    rawURL,
			Status: resp.StatusCode,
			Body:   string(body),
		}
	}

	return &reply{
		url:    rawURL,
		status: resp.StatusCode,
		header: resp.Header,
		body:   body,
	}, nil
}

// decodeError wraps a body that could not be decoded.
func (r *reply) decodeError(err error) error {
	return &RegistryRequestError{
		URL:    r.url,
		Status: r.status,
		Body:   string(r.body),
		Err:    fmt.Errorf("decoding body: %w", err),
	}
}

func authHeader(cred Credential) http.Header {
	header := http.Header{}

	if cred == nil {
		return header
	}

	if value := cred.Authorization(); value != "" {
		header.Set("Authorization", value)
	}

	return header
}

func clientOrDefault(hc *http.Client) *http.Client {
	if hc == nil {
		return http.DefaultClient
	}

	return hc
}
