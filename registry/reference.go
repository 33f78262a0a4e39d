package registry

import (
	"fmt"
	"strings"

	"github.com/distribution/reference"
)

// Reference identifies a repository on a registry.
type Reference struct {
	// Host is the registry host, e.g. "ghcr.io".
	Host string
	// Repository is the path below the host, e.g.
	// "org/app".
	Repository string
}

// String returns "<host>/<repository>".
func (r Reference) String() string {
	return r.Host + "/" + r.Repository
}

// ParseReference splits a declared image string into registry
// host and repository path. The host is always the literal
// first path segment: short names that would be normalised
// onto Docker Hub ("nginx", "myorg/app") fail with
// UnsupportedRegistryError naming that segment. Docker Hub
// images are spelled "docker.io/<repo>"; single-segment
// repositories there get the "library/" prefix. A tag or
// digest suffix on the image string is ignored.
func ParseReference(image string) (Reference, error) {
	const errCtx = "parsing image reference"

	named, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return Reference{}, fmt.Errorf(
			"%s %q: %w", errCtx, image, err,
		)
	}

	host, _, _ := strings.Cut(image, "/")
	if reference.Domain(named) != host {
		return Reference{}, &UnsupportedRegistryError{Host: host}
	}

	return Reference{
		Host:       reference.Domain(named),
		Repository: reference.Path(named),
	}, nil
}
