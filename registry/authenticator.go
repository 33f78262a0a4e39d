package registry

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
)

// Registration binds a registry host pattern to the strategy
// that authenticates against it.
type Registration struct {
	// Pattern matches the registry host using path.Match
	// syntax, e.g. "ghcr.io" or "*.azurecr.io".
	Pattern string
	// APIBase overrides the registry base URL. Defaults to
	// "https://<host>".
	APIBase string
	// Strategy produces credentials for the host.
	Strategy Strategy
}

// Authenticator selects an authentication strategy per
// registry host from a registration table. Registrations are
// tried in order and the first match wins.
type Authenticator struct {
	registrations []Registration
}

// NewAuthenticator returns an Authenticator holding regs.
func NewAuthenticator(regs ...Registration) *Authenticator {
	return &Authenticator{registrations: regs}
}

// Register appends reg to the table.
func (a *Authenticator) Register(reg Registration) {
	a.registrations = append(a.registrations, reg)
}

func (a *Authenticator) lookup(host string) (Registration, error) {
	for _, reg := range a.registrations {
		if ok, err := path.Match(reg.Pattern, host); err == nil && ok {
			return reg, nil
		}
	}

	return Registration{}, &UnsupportedRegistryError{Host: host}
}

// ResolveCredential runs the strategy registered for the
// reference's host. Hosts without a registration fail with
// UnsupportedRegistryError; no unauthenticated fallback is
// attempted.
func (a *Authenticator) ResolveCredential(
	ctx context.Context,
	ref Reference,
) (Credential, error) {
	const errCtx = "resolving registry credential"

	reg, err := a.lookup(ref.Host)
	if err != nil {
		return nil, err
	}

	if reg.Strategy == nil {
		return nil, &UnsupportedRegistryError{Host: ref.Host}
	}

	cred, err := reg.Strategy.Credential(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf(
			"%s for %s: %w", errCtx, ref.Host, err,
		)
	}

	slog.Debug(
		"resolved registry credential",
		"host", ref.Host,
		"pattern", reg.Pattern,
		"type", fmt.Sprintf("%T", cred),
	)

	return cred, nil
}

// Endpoint returns the repository's API base,
// "<base>/v2/<repository>".
func (a *Authenticator) Endpoint(ref Reference) (string, error) {
	reg, err := a.lookup(ref.Host)
	if err != nil {
		return "", err
	}

	base := reg.APIBase
	if base == "" {
		base = "https://" + ref.Host
	}

	return strings.TrimSuffix(base, "/") + "/v2/" + ref.Repository, nil
}
