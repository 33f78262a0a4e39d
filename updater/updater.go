package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/byte4ever/image_updater/document"
	"github.com/byte4ever/image_updater/gitops/commitmsg"
	"github.com/byte4ever/image_updater/manifest"
	"github.com/byte4ever/image_updater/plan"
	"github.com/byte4ever/image_updater/registry"
	"github.com/byte4ever/image_updater/versions"
)

var (
	errMissingValue = errors.New("missing value")
	errNotString    = errors.New("value is not a string")
)

// Authenticator resolves credentials and API endpoints for
// image references.
type Authenticator interface {
	ResolveCredential(
		ctx context.Context,
		ref registry.Reference,
	) (registry.Credential, error)
	Endpoint(ref registry.Reference) (string, error)
}

// Registry lists tags and fetches manifest config digests.
type Registry interface {
	ListTags(
		ctx context.Context,
		apiBase string,
		cred registry.Credential,
	) ([]string, error)
	FetchConfigDigest(
		ctx context.Context,
		apiBase string,
		tag string,
		cred registry.Credential,
	) (string, error)
}

// Updater runs update plans.
type Updater struct {
	Auth      Authenticator
	Registry  Registry
	Templates commitmsg.Templates
}

// Result is the outcome of a successful run.
type Result struct {
	// CommitMessage joins one fragment per changed key. It
	// is empty when no document was rewritten.
	CommitMessage string
	// Report holds one line per processed key.
	Report string
	// Entries lists every processed key in order.
	Entries []commitmsg.Entry
	// Records lists the applied changes in order.
	Records []manifest.Record
	// ChangedFiles lists the rewritten output documents,
	// without duplicates, in first-write order.
	ChangedFiles []string
}

// Changed reports whether the run rewrote any document.
func (r Result) Changed() bool {
	return len(r.Records) > 0
}

type run struct {
	*Updater
	fields  manifest.Fields
	builder *commitmsg.Builder
	result  Result
	written map[string]struct{}
}

// Run executes p. The returned Result is only meaningful when
// the error is nil.
func (u *Updater) Run(ctx context.Context, p *plan.Plan) (Result, error) {
	const errCtx = "running update plan"

	tpl := u.Templates
	if p.CommitTemplate != "" {
		tpl.Commit = p.CommitTemplate
	}

	if p.ChangedTemplate != "" {
		tpl.Changed = p.ChangedTemplate
	}

	if p.UnchangedTemplate != "" {
		tpl.Unchanged = p.UnchangedTemplate
	}

	r := &run{
		Updater: u,
		fields: manifest.Fields{
			Semver: p.SemverKey,
			Digest: p.DigestKey,
		},
		builder: commitmsg.NewBuilder(tpl),
		written: make(map[string]struct{}),
	}

	for idx, group := range p.Groups {
		if err := r.group(ctx, p, group); err != nil {
			return Result{}, fmt.Errorf(
				"%s: versionUpdates[%d]: %w", errCtx, idx, err,
			)
		}
	}

	r.result.CommitMessage = r.builder.CommitMessage()
	r.result.Report = r.builder.Report()

	slog.Info(
		"update run complete",
		"keys", len(r.result.Entries),
		"changed", len(r.result.Records),
	)

	return r.result, nil
}

func (r *run) group(
	ctx context.Context,
	p *plan.Plan,
	group plan.Group,
) error {
	values, err := group.Values()
	if err != nil {
		return err
	}

	for _, key := range group.ImageTagKeys {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := r.key(ctx, p, group, values, key); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}

	return nil
}

func (r *run) key(
	ctx context.Context,
	p *plan.Plan,
	group plan.Group,
	values yaml.MapSlice,
	key string,
) error {
	sources := strings.Join(group.SourceFiles, ", ")

	image, err := requireString(values, document.Join(key, p.ImageKey), sources)
	if err != nil {
		return err
	}

	constraint, err := requireString(
		values, document.Join(key, p.SemverKey), sources,
	)
	if err != nil {
		return err
	}

	ref, err := registry.ParseReference(image)
	if err != nil {
		var unsupported *registry.UnsupportedRegistryError
		if errors.As(err, &unsupported) {
			return err
		}

		return &document.ConfigError{Path: sources, Err: err}
	}

	cred, err := r.Auth.ResolveCredential(ctx, ref)
	if err != nil {
		return err
	}

	apiBase, err := r.Auth.Endpoint(ref)
	if err != nil {
		return err
	}

	tags, err := r.Registry.ListTags(ctx, apiBase, cred)
	if err != nil {
		return err
	}

	tag := versions.Resolve(constraint, tags)

	dgst, err := r.Registry.FetchConfigDigest(ctx, apiBase, tag, cred)
	if err != nil {
		return err
	}

	rec, err := manifest.ApplyIfChanged(
		group.OutputFile,
		key,
		r.fields,
		manifest.Resolved{Tag: tag, Digest: dgst},
	)
	if err != nil {
		return err
	}

	entry := commitmsg.Entry{
		KeyPath:    key,
		Image:      ref.String(),
		Repository: ref.Repository,
		Tag:        tag,
		Digest:     dgst,
	}

	if rec != nil {
		entry.Changed = true
		entry.OldTag = rec.OldTag
		entry.OldDigest = rec.OldDigest

		r.result.Records = append(r.result.Records, *rec)

		if _, seen := r.written[group.OutputFile]; !seen {
			r.written[group.OutputFile] = struct{}{}
			r.result.ChangedFiles = append(
				r.result.ChangedFiles, group.OutputFile,
			)
		}
	}

	line := r.builder.Add(entry)
	r.result.Entries = append(r.result.Entries, entry)

	slog.Info(line, "image", entry.Image, "constraint", constraint)

	return nil
}

func requireString(
	values yaml.MapSlice,
	keyPath string,
	sources string,
) (string, error) {
	raw, ok := document.Get(values, keyPath)
	if !ok || raw == nil {
		return "", &document.ConfigError{
			Path: sources,
			Err:  fmt.Errorf("%w at %s", errMissingValue, keyPath),
		}
	}

	str, ok := raw.(string)
	if !ok || str == "" {
		return "", &document.ConfigError{
			Path: sources,
			Err:  fmt.Errorf("%w at %s", errNotString, keyPath),
		}
	}

	return str, nil
}
