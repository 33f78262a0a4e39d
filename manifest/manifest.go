// Package manifest compares the tag and digest recorded in an
// output document with freshly resolved values and rewrites the
// document only when they differ.
package manifest

import (
	"fmt"
	"log/slog"

	"github.com/byte4ever/image_updater/document"
)

// Resolved is the tag and digest chosen for one image key in
// the current run.
type Resolved struct {
	Tag    string
	Digest string
}

// State is what an output document currently records for one
// key-path. Missing values are empty strings.
type State struct {
	Tag    string
	Digest string
}

// Record describes an applied change.
type Record struct {
	KeyPath   string
	OldTag    string
	OldDigest string
	NewTag    string
	NewDigest string
}

// Fields names the tag and digest fields below a key-path.
type Fields struct {
	Semver string
	Digest string
}

// ReadState loads the document at path and returns the tag and
// digest recorded at keyPath.
func ReadState(path, keyPath string, fields Fields) (State, error) {
	const errCtx = "reading manifest state"

	tree, err := document.ReadFile(path)
	if err != nil {
		return State{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	tag, _ := document.GetString(tree, document.Join(keyPath, fields.Semver))
	dgst, _ := document.GetString(tree, document.Join(keyPath, fields.Digest))

	return State{Tag: tag, Digest: dgst}, nil
}

// ApplyIfChanged reads the output document at path fresh,
// compares the tag and digest at keyPath with resolved and, if
// either differs, writes both back and persists the whole
// document. It returns the applied change, or nil when the
// document already matched and nothing was written.
func ApplyIfChanged(
	path string,
	keyPath string,
	fields Fields,
	resolved Resolved,
) (*Record, error) {
	const errCtx = "applying manifest update"

	tree, err := document.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	tagPath := document.Join(keyPath, fields.Semver)
	digestPath := document.Join(keyPath, fields.Digest)

	oldTag, _ := document.GetString(tree, tagPath)
	oldDigest, _ := document.GetString(tree, digestPath)

	if oldTag == resolved.Tag && oldDigest == resolved.Digest {
		slog.Debug(
			"manifest already up to date",
			"file", path,
			"key", keyPath,
			"tag", resolved.Tag,
		)

		return nil, nil //nolint:nilnil // nil record means unchanged
	}

	if tree, err = document.Set(tree, tagPath, resolved.Tag); err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, &document.ConfigError{Path: path, Err: err},
		)
	}

	if tree, err = document.Set(tree, digestPath, resolved.Digest); err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, &document.ConfigError{Path: path, Err: err},
		)
	}

	if err := document.WriteFile(path, tree); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info(
		"manifest updated",
		"file", path,
		"key", keyPath,
		"old_tag", oldTag,
		"new_tag", resolved.Tag,
	)

	return &Record{
		KeyPath:   keyPath,
		OldTag:    oldTag,
		OldDigest: oldDigest,
		NewTag:    resolved.Tag,
		NewDigest: resolved.Digest,
	}, nil
}
