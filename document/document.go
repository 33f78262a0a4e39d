package document

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/goccy/go-yaml"
)

const defaultFileMode fs.FileMode = 0o644

var errNotMapping = errors.New("top-level node is not a mapping")

// Decode parses a single YAML document into an ordered tree.
// An empty document decodes to an empty tree.
func Decode(raw []byte) (yaml.MapSlice, error) {
	var doc any

	if err := yaml.UnmarshalWithOptions(
		raw, &doc, yaml.UseOrderedMap(),
	); err != nil {
		return nil, &ConfigError{Err: err}
	}

	switch typed := doc.(type) {
	case nil:
		return yaml.MapSlice{}, nil
	case yaml.MapSlice:
		return typed, nil
	default:
		return nil, &ConfigError{
			Err: fmt.Errorf("%w: got %T", errNotMapping, doc),
		}
	}
}

// Encode serialises tree back to YAML with two-space
// indentation and indented sequences.
func Encode(tree yaml.MapSlice) ([]byte, error) {
	out, err := yaml.MarshalWithOptions(
		tree,
		yaml.Indent(2),
		yaml.IndentSequence(true),
	)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	return out, nil
}

// ReadFile loads and decodes the document at path.
func ReadFile(path string) (yaml.MapSlice, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // paths come from the update plan
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}

	tree, err := Decode(raw)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.Path = path
		}

		return nil, err
	}

	return tree, nil
}

// WriteFile encodes tree and replaces the content of path,
// keeping the permissions of an existing file.
func WriteFile(path string, tree yaml.MapSlice) error {
	out, err := Encode(tree)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.Path = path
		}

		return err
	}

	mode := defaultFileMode
	if fi, statErr := os.Stat(path); statErr == nil {
		mode = fi.Mode().Perm()
	}

	if err := os.WriteFile(path, out, mode); err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}

	return nil
}
