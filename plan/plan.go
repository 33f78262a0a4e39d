// Package plan loads the update plan: which source documents
// describe which images, and which output document records the
// resolved tag and digest for each of them.
package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/byte4ever/image_updater/document"
)

var (
	errMissingField = errors.New("field must be set")
	errEmptyGroup   = errors.New("version update is incomplete")
	errDuplicateKey = errors.New("duplicate image tag key")
	errNoGroups     = errors.New("no version updates configured")
)

// Plan is the parsed update-plan document. It is read once per
// run and not modified afterwards.
type Plan struct {
	// ImageKey names the field holding "<host>/<repo>".
	ImageKey string `yaml:"imageKey"`
	// SemverKey names the field holding the version
	// constraint (sources) or the current tag (output).
	SemverKey string `yaml:"semverKey"`
	// DigestKey names the field holding the current
	// digest in the output document.
	DigestKey string `yaml:"digestKey"`
	// Groups are processed in declaration order.
	Groups []Group `yaml:"versionUpdates"`

	// CommitTemplate optionally overrides the per-change
	// commit message fragment.
	CommitTemplate string `yaml:"commitTemplate,omitempty"`
	// ChangedTemplate optionally overrides the report line
	// for an updated key.
	ChangedTemplate string `yaml:"changedTemplate,omitempty"`
	// UnchangedTemplate optionally overrides the report
	// line for a key that was already up to date.
	UnchangedTemplate string `yaml:"unchangedTemplate,omitempty"`
}

// Group ties a set of merged source documents to one output
// document.
type Group struct {
	SourceFiles  []string `yaml:"sourceFiles"`
	OutputFile   string   `yaml:"outputFile"`
	ImageTagKeys []string `yaml:"imageTagKeys"`
}

// Load reads and validates the plan at path. Relative source
// and output paths are resolved against the directory holding
// the plan and made absolute.
func Load(path string) (*Plan, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return nil, &document.IOError{
			Op: "read", Path: path, Err: err,
		}
	}

	pl, err := Parse(raw)
	if err != nil {
		return nil, withPath(err, path)
	}

	pl.resolvePaths(filepath.Dir(path))

	return pl, nil
}

// Parse decodes and validates a plan from raw YAML. Paths are
// left as written.
func Parse(raw []byte) (*Plan, error) {
	var pl Plan

	if err := yaml.Unmarshal(raw, &pl); err != nil {
		return nil, &document.ConfigError{Err: err}
	}

	if err := pl.Validate(); err != nil {
		return nil, err
	}

	return &pl, nil
}

// Validate checks that the plan names its fields, that every
// group is complete and that no key-path is declared twice for
// the same output document.
func (p *Plan) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"imageKey", p.ImageKey},
		{"semverKey", p.SemverKey},
		{"digestKey", p.DigestKey},
	}

	for _, fd := range fields {
		if fd.value == "" {
			return &document.ConfigError{
				Err: fmt.Errorf("%s: %w", fd.name, errMissingField),
			}
		}
	}

	if len(p.Groups) == 0 {
		return &document.ConfigError{Err: errNoGroups}
	}

	seen := make(map[string]map[string]struct{})

	for idx, gr := range p.Groups {
		if len(gr.SourceFiles) == 0 ||
			gr.OutputFile == "" ||
			len(gr.ImageTagKeys) == 0 {
			return &document.ConfigError{
				Err: fmt.Errorf(
					"versionUpdates[%d]: %w: sourceFiles, "+
						"outputFile and imageTagKeys are required",
					idx, errEmptyGroup,
				),
			}
		}

		keys, ok := seen[gr.OutputFile]
		if !ok {
			keys = make(map[string]struct{})
			seen[gr.OutputFile] = keys
		}

		for _, key := range gr.ImageTagKeys {
			if _, dup := keys[key]; dup {
				return &document.ConfigError{
					Err: fmt.Errorf(
						"%w %q for output %s",
						errDuplicateKey, key, gr.OutputFile,
					),
				}
			}

			keys[key] = struct{}{}
		}
	}

	return nil
}

// Values reads the group's source documents in order and
// deep-merges them, later documents overriding earlier ones.
func (g Group) Values() (yaml.MapSlice, error) {
	const errCtx = "loading source documents"

	trees := make([]yaml.MapSlice, 0, len(g.SourceFiles))

	for _, src := range g.SourceFiles {
		tree, err := document.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		trees = append(trees, tree)
	}

	return document.MergeAll(trees...), nil
}

func (p *Plan) resolvePaths(baseDir string) {
	for idx := range p.Groups {
		gr := &p.Groups[idx]

		for si, src := range gr.SourceFiles {
			gr.SourceFiles[si] = resolve(baseDir, src)
		}

		gr.OutputFile = resolve(baseDir, gr.OutputFile)
	}
}

func resolve(baseDir, path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}

	return path
}

func withPath(err error, path string) error {
	var ce *document.ConfigError
	if errors.As(err, &ce) && ce.Path == "" {
		ce.Path = path
	}

	return err
}
