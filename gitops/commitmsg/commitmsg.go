package commitmsg

import (
	"strings"

	"github.com/valyala/fasttemplate"
)

// Default templates. Available variables: {key}, {image},
// {repo}, {old_tag}, {old_digest}, {tag}, {digest}.
const (
	DefaultCommit    = "Update {key} to {tag}"
	DefaultChanged   = "{key}: image version updated from {repo}:{old_tag} to {repo}:{tag}"
	DefaultUnchanged = "{key}: no change in image version {repo}:{tag}"
)

const (
	fragmentSep = ", "
	lineSep     = "\n"
)

// Templates holds the formats used for fragments and report
// lines. Empty fields fall back to the defaults.
type Templates struct {
	Commit    string
	Changed   string
	Unchanged string
}

// Entry is the outcome for one image key.
type Entry struct {
	// KeyPath is the dotted key-path of the image.
	KeyPath string
	// Image is "<host>/<repository>".
	Image string
	// Repository is the repository path below the host.
	Repository string
	OldTag     string
	OldDigest  string
	Tag        string
	Digest     string
	// Changed is true when the output document was
	// rewritten.
	Changed bool
}

// Builder collects entries in processing order. The zero value
// is not usable; create one with NewBuilder.
type Builder struct {
	tpl       Templates
	fragments []string
	lines     []string
}

// NewBuilder returns an empty Builder rendering with tpl.
func NewBuilder(tpl Templates) *Builder {
	if tpl.Commit == "" {
		tpl.Commit = DefaultCommit
	}

	if tpl.Changed == "" {
		tpl.Changed = DefaultChanged
	}

	if tpl.Unchanged == "" {
		tpl.Unchanged = DefaultUnchanged
	}

	return &Builder{tpl: tpl}
}

// Add renders e and appends its report line, plus a commit
// fragment when e.Changed is set. It returns the report line.
func (b *Builder) Add(e Entry) string {
	vars := map[string]interface{}{
		"key":        e.KeyPath,
		"image":      e.Image,
		"repo":       e.Repository,
		"old_tag":    e.OldTag,
		"old_digest": e.OldDigest,
		"tag":        e.Tag,
		"digest":     e.Digest,
	}

	lineTpl := b.tpl.Unchanged

	if e.Changed {
		lineTpl = b.tpl.Changed

		b.fragments = append(
			b.fragments,
			fasttemplate.ExecuteStringStd(b.tpl.Commit, "{", "}", vars),
		)
	}

	line := fasttemplate.ExecuteStringStd(lineTpl, "{", "}", vars)
	b.lines = append(b.lines, line)

	return line
}

// CommitMessage joins the commit fragments with ", ". It is
// empty when nothing changed.
func (b *Builder) CommitMessage() string {
	return strings.Join(b.fragments, fragmentSep)
}

// Report joins the report lines with newlines.
func (b *Builder) Report() string {
	return strings.Join(b.lines, lineSep)
}
