// Package versions picks the published tag that best matches a
// requested semantic-version range.
package versions

import (
	"log/slog"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Resolve returns the highest tag in tags that parses as a
// semantic version and satisfies constraint. Tags that do not
// parse are ignored. When constraint is not a valid range (for
// example a literal tag such as "latest") or no tag satisfies
// it, constraint is returned unchanged.
//
// The returned tag keeps its original spelling, so "v1.3.0"
// stays "v1.3.0". Pre-release tags are only considered when the
// constraint itself carries a pre-release.
func Resolve(constraint string, tags []string) string {
	cons, err := semver.NewConstraint(constraint)
	if err != nil {
		slog.Debug(
			"constraint is not a semver range, using as tag",
			"constraint", constraint,
		)

		return constraint
	}

	var (
		best    *semver.Version
		bestTag string
	)

	for _, tag := range tags {
		ver, ok := parseTag(tag)
		if !ok || !cons.Check(ver) {
			continue
		}

		if best == nil || ver.GreaterThan(best) {
			best = ver
			bestTag = tag
		}
	}

	if best == nil {
		slog.Debug(
			"no tag satisfies constraint",
			"constraint", constraint,
			"tags", len(tags),
		)

		return constraint
	}

	return bestTag
}

// parseTag accepts full MAJOR.MINOR.PATCH versions with an
// optional leading "v". Partial versions such as "1.2" or "v1"
// are not treated as versions.
func parseTag(tag string) (*semver.Version, bool) {
	ver, err := semver.StrictNewVersion(strings.TrimPrefix(tag, "v"))
	if err != nil {
		return nil, false
	}

	return ver, true
}
