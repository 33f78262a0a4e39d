package document

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

var (
	errEmptyPath      = errors.New("empty key-path segment")
	errBadIndex       = errors.New("sequence index out of range")
	errNotTraversable = errors.New("cannot descend into scalar")
)

// splitPath breaks a dotted key-path into segments. Empty
// segments (leading, trailing or doubled dots) are rejected.
func splitPath(keyPath string) ([]string, error) {
	segs := strings.Split(keyPath, ".")
	for _, seg := range segs {
		if seg == "" {
			return nil, fmt.Errorf("%w in %q", errEmptyPath, keyPath)
		}
	}

	return segs, nil
}

// Join concatenates key-path segments with dots.
func Join(segs ...string) string {
	return strings.Join(segs, ".")
}

// keyString renders a mapping key for comparison with a path
// segment. Non-string keys (e.g. integers) compare by their
// printed form.
func keyString(key any) string {
	if s, ok := key.(string); ok {
		return s
	}

	return fmt.Sprint(key)
}

func indexOf(ms yaml.MapSlice, seg string) int {
	for idx := range ms {
		if keyString(ms[idx].Key) == seg {
			return idx
		}
	}

	return -1
}

// Get returns the node at keyPath. The boolean is false when
// any segment is missing, the path is malformed, or a scalar
// sits where a mapping or sequence was expected.
func Get(tree yaml.MapSlice, keyPath string) (any, bool) {
	segs, err := splitPath(keyPath)
	if err != nil {
		return nil, false
	}

	var cur any = tree

	for _, seg := range segs {
		switch node := cur.(type) {
		case yaml.MapSlice:
			idx := indexOf(node, seg)
			if idx < 0 {
				return nil, false
			}

			cur = node[idx].Value
		case []any:
			idx, convErr := strconv.Atoi(seg)
			if convErr != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}

			cur = node[idx]
		default:
			return nil, false
		}
	}

	return cur, true
}

// GetString returns the scalar at keyPath rendered as a
// string. Null and non-scalar nodes are reported as absent.
func GetString(tree yaml.MapSlice, keyPath string) (string, bool) {
	val, ok := Get(tree, keyPath)
	if !ok {
		return "", false
	}

	switch typed := val.(type) {
	case nil, yaml.MapSlice, []any:
		return "", false
	case string:
		return typed, true
	default:
		return fmt.Sprint(typed), true
	}
}

// Set stores value at keyPath, creating intermediate mappings
// as needed, and returns the updated tree. The tree may be
// modified in place.
func Set(
	tree yaml.MapSlice,
	keyPath string,
	value any,
) (yaml.MapSlice, error) {
	const errCtx = "setting key-path"

	segs, err := splitPath(keyPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	updated, err := setIn(tree, segs, value)
	if err != nil {
		return nil, fmt.Errorf(
			"%s %q: %w", errCtx, keyPath, err,
		)
	}

	ms, _ := updated.(yaml.MapSlice)

	return ms, nil
}

func setIn(node any, segs []string, value any) (any, error) {
	if len(segs) == 0 {
		return value, nil
	}

	seg, rest := segs[0], segs[1:]

	switch typed := node.(type) {
	case nil:
		child, err := setIn(nil, rest, value)
		if err != nil {
			return nil, err
		}

		return yaml.MapSlice{{Key: seg, Value: child}}, nil
	case yaml.MapSlice:
		idx := indexOf(typed, seg)
		if idx < 0 {
			child, err := setIn(nil, rest, value)
			if err != nil {
				return nil, err
			}

			return append(
				typed, yaml.MapItem{Key: seg, Value: child},
			), nil
		}

		child, err := setIn(typed[idx].Value, rest, value)
		if err != nil {
			return nil, err
		}

		typed[idx].Value = child

		return typed, nil
	case []any:
		idx, convErr := strconv.Atoi(seg)
		if convErr != nil || idx < 0 || idx >= len(typed) {
			return nil, fmt.Errorf("%w: %q", errBadIndex, seg)
		}

		child, err := setIn(typed[idx], rest, value)
		if err != nil {
			return nil, err
		}

		typed[idx] = child

		return typed, nil
	default:
		return nil, fmt.Errorf(
			"%w at %q", errNotTraversable, seg,
		)
	}
}
