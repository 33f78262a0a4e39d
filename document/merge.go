package document

import "github.com/goccy/go-yaml"

// Merge deep-merges src over dst and returns the result.
// Nested mappings merge recursively; any other value in src
// (scalar, sequence, null) replaces the value in dst. Keys
// present on only one side are kept, dst keys first in their
// original order. Neither input is modified.
func Merge(dst, src yaml.MapSlice) yaml.MapSlice {
	out := make(yaml.MapSlice, len(dst), len(dst)+len(src))
	copy(out, dst)

	for _, item := range src {
		idx := indexOf(out, keyString(item.Key))
		if idx < 0 {
			out = append(out, item)

			continue
		}

		dstMap, dstOK := out[idx].Value.(yaml.MapSlice)
		srcMap, srcOK := item.Value.(yaml.MapSlice)

		if dstOK && srcOK {
			out[idx].Value = Merge(dstMap, srcMap)

			continue
		}

		out[idx].Value = item.Value
	}

	return out
}

// MergeAll folds trees left to right with Merge.
func MergeAll(trees ...yaml.MapSlice) yaml.MapSlice {
	merged := yaml.MapSlice{}
	for _, tree := range trees {
		merged = Merge(merged, tree)
	}

	return merged
}
