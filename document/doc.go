// Package document reads and writes YAML value documents as
// ordered, owned trees and addresses nodes inside them with
// dotted key-paths (e.g. "services.api.image").
//
// Mappings decode to yaml.MapSlice so a rewrite keeps the key
// order of content it did not touch. Merge combines several
// source documents into one logical tree, later documents
// winning key-for-key.
package document
