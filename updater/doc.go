// Package updater drives one update run: for every group of a
// plan it merges the source documents, then for every image
// key resolves the newest matching tag and its digest from the
// registry and rewrites the output document when they changed.
//
// Groups and keys are processed strictly in declaration order,
// one at a time. The first failure aborts the run; documents
// already rewritten by earlier keys are left in place.
package updater
