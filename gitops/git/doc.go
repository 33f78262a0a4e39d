// Package git provides the local repository operations and the
// pull request strategy used to publish rewritten documents.
//
// Repo wraps an existing work tree, opened with Open, with
// methods for branching, committing selected paths and
// pushing. GitProvider abstracts pull request creation;
// implementations for GitHub, GitLab and Bitbucket Server live
// in sub-packages and GitProviderFunc lets plain functions
// satisfy the interface.
package git
