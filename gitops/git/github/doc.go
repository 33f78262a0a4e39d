// Package github implements a git.GitProvider that opens pull
// requests on GitHub (cloud or enterprise) for image update
// branches and labels them.
package github
