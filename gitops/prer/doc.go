// Package prer publishes the outcome of an update run: it
// commits the rewritten documents to a deployment branch,
// force-pushes the branch and opens a pull request through a
// git.GitProvider. Runs that changed nothing publish nothing.
//
// The main entry point is Publish, which accepts a Config
// struct with all parameters for the workflow.
package prer
