// Package commitmsg accumulates the outcome of an update run
// into a commit message and a change report. Each processed
// image key contributes one report line; each applied change
// also contributes one short commit-message fragment. Lines are
// rendered from {var} templates so a plan can change wording
// without code changes.
package commitmsg
