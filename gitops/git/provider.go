package git

import "context"

// Pattern: Strategy -- swap git platform without
// changing how update branches are published.

// GitProvider opens a pull (or merge) request for a pushed
// update branch on a git hosting platform.
type GitProvider interface {
	// CreatePR requests merging branch from into to.
	// Implementations treat an already open request for
	// the same branch as success.
	CreatePR(
		ctx context.Context,
		from string,
		to string,
		title string,
		body string,
	) error
}

// GitProviderFunc adapts a plain function to the
// GitProvider interface.
type GitProviderFunc func(
	ctx context.Context,
	from string,
	to string,
	title string,
	body string,
) error

// CreatePR delegates to the wrapped function. If body
// is empty, title is substituted.
func (f GitProviderFunc) CreatePR(
	ctx context.Context,
	from string,
	to string,
	title string,
	body string,
) error {
	if body == "" {
		body = title
	}

	return f(ctx, from, to, title, body)
}
