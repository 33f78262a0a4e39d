package registry

import "fmt"

// maxErrorBody bounds how much of a response body is echoed
// in an error message.
const maxErrorBody = 256

// UnsupportedRegistryError is returned when no authentication
// strategy is registered for a host.
type UnsupportedRegistryError struct {
	Host string
}

func (e *UnsupportedRegistryError) Error() string {
	return fmt.Sprintf(
		"no authentication strategy registered for registry %q",
		e.Host,
	)
}

// RegistryRequestError is returned when a registry or token
// endpoint answers with a non-success status, returns a body
// that cannot be decoded, or cannot be reached at all (Status
// is then zero and Err holds the transport error).
type RegistryRequestError struct {
	URL    string
	Status int
	Body   string
	Err    error
}

func (e *RegistryRequestError) Error() string {
	body := e.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}

	msg := fmt.Sprintf(
		"registry request %s failed with status %d",
		e.URL, e.Status,
	)

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	if body != "" {
		msg += ": " + body
	}

	return msg
}

func (e *RegistryRequestError) Unwrap() error {
	return e.Err
}

// DigestNotFoundError is returned when a manifest carries no
// usable config digest for the requested tag.
type DigestNotFoundError struct {
	Tag string
	Err error
}

func (e *DigestNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"no config digest in manifest for tag %q: %v",
			e.Tag, e.Err,
		)
	}

	return fmt.Sprintf(
		"no config digest in manifest for tag %q", e.Tag,
	)
}

func (e *DigestNotFoundError) Unwrap() error {
	return e.Err
}
