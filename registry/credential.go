package registry

// Credential carries what is needed to build the Authorization
// header of registry calls.
type Credential interface {
	// Authorization returns the header value, or "" when no
	// header should be sent.
	Authorization() string
}

// Anonymous sends no Authorization header.
type Anonymous struct{}

// Authorization implements Credential.
func (Anonymous) Authorization() string {
	return ""
}

// StaticBearerToken is a pre-issued token (e.g. a GitHub
// token for ghcr.io). It is sent verbatim.
type StaticBearerToken struct {
	Token string
}

// Authorization implements Credential.
func (c StaticBearerToken) Authorization() string {
	return "Bearer " + c.Token
}

// ExchangedToken is a bearer token obtained from a registry
// token service, either anonymously or with basic auth.
type ExchangedToken struct {
	Token string
	// Authenticated is true when the exchange used basic
	// auth credentials.
	Authenticated bool
}

// Authorization implements Credential.
func (c ExchangedToken) Authorization() string {
	return "Bearer " + c.Token
}
