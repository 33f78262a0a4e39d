package registry

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	json "github.com/goccy/go-json"
)

// Pattern: Strategy -- swap registry authentication without
// changing tag or digest resolution.

// Strategy produces the credential for calls against one
// repository.
type Strategy interface {
	Credential(ctx context.Context, ref Reference) (Credential, error)
}

// StrategyFunc adapts a plain function to the Strategy
// interface.
type StrategyFunc func(
	ctx context.Context,
	ref Reference,
) (Credential, error)

// Credential delegates to the wrapped function.
func (f StrategyFunc) Credential(
	ctx context.Context,
	ref Reference,
) (Credential, error) {
	return f(ctx, ref)
}

// NoAuth is a Strategy for registries that need no
// Authorization header.
var NoAuth = StrategyFunc(
	func(context.Context, Reference) (Credential, error) {
		return Anonymous{}, nil
	},
)

// StaticToken authenticates with a pre-issued bearer token.
type StaticToken struct {
	token string
}

// NewStaticToken returns a StaticToken strategy. The token is
// used verbatim.
func NewStaticToken(token string) (*StaticToken, error) {
	const errCtx = "creating static token strategy"

	if token == "" {
		return nil, fmt.Errorf("%s: token must be set", errCtx)
	}

	return &StaticToken{token: token}, nil
}

// Credential implements Strategy. No network call is made.
func (s *StaticToken) Credential(
	context.Context,
	Reference,
) (Credential, error) {
	return StaticBearerToken{Token: s.token}, nil
}

// ExchangeConfig holds the settings of a token exchange
// strategy.
type ExchangeConfig struct {
	// Realm is the token service URL, e.g.
	// "https://auth.docker.io/token".
	Realm string
	// Service is sent as the "service" query parameter.
	// Left out of the request when empty.
	Service string
	// Username and Password enable basic auth on the
	// exchange. Both or neither must be set.
	Username string
	Password string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// TokenExchange obtains a pull-scoped bearer token from a
// registry token service, anonymously or with basic auth.
type TokenExchange struct {
	realm    *url.URL
	service  string
	username string
	password string
	client   *http.Client
}

// tokenResponse is the JSON body of a token service. Some
// services answer with access_token instead of token.
type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

var errMissingToken = errors.New("response carries no token")

// NewTokenExchange validates cfg and returns a TokenExchange.
func NewTokenExchange(cfg ExchangeConfig) (*TokenExchange, error) {
	const errCtx = "creating token exchange strategy"

	if cfg.Realm == "" {
		return nil, fmt.Errorf("%s: realm must be set", errCtx)
	}

	realm, err := url.Parse(cfg.Realm)
	if err != nil {
		return nil, fmt.Errorf("%s: realm: %w", errCtx, err)
	}

	if (cfg.Username == "") != (cfg.Password == "") {
		return nil, fmt.Errorf(
			"%s: username and password must be set together",
			errCtx,
		)
	}

	return &TokenExchange{
		realm:    realm,
		service:  cfg.Service,
		username: cfg.Username,
		password: cfg.Password,
		client:   clientOrDefault(cfg.HTTPClient),
	}, nil
}

// Credential implements Strategy by calling the token service
// with scope repository:<repo>:pull.
func (s *TokenExchange) Credential(
	ctx context.Context,
	ref Reference,
) (Credential, error) {
	const errCtx = "exchanging registry token"

	tokenURL := *s.realm
	query := tokenURL.Query()

	if s.service != "" {
		query.Set("service", s.service)
	}

	query.Set("scope", "repository:"+ref.Repository+":pull")
	tokenURL.RawQuery = query.Encode()

	header := http.Header{}

	authenticated := s.username != ""
	if authenticated {
		header.Set("Authorization", "Basic "+basicAuth(
			s.username, s.password,
		))
	}

	rep, err := get(ctx, s.client, tokenURL.String(), header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(rep.body, &tr); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, rep.decodeError(err))
	}

	token := tr.Token
	if token == "" {
		token = tr.AccessToken
	}

	if token == "" {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, rep.decodeError(errMissingToken),
		)
	}

	return ExchangedToken{
		Token:         token,
		Authenticated: authenticated,
	}, nil
}

func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString(
		[]byte(username + ":" + password),
	)
}
