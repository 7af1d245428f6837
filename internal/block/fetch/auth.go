package fetch

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/pkg/errors"
)

// authConfig is the parsed fetch_auth logic. Secret material arrives
// already resolved through $keys references; this layer only shapes it
// onto the request.
type authConfig struct {
	kind string

	token    string
	username string
	password string

	cc     *clientcredentials.Config
	source oauth2.TokenSource
}

// parseAuth validates a fetch_auth map.
func parseAuth(m map[string]any) (*authConfig, error) {
	kind, _ := block.GetString(m, "type")
	switch kind {
	case "bearer":
		token, err := block.RequireString(m, "token")
		if err != nil {
			return nil, err
		}
		return &authConfig{kind: kind, token: token}, nil

	case "basic":
		username, err := block.RequireString(m, "username")
		if err != nil {
			return nil, err
		}
		password, err := block.RequireString(m, "password")
		if err != nil {
			return nil, err
		}
		return &authConfig{kind: kind, username: username, password: password}, nil

	case "oauth2_client_credentials":
		tokenURL, err := block.RequireString(m, "token_url")
		if err != nil {
			return nil, err
		}
		clientID, err := block.RequireString(m, "client_id")
		if err != nil {
			return nil, err
		}
		clientSecret, err := block.RequireString(m, "client_secret")
		if err != nil {
			return nil, err
		}

		var scopes []string
		if raw, ok := block.GetSlice(m, "scopes"); ok {
			for _, s := range raw {
				text, ok := s.(string)
				if !ok {
					return nil, &errors.ValidationError{
						Field:   "fetch_auth.scopes",
						Message: fmt.Sprintf("scope %v is not a string", s),
					}
				}
				scopes = append(scopes, text)
			}
		}

		return &authConfig{
			kind: kind,
			cc: &clientcredentials.Config{
				TokenURL:     tokenURL,
				ClientID:     clientID,
				ClientSecret: clientSecret,
				Scopes:       scopes,
			},
		}, nil

	default:
		return nil, &errors.ValidationError{
			Field:       "fetch_auth.type",
			Message:     fmt.Sprintf("unknown auth type %q", kind),
			SuggestText: `use "bearer", "basic", or "oauth2_client_credentials"`,
		}
	}
}

// init prepares per-execution auth state. The client-credentials token
// source is created once against the run-scoped context, so retries
// reuse a cached token instead of hammering the token endpoint, and a
// refresh is never attempted through an expired attempt context.
func (a *authConfig) init(ctx context.Context, client *http.Client) {
	if a.kind == "oauth2_client_credentials" && a.source == nil {
		// Token endpoint calls go through our instrumented client.
		tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, client)
		a.source = a.cc.TokenSource(tokenCtx)
	}
}

// apply sets credentials on one outbound request.
func (a *authConfig) apply(req *http.Request) error {
	switch a.kind {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+a.token)
		return nil

	case "basic":
		req.SetBasicAuth(a.username, a.password)
		return nil

	case "oauth2_client_credentials":
		token, err := a.source.Token()
		if err != nil {
			return fmt.Errorf("fetch oauth2 token: %w", err)
		}
		token.SetAuthHeader(req)
		return nil

	default:
		return nil
	}
}
