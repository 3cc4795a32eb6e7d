// Package auth supplies OAuth2 client-credentials tokens for outbound API
// calls. Tokens are cached and renewed transparently when they expire.
package auth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientCred holds the credentials configuration and the current token.
type ClientCred struct {
	conf  clientcredentials.Config
	token *oauth2.Token
}

// NewClientCred creates a credential source from the configuration.
func NewClientCred(conf Conf) *ClientCred {
	return &ClientCred{
		conf: conf.toOauth2Config(),
	}
}

// GetToken returns a valid access token, requesting a fresh one from the
// token endpoint when the cached token has expired.
func (c *ClientCred) GetToken() (string, error) {
	if c.token != nil && c.token.Valid() {
		return c.token.AccessToken, nil
	}
	if err := c.refresh(); err != nil {
		return "", err
	}
	return c.token.AccessToken, nil
}

// SetAuthHeader attaches a bearer token to the request, renewing it first
// if needed.
func (c *ClientCred) SetAuthHeader(r *http.Request) error {
	if c.token != nil && c.token.Valid() {
		c.token.SetAuthHeader(r)
		return nil
	}
	if err := c.refresh(); err != nil {
		return err
	}
	c.token.SetAuthHeader(r)
	return nil
}

func (c *ClientCred) refresh() error {
	var err error
	c.token, err = c.conf.Token(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get token: %w", err)
	}
	return nil
}
