package client

import (
	"context"

	"github.com/telefwd/telefwd/internal/api"
	"github.com/telefwd/telefwd/internal/domain"
)

// Login exchanges an email for a credential and installs it. Any state from
// a previous session is flushed before the new credential takes effect.
func (c *Client) Login(ctx context.Context, email string) (domain.User, error) {
	resp, err := c.api.Login(ctx, email)
	if err != nil {
		return domain.User{}, err
	}
	return c.installCredential(resp)
}

// Register creates an account and installs the returned credential.
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (domain.User, error) {
	resp, err := c.api.Register(ctx, req)
	if err != nil {
		return domain.User{}, err
	}
	return c.installCredential(resp)
}

// Logout clears the credential. The teardown hooks flush the cache, so
// every subsequent read starts unrequested until a new login.
func (c *Client) Logout() error {
	return c.session.SetCredential("")
}

func (c *Client) installCredential(resp api.AuthResponse) (domain.User, error) {
	// A credential swap invalidates everything cached under the old one.
	c.cache.FlushAll()
	if err := c.session.SetCredential(resp.AccessToken); err != nil {
		return domain.User{}, err
	}
	return resp.User, nil
}
