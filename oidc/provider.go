// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Provider provides integration with an OIDC provider for the authorization
// code flow: it discovers the provider's metadata, generates auth URLs,
// exchanges codes for verified tokens, fetches user info and builds logout
// URLs.
//
// A Provider is safe for concurrent use once created.
type Provider struct {
	config   *Config
	provider *oidc.Provider
	client   *http.Client

	// endSessionURL is the discovered end_session_endpoint, if any.
	endSessionURL string

	mu sync.Mutex

	// backgroundCtx is the context used by the provider for background
	// activities like refreshing JWKs key sets.
	backgroundCtx context.Context

	// backgroundCtxCancel is used to cancel any background activities running
	// in spawned go routines.
	backgroundCtxCancel context.CancelFunc
}

// NewProvider creates and initializes a Provider. Initializing the provider
// includes making an http request to the provider's issuer for discovery.
//
// See Provider.Done() which must be called to release provider resources.
func NewProvider(c *Config) (*Provider, error) {
	const op = "NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	// initializing the Provider with it's background ctx/cancel will
	// allow us to use p.Done() to release any resources when returning errors
	// from this function.
	p := &Provider{
		config:              c,
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}

	client, err := c.HTTPClient()
	if err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	p.client = client

	provider, err := oidc.NewProvider(oidc.ClientContext(p.backgroundCtx, client), c.Issuer) // makes http req to issuer for discovery
	if err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: unable to create provider: %w", op, err)
	}
	p.provider = provider

	var metadata struct {
		EndSessionURL string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&metadata); err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: unable to read provider metadata: %w", op, err)
	}
	p.endSessionURL = metadata.EndSessionURL

	return p, nil
}

// Done with the provider's background resources and must be called for every
// Provider created.
func (p *Provider) Done() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backgroundCtxCancel != nil {
		p.backgroundCtxCancel()
		p.backgroundCtxCancel = nil
	}
}

// Config returns the provider's configuration.
func (p *Provider) Config() *Config { return p.config }

// AuthURL will generate a URL the caller can use to kick off an OIDC
// authorization code flow with the provider.
//
// Supported options: WithUILocales
func (p *Provider) AuthURL(_ context.Context, r Request, opt ...Option) (string, error) {
	const op = "Provider.AuthURL"
	if p.config == nil {
		return "", fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if r == nil {
		return "", fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if r.State() == "" || r.Nonce() == "" {
		return "", fmt.Errorf("%s: request state and nonce are required: %w", op, ErrInvalidParameter)
	}
	if r.State() == r.Nonce() {
		return "", fmt.Errorf("%s: request state and nonce cannot be equal: %w", op, ErrInvalidParameter)
	}
	opts := getAuthURLOpts(opt...)
	authCodeOpts := []oauth2.AuthCodeOption{oidc.Nonce(r.Nonce())}
	if len(opts.withUILocales) > 0 {
		locales := make([]string, 0, len(opts.withUILocales))
		for _, l := range opts.withUILocales {
			locales = append(locales, l.String())
		}
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("ui_locales", strings.Join(locales, " ")))
	}
	return p.oauth2Config().AuthCodeURL(r.State(), authCodeOpts...), nil
}

// Exchange will request a token from the oidc token endpoint, using the
// authorizationCode and authorizationState it received in an earlier
// successful oidc authentication response.
//
// It validates the authorizationState against the Request for the flow and
// verifies the returned id_token, including its nonce.
func (p *Provider) Exchange(ctx context.Context, r Request, authorizationState string, authorizationCode string) (*Token, error) {
	const op = "Provider.Exchange"
	if p.config == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if r == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if authorizationCode == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}
	if r.State() != authorizationState {
		return nil, fmt.Errorf("%s: authentication request state and authorization state are not equal: %w", op, ErrInvalidResponseState)
	}
	if r.IsExpired() {
		return nil, fmt.Errorf("%s: authentication request is expired: %w", op, ErrExpiredRequest)
	}

	oauth2Token, err := p.oauth2Config().Exchange(oidc.ClientContext(ctx, p.client), authorizationCode)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to exchange auth code with provider: %w: %w", op, ErrExchangeFailed, err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%s: id_token is missing from auth code exchange: %w", op, ErrMissingIDToken)
	}
	claims, err := p.VerifyIDToken(ctx, IDToken(rawIDToken), r)
	if err != nil {
		return nil, fmt.Errorf("%s: id_token failed verification: %w", op, err)
	}
	t, err := NewToken(IDToken(rawIDToken), oauth2Token, claims)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create new token: %w", op, err)
	}
	return t, nil
}

// VerifyIDToken will verify the inbound IDToken and return its claims. It
// verifies it's been signed by the provider, it validates the issuer,
// audience, expiry and nonce.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#IDTokenValidation
func (p *Provider) VerifyIDToken(ctx context.Context, t IDToken, r Request) (map[string]interface{}, error) {
	const op = "Provider.VerifyIDToken"
	if t == "" {
		return nil, fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if r == nil || r.Nonce() == "" {
		return nil, fmt.Errorf("%s: nonce is empty: %w", op, ErrInvalidParameter)
	}
	algs := make([]string, 0, len(p.config.SupportedSigningAlgs))
	for _, a := range p.config.SupportedSigningAlgs {
		algs = append(algs, string(a))
	}
	verifier := p.provider.Verifier(&oidc.Config{
		ClientID:             p.config.ClientID,
		SupportedSigningAlgs: algs,
		Now:                  p.config.Now,
	})

	oidcIDToken, err := verifier.Verify(oidc.ClientContext(ctx, p.client), string(t))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrIDTokenVerificationFailed, err)
	}
	if oidcIDToken.Nonce != r.Nonce() {
		return nil, fmt.Errorf("%s: invalid id_token nonce: %w", op, ErrInvalidNonce)
	}
	if len(p.config.Audiences) > 0 {
		found := false
		for _, v := range p.config.Audiences {
			if slices.Contains(oidcIDToken.Audience, v) {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%s: invalid id_token audiences: %w", op, ErrIDTokenVerificationFailed)
		}
	}

	var claims map[string]interface{}
	if err := oidcIDToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s: unable to decode id_token claims: %w", op, err)
	}
	return claims, nil
}

// UserInfo gets the UserInfo claims from the provider using the token produced
// by the tokenSource.
func (p *Provider) UserInfo(ctx context.Context, tokenSource oauth2.TokenSource, claims interface{}) error {
	const op = "Provider.UserInfo"
	if tokenSource == nil {
		return fmt.Errorf("%s: token source is nil: %w", op, ErrNilParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	userinfo, err := p.provider.UserInfo(oidc.ClientContext(ctx, p.client), tokenSource)
	if err != nil {
		return fmt.Errorf("%s: provider UserInfo request failed: %w: %w", op, ErrUserInfoFailed, err)
	}
	if err := userinfo.Claims(claims); err != nil {
		return fmt.Errorf("%s: failed to get UserInfo claims: %w", op, err)
	}
	return nil
}

// Identity builds the user identity from a verified Token. When the Config
// enables UserInfo and the provider has a userinfo endpoint, the provider's
// userinfo claims are merged in, and a userinfo "sub" that doesn't match the
// id_token's is rejected.
func (p *Provider) Identity(ctx context.Context, t *Token) (*Identity, error) {
	const op = "Provider.Identity"
	if t == nil {
		return nil, fmt.Errorf("%s: token is nil: %w", op, ErrNilParameter)
	}
	id, err := NewIdentity(t.Claims)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !p.config.UserInfo || p.provider.UserInfoEndpoint() == "" {
		return id, nil
	}
	ts := t.StaticTokenSource()
	if ts == nil {
		return id, nil
	}
	var infoClaims map[string]interface{}
	if err := p.UserInfo(ctx, ts, &infoClaims); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if sub, ok := infoClaims["sub"].(string); ok && sub != id.Subject {
		return nil, fmt.Errorf("%s: userinfo sub %q does not match id_token sub: %w", op, sub, ErrUserInfoFailed)
	}
	id.merge(infoClaims)
	return id, nil
}

// LogoutURL builds the provider's RP-initiated logout URL with the given hints.
// Empty hints are omitted. ErrUnsupportedLogout is returned when the provider
// doesn't advertise an end_session_endpoint.
//
// See: https://openid.net/specs/openid-connect-rpinitiated-1_0.html
func (p *Provider) LogoutURL(idTokenHint IDToken, logoutHint string) (string, error) {
	const op = "Provider.LogoutURL"
	if p.endSessionURL == "" {
		return "", fmt.Errorf("%s: %w", op, ErrUnsupportedLogout)
	}
	u, err := url.Parse(p.endSessionURL)
	if err != nil {
		return "", fmt.Errorf("%s: end_session_endpoint %q is invalid: %w", op, p.endSessionURL, err)
	}
	q := u.Query()
	if idTokenHint != "" {
		q.Set("id_token_hint", string(idTokenHint))
	}
	if logoutHint != "" {
		q.Set("logout_hint", logoutHint)
	}
	q.Set("client_id", p.config.ClientID)
	if p.config.PostLogoutRedirectURL != "" {
		q.Set("post_logout_redirect_uri", p.config.PostLogoutRedirectURL)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (p *Provider) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: string(p.config.ClientSecret),
		RedirectURL:  p.config.RedirectURL,
		Endpoint:     p.provider.Endpoint(),
		Scopes:       p.config.Scopes,
	}
}
