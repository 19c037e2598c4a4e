// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"encoding/pem"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestProvider is a local OIDC provider that makes writing tests much easier.
// It serves discovery, authorize, token, JWKS, userinfo and end-session
// endpoints over TLS. Use CACert() with WithProviderCA when building a
// Config for it.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	signingKey *ecdsa.PrivateKey
	keyID      string

	mu                  sync.Mutex
	clientID            string
	clientSecret        string
	allowedRedirectURIs []string
	expectedAuthCode    string
	expectedAuthNonce   string
	lastAuthNonce       string
	replySubject        string
	replyUserInfo       map[string]interface{}
	customClaims        map[string]interface{}
	customAudience      string
	omitIDToken         bool
	disableUserInfo     bool
	disableEndSession   bool
	nowFunc             func() time.Time
	lastLogout          url.Values
}

// Default TestProvider values.
const (
	TestClientID     = "test-client-id"
	TestClientSecret = "test-client-secret"
	TestAuthCode     = "test-code"
	TestSubject      = "alice@example.com"
)

// StartTestProvider creates a disposable TestProvider which is stopped when
// the test ends.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(err)
	keyID, err := NewID("kid")
	require.NoError(err)

	p := &TestProvider{
		signingKey:          key,
		keyID:               keyID,
		clientID:            TestClientID,
		clientSecret:        TestClientSecret,
		allowedRedirectURIs: []string{"https://example.com"},
		expectedAuthCode:    TestAuthCode,
		replySubject:        TestSubject,
		replyUserInfo: map[string]interface{}{
			"sub":                TestSubject,
			"preferred_username": "alice",
		},
		customClaims: map[string]interface{}{
			"name":           "Alice Smith",
			"email":          "alice@example.com",
			"email_verified": true,
		},
	}

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.Stop)

	var buf bytes.Buffer
	err = pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: p.httpServer.Certificate().Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the current base URL for the test provider's running webserver,
// which is also its issuer.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// SetClientCreds is for configuring the client information required for the
// OIDC workflows.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetExpectedAuthCode configures the auth code to return from /authorize and
// the allowed auth code for /token.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetExpectedAuthNonce configures the nonce put in issued id_tokens. When
// empty, the nonce from the last /authorize request is used.
func (p *TestProvider) SetExpectedAuthNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthNonce = nonce
}

// SetAllowedRedirectURIs configures the allowed redirect URIs for the OIDC
// workflow. If not configured a sample of "https://example.com" is used.
func (p *TestProvider) SetAllowedRedirectURIs(uris ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetSubject configures the "sub" claim of issued id_tokens and userinfo.
func (p *TestProvider) SetSubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replySubject = sub
	p.replyUserInfo["sub"] = sub
}

// SetCustomClaims sets the additional claims returned in issued id_tokens.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetUserInfoReply sets the claims returned by the userinfo endpoint.
func (p *TestProvider) SetUserInfoReply(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyUserInfo = claims
}

// SetCustomAudience configures what audience value to embed in issued
// id_tokens.
func (p *TestProvider) SetCustomAudience(customAudience string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customAudience = customAudience
}

// SetNowFunc configures the clock used for id_token iat/exp claims.
func (p *TestProvider) SetNowFunc(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nowFunc = now
}

// OmitIDTokens forces an error state where the /token endpoint does not return
// an id_token.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// DisableUserInfo makes the userinfo endpoint return 404 and omits it from
// the discovery document.
func (p *TestProvider) DisableUserInfo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableUserInfo = true
}

// DisableEndSession omits the end_session_endpoint from the discovery
// document. Must be called before a Provider discovers the TestProvider.
func (p *TestProvider) DisableEndSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableEndSession = true
}

// LastLogout returns the query of the last end-session request, or nil.
func (p *TestProvider) LastLogout() url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastLogout
}

// SignIDToken signs an id_token for the given nonce with the provider's key,
// using the provider's subject, audience and custom claims.
func (p *TestProvider) SignIDToken(t *testing.T, nonce string) string {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	raw, err := p.signIDToken(nonce)
	require.NoError(t, err)
	return raw
}

func (p *TestProvider) now() time.Time {
	if p.nowFunc != nil {
		return p.nowFunc()
	}
	return time.Now()
}

// signIDToken must be called with p.mu held.
func (p *TestProvider) signIDToken(nonce string) (string, error) {
	sig, err := jose.NewSigner(
		jose.SigningKey{
			Algorithm: jose.ES256,
			Key:       jose.JSONWebKey{Key: p.signingKey, KeyID: p.keyID},
		},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", err
	}
	now := p.now()
	stdClaims := jwt.Claims{
		Subject:   p.replySubject,
		Issuer:    p.Addr(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
		Expiry:    jwt.NewNumericDate(now.Add(5 * time.Minute)),
		Audience:  jwt.Audience{p.clientID},
	}
	if p.customAudience != "" {
		stdClaims.Audience = jwt.Audience{p.customAudience}
	}
	privateClaims := map[string]interface{}{}
	for k, v := range p.customClaims {
		privateClaims[k] = v
	}
	if nonce != "" {
		privateClaims["nonce"] = nonce
	}
	return jwt.Signed(sig).Claims(stdClaims).Claims(privateClaims).CompactSerialize()
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()
	redirectURI := qv.Get("redirect_uri") +
		"?state=" + url.QueryEscape(qv.Get("state")) +
		"&error=" + url.QueryEscape(errorCode)
	if errorMessage != "" {
		redirectURI += "&error_description=" + url.QueryEscape(errorMessage)
	}
	http.Redirect(w, req, redirectURI, http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(&body)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		reply := struct {
			Issuer           string   `json:"issuer"`
			AuthEndpoint     string   `json:"authorization_endpoint"`
			TokenEndpoint    string   `json:"token_endpoint"`
			JWKSURI          string   `json:"jwks_uri"`
			UserinfoEndpoint string   `json:"userinfo_endpoint,omitempty"`
			EndSession       string   `json:"end_session_endpoint,omitempty"`
			Algs             []string `json:"id_token_signing_alg_values_supported"`
		}{
			Issuer:           p.Addr(),
			AuthEndpoint:     p.Addr() + "/authorize",
			TokenEndpoint:    p.Addr() + "/token",
			JWKSURI:          p.Addr() + "/keys",
			UserinfoEndpoint: p.Addr() + "/userinfo",
			EndSession:       p.Addr() + "/end_session",
			Algs:             []string{string(ES256)},
		}
		if p.disableUserInfo {
			reply.UserinfoEndpoint = ""
		}
		if p.disableEndSession {
			reply.EndSession = ""
		}
		_ = p.writeJSON(w, &reply)

	case "/authorize":
		qv := req.URL.Query()
		switch {
		case qv.Get("response_type") != "code":
			p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
		case qv.Get("client_id") != p.clientID:
			p.writeAuthErrorResponse(w, req, "unauthorized_client", "")
		case !slices.Contains(p.allowedRedirectURIs, qv.Get("redirect_uri")):
			w.WriteHeader(http.StatusBadRequest)
		case qv.Get("state") == "":
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
		case p.expectedAuthCode == "":
			p.writeAuthErrorResponse(w, req, "access_denied", "")
		default:
			p.lastAuthNonce = qv.Get("nonce")
			redirectURI := qv.Get("redirect_uri") +
				"?state=" + url.QueryEscape(qv.Get("state")) +
				"&code=" + url.QueryEscape(p.expectedAuthCode)
			http.Redirect(w, req, redirectURI, http.StatusFound)
		}

	case "/keys":
		jwks := jose.JSONWebKeySet{
			Keys: []jose.JSONWebKey{
				{Key: p.signingKey.Public(), KeyID: p.keyID, Algorithm: string(jose.ES256), Use: "sig"},
			},
		}
		_ = p.writeJSON(w, &jwks)

	case "/token":
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		clientID, clientSecret, ok := req.BasicAuth()
		if !ok {
			clientID, clientSecret = req.FormValue("client_id"), req.FormValue("client_secret")
		}
		switch {
		case clientID != p.clientID || clientSecret != p.clientSecret:
			p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "bad client credentials")
			return
		case req.FormValue("grant_type") != "authorization_code":
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "bad grant_type")
			return
		case !slices.Contains(p.allowedRedirectURIs, req.FormValue("redirect_uri")):
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not allowed")
			return
		case req.FormValue("code") != p.expectedAuthCode:
			p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_grant", "unexpected auth code")
			return
		}
		nonce := p.expectedAuthNonce
		if nonce == "" {
			nonce = p.lastAuthNonce
		}
		idToken, err := p.signIDToken(nonce)
		if err != nil {
			p.writeTokenErrorResponse(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		reply := struct {
			AccessToken string `json:"access_token"`
			TokenType   string `json:"token_type"`
			ExpiresIn   int    `json:"expires_in"`
			IDToken     string `json:"id_token,omitempty"`
		}{
			AccessToken: "test-access-token",
			TokenType:   "Bearer",
			ExpiresIn:   300,
			IDToken:     idToken,
		}
		if p.omitIDToken {
			reply.IDToken = ""
		}
		_ = p.writeJSON(w, &reply)

	case "/userinfo":
		if p.disableUserInfo {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Header.Get("Authorization") != "Bearer test-access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = p.writeJSON(w, p.replyUserInfo)

	case "/end_session":
		if p.disableEndSession {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		p.lastLogout = req.URL.Query()
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// NewConfig returns a Config for the TestProvider with its CA, client
// credentials and ES256 signing. The redirectURL is added to the provider's
// allowed redirect URIs.
func (p *TestProvider) NewConfig(t *testing.T, redirectURL string, opt ...Option) *Config {
	t.Helper()
	p.mu.Lock()
	if !slices.Contains(p.allowedRedirectURIs, redirectURL) {
		p.allowedRedirectURIs = append(p.allowedRedirectURIs, redirectURL)
	}
	clientID, clientSecret := p.clientID, p.clientSecret
	p.mu.Unlock()

	opt = append([]Option{WithProviderCA(p.CACert())}, opt...)
	c, err := NewConfig(p.Addr(), clientID, ClientSecret(clientSecret), []Alg{ES256}, redirectURL, opt...)
	require.NoError(t, err)
	return c
}
