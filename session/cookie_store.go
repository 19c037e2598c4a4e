// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/crypto/hkdf"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

const (
	// MinSecretLength is the minimum length of a CookieStore secret.
	MinSecretLength = 32

	// MinSaltLength is the minimum length of a CookieStore salt.
	MinSaltLength = 16

	cookieKeyInfo = "capweb session cookie"
)

// CookieStore keeps the whole Session in an encrypted cookie. The cookie is
// a compact JWE (dir + A256GCM) carrying the session and an exp claim equal
// to the cookie's max-age.
type CookieStore struct {
	key       []byte
	encrypter jose.Encrypter
	cookie    CookieOptions
	logger    hclog.Logger
	now       func() time.Time
}

var _ Store = (*CookieStore)(nil)

type cookiePayload struct {
	User *User `json:"user,omitempty"`
	Flow *Flow `json:"flow,omitempty"`
}

// NewCookieStore creates a CookieStore whose encryption key is derived from
// the secret and salt with HKDF-SHA256.
//
// Supported options: WithLogger, WithNow
func NewCookieStore(secret, salt []byte, cookie CookieOptions, opt ...Option) (*CookieStore, error) {
	const op = "NewCookieStore"
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%s: secret must be at least %d bytes: %w", op, MinSecretLength, ErrInvalidParameter)
	}
	if len(salt) < MinSaltLength {
		return nil, fmt.Errorf("%s: salt must be at least %d bytes: %w", op, MinSaltLength, ErrInvalidParameter)
	}
	if err := cookie.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	key, err := deriveKey(secret, salt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	enc, err := jose.NewEncrypter(
		jose.A256GCM,
		jose.Recipient{Algorithm: jose.DIRECT, Key: key},
		(&jose.EncrypterOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create encrypter: %w", op, err)
	}
	opts := getStoreOpts(opt...)
	return &CookieStore{
		key:       key,
		encrypter: enc,
		cookie:    cookie,
		logger:    opts.withLogger,
		now:       opts.withNowFunc,
	}, nil
}

func deriveKey(secret, salt []byte) ([]byte, error) {
	const op = "deriveKey"
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(cookieKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("%s: unable to derive key: %w", op, err)
	}
	return key, nil
}

// Load decrypts the request's session cookie. A missing or expired cookie
// yields an empty Session. A cookie that can't be decrypted returns
// ErrInvalidSession.
func (s *CookieStore) Load(r *http.Request) (*Session, error) {
	const op = "CookieStore.Load"
	c, err := r.Cookie(s.cookie.Name)
	if err != nil || c.Value == "" {
		return New(), nil
	}
	tok, err := jwt.ParseEncrypted(c.Value)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse session cookie: %w: %w", op, ErrInvalidSession, err)
	}
	var std jwt.Claims
	var payload cookiePayload
	if err := tok.Claims(s.key, &std, &payload); err != nil {
		return nil, fmt.Errorf("%s: unable to decrypt session cookie: %w: %w", op, ErrInvalidSession, err)
	}
	if std.Expiry == nil {
		return nil, fmt.Errorf("%s: session cookie has no expiry: %w", op, ErrInvalidSession)
	}
	if err := std.ValidateWithLeeway(jwt.Expected{Time: s.now()}, 0); err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			s.logger.Debug("session cookie expired", "expiry", std.Expiry.Time())
			return New(), nil
		}
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidSession, err)
	}
	return &Session{User: payload.User, Flow: payload.Flow}, nil
}

// Save encrypts the Session into the response's session cookie.
// ErrCookieTooLarge is returned when the encrypted session exceeds
// MaxCookieSize.
func (s *CookieStore) Save(w http.ResponseWriter, _ *http.Request, sess *Session) error {
	const op = "CookieStore.Save"
	if sess == nil {
		return fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	}
	now := s.now()
	std := jwt.Claims{
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(s.cookie.MaxAge)),
	}
	raw, err := jwt.Encrypted(s.encrypter).
		Claims(std).
		Claims(cookiePayload{User: sess.User, Flow: sess.Flow}).
		CompactSerialize()
	if err != nil {
		return fmt.Errorf("%s: unable to encrypt session: %w", op, err)
	}
	if len(raw) > MaxCookieSize {
		return fmt.Errorf("%s: encrypted session is %d bytes: %w", op, len(raw), ErrCookieTooLarge)
	}
	http.SetCookie(w, s.cookie.cookie(raw, now))
	return nil
}

// Delete expires the session cookie and clears the Session.
func (s *CookieStore) Delete(w http.ResponseWriter, _ *http.Request, sess *Session) error {
	http.SetCookie(w, s.cookie.expired())
	if sess != nil {
		sess.Clear()
	}
	return nil
}
