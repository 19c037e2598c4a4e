// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSecret = []byte("0123456789abcdef0123456789abcdef")
	testSalt   = []byte("fedcba9876543210")
)

func testCookieStore(t *testing.T, opt ...Option) *CookieStore {
	t.Helper()
	s, err := NewCookieStore(testSecret, testSalt, CookieOptions{Name: "test_session", MaxAge: time.Hour, Secure: true}, opt...)
	require.NoError(t, err)
	return s
}

func TestNewCookieStore(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		secret    []byte
		salt      []byte
		cookie    CookieOptions
		wantIsErr error
	}{
		{"valid", testSecret, testSalt, CookieOptions{}, nil},
		{"short-secret", testSecret[:31], testSalt, CookieOptions{}, ErrInvalidParameter},
		{"short-salt", testSecret, testSalt[:15], CookieOptions{}, ErrInvalidParameter},
		{"bad-max-age", testSecret, testSalt, CookieOptions{MaxAge: -time.Second}, ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewCookieStore(tt.secret, tt.salt, tt.cookie)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantIsErr)
				return
			}
			require.NoError(err)
			assert.Len(got.key, 32)
			assert.Equal(DefaultCookieName, got.cookie.Name)
		})
	}
}

func TestCookieStore_RoundTrip(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	s := testCookieStore(t)

	sess := &Session{User: testUser(), Flow: &Flow{StateID: "st_1", NonceID: "n_1", ReturnTo: "/profile", Expiration: time.Now().Add(time.Minute).Truncate(time.Second)}}
	rec := httptest.NewRecorder()
	require.NoError(s.Save(rec, httptest.NewRequest(http.MethodGet, "/", nil), sess))

	cookies := rec.Result().Cookies()
	require.Len(cookies, 1)
	c := cookies[0]
	assert.Equal("test_session", c.Name)
	assert.True(c.HttpOnly)
	assert.True(c.Secure)
	assert.Equal(http.SameSiteLaxMode, c.SameSite)
	assert.Equal(3600, c.MaxAge)
	assert.Equal("/", c.Path)
	assert.NotContains(c.Value, "alice")
	assert.Len(strings.Split(c.Value, "."), 5)

	got, err := s.Load(testRequestWithCookies(t, rec))
	require.NoError(err)
	assert.True(got.IsAuthenticated())
	assert.Equal(sess.User, got.User)
	assert.Equal(sess.Flow.StateID, got.Flow.StateID)
	assert.True(sess.Flow.Expiration.Equal(got.Flow.Expiration))
}

func TestCookieStore_Load(t *testing.T) {
	t.Parallel()
	valid := testCookieStore(t)
	rec := httptest.NewRecorder()
	require.NoError(t, valid.Save(rec, httptest.NewRequest(http.MethodGet, "/", nil), &Session{User: testUser()}))
	validValue := rec.Result().Cookies()[0].Value

	otherKey, err := NewCookieStore([]byte("another secret that is long enough!"), testSalt, CookieOptions{Name: "test_session"})
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	require.NoError(t, otherKey.Save(rec, httptest.NewRequest(http.MethodGet, "/", nil), &Session{User: testUser()}))
	otherValue := rec.Result().Cookies()[0].Value

	tests := []struct {
		name      string
		store     *CookieStore
		cookie    *http.Cookie
		wantAuthn bool
		wantIsErr error
	}{
		{"no-cookie", valid, nil, false, nil},
		{"empty-cookie", valid, &http.Cookie{Name: "test_session", Value: ""}, false, nil},
		{"valid", valid, &http.Cookie{Name: "test_session", Value: validValue}, true, nil},
		{"garbage", valid, &http.Cookie{Name: "test_session", Value: "not-a-jwe"}, false, ErrInvalidSession},
		{"tampered", valid, &http.Cookie{Name: "test_session", Value: validValue[:len(validValue)-4] + "AAAA"}, false, ErrInvalidSession},
		{"wrong-key", valid, &http.Cookie{Name: "test_session", Value: otherValue}, false, ErrInvalidSession},
		{
			"expired",
			testCookieStore(t, WithNow(func() time.Time { return time.Now().Add(2 * time.Hour) })),
			&http.Cookie{Name: "test_session", Value: validValue},
			false,
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			got, err := tt.store.Load(req)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantIsErr)
				return
			}
			require.NoError(err)
			assert.Equal(tt.wantAuthn, got.IsAuthenticated())
		})
	}
}

func TestCookieStore_SaveTooLarge(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	s := testCookieStore(t)
	u := testUser()
	u.Claims["blob"] = strings.Repeat("x", MaxCookieSize)
	rec := httptest.NewRecorder()
	err := s.Save(rec, httptest.NewRequest(http.MethodGet, "/", nil), &Session{User: u})
	assert.ErrorIs(err, ErrCookieTooLarge)
	assert.Empty(rec.Result().Cookies())

	assert.ErrorIs(s.Save(rec, httptest.NewRequest(http.MethodGet, "/", nil), nil), ErrNilParameter)
}

func TestCookieStore_Delete(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	s := testCookieStore(t)
	sess := &Session{User: testUser()}
	rec := httptest.NewRecorder()
	require.NoError(s.Delete(rec, httptest.NewRequest(http.MethodGet, "/", nil), sess))
	assert.False(sess.IsAuthenticated())

	cookies := rec.Result().Cookies()
	require.Len(cookies, 1)
	assert.Equal("test_session", cookies[0].Name)
	assert.Empty(cookies[0].Value)
	assert.Less(cookies[0].MaxAge, 0)
}
