// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hashicorp/go-uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s, err := NewRedisStore(client, CookieOptions{Name: "test_session", MaxAge: time.Hour}, WithKeyPrefix("test:"))
	require.NoError(t, err)
	return s, mr
}

func TestNewRedisStore(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	_, err := NewRedisStore(nil, CookieOptions{})
	assert.ErrorIs(err, ErrNilParameter)

	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()
	_, err = NewRedisStore(client, CookieOptions{MaxAge: time.Millisecond})
	assert.ErrorIs(err, ErrInvalidParameter)

	s, err := NewRedisStore(client, CookieOptions{})
	assert.NoError(err)
	assert.Equal(DefaultRedisKeyPrefix, s.prefix)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	s, mr := testRedisStore(t)

	sess := &Session{Flow: &Flow{StateID: "st_1", NonceID: "n_1", ReturnTo: "/profile", Expiration: time.Now().Add(time.Minute).Truncate(time.Second)}}
	rec := httptest.NewRecorder()
	require.NoError(s.Save(rec, httptest.NewRequest(http.MethodGet, "/", nil), sess))
	require.NotEmpty(sess.ID)

	assert.True(mr.Exists("test:" + sess.ID))
	assert.Equal(time.Hour, mr.TTL("test:"+sess.ID))

	cookies := rec.Result().Cookies()
	require.Len(cookies, 1)
	assert.Equal(sess.ID, cookies[0].Value)
	assert.True(cookies[0].HttpOnly)
	assert.Equal(http.SameSiteLaxMode, cookies[0].SameSite)

	got, err := s.Load(testRequestWithCookies(t, rec))
	require.NoError(err)
	assert.Equal(sess.ID, got.ID)
	assert.False(got.IsAuthenticated())
	require.NotNil(got.Flow)
	assert.Equal("st_1", got.Flow.StateID)
	assert.Equal("/profile", got.Flow.ReturnTo)
}

func TestRedisStore_Login(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	s, mr := testRedisStore(t)

	sess := &Session{Flow: &Flow{StateID: "st_1"}}
	require.NoError(s.Save(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), sess))
	oldID := sess.ID

	sess.Login(testUser())
	rec := httptest.NewRecorder()
	require.NoError(s.Save(rec, httptest.NewRequest(http.MethodGet, "/", nil), sess))
	assert.NotEqual(oldID, sess.ID)
	assert.False(mr.Exists("test:" + oldID))
	assert.True(mr.Exists("test:" + sess.ID))

	got, err := s.Load(testRequestWithCookies(t, rec))
	require.NoError(err)
	assert.True(got.IsAuthenticated())
	assert.Equal(testUser(), got.User)
	assert.Nil(got.Flow)
}

func TestRedisStore_Load(t *testing.T) {
	t.Parallel()
	missingID, err := uuid.GenerateUUID()
	require.NoError(t, err)

	tests := []struct {
		name      string
		setup     func(t *testing.T, s *RedisStore, mr *miniredis.Miniredis) *http.Cookie
		wantAuthn bool
		wantIsErr error
	}{
		{
			name:  "no-cookie",
			setup: func(*testing.T, *RedisStore, *miniredis.Miniredis) *http.Cookie { return nil },
		},
		{
			name: "malformed-id",
			setup: func(*testing.T, *RedisStore, *miniredis.Miniredis) *http.Cookie {
				return &http.Cookie{Name: "test_session", Value: "../../etc/passwd"}
			},
			wantIsErr: ErrInvalidSession,
		},
		{
			name: "unknown-id",
			setup: func(*testing.T, *RedisStore, *miniredis.Miniredis) *http.Cookie {
				return &http.Cookie{Name: "test_session", Value: missingID}
			},
		},
		{
			name: "expired",
			setup: func(t *testing.T, s *RedisStore, mr *miniredis.Miniredis) *http.Cookie {
				sess := &Session{User: testUser()}
				require.NoError(t, s.Save(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), sess))
				mr.FastForward(2 * time.Hour)
				return &http.Cookie{Name: "test_session", Value: sess.ID}
			},
		},
		{
			name: "corrupt-value",
			setup: func(t *testing.T, s *RedisStore, mr *miniredis.Miniredis) *http.Cookie {
				require.NoError(t, mr.Set("test:"+missingID, "{not json"))
				return &http.Cookie{Name: "test_session", Value: missingID}
			},
			wantIsErr: ErrInvalidSession,
		},
		{
			name: "valid",
			setup: func(t *testing.T, s *RedisStore, mr *miniredis.Miniredis) *http.Cookie {
				sess := &Session{User: testUser()}
				require.NoError(t, s.Save(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), sess))
				return &http.Cookie{Name: "test_session", Value: sess.ID}
			},
			wantAuthn: true,
		},
		{
			name: "unavailable",
			setup: func(t *testing.T, s *RedisStore, mr *miniredis.Miniredis) *http.Cookie {
				mr.SetError("LOADING redis is loading")
				return &http.Cookie{Name: "test_session", Value: missingID}
			},
			wantIsErr: ErrStoreUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			s, mr := testRedisStore(t)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if c := tt.setup(t, s, mr); c != nil {
				req.AddCookie(c)
			}
			got, err := s.Load(req)
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

func TestRedisStore_Delete(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	s, mr := testRedisStore(t)

	sess := &Session{User: testUser()}
	require.NoError(s.Save(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), sess))
	id := sess.ID

	rec := httptest.NewRecorder()
	require.NoError(s.Delete(rec, httptest.NewRequest(http.MethodGet, "/", nil), sess))
	assert.False(mr.Exists("test:" + id))
	assert.False(sess.IsAuthenticated())
	assert.Empty(sess.ID)
	cookies := rec.Result().Cookies()
	require.Len(cookies, 1)
	assert.Less(cookies[0].MaxAge, 0)

	sess = &Session{ID: id, User: testUser()}
	mr.SetError("READONLY")
	err := s.Delete(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), sess)
	assert.ErrorIs(err, ErrStoreUnavailable)
	assert.True(sess.IsAuthenticated())
}
