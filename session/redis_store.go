// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix prefixes the redis key of every session.
const DefaultRedisKeyPrefix = "capweb:session:"

// RedisStore keeps Sessions in redis. The cookie only carries the session
// id and each key expires with the cookie's max-age.
type RedisStore struct {
	client redis.UniversalClient
	cookie CookieOptions
	prefix string
	logger hclog.Logger
	now    func() time.Time
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore using the client.
//
// Supported options: WithLogger, WithNow, WithKeyPrefix
func NewRedisStore(client redis.UniversalClient, cookie CookieOptions, opt ...Option) (*RedisStore, error) {
	const op = "NewRedisStore"
	if client == nil {
		return nil, fmt.Errorf("%s: redis client is nil: %w", op, ErrNilParameter)
	}
	if err := cookie.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getStoreOpts(opt...)
	return &RedisStore{
		client: client,
		cookie: cookie,
		prefix: opts.withKeyPrefix,
		logger: opts.withLogger,
		now:    opts.withNowFunc,
	}, nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Load reads the Session named by the request's cookie. A missing cookie or
// a key that expired yields an empty Session.
func (s *RedisStore) Load(r *http.Request) (*Session, error) {
	const op = "RedisStore.Load"
	c, err := r.Cookie(s.cookie.Name)
	if err != nil || c.Value == "" {
		return New(), nil
	}
	if _, err := uuid.ParseUUID(c.Value); err != nil {
		return nil, fmt.Errorf("%s: session id is malformed: %w", op, ErrInvalidSession)
	}
	raw, err := s.client.Get(r.Context(), s.key(c.Value)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		s.logger.Debug("session not found", "id", c.Value)
		return New(), nil
	case err != nil:
		return nil, fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
	sess := New()
	if err := json.Unmarshal(raw, sess); err != nil {
		return nil, fmt.Errorf("%s: unable to decode session: %w: %w", op, ErrInvalidSession, err)
	}
	sess.ID = c.Value
	return sess, nil
}

// Save writes the Session to redis, allocating an id when it has none, and
// sets the cookie. A Session renewed by Login has its previous key removed.
func (s *RedisStore) Save(w http.ResponseWriter, r *http.Request, sess *Session) error {
	const op = "RedisStore.Save"
	if sess == nil {
		return fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	}
	if sess.ID == "" {
		id, err := uuid.GenerateUUID()
		if err != nil {
			return fmt.Errorf("%s: unable to generate session id: %w", op, err)
		}
		sess.ID = id
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("%s: unable to encode session: %w", op, err)
	}
	ctx := r.Context()
	if err := s.client.Set(ctx, s.key(sess.ID), raw, s.cookie.MaxAge).Err(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
	if sess.previousID != "" {
		if err := s.client.Del(ctx, s.key(sess.previousID)).Err(); err != nil {
			s.logger.Warn("unable to delete previous session", "error", err)
		}
		sess.previousID = ""
	}
	http.SetCookie(w, s.cookie.cookie(sess.ID, s.now()))
	return nil
}

// Delete removes the Session's key, expires the cookie and clears the
// Session.
func (s *RedisStore) Delete(w http.ResponseWriter, r *http.Request, sess *Session) error {
	const op = "RedisStore.Delete"
	if sess != nil && sess.ID != "" {
		if err := s.client.Del(r.Context(), s.key(sess.ID)).Err(); err != nil {
			return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
		}
	}
	http.SetCookie(w, s.cookie.expired())
	if sess != nil {
		sess.Clear()
		sess.ID = ""
	}
	return nil
}
