// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(opts)
	}
}

type storeOptions struct {
	withLogger    hclog.Logger
	withNowFunc   func() time.Time
	withKeyPrefix string
}

func storeDefaults() storeOptions {
	return storeOptions{
		withLogger:    hclog.NewNullLogger(),
		withNowFunc:   time.Now,
		withKeyPrefix: DefaultRedisKeyPrefix,
	}
}

func getStoreOpts(opt ...Option) storeOptions {
	opts := storeDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger for a Store.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if v, ok := o.(*storeOptions); ok && l != nil {
			v.withLogger = l
		}
	}
}

// WithNow provides an optional func for determining what the current time
// is.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if v, ok := o.(*storeOptions); ok && now != nil {
			v.withNowFunc = now
		}
	}
}

// WithKeyPrefix sets the redis key prefix used by a RedisStore.
func WithKeyPrefix(prefix string) Option {
	return func(o interface{}) {
		if v, ok := o.(*storeOptions); ok && prefix != "" {
			v.withKeyPrefix = prefix
		}
	}
}
