package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CredentialFetcher obtains a fresh credential and the instant it stops
// being valid.
type CredentialFetcher func(ctx context.Context) (value string, validUntil time.Time, err error)

// CredentialCache holds one process-wide credential. It is refreshed lazily
// once it is within margin of expiring, and concurrent refreshes collapse
// into a single fetch.
type CredentialCache struct {
	fetch  CredentialFetcher
	margin time.Duration
	now    func() time.Time

	mu         sync.Mutex
	value      string
	validUntil time.Time

	group singleflight.Group
}

func NewCredentialCache(fetch CredentialFetcher, margin time.Duration) *CredentialCache {
	return &CredentialCache{fetch: fetch, margin: margin, now: time.Now}
}

func (c *CredentialCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.value == "" || !c.now().Before(c.validUntil.Add(-c.margin)) {
		return "", false
	}
	return c.value, true
}

func (c *CredentialCache) Get(ctx context.Context) (string, error) {
	if v, ok := c.cached(); ok {
		return v, nil
	}

	v, err, _ := c.group.Do("credential", func() (any, error) {
		if v, ok := c.cached(); ok {
			return v, nil
		}

		// The refresh is shared, so one caller going away must not fail the others.
		value, validUntil, err := c.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.value, c.validUntil = value, validUntil
		c.mu.Unlock()
		return value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached credential, for instance after the remote side
// rejected it.
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	c.value, c.validUntil = "", time.Time{}
	c.mu.Unlock()
}
