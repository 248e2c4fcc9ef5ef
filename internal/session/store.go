// Package session keeps per-browser form state between requests.
package session

import (
	"context"
	"time"

	"loan-decision/internal/models"
)

// Store holds one FormState per session id. Get on an unknown or expired
// id returns a fresh empty state. TryLock guards the single outstanding
// submission per session and returns a token that Refresh and Unlock must
// present. A lock that is not refreshed within LockTTL expires.
type Store interface {
	Get(ctx context.Context, id string) (*models.FormState, error)
	Put(ctx context.Context, id string, state *models.FormState) error
	Delete(ctx context.Context, id string) error
	TryLock(ctx context.Context, id string) (token string, ok bool, err error)
	Refresh(ctx context.Context, id, token string) (ok bool, err error)
	Locked(ctx context.Context, id string) (bool, error)
	Unlock(ctx context.Context, id, token string) error
	LockTTL() time.Duration
}
