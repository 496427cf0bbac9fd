package code

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// FailCounter tracks failed confirmation-code attempts per email across however many front-end processes share one
// Postgres. The default Manager only needs this when run as more than one process; a single-process deployment is
// fully served by the in-memory map in code.go.
type FailCounter interface {
	// Incr increments the failure count for email and returns the new total. The count expires after ttl of
	// inactivity, mirroring a code's own lifetime so a stale counter never outlives the code it was counting against.
	Incr(ctx context.Context, email string, ttl time.Duration) (int64, error)
	// Reset clears the failure count for email, called on a correct guess or a fresh code.
	Reset(ctx context.Context, email string) error
}

// ValkeyFailCounter implements FailCounter on a shared Valkey/Redis instance so every front-end process sees the
// same failed-attempt count for a given email.
type ValkeyFailCounter struct {
	client *redis.Client
	prefix string
}

// NewValkeyFailCounter wraps an already-connected client. keyPrefix namespaces the counters (e.g. "comcore:codefail:")
// so they don't collide with other uses of the same Valkey instance.
func NewValkeyFailCounter(client *redis.Client, keyPrefix string) *ValkeyFailCounter {
	return &ValkeyFailCounter{client: client, prefix: keyPrefix}
}

func (v *ValkeyFailCounter) Incr(ctx context.Context, email string, ttl time.Duration) (int64, error) {
	key := v.prefix + email
	pipe := v.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (v *ValkeyFailCounter) Reset(ctx context.Context, email string) error {
	return v.client.Del(ctx, v.prefix+email).Err()
}

// UseDistributedFailCounter attaches a FailCounter that CheckCode consults in addition to its local in-process
// count, so a code is discarded once either tally reaches maxFails — whichever process sees the final failed
// attempt is the one that deletes the entry locally, but every process's count keeps climbing toward the same
// shared ceiling.
func (m *Manager) UseDistributedFailCounter(fc FailCounter) {
	m.dist = fc
}
