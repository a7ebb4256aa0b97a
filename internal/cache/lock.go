package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrLocked is returned by TryLock when the lock is already held.
var ErrLocked = errors.New("lock is already held")

// CycleLockKey guards import cycles across replicas sharing one database.
var CycleLockKey = Key("lock", "cycle")

// unlockScript deletes the key only if the token still matches.
const unlockScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`

// Lock is a SET NX EX lock on a single key. The TTL bounds how long a
// crashed holder can block others.
type Lock struct {
	r   *Redis
	key string
	ttl time.Duration
}

// NewLock returns a lock on key that expires after ttl.
func NewLock(r *Redis, key string, ttl time.Duration) *Lock {
	return &Lock{r: r, key: key, ttl: ttl}
}

// TryLock attempts to acquire the lock. On success it returns an unlock
// function that must be called to release it. If another holder has the
// lock, ErrLocked is returned.
func (l *Lock) TryLock(ctx context.Context) (unlock func(), err error) {
	token := randomToken()

	ok, err := l.r.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("cache lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		// Background context: release must not depend on the caller's context.
		_ = l.r.client.Eval(context.Background(), unlockScript, []string{l.key}, token).Err()
	}, nil
}

func randomToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
