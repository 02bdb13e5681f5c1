package locks

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/mizanlaw/mizan/internal/config"
)

const (
	keyTimerLock = "timer:lock:%s"
	keySweepLock = "sweep:lock:%s"
)

// SessionGuard serializes per-lawyer timer mutations and scheduler sweeps
// across instances. When no redis address is configured the guard is
// disabled and every acquisition succeeds; the database unique index on
// timer sessions remains the correctness backstop.
type SessionGuard struct {
	enabled bool
	locker  *Locker
	lockTTL time.Duration
}

func NewSessionGuard(cfg config.Config) *SessionGuard {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	return &SessionGuard{
		enabled: true,
		locker:  NewLocker(client),
		lockTTL: 10 * time.Second,
	}
}

func (g *SessionGuard) Enabled() bool {
	return g != nil && g.enabled
}

func (g *SessionGuard) TryLockLawyer(ctx context.Context, lawyerID string) (string, bool, error) {
	if !g.Enabled() {
		return "", true, nil
	}
	return g.locker.TryLock(ctx, fmt.Sprintf(keyTimerLock, strings.TrimSpace(lawyerID)), g.lockTTL)
}

func (g *SessionGuard) ReleaseLawyer(ctx context.Context, lawyerID, token string) error {
	if !g.Enabled() {
		return nil
	}
	return g.locker.Release(ctx, fmt.Sprintf(keyTimerLock, strings.TrimSpace(lawyerID)), token)
}

func (g *SessionGuard) TryLockSweep(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	if !g.Enabled() {
		return "", true, nil
	}
	return g.locker.TryLock(ctx, fmt.Sprintf(keySweepLock, strings.TrimSpace(name)), ttl)
}

func (g *SessionGuard) ReleaseSweep(ctx context.Context, name, token string) error {
	if !g.Enabled() {
		return nil
	}
	return g.locker.Release(ctx, fmt.Sprintf(keySweepLock, strings.TrimSpace(name)), token)
}
