package gate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"planbridge/internal/domain"
)

// ProbeFunc asks the remote service which tier the configured key belongs
// to. It must classify auth failures as TierInvalid rather than erroring.
type ProbeFunc func(ctx context.Context) (domain.Tier, error)

// TierCache is a process-wide single-slot cache for the key's tier. The
// probe runs at most once per process lifetime; on an authentication failure
// mid-session the dispatcher calls Reprobe exactly once to tolerate key
// rotation. The cache is passed by reference, never read as a global.
type TierCache struct {
	mu     sync.Mutex
	tier   domain.Tier
	probe  ProbeFunc
	logger *slog.Logger
}

func NewTierCache(probe ProbeFunc, logger *slog.Logger) *TierCache {
	return &TierCache{probe: probe, logger: logger}
}

// Resolve returns the cached tier, probing on first use. The lock is held
// across the probe so concurrent first calls converge on a single probe and
// a single cached value.
func (c *TierCache) Resolve(ctx context.Context) (domain.Tier, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tier != domain.TierUnknown {
		return c.tier, nil
	}
	return c.probeLocked(ctx)
}

// Reprobe discards the cached tier and probes again. Used after the remote
// service rejects a request as unauthenticated, in case the key was rotated
// since startup.
func (c *TierCache) Reprobe(ctx context.Context) (domain.Tier, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tier = domain.TierUnknown
	return c.probeLocked(ctx)
}

func (c *TierCache) probeLocked(ctx context.Context) (domain.Tier, error) {
	tier, err := c.probe(ctx)
	if err != nil {
		return domain.TierUnknown, fmt.Errorf("tier probe: %w", err)
	}
	c.tier = tier
	c.logger.Info("resolved API key tier", "tier", tier)
	return tier, nil
}
