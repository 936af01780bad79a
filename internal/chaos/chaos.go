// Package chaos injects seeded delays and dropped calls into the exchange's
// gRPC server. A delayed or dropped Tick is how a stalled subscriber looks
// from everyone else's side of the barrier.
package chaos

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Chaos provides deterministic failure injection
type Chaos struct {
	cfg    Config
	logger *zap.Logger
	rng    *rand.Rand
	mu     sync.Mutex
	start  time.Time
}

// New creates a new Chaos instance. A profile overrides the individual drop
// and delay settings it names.
func New(cfg *Config, logger *zap.Logger) (*Chaos, error) {
	c := &Chaos{
		cfg:    *cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		start:  time.Now(),
	}

	if cfg.Profile != "" {
		dropPct, delayMin, delayMax, err := ParseProfile(cfg.Profile)
		if err != nil {
			return nil, err
		}
		if dropPct > 0 {
			c.cfg.DropPct = dropPct
		}
		if delayMin > 0 || delayMax > 0 {
			c.cfg.DelayMsMin = delayMin
			c.cfg.DelayMsMax = delayMax
		}
	}

	return c, nil
}

// EnabledFor checks if chaos is enabled for a gRPC method
func (c *Chaos) EnabledFor(method string) bool {
	if !c.cfg.Enabled {
		return false
	}

	if c.cfg.WindowMs > 0 {
		if time.Since(c.start).Milliseconds() > int64(c.cfg.WindowMs) {
			return false
		}
	}

	if c.cfg.TargetMethod != "" && !strings.HasSuffix(method, c.cfg.TargetMethod) {
		return false
	}

	return true
}

// MaybeDelay injects a random delay if chaos is enabled
func (c *Chaos) MaybeDelay(ctx context.Context, method string) error {
	if !c.EnabledFor(method) {
		return nil
	}

	if c.cfg.DelayMsMin == 0 && c.cfg.DelayMsMax == 0 {
		return nil
	}

	c.mu.Lock()
	delayMs := c.cfg.DelayMsMin
	if c.cfg.DelayMsMax > c.cfg.DelayMsMin {
		delayMs += c.rng.Intn(c.cfg.DelayMsMax - c.cfg.DelayMsMin + 1)
	}
	c.mu.Unlock()

	if delayMs <= 0 {
		return nil
	}

	c.logger.Info("chaos delay injected",
		zap.String("method", method),
		zap.Int("delay_ms", delayMs),
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(delayMs) * time.Millisecond):
		return nil
	}
}

// MaybeDrop returns true if the request should be dropped
func (c *Chaos) MaybeDrop(method string) bool {
	if !c.EnabledFor(method) || c.cfg.DropPct == 0 {
		return false
	}

	c.mu.Lock()
	drop := c.rng.Intn(100) < c.cfg.DropPct
	c.mu.Unlock()

	if drop {
		c.logger.Info("chaos drop injected", zap.String("method", method))
	}
	return drop
}

// UnaryServerInterceptor delays calls and fails dropped ones with
// codes.Unavailable before they reach the handler.
func (c *Chaos) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := c.MaybeDelay(ctx, info.FullMethod); err != nil {
			return nil, status.FromContextError(err).Err()
		}
		if c.MaybeDrop(info.FullMethod) {
			return nil, status.Errorf(codes.Unavailable, "chaos: dropped %s", info.FullMethod)
		}
		return handler(ctx, req)
	}
}
