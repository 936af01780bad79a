package chaos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestParseProfile(t *testing.T) {
	drop, lo, hi, err := ParseProfile("drop-pct=30, delay=50-250")
	require.NoError(t, err)
	assert.Equal(t, 30, drop)
	assert.Equal(t, 50, lo)
	assert.Equal(t, 250, hi)

	for _, bad := range []string{"drop-pct=x", "drop-pct=101", "delay=5", "delay=9-3", "jitter=1"} {
		_, _, _, err := ParseProfile(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("CHAOS_ENABLED", "true")
	t.Setenv("CHAOS_TARGET_METHOD", "Tick")
	t.Setenv("CHAOS_SEED", "7")

	cfg := LoadConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "Tick", cfg.TargetMethod)
	assert.Equal(t, int64(7), cfg.Seed)
}

func TestInterceptor_DropsTargetOnly(t *testing.T) {
	c, err := New(&Config{Enabled: true, TargetMethod: "/exchange.v1.ExchangeService/Tick", DropPct: 100, Seed: 1}, zap.NewNop())
	require.NoError(t, err)
	intercept := c.UnaryServerInterceptor()

	handler := func(context.Context, any) (any, error) { return "ok", nil }

	_, err = intercept(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/exchange.v1.ExchangeService/Tick"}, handler)
	assert.Equal(t, codes.Unavailable, status.Code(err))

	resp, err := intercept(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/exchange.v1.ExchangeService/FetchQuotes"}, handler)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestInterceptor_Disabled(t *testing.T) {
	c, err := New(&Config{DropPct: 100, DelayMsMin: 1000, DelayMsMax: 1000}, zap.NewNop())
	require.NoError(t, err)

	start := time.Now()
	resp, err := c.UnaryServerInterceptor()(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/Tick"},
		func(context.Context, any) (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestMaybeDelay_RespectsContext(t *testing.T) {
	c, err := New(&Config{Enabled: true, Profile: "delay=5000-5000"}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.MaybeDelay(ctx, "/x/Tick"), context.DeadlineExceeded)
}

func TestNew_BadProfile(t *testing.T) {
	_, err := New(&Config{Profile: "drop-pct=abc"}, zap.NewNop())
	assert.Error(t, err)
}
