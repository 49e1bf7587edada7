package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:8080", cfg.Server.Address)
	require.InDelta(t, 0.72, cfg.Eval.PassThreshold, 1e-9)
	require.InDelta(t, 0.5, cfg.Eval.ClarifyThreshold, 1e-9)
	require.InDelta(t, 0.25, cfg.Eval.DefaultWeight, 1e-9)
	require.Equal(t, uint64(500000), cfg.Chain.GasLimit)
	require.Equal(t, 90*time.Second, cfg.Chain.Timeout)
	require.Equal(t, 24*time.Hour, cfg.Session.TTL)
	require.Equal(t, int64(10<<20), cfg.Uploads.MaxFileSize)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RFQ_SERVER_ADDRESS", "127.0.0.1:9999")
	t.Setenv("RFQ_EVAL_PASS_THRESHOLD", "0.8")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9999", cfg.Server.Address)
	require.InDelta(t, 0.8, cfg.Eval.PassThreshold, 1e-9)
}
