package engine

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfig_RegisterFlags(t *testing.T) {
	var cfg Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.RegisterFlagsWithPrefix("engine.", fs)

	require.Equal(t, 16, cfg.CacheCapacity)
	require.Equal(t, uint64(64<<20), uint64(cfg.ConcatBytes))
	require.True(t, cfg.TransformOperatorsBiggerThanGPU)

	require.NoError(t, fs.Parse([]string{
		"-engine.concatenating-cache-bytes=1KB",
		"-engine.max-concurrent-scans=2",
		"-engine.transform-operators-bigger-than-gpu=false",
	}))
	require.Equal(t, uint64(1<<10), uint64(cfg.ConcatBytes))
	require.Equal(t, 2, cfg.MaxConcurrentScans)
	require.False(t, cfg.TransformOperatorsBiggerThanGPU)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{CacheCapacity: -1, MaxConcurrentScans: -2}
	err := cfg.Validate()
	require.ErrorContains(t, err, "cache capacity must not be negative, got -1")
	require.ErrorContains(t, err, "max concurrent scans must not be negative, got -2")

	_, err = New(Params{Config: cfg})
	require.Error(t, err)
}
