package log

import (
	"bytes"
	"flag"
	"testing"

	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitLogger(t *testing.T) {
	var cfg Config
	require.NoError(t, cfg.LogLevel.Set("info"))
	cfg.LogFormat = "logfmt"

	var buf bytes.Buffer
	reg := prometheus.NewRegistry()
	logger := InitLogger(&cfg, reg, &buf)

	level.Debug(logger).Log("msg", "hidden")
	level.Info(logger).Log("msg", "shown", "query_id", "q1")
	level.Error(logger).Log("msg", "failed")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "level=info")
	require.Contains(t, buf.String(), "query_id=q1")
	require.Contains(t, buf.String(), "level=error")

	require.Equal(t, float64(1), testutil.ToFloat64(plogger.logMessages.WithLabelValues("debug")))
	require.Equal(t, float64(1), testutil.ToFloat64(plogger.logMessages.WithLabelValues("info")))
	require.Equal(t, float64(1), testutil.ToFloat64(plogger.logMessages.WithLabelValues("error")))
	require.Equal(t, float64(0), testutil.ToFloat64(plogger.logMessages.WithLabelValues("warn")))
}

func TestInitLogger_JSON(t *testing.T) {
	var cfg Config
	require.NoError(t, cfg.LogLevel.Set("debug"))
	cfg.LogFormat = "json"

	var buf bytes.Buffer
	logger := InitLogger(&cfg, nil, &buf)
	level.Debug(logger).Log("msg", "shown")

	require.Contains(t, buf.String(), `"level":"debug"`)
	require.Contains(t, buf.String(), `"msg":"shown"`)
}

func TestConfig_RegisterFlags(t *testing.T) {
	var cfg Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	require.Equal(t, "logfmt", cfg.LogFormat)
	require.NoError(t, cfg.Validate())

	require.NoError(t, fs.Parse([]string{"-log.format=json", "-log.level=debug"}))
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, "debug", cfg.LogLevel.String())
	require.NoError(t, cfg.Validate())

	cfg.LogFormat = "xml"
	require.ErrorContains(t, cfg.Validate(), `unsupported log format "xml"`)
}
