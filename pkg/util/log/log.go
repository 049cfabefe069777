// Package log sets up the process-wide logger.
package log

import (
	"flag"
	"fmt"
	"io"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	dslog "github.com/grafana/dskit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Logger is the process-wide logger. It discards everything until
// [InitLogger] is called.
var Logger = log.NewNopLogger()

var plogger *prometheusLogger

// Config configures the process-wide logger.
type Config struct {
	LogLevel  dslog.Level `yaml:"log_level"`
	LogFormat string      `yaml:"log_format"`
}

// RegisterFlags registers the -log.level and -log.format flags.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.LogLevel.RegisterFlags(f)
	f.StringVar(&cfg.LogFormat, "log.format", "logfmt", "Output log messages in the given format. Valid formats: [logfmt, json]")
}

// Validate checks the log format.
func (cfg *Config) Validate() error {
	switch cfg.LogFormat {
	case "", "logfmt", "json":
		return nil
	}
	return fmt.Errorf("unsupported log format %q, expected logfmt or json", cfg.LogFormat)
}

// InitLogger replaces [Logger] with a logger writing to w. Log lines are
// counted per level in reg, which may be nil.
func InitLogger(cfg *Config, reg prometheus.Registerer, w io.Writer) log.Logger {
	plogger = newPrometheusLogger(cfg.LogLevel, cfg.LogFormat, reg, w)
	Logger = log.With(plogger, "caller", log.Caller(4))
	return Logger
}

// prometheusLogger counts the messages it logs by level.
type prometheusLogger struct {
	baseLogger  log.Logger
	logMessages *prometheus.CounterVec
}

func newPrometheusLogger(l dslog.Level, format string, reg prometheus.Registerer, w io.Writer) *prometheusLogger {
	var logger log.Logger
	if format == "json" {
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	}
	logger = level.NewFilter(logger, l.Option)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	logMessages := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "log_messages_total",
		Help: "Total number of log messages by level",
	}, []string{"level"})
	for _, v := range []level.Value{level.DebugValue(), level.InfoValue(), level.WarnValue(), level.ErrorValue()} {
		logMessages.WithLabelValues(v.String())
	}

	return &prometheusLogger{baseLogger: logger, logMessages: logMessages}
}

// Log implements [log.Logger].
func (pl *prometheusLogger) Log(kv ...any) error {
	err := pl.baseLogger.Log(kv...)

	l := "unknown"
	for i := 1; i < len(kv); i += 2 {
		if v, ok := kv[i].(level.Value); ok {
			l = v.String()
			break
		}
	}
	pl.logMessages.WithLabelValues(l).Inc()
	return err
}
