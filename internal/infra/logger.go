package infra

import (
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/filewatchd/internal/domain"
)

// NewConsoleLogger builds a stderr logger for foreground use. Output is
// human-readable on a terminal and JSON otherwise.
func NewConsoleLogger(debug bool) *zap.Logger {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Sampling = nil
	if debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	fd := os.Stderr.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// NewDaemonLogger opens the LogChannel for target. When syslog is not
// reachable, a foreground daemon logs to stderr instead. A detached daemon
// has no stderr, so it keeps retrying syslog on every entry and never
// fails: sweeping must not depend on the log sink.
func NewDaemonLogger(target domain.WatchTarget, foreground bool) *zap.Logger {
	return newDaemonLogger(target, foreground, dialLocalSyslog)
}

func newDaemonLogger(target domain.WatchTarget, foreground bool, dial syslogDialer) *zap.Logger {
	tag := ChannelName(target)

	w, err := dial(tag)
	if err == nil {
		return zap.New(newSyslogCore(w, zap.InfoLevel))
	}

	if foreground {
		logger := NewConsoleLogger(false).With(zap.String("channel", tag))
		logger.Warn("syslog unavailable, logging to stderr", zap.Error(err))
		return logger
	}
	return zap.New(newSyslogCore(newRedialWriter(tag, dial), zap.InfoLevel))
}
