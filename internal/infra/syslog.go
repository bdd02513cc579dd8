package infra

import (
	"log/syslog"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/filewatchd/internal/domain"
)

// ProgramName identifies the daemon in the system log.
const ProgramName = "filewatchd"

// ChannelName returns the syslog tag for a daemon watching target.
func ChannelName(target domain.WatchTarget) string {
	return ProgramName + ":" + target.String()
}

// syslogWriter is the subset of *syslog.Writer used by the core.
type syslogWriter interface {
	Debug(m string) error
	Notice(m string) error
	Warning(m string) error
	Err(m string) error
	Crit(m string) error
	Close() error
}

// syslogCore is a zapcore.Core that writes each entry to the system log
// with a severity derived from the zap level:
//
//	debug -> LOG_DEBUG, info -> LOG_NOTICE, warn -> LOG_WARNING,
//	error -> LOG_ERR, dpanic/panic/fatal -> LOG_CRIT
type syslogCore struct {
	zapcore.LevelEnabler
	enc    zapcore.Encoder
	writer syslogWriter
}

// syslogDialer connects to the system log under tag.
type syslogDialer func(tag string) (syslogWriter, error)

// dialLocalSyslog opens the LogChannel on the LOG_DAEMON facility of the
// local syslog daemon. syslog adds timestamp and PID.
func dialLocalSyslog(tag string) (syslogWriter, error) {
	w, err := syslog.New(syslog.LOG_NOTICE|syslog.LOG_DAEMON, tag)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// redialWriter connects on first use and retries the connection on every
// write until syslog is reachable. Messages written before that are
// dropped. Once connected, *syslog.Writer reconnects by itself.
type redialWriter struct {
	tag  string
	dial syslogDialer

	mu sync.Mutex
	w  syslogWriter
}

func newRedialWriter(tag string, dial syslogDialer) *redialWriter {
	return &redialWriter{tag: tag, dial: dial}
}

func (r *redialWriter) conn() (syslogWriter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.w == nil {
		w, err := r.dial(r.tag)
		if err != nil {
			return nil, err
		}
		r.w = w
	}
	return r.w, nil
}

func (r *redialWriter) send(write func(syslogWriter) error) error {
	w, err := r.conn()
	if err != nil {
		return err
	}
	return write(w)
}

func (r *redialWriter) Debug(m string) error {
	return r.send(func(w syslogWriter) error { return w.Debug(m) })
}

func (r *redialWriter) Notice(m string) error {
	return r.send(func(w syslogWriter) error { return w.Notice(m) })
}

func (r *redialWriter) Warning(m string) error {
	return r.send(func(w syslogWriter) error { return w.Warning(m) })
}

func (r *redialWriter) Err(m string) error {
	return r.send(func(w syslogWriter) error { return w.Err(m) })
}

func (r *redialWriter) Crit(m string) error {
	return r.send(func(w syslogWriter) error { return w.Crit(m) })
}

func (r *redialWriter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.w == nil {
		return nil
	}
	err := r.w.Close()
	r.w = nil
	return err
}

func newSyslogCore(w syslogWriter, level zapcore.LevelEnabler) zapcore.Core {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.LevelKey = ""
	encCfg.CallerKey = ""
	encCfg.StacktraceKey = ""
	encCfg.NameKey = ""

	return &syslogCore{
		LevelEnabler: level,
		enc:          zapcore.NewConsoleEncoder(encCfg),
		writer:       w,
	}
}

func (c *syslogCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &syslogCore{
		LevelEnabler: c.LevelEnabler,
		enc:          c.enc.Clone(),
		writer:       c.writer,
	}
	for _, f := range fields {
		f.AddTo(clone.enc)
	}
	return clone
}

func (c *syslogCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *syslogCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	msg := strings.TrimSuffix(buf.String(), "\n")
	buf.Free()

	switch ent.Level {
	case zapcore.DebugLevel:
		return c.writer.Debug(msg)
	case zapcore.InfoLevel:
		return c.writer.Notice(msg)
	case zapcore.WarnLevel:
		return c.writer.Warning(msg)
	case zapcore.ErrorLevel:
		return c.writer.Err(msg)
	default:
		return c.writer.Crit(msg)
	}
}

// Sync is a no-op; syslog writes are unbuffered.
func (c *syslogCore) Sync() error {
	return nil
}
