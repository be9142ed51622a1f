// Package log wraps a global zerolog logger used across the ballotbox node.
package log

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"path"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	RFC3339Milli = "2006-01-02T15:04:05.000Z07:00"
)

var (
	log   zerolog.Logger
	logMu sync.RWMutex
)

func init() {
	// $LOG_LEVEL allows raising the verbosity of tests without touching code.
	Init(cmp.Or(os.Getenv("LOG_LEVEL"), LogLevelError), "stderr", nil)
}

// Logger provides access to the global logger.
func Logger() *zerolog.Logger {
	l := getLogger()
	return &l
}

func getLogger() zerolog.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return log
}

func setLogger(l zerolog.Logger) {
	logMu.Lock()
	log = l
	logMu.Unlock()
}

// errorLevelWriter only forwards warnings and errors, it is used to keep a
// separate error log file.
type errorLevelWriter struct {
	io.Writer
}

var _ zerolog.LevelWriter = &errorLevelWriter{}

func (w *errorLevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.WarnLevel {
		return len(p), nil
	}
	return w.Writer.Write(p)
}

// Init configures the global logger. Output can be "stdout", "stderr" or a
// file path; paths ending in ".json" receive raw JSON lines while stdout gets
// the human readable format. If errorOutput is not nil, warnings and errors
// are also written there.
func Init(level, output string, errorOutput io.Writer) {
	lvl, err := parseLevel(level)
	if err != nil {
		panic(err.Error())
	}

	var outputs []io.Writer
	var out io.Writer
	switch output {
	case "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			panic(fmt.Sprintf("cannot create log output: %v", err))
		}
		out = f
		if strings.HasSuffix(output, ".json") {
			outputs = append(outputs, f)
			out = os.Stdout
		}
	}
	outputs = append(outputs, zerolog.ConsoleWriter{Out: out, TimeFormat: RFC3339Milli})
	if errorOutput != nil {
		outputs = append(outputs, &errorLevelWriter{zerolog.ConsoleWriter{
			Out:        errorOutput,
			TimeFormat: RFC3339Milli,
			NoColor:    true,
		}})
	}
	setLogger(newLogger(zerolog.MultiLevelWriter(outputs...), lvl))
	Infof("logger construction succeeded at level %s with output %s", level, output)
}

// SetOutput replaces the logger writer keeping the current level. Mostly
// useful for tests that need to inspect the produced log lines.
func SetOutput(w io.Writer) zerolog.Logger {
	previous := getLogger()
	setLogger(newLogger(w, previous.GetLevel()))
	return previous
}

// RestoreLogger restores a logger returned by SetOutput.
func RestoreLogger(previous zerolog.Logger) {
	setLogger(previous)
}

func newLogger(w io.Writer, lvl zerolog.Level) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	// skip the frames added by this package
	zerolog.CallerSkipFrameCount = 3
	zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
		return fmt.Sprintf("%s/%s:%d", path.Base(path.Dir(file)), path.Base(file), line)
	}
	return zerolog.New(w).With().Timestamp().Caller().Logger().Level(lvl)
}

func parseLevel(level string) (zerolog.Level, error) {
	switch level {
	case LogLevelDebug:
		return zerolog.DebugLevel, nil
	case LogLevelInfo:
		return zerolog.InfoLevel, nil
	case LogLevelWarn:
		return zerolog.WarnLevel, nil
	case LogLevelError:
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("invalid log level: %q", level)
	}
}

// Level returns the current log level.
func Level() string {
	switch getLogger().GetLevel() {
	case zerolog.DebugLevel:
		return LogLevelDebug
	case zerolog.InfoLevel:
		return LogLevelInfo
	case zerolog.WarnLevel:
		return LogLevelWarn
	default:
		return LogLevelError
	}
}

// Debug sends a debug level log message.
func Debug(args ...any) {
	l := getLogger()
	if l.GetLevel() > zerolog.DebugLevel {
		return
	}
	l.Debug().Msg(fmt.Sprint(args...))
}

// Info sends an info level log message.
func Info(args ...any) {
	l := getLogger()
	l.Info().Msg(fmt.Sprint(args...))
}

// Warn sends a warn level log message.
func Warn(args ...any) {
	l := getLogger()
	l.Warn().Msg(fmt.Sprint(args...))
}

// Error sends an error level log message.
func Error(args ...any) {
	l := getLogger()
	l.Error().Msg(fmt.Sprint(args...))
}

// Fatal logs the message with the stack trace and exits.
func Fatal(args ...any) {
	l := getLogger()
	l.Fatal().Msg(fmt.Sprint(args...) + "\n" + string(debug.Stack()))
	panic("unreachable")
}

// Monitor logs at info level a message with a map of fields, without the
// caller information. It is used for periodic status reports.
func Monitor(msg string, fields map[string]any) {
	l := getLogger()
	l.Info().CallerSkipFrame(100).Fields(fields).Msg(msg)
}

func Debugf(template string, args ...any) {
	Logger().Debug().Msgf(template, args...)
}

func Infof(template string, args ...any) {
	Logger().Info().Msgf(template, args...)
}

func Warnf(template string, args ...any) {
	Logger().Warn().Msgf(template, args...)
}

func Errorf(template string, args ...any) {
	Logger().Error().Msgf(template, args...)
}

func Fatalf(template string, args ...any) {
	Logger().Fatal().Msgf(template+"\n"+string(debug.Stack()), args...)
}

// Debugw sends a debug level log message with key-value pairs.
func Debugw(msg string, keyvalues ...any) {
	Logger().Debug().Fields(keyvalues).Msg(msg)
}

// Infow sends an info level log message with key-value pairs.
func Infow(msg string, keyvalues ...any) {
	Logger().Info().Fields(keyvalues).Msg(msg)
}

// Warnw sends a warning level log message with key-value pairs.
func Warnw(msg string, keyvalues ...any) {
	Logger().Warn().Fields(keyvalues).Msg(msg)
}

// Errorw sends an error level log message attaching the error.
func Errorw(err error, msg string) {
	Logger().Error().Err(err).Msg(msg)
}
