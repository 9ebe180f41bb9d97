package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Gateway logger (implements dragonboat's logger.ILogger)
// --------------------------------------------------------------------------

// gatewayLogger writes "LEVEL | package | message" lines. All package loggers
// share one output so lines of concurrent requests never interleave.
type gatewayLogger struct {
	name   string
	mu     sync.RWMutex
	level  logger.LogLevel
	output *log.Logger
}

func (l *gatewayLogger) SetLevel(level logger.LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *gatewayLogger) enabled(level logger.LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level >= level
}

func (l *gatewayLogger) Debugf(format string, args ...interface{}) {
	if l.enabled(logger.DEBUG) {
		l.log("DEBUG", format, args...)
	}
}

func (l *gatewayLogger) Infof(format string, args ...interface{}) {
	if l.enabled(logger.INFO) {
		l.log("INFO", format, args...)
	}
}

func (l *gatewayLogger) Warningf(format string, args ...interface{}) {
	if l.enabled(logger.WARNING) {
		l.log("WARN", format, args...)
	}
}

func (l *gatewayLogger) Errorf(format string, args ...interface{}) {
	if l.enabled(logger.ERROR) {
		l.log("ERROR", format, args...)
	}
}

func (l *gatewayLogger) Panicf(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.log("PANIC", "%s", message)
	panic(message)
}

func (l *gatewayLogger) log(levelStr string, format string, args ...interface{}) {
	l.output.Printf("%-5s | %-13s | %s", levelStr, l.name, fmt.Sprintf(format, args...))
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

var logOutput = log.New(os.Stdout, "", log.Ldate|log.Lmicroseconds)

// SetLogOutput redirects every gateway logger, the cmd package and tests use it
func SetLogOutput(w io.Writer) {
	logOutput.SetOutput(w)
}

// CreateLogger is the logger factory registered with dragonboat's logger package
func CreateLogger(pkgName string) logger.ILogger {
	return &gatewayLogger{
		name:   pkgName,
		level:  logger.INFO,
		output: logOutput,
	}
}

// --------------------------------------------------------------------------
// Log levels
// --------------------------------------------------------------------------

// loggerNames are the package loggers of the gateway
var loggerNames = []string{
	"rpc",
	"transport/rpc",
	"statecache",
	"writequeue",
	"cursor",
	"token",
	"auth",
	"trust",
	"storage",
	"stats",
}

// ParseLogLevel converts debug, info, warn or error to a logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, fmt.Errorf("invalid log level %q, must be one of debug, info, warn, error", level)
	}
}

// ParseLogLevels parses a log level spec of the form "info,cursor=debug":
// a default level followed by per package overrides
func ParseLogLevels(spec string) (map[string]logger.LogLevel, error) {
	parts := strings.Split(spec, ",")

	def, err := ParseLogLevel(parts[0])
	if err != nil {
		return nil, err
	}
	levels := make(map[string]logger.LogLevel, len(loggerNames))
	for _, name := range loggerNames {
		levels[name] = def
	}

	for _, part := range parts[1:] {
		name, level, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid log level override %q, expected package=level", part)
		}
		if _, known := levels[name]; !known {
			return nil, fmt.Errorf("unknown logger %q, must be one of %s", name, strings.Join(loggerNames, ", "))
		}
		if levels[name], err = ParseLogLevel(level); err != nil {
			return nil, err
		}
	}
	return levels, nil
}

// InitLoggers installs the gateway logger factory and applies the log levels of the config
func InitLoggers(config ServerConfig) error {
	levels, err := ParseLogLevels(config.LogLevel)
	if err != nil {
		return err
	}

	logger.SetLoggerFactory(CreateLogger)
	for name, level := range levels {
		logger.GetLogger(name).SetLevel(level)
	}
	return nil
}
