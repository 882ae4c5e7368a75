package view

import (
	"fmt"
	stdlog "log"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Custom Logger (implements logger.ILogger)
// --------------------------------------------------------------------------

// tcdbLogger implements the ILogger interface with custom formatting
type tcdbLogger struct {
	name   string
	level  logger.LogLevel
	logger *stdlog.Logger
}

func (l *tcdbLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *tcdbLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *tcdbLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *tcdbLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *tcdbLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *tcdbLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

// log formats and writes a log message. this internal helper is used by the public methods
func (l *tcdbLogger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-10s | %s", levelStr, l.name, message)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// CreateLogger implements the logger Factory interface
func CreateLogger(pkgName string) logger.ILogger {
	stdLogger := stdlog.New(os.Stdout, "", stdlog.Ldate|stdlog.Ltime)

	return &tcdbLogger{
		name:   pkgName,
		level:  logger.WARNING,
		logger: stdLogger,
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// parseLogLevel converts a string level to logger.LogLevel
func parseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, NewError(RetCConfig,
			fmt.Sprintf("invalid log level: %s. must be one of debug, info, warn, error", level))
	}
}

// libraryLoggers are the log targets of this module.
var libraryLoggers = []string{"view", "bucket", "fixed", "ordered"}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// InitLoggers installs the custom formatter factory for all library
// loggers and sets the given level on each of them.
func InitLoggers(level string) error {
	logger.SetLoggerFactory(CreateLogger)
	return SetLogLevel(level)
}

// SetLogLevel changes the level of all library loggers at once.
func SetLogLevel(level string) error {
	parsed, err := parseLogLevel(level)
	if err != nil {
		return err
	}
	for _, name := range libraryLoggers {
		logger.GetLogger(name).SetLevel(parsed)
	}
	return nil
}
