package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger is the process-wide logrus instance.
	Logger *logrus.Logger

	mu             sync.Mutex
	currentLogFile string
)

// Config controls log level and optional rotating file output.
type Config struct {
	Level      string // debug, info, warn, error
	OutputFile string // empty means console only
	MaxSize    int    // MB per file before rotation
	MaxBackups int    // rotated files kept
	MaxAge     int    // days rotated files kept
	Compress   bool
	FileOnly   bool // suppress stdout, used when a TUI owns the terminal
}

// Init sets up the global logger. Safe to call more than once; the last
// configuration wins.
func Init(config Config) error {
	mu.Lock()
	defer mu.Unlock()

	l := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05",
	})

	var writers []io.Writer
	if !config.FileOnly {
		writers = append(writers, os.Stdout)
	}
	currentLogFile = config.OutputFile
	if config.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0o755); err != nil {
			return err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.OutputFile,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	}

	out := io.MultiWriter(writers...)
	l.SetOutput(out)

	// Mirror onto the package-level logrus logger so code using
	// logrus.WithField directly lands in the same file.
	logrus.SetOutput(out)
	logrus.SetLevel(level)

	Logger = l
	return nil
}

// InitDefault configures info-level console/file logging.
func InitDefault() error {
	return Init(Config{
		Level:      "info",
		OutputFile: "logs/godex.log",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	})
}

// CurrentLogFile returns the active log file path, if any.
func CurrentLogFile() string {
	mu.Lock()
	defer mu.Unlock()
	return currentLogFile
}

func Debug(args ...interface{}) {
	if Logger != nil {
		Logger.Debug(args...)
	}
}

func Debugf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Debugf(format, args...)
	}
}

func Info(args ...interface{}) {
	if Logger != nil {
		Logger.Info(args...)
	}
}

func Infof(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Infof(format, args...)
	}
}

func Warn(args ...interface{}) {
	if Logger != nil {
		Logger.Warn(args...)
	}
}

func Warnf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Warnf(format, args...)
	}
}

func Error(args ...interface{}) {
	if Logger != nil {
		Logger.Error(args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Errorf(format, args...)
	}
}

// WithField returns an entry with one extra field.
func WithField(key string, value interface{}) *logrus.Entry {
	if Logger != nil {
		return Logger.WithField(key, value)
	}
	return logrus.NewEntry(logrus.New())
}

// WithFields returns an entry with extra fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	if Logger != nil {
		return Logger.WithFields(fields)
	}
	return logrus.NewEntry(logrus.New())
}
