package logger

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level = zerolog.Level

const (
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

var (
	logFile     *os.File
	logDir      string
	currentDay  string
	logMu       sync.Mutex
	fileLogging bool

	base = newBase(io.Discard)
)

func newBase(file io.Writer) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006/01/02 15:04:05"}
	return zerolog.New(zerolog.MultiLevelWriter(console, file)).
		With().Timestamp().Logger().
		Level(zerolog.InfoLevel)
}

// Init enables file logging below logDir. An empty logDir keeps stdout only.
func Init(dir string) error {
	if dir == "" {
		return nil
	}
	// If caller passes /var/lib/gridlogin, write logs to /var/lib/gridlogin/logs.
	// If caller already passes .../logs, keep it as-is.
	resolved := dir
	if path.Base(filepath.ToSlash(dir)) != "logs" {
		resolved = filepath.Join(dir, "logs")
	}
	if err := os.MkdirAll(resolved, 0755); err != nil {
		return err
	}

	logMu.Lock()
	defer logMu.Unlock()
	logDir = resolved
	fileLogging = true
	if err := rotateLocked(time.Now()); err != nil {
		fileLogging = false
		return err
	}
	lvl := base.GetLevel()
	base = newBase(dailyWriter{}).Level(lvl)
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	fileLogging = false
}

// SetLevel accepts debug, info, warn or error. Unknown names leave the level unchanged.
func SetLevel(name string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || lvl == zerolog.NoLevel {
		return
	}
	logMu.Lock()
	base = base.Level(lvl)
	logMu.Unlock()
}

func Debug(format string, args ...interface{}) {
	log(LevelDebug, format, args...)
}

func Info(format string, args ...interface{}) {
	log(LevelInfo, format, args...)
}

func Warn(format string, args ...interface{}) {
	log(LevelWarn, format, args...)
}

func Error(format string, args ...interface{}) {
	log(LevelError, format, args...)
}

func log(lvl Level, format string, args ...interface{}) {
	logMu.Lock()
	l := base
	logMu.Unlock()
	l.WithLevel(lvl).Msg(fmt.Sprintf(format, args...))
}

// dailyWriter appends plain JSON lines to the log file of the current day.
type dailyWriter struct{}

func (dailyWriter) Write(p []byte) (int, error) {
	logMu.Lock()
	defer logMu.Unlock()
	if !fileLogging {
		return len(p), nil
	}
	if err := rotateLocked(time.Now()); err != nil || logFile == nil {
		return len(p), nil
	}
	return logFile.Write(p)
}

func rotateLocked(t time.Time) error {
	if logDir == "" {
		return nil
	}
	day := t.Format("2006-01-02")
	if logFile != nil && currentDay == day {
		return nil
	}
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	filePath := filepath.Join(logDir, day+".log")
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return err
	}
	logFile = f
	currentDay = day
	return nil
}
