package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func levelString(level Level) string {
	switch level {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "?"
	}
}

var (
	sinkInstance *fileSink
	sinkOnce     sync.Once
)

// fileSink is the shared append-only log file under the NERVA home directory.
type fileSink struct {
	mu     sync.Mutex
	file   *os.File
	logger *log.Logger
	level  Level
}

func sharedSink() *fileSink {
	sinkOnce.Do(func() {
		sinkInstance = &fileSink{level: LevelDebug}
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		dir := filepath.Join(home, ".nerva", "logs")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return
		}
		file, err := os.OpenFile(filepath.Join(dir, "nerva-debug.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return
		}
		sinkInstance.file = file
		sinkInstance.logger = log.New(file, "", 0)
	})
	return sinkInstance
}

// SetLevel sets the minimum level written to the shared log file.
func SetLevel(level Level) {
	sink := sharedSink()
	sink.mu.Lock()
	sink.level = level
	sink.mu.Unlock()
}

func (s *fileSink) write(level Level, component, format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logger == nil || level < s.level {
		return
	}
	_, file, line, ok := runtime.Caller(3)
	if ok {
		file = filepath.Base(file)
	} else {
		file = "???"
		line = 0
	}
	if component == "" {
		component = "NERVA"
	}
	// Format: 2006-01-02 15:04:05 [LEVEL] [Component] file.go:123 - msg
	s.logger.Printf("%s [%s] [%s] %s:%d - %s",
		time.Now().Format("2006-01-02 15:04:05"),
		levelString(level),
		component,
		file, line,
		fmt.Sprintf(format, args...))
}

type componentLogger struct {
	component string
	sink      *fileSink
}

// NewComponentLogger returns a logger that writes to the shared NERVA log file
// tagged with the given component name.
func NewComponentLogger(component string) Logger {
	return &componentLogger{component: component, sink: sharedSink()}
}

func (l *componentLogger) Debug(format string, args ...any) {
	l.sink.write(LevelDebug, l.component, format, args...)
}

func (l *componentLogger) Info(format string, args ...any) {
	l.sink.write(LevelInfo, l.component, format, args...)
}

func (l *componentLogger) Warn(format string, args ...any) {
	l.sink.write(LevelWarn, l.component, format, args...)
}

func (l *componentLogger) Error(format string, args ...any) {
	l.sink.write(LevelError, l.component, format, args...)
}
