// Package logger is the leveled stdout logger shared by the cloudbox
// binaries. Components tag their lines so interleaved output from the
// dev server, the relay and the UI bridge stays readable.
package logger

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	currentLevel = LevelInfo
	logger       = stdlog.New(os.Stdout, "", 0)
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel = LevelDebug
	case "INFO":
		currentLevel = LevelInfo
	case "WARN":
		currentLevel = LevelWarn
	case "ERROR":
		currentLevel = LevelError
	}
}

// SetOutput redirects log output, e.g. to a buffer in tests.
func SetOutput(w io.Writer) {
	logger = stdlog.New(w, "", 0)
}

func log(level Level, component, format string, v ...any) {
	if level < currentLevel {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	prefix := fmt.Sprintf("[%s] [%s] ", timestamp, level.String())
	if component != "" {
		prefix += fmt.Sprintf("[%s] ", component)
	}
	message := fmt.Sprintf(format, v...)
	logger.Println(prefix + message)
}

func Debug(format string, v ...any) {
	log(LevelDebug, "", format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, "", format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, "", format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, "", format, v...)
}

// Scoped is a logger bound to one component tag.
type Scoped struct {
	component string
}

// Component returns a logger that tags every line with name.
func Component(name string) *Scoped {
	return &Scoped{component: name}
}

func (s *Scoped) Debug(format string, v ...any) {
	log(LevelDebug, s.component, format, v...)
}

func (s *Scoped) Info(format string, v ...any) {
	log(LevelInfo, s.component, format, v...)
}

func (s *Scoped) Warn(format string, v ...any) {
	log(LevelWarn, s.component, format, v...)
}

func (s *Scoped) Error(format string, v ...any) {
	log(LevelError, s.component, format, v...)
}
