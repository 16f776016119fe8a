package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink is a session log file shared by component loggers.
// All logs for one daemon run are written to <dir>/<session-id>-shiplens.log.
type Sink struct {
	sessionID string
	path      string
	file      *os.File
	mu        sync.Mutex
	out       *log.Logger
	closeOnce sync.Once
}

// Logger provides leveled logging for one shiplens component.
// All log methods write unconditionally; there is no level filtering.
type Logger struct {
	component string
	sink      *Sink
}

// Open creates the log directory if needed and opens a new session log file.
//
// If the directory or file cannot be created, it returns a sink that writes to
// stderr along with the error, so callers can warn and continue.
func Open(dir string) (*Sink, error) {
	sessionID := uuid.New().String()

	if err := os.MkdirAll(dir, 0750); err != nil {
		return newFallbackSink(sessionID, fmt.Errorf("failed to create log directory: %w", err)), err
	}

	path := filepath.Join(dir, fmt.Sprintf("%s-shiplens.log", sessionID))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return newFallbackSink(sessionID, fmt.Errorf("failed to open log file: %w", err)), err
	}

	return &Sink{
		sessionID: sessionID,
		path:      path,
		file:      file,
		out:       log.New(file, "", 0),
	}, nil
}

// NewWriterSink returns a sink writing to w. Used for stderr output and tests.
func NewWriterSink(w io.Writer) *Sink {
	return &Sink{
		sessionID: uuid.New().String(),
		out:       log.New(w, "", 0),
	}
}

func newFallbackSink(sessionID string, cause error) *Sink {
	s := &Sink{
		sessionID: sessionID,
		out:       log.New(os.Stderr, "", 0),
	}
	s.out.Printf("WARNING: failed to initialize file logging: %v", cause)
	s.out.Printf("falling back to stderr logging")
	return s
}

// Logger returns a logger tagged with component.
func (s *Sink) Logger(component string) *Logger {
	return &Logger{component: component, sink: s}
}

// SessionID returns the session ID of this sink.
func (s *Sink) SessionID() string {
	return s.sessionID
}

// Path returns the log file path, or "" when writing to a stream.
func (s *Sink) Path() string {
	return s.path
}

// Close closes the log file. Safe to call multiple times.
func (s *Sink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.file != nil {
			err = s.file.Close()
		}
	})
	return err
}

func (s *Sink) write(component, level, message string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	entry := fmt.Sprintf("[%s] [%s] [%s] %s", timestamp, component, level, Redact(message))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.Println(entry)
}

var nopSink = NewWriterSink(io.Discard)

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return nopSink.Logger("nop")
}

// Debugf logs a debug-level message.
func (l *Logger) Debugf(format string, v ...any) {
	l.sink.write(l.component, "DEBUG", fmt.Sprintf(format, v...))
}

// Infof logs an info-level message.
func (l *Logger) Infof(format string, v ...any) {
	l.sink.write(l.component, "INFO", fmt.Sprintf(format, v...))
}

// Warnf logs a warning-level message.
func (l *Logger) Warnf(format string, v ...any) {
	l.sink.write(l.component, "WARN", fmt.Sprintf(format, v...))
}

// Errorf logs an error-level message.
func (l *Logger) Errorf(format string, v ...any) {
	l.sink.write(l.component, "ERROR", fmt.Sprintf(format, v...))
}

// Printf satisfies the printf-style logger interfaces of third-party servers.
func (l *Logger) Printf(format string, v ...any) {
	l.Infof(format, v...)
}

// Std returns a *log.Logger that routes through l at INFO level, for
// http.Server.ErrorLog and similar hooks.
func (l *Logger) Std() *log.Logger {
	return log.New(writerFunc(func(p []byte) (int, error) {
		msg := string(p)
		if n := len(msg); n > 0 && msg[n-1] == '\n' {
			msg = msg[:n-1]
		}
		l.Infof("%s", msg)
		return len(p), nil
	}), "", 0)
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

var bearerPattern = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9\-._~+/]+=*`)

// Redact replaces bearer credentials in s with a fixed marker.
func Redact(s string) string {
	return bearerPattern.ReplaceAllString(s, "${1}[REDACTED]")
}
