// Package log is the process-wide debug log of lazystage.
//
// Output has nowhere to go until the configuration names a debug_log file,
// so early lines are held in memory and written out by SetFile. Only the
// most recent maxPending bytes are held.
package log

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"sync"
)

const maxPending = 256 << 10

type sinkState int

const (
	statePending sinkState = iota
	stateFile
	stateDiscard
)

// sink is the io.Writer behind the package logger.
type sink struct {
	mu      sync.Mutex
	state   sinkState
	out     *os.File
	pending []byte
}

var (
	debugSink = &sink{}
	std       = log.New(debugSink, "", log.LstdFlags|log.Lmicroseconds)
)

func (s *sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateDiscard:
		return len(p), nil
	case stateFile:
		return s.writeOut(p)
	}
	s.hold(p)
	return len(p), nil
}

// writeOut syncs after every line so a crash keeps the tail of the log.
func (s *sink) writeOut(p []byte) (int, error) {
	n, err := s.out.Write(p)
	_ = s.out.Sync()
	return n, err
}

// hold copies p into the pending buffer, dropping whole lines from the
// front once it grows past maxPending.
func (s *sink) hold(p []byte) {
	s.pending = append(s.pending, p...)
	over := len(s.pending) - maxPending
	if over <= 0 {
		return
	}
	cut := over
	if i := bytes.IndexByte(s.pending[over:], '\n'); i >= 0 {
		cut += i + 1
	}
	s.pending = append([]byte(nil), s.pending[cut:]...)
}

func (s *sink) detach() error {
	if s.out == nil {
		return nil
	}
	err := s.out.Close()
	s.out = nil
	return err
}

func (s *sink) drop() {
	s.state = stateDiscard
	s.pending = nil
}

// SetFile sends debug output to path, appending, and flushes what was held
// so far. An empty path, or one that cannot be opened, discards pending
// and future output.
func SetFile(path string) error {
	s := debugSink
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.detach()
	if path == "" {
		s.drop()
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec
	if err != nil {
		s.drop()
		return err
	}
	s.out, s.state = f, stateFile
	if len(s.pending) > 0 {
		_, _ = s.writeOut(s.pending)
		s.pending = nil
	}
	return nil
}

// Close closes the log file. Output is held in memory again until the next
// SetFile; a discarding log stays discarding.
func Close() error {
	s := debugSink
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateFile {
		s.state = statePending
	}
	return s.detach()
}

func Printf(format string, args ...any) {
	std.Printf(format, args...)
}

func Println(v ...any) {
	std.Println(v...)
}

// Logger tags messages with a component name.
type Logger struct {
	name string
}

// Named returns a Logger printing "[name] message".
func Named(name string) *Logger {
	return &Logger{name: name}
}

func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.name == "" {
		Printf(format, args...)
		return
	}
	std.Printf("[%s] %s", l.name, fmt.Sprintf(format, args...))
}

// Errorf logs err with context and returns it unchanged.
func (l *Logger) Errorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	l.Printf("%s: %v", fmt.Sprintf(format, args...), err)
	return err
}
