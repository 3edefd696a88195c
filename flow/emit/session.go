package emit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SessionLogger writes a per-session JSONL log under the session storage
// directory. Execution events and free-form log records share one file so a
// run can be reconstructed in order.
//
// It implements Emitter; the executor attaches it alongside any user emitter.
type SessionLogger struct {
	mu        sync.Mutex
	f         *os.File
	sessionID string
	closed    bool
}

// NewSessionLogger opens (or creates) <dir>/<sessionID>.jsonl for appending.
func NewSessionLogger(dir, sessionID string) (*SessionLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, sessionID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	return &SessionLogger{f: f, sessionID: sessionID}, nil
}

// Emit implements Emitter. Write failures are dropped; logging must never
// fail a run.
func (l *SessionLogger) Emit(ev Event) {
	if ev.SessionID == "" {
		ev.SessionID = l.sessionID
	}
	l.write(map[string]any{
		"record": "event",
		"event":  ev,
	})
}

// Log writes a free-form record with a level, message, and optional data.
func (l *SessionLogger) Log(level, msg string, data map[string]any) {
	rec := map[string]any{
		"record":     "log",
		"time":       time.Now().UTC(),
		"session_id": l.sessionID,
		"level":      level,
		"message":    msg,
	}
	if len(data) > 0 {
		rec["data"] = data
	}
	l.write(rec)
}

func (l *SessionLogger) write(rec map[string]any) {
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.f.Write(append(b, '\n'))
}

// Close flushes and closes the underlying file. Safe to call twice.
func (l *SessionLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.f.Close()
}
