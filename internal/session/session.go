// Package session persists the conversation across runs. Turns are appended
// after every completed exchange; the on-disk file is the crash-recovery
// source for --recover.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"goq/internal/fileutil"
	"goq/internal/logging"
)

// Roles a turn can carry.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleResult    = "result" // serialized action + execution result
)

// Turn is one entry of the conversation.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the ordered, bounded conversation state. Exactly one current
// instance exists per process; it is owned by the main control loop.
type Session struct {
	ID    string `json:"id"`
	Turns []Turn `json:"turns"`
}

// ErrCorrupt marks an unreadable on-disk session. Startup treats it as a
// fresh session with a warning, never as a fatal error.
type ErrCorrupt struct {
	Path  string
	Cause error
}

func (e *ErrCorrupt) Error() string {
	return fmt.Sprintf("session file %s is corrupt: %v", e.Path, e.Cause)
}

func (e *ErrCorrupt) Unwrap() error { return e.Cause }

// Store reads and writes the session file for one project. The filename
// carries a hash of the project path so sessions from different working
// directories do not collide.
type Store struct {
	path     string
	maxTurns int
}

// DefaultMaxTurns bounds the session when configuration is silent.
const DefaultMaxTurns = 10

// NewStore creates a store under configDir for the given project path.
func NewStore(configDir, projectPath string, maxTurns int) (*Store, error) {
	dir := filepath.Join(configDir, "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create session directory: %w", err)
	}
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	sum := sha256.Sum256([]byte(projectPath))
	name := "session-" + hex.EncodeToString(sum[:8]) + ".json"
	return &Store{path: filepath.Join(dir, name), maxTurns: maxTurns}, nil
}

// Path returns the on-disk location of the session file.
func (s *Store) Path() string { return s.path }

// New creates a fresh session seeded with the system turn.
func (s *Store) New(systemPrompt string) *Session {
	return &Session{
		ID:    uuid.NewString(),
		Turns: []Turn{{Role: RoleSystem, Content: systemPrompt, Timestamp: time.Now()}},
	}
}

// Append adds a turn, trims to the bound, and persists. The previous file
// content is only replaced on a successful atomic write.
func (s *Store) Append(sess *Session, role, content string) error {
	sess.Turns = append(sess.Turns, Turn{Role: role, Content: content, Timestamp: time.Now()})
	s.trim(sess)
	return s.Save(sess)
}

// trim keeps the leading system turn plus the last maxTurns others.
func (s *Store) trim(sess *Session) {
	var system *Turn
	rest := sess.Turns
	if len(rest) > 0 && rest[0].Role == RoleSystem {
		system = &rest[0]
		rest = rest[1:]
	}
	if len(rest) > s.maxTurns {
		rest = rest[len(rest)-s.maxTurns:]
	}
	trimmed := make([]Turn, 0, len(rest)+1)
	if system != nil {
		trimmed = append(trimmed, *system)
	}
	sess.Turns = append(trimmed, rest...)
}

// Save writes the session atomically.
func (s *Store) Save(sess *Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot encode session: %w", err)
	}
	if err := fileutil.AtomicWrite(s.path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write session file: %w", err)
	}
	logging.Debug("session saved", "path", s.path, "turns", len(sess.Turns))
	return nil
}

// Load reads the most recent session. A missing file returns (nil, nil);
// unreadable content returns *ErrCorrupt.
func (s *Store) Load() (*Session, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &ErrCorrupt{Path: s.path, Cause: err}
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, &ErrCorrupt{Path: s.path, Cause: err}
	}
	return &sess, nil
}

// Reset replaces the in-memory session with just the system turn. The
// on-disk recovery file is deliberately left alone until the next natural
// turn write.
func (s *Store) Reset(sess *Session, systemPrompt string) {
	sess.ID = uuid.NewString()
	sess.Turns = []Turn{{Role: RoleSystem, Content: systemPrompt, Timestamp: time.Now()}}
}

// Tail returns the last n turns for the recovery preview.
func Tail(sess *Session, n int) []Turn {
	if len(sess.Turns) <= n {
		return sess.Turns
	}
	return sess.Turns[len(sess.Turns)-n:]
}
