// Package sessions maps opaque cookie identifiers to room participants.
package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quizclash/backend/go/internal/v1/logging"
	"github.com/quizclash/backend/go/internal/v1/store"
	"github.com/quizclash/backend/go/internal/v1/types"
)

// CookieName is the session cookie issued by the HTTP edge.
const CookieName = "quiz_session_id"

// document is the persisted layout.
type document struct {
	Sessions []types.SessionData `json:"sessions"`
}

// Store is the in-memory session registry with best-effort file persistence.
type Store struct {
	mu       sync.Mutex
	sessions map[string]types.SessionData
	path     string // empty disables persistence
	now      func() time.Time
}

// NewStore creates a session store. path may be empty to keep sessions
// in memory only.
func NewStore(path string) *Store {
	s := &Store{
		sessions: make(map[string]types.SessionData),
		path:     path,
		now:      time.Now,
	}
	s.load()
	return s
}

// newSessionID returns an opaque 32-hex identifier.
func newSessionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// Create issues a session for the given participant.
func (s *Store) Create(roomPin types.PinType, participantID types.ParticipantIDType, name string, role types.RoleType) types.SessionData {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := types.SessionData{
		SessionID:     newSessionID(),
		RoomPin:       roomPin,
		ParticipantID: participantID,
		Name:          name,
		Role:          role,
		CreatedAt:     s.now().UTC(),
	}
	s.sessions[session.SessionID] = session
	s.persistLocked()
	return session
}

// Get returns a copy of the session, if present.
func (s *Store) Get(sessionID string) (types.SessionData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	return session, ok
}

// Delete removes a session by ID.
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return
	}
	delete(s.sessions, sessionID)
	s.persistLocked()
}

// UpdateRole rewrites the stored role for every session of a participant.
// Called on host promotion.
func (s *Store) UpdateRole(roomPin types.PinType, participantID types.ParticipantIDType, role types.RoleType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for id, session := range s.sessions {
		if session.RoomPin == roomPin && session.ParticipantID == participantID {
			session.Role = role
			s.sessions[id] = session
			changed = true
		}
	}
	if changed {
		s.persistLocked()
	}
}

// DeleteByParticipant removes every session bound to the participant and
// returns the removed session IDs.
func (s *Store) DeleteByParticipant(roomPin types.PinType, participantID types.ParticipantIDType) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for id, session := range s.sessions {
		if session.RoomPin == roomPin && session.ParticipantID == participantID {
			removed = append(removed, id)
			delete(s.sessions, id)
		}
	}
	if len(removed) > 0 {
		s.persistLocked()
	}
	return removed
}

// Prune drops sessions whose room no longer exists. Called once after the
// registry restore at startup.
func (s *Store) Prune(roomExists func(types.PinType) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for id, session := range s.sessions {
		if !roomExists(session.RoomPin) {
			delete(s.sessions, id)
			pruned++
		}
	}
	if pruned > 0 {
		s.persistLocked()
	}
	return pruned
}

// persistLocked writes the session document. Sessions mutate rarely, so the
// write is synchronous; failures are swallowed (best-effort durability).
func (s *Store) persistLocked() {
	if s.path == "" {
		return
	}
	doc := document{Sessions: make([]types.SessionData, 0, len(s.sessions))}
	for _, session := range s.sessions {
		doc.Sessions = append(doc.Sessions, session)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return
	}
	if err := store.WriteFileAtomic(s.path, data); err != nil {
		logging.Warn(context.Background(), "Session snapshot write failed",
			zap.String("path", s.path), zap.Error(err))
	}
}

func (s *Store) load() {
	if s.path == "" {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		logging.Warn(context.Background(), "Dropping unparseable session snapshot",
			zap.String("path", s.path), zap.Error(err))
		_ = os.Remove(s.path)
		return
	}
	for _, session := range doc.Sessions {
		session.RoomPin = types.NormalizePin(string(session.RoomPin))
		s.sessions[session.SessionID] = session
	}
}
