package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store is the registry of live sessions, keyed by session id with a
// secondary index by connection key.
type Store struct {
	mu     sync.RWMutex
	byID   map[string]*Session
	byConn map[string]string

	now       func() time.Time
	newID     func(time.Time) string
	inboxSize int
}

func NewStore() *Store {
	return &Store{
		byID:   make(map[string]*Session),
		byConn: make(map[string]string),
		now:    time.Now,
		newID:  NewID,
	}
}

// Create registers a new session owned by connectionKey.
func (s *Store) Create(connectionKey string) (*Session, error) {
	if connectionKey == "" {
		return nil, errors.New("create session: empty connection key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byConn[connectionKey]; ok {
		return nil, fmt.Errorf("%w: %s owns %s", ErrConnectionInUse, connectionKey, id)
	}

	now := s.now().UTC()
	id := s.newID(now)
	for attempt := 0; s.byID[id] != nil; attempt++ {
		if attempt >= 8 {
			return nil, fmt.Errorf("create session: could not allocate unique id")
		}
		id = s.newID(now)
	}

	sess := newSession(id, connectionKey, now, s.inboxSize)
	s.byID[id] = sess
	s.byConn[connectionKey] = id
	return sess, nil
}

func (s *Store) Get(sessionID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byID[sessionID]
	return sess, ok
}

func (s *Store) GetByConnection(connectionKey string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byConn[connectionKey]
	if !ok {
		return nil, false
	}
	sess, ok := s.byID[id]
	return sess, ok
}

// Resolve finds the live session an upload refers to: exact session id,
// then connection key, then the connection key read as a session id.
func (s *Store) Resolve(sessionID, connectionKey string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sessionID != "" {
		if sess, ok := s.byID[sessionID]; ok {
			return sess, true
		}
	}
	if connectionKey == "" {
		return nil, false
	}
	if id, ok := s.byConn[connectionKey]; ok {
		if sess, ok := s.byID[id]; ok {
			return sess, true
		}
	}
	sess, ok := s.byID[connectionKey]
	return sess, ok
}

// Remove drops a session from the registry and returns it.
func (s *Store) Remove(sessionID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byID[sessionID]
	if !ok {
		return nil, false
	}
	delete(s.byID, sessionID)
	if s.byConn[sess.ConnectionKey] == sessionID {
		delete(s.byConn, sess.ConnectionKey)
	}
	return sess, true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// IDs returns the live session ids in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
