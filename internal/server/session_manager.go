package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/michaelbrown/aether/internal/sandbox"
)

// ActiveSandbox is a sandbox session currently serving a request.
type ActiveSandbox struct {
	Session  sandbox.Session
	OpenedAt time.Time
}

// SessionManager tracks which sandbox sessions are open so that none
// outlives the process.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*ActiveSandbox
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*ActiveSandbox),
	}
}

// Add registers an open session.
func (sm *SessionManager) Add(s sandbox.Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[s.ID()] = &ActiveSandbox{Session: s, OpenedAt: time.Now()}
}

// Remove forgets a session after it has been destroyed.
func (sm *SessionManager) Remove(sandboxID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, sandboxID)
}

// Get returns an open session if it exists.
func (sm *SessionManager) Get(sandboxID string) (*ActiveSandbox, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	as, ok := sm.sessions[sandboxID]
	return as, ok
}

// Count returns the number of open sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// IDs returns the ids of all open sessions, oldest first.
func (sm *SessionManager) IDs() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	all := make([]*ActiveSandbox, 0, len(sm.sessions))
	for _, as := range sm.sessions {
		all = append(all, as)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].OpenedAt.Before(all[j].OpenedAt) })

	ids := make([]string, len(all))
	for i, as := range all {
		ids[i] = as.Session.ID()
	}
	return ids
}

const closeConcurrency = 8

// CloseAll destroys every session still open.
func (sm *SessionManager) CloseAll(ctx context.Context) error {
	sm.mu.Lock()
	open := sm.sessions
	sm.sessions = make(map[string]*ActiveSandbox)
	sm.mu.Unlock()

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(closeConcurrency)
	for id, as := range open {
		g.Go(func() error {
			if err := as.Session.Close(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("closing sandbox %s: %w", id, err))
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}
