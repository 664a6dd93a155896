package userpool

import "sync"

// signInState is the continuation context of the one in-flight sign-in
// attempt. The triple session/username/challenge is always read and
// written as a unit.
type signInState struct {
	Username      string
	Session       string
	ChallengeName string
	Details       SignInDetails
}

// signInStateStore holds at most one active attempt process-wide.
// Every orchestrator exit path, success or failure, clears the slot so
// a failed attempt can never contaminate the next.
type signInStateStore struct {
	mu     sync.Mutex
	active *signInState
}

func newSignInStateStore() *signInStateStore {
	return &signInStateStore{}
}

// begin claims the slot for username. A fresh begin for the username
// already holding the slot replaces the stale attempt; a begin for a
// different username while one is active is a caller error.
func (s *signInStateStore) begin(username string, details SignInDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil && s.active.Username != username {
		return ErrSignInInProgress
	}
	s.active = &signInState{
		Username: username,
		Details:  details,
	}
	return nil
}

// advance records the next challenge round for the active attempt.
func (s *signInStateStore) advance(username, session, challengeName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil || s.active.Username != username {
		return
	}
	s.active = &signInState{
		Username:      username,
		Session:       session,
		ChallengeName: challengeName,
		Details:       s.active.Details,
	}
}

// snapshot returns a copy of the active attempt, or nil when the slot
// is empty.
func (s *signInStateStore) snapshot() *signInState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return nil
	}
	copied := *s.active
	return &copied
}

func (s *signInStateStore) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
}
