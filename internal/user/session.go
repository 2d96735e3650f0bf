package user

import (
	"context"
	"fmt"
	"sync"

	"github.com/MikeMC777/campus-market/internal/apperr"
)

var ErrInactive = fmt.Errorf("%w: account is deactivated", apperr.ErrForbidden)

// Session holds the signed-in user for one identity. Current is synchronous
// and served from the cached copy; subscribers hear about every sign-in and
// sign-out.
type Session struct {
	lookup Lookup

	mu      sync.RWMutex
	current *User
	subs    map[int]func(*User)
	nextSub int
}

func NewSession(lookup Lookup) *Session {
	return &Session{lookup: lookup, subs: map[int]func(*User){}}
}

// Current returns a copy of the signed-in user, or nil.
func (s *Session) Current() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	u := *s.current
	return &u
}

// SignIn loads id and makes it current. Deactivated accounts are refused.
func (s *Session) SignIn(ctx context.Context, id string) (*User, error) {
	u, err := s.lookup.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, ErrInactive
	}
	s.set(u)
	return s.Current(), nil
}

// SignOut clears the cached user and any role-scoped state hanging off it.
func (s *Session) SignOut() {
	s.set(nil)
}

func (s *Session) set(u *User) {
	s.mu.Lock()
	s.current = u
	subs := make([]func(*User), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		if u == nil {
			fn(nil)
			continue
		}
		cp := *u
		fn(&cp)
	}
}

func (s *Session) Subscribe(fn func(*User)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Sessions keeps one Session per signed-in user id.
type Sessions struct {
	lookup Lookup

	mu        sync.Mutex
	sessions  map[string]*Session
	onSignOut []func(ctx context.Context, id string)
}

func NewSessions(lookup Lookup) *Sessions {
	return &Sessions{lookup: lookup, sessions: map[string]*Session{}}
}

// OnSignOut registers fn to run when a session ends.
func (s *Sessions) OnSignOut(fn func(ctx context.Context, id string)) {
	s.mu.Lock()
	s.onSignOut = append(s.onSignOut, fn)
	s.mu.Unlock()
}

// Resolve returns the live session for id, signing it in on first use.
func (s *Sessions) Resolve(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: missing user id", apperr.ErrForbidden)
	}
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if ok && sess.Current() != nil {
		return sess, nil
	}

	sess = NewSession(s.lookup)
	if _, err := sess.SignIn(ctx, id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if existing, ok := s.sessions[id]; ok && existing.Current() != nil {
		s.mu.Unlock()
		return existing, nil
	}
	s.sessions[id] = sess
	s.mu.Unlock()
	return sess, nil
}

// SignOut ends id's session and runs the sign-out hooks.
func (s *Sessions) SignOut(ctx context.Context, id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	hooks := append([]func(context.Context, string){}, s.onSignOut...)
	s.mu.Unlock()

	if ok {
		sess.SignOut()
	}
	for _, fn := range hooks {
		fn(ctx, id)
	}
}

// Refresh re-reads id so the next request sees a changed role or active
// flag. A session that can no longer sign in is ended.
func (s *Sessions) Refresh(ctx context.Context, id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	if _, err := sess.SignIn(ctx, id); err != nil {
		s.SignOut(ctx, id)
	}
}

// Active reports how many sessions are live.
func (s *Sessions) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
