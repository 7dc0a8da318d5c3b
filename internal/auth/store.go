// Package auth owns the canonical in-memory authentication state and the
// routing decisions derived from it.
package auth

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/ebonics/ebonics-core/internal/identity"
	"github.com/ebonics/ebonics-core/internal/models"
	"github.com/google/uuid"
)

// ProfileStore is the profile/role lookup capability the store and resolver
// consume. GetByID returns (nil, nil) when no profile row exists.
type ProfileStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GetRoles(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// State is a snapshot of the authentication state. IsAuthenticated is always
// derived from User; IsLoading holds only while a triggered fetch is in
// flight.
type State struct {
	User            *models.Profile
	IsLoading       bool
	IsAuthenticated bool
}

// Store is the single owner of mutable authentication state. All mutation
// happens through its handlers; the UI layer only reads snapshots.
type Store struct {
	gateway  identity.Gateway
	profiles ProfileStore

	mu    sync.Mutex
	state State

	// Monotonic tag per refresh: a completion only commits when it is still
	// the latest issued, so out-of-order completions cannot clobber state.
	refreshSeq atomic.Uint64

	closed atomic.Bool
}

func NewStore(gateway identity.Gateway, profiles ProfileStore) *Store {
	return &Store{
		gateway:  gateway,
		profiles: profiles,
		state:    State{User: nil, IsLoading: true, IsAuthenticated: false},
	}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetUser replaces the current user directly, for callers that already hold a
// resolved profile. IsAuthenticated is recomputed from the user.
func (s *Store) SetUser(user *models.Profile) {
	s.refreshSeq.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{User: user, IsLoading: false, IsAuthenticated: user != nil}
}

// InitializeAuth performs one immediate session check, then opens a standing
// subscription to the gateway's change stream. The returned disposer releases
// the subscription; after it runs, stream events no longer mutate state.
func (s *Store) InitializeAuth(ctx context.Context) (func(), error) {
	session, err := s.gateway.Session(ctx)
	if err != nil {
		log.Printf("auth: initial session check failed: %v", err)
	}

	if session != nil {
		if err := s.RefreshUser(ctx); err != nil {
			log.Printf("auth: initial refresh failed: %v", err)
		}
	} else {
		s.SetUser(nil)
	}

	unsubscribe := s.gateway.OnSessionChange(s.handleSessionChange)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.closed.Store(true)
			unsubscribe()
		})
	}, nil
}

// handleSessionChange processes change-stream events in arrival order.
// Refreshes run asynchronously, so a later event can finish first; the
// sequence tag keeps the last-issued refresh authoritative.
func (s *Store) handleSessionChange(kind identity.EventKind, _ *identity.Session) {
	if s.closed.Load() {
		return
	}

	switch kind {
	case identity.EventSignedOut:
		// Invalidate any in-flight refresh so it cannot resurrect the user.
		s.refreshSeq.Add(1)
		s.mu.Lock()
		s.state = State{User: nil, IsLoading: false, IsAuthenticated: false}
		s.mu.Unlock()
	case identity.EventInitialSession, identity.EventSignedIn,
		identity.EventTokenRefreshed, identity.EventUserUpdated:
		seq := s.beginRefresh()
		go func() {
			if err := s.runRefresh(context.Background(), seq); err != nil {
				log.Printf("auth: refresh after %s failed: %v", kind, err)
			}
		}()
	}
}

// RefreshUser recomputes the authentication state from fresh fetches:
// identity first, then profile. An identity without a profile row settles to
// the unauthenticated terminal state, never an error.
func (s *Store) RefreshUser(ctx context.Context) error {
	return s.runRefresh(ctx, s.beginRefresh())
}

func (s *Store) beginRefresh() uint64 {
	seq := s.refreshSeq.Add(1)
	s.mu.Lock()
	s.state.IsLoading = true
	s.mu.Unlock()
	return seq
}

func (s *Store) runRefresh(ctx context.Context, seq uint64) error {
	session, err := s.gateway.Session(ctx)
	if err != nil {
		log.Printf("auth: session fetch failed: %v", err)
		s.commit(seq, nil)
		return err
	}
	if session == nil {
		s.commit(seq, nil)
		return nil
	}

	profile, err := s.profiles.GetByID(ctx, session.UserID)
	if err != nil {
		log.Printf("auth: profile fetch failed: %v", err)
		s.commit(seq, nil)
		return err
	}

	// profile may be nil here: signup left an identity without a profile
	// row. Recoverable; fail closed to unauthenticated.
	s.commit(seq, profile)
	return nil
}

// commit applies a refresh result if it is still the latest issued refresh
// and the store has not been disposed.
func (s *Store) commit(seq uint64, user *models.Profile) {
	if s.closed.Load() {
		return
	}
	if seq != s.refreshSeq.Load() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{User: user, IsLoading: false, IsAuthenticated: user != nil}
}

// SignOut delegates to the gateway. The unauthenticated terminal state is
// normally applied by the resulting signed_out stream event, keeping a single
// source of truth; a local failure clears it directly since no event will
// arrive.
func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	s.state.IsLoading = true
	s.mu.Unlock()

	if err := s.gateway.SignOut(ctx); err != nil {
		s.refreshSeq.Add(1)
		s.mu.Lock()
		s.state = State{User: nil, IsLoading: false, IsAuthenticated: false}
		s.mu.Unlock()
		return err
	}
	return nil
}
