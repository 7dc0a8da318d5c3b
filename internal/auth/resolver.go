package auth

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/ebonics/ebonics-core/internal/identity"
	"github.com/ebonics/ebonics-core/internal/navigation"
	"github.com/ebonics/ebonics-core/internal/prefs"
)

// FlagStore reads the persisted onboarding flag.
type FlagStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// Resolver is the routing-decision engine: invoked once at cold start and
// once per session change, it walks a fixed decision tree and issues exactly
// one navigation per invocation. Runs are tagged so a newer invocation
// supersedes the navigation of an older one still in flight.
type Resolver struct {
	store    *Store
	profiles ProfileStore
	flags    FlagStore
	nav      navigation.Navigator

	runSeq atomic.Uint64
}

func NewResolver(store *Store, profiles ProfileStore, flags FlagStore, nav navigation.Navigator) *Resolver {
	return &Resolver{
		store:    store,
		profiles: profiles,
		flags:    flags,
		nav:      nav,
	}
}

// Resolve evaluates the redirect decision tree for the given session,
// short-circuiting on the first match:
//
//  1. onboarding not completed  -> Onboarding
//  2. no session                -> Login
//  3. profile missing           -> Login (user cleared)
//  4. role fetch failed         -> Login (fail closed)
//  5. no roles assigned         -> RoleSelection
//  6. otherwise                 -> role-priority home
//
// It returns the chosen destination; the navigation side effect is skipped
// when a newer run has started in the meantime.
func (r *Resolver) Resolve(ctx context.Context, session *identity.Session) navigation.Destination {
	run := r.runSeq.Add(1)
	dest := r.decide(ctx, session)
	r.navigate(run, dest)
	return dest
}

func (r *Resolver) decide(ctx context.Context, session *identity.Session) navigation.Destination {
	value, ok, err := r.flags.Get(ctx, prefs.KeyOnboardingCompleted)
	if err != nil {
		log.Printf("resolver: onboarding flag read failed: %v", err)
	}
	if err != nil || !ok || value != "true" {
		return navigation.Onboarding
	}

	if session == nil {
		r.store.SetUser(nil)
		return navigation.Login
	}

	profile, err := r.profiles.GetByID(ctx, session.UserID)
	if err != nil {
		log.Printf("resolver: profile fetch failed: %v", err)
		r.store.SetUser(nil)
		return navigation.Login
	}
	if profile == nil {
		// Identity without a profile row: incomplete signup, treat the
		// account as invalid rather than crashing.
		r.store.SetUser(nil)
		return navigation.Login
	}

	r.store.SetUser(profile)

	roles, err := r.profiles.GetRoles(ctx, session.UserID)
	if err != nil {
		log.Printf("resolver: role fetch failed: %v", err)
		return navigation.Login
	}

	if len(roles) == 0 {
		return navigation.RoleSelection
	}

	return ResolveRoles(roles)
}

// navigate issues the redirect only when this run is still the newest; a
// superseded run's outcome is dropped so concurrent invocations never race
// to conflicting destinations.
func (r *Resolver) navigate(run uint64, dest navigation.Destination) {
	if run != r.runSeq.Load() {
		return
	}
	r.nav.Replace(dest)
}
