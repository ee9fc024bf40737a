package session

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/zerolog"
)

// Router owns the in-memory session tables: client identifier to session,
// session to worker URL, and the ffmpeg invocation status cache. All tables
// are process-scoped and grow for the lifetime of the process; only the
// persisted record has a deletion path (CleanSession), and that deletion
// deliberately does not cascade into the bindings.
type Router struct {
	selector Selector
	store    Store
	client   *http.Client
	logger   zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]string // X-Plex-Session-Identifier -> session
	workers  map[string]string // session -> worker base URL
	ffmpeg   map[string]int    // record id -> status
}

func NewRouter(selector Selector, store Store, logger zerolog.Logger) *Router {
	return &Router{
		selector: selector,
		store:    store,
		client:   &http.Client{},
		logger:   logger.With().Str("component", "session").Logger(),
		sessions: make(map[string]string),
		workers:  make(map[string]string),
		ffmpeg:   make(map[string]int),
	}
}

// ResolveWorker returns the worker URL owning session, consulting the
// selector only on the first resolution. Selector failures degrade to an
// empty URL; callers treat "" as retryable, not fatal.
func (rt *Router) ResolveWorker(ctx context.Context, session, clientAddr string) string {
	rt.mu.RLock()
	cached, ok := rt.workers[session]
	rt.mu.RUnlock()
	if ok {
		return cached
	}

	workerURL, err := rt.selector.ChooseServer(ctx, session, clientAddr)
	if err != nil {
		rt.logger.Debug().Err(err).Str("session", session).Msg("worker resolution degraded")
		workerURL = ""
	}
	rt.logger.Debug().Str("session", session).Str("worker", workerURL).Msg("server chosen")
	if workerURL != "" {
		rt.mu.Lock()
		rt.workers[session] = workerURL
		rt.mu.Unlock()
	}
	return workerURL
}

// Observe records the client-to-session binding whenever a request carries
// both the session identifier and the session itself. Later requests lacking
// an explicit session are recovered through this table.
func (rt *Router) Observe(query url.Values) {
	if query.Has(paramSessionIdentifier) && query.Has(paramSession) {
		rt.mu.Lock()
		rt.sessions[query.Get(paramSessionIdentifier)] = query.Get(paramSession)
		rt.mu.Unlock()
	}
}

// CachedSession looks up the session bound to an X-Plex-Session-Identifier.
func (rt *Router) CachedSession(identifier string) (string, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	s, ok := rt.sessions[identifier]
	return s, ok
}

// SessionFrom extracts a session identity from a request's path parameter
// and query values, in strict priority order. The boolean distinguishes
// "no session" from an empty session value.
func (rt *Router) SessionFrom(pathSession string, query url.Values) (string, bool) {
	if pathSession != "" {
		return pathSession, true
	}
	if query.Has(paramSession) {
		return query.Get(paramSession), true
	}
	if query.Has(paramSessionIdentifier) {
		identifier := query.Get(paramSessionIdentifier)
		if session, ok := rt.CachedSession(identifier); ok {
			return session, true
		}
		return identifier, true
	}
	if query.Has(paramClientIdentifier) {
		return query.Get(paramClientIdentifier), true
	}
	return "", false
}

// StoreRecord persists a parsed record under its session id. A later parse
// for the same session overwrites the earlier record. Store failures are
// logged, not surfaced.
func (rt *Router) StoreRecord(ctx context.Context, rec *Record) {
	if err := rt.store.Set(ctx, rec.Session, rec); err != nil {
		rt.logger.Warn().Err(err).Str("session", rec.Session).Msg("record store failed")
	}
}

// Record fetches the persisted record for a session.
func (rt *Router) Record(ctx context.Context, session string) (*Record, error) {
	return rt.store.Get(ctx, session)
}

// CleanSession deletes the persisted record. Worker and client bindings and
// the status cache are left alone; a reused session id inherits its old
// worker binding.
func (rt *Router) CleanSession(ctx context.Context, session string) error {
	rt.logger.Debug().Str("session", session).Msg("session deleted")
	return rt.store.Delete(ctx, session)
}

// SetStatus records the liveness flag of an ffmpeg invocation.
func (rt *Router) SetStatus(id string, status int) {
	rt.mu.Lock()
	rt.ffmpeg[id] = status
	rt.mu.Unlock()
}

// Status reports the liveness flag of an ffmpeg invocation.
func (rt *Router) Status(id string) (int, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	status, ok := rt.ffmpeg[id]
	return status, ok
}
