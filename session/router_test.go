package session

import (
	"context"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSelector struct {
	urls  []string
	err   error
	calls int
}

func (s *fakeSelector) ChooseServer(_ context.Context, _, _ string) (string, error) {
	if s.err != nil {
		s.calls++
		return "", s.err
	}
	u := ""
	if s.calls < len(s.urls) {
		u = s.urls[s.calls]
	}
	s.calls++
	return u, nil
}

type memStore struct {
	records map[string]*Record
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*Record)}
}

func (s *memStore) Set(_ context.Context, id string, rec *Record) error {
	s.records[id] = rec
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*Record, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	delete(s.records, id)
	return nil
}

func newTestRouter(selector Selector, store Store) *Router {
	if selector == nil {
		selector = &fakeSelector{}
	}
	if store == nil {
		store = newMemStore()
	}
	return NewRouter(selector, store, zerolog.Nop())
}

func TestSessionFromPriority(t *testing.T) {
	rt := newTestRouter(nil, nil)
	rt.Observe(url.Values{
		paramSessionIdentifier: {"ident-1"},
		paramSession:           {"sess-1"},
	})

	for name, tc := range map[string]struct {
		pathSession string
		query       url.Values
		want        string
		found       bool
	}{
		"path parameter wins": {
			pathSession: "path-sess",
			query:       url.Values{paramSession: {"sess-1"}},
			want:        "path-sess",
			found:       true,
		},
		"session query": {
			query: url.Values{paramSession: {"sess-2"}, paramSessionIdentifier: {"ident-1"}},
			want:  "sess-2",
			found: true,
		},
		"cached identifier binding": {
			query: url.Values{paramSessionIdentifier: {"ident-1"}},
			want:  "sess-1",
			found: true,
		},
		"unbound identifier falls back to itself": {
			query: url.Values{paramSessionIdentifier: {"ident-unknown"}},
			want:  "ident-unknown",
			found: true,
		},
		"client identifier": {
			query: url.Values{paramClientIdentifier: {"client-1"}},
			want:  "client-1",
			found: true,
		},
		"nothing": {
			query: url.Values{},
			found: false,
		},
	} {
		t.Run(name, func(t *testing.T) {
			got, ok := rt.SessionFrom(tc.pathSession, tc.query)
			assert.Equal(t, tc.found, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestObserveRequiresBothParams(t *testing.T) {
	rt := newTestRouter(nil, nil)

	rt.Observe(url.Values{paramSessionIdentifier: {"ident-1"}})
	_, ok := rt.CachedSession("ident-1")
	assert.False(t, ok)

	rt.Observe(url.Values{paramSession: {"sess-1"}})
	_, ok = rt.CachedSession("ident-1")
	assert.False(t, ok)

	rt.Observe(url.Values{paramSessionIdentifier: {"ident-1"}, paramSession: {"sess-1"}})
	got, ok := rt.CachedSession("ident-1")
	assert.True(t, ok)
	assert.Equal(t, "sess-1", got)

	// last writer wins
	rt.Observe(url.Values{paramSessionIdentifier: {"ident-1"}, paramSession: {"sess-2"}})
	got, _ = rt.CachedSession("ident-1")
	assert.Equal(t, "sess-2", got)
}

func TestResolveWorkerCachesFirstResult(t *testing.T) {
	selector := &fakeSelector{urls: []string{"http://worker-a:3000", "http://worker-b:3000"}}
	rt := newTestRouter(selector, nil)
	ctx := context.Background()

	assert.Equal(t, "http://worker-a:3000", rt.ResolveWorker(ctx, "sess-1", ""))
	// the second resolution never reaches the selector, even though it
	// would answer differently now
	assert.Equal(t, "http://worker-a:3000", rt.ResolveWorker(ctx, "sess-1", ""))
	assert.Equal(t, 1, selector.calls)
}

func TestResolveWorkerDegradesOnSelectorError(t *testing.T) {
	selector := &fakeSelector{err: ErrNoWorker}
	rt := newTestRouter(selector, nil)
	ctx := context.Background()

	assert.Equal(t, "", rt.ResolveWorker(ctx, "sess-1", ""))
	// empty results are not cached; the next call retries the selector
	assert.Equal(t, "", rt.ResolveWorker(ctx, "sess-1", ""))
	assert.Equal(t, 2, selector.calls)
}

func TestCleanSessionLeavesBindings(t *testing.T) {
	selector := &fakeSelector{urls: []string{"http://worker-a:3000"}}
	st := newMemStore()
	rt := newTestRouter(selector, st)
	ctx := context.Background()

	rec := &Record{ID: "rec-1", Session: "sess-1"}
	rt.StoreRecord(ctx, rec)
	rt.SetStatus(rec.ID, 1)
	rt.ResolveWorker(ctx, "sess-1", "")

	require.NoError(t, rt.CleanSession(ctx, "sess-1"))
	_, err := rt.Record(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Known coupling: the worker binding and status cache survive cleanup,
	// so a reused session id inherits the stale worker.
	assert.Equal(t, "http://worker-a:3000", rt.ResolveWorker(ctx, "sess-1", ""))
	assert.Equal(t, 1, selector.calls)
	status, ok := rt.Status(rec.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, status)
}

func TestStatusCache(t *testing.T) {
	rt := newTestRouter(nil, nil)

	_, ok := rt.Status("rec-1")
	assert.False(t, ok)

	rt.SetStatus("rec-1", 1)
	status, ok := rt.Status("rec-1")
	assert.True(t, ok)
	assert.Equal(t, 1, status)

	rt.SetStatus("rec-1", 0)
	status, _ = rt.Status("rec-1")
	assert.Equal(t, 0, status)
}

func TestStoreRecordOverwrites(t *testing.T) {
	st := newMemStore()
	rt := newTestRouter(nil, st)
	ctx := context.Background()

	rt.StoreRecord(ctx, &Record{ID: "rec-1", Session: "sess-1"})
	rt.StoreRecord(ctx, &Record{ID: "rec-2", Session: "sess-1"})

	rec, err := rt.Record(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "rec-2", rec.ID)
}
