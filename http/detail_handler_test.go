package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/portal-api/internal/cache"
	"github.com/yourorg/portal-api/internal/canon"
	"github.com/yourorg/portal-api/internal/detail"
)

type fakeService struct {
	condominiums map[string]canon.Row
	listings     map[string]canon.Row
	err          error
	calls        int
}

func (f *fakeService) CondominiumDetail(_ context.Context, id string) (canon.Row, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if rec, ok := f.condominiums[id]; ok {
		return rec, nil
	}
	return nil, detail.ErrNotFound
}

func (f *fakeService) ListingDetail(_ context.Context, id string) (canon.Row, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if rec, ok := f.listings[id]; ok {
		return rec, nil
	}
	return nil, detail.ErrNotFound
}

// fakeCache is an in-memory cache.Client that records deletions and can
// refuse the stampede lock.
type fakeCache struct {
	mu       sync.Mutex
	data     map[string]string
	deleted  []string
	denyLock bool
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string]string{}} }

func (f *fakeCache) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", errors.New("miss")
	}
	return v, nil
}

func (f *fakeCache) Set(_ context.Context, key string, val string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = val
	return nil
}

func (f *fakeCache) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeCache) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok, nil
}

func (f *fakeCache) SetNX(_ context.Context, key string, val string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denyLock {
		return false, nil
	}
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = val
	return true, nil
}

func (f *fakeCache) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

func (f *fakeCache) wasDeleted(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.deleted {
		if k == key {
			return true
		}
	}
	return false
}

func newTestRouter(svc DetailService) http.Handler {
	r := chi.NewRouter()
	RegisterDetail(r, DetailDeps{Service: svc})
	return r
}

func newCachedRouter(svc DetailService, fc *fakeCache, refetch func(string, string)) http.Handler {
	r := chi.NewRouter()
	RegisterDetail(r, DetailDeps{Service: svc, Cache: fc, Refetch: refetch})
	return r
}

func TestServeDetail_Condominium(t *testing.T) {
	svc := &fakeService{condominiums: map[string]canon.Row{
		"c1": {"id": "c1", "min_price": 500000.0, "apartments": []canon.Row{}},
	}}
	srv := httptest.NewServer(newTestRouter(svc))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/condominium/c1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body canon.Row
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "c1", body["id"])
	assert.Equal(t, 500000.0, body["min_price"])
}

func TestServeDetail_Listing(t *testing.T) {
	svc := &fakeService{listings: map[string]canon.Row{
		"l1": {"id": "l1", "display_address": "Rua A"},
	}}
	srv := httptest.NewServer(newTestRouter(svc))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/listing/l1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body canon.Row
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Rua A", body["display_address"])
}

func TestServeDetail_NotFound(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(&fakeService{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/condominium/ghost")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "not_found", body["error"])
	assert.Equal(t, "ghost", body["id"])
}

func TestServeDetail_CacheHitSkipsService(t *testing.T) {
	fc := newFakeCache()
	var env cache.Envelope
	env.Data = canon.Row{"id": "c1"}
	env.Meta.StaleAfter = time.Now().Add(time.Minute)
	b, err := json.Marshal(env)
	require.NoError(t, err)
	fc.data[cache.Key("condominium", "c1")] = string(b)

	svc := &fakeService{}
	srv := httptest.NewServer(newCachedRouter(svc, fc, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/condominium/c1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body canon.Row
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "c1", body["id"])
	assert.Equal(t, 0, svc.calls, "fresh cache hit never reconciles")
}

func TestServeDetail_StaleHitTriggersRefetch(t *testing.T) {
	fc := newFakeCache()
	var env cache.Envelope
	env.Data = canon.Row{"id": "c1"}
	env.Meta.StaleAfter = time.Now().Add(-time.Minute)
	b, err := json.Marshal(env)
	require.NoError(t, err)
	fc.data[cache.Key("condominium", "c1")] = string(b)

	var refetched []string
	svc := &fakeService{}
	srv := httptest.NewServer(newCachedRouter(svc, fc, func(entityType, id string) {
		refetched = append(refetched, entityType+":"+id)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/condominium/c1")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []string{"condominium:c1"}, refetched)
	assert.Equal(t, 0, svc.calls, "stale data is still served from cache")
}

func TestServeDetail_MissCooldownSkipsService(t *testing.T) {
	fc := newFakeCache()
	fc.data[cache.MissKey("condominium", "ghost")] = "1"

	svc := &fakeService{}
	srv := httptest.NewServer(newCachedRouter(svc, fc, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/condominium/ghost")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["cache_miss_cooldown"])
	assert.Equal(t, 0, svc.calls)
}

func TestServeDetail_SuccessWritesEnvelopeAndReleasesLock(t *testing.T) {
	fc := newFakeCache()
	svc := &fakeService{condominiums: map[string]canon.Row{"c1": {"id": "c1"}}}
	srv := httptest.NewServer(newCachedRouter(svc, fc, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/condominium/c1")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.True(t, fc.has(cache.Key("condominium", "c1")))
	var env cache.Envelope
	require.NoError(t, json.Unmarshal([]byte(fc.data[cache.Key("condominium", "c1")]), &env))
	assert.Equal(t, "c1", env.Data["id"])
	assert.Equal(t, "api", env.Meta.Source)
	assert.True(t, fc.wasDeleted(cache.LockKey("condominium", "c1")))
	assert.False(t, fc.has(cache.LockKey("condominium", "c1")))
}

func TestServeDetail_LockReleasedOnNotFound(t *testing.T) {
	fc := newFakeCache()
	srv := httptest.NewServer(newCachedRouter(&fakeService{}, fc, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/condominium/ghost")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.True(t, fc.has(cache.MissKey("condominium", "ghost")), "miss cooldown recorded")
	assert.True(t, fc.wasDeleted(cache.LockKey("condominium", "ghost")))
	assert.False(t, fc.has(cache.LockKey("condominium", "ghost")), "lock must not outlive the request")
}

func TestServeDetail_LockReleasedOnInternalError(t *testing.T) {
	fc := newFakeCache()
	srv := httptest.NewServer(newCachedRouter(&fakeService{err: errors.New("db down")}, fc, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/listing/l1")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	assert.True(t, fc.wasDeleted(cache.LockKey("listing", "l1")))
	assert.False(t, fc.has(cache.LockKey("listing", "l1")), "lock must not outlive the request")
}

func TestServeDetail_LockLoserComputesButSkipsWrite(t *testing.T) {
	fc := newFakeCache()
	fc.denyLock = true
	svc := &fakeService{listings: map[string]canon.Row{"l1": {"id": "l1"}}}
	srv := httptest.NewServer(newCachedRouter(svc, fc, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/listing/l1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body canon.Row
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "l1", body["id"])
	assert.Equal(t, 1, svc.calls, "loser still reconciles")
	assert.False(t, fc.has(cache.Key("listing", "l1")), "loser skips the cache write")
	assert.Empty(t, fc.deleted)
}

func TestServeDetail_InternalError(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(&fakeService{err: errors.New("db down")}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/listing/l1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "internal_error", body["error"])
	assert.NotContains(t, body, "detail", "internal failures stay generic")
}
