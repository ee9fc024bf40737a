package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicorntranscoder/unicornlb/balancer"
	"github.com/unicorntranscoder/unicornlb/session"
)

func TestFFmpegHandler(t *testing.T) {
	svc, rt, _ := newTestService(t, "http://127.0.0.1:32400")

	payload := `{
		"args": ["-i", "/media/movie.mkv", "http://127.0.0.1:32400/video/:/transcode/session/abc123/progress"],
		"env": {"FFMPEG_EXTERNAL_LIBS": "/tmp/codecs"},
		"optimize": false
	}`
	rec := httptest.NewRecorder()
	svc.FFmpegHandler(rec, httptest.NewRequest(http.MethodPost, "/api/ffmpeg", strings.NewReader(payload)))

	require.Equal(t, http.StatusOK, rec.Code)
	var parsed session.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	assert.Equal(t, "abc123", parsed.Session)
	assert.Equal(t, "/tmp/codecs", parsed.Env["FFMPEG_EXTERNAL_LIBS"])

	stored, err := rt.Record(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, parsed.ID, stored.ID)

	status, ok := rt.Status(parsed.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, status)
}

func TestFFmpegHandlerWithoutSession(t *testing.T) {
	svc, rt, _ := newTestService(t, "http://127.0.0.1:32400")

	payload := `{"args": ["-i", "/media/movie.mkv", "out.mp4"], "env": {}}`
	rec := httptest.NewRecorder()
	svc.FFmpegHandler(rec, httptest.NewRequest(http.MethodPost, "/api/ffmpeg", strings.NewReader(payload)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, err := rt.Record(context.Background(), "abc123")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestFFmpegHandlerInvalidPayload(t *testing.T) {
	svc, _, _ := newTestService(t, "http://127.0.0.1:32400")

	rec := httptest.NewRecorder()
	svc.FFmpegHandler(rec, httptest.NewRequest(http.MethodPost, "/api/ffmpeg", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHandler(t *testing.T) {
	svc, rt, _ := newTestService(t, "http://127.0.0.1:32400")
	rt.StoreRecord(context.Background(), &session.Record{ID: "rec-1", Session: "sess-1"})

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/session/sess-1", nil), map[string]string{"session": "sess-1"})
	rec := httptest.NewRecorder()
	svc.SessionHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got session.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "rec-1", got.ID)

	req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/session/missing", nil), map[string]string{"session": "missing"})
	rec = httptest.NewRecorder()
	svc.SessionHandler(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionDeleteHandler(t *testing.T) {
	workerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer workerSrv.Close()

	svc, rt, mgr := newTestService(t, "http://127.0.0.1:32400")
	mgr.Update(balancer.Worker{Name: "a", URL: workerSrv.URL, MaxSessions: 10})
	rt.StoreRecord(context.Background(), &session.Record{ID: "rec-1", Session: "sess-1"})
	rt.SetStatus("rec-1", 1)

	req := mux.SetURLVars(httptest.NewRequest(http.MethodDelete, "/api/session/sess-1", nil), map[string]string{"session": "sess-1"})
	rec := httptest.NewRecorder()
	svc.SessionDeleteHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	_, err := rt.Record(context.Background(), "sess-1")
	assert.ErrorIs(t, err, session.ErrNotFound)
	status, _ := rt.Status("rec-1")
	assert.Equal(t, 0, status)
}

func TestOptimizeDoneHandler(t *testing.T) {
	workerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("optimized " + filepath.Base(r.URL.Path)))
	}))
	defer workerSrv.Close()

	svc, rt, mgr := newTestService(t, "http://127.0.0.1:32400")
	mgr.Update(balancer.Worker{Name: "a", URL: workerSrv.URL, MaxSessions: 10})

	dest := filepath.Join(t.TempDir(), "movie.mp4")
	rt.StoreRecord(context.Background(), &session.Record{
		ID:       "rec-1",
		Session:  "sess-1",
		Optimize: map[string]string{"movie.mp4": dest},
	})

	req := mux.SetURLVars(httptest.NewRequest(http.MethodPost, "/api/optimize/sess-1/done", nil), map[string]string{"session": "sess-1"})
	rec := httptest.NewRecorder()
	svc.OptimizeDoneHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var results []map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0]["status"])

	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "optimized movie.mp4", string(b))
}

func TestUpdateAndStatsHandlers(t *testing.T) {
	svc, _, _ := newTestService(t, "http://127.0.0.1:32400")

	rec := httptest.NewRecorder()
	svc.UpdateHandler(rec, httptest.NewRequest(http.MethodPost, "/api/update",
		strings.NewReader(`{"name":"a","url":"http://a:3000","maxSessions":10,"sessions":2}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	svc.StatsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var workers []balancer.Worker
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &workers))
	require.Len(t, workers, 1)
	assert.Equal(t, "http://a:3000", workers[0].URL)
	assert.Equal(t, 2, workers[0].Sessions)
}

func TestUpdateHandlerRejectsMissingURL(t *testing.T) {
	svc, _, _ := newTestService(t, "http://127.0.0.1:32400")

	rec := httptest.NewRecorder()
	svc.UpdateHandler(rec, httptest.NewRequest(http.MethodPost, "/api/update", strings.NewReader(`{"name":"a"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
