package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"

	"github.com/unicorntranscoder/unicornlb/balancer"
	"github.com/unicorntranscoder/unicornlb/session"
)

// FFmpegHandler accepts the invocation of a transcoder process from the PMS
// ffmpeg wrapper, rewrites it and persists the result. The wrapper gets the
// parsed record back and executes it on whichever worker owns the session.
func (s *Service) FFmpegHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil || !gjson.ValidBytes(body) {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	var args []string
	for _, v := range gjson.GetBytes(body, "args").Array() {
		args = append(args, v.String())
	}
	env := make(map[string]string)
	gjson.GetBytes(body, "env").ForEach(func(k, v gjson.Result) bool {
		env[k.String()] = v.String()
		return true
	})
	optimizeMode := gjson.GetBytes(body, "optimize").Bool()

	rec, err := s.rewriter.Parse(r.Context(), args, env, optimizeMode)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			http.Error(w, "no transcode session in arguments", http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.locks.Lock(rec.Session)
	s.router.SetStatus(rec.ID, 1)
	s.router.StoreRecord(r.Context(), rec)
	s.locks.Unlock(rec.Session)

	if optimizeMode {
		go s.router.OptimizeStart(context.Background(), rec)
	}
	s.writeJson(w, rec)
}

// SessionHandler serves the stored record of a session; workers pull their
// job description through it.
func (s *Service) SessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session"]
	rec, err := s.router.Record(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJson(w, rec)
}

// SessionDeleteHandler runs the optimize delete flow: status flagged
// inactive, worker told to discard staged state, record removed.
func (s *Service) SessionDeleteHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session"]
	rec, err := s.router.Record(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)
	s.router.OptimizeDelete(r.Context(), rec)
	s.writeJson(w, map[string]string{"status": "deleted", "session": sessionID})
}

// OptimizeDoneHandler is the worker's callback once pre-staged outputs are
// ready: fetch every file back to its original location. Per-file failures
// are reported in the response, never as an overall error.
func (s *Service) OptimizeDoneHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session"]
	rec, err := s.router.Record(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if !s.locks.TryLock(sessionID, time.Second) {
		http.Error(w, "download already in progress", http.StatusConflict)
		return
	}
	defer s.locks.Unlock(sessionID)

	results := s.router.OptimizeDownload(r.Context(), rec)
	payload := make([]map[string]string, 0, len(results))
	for _, res := range results {
		entry := map[string]string{"name": res.Name, "path": res.Path, "status": "ok"}
		if res.Err != nil {
			entry["status"] = "failed"
			entry["error"] = res.Err.Error()
		}
		payload = append(payload, entry)
	}
	s.writeJson(w, payload)
}

// UpdateHandler registers a transcoder worker ping.
func (s *Service) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	var worker balancer.Worker
	if err := json.NewDecoder(r.Body).Decode(&worker); err != nil || worker.URL == "" {
		http.Error(w, "invalid worker payload", http.StatusBadRequest)
		return
	}
	s.manager.Update(worker)
	s.writeJson(w, map[string]string{"status": "ok"})
}

// StatsHandler exposes the current fleet for monitoring.
func (s *Service) StatsHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJson(w, s.manager.Snapshot())
}

func (s *Service) writeJson(w http.ResponseWriter, v interface{}) {
	w.Header().Set(headerContentType, contentTypeJson)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("response encoding failed")
	}
}
