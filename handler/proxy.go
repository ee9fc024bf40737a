package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

type ctxKeyType struct {
	name string
}

var workerTargetCtxKey = ctxKeyType{name: "workerTarget"}

// patchResponse buffers the upstream body and applies the feature-flag
// substitutions. The content type is forced so Plex web clients parse the
// patched document as XML.
func patchResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()

	patched := string(body)
	for _, p := range bodyPatches {
		patched = strings.Replace(patched, p[0], p[1], 1)
	}

	resp.Header.Set(headerContentType, contentTypeXml)
	resp.Header.Set("Content-Length", strconv.Itoa(len(patched)))
	resp.ContentLength = int64(len(patched))
	resp.Body = io.NopCloser(bytes.NewReader([]byte(patched)))
	return nil
}

func (s *Service) patchErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("upstream unreachable")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(upstreamErrorBody))
}

func (s *Service) proxyErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	switch r.Context().Err() {
	case context.Canceled:
		w.WriteHeader(http.StatusBadRequest)
	case context.DeadlineExceeded:
		w.WriteHeader(http.StatusGatewayTimeout)
	default:
		s.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("proxy error")
		w.WriteHeader(http.StatusBadGateway)
	}
}

// workerDirector points a request at the worker URL stashed in its context.
func workerDirector(req *http.Request) {
	target := req.Context().Value(workerTargetCtxKey).(*url.URL)
	req.URL.Scheme = target.Scheme
	req.URL.Host = target.Host
	if _, ok := req.Header["User-Agent"]; !ok {
		// explicitly disable User-Agent so it's not set to default value
		req.Header.Set("User-Agent", "")
	}
}

// TranscodeHandler routes a transcode-session request to the worker owning
// its session. With no worker assigned yet the request degrades to the PMS
// passthrough, which clients retry naturally.
func (s *Service) TranscodeHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.router.SessionFrom(mux.Vars(r)["sessionId"], r.URL.Query())
	if !ok {
		s.plexProxy.ServeHTTP(w, r)
		return
	}
	worker := s.router.ResolveWorker(r.Context(), sessionID, r.RemoteAddr)
	if worker == "" {
		s.plexProxy.ServeHTTP(w, r)
		return
	}
	target, err := url.Parse(worker)
	if err != nil {
		s.logger.Warn().Err(err).Str("worker", worker).Msg("invalid worker url")
		s.plexProxy.ServeHTTP(w, r)
		return
	}
	ctx := context.WithValue(r.Context(), workerTargetCtxKey, target)
	s.workerProxy.ServeHTTP(w, r.WithContext(ctx))
}
