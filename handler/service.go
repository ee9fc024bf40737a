package handler

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/unicorntranscoder/unicornlb/balancer"
	"github.com/unicorntranscoder/unicornlb/common"
	"github.com/unicorntranscoder/unicornlb/session"
)

type Config struct {
	PlexBaseURL string
}

// Service wires the session router, rewriter and worker fleet to the HTTP
// surface: the PMS passthrough proxy, the body-patching proxy, the
// session-routed worker proxy, the worker API and the websocket relay.
type Service struct {
	cfg      Config
	plexURL  *url.URL
	router   *session.Router
	rewriter *session.Rewriter
	manager  *balancer.Manager
	logger   zerolog.Logger
	locks    common.MultipleLock

	plexProxy   *httputil.ReverseProxy
	patchProxy  *httputil.ReverseProxy
	workerProxy *httputil.ReverseProxy
	upgrader    websocket.Upgrader
}

func New(cfg Config, rt *session.Router, rw *session.Rewriter, mgr *balancer.Manager, logger zerolog.Logger) (*Service, error) {
	u, err := url.Parse(cfg.PlexBaseURL)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:      cfg,
		plexURL:  u,
		router:   rt,
		rewriter: rw,
		manager:  mgr,
		logger:   logger.With().Str("component", "handler").Logger(),
		locks:    common.NewMultipleLock(),
		upgrader: websocket.Upgrader{
			// PMS clients connect from app origins; the LB is not the place
			// to enforce origin policy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	s.plexProxy = httputil.NewSingleHostReverseProxy(u)
	s.plexProxy.FlushInterval = -1
	s.plexProxy.ErrorLog = common.GetLogger()
	s.plexProxy.ErrorHandler = s.proxyErrorHandler

	s.patchProxy = httputil.NewSingleHostReverseProxy(u)
	s.patchProxy.FlushInterval = -1
	s.patchProxy.ErrorLog = common.GetLogger()
	s.patchProxy.ModifyResponse = patchResponse
	s.patchProxy.ErrorHandler = s.patchErrorHandler

	s.workerProxy = &httputil.ReverseProxy{
		Director:      workerDirector,
		FlushInterval: -1,
		ErrorLog:      common.GetLogger(),
		ErrorHandler:  s.proxyErrorHandler,
	}

	return s, nil
}

// Handler forwards a request to PMS untouched.
func (s *Service) Handler(w http.ResponseWriter, r *http.Request) {
	s.plexProxy.ServeHTTP(w, r)
}

// PatchedHandler forwards a request to PMS and rewrites the response body.
func (s *Service) PatchedHandler(w http.ResponseWriter, r *http.Request) {
	s.patchProxy.ServeHTTP(w, r)
}
