package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/jrudio/go-plex-client"

	"github.com/unicorntranscoder/unicornlb/balancer"
	"github.com/unicorntranscoder/unicornlb/common"
	"github.com/unicorntranscoder/unicornlb/handler"
	"github.com/unicorntranscoder/unicornlb/resolver"
	"github.com/unicorntranscoder/unicornlb/session"
	"github.com/unicorntranscoder/unicornlb/store"
)

const (
	defaultSessionsPath = "/var/lib/plexmediaserver/Library/Application Support/Plex Media Server/Cache/Transcode/Sessions/"
	defaultUsrPath      = "/usr/lib/plexmediaserver/Resources/"
)

func newRouter(svc *handler.Service) http.Handler {
	r := mux.NewRouter()
	r.Use(svc.LoggingMiddleware)
	r.Use(svc.SessionMiddleware)

	api := r.PathPrefix("/api").Subrouter()
	api.Path("/ffmpeg").Methods(http.MethodPost).HandlerFunc(svc.FFmpegHandler)
	api.Path("/update").Methods(http.MethodPost).HandlerFunc(svc.UpdateHandler)
	api.Path("/stats").Methods(http.MethodGet).HandlerFunc(svc.StatsHandler)
	api.Path("/session/{session}").Methods(http.MethodGet).HandlerFunc(svc.SessionHandler)
	api.Path("/session/{session}").Methods(http.MethodDelete).HandlerFunc(svc.SessionDeleteHandler)
	api.Path("/optimize/{session}/done").Methods(http.MethodPost).HandlerFunc(svc.OptimizeDoneHandler)

	r.Path("/:/websockets/notifications").HandlerFunc(svc.WebsocketHandler)

	transcodeRouter := r.PathPrefix("/video/:/transcode").Subrouter()
	transcodeRouter.PathPrefix("/session/{sessionId}").HandlerFunc(svc.TranscodeHandler)
	transcodeRouter.PathPrefix("/universal").HandlerFunc(svc.TranscodeHandler)

	patchedRouter := r.Methods(http.MethodGet).Subrouter()
	patchedRouter.Path("/").HandlerFunc(svc.PatchedHandler)
	patchedRouter.Path("/media/providers").HandlerFunc(svc.PatchedHandler)

	r.PathPrefix("/").HandlerFunc(svc.Handler)
	return r
}

func main() {
	logger := common.Logger()

	plexHost := getEnv("PLEX_HOST", "127.0.0.1")
	plexPort, err := strconv.Atoi(getEnv("PLEX_PORT", "32400"))
	if err != nil {
		logger.Fatal().Err(err).Msg("PLEX_PORT must be a port number")
	}
	plexBaseURL := fmt.Sprintf("http://%s:%d", plexHost, plexPort)

	publicURL := os.Getenv("PUBLIC_URL")
	if publicURL == "" {
		logger.Fatal().Msg("Please configure PUBLIC_URL at first")
	}
	if !strings.HasSuffix(publicURL, "/") {
		publicURL += "/"
	}

	var sessionStore session.Store = store.NewMemory()
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		options, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Please ensure REDIS_URL is a valid URL")
		}
		sessionStore = store.NewRedis(redis.NewClient(options))
		logger.Info().Msg("Session records persisted to Redis")
	}

	manager := balancer.NewManager(time.Second*30, logger)
	mounts := resolver.ParseMounts(os.Getenv("LB_MOUNTS"))
	pathResolver := resolver.NewPathResolver(mounts, logger)

	sessionRouter := session.NewRouter(manager, sessionStore, logger)
	rewriter := session.NewRewriter(session.RewriteConfig{
		PlexHost:     plexHost,
		PlexPort:     plexPort,
		PublicURL:    publicURL,
		SessionsPath: getEnv("SESSIONS_PATH", defaultSessionsPath),
		UsrPath:      getEnv("USR_PATH", defaultUsrPath),
	}, pathResolver, logger)

	svc, err := handler.New(handler.Config{
		PlexBaseURL: plexBaseURL,
	}, sessionRouter, rewriter, manager, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Please ensure the Plex address is valid")
	}

	if plexClient, err := plex.New(plexBaseURL, os.Getenv("PLEX_TOKEN")); err == nil {
		go func() {
			if ok, err := plexClient.Test(); err != nil || !ok {
				logger.Warn().Err(err).Msg("Plex server is not reachable yet")
			} else {
				logger.Info().Msg("Plex server is reachable")
			}
		}()
	}

	addr := getEnv("LB_ADDR", "0.0.0.0:3001")
	srv := &http.Server{
		Addr:    addr,
		Handler: newRouter(svc),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server stopped")
		}
	}()
	logger.Info().Str("addr", addr).Msg("Server started")

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	<-c

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
	defer cancel()
	_ = srv.Shutdown(ctx)

	logger.Info().Msg("Shutting down...")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
