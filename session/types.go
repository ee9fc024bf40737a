package session

import (
	"context"
	"errors"
)

// Placeholders substituted into ffmpeg argument vectors. Transcoder workers
// recognize and expand them on their side.
const (
	PlaceholderTranscoder = "{INTERNAL_TRANSCODER}"
	PlaceholderResources  = "{INTERNAL_RESOURCES}"
	PlaceholderOptimize   = "{OPTIMIZE_PATH}"
)

// Query parameters carrying a session identity, in one shape or another.
const (
	paramSession           = "session"
	paramSessionIdentifier = "X-Plex-Session-Identifier"
	paramClientIdentifier  = "X-Plex-Client-Identifier"
)

var (
	// ErrNoSession means an argument vector carried no progress URL, so no
	// session could be extracted. Callers must skip downstream action.
	ErrNoSession = errors.New("session: no transcode session in arguments")

	// ErrNotFound is returned by Store implementations for unknown sessions.
	ErrNotFound = errors.New("session: record not found")

	// ErrNoWorker is returned by Selector implementations when no transcoder
	// is available.
	ErrNoWorker = errors.New("session: no worker available")
)

// Record is a parsed ffmpeg invocation, keyed in the Store by session id.
// The JSON shape is part of the worker API and matches what transcoders
// expect to receive.
type Record struct {
	ID          string            `json:"id"`
	Args        []string          `json:"args"`
	Env         map[string]string `json:"env"`
	Session     string            `json:"session"`
	SessionFull string            `json:"sessionFull"`
	Optimize    map[string]string `json:"optimize"`
}

// Selector picks the transcoder worker responsible for a session.
type Selector interface {
	ChooseServer(ctx context.Context, session, clientAddr string) (string, error)
}

// Store persists parsed session records.
type Store interface {
	Set(ctx context.Context, session string, rec *Record) error
	Get(ctx context.Context, session string) (*Record, error)
	Delete(ctx context.Context, session string) error
}

// Resolved is a remote stand-in for a local filesystem path.
type Resolved struct {
	Path string `json:"path"`
}

// Resolver answers whether a local path can be reached remotely and, if so,
// under which descriptor.
type Resolver interface {
	CanResolve(ctx context.Context, path string) bool
	Resolve(ctx context.Context, path string) (*Resolved, error)
}
