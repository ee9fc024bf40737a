package session

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	flagInput           = "-i"
	flagSegmentList     = "-segment_list"
	flagSegmentListType = "-segment_list_type"
)

// rewriteMode drives the positional pass. In modeAwaitSegListValue the next
// argument slot is consumed unconditionally by the constructed seglist URL.
type rewriteMode int

const (
	modeNormal rewriteMode = iota
	modeAwaitSegListValue
)

// RewriteConfig holds the internal addresses and paths substituted out of
// ffmpeg argument vectors.
type RewriteConfig struct {
	PlexHost     string
	PlexPort     int
	PublicURL    string // externally reachable base URL, trailing slash
	SessionsPath string // internal transcode sessions directory
	UsrPath      string // internal user resources directory
}

func (c RewriteConfig) plexURL() string {
	return fmt.Sprintf("http://%s:%d/", c.PlexHost, c.PlexPort)
}

// Rewriter turns a raw ffmpeg invocation into a Record whose URLs and paths
// make sense outside the node that launched the process.
type Rewriter struct {
	cfg      RewriteConfig
	resolver Resolver
	logger   zerolog.Logger
	progress *regexp.Regexp
}

func NewRewriter(cfg RewriteConfig, resolver Resolver, logger zerolog.Logger) *Rewriter {
	pattern := "^" + regexp.QuoteMeta(cfg.plexURL()) + "video/:/transcode/session/(.*)/progress$"
	return &Rewriter{
		cfg:      cfg,
		resolver: resolver,
		logger:   logger.With().Str("component", "rewriter").Logger(),
		progress: regexp.MustCompile(pattern),
	}
}

// Parse rewrites an argument vector and extracts its session identity.
// Returns ErrNoSession when no argument matches the progress URL pattern.
func (rw *Rewriter) Parse(ctx context.Context, args []string, env map[string]string, optimizeMode bool) (*Record, error) {
	sessionFull := ""
	found := false
	for _, arg := range args {
		if m := rw.progress.FindStringSubmatch(arg); m != nil {
			sessionFull = m[1]
			found = true
			break
		}
	}
	if !found || sessionFull == "" {
		return nil, ErrNoSession
	}
	sessionID := strings.SplitN(sessionFull, "/", 2)[0]
	rw.logger.Debug().Str("session", sessionID).Str("sessionFull", sessionFull).Msg("ffmpeg invocation")

	plexURL := rw.cfg.plexURL()
	parsed := make([]string, len(args))
	for i, arg := range args {
		if strings.Contains(arg, "/progress") || strings.Contains(arg, "/manifest") || strings.Contains(arg, "/seglist") {
			// Internal-only endpoints: mark them for special resolution by
			// the worker instead of exposing a public URL.
			parsed[i] = strings.Replace(arg, plexURL, PlaceholderTranscoder, 1)
			continue
		}
		s := strings.Replace(arg, plexURL, rw.cfg.PublicURL, 1)
		s = strings.Replace(s, rw.cfg.SessionsPath, rw.cfg.PublicURL+"api/sessions/", 1)
		s = strings.Replace(s, rw.cfg.UsrPath, PlaceholderResources, 1)
		parsed[i] = s
	}

	segList := PlaceholderTranscoder + "video/:/transcode/session/" + sessionFull + "/seglist"
	final := make([]string, 0, len(parsed)+4)
	optimize := make(map[string]string)
	mode := modeNormal
	for i, arg := range parsed {
		if mode == modeAwaitSegListValue {
			// This slot is a raw substitution; the optimize and input rules
			// must not re-evaluate it.
			final = append(final, segList)
			if i+1 >= len(parsed) || parsed[i+1] != flagSegmentListType {
				final = append(final, flagSegmentListType, "csv", "-segment_list_size", "2147483647")
			}
			mode = modeNormal
			continue
		}
		switch {
		case arg == flagSegmentList:
			final = append(final, arg)
			mode = modeAwaitSegListValue
		case optimizeMode && i > 0 && parsed[i-1] != flagInput && strings.HasPrefix(arg, "/"):
			name := arg[strings.LastIndex(arg, "/")+1:]
			final = append(final, PlaceholderOptimize+name)
			optimize[name] = arg
		case i > 0 && parsed[i-1] == flagInput:
			final = append(final, rw.resolveInput(ctx, arg))
		default:
			final = append(final, arg)
		}
	}

	return &Record{
		ID:          uuid.NewString(),
		Args:        final,
		Env:         env,
		Session:     sessionID,
		SessionFull: sessionFull,
		Optimize:    optimize,
	}, nil
}

// resolveInput swaps an input path for its remote descriptor when the
// resolver has one. Resolver errors keep the original path.
func (rw *Rewriter) resolveInput(ctx context.Context, path string) string {
	if rw.resolver == nil || !rw.resolver.CanResolve(ctx, path) {
		return path
	}
	resolved, err := rw.resolver.Resolve(ctx, path)
	if err != nil || resolved == nil {
		rw.logger.Warn().Err(err).Str("path", path).Msg("input resolution failed")
		return path
	}
	return resolved.Path
}
