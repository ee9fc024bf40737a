// Package resolver maps local media paths onto remote descriptors. A mount
// table associates filesystem prefixes with base URLs under which another
// node serves the same files.
package resolver

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/unicorntranscoder/unicornlb/session"
)

type Mount struct {
	Prefix  string
	BaseURL string
}

// ParseMounts reads a mount table from its textual form,
// "prefix=baseURL,prefix=baseURL". Malformed entries are skipped.
func ParseMounts(s string) []Mount {
	var mounts []Mount
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		mounts = append(mounts, Mount{
			Prefix:  strings.TrimSuffix(parts[0], "/"),
			BaseURL: strings.TrimSuffix(parts[1], "/"),
		})
	}
	return mounts
}

type PathResolver struct {
	mounts []Mount
	logger zerolog.Logger
}

func NewPathResolver(mounts []Mount, logger zerolog.Logger) *PathResolver {
	return &PathResolver{
		mounts: mounts,
		logger: logger.With().Str("component", "resolver").Logger(),
	}
}

func (r *PathResolver) CanResolve(_ context.Context, path string) bool {
	return r.mount(path) != nil
}

func (r *PathResolver) Resolve(_ context.Context, path string) (*session.Resolved, error) {
	m := r.mount(path)
	if m == nil {
		return nil, fmt.Errorf("resolver: no mount for %s", path)
	}
	rel := strings.TrimPrefix(path, m.Prefix)
	segments := strings.Split(strings.TrimPrefix(rel, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	resolved := m.BaseURL + "/" + strings.Join(segments, "/")
	r.logger.Debug().Str("path", path).Str("url", resolved).Msg("path resolved")
	return &session.Resolved{Path: resolved}, nil
}

func (r *PathResolver) mount(path string) *Mount {
	for i := range r.mounts {
		if strings.HasPrefix(path, r.mounts[i].Prefix+"/") {
			return &r.mounts[i]
		}
	}
	return nil
}

var _ session.Resolver = (*PathResolver)(nil)
