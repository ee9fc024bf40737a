package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileResult is the per-file outcome of an optimize download loop.
type FileResult struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Err  error  `json:"-"`
}

// OptimizeStart announces a record's files to the owning worker so they get
// pre-staged there. Fire-and-continue: the record comes back regardless of
// the network outcome.
func (rt *Router) OptimizeStart(ctx context.Context, rec *Record) *Record {
	rt.logger.Debug().Str("session", rec.Session).Msg("optimizer start")
	worker := rt.ResolveWorker(ctx, rec.Session, "")
	if worker == "" {
		rt.logger.Warn().Str("session", rec.Session).Msg("optimizer start skipped, no worker")
		return rec
	}
	if err := rt.callOptimize(ctx, http.MethodPost, workerURL(worker, "/api/optimize"), rec); err != nil {
		rt.logger.Warn().Err(err).Str("session", rec.Session).Msg("optimizer start failed")
	}
	return rec
}

// OptimizeDelete marks the invocation inactive, tells the worker to discard
// its staged state, and removes the persisted record. Network failure does
// not block the store cleanup.
func (rt *Router) OptimizeDelete(ctx context.Context, rec *Record) *Record {
	rt.logger.Debug().Str("session", rec.Session).Msg("optimizer delete")
	rt.SetStatus(rec.ID, 0)
	worker := rt.ResolveWorker(ctx, rec.Session, "")
	if worker != "" {
		endpoint := workerURL(worker, "/api/optimize/"+url.PathEscape(rec.Session))
		if err := rt.callOptimize(ctx, http.MethodDelete, endpoint, rec); err != nil {
			rt.logger.Warn().Err(err).Str("session", rec.Session).Msg("optimizer delete failed")
		}
	}
	if err := rt.CleanSession(ctx, rec.Session); err != nil {
		rt.logger.Warn().Err(err).Str("session", rec.Session).Msg("session cleanup failed")
	}
	return rec
}

// OptimizeDownload fetches every pre-staged output back to its original
// path, strictly sequentially. A failing file never aborts the loop; the
// outcome of each file is reported in the returned slice.
func (rt *Router) OptimizeDownload(ctx context.Context, rec *Record) []FileResult {
	names := make([]string, 0, len(rec.Optimize))
	for name := range rec.Optimize {
		names = append(names, name)
	}
	sort.Strings(names)

	worker := rt.ResolveWorker(ctx, rec.Session, "")
	results := make([]FileResult, 0, len(names))
	for _, name := range names {
		dest := rec.Optimize[name]
		src := workerURL(worker, "/api/optimize/"+url.PathEscape(rec.Session)+"/"+url.PathEscape(name))
		rt.logger.Debug().Str("url", src).Str("dest", dest).Msg("optimizer download")
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			rt.logger.Warn().Err(err).Str("dest", dest).Msg("optimizer failed to create directory")
		}
		err := rt.download(ctx, src, dest)
		if err != nil {
			rt.logger.Warn().Err(err).Str("url", src).Msg("optimizer download failed")
		}
		results = append(results, FileResult{Name: name, Path: dest, Err: err})
	}
	return results
}

func (rt *Router) callOptimize(ctx context.Context, method, endpoint string, rec *Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	resp, err := rt.client.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (rt *Router) download(ctx context.Context, src, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return err
	}
	resp, err := rt.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err = io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func workerURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + path
}
