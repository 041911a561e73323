// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package webcache

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/conquerdesigngroup/sop-app-sub000/internal/logging"
)

// X-Cache values.
const (
	HeaderCache = "X-Cache"

	CacheHit     = "HIT"
	CacheMiss    = "MISS"
	CacheBypass  = "BYPASS"
	CacheOffline = "OFFLINE"
)

//go:embed offline.html
var builtinOffline []byte

// Headers never stored or replayed from the cache.
var skipHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Set-Cookie":          true,
	"Content-Length":      true,
}

// Request headers forwarded on network fetches.
var forwardHeaders = []string{"Accept", "Accept-Language", "Cookie", "User-Agent", "Authorization"}

// ServeHTTP routes a request through the active cache.
func (c *Controller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.IsAbs() {
		if r.URL.Scheme != "http" && r.URL.Scheme != "https" {
			c.refuse(w, r, http.StatusBadRequest, "unsupported scheme")
			return
		}
		if !c.sameOrigin(r.URL) {
			if c.foreign == nil {
				c.refuse(w, r, http.StatusForbidden, "foreign origin")
				return
			}
			requestsTotal.WithLabelValues("passthrough", "bypass").Inc()
			c.foreign.ServeHTTP(w, r)
			return
		}
	}

	active := c.Active()
	switch {
	case r.Method != http.MethodGet, c.bypassed(r.URL.Path), active == nil:
		requestsTotal.WithLabelValues("passthrough", "bypass").Inc()
		c.proxy.ServeHTTP(w, r)
	case isDocument(r):
		c.serveDocument(w, r, active)
	default:
		c.serveAsset(w, r, active)
	}
}

// serveDocument is network-first. It never answers with an error page:
// a network failure falls back to the cached copy, then the offline
// document, then the built-in offline page.
func (c *Controller) serveDocument(w http.ResponseWriter, r *http.Request, active *Worker) {
	key := cacheKey(r.URL)
	log := logging.Ctx(r.Context()).With().Str("url", key).Str("cache", active.cacheName).Logger()

	cache := c.storage.Lookup(active.cacheName)

	resp, err := c.fetch(r, key)
	if err == nil {
		c.relay(w, resp, cache, key, "document")
		return
	}
	log.Debug().Err(err).Msg("Document fetch failed; serving from cache")

	if stored, ok, _ := cache.Match(key); ok {
		requestsTotal.WithLabelValues("document", "hit").Inc()
		writeStored(w, stored, CacheHit)
		return
	}
	if doc := c.cfg.OfflineDocument; doc != "" {
		if docKey, err := cacheKeyFor(doc); err == nil {
			if stored, ok, _ := cache.Match(docKey); ok {
				requestsTotal.WithLabelValues("document", "offline").Inc()
				stored.Status = http.StatusOK
				writeStored(w, stored, CacheOffline)
				return
			}
		}
	}

	requestsTotal.WithLabelValues("document", "offline").Inc()
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set(HeaderCache, CacheOffline)
	h.Set("Content-Length", strconv.Itoa(len(c.offline)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(c.offline)
}

// serveAsset is cache-first.
func (c *Controller) serveAsset(w http.ResponseWriter, r *http.Request, active *Worker) {
	key := cacheKey(r.URL)
	cache := c.storage.Lookup(active.cacheName)
	if stored, ok, err := cache.Match(key); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("url", key).Msg("Cache lookup failed")
	} else if ok {
		requestsTotal.WithLabelValues("asset", "hit").Inc()
		writeStored(w, stored, CacheHit)
		return
	}

	resp, err := c.fetch(r, key)
	if err != nil {
		requestsTotal.WithLabelValues("asset", "unavailable").Inc()
		logging.Ctx(r.Context()).Debug().Err(err).Str("url", key).Msg("Asset fetch failed on cache miss")
		w.Header().Set(HeaderCache, CacheMiss)
		http.Error(w, "upstream unavailable", http.StatusGatewayTimeout)
		return
	}
	c.relay(w, resp, cache, key, "asset")
}

// relay writes a network response to the client, storing it when it is a
// complete 200 that stayed on the app origin.
func (c *Controller) relay(w http.ResponseWriter, resp *http.Response, cache *Cache, key, strategy string) {
	defer func() { _ = resp.Body.Close() }()

	stored, complete, err := readResponse(resp, c.cfg.MaxBodyBytes)
	if err != nil {
		requestsTotal.WithLabelValues(strategy, "error").Inc()
		w.Header().Set(HeaderCache, CacheMiss)
		http.Error(w, "upstream read failed", http.StatusBadGateway)
		return
	}

	cacheable := complete && resp.StatusCode == http.StatusOK && c.sameOrigin(resp.Request.URL)
	if cacheable {
		if err := cache.Put(key, stored); err != nil && !errors.Is(err, ErrCacheDeleted) {
			logging.Warn().Err(err).Str("url", key).Str("cache", cache.Name()).Msg("Storing response failed")
		}
	}
	requestsTotal.WithLabelValues(strategy, "miss").Inc()

	h := w.Header()
	copyHeaders(h, stored.Header)
	h.Set(HeaderCache, CacheMiss)
	if complete {
		h.Set("Content-Length", strconv.Itoa(len(stored.Body)))
	}
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
	if !complete {
		_, _ = io.Copy(w, resp.Body)
	}
}

// fetch issues the upstream GET for key. Only transport failures are
// errors; any HTTP status is a response.
func (c *Controller) fetch(r *http.Request, key string) (*http.Response, error) {
	u, err := c.upstreamURL(key)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	for _, name := range forwardHeaders {
		if v := r.Header.Values(name); len(v) > 0 {
			req.Header[name] = v
		}
	}
	if id := logging.RequestIDFromContext(r.Context()); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	return c.client.Do(req)
}

func (c *Controller) refuse(w http.ResponseWriter, r *http.Request, status int, reason string) {
	requestsTotal.WithLabelValues("passthrough", "refused").Inc()
	logging.Ctx(r.Context()).Debug().Str("url", r.URL.String()).Str("reason", reason).Msg("Request refused")
	w.Header().Set(HeaderCache, CacheBypass)
	http.Error(w, reason, status)
}

func (c *Controller) newProxy() *httputil.ReverseProxy {
	origin := c.origin
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(origin)
			pr.SetXForwarded()
		},
		ModifyResponse: func(resp *http.Response) error {
			resp.Header.Set(HeaderCache, CacheBypass)
			return nil
		},
		ErrorHandler: proxyError,
	}
}

func newForeignProxy() *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.Host = pr.In.URL.Host
			pr.SetXForwarded()
		},
		ModifyResponse: func(resp *http.Response) error {
			resp.Header.Set(HeaderCache, CacheBypass)
			return nil
		},
		ErrorHandler: proxyError,
	}
}

func proxyError(w http.ResponseWriter, r *http.Request, err error) {
	logging.Ctx(r.Context()).Debug().Err(err).Str("url", r.URL.String()).Msg("Passthrough request failed")
	w.Header().Set(HeaderCache, CacheBypass)
	http.Error(w, "upstream unavailable", http.StatusBadGateway)
}

func (c *Controller) bypassed(path string) bool {
	for _, p := range c.cfg.BypassPrefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (c *Controller) sameOrigin(u *url.URL) bool {
	if u == nil {
		return false
	}
	return strings.EqualFold(u.Scheme, c.origin.Scheme) && strings.EqualFold(u.Host, c.origin.Host)
}

func (c *Controller) upstreamURL(key string) (*url.URL, error) {
	ref, err := url.Parse(key)
	if err != nil {
		return nil, err
	}
	return c.origin.ResolveReference(ref), nil
}

// isDocument reports a navigation request.
func isDocument(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" || r.Header.Get("Sec-Fetch-Dest") == "document" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// cacheKey is the origin-relative request URI.
func cacheKey(u *url.URL) string {
	key := u.EscapedPath()
	if key == "" {
		key = "/"
	}
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key
}

func cacheKeyFor(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return "", fmt.Errorf("manifest entry %q must be origin-relative", raw)
	}
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	return cacheKey(u), nil
}

// readResponse buffers up to limit bytes of the body. complete is false
// when the body is larger; the rest stays unread in resp.Body.
func readResponse(resp *http.Response, limit int64) (*Response, bool, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, false, err
	}
	complete := int64(len(body)) <= limit
	if !complete {
		// Hand the overflow byte back to the caller's copy.
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(body[limit:]), resp.Body), resp.Body}
		body = body[:limit]
	}
	header := make(http.Header)
	copyHeaders(header, resp.Header)
	return &Response{
		Status:   resp.StatusCode,
		Header:   header,
		Body:     body,
		StoredAt: time.Now().UTC(),
	}, complete, nil
}

func writeStored(w http.ResponseWriter, stored *Response, xcache string) {
	h := w.Header()
	copyHeaders(h, stored.Header)
	h.Set(HeaderCache, xcache)
	h.Set("Content-Length", strconv.Itoa(len(stored.Body)))
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		if skipHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		dst[k] = append([]string(nil), vv...)
	}
}
