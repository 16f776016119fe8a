package web

import (
	"mime"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/hpungsan/shiplens/internal/background"
	"github.com/hpungsan/shiplens/internal/errors"
)

var extensionSchemes = []string{"chrome-extension://", "moz-extension://"}

func isLoopbackName(hostname string) bool {
	return hostname == "localhost" || hostname == "127.0.0.1" || hostname == "::1"
}

// isAllowedHost reports whether a Host header names the daemon itself.
// A page that rebinds its own domain to 127.0.0.1 still sends that domain
// as Host, so only loopback names and the concrete bind address pass.
// An empty host (HTTP/1.0) is allowed.
func isAllowedHost(host, bind string) bool {
	if host == "" {
		return true
	}
	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	hostname = strings.TrimSuffix(strings.TrimPrefix(hostname, "["), "]")
	if isLoopbackName(hostname) {
		return true
	}

	bindIP := net.ParseIP(bind)
	if bindIP == nil || bindIP.IsUnspecified() {
		return false
	}
	return bindIP.Equal(net.ParseIP(hostname))
}

// isAllowedOrigin reports whether an Origin header belongs to the daemon's
// own pages or to the browser extension. Empty means a non-browser client.
// When extensionIDs is set only those extensions pass.
func isAllowedOrigin(origin string, extensionIDs []string) bool {
	if origin == "" {
		return true
	}
	for _, scheme := range extensionSchemes {
		if id, ok := strings.CutPrefix(origin, scheme); ok {
			return len(extensionIDs) == 0 || slices.Contains(extensionIDs, id)
		}
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && isLoopbackName(u.Hostname())
}

// localOnly rejects requests whose Host or Origin is foreign to the daemon,
// then echoes the allowed Origin for CORS and answers preflights.
func localOnly(bind string, extensionIDs []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isAllowedHost(r.Host, bind) {
			renderAPIError(w, errors.NewForbidden("invalid Host header"))
			return
		}

		origin := r.Header.Get("Origin")
		if !isAllowedOrigin(origin, extensionIDs) {
			renderAPIError(w, errors.NewForbidden("invalid origin"))
			return
		}

		// Never "*": only the origin that passed the check.
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+background.ClientHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extensionOnly requires the client header the extension and the CLI send.
// A cross-site form or no-cors fetch cannot set it.
func extensionOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get(background.ClientHeader), background.ClientPrefix) {
			renderAPIError(w, errors.NewForbidden("missing or invalid "+background.ClientHeader+" header"))
			return
		}
		next(w, r)
	}
}

// requireJSON rejects bodies not declared as application/json.
func requireJSON(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			renderAPIError(w, errors.NewUnsupportedMedia(ct))
			return
		}
		next(w, r)
	}
}
