package web

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hpungsan/shiplens/internal/background"
	"github.com/hpungsan/shiplens/internal/config"
	"github.com/hpungsan/shiplens/internal/logging"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// maxMessageBytes bounds extension messages and form posts.
const maxMessageBytes = 1 << 20

// Options configures the daemon's HTTP server.
type Options struct {
	Version string
	Log     *logging.Logger

	// MCP, when set, is mounted at /mcp.
	MCP http.Handler
}

// NewServer creates the daemon's HTTP server: the extension's message
// endpoints, the popup page, downloads, and optionally the MCP endpoint.
func NewServer(bg *background.Background, cfg *config.Config, opts Options) (*http.Server, error) {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, err
	}

	log := opts.Log
	if log == nil {
		log = logging.Nop()
	}

	h := &Handlers{
		bg:       bg,
		cfg:      cfg,
		renderer: NewRenderer(templateSub, opts.Version, log),
		log:      log,
		now:      time.Now,
	}

	mux := http.NewServeMux()

	// Extension endpoints
	mux.HandleFunc("POST /rpc", extensionOnly(requireJSON(h.HandleRPC)))
	mux.HandleFunc("POST /observe", extensionOnly(requireJSON(h.HandleObserve)))
	mux.HandleFunc("POST /tabs/{id}/loading", extensionOnly(h.HandleTabLoading))
	mux.HandleFunc("POST /session/reset", extensionOnly(h.HandleResetSession))

	// Pages
	mux.HandleFunc("GET /{$}", h.HandleIndex)
	mux.HandleFunc("GET /popup", h.HandlePopup)
	mux.HandleFunc("POST /popup/email", h.HandlePopupEmail)
	mux.HandleFunc("POST /popup/refresh", h.HandlePopupRefresh)

	// Downloads
	mux.HandleFunc("GET /tabs/{id}/shipment.json", h.HandleDownloadShipment)
	mux.HandleFunc("GET /tabs/{id}/shipment-list.json", h.HandleDownloadShipmentList)

	if opts.MCP != nil {
		mux.Handle("/mcp", opts.MCP)
	}

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           securityHeaders(localOnly(cfg.Bind, cfg.ExtensionIDs, mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          log.Std(),
	}, nil
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
// ready, if non-nil, is called once the server has been started.
func Run(srv *http.Server, log *logging.Logger, ready func()) error {
	if log == nil {
		log = logging.Nop()
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Infof("shiplens daemon running at http://%s", srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Warnf("server is binding to all interfaces and may be accessible from the network")
	}
	if ready != nil {
		ready()
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Infof("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
