package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/pkg/browser"
	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/shiplens/internal/background"
	"github.com/hpungsan/shiplens/internal/cache"
	"github.com/hpungsan/shiplens/internal/config"
	"github.com/hpungsan/shiplens/internal/db"
	"github.com/hpungsan/shiplens/internal/logging"
	"github.com/hpungsan/shiplens/internal/mcp"
	"github.com/hpungsan/shiplens/internal/observer"
	"github.com/hpungsan/shiplens/internal/ops"
	"github.com/hpungsan/shiplens/internal/turvo"
	"github.com/hpungsan/shiplens/internal/web"
)

// serveCmd creates the serve command.
func serveCmd(cfg *config.Config, baseDir string) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the daemon the browser extension and the other commands talk to",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Listen address (default from config: 127.0.0.1)"},
			&cli.IntFlag{Name: "port", Usage: "Listen port (default from config: 7717)"},
			&cli.BoolFlag{Name: "keep-cache", Usage: "Keep shipments cached by a previous run"},
			&cli.BoolFlag{Name: "no-mcp", Usage: "Do not mount the MCP endpoint"},
			&cli.BoolFlag{Name: "open", Usage: "Open the cached tabs page in the browser"},
		},
		Action: func(c *cli.Context) error {
			if c.IsSet("bind") {
				cfg.Bind = c.String("bind")
			}
			if c.IsSet("port") {
				cfg.Port = c.Int("port")
			}

			d, err := newDaemon(c.Context, cfg, baseDir, daemonOptions{
				KeepCache: c.Bool("keep-cache"),
				NoMCP:     c.Bool("no-mcp"),
			})
			if err != nil {
				return outputError(err)
			}
			defer d.Close()

			pterm.Info.Printf("shiplens %s listening on %s\n", Version, cfg.BaseURL())
			if p := d.sink.Path(); p != "" {
				pterm.Info.Printf("logging to %s\n", p)
			}

			ready := func() {
				if !c.Bool("open") {
					return
				}
				if err := browser.OpenURL(cfg.BaseURL() + "/"); err != nil {
					pterm.Warning.Printf("Could not open browser automatically: %v\n", err)
				}
			}
			return web.Run(d.srv, d.log, ready)
		},
	}
}

type daemonOptions struct {
	KeepCache bool
	NoMCP     bool

	// LogSink overrides the session log file under baseDir/logs.
	LogSink *logging.Sink
}

// daemon is a wired but not yet listening shiplens server.
type daemon struct {
	srv  *http.Server
	bg   *background.Background
	db   *sql.DB
	sink *logging.Sink
	log  *logging.Logger
}

// newDaemon opens the database and wires the cache, token observer,
// upstream client and HTTP surfaces.
func newDaemon(ctx context.Context, cfg *config.Config, baseDir string, opts daemonOptions) (*daemon, error) {
	sink := opts.LogSink
	if sink == nil {
		var err error
		sink, err = logging.Open(filepath.Join(baseDir, "logs"))
		if err != nil {
			pterm.Warning.Printf("session log unavailable, logging to stderr: %v\n", err)
		}
	}
	log := sink.Logger("daemon")

	database, err := db.Init(baseDir)
	if err != nil {
		sink.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db.ConfigurePool(database, cfg)

	d := &daemon{db: database, sink: sink, log: log}
	fail := func(err error) (*daemon, error) {
		d.Close()
		return nil, err
	}

	shipments, err := cache.New(ctx, database, sink.Logger("cache"))
	if err != nil {
		return fail(err)
	}
	if !opts.KeepCache {
		n, err := shipments.Clear(ctx)
		if err != nil {
			return fail(err)
		}
		if n > 0 {
			log.Infof("cleared %d shipments cached by a previous run", n)
		}
	}

	obs, err := observer.New(cfg.Origin)
	if err != nil {
		return fail(err)
	}
	bg, err := background.New(obs, shipments, turvo.NewClient(cfg, sink.Logger("turvo")), sink.Logger("background"))
	if err != nil {
		return fail(err)
	}
	d.bg = bg

	webOpts := web.Options{Version: Version, Log: sink.Logger("web")}
	if !opts.NoMCP {
		for _, name := range mcp.ValidateDisabledTools(cfg.DisabledTools) {
			log.Warnf("unknown tool in disabled_tools: %s", name)
		}
		exportsDir, err := ops.DefaultExportsDir(baseDir)
		if err != nil {
			return fail(err)
		}
		webOpts.MCP = mcp.HTTPHandler(mcp.NewServer(mcp.NewHandlers(bg, cfg, exportsDir), Version))
	}

	srv, err := web.NewServer(bg, cfg, webOpts)
	if err != nil {
		return fail(err)
	}
	d.srv = srv
	return d, nil
}

// Close releases the database and the session log.
func (d *daemon) Close() error {
	err := d.db.Close()
	d.sink.Close()
	return err
}
