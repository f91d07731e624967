// Package wire builds the application graph from configuration. App owns
// every long-lived resource and releases them in Close.
package wire

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/mithrel/whtreader/internal/atproto"
	"github.com/mithrel/whtreader/internal/config"
	"github.com/mithrel/whtreader/internal/db"
	"github.com/mithrel/whtreader/internal/notify"
	"github.com/mithrel/whtreader/internal/render"
	synsvc "github.com/mithrel/whtreader/internal/sync"
)

// App aggregates the major services for easy injection.
type App struct {
	Cfg      *viper.Viper
	Log      *slog.Logger
	Store    *db.Store
	Remote   *atproto.Client
	Renderer *render.Renderer
	Events   *notify.Broker
	Syncer   *synsvc.Service
}

// BuildApp wires dependencies with the provided config. Log output goes to
// stderr.
func BuildApp(ctx context.Context, v *viper.Viper) (*App, error) {
	return BuildAppWithLog(ctx, v, os.Stderr)
}

// BuildAppWithLog is BuildApp with an explicit log destination.
func BuildAppWithLog(ctx context.Context, v *viper.Viper, logOut io.Writer) (*App, error) {
	logger, err := NewLogger(logOut, v.GetString("log.level"), v.GetString("log.format"))
	if err != nil {
		return nil, err
	}

	dbPath := config.ResolveDBPath(v)
	store, err := db.Open(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("cache opened", "path", dbPath)

	remote := atproto.NewClient(atproto.Options{
		AppViewURL: v.GetString("remote.appview_url"),
		PLCURL:     v.GetString("remote.plc_url"),
		PDSURL:     v.GetString("remote.pds_url"),
		PageSize:   v.GetInt("remote.page_size"),
		Timeout:    v.GetDuration("remote.timeout"),
		UserAgent:  v.GetString("remote.user_agent"),
		Logger:     logger.With("component", "atproto"),
	})
	renderer := render.New(remote)
	events := notify.NewBroker()
	syncer := synsvc.New(v, synsvc.Deps{
		Store:    store,
		Remote:   remote,
		Renderer: renderer,
		Events:   events,
		Logger:   logger.With("component", "sync"),
	})

	return &App{
		Cfg:      v,
		Log:      logger,
		Store:    store,
		Remote:   remote,
		Renderer: renderer,
		Events:   events,
		Syncer:   syncer,
	}, nil
}

// Close releases the broker and the cache handle.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	a.Events.Close()
	return a.Store.Close()
}

// NewLogger builds a text or JSON slog logger at the given level.
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		lvl = slog.LevelInfo
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
