package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/matzehuels/panelgrid/pkg/cache"
	"github.com/matzehuels/panelgrid/pkg/preset"
	"github.com/matzehuels/panelgrid/pkg/retry"
	"github.com/matzehuels/panelgrid/pkg/server"
	"github.com/matzehuels/panelgrid/pkg/session"
)

// Backends that are still starting get this many connection attempts.
const (
	connectAttempts = 5
	connectDelay    = 200 * time.Millisecond
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the rendering and edit service",
		Long: `Run the HTTP service that keeps a mirror of each client's layout, applies
edits to it and answers with the rendered SVG.

Backends for sessions, the artifact cache and presets are chosen in the
[server] table of the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg().Server
			if addr != "" {
				cfg.Addr = addr
			}
			return c.runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8000)")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, cfg ServerConfig) error {
	logger := loggerFromContext(ctx)
	opts, closeAll, err := c.serverOptions(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeAll()

	srv := server.New(opts)
	printInfo("Serving on %s", StyleHighlight.Render(cfg.Addr))
	printDetail("sessions: %s · cache: %s · presets: %s", cfg.Sessions, cfg.Cache, cfg.Presets)
	return srv.ListenAndServe(ctx, cfg.Addr)
}

// serverOptions opens the configured backends. The returned function closes
// them.
func (c *CLI) serverOptions(ctx context.Context, cfg ServerConfig, logger *log.Logger) (server.Options, func(), error) {
	opts := server.Options{
		SessionTTL:     cfg.sessionTTL(),
		CacheTTL:       cfg.cacheTTL(),
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (server.Options, func(), error) {
		closeAll()
		return server.Options{}, func() {}, err
	}

	var rdb *redis.Client
	if cfg.Sessions == backendRedis || cfg.Cache == backendRedis {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		err := retry.Do(ctx, connectAttempts, connectDelay, func() error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				logger.Debug("redis not ready", "addr", cfg.RedisAddr, "err", err)
				return retry.Transient(err)
			}
			return nil
		})
		if err != nil {
			_ = rdb.Close()
			return fail(fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err))
		}
		closers = append(closers, func() { _ = rdb.Close() })
		logger.Debug("connected to redis", "addr", cfg.RedisAddr)
	}

	switch cfg.Sessions {
	case backendRedis:
		opts.Sessions = session.NewRedisStore(rdb, "")
		if cfg.Relay {
			opts.Relay = server.NewRedisRelay(rdb, "")
		}
	case backendFile:
		s, err := session.NewFileStore(cfg.SessionDir)
		if err != nil {
			return fail(err)
		}
		opts.Sessions = s
	default:
		opts.Sessions = session.NewMemoryStore()
	}

	switch cfg.Cache {
	case backendRedis:
		opts.Cache = cache.NewRedisCache(rdb, "")
	case backendFile:
		dir, err := c.artifactDir()
		if err != nil {
			return fail(err)
		}
		fc, err := cache.NewFileCache(dir)
		if err != nil {
			return fail(err)
		}
		opts.Cache = fc
		closers = append(closers, func() { _ = fc.Close() })
	}

	switch cfg.Presets {
	case backendMongo:
		var ms *preset.MongoStore
		err := retry.Do(ctx, connectAttempts, connectDelay, func() error {
			var err error
			ms, err = preset.DialMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
			return retry.Transient(err)
		})
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = ms.Close(context.Background()) })
		opts.Presets = ms
	case backendFile:
		dir := cfg.PresetDir
		if dir == "" {
			d, err := configDir()
			if err != nil {
				return fail(err)
			}
			dir = filepath.Join(d, "presets")
		}
		fs, err := preset.NewFileStore(dir)
		if err != nil {
			return fail(err)
		}
		opts.Presets = fs
	}

	return opts, closeAll, nil
}
