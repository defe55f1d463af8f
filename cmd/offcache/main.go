// Command offcache serves an origin through a versioned offline cache.
//
// Every browser session is a client of the cache. On start the configured
// manifest is installed as a generation; SIGHUP re-reads the manifest and
// deploys it when its version changed. The previous generation keeps
// serving the sessions it controls until they go idle, unless
// OFFCACHE_SKIP_WAITING is set.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	stdslog "log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/unkn0wn-root/offcache"
	asynchook "github.com/unkn0wn-root/offcache/hooks/async"
	"github.com/unkn0wn-root/offcache/manifest"
	"github.com/unkn0wn-root/offcache/sloghooks"
)

func main() {
	cfg, err := parseConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("offcache: %v", err)
	}
}

func run(ctx context.Context, cfg Config) error {
	logger, hookLog, flush, err := newLogger(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer flush()

	shutdownTracing, err := setupTracing(ctx, cfg.OtelEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	hooks := asynchook.New(sloghooks.New(hookLog, sloghooks.Options{SelfHealEvery: 10}), 1, 1024)
	defer hooks.Close()

	be, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	storage, err := offcache.NewStorage(offcache.StorageOptions{
		Namespace: cfg.Namespace,
		Provider:  be.provider,
		Registry:  be.registry,
		Codec:     be.codec,
		Logger:    logger,
		Hooks:     hooks,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.Close(context.Background()); err != nil {
			logger.Warn("storage close failed", offcache.Fields{"err": err})
		}
	}()

	fetcher := &offcache.HTTPFetcher{Client: &http.Client{Timeout: cfg.FetchTimeout}}
	if cfg.FetchRPS > 0 {
		fetcher.Limiter = rate.NewLimiter(rate.Limit(cfg.FetchRPS), 1)
	}

	host := offcache.NewHost(offcache.HostOptions{Fetcher: fetcher, Logger: logger, Hooks: hooks})
	d := &deployer{cfg: cfg, host: host, storage: storage, fetcher: fetcher, log: logger, hooks: hooks}
	if err := d.deploy(ctx); err != nil {
		return err
	}

	handler, err := offcache.NewHandler(host, offcache.HandlerOptions{
		Origin:     cfg.Origin,
		ClientIdle: cfg.ClientIdle,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer handler.Close()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          stdslog.NewLogLogger(hookLog.Handler(), stdslog.LevelWarn),
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", offcache.Fields{"addr": cfg.Listen, "origin": cfg.Origin})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-hup:
			if err := d.deploy(ctx); err != nil {
				logger.Error("redeploy failed; current generation keeps serving", offcache.Fields{"err": err})
			}
		case err, ok := <-errCh:
			if ok {
				return err
			}
			return nil
		case <-ctx.Done():
			logger.Info("shutting down", nil)
			sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			err := srv.Shutdown(sctx)
			cancel()
			return err
		}
	}
}

// deployer turns the configured manifest into a Manager and hands it to the
// host.
type deployer struct {
	cfg     Config
	host    *offcache.Host
	storage *offcache.Storage
	fetcher offcache.Fetcher
	log     offcache.Logger
	hooks   offcache.Hooks
}

func (d *deployer) deploy(ctx context.Context) error {
	m, err := d.manifest()
	if err != nil {
		return err
	}
	if cur := d.current(); cur != "" && cur == m.Version {
		d.log.Info("manifest version unchanged; nothing to deploy", offcache.Fields{"version": m.Version})
		return nil
	}

	mgr, err := offcache.New(offcache.Options{
		Version:            m.Version,
		Scope:              d.cfg.Origin,
		Storage:            d.storage,
		Manifest:           m.Resources,
		Fetcher:            d.fetcher,
		SkipWaiting:        d.cfg.SkipWaiting,
		InstallConcurrency: d.cfg.InstallConcurrency,
		Logger:             d.log,
		Hooks:              d.hooks,
	})
	if err != nil {
		return err
	}
	return d.host.Deploy(ctx, mgr)
}

// current is the newest deployed version: waiting if any, else active.
func (d *deployer) current() string {
	if w := d.host.Waiting(); w != nil {
		return w.Version()
	}
	if a := d.host.Active(); a != nil {
		return a.Version()
	}
	return ""
}

func (d *deployer) manifest() (manifest.Manifest, error) {
	m := manifest.StopMotion()
	if d.cfg.Manifest != "" {
		var err error
		if m, err = manifest.Load(d.cfg.Manifest); err != nil {
			return manifest.Manifest{}, err
		}
	}
	if d.cfg.Version != "" {
		m.Version = d.cfg.Version
	}
	return m, m.Validate()
}
