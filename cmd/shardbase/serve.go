package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shardlabs/shardbase/internal/api"
	"github.com/shardlabs/shardbase/internal/audit"
	"github.com/shardlabs/shardbase/internal/auth"
	"github.com/shardlabs/shardbase/internal/config"
	"github.com/shardlabs/shardbase/internal/connect"
	"github.com/shardlabs/shardbase/internal/realtime"
	"github.com/shardlabs/shardbase/internal/secrets"
	"github.com/shardlabs/shardbase/internal/sso"
	"github.com/shardlabs/shardbase/internal/store/sqlite"
	"github.com/shardlabs/shardbase/internal/webhook"
)

const (
	heartbeatInterval = 30 * time.Second
	sweepInterval     = 5 * time.Minute
	tokenTTL          = time.Hour
	tokenCacheSize    = 4096
	tokenCacheTTL     = 5 * time.Minute
)

func cmdServe(args []string) error {
	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlags(cfg, args)

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	db, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := config.SeedModelCatalog(ctx, db); err != nil {
		return err
	}

	// Load YAML config into the store if the file exists.
	if cfg.ConfigFile != "" {
		if _, err := os.Stat(cfg.ConfigFile); err == nil {
			fileCfg, err := config.LoadFile(cfg.ConfigFile)
			if err != nil {
				return err
			}
			if err := config.Apply(ctx, db, fileCfg); err != nil {
				return err
			}
			logger.Info("loaded config", "file", cfg.ConfigFile)
		}
	}

	enc, err := secrets.NewFromKeyFile(cfg.AgeKeyPath)
	if err != nil {
		return err
	}

	secret := []byte(cfg.TokenSecret)
	if len(secret) == 0 {
		// Without a configured secret, tokens do not survive a restart.
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return err
		}
		secret = []byte(hex.EncodeToString(buf))
		logger.Warn("SHARDBASE_TOKEN_SECRET not set, using an ephemeral signing key")
	}
	issuer, err := auth.NewIssuer(secret, tokenTTL)
	if err != nil {
		return err
	}
	validator := auth.NewValidator(issuer, db, tokenCacheSize, tokenCacheTTL)

	registry := realtime.NewRegistry(heartbeatInterval, logger)
	dispatcher := webhook.NewDispatcher(db, enc, logger, webhook.Options{})
	events := realtime.Fanout{registry, dispatcher}
	recorder := audit.NewRecorder(db, registry)
	flow := connect.NewFlowManager(db, enc, cfg.ExternalURL)

	var ssoSvc *sso.Service
	if cfg.SSOTenant != "" && (cfg.IDPMetadataURL != "" || cfg.IDPMetadataFile != "") {
		ssoSvc, err = sso.New(ctx, db, issuer, logger, sso.Config{
			TenantSlug:      cfg.SSOTenant,
			ExternalURL:     cfg.ExternalURL,
			IDPMetadataURL:  cfg.IDPMetadataURL,
			IDPMetadataFile: cfg.IDPMetadataFile,
			CertFile:        cfg.SamlCertFile,
			KeyFile:         cfg.SamlKeyFile,
			DefaultRole:     auth.Role(cfg.DefaultRole),
		})
		if err != nil {
			return err
		}
		logger.Info("saml sso enabled", "tenant", cfg.SSOTenant)
	}

	router := api.NewRouter(api.RouterDeps{
		Store:       db,
		Validator:   validator,
		Registry:    registry,
		Events:      events,
		Recorder:    recorder,
		FlowManager: flow,
		Encryptor:   enc,
		Dispatcher:  dispatcher,
		SSO:         ssoSvc,
		UploadDir:   cfg.UploadDir,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: the event stream holds response writers
		// open indefinitely.
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return registry.Run(ctx) })
	g.Go(func() error { return dispatcher.Run(ctx) })
	g.Go(func() error { return runSweeper(ctx, db, validator, logger) })
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runSweeper periodically clears expired sessions, stale upload
// sessions, and expired token cache entries.
func runSweeper(ctx context.Context, db *sqlite.DB, validator *auth.Validator, logger *slog.Logger) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := time.Now().UTC()
			if n, err := db.DeleteExpiredSessions(ctx, now); err != nil {
				logger.Warn("sweep expired sessions", "error", err)
			} else if n > 0 {
				logger.Debug("swept expired sessions", "count", n)
			}
			if n, err := db.DeleteStaleUploadSessions(ctx, now.Add(-24*time.Hour)); err != nil {
				logger.Warn("sweep stale uploads", "error", err)
			} else if n > 0 {
				logger.Debug("swept stale upload sessions", "count", n)
			}
			validator.Sweep()
		}
	}
}

// applyFlags parses --addr=X style flags from the args list.
func applyFlags(cfg *Config, args []string) {
	for _, arg := range args {
		if v, ok := strings.CutPrefix(arg, "--addr="); ok {
			cfg.HTTPAddr = v
		}
		if v, ok := strings.CutPrefix(arg, "--db="); ok {
			cfg.DBPath = v
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			cfg.ConfigFile = v
		}
	}
}
