package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sunrayhq/control-plane/internal/api"
	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/cron"
	"github.com/sunrayhq/control-plane/internal/hoststate"
	"github.com/sunrayhq/control-plane/internal/logger"
	"github.com/sunrayhq/control-plane/internal/models"
	"github.com/sunrayhq/control-plane/internal/observability"
	"github.com/sunrayhq/control-plane/internal/session"
	"github.com/sunrayhq/control-plane/internal/snapshot"
	"github.com/sunrayhq/control-plane/internal/store/sqlite"
	"github.com/sunrayhq/control-plane/internal/token"
	"github.com/sunrayhq/control-plane/internal/worker"
	"github.com/sunrayhq/control-plane/internal/workerclient"
)

const (
	defaultGracefulTimeout = 30 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 15 * time.Second
	serverIdleTimeout      = 60 * time.Second

	otpCleanupInterval       = 15 * time.Minute
	goliveTransitionInterval = 24 * time.Hour
	auditRetentionInterval   = 24 * time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control-plane REST API and background jobs",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("address", ":8443", "Address to listen on")
	serveCmd.Flags().String("db-path", "", "Path to the SQLite database file (defaults to the platform config dir)")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP/HTTP trace exporter endpoint (empty uses the SDK default)")

	for _, name := range []string{"address", "db-path", "otel-endpoint"} {
		if err := viper.BindPFlag(name, serveCmd.Flags().Lookup(name)); err != nil {
			logger.Fatalf("failed to bind %s flag: %v", name, err)
		}
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	dbPath := viper.GetString("db-path")
	if dbPath == "" {
		dbPath = sqlite.DefaultDBPath()
	}

	db, err := sqlite.Open(ctx, dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	st := sqlite.New(db)

	auditLogger := audit.NewLogger(st)

	tp, err := observability.NewTracerProvider(ctx, "sunray-control-plane", viper.GetString("otel-endpoint"))
	if err != nil {
		logger.Warnf("observability: tracing disabled: %v", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warnf("observability: tracer shutdown: %v", err)
			}
		}()
	}

	rpcClient := observability.NewInstrumentedWorkerClient(workerclient.New())

	setupIssuer := token.NewIssuer(st, auditLogger)
	emailIssuer := token.NewEmailIssuer(st, auditLogger)
	sessionEngine := session.NewEngine(st, auditLogger, rpcClient)
	registrar := worker.NewRegistrar(st, auditLogger)
	transitioner := hoststate.NewTransitioner(st, auditLogger)
	snapshotBuilder := snapshot.NewBuilder(st)
	metrics := api.NewMetrics(prometheus.DefaultRegisterer)

	if err := seedBootstrapAPIKey(ctx, st, auditLogger); err != nil {
		return err
	}

	server := api.NewServer(st, auditLogger, setupIssuer, emailIssuer, sessionEngine, registrar, snapshotBuilder, metrics)

	scheduler := cron.NewScheduler(
		cron.Job{Name: "email-otp-cleanup", Interval: otpCleanupInterval, Run: func(ctx context.Context) error {
			_, err := emailIssuer.CleanupExpired(ctx)
			return err
		}},
		cron.Job{Name: "host-golive-transition", Interval: goliveTransitionInterval, Run: func(ctx context.Context) error {
			_, err := transitioner.RunDaily(ctx, time.Now().UTC())
			return err
		}},
		cron.Job{Name: "audit-retention", Interval: auditRetentionInterval, Run: func(ctx context.Context) error {
			_, err := audit.PruneOld(ctx, st, auditLogger)
			return err
		}},
	)

	cronCtx, stopCron := context.WithCancel(context.Background())
	scheduler.Start(cronCtx)
	defer func() {
		stopCron()
		scheduler.Wait()
	}()

	httpServer := &http.Server{
		Addr:         viper.GetString("address"),
		Handler:      server.Router(),
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		logger.Infof("sunray-server: listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("sunray-server: failed to serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("sunray-server: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("sunray-server: forced shutdown: %v", err)
		return err
	}
	logger.Info("sunray-server: shutdown complete")
	return nil
}

const bootstrapAPIKeyMarker = "sunray.bootstrap_api_key_created"

// bootstrapStore is the narrow Store surface seedBootstrapAPIKey needs.
type bootstrapStore interface {
	GetConfigValue(ctx context.Context, key string) (string, bool, error)
	SetConfigValue(ctx context.Context, key, value string) error
	CreateAPIKey(ctx context.Context, k *models.APIKey) error
}

// seedBootstrapAPIKey creates a single active ApiKey with "all" scope on
// first boot, so a freshly initialized instance has at least one credential
// an operator can hand to the first worker. process_config's marker row
// makes this idempotent across restarts without requiring a full API key
// listing method on the Store interface.
func seedBootstrapAPIKey(ctx context.Context, st bootstrapStore, auditLogger *audit.Logger) error {
	if _, done, err := st.GetConfigValue(ctx, bootstrapAPIKeyMarker); err != nil {
		return err
	} else if done {
		return nil
	}

	key := &models.APIKey{
		ID:       uuid.NewString(),
		Key:      uuid.NewString() + uuid.NewString(),
		Scopes:   "all",
		IsActive: true,
	}
	if err := st.CreateAPIKey(ctx, key); err != nil {
		return err
	}
	if err := st.SetConfigValue(ctx, bootstrapAPIKeyMarker, key.ID); err != nil {
		return err
	}

	auditLogger.Record(ctx, audit.EventAPIKeyCreated, models.SeverityInfo, audit.Fields{
		APIKeyID: key.ID,
		Details:  map[string]any{"bootstrap": true},
	})
	logger.Infof("sunray-server: bootstrap API key created (id=%s); key=%s", key.ID, key.Key)
	return nil
}
