package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/example/sems-monitoring/internal/account"
	"github.com/example/sems-monitoring/internal/api"
	"github.com/example/sems-monitoring/internal/common"
	"github.com/example/sems-monitoring/internal/device"
	"github.com/example/sems-monitoring/internal/flow"
	"github.com/example/sems-monitoring/internal/message"
	"github.com/example/sems-monitoring/internal/notify"
	"github.com/example/sems-monitoring/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := common.LoadConfig("sems-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := common.NewLogger(cfg.ServiceName)
	shutdown, err := common.SetupOTel(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise telemetry")
	}
	defer common.ShutdownTelemetry(context.Background(), shutdown, logger)

	metricsSrv := common.StartMetricsServer(cfg.MetricsPort, logger)
	defer metricsSrv.Shutdown(context.Background())

	devices, accounts, closeStores, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("open store")
	}
	defer closeStores()

	engine, err := newEngine(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build message engine")
	}

	var events notify.EventPublisher = notify.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher, writer := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.NotificationEvents)
		defer writer.Close()
		events = publisher
	}
	transport, mailCfg := newTransport(cfg)
	dispatcher := notify.NewDispatcher(transport, mailCfg, events, logger)

	accountSvc := account.NewService(accounts)
	if cfg.AdminPassword != "" {
		if err := accountSvc.EnsureAdmin(ctx, cfg.AdminPassword); err != nil {
			logger.Fatal().Err(err).Msg("seed admin account")
		}
	}
	tokens, err := account.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("JWT_SECRET must be set")
	}

	registry := device.NewRegistry(devices)
	srv := &http.Server{
		Addr: formatAddr(cfg.HTTPPort),
		Handler: api.NewServer(api.Options{
			Devices:       registry,
			Accounts:      accountSvc,
			Tokens:        tokens,
			Engine:        engine,
			Flows:         flow.NewRegistry(dispatcher, 30*time.Minute),
			StatementBase: cfg.StatementBaseURL,
			GenerateRPS:   cfg.GenerateRPS,
			GenerateBurst: cfg.GenerateBurst,
			Logger:        logger,
		}).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Int("port", cfg.HTTPPort).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return watchDevices(gctx, registry, logger)
	})
	g.Go(func() error {
		<-gctx.Done()
		ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		return srv.Shutdown(ctxShutdown)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("shutdown with error")
	}
}

// openStores returns the devices and accounts collections on the configured
// backend.
func openStores(ctx context.Context, cfg *common.Config, logger zerolog.Logger) (store.Store, store.Store, func(), error) {
	switch cfg.StoreBackend {
	case "memory":
		return store.NewMemoryStore(nil), store.NewMemoryStore(nil), func() {}, nil
	case "firebase":
		client, err := store.NewFirebaseClient(ctx, store.FirebaseConfig{
			DatabaseURL:     cfg.FirebaseDatabaseURL,
			CredentialsFile: cfg.FirebaseCredentials,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return store.NewFirebaseStore(client, "devices", cfg.FirebasePollEvery, logger),
			store.NewFirebaseStore(client, "accounts", cfg.FirebasePollEvery, logger),
			func() {}, nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, nil, errors.New("DATABASE_URL must be provided")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		devices, err := store.NewPostgresStore(pool, "devices", logger)
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		if err := devices.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		accounts, err := store.NewPostgresStore(pool, "accounts", logger)
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return devices, accounts, pool.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func newEngine(ctx context.Context, cfg *common.Config, logger zerolog.Logger) (*message.Engine, error) {
	catalog := message.DefaultCatalog()
	if cfg.CatalogPath != "" {
		c, err := message.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
		catalog = c
	}

	var backend message.Backend
	switch cfg.GenerationBackend {
	case "template":
		b, err := message.NewTemplateBackend(catalog)
		if err != nil {
			return nil, err
		}
		backend = b
	case "genai":
		b, err := message.NewGenAIBackend(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, catalog)
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		return nil, fmt.Errorf("unknown generation backend %q", cfg.GenerationBackend)
	}
	return message.NewEngine(backend, catalog, logger), nil
}

// newTransport picks the mail transport. A transport with missing
// credentials is still returned; the dispatcher reports it per attempt.
func newTransport(cfg *common.Config) (notify.Transport, notify.MailConfig) {
	if cfg.MailProvider == "smtp" {
		return &notify.SMTPTransport{Host: cfg.SMTPHost, Port: cfg.SMTPPort, Username: cfg.SMTPUsername},
			notify.MailConfig{APIKey: cfg.SMTPPassword, FromAddress: cfg.MailFrom}
	}
	return &notify.SendGridTransport{Endpoint: cfg.SendGridEndpoint},
		notify.MailConfig{APIKey: cfg.SendGridAPIKey, FromAddress: cfg.MailFrom}
}

// watchDevices logs the dashboard summary whenever the device list changes.
func watchDevices(ctx context.Context, registry *device.Registry, logger zerolog.Logger) error {
	stop, err := registry.Watch(ctx, func(devices []device.Device) {
		s := device.Summarize(devices)
		logger.Info().
			Int("total", s.Total).
			Int("tampered", s.Tampered).
			Int("outages", s.Outages).
			Str("most_outage_location", s.MostOutageLocation).
			Msg("device summary")
	})
	if err != nil {
		return fmt.Errorf("watch devices: %w", err)
	}
	<-ctx.Done()
	stop()
	return nil
}

func formatAddr(port int) string {
	return ":" + strconv.Itoa(port)
}
