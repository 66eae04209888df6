package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"conftickets/cmd/buildCFG"
	"conftickets/internal/api/api"
	"conftickets/internal/apikeys"
	rabbitReader "conftickets/internal/consumerWorker"
	"conftickets/internal/gateway"
	"conftickets/internal/mailer"
	"conftickets/internal/rabbit"
	"conftickets/internal/ratelimit"
	"conftickets/internal/repo"
	"conftickets/internal/service"
	"conftickets/internal/signature"
	"conftickets/internal/token"
)

func main() {
	zlog.Init()
	log := zlog.Logger

	cfg := config.New()
	if err := cfg.Load("config.yaml", "", "'"); err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}
	secrets := buildCFG.LoadSecrets(&log)
	serverCfg := buildCFG.BuildServerConfig(cfg, &log)

	masterDSN, slaveDSNs, poolOptions, err := buildCFG.BuildDBConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build DB config")
	}
	db, err := dbpg.New(masterDSN, slaveDSNs, poolOptions)
	if err != nil {
		log.Fatal().Msgf("failed to connect to DB: %v", err)
	}
	if err := db.Master.Ping(); err != nil {
		log.Fatal().Msgf("DB ping failed: %v", err)
	}
	log.Info().Msg("Database connected successfully")

	repository, err := repo.NewRepository(db, &log)
	if err != nil {
		log.Fatal().Msgf("failed to initialize repository: %v", err)
	}
	migrationCfg := buildCFG.BuildMigrationConfig(cfg)
	migrationPath := migrationCfg.Path
	if !filepath.IsAbs(migrationPath) {
		cwd, err := os.Getwd()
		if err != nil {
			log.Fatal().Err(err).Msg("cannot get working directory")
		}
		migrationPath = filepath.Join(cwd, migrationPath)
	}
	if err := repository.MigrateUp(migrationPath); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Msg("Migrations applied successfully")

	ctx := context.Background()
	keys := apikeys.NewRegistry(repository, secrets, &log)
	if err := keys.Seed(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to seed api keys")
	}

	emailCfg := buildCFG.BuildEmailConfig(cfg)
	required := []string{apikeys.TypeAuth, apikeys.TypeWebhook, apikeys.TypePayment}
	if emailCfg.Driver == mailer.DriverSMTP {
		required = append(required, apikeys.TypeSMTP)
	} else {
		required = append(required, apikeys.TypeEmail)
	}
	resolved := make(map[string]string, len(required))
	for _, keyType := range required {
		secret, err := keys.Resolve(ctx, keyType)
		if err != nil {
			log.Fatal().Err(err).Str("type", keyType).Msg("required api key unavailable")
		}
		resolved[keyType] = secret
	}
	emailCfg.ResendAPIKey = resolved[apikeys.TypeEmail]
	emailCfg.SMTPPassword = resolved[apikeys.TypeSMTP]

	codec, err := token.NewCodec(resolved[apikeys.TypeAuth])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build token codec")
	}
	verifier, err := signature.NewVerifier(resolved[apikeys.TypeWebhook], nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build webhook verifier")
	}
	paymentCfg := buildCFG.BuildPaymentConfig(cfg)
	paymentCfg.AccessToken = resolved[apikeys.TypePayment]
	mp := gateway.NewClient(paymentCfg)

	sender, err := mailer.New(emailCfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build mailer")
	}

	appCfg, err := buildCFG.BuildAppConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build app config")
	}

	rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load RabbitMQ config")
	}
	rmq, err := rabbit.NewRabbit(rabbitCfg)
	if err != nil {
		log.Fatal().Msgf("Failed to connect to RabbitMQ: %v", err)
	}
	defer rmq.Close()

	serviceInstance, err := service.NewService(appCfg, service.Deps{
		Repo:      repository,
		Gateway:   mp,
		Mailer:    sender,
		Tokens:    codec,
		Verifier:  verifier,
		Reminders: rmq,
		Log:       &log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build service")
	}

	adminCfg := buildCFG.BuildAdminConfig(cfg)
	if err := serviceInstance.EnsureBootstrapAdmin(ctx, adminCfg.Email, adminCfg.Name, adminCfg.Password); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap admin")
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	rabbitReaderer := rabbitReader.NewReader(rmq, serviceInstance)
	rabbitReaderer.Start(workerCtx)

	routers := &api.Routers{
		Service:    serviceInstance,
		Keys:       keys,
		Tokens:     codec,
		DB:         db.Master,
		WebsiteURL: appCfg.WebsiteURL,
		GinMode:    serverCfg.GinMode,
	}
	redisCfg := buildCFG.BuildRedisConfig(cfg)
	if rdb := newRedis(ctx, redisCfg, &log); rdb != nil {
		defer rdb.Close()
		routers.Limiter = ratelimit.New(rdb, redisCfg.Limit, &log)
	}
	app := api.NewRouters(routers)

	srv := &http.Server{
		Addr:              ":" + serverCfg.Port,
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", serverCfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info().Msgf("Received signal %s. Initiating shutdown...", sig)
	case err := <-serverErrChan:
		log.Error().Msgf("Server error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Msgf("Error shutting down server: %v", err)
	}

	cancelWorkers()
	rabbitReaderer.Stop()

	if migrationCfg.RollbackOnShutdown {
		log.Info().Msg("Rolling back migrations...")
		if err := repository.MigrateDown(migrationPath); err != nil {
			log.Error().Msgf("failed to rollback migrations: %v", err)
		} else {
			log.Info().Msg("Migrations rolled back successfully")
		}
	}
	log.Info().Msg("Shutdown complete")
}

// newRedis returns nil when redis is not configured or unreachable; rate limiting is then off.
func newRedis(ctx context.Context, rc buildCFG.RedisConfig, log *zerolog.Logger) *redis.Client {
	if rc.Addr == "" {
		log.Warn().Msg("redis.addr not set, rate limiting disabled")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unreachable, rate limiting disabled")
		_ = rdb.Close()
		return nil
	}
	return rdb
}
