package buildCFG

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"

	"conftickets/internal/apikeys"
	"conftickets/internal/gateway"
	"conftickets/internal/mailer"
	"conftickets/internal/rabbit"
	"conftickets/internal/ratelimit"
	"conftickets/internal/service"
)

type ServerConfig struct {
	Port    string
	GinMode string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Limit    ratelimit.Config
}

type AdminConfig struct {
	Email    string
	Name     string
	Password string
}

type MigrationConfig struct {
	Path               string
	RollbackOnShutdown bool
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		log.Warn().Msg("server.port not set, using 8080")
		port = "8080"
	}
	mode := cfg.GetString("server.gin_mode")
	if mode == "" {
		mode = "release"
	}
	return ServerConfig{Port: port, GinMode: mode}
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	master := cfg.GetString("database.master_dsn")
	if master == "" {
		return "", nil, nil, errors.New("database.master_dsn is required")
	}
	var slaves []string
	for _, dsn := range strings.Split(cfg.GetString("database.slave_dsns"), ",") {
		if dsn = strings.TrimSpace(dsn); dsn != "" {
			slaves = append(slaves, dsn)
		}
	}

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("database.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: cfg.GetDuration("database.conn_max_lifetime"),
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 30 * time.Minute
	}
	log.Info().Int("slaves", len(slaves)).Int("max_open_conns", opts.MaxOpenConns).Msg("database config loaded")
	return master, slaves, opts, nil
}

func BuildMigrationConfig(cfg *config.Config) MigrationConfig {
	path := cfg.GetString("database.migrations_path")
	if path == "" {
		path = "migrations/postgres"
	}
	return MigrationConfig{
		Path:               path,
		RollbackOnShutdown: cfg.GetBool("database.rollback_on_shutdown"),
	}
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (rabbit.Config, error) {
	rc := rabbit.Config{
		Url:      cfg.GetString("rabbitmq.url"),
		Exchange: cfg.GetString("rabbitmq.exchange"),
		Queue:    cfg.GetString("rabbitmq.queue"),
		Prefetch: cfg.GetInt("rabbitmq.prefetch"),
	}
	if rc.Url == "" || rc.Exchange == "" || rc.Queue == "" {
		return rabbit.Config{}, errors.New("rabbitmq.url, rabbitmq.exchange and rabbitmq.queue are required")
	}
	log.Info().Str("exchange", rc.Exchange).Str("queue", rc.Queue).Msg("rabbitmq config loaded")
	return rc, nil
}

func BuildRedisConfig(cfg *config.Config) RedisConfig {
	return RedisConfig{
		Addr:     cfg.GetString("redis.addr"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       cfg.GetInt("redis.db"),
		Limit: ratelimit.Config{
			Limit:  int64(cfg.GetInt("redis.rate_limit")),
			Window: cfg.GetDuration("redis.rate_window"),
		},
	}
}

func BuildAppConfig(cfg *config.Config) (service.Config, error) {
	price, err := decimal.NewFromString(cfg.GetString("app.ticket_price"))
	if err != nil {
		return service.Config{}, fmt.Errorf("app.ticket_price: %w", err)
	}
	if !price.IsPositive() {
		return service.Config{}, errors.New("app.ticket_price must be positive")
	}
	website := strings.TrimRight(cfg.GetString("app.website_url"), "/")
	if website == "" {
		return service.Config{}, errors.New("app.website_url is required")
	}
	currency := cfg.GetString("app.currency")
	if currency == "" {
		currency = "PEN"
	}
	return service.Config{
		EventName:        cfg.GetString("app.event_name"),
		TicketPrice:      price,
		Currency:         currency,
		WebsiteURL:       website,
		ConfirmationURL:  orDefault(cfg.GetString("app.confirmation_url"), website+"/confirmation"),
		PendingURL:       orDefault(cfg.GetString("app.pending_url"), website+"/confirmation"),
		AlreadyPaidURL:   orDefault(cfg.GetString("app.already_paid_url"), website+"/already-paid"),
		ErrorURL:         orDefault(cfg.GetString("app.error_url"), website+"/error"),
		RemindersEnabled: cfg.GetBool("app.reminders_enabled"),
		ReminderDelay:    cfg.GetDuration("app.reminder_delay"),
	}, nil
}

// BuildEmailConfig fills everything but the secrets, which come from the key registry.
func BuildEmailConfig(cfg *config.Config) mailer.Config {
	return mailer.Config{
		Driver:        cfg.GetString("email.driver"),
		SenderName:    cfg.GetString("email.sender_name"),
		SenderEmail:   cfg.GetString("email.sender_email"),
		ReplyTo:       cfg.GetString("email.reply_to"),
		ResendBaseURL: cfg.GetString("email.resend_base_url"),
		SMTPHost:      cfg.GetString("email.smtp_host"),
		SMTPPort:      cfg.GetInt("email.smtp_port"),
		SMTPUsername:  cfg.GetString("email.smtp_username"),
	}
}

func BuildPaymentConfig(cfg *config.Config) gateway.Config {
	return gateway.Config{
		BaseURL: cfg.GetString("payment.base_url"),
		Timeout: cfg.GetDuration("payment.timeout"),
	}
}

func BuildAdminConfig(cfg *config.Config) AdminConfig {
	return AdminConfig{
		Email:    cfg.GetString("admin.email"),
		Name:     cfg.GetString("admin.name"),
		Password: os.Getenv("ADMIN_PASSWORD"),
	}
}

// LoadSecrets reads .env when present and returns every registry reference found in the environment.
func LoadSecrets(log *zerolog.Logger) map[string]string {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env")
	}
	secrets := make(map[string]string, len(apikeys.Defaults))
	for _, k := range apikeys.Defaults {
		if v := os.Getenv(k.Key); v != "" {
			secrets[k.Key] = v
		}
	}
	return secrets
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
