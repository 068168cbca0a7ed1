package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/samueldng/cash-back-phone-link/internal/config"
	gateway "github.com/samueldng/cash-back-phone-link/internal/gateways"
	"github.com/samueldng/cash-back-phone-link/internal/processor"
	"github.com/samueldng/cash-back-phone-link/pkg/logger"
	"github.com/samueldng/cash-back-phone-link/pkg/prom"
	"github.com/samueldng/cash-back-phone-link/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()

	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		logger.Warn("invalid LOG_LEVEL, keeping default", "level", cfg.LogLevel, "error", err)
	}
	logger.Info("starting notification processor", "version", version, "commit", commit, "date", date)

	redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, cfg.RedisOptions("processor"))
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	var providers []gateway.ProviderConfig
	for _, p := range cfg.SMSProviders() {
		providers = append(providers, gateway.ProviderConfig{Name: p.Name, URL: p.URL, Weight: p.Weight})
	}
	client, err := gateway.NewClient(gateway.Config{
		Providers:               providers,
		AccountSID:              cfg.TwilioAccountSID,
		AuthToken:               cfg.TwilioAuthToken,
		From:                    cfg.TwilioFromNumber,
		CountryCode:             cfg.SMSCountryCode,
		Timeout:                 time.Second * 5,
		MaxRetries:              3,
		RetryDelay:              time.Millisecond * 100,
		MaxConns:                1000,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   60 * time.Second,
	})
	if err != nil {
		logger.Error("failed to create gateway", "error", err)
		return
	}

	idempotencyConfig := processor.DefaultIdempotencyConfig()
	idempotencyConfig.MaxRetries = cfg.QueueMaxRetries
	idempotencyService := processor.NewIdempotencyService(redisAdap, idempotencyConfig)

	service, err := processor.NewProcessorService(
		redisAdap,
		processor.NewNotificationProcessor(client, idempotencyService),
		processor.ServiceConfig{
			Queue:     cfg.NotificationQueue(),
			Consumers: cfg.QueueConsumers,
			Workers:   cfg.QueueWorkers,
		},
	)
	if err != nil {
		logger.Error("failed to create the processor", "error", err)
		return
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	metricsAddr := cfg.AppDebugMetricsAddr
	if metricsAddr == "" {
		metricsAddr = ":9100"
	}
	go func() {
		prom.ListenAndServer(metricsAddr, "/metrics")
	}()

	go func() {
		err := service.Start()
		if err != nil {
			logger.Error("failed to start processor", "error", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	service.Stop()
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
