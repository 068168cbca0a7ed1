package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// operatorConfig shares the TWILIO_* names with the processor so both can
// read the same .env file.
type operatorConfig struct {
	Port         string        `env:"PORT"`
	AccountSID   string        `env:"TWILIO_ACCOUNT_SID"`
	AuthToken    string        `env:"TWILIO_AUTH_TOKEN"`
	DeliveryRate string        `env:"DELIVERY_RATE"`
	MinDelay     time.Duration `env:"MIN_DELAY"`
	MaxDelay     time.Duration `env:"MAX_DELAY"`
}

func (c operatorConfig) rate() float64 {
	r, err := strconv.ParseFloat(c.DeliveryRate, 64)
	if err != nil || r < 0 || r > 1 {
		return 1
	}
	return r
}

func loadConfig() (operatorConfig, error) {
	var cfg operatorConfig
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return cfg, err
	}
	if cfg.Port == "" {
		cfg.Port = "8081"
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = "ACmock"
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = "mock-token"
	}
	if cfg.DeliveryRate == "" {
		cfg.DeliveryRate = "1"
	}
	if cfg.MinDelay == 0 && cfg.MaxDelay == 0 {
		cfg.MinDelay, cfg.MaxDelay = 50*time.Millisecond, 500*time.Millisecond
	}
	return cfg, nil
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("port", cfg.Port).
		Str("account_sid", cfg.AccountSID).
		Float64("delivery_rate", cfg.rate()).
		Dur("min_delay", cfg.MinDelay).
		Dur("max_delay", cfg.MaxDelay).
		Msg("Starting mock SMS provider")

	operator := NewMockOperator(cfg.AccountSID, cfg.AuthToken, cfg.rate(), cfg.MinDelay, cfg.MaxDelay)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      SetupRouter(NewHandler(operator)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}
