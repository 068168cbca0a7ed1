package main

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/samueldng/cash-back-phone-link/internal/config"
	"github.com/samueldng/cash-back-phone-link/internal/handlers"
	"github.com/samueldng/cash-back-phone-link/internal/model"
	"github.com/samueldng/cash-back-phone-link/internal/notification"
	"github.com/samueldng/cash-back-phone-link/internal/queue"
	"github.com/samueldng/cash-back-phone-link/internal/repository"
	"github.com/samueldng/cash-back-phone-link/internal/services"
	xhttp "github.com/samueldng/cash-back-phone-link/pkg/http"
	"github.com/samueldng/cash-back-phone-link/pkg/lock"
	"github.com/samueldng/cash-back-phone-link/pkg/logger"
	"github.com/samueldng/cash-back-phone-link/pkg/pg"
	"github.com/samueldng/cash-back-phone-link/pkg/prom"
	"github.com/samueldng/cash-back-phone-link/pkg/redis"
	"github.com/shopspring/decimal"
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
	logger.Info("starting cashback api", "version", version, "commit", commit, "date", date)

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("failed connecting to database", "driver", cfg.DBDriver, "error", err)
		return
	}

	var redisAdap redis.RedisAdapter
	if cfg.RedisAddr != "" {
		redisAdap, err = redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, cfg.RedisOptions("api"))
		if err != nil {
			logger.Error("failed connecting to redis", "error", err)
			return
		}
	}

	var locker services.Locker = lock.NewKeyedMutex()
	if cfg.LedgerLockBackend == config.LockBackendRedis {
		locker = lock.NewRedisLocker(redisAdap, "ledger:lock:", cfg.LedgerLockTTL)
	}

	var notifier services.Notifier = notification.LogNotifier{}
	if cfg.NotificationsEnabled {
		q, err := queue.NewQueue(redisAdap, cfg.NotificationQueue())
		if err != nil {
			logger.Error("failed creating notification queue", "error", err)
			return
		}
		notifier = notification.NewQueueNotifier(q)
	}

	defaults, err := settingsDefaults(cfg)
	if err != nil {
		logger.Error("invalid cashback defaults", "error", err)
		return
	}
	policy, err := services.NewEligibilityPolicy(cfg.CashbackEligibilityMode)
	if err != nil {
		logger.Error("invalid eligibility mode", "error", err)
		return
	}

	customerRepo := repository.NewCustomerRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	// services
	settingsService := services.NewSettingsService(settingsRepo, defaults)
	ledgerService := services.NewLedgerService(customerRepo, transactionRepo, settingsService, policy, locker, notifier)
	pingers := map[string]services.Pinger{"database": db}
	if redisAdap != nil {
		pingers["redis"] = redisAdap
	}
	healthService := services.NewHealthService(pingers)

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	if cfg.HttpCorsOrigin != "" {
		s.Use(xhttp.CORSMiddleware(cfg.HttpCorsOrigin))
	}
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(cfg.HttpRequestTimeout))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)

	// v1 handlers
	g := s.Router.Group(cfg.HttpBaseRequestUrl)
	handlers.RegisterLedgerRoutes(g, handlers.NewLedgerHandler(ledgerService))
	handlers.RegisterSettingsRoutes(g, handlers.NewSettingsHandler(settingsService))
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(healthService))

	if cfg.AppDebugMetricsAddr != "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		if err := prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
			logger.Error("failed to create prometheus metrics", "error", err)
			return
		}
		go prom.ListenAndServer(cfg.AppDebugMetricsAddr, metricsURI(cfg))
	}

	s.CloseOnSignal()
	if err := s.ListenAndServe(cfg.HttpListenAddr); err != nil {
		logger.Error("error in running http-server", "error", err)
	}
}

func openDatabase(cfg *config.Config) (*pg.DB, error) {
	debug := cfg.AppEnv == "dev"

	if cfg.DBDriver == config.DBDriverSQLite {
		db, err := pg.OpenSQLite(cfg.SQLitePath, debug)
		if err != nil {
			return nil, err
		}
		if err := repository.AutoMigrate(db); err != nil {
			return nil, errors.Wrap(err, "migrate sqlite schema")
		}
		return db, nil
	}

	return pg.CreateReadWrite(cfg.PostgresRead(), cfg.PostgresWrite(), debug)
}

func settingsDefaults(cfg *config.Config) (model.Settings, error) {
	percentage, err := decimal.NewFromString(cfg.CashbackDefaultPercentage)
	if err != nil {
		return model.Settings{}, errors.Wrap(err, "CASHBACK_DEFAULT_PERCENTAGE")
	}
	minimum, err := decimal.NewFromString(cfg.CashbackDefaultMinimumRedemption)
	if err != nil {
		return model.Settings{}, errors.Wrap(err, "CASHBACK_DEFAULT_MINIMUM_REDEMPTION")
	}
	return model.Settings{
		CashbackPercentage: percentage,
		MinimumRedemption:  model.RoundMoney(minimum),
		EligibleCategories: cfg.DefaultCategories(),
	}, nil
}

func metricsURI(cfg *config.Config) string {
	if cfg.AppDebugMetricsURI == "" {
		return "/metrics"
	}
	return cfg.AppDebugMetricsURI
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
