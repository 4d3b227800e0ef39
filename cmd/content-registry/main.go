// Точка входа Content Registry — сервиса регистрации цифрового содержимого
// по content address (SHA-256).
// Загружает конфигурацию, открывает Content Store (PostgreSQL или bbolt),
// подключает Blob Store и Ethereum реестр, создаёт сервисный слой и API handlers,
// запускает фоновые задачи (досинхронизация с реестром, topologymetrics),
// HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goartstore/content-registry/internal/api/handlers"
	"github.com/bigkaa/goartstore/content-registry/internal/api/middleware"
	"github.com/bigkaa/goartstore/content-registry/internal/api/openapi"
	"github.com/bigkaa/goartstore/content-registry/internal/blobstore"
	"github.com/bigkaa/goartstore/content-registry/internal/config"
	"github.com/bigkaa/goartstore/content-registry/internal/database"
	"github.com/bigkaa/goartstore/content-registry/internal/ledger"
	"github.com/bigkaa/goartstore/content-registry/internal/repository"
	"github.com/bigkaa/goartstore/content-registry/internal/server"
	"github.com/bigkaa/goartstore/content-registry/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Content Registry запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("store_backend", cfg.StoreBackend),
		slog.String("blob_backend", cfg.BlobBackend),
		slog.Bool("ledger_enabled", cfg.LedgerEnabled),
	)

	if os.Getenv("CR_DEPHEALTH_GROUP") == "" {
		logger.Warn("CR_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	ctx := context.Background()

	// 3. Content Store
	var (
		repo         repository.ContentRepository
		storeChecker handlers.ReadinessChecker
		pgDB         *sql.DB
	)
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
			os.Exit(1)
		}

		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		// Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
		pgDB = stdlib.OpenDBFromPool(pool)
		defer pgDB.Close()

		repo = repository.NewPostgresContentRepository(pool)
		storeChecker = database.NewReadinessChecker(pool)

	case config.StoreBackendBolt:
		boltRepo, err := repository.OpenBoltContentRepository(cfg.BoltPath)
		if err != nil {
			logger.Error("Ошибка открытия bbolt", slog.String("path", cfg.BoltPath), slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer boltRepo.Close()
		logger.Info("Content Store bbolt открыт", slog.String("path", cfg.BoltPath))

		repo = boltRepo
		storeChecker = boltRepo
	}

	// 4. Blob Store
	var (
		blobs        blobstore.Store = blobstore.Disabled{}
		blobCheckers []handlers.ReadinessChecker
	)
	switch cfg.BlobBackend {
	case config.BlobBackendIPFS:
		ipfs := blobstore.NewIPFSStore(cfg.IPFSAPIURL, cfg.ExternalCallTimeout)
		blobs = ipfs
		blobCheckers = append(blobCheckers, ipfs)
		logger.Info("Blob Store IPFS подключён", slog.String("api_url", cfg.IPFSAPIURL))
	case config.BlobBackendFS:
		fs, err := blobstore.NewFSStore(cfg.BlobDir, cfg.BlobCompression)
		if err != nil {
			logger.Error("Ошибка создания локального blob-хранилища", slog.String("dir", cfg.BlobDir), slog.String("error", err.Error()))
			os.Exit(1)
		}
		blobs = fs
		blobCheckers = append(blobCheckers, fs)
		logger.Info("Blob Store fs подключён",
			slog.String("dir", cfg.BlobDir),
			slog.Bool("compression", cfg.BlobCompression),
		)
	default:
		logger.Info("Blob Store отключён (CR_BLOB_BACKEND=none)")
	}

	// 5. Ethereum реестр
	var registrar ledger.Registrar = ledger.Disabled{}
	var ledgerChecker handlers.ReadinessChecker
	if cfg.LedgerEnabled {
		eth, err := ledger.NewEthRegistrar(ctx, ledger.EthConfig{
			RPCURL:          cfg.EthRPCURL,
			ChainID:         cfg.EthChainID,
			PrivateKeyHex:   cfg.EthPrivateKey,
			ContractAddress: cfg.EthContractAddress,
		}, logger)
		if err != nil {
			logger.Error("Ошибка инициализации Ethereum реестра", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer eth.Close()
		registrar = eth
		ledgerChecker = eth
	} else {
		logger.Info("Внешний реестр отключён (CR_LEDGER_ENABLED=false)")
	}

	// 6. Services
	cache := service.NewCacheService(cfg.CacheMaxSize, cfg.CacheTTL)
	records := service.NewRecordsService(repo, cache, logger)
	svc := handlers.Services{
		Registration: service.NewRegistrationService(repo, blobs, registrar, records, cfg.ExternalCallTimeout, logger),
		Verification: service.NewVerificationService(repo, registrar, records, cfg.LedgerScanLimit, cfg.ExternalCallTimeout, logger),
		Records:      records,
		History:      service.NewHistoryService(repo, logger),
		Ownership:    service.NewOwnershipService(repo, records, logger),
		Download:     service.NewDownloadService(repo, blobs, records, logger),
	}

	// 7. Health и API handlers
	optional := blobCheckers
	if ledgerChecker != nil {
		optional = append(optional, ledgerChecker)
	}
	healthHandler := handlers.NewHealthHandler(storeChecker, optional...)
	apiHandler := handlers.NewAPIHandler(svc, healthHandler, cfg.MaxUploadSize, logger)

	// 8. OpenAPI валидация запросов
	doc, err := openapi.Load()
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}
	validator, err := middleware.NewRequestValidator(doc, logger)
	if err != nil {
		logger.Error("Ошибка создания OpenAPI validator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 9. JWT middleware (опционально)
	opts := server.Options{Validator: validator, AuthRequired: cfg.AuthRequired}
	if cfg.JWTJWKSURL != "" {
		jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWTJWKSURL,
			Issuer:          cfg.JWTIssuer,
			ClientTimeout:   cfg.ExternalCallTimeout,
			RefreshInterval: cfg.JWKSRefreshInterval,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		opts.Auth = jwtAuth
		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
			slog.Bool("auth_required", cfg.AuthRequired),
		)
	} else {
		logger.Warn("CR_JWT_JWKS_URL не задан, все запросы выполняются анонимно")
	}

	// 10. Фоновые задачи
	var ledgerSync *service.LedgerSyncService
	if cfg.LedgerEnabled && cfg.LedgerSyncInterval > 0 {
		ledgerSync = service.NewLedgerSyncService(repo, registrar, records,
			cfg.LedgerSyncInterval, cfg.LedgerSyncBatch, cfg.ExternalCallTimeout, logger)
		ledgerSync.Start(ctx)
	}

	// 10.1 topologymetrics — мониторинг зависимостей (PostgreSQL, IPFS)
	deps := service.DephealthDeps{}
	if pgDB != nil {
		deps.DB = pgDB
		deps.PostgresURL = cfg.DatabaseURL()
	}
	if cfg.BlobBackend == config.BlobBackendIPFS {
		deps.IPFSAPIURL = cfg.IPFSAPIURL
	}
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"content-registry",
		cfg.DephealthGroup,
		deps,
		cfg.DephealthCheckInterval,
		logger,
	)
	switch {
	case errors.Is(dephealthErr, service.ErrNoDependencies):
		logger.Info("topologymetrics: внешних зависимостей для мониторинга нет")
		dephealthSvc = nil
	case dephealthErr != nil:
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	default:
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
			dephealthSvc = nil
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 11. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, opts)
	runErr := srv.Run()
	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
	}

	// 12. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	if ledgerSync != nil {
		ledgerSync.Stop()
	}

	if runErr != nil {
		os.Exit(1)
	}
	logger.Info("Content Registry остановлен")
}
