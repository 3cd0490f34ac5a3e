package app

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/ethaccount/delegation-demo/erc4337"
	"github.com/ethaccount/delegation-demo/src/handler"
	"github.com/ethaccount/delegation-demo/src/repository"
	"github.com/ethaccount/delegation-demo/src/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/rs/zerolog"
	postgresDriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const submissionQueueName = "submission_queue"

type Application struct {
	config            AppConfig
	database          *gorm.DB
	redis             *redis.Client
	BlockchainService *service.BlockchainService
	SignerService     *service.SignerService
	SubmissionService *service.SubmissionService
	Dispatcher        *service.DispatcherService
	Worker            *service.DispatchWorker
}

func NewApplication(ctx context.Context, config AppConfig) (*Application, error) {
	logger := zerolog.Ctx(ctx).With().Str("function", "NewApplication").Logger()

	// Connect to Redis
	redisOpts, err := redis.ParseURL(*config.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(redisOpts)

	// Test Redis connection
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connection to redis failed: %w", err)
	}
	logger.Info().Msg("Redis connection established")

	// Connect to database
	database, err := gorm.Open(postgresDriver.Open(*config.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connection to database failed: %w", err)
	}

	// Test database connection
	db, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connection to database failed: %w", err)
	}

	logger.Info().Msg("Database connection established")

	// run migration files
	MigrationUp(*config.DSN, *config.MigrationPath)

	blockchainService := service.NewBlockchainService(service.BlockchainConfig{
		SepoliaRPCURL:         *config.SepoliaRPCURL,
		ArbitrumSepoliaRPCURL: *config.ArbitrumSepoliaRPCURL,
		BaseSepoliaRPCURL:     *config.BaseSepoliaRPCURL,
		OptimismSepoliaRPCURL: *config.OptimismSepoliaRPCURL,
		BundlerRPCURL:         *config.BundlerRPCURL,
		BundlerAPIKey:         *config.BundlerAPIKey,
	})

	signerService, err := service.NewSignerService(*config.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer service: %w", err)
	}

	client, err := blockchainService.GetClient(*config.ChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain %d: %w", *config.ChainID, err)
	}

	bundler, err := blockchainService.GetBundlerClient(ctx, *config.ChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bundler: %w", err)
	}

	dispatcherConfig := service.DispatcherConfig{
		ChainID:        big.NewInt(*config.ChainID),
		ReceiptTimeout: *config.ReceiptTimeout,
	}
	if *config.EntryPointAddress != "" {
		dispatcherConfig.EntryPoint = common.HexToAddress(*config.EntryPointAddress)
	}
	if *config.DelegationAddress != "" {
		dispatcherConfig.Delegation = common.HexToAddress(*config.DelegationAddress)
	}

	dispatcher, err := service.NewDispatcherService(client, bundler, signerService, dispatcherConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher service: %w", err)
	}

	submissionRepo := repository.NewSubmissionRepository(database)
	cacheRepo := repository.NewSubmissionCacheRepository(rdb, submissionQueueName)
	submissionService := service.NewSubmissionService(submissionRepo, cacheRepo)

	worker := service.NewDispatchWorker(ctx, dispatcher, submissionService, cacheRepo)

	return &Application{
		config:            config,
		database:          database,
		redis:             rdb,
		BlockchainService: blockchainService,
		SignerService:     signerService,
		SubmissionService: submissionService,
		Dispatcher:        dispatcher,
		Worker:            worker,
	}, nil
}

func (app *Application) Shutdown(ctx context.Context) {
	logger := zerolog.Ctx(ctx).With().Str("function", "Shutdown").Logger()

	// Close database connection
	if app.database != nil {
		db, err := app.database.DB()
		if err != nil {
			logger.Error().Err(err).Msg("Failed to get underlying database connection")
		} else {
			if err := db.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close database connection")
			} else {
				logger.Info().Msg("Database connection closed")
			}
		}
	}

	// Close Redis connection
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close redis connection")
		} else {
			logger.Info().Msg("Redis connection closed")
		}
	}

	// Close chain clients
	if app.BlockchainService != nil {
		app.BlockchainService.Close()
	}
}

func (app *Application) RunHTTPServer(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := zerolog.Ctx(ctx).With().Str("function", "RunHTTPServer").Logger()

	// Set to release mode to disable Gin logger
	gin.SetMode(gin.ReleaseMode)

	ginRouter := gin.Default()

	// Register routes
	app.registerRoutes(ctx, ginRouter)

	// Build HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", *app.config.Port),
		Handler: ginRouter,
	}

	// Start server in goroutine
	go func() {
		zerolog.Ctx(ctx).Info().Msgf("HTTP server is on http://localhost:%s/api/v1/health", *app.config.Port)
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			zerolog.Ctx(ctx).Panic().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	logger.Info().Msg("Gracefully shutting down HTTP server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to shutdown HTTP server gracefully")
	} else {
		logger.Info().Msg("HTTP server shutdown complete")
	}
}

func (app *Application) RunDispatchWorker(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := zerolog.Ctx(ctx).With().Str("function", "RunDispatchWorker").Logger()
	logger.Info().Msg("Starting dispatch worker")

	app.Worker.Start()

	<-ctx.Done()
	logger.Info().Msg("Stopping dispatch worker...")

	app.Worker.Stop()

	logger.Info().Msg("Dispatch worker stopped")
}

func (app *Application) registerRoutes(ctx context.Context, router *gin.Engine) {

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			if value, ok := field.Interface().(decimal.Decimal); ok {
				return value.String()
			}
			return nil
		}, decimal.Decimal{})
	}

	// Configure CORS
	config := cors.DefaultConfig()
	config.AllowOrigins = *app.config.AllowOrigins
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", "X-API-Secret"}
	config.AllowCredentials = true

	router.Use(cors.New(config))

	handler.SetMiddlewares(ctx, router)

	entryPoint := erc4337.EntryPointV07
	if *app.config.EntryPointAddress != "" {
		entryPoint = common.HexToAddress(*app.config.EntryPointAddress)
	}

	transferHandler := handler.NewTransferHandler(app.SubmissionService, app.BlockchainService, handler.TransferHandlerConfig{
		ChainID:        *app.config.ChainID,
		TokenAddress:   common.HexToAddress(*app.config.TokenAddress),
		AccountAddress: app.SignerService.Address(),
		EntryPoint:     entryPoint,
	})
	balanceHandler := handler.NewBalanceHandler(app.BlockchainService, *app.config.ChainID, common.HexToAddress(*app.config.TokenAddress), app.SignerService.Address())

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handler.HandleHealthCheck)

		v1.GET("/balances", balanceHandler.GetBalances)

		// Transfer submission endpoints
		v1.POST("/transfers", handler.SharedSecretMiddleware(*app.config.APISecret), transferHandler.CreateTransfers)
		v1.GET("/transfers/:id", transferHandler.GetTransferStatus)
	}
}
