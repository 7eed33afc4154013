package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/ghclone/ghclone/internal/config"
	"github.com/ghclone/ghclone/internal/handlers"
	"github.com/ghclone/ghclone/internal/middleware"
	"github.com/ghclone/ghclone/internal/repository"
	"github.com/ghclone/ghclone/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	if config.LoadDotEnv() {
		logger.Debug("Loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("level", cfg.Log.Level).Warn("Unknown LOG_LEVEL, using info")
	}

	ctx := context.Background()
	var closers []func()

	var dynamoClient *dynamodb.Client
	if cfg.PendingStore == config.PendingStoreDynamoDB || cfg.AccountStore == config.AccountStoreDynamoDB {
		dynamoClient, err = initDynamoDB(ctx, cfg, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize DynamoDB")
		}
	}

	// Pending codes and revoked tokens share a backend.
	var (
		pendingStore repository.PendingStore
		denylist     repository.TokenDenylist
	)
	switch cfg.PendingStore {
	case config.PendingStoreRedis:
		redisClient, err := initRedis(ctx, cfg, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize Redis")
		}
		closers = append(closers, func() { redisClient.Close() })
		pendingStore = repository.NewRedisPendingStore(redisClient, cfg.OTP.Expiry, logger)
		denylist = repository.NewRedisTokenDenylist(redisClient, logger)
	case config.PendingStoreDynamoDB:
		pendingStore = repository.NewDynamoPendingStore(dynamoClient, cfg.DynamoDB.TableName, cfg.OTP.Expiry, logger)
		denylist = repository.NewDynamoTokenDenylist(dynamoClient, cfg.DynamoDB.TableName, logger)
	}

	var accountRepo repository.AccountRepository
	switch cfg.AccountStore {
	case config.AccountStoreMongo:
		mongoClient, repo, err := initMongo(ctx, cfg, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize MongoDB")
		}
		closers = append(closers, func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			mongoClient.Disconnect(disconnectCtx)
		})
		accountRepo = repo
	case config.AccountStoreDynamoDB:
		accountRepo = repository.NewDynamoAccountRepository(dynamoClient, cfg.DynamoDB.TableName, logger)
	case config.AccountStoreSQLite:
		repo, err := repository.OpenSQLiteAccountRepository(ctx, cfg.SQLite.Path, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open SQLite database")
		}
		closers = append(closers, func() { repo.Close() })
		accountRepo = repo
		logger.WithField("path", cfg.SQLite.Path).Info("SQLite account store ready")
	}

	var notifier service.Notifier
	switch cfg.MailDriver {
	case config.MailDriverSMTP:
		notifier = service.NewSMTPNotifier(&cfg.SMTP, logger)
	case config.MailDriverLog:
		logger.Warn("MAIL_DRIVER=log: verification codes are written to the log")
		notifier = service.NewLogNotifier(logger)
	}

	jwtService, err := service.NewJWTService(&cfg.JWT, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize JWT service")
	}

	authService := service.NewAuthService(
		pendingStore,
		accountRepo,
		notifier,
		jwtService,
		denylist,
		cfg.StoreTimeout,
		logger,
	)

	authHandlers := handlers.NewAuthHandlers(authService, logger)
	authMiddleware := middleware.NewAuthMiddleware(authService, logger)
	router := handlers.NewRouter(authHandlers, authMiddleware, cfg.Server.AllowedOrigins, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":          cfg.Server.Port,
			"pending_store": cfg.PendingStore,
			"account_store": cfg.AccountStore,
			"mail_driver":   cfg.MailDriver,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}

	logger.Info("Server exited")
}

func initRedis(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*redis.Client, error) {
	var opts *redis.Options
	if cfg.Redis.URL != "" {
		parsed, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Redis.Endpoint,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// Not fatal: requests fail with 503 until Redis is reachable.
		logger.WithError(err).Warn("Redis ping failed")
	} else {
		logger.WithField("addr", opts.Addr).Info("Redis client initialized")
	}
	return client, nil
}

func initMongo(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*mongo.Client, *repository.MongoAccountRepository, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().
		ApplyURI(cfg.Mongo.URL).
		SetTimeout(cfg.StoreTimeout))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		logger.WithError(err).Warn("MongoDB ping failed")
	}

	collection := client.Database(cfg.Mongo.Database).Collection(repository.AccountsCollection)
	repo := repository.NewMongoAccountRepository(collection, logger)
	if err := repo.EnsureIndexes(connectCtx); err != nil {
		logger.WithError(err).Warn("Could not create account indexes")
	} else {
		logger.WithField("database", cfg.Mongo.Database).Info("MongoDB account store ready")
	}
	return client, repo, nil
}

func initDynamoDB(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.DynamoDB.Region),
	}
	if cfg.DynamoDB.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.DynamoDB.AccessKeyID, cfg.DynamoDB.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*dynamodb.Options)
	if cfg.DynamoDB.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.DynamoDB.Endpoint)
		})
	}
	client := dynamodb.NewFromConfig(awsCfg, clientOpts...)

	bootstrapCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := repository.BootstrapTable(bootstrapCtx, client, cfg.DynamoDB.TableName, logger); err != nil {
		logger.WithError(err).Warn("Could not bootstrap DynamoDB table")
	}

	logger.WithField("table", cfg.DynamoDB.TableName).Info("DynamoDB client initialized")
	return client, nil
}
