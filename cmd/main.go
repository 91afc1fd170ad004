package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/mrememisaac/communitywebsite/docs"
	"github.com/mrememisaac/communitywebsite/internal/cache"
	"github.com/mrememisaac/communitywebsite/internal/handlers"
	"github.com/mrememisaac/communitywebsite/internal/models"
	"github.com/mrememisaac/communitywebsite/internal/obs"
	"github.com/mrememisaac/communitywebsite/internal/repositories"
	"github.com/mrememisaac/communitywebsite/internal/services"
	"github.com/mrememisaac/communitywebsite/libs/auth/middleware"
	"github.com/mrememisaac/communitywebsite/libs/auth/service"
	"github.com/mrememisaac/communitywebsite/libs/config"
	"github.com/mrememisaac/communitywebsite/libs/logger"
	loggerMiddleware "github.com/mrememisaac/communitywebsite/libs/logger/middleware"
	sharedMiddleware "github.com/mrememisaac/communitywebsite/libs/middlewares"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// credentialRequestsPerMinute is the per-IP budget for register and login
const credentialRequestsPerMinute = 10

// @title Community Website Identity API
// @version 1.0
// @description Registration, login and role administration for the community website

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v\n", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v\n", err)
	}
	defer logger.Sync()

	logger.Logger.Info("Starting community identity service")

	// Connect to database
	db, err := connectDB(cfg.DSN())
	if err != nil {
		logger.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	if err := runMigrations(db); err != nil {
		logger.Logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Role cache backend
	roleCache, closeCache, err := newRoleCache(cfg)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize role cache", zap.Error(err))
	}
	defer closeCache()

	// Initialize credential primitives
	tokenIssuer, err := service.NewTokenIssuer(service.TokenIssuerConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		Expiry:   cfg.JWT.Expiry,
	}, logger.Logger)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize token issuer", zap.Error(err))
	}
	passwordHasher := service.NewPasswordHasherWithIterations(cfg.Password.Iterations)

	metrics := obs.NewMetrics()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db, logger.Logger)
	roleRepo := repositories.NewRoleRepository(db, logger.Logger)

	// Initialize services
	roleService := services.NewRoleService(roleRepo, roleCache, cache.Expiration{
		Absolute: cfg.RoleCache.AbsoluteTTL,
		Sliding:  cfg.RoleCache.SlidingTTL,
	}, metrics, logger.Logger)
	adminGuard := services.NewAdminGuard(userRepo, logger.Logger)
	assignmentService := services.NewRoleAssignmentService(userRepo, roleRepo, roleService, adminGuard, logger.Logger)
	userAdminService := services.NewUserAdminService(userRepo, adminGuard, logger.Logger)
	authService := services.NewAuthService(userRepo, passwordHasher, tokenIssuer, assignmentService, metrics, logger.Logger)

	// Grant Admin to the configured account when no administrator exists yet
	if err := services.BootstrapAdmin(context.Background(), userRepo, assignmentService, cfg.AdminBootstrapEmail, logger.Logger); err != nil {
		logger.Logger.Fatal("Failed to bootstrap administrator", zap.Error(err))
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, userAdminService, credentialRequestsPerMinute, logger.Logger)
	adminHandler := handlers.NewAdminHandler(roleService, assignmentService, userAdminService, logger.Logger)

	// Initialize auth middleware
	authMiddleware := middleware.AuthMiddleware(authService)
	adminMiddleware := middleware.RoleMiddleware(assignmentService, models.RoleAdmin, logger.Logger)
	apiKeyMiddleware := middleware.APIKeyMiddleware(cfg.APIKey)

	// Setup router
	r := chi.NewRouter()

	// Apply middleware
	r.Use(sharedMiddleware.RequestIDMiddleware)
	r.Use(loggerMiddleware.LoggerMiddleware(logger.Logger))
	r.Use(sharedMiddleware.RecoveryMiddleware(logger.Logger))
	r.Use(metrics.Instrument)
	r.Use(sharedMiddleware.CORSMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute))
	r.Use(sharedMiddleware.RequestSizeLimitMiddleware(sharedMiddleware.DefaultMaxRequestSize))

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL(fmt.Sprintf("http://localhost:%d/swagger/doc.json", cfg.Server.Port)),
	))

	// Metrics behind the API key
	r.With(apiKeyMiddleware).Method(http.MethodGet, "/metrics", metrics.Handler())

	// Scope router to /api/v1
	r.Route("/api/v1", func(r chi.Router) {
		// Register auth routes
		authHandler.RegisterRoutes(r, authMiddleware)
		// Register admin routes behind bearer and Admin role checks
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(adminMiddleware)
			adminHandler.RegisterRoutes(r)
		})
	})

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Logger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Logger.Info("Server exited")
}

// connectDB connects to the database
func connectDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// runMigrations runs database migrations
func runMigrations(db *sql.DB) error {
	driver, err := mysql.WithInstance(db, &mysql.Config{
		MigrationsTable: "identity_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Get the working directory or use migrations folder relative to the binary
	migrationPath := "file://migrations"
	if _, err := os.Stat("migrations"); os.IsNotExist(err) {
		// Try parent directory if running from cmd
		if _, err := os.Stat("../migrations"); err == nil {
			migrationPath = "file://../migrations"
		}
	}

	m, err := migrate.NewWithDatabaseInstance(
		migrationPath,
		"mysql",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// newRoleCache builds the configured role cache store and its release function
func newRoleCache(cfg *config.Config) (cache.Store, func(), error) {
	switch cfg.RoleCache.Backend {
	case config.CacheBackendRedis:
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rc.Ping(ctx).Err(); err != nil {
			rc.Close()
			return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
		}

		logger.Logger.Info("Role cache backed by redis", zap.String("addr", cfg.Redis.Addr()))
		return cache.NewRedisStore(rc, "community"), func() { rc.Close() }, nil
	default:
		store := cache.NewMemoryStore(time.Minute)
		return store, func() { store.Close() }, nil
	}
}
