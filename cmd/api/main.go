package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"alert-core/internal/handlers"
	"alert-core/internal/kv"
	"alert-core/internal/middleware"
	"alert-core/internal/repository"
	"alert-core/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/crypto/bcrypt"
)

// @title Alert Core API
// @version 1.0
// @description Thin collaborator surface over the alert-core engine: login, rule/silence/channel/data-source CRUD, expression dry-run, group stats.
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initConfig()

	db, err := repository.NewDatabase()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := runMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	seedDefaultUser(db)

	userRepo := repository.NewUserRepository(db)
	ruleRepo := repository.NewRuleRepository(db)
	dataSourceRepo := repository.NewDataSourceRepository(db)
	silenceRepo := repository.NewSilenceRepository(db)
	channelRepo := repository.NewChannelRepository(db)

	groupStore, _ := newKVBackends(ctx)

	userService := services.NewUserService(userRepo)

	userHandler := handlers.NewUserHandler(userService)
	ruleHandler := handlers.NewRuleHandler(ruleRepo, dataSourceRepo)
	dataSourceHandler := handlers.NewDataSourceHandler(dataSourceRepo)
	silenceHandler := handlers.NewSilenceHandler(silenceRepo)
	channelHandler := handlers.NewChannelHandler(channelRepo)
	statsHandler := handlers.NewStatsHandler(groupStore)

	router := initRouter(userHandler, ruleHandler, dataSourceHandler, silenceHandler, channelHandler, statsHandler)

	addr := fmt.Sprintf("%s:%d", viper.GetString("app.host"), viper.GetInt("app.port"))
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Printf("Alert Core API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down API server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	cancel()
}

// newKVBackends mirrors cmd/worker's backend selection so the /stats
// endpoint reads the same live group state the scheduler writes to,
// whichever replica it is running on.
func newKVBackends(ctx context.Context) (kv.GroupStore, kv.LockManager) {
	addr := viper.GetString("redis.addr")
	if addr == "" {
		return kv.NewMemoryStore(), kv.NewMemoryLockManager()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("redis ping failed (%v), falling back to in-memory group store", err)
		return kv.NewMemoryStore(), kv.NewMemoryLockManager()
	}
	return kv.NewRedisStore(client), kv.NewRedisLockManager(client)
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/alert-core")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.ReadInConfig()
}

// runMigrations creates the users table (the login surface's own
// storage) plus the core_* tables the engine and this API's CRUD
// handlers share. cmd/worker runs the identical core_* statements, so
// whichever process starts first wins; both are idempotent.
func runMigrations(db *repository.Database) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			username VARCHAR(64) UNIQUE NOT NULL,
			password VARCHAR(256) NOT NULL,
			email VARCHAR(128),
			phone VARCHAR(32),
			role VARCHAR(32) DEFAULT 'user',
			status INT DEFAULT 1,
			last_login_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS core_rules (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			project_id UUID,
			name VARCHAR(128) NOT NULL,
			expression TEXT NOT NULL,
			eval_interval_seconds INT DEFAULT 15,
			for_duration_seconds INT DEFAULT 60,
			repeat_interval_seconds INT DEFAULT 3600,
			severity VARCHAR(32) NOT NULL,
			labels JSONB,
			annotations JSONB,
			route_config JSONB,
			data_source_id UUID NOT NULL,
			enabled BOOLEAN DEFAULT true,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS core_data_sources (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			name VARCHAR(128) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			base_url VARCHAR(512) NOT NULL,
			auth_config JSONB,
			http_config JSONB,
			extra_labels JSONB,
			enabled BOOLEAN DEFAULT true,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS core_alert_events (
			fingerprint VARCHAR(32) PRIMARY KEY,
			tenant_id UUID NOT NULL,
			project_id UUID,
			rule_id UUID NOT NULL,
			rule_name VARCHAR(128),
			status VARCHAR(16) NOT NULL,
			severity VARCHAR(32),
			expr TEXT,
			value DOUBLE PRECISION,
			labels JSONB,
			annotations JSONB,
			started_at TIMESTAMP NOT NULL,
			last_eval_at TIMESTAMP NOT NULL,
			last_sent_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS core_alert_event_history (
			id UUID PRIMARY KEY,
			fingerprint VARCHAR(32),
			tenant_id UUID NOT NULL,
			rule_id UUID NOT NULL,
			rule_name VARCHAR(128),
			severity VARCHAR(32),
			expr TEXT,
			value DOUBLE PRECISION,
			labels JSONB,
			annotations JSONB,
			started_at TIMESTAMP NOT NULL,
			resolved_at TIMESTAMP NOT NULL,
			duration_seconds DOUBLE PRECISION
		)`,
		`CREATE INDEX IF NOT EXISTS idx_core_alert_event_history_fingerprint ON core_alert_event_history(fingerprint)`,
		`CREATE TABLE IF NOT EXISTS core_silence_rules (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			project_id UUID,
			name VARCHAR(128),
			matchers JSONB,
			starts_at TIMESTAMP NOT NULL,
			ends_at TIMESTAMP NOT NULL,
			is_enabled BOOLEAN DEFAULT true,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS core_notification_channels (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			project_id UUID,
			name VARCHAR(128) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			config JSONB,
			filter_config JSONB,
			enabled BOOLEAN DEFAULT true,
			is_default BOOLEAN DEFAULT false,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS core_notification_records (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			channel_id UUID NOT NULL,
			channel_name VARCHAR(128),
			channel_kind VARCHAR(32),
			alert_fingerprint VARCHAR(32),
			rule_name VARCHAR(128),
			severity VARCHAR(32),
			status VARCHAR(16),
			error_message TEXT,
			content TEXT,
			sent_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS core_system_settings (
			key VARCHAR(64) PRIMARY KEY,
			value JSONB NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT now()
		)`,
	}

	ctx := context.Background()
	for _, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return err
		}
	}
	return nil
}

func seedDefaultUser(db *repository.Database) {
	ctx := context.Background()
	var n int
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil || n > 0 {
		return
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("seed default user: %v", err)
		return
	}
	now := time.Now()
	_, err = db.Pool.Exec(ctx, `INSERT INTO users
		(id, username, password, email, role, status, created_at, updated_at)
		VALUES (gen_random_uuid(), 'admin', $1, 'admin@example.com', 'admin', 1, $2, $2)`,
		string(hashed), now)
	if err != nil {
		log.Printf("seed default user: %v", err)
	}
}

func initRouter(
	userHandler *handlers.UserHandler,
	ruleHandler *handlers.RuleHandler,
	dataSourceHandler *handlers.DataSourceHandler,
	silenceHandler *handlers.SilenceHandler,
	channelHandler *handlers.ChannelHandler,
	statsHandler *handlers.StatsHandler,
) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	public := router.Group("/api/v1")
	{
		public.POST("/auth/login", userHandler.Login)
	}

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(viper.GetString("jwt.secret")))
	{
		api.GET("/profile", userHandler.GetProfile)

		rules := api.Group("/rules")
		{
			rules.POST("", middleware.PermissionMiddleware("rules:write"), ruleHandler.Create)
			rules.GET("", middleware.PermissionMiddleware("rules:read"), ruleHandler.List)
			rules.GET("/:id", middleware.PermissionMiddleware("rules:read"), ruleHandler.GetByID)
			rules.PUT("/:id", middleware.PermissionMiddleware("rules:write"), ruleHandler.Update)
			rules.DELETE("/:id", middleware.PermissionMiddleware("rules:delete"), ruleHandler.Delete)
			rules.POST("/test-expression", middleware.PermissionMiddleware("rules:read"), ruleHandler.TestExpression)
		}

		dataSources := api.Group("/data-sources")
		{
			dataSources.POST("", middleware.PermissionMiddleware("data-sources:write"), dataSourceHandler.Create)
			dataSources.GET("", middleware.PermissionMiddleware("data-sources:read"), dataSourceHandler.List)
			dataSources.GET("/:id", middleware.PermissionMiddleware("data-sources:read"), dataSourceHandler.GetByID)
			dataSources.PUT("/:id", middleware.PermissionMiddleware("data-sources:write"), dataSourceHandler.Update)
			dataSources.DELETE("/:id", middleware.PermissionMiddleware("data-sources:delete"), dataSourceHandler.Delete)
		}

		silences := api.Group("/silences")
		{
			silences.POST("", middleware.PermissionMiddleware("silences:write"), silenceHandler.Create)
			silences.GET("", middleware.PermissionMiddleware("silences:read"), silenceHandler.List)
			silences.PUT("/:id", middleware.PermissionMiddleware("silences:write"), silenceHandler.Update)
			silences.DELETE("/:id", middleware.PermissionMiddleware("silences:delete"), silenceHandler.Delete)
		}

		channels := api.Group("/channels")
		{
			channels.POST("", middleware.PermissionMiddleware("channels:write"), channelHandler.Create)
			channels.GET("", middleware.PermissionMiddleware("channels:read"), channelHandler.List)
			channels.GET("/:id", middleware.PermissionMiddleware("channels:read"), channelHandler.GetByID)
			channels.PUT("/:id", middleware.PermissionMiddleware("channels:write"), channelHandler.Update)
			channels.DELETE("/:id", middleware.PermissionMiddleware("channels:delete"), channelHandler.Delete)
		}

		api.GET("/stats", middleware.PermissionMiddleware("statistics:read"), statsHandler.Get)
	}

	return router
}
