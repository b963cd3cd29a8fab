package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"alert-core/internal/core/evaluator"
	"alert-core/internal/core/grouper"
	"alert-core/internal/core/notify"
	"alert-core/internal/core/scheduler"
	"alert-core/internal/kv"
	"alert-core/internal/repository"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

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

	groupStore, lockManager := newKVBackends(ctx)

	ruleRepo := repository.NewRuleRepository(db)
	dataSourceRepo := repository.NewDataSourceRepository(db)
	eventRepo := repository.NewEventRepository(db)
	silenceRepo := repository.NewSilenceRepository(db)
	channelRepo := repository.NewChannelRepository(db)
	recordRepo := repository.NewNotificationRecordRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	eval := evaluator.New(eventRepo)
	group := grouper.New(groupStore)
	dispatcher := notify.New(channelRepo, recordRepo, settingsRepo)

	cfg := scheduler.DefaultConfig
	if d := viper.GetDuration("scheduler.tick_interval"); d > 0 {
		cfg.TickInterval = d
	}
	if d := viper.GetDuration("scheduler.grouper_tick"); d > 0 {
		cfg.GrouperTick = d
	}
	if d := viper.GetDuration("scheduler.group_wait"); d > 0 {
		cfg.GroupConfig.GroupWait = d
	}
	if d := viper.GetDuration("scheduler.group_interval"); d > 0 {
		cfg.GroupConfig.GroupInterval = d
	}
	if d := viper.GetDuration("scheduler.repeat_interval"); d > 0 {
		cfg.GroupConfig.RepeatInterval = d
	}

	sched := scheduler.New(ruleRepo, dataSourceRepo, silenceRepo, eval, group, dispatcher, lockManager, cfg)

	log.Printf("Starting alert worker: tick=%v grouper_tick=%v group_wait=%v repeat_interval=%v",
		cfg.TickInterval, cfg.GrouperTick, cfg.GroupConfig.GroupWait, cfg.GroupConfig.RepeatInterval)

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	log.Println("Alert worker started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()
	<-done
	log.Println("Worker stopped")
}

// newKVBackends wires the shared group store and lock manager over Redis
// when configured, falling back to the in-memory single-node
// implementation per spec.md §4.4.3 otherwise.
func newKVBackends(ctx context.Context) (kv.GroupStore, kv.LockManager) {
	addr := viper.GetString("redis.addr")
	if addr == "" {
		log.Println("redis.addr not configured, using in-memory group store and lock manager")
		return kv.NewMemoryStore(), kv.NewMemoryLockManager()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("redis ping failed (%v), falling back to in-memory group store and lock manager", err)
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

func runMigrations(db *repository.Database) error {
	migrations := []string{
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
