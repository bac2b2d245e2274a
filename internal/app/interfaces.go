package app

import (
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/citadelhq/citadel/config"
	"github.com/citadelhq/citadel/internal/ratelimit"
)

// DBProvider provides database access
type DBProvider interface {
	DB() *gorm.DB
}

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// SettingsProvider provides system settings access
type SettingsProvider interface {
	GetSettingsStringValue(category, key string) string
	GetSettingsInt64Value(category, key string) int64
	GetSettingsBoolValue(category, key string) bool
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// LimiterProvider provides the rate limit store consumed by the edge filter
type LimiterProvider interface {
	Limiter() ratelimit.Store
}

// AuditRecorder records operator actions in the operation log
type AuditRecorder interface {
	Audit(oprName, oprIP, action, desc string)
}

// AppContext combines all provider interfaces for full application context
// Services should depend on specific providers or this combined interface
type AppContext interface {
	DBProvider
	ConfigProvider
	SettingsProvider
	SchedulerProvider
	LimiterProvider
	AuditRecorder

	// Application lifecycle methods
	MigrateDB(track bool) error
	InitDb()
	DropAll()
}
