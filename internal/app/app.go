package app

import (
	"os"
	"runtime/debug"
	"time"
	_ "time/tzdata"

	"github.com/asaskevich/EventBus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"

	"github.com/citadelhq/citadel/config"
	"github.com/citadelhq/citadel/internal/domain"
	"github.com/citadelhq/citadel/internal/ratelimit"
	"github.com/citadelhq/citadel/pkg/metrics"
)

const auditTopic = "citadel:oprlog"

type Application struct {
	appConfig     *config.AppConfig
	gormDB        *gorm.DB
	sched         *cron.Cron
	configManager *ConfigManager
	bus           EventBus.Bus
	limiter       ratelimit.Store
}

// Ensure Application implements all interfaces
var (
	_ DBProvider       = (*Application)(nil)
	_ ConfigProvider   = (*Application)(nil)
	_ SettingsProvider = (*Application)(nil)
	_ LimiterProvider  = (*Application)(nil)
	_ AuditRecorder    = (*Application)(nil)
	_ AppContext       = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

// OverrideDB replaces the application's database handle (used in tests).
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
}

// OverrideLimiter replaces the rate limit store (used in tests).
func (a *Application) OverrideLimiter(s ratelimit.Store) {
	a.limiter = s
}

func (a *Application) Init(cfg *config.AppConfig) {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	// Initialize zap logger
	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.OutputPaths = []string{"stdout"}
	if cfg.Logger.FileEnable {
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, cfg.Logger.Filename)
	}

	// Build logger with file rotation if enabled
	var logger *zap.Logger
	if cfg.Logger.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Logger.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	} else {
		logger, err = zapConfig.Build(zap.AddCaller(), zap.AddCallerSkip(1))
		if err != nil {
			panic(err)
		}
	}

	zap.ReplaceGlobals(logger)

	// Initialize metrics with workdir convention
	err = metrics.InitMetrics(cfg.System.Workdir)
	if err != nil {
		zap.S().Warn("Failed to initialize metrics:", err)
	}

	// Initialize database connection
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	a.gormDB = getDatabase(cfg.Database)
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	// Ensure database schema is migrated before loading configs
	if err := a.MigrateDB(false); err != nil {
		zap.S().Errorf("database migration failed: %v", err)
	}

	// wait for database initialization to complete
	go func() {
		time.Sleep(3 * time.Second)
		a.checkSetupState()
		a.checkSettings()
		if cfg.System.Debug {
			a.checkDemoProducts(0)
		}
	}()

	a.configManager = NewConfigManager(a.gormDB)

	a.limiter = newLimiterStore(cfg.RateLimit)

	a.bus = EventBus.New()
	a.initAuditSink()

	a.initJob()
}

// newLimiterStore builds the configured rate limit backend. Counters are per
// process on the memory store; the redis store shares them across instances.
func newLimiterStore(cfg config.RateLimitConfig) ratelimit.Store {
	if cfg.Backend == "redis" && cfg.RedisAddr != "" {
		zap.L().Info("rate limit store: redis", zap.String("addr", cfg.RedisAddr))
		return ratelimit.NewRedisStore(cfg.RedisAddr)
	}
	return ratelimit.NewMemoryStore()
}

func (a *Application) MigrateDB(track bool) (err error) {
	defer func() {
		if err1 := recover(); err1 != nil {
			if os.Getenv("GO_DEGUB_TRACE") != "" {
				debug.PrintStack()
			}
			err2, ok := err1.(error)
			if ok {
				err = err2
				zap.S().Error(err2.Error())
			}
		}
	}()
	if track {
		if err := a.gormDB.Debug().Migrator().AutoMigrate(domain.Tables...); err != nil {
			zap.S().Error(err)
		}
	} else {
		if err := a.gormDB.Migrator().AutoMigrate(domain.Tables...); err != nil {
			zap.S().Error(err)
		}
	}
	return nil
}

func (a *Application) DropAll() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
}

func (a *Application) InitDb() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
	err := a.gormDB.Migrator().AutoMigrate(domain.Tables...)
	if err != nil {
		zap.S().Error(err)
	}
}

// ConfigMgr returns the configuration manager
func (a *Application) ConfigMgr() *ConfigManager {
	return a.configManager
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

// Limiter returns the rate limit store used by the edge filter
func (a *Application) Limiter() ratelimit.Store {
	return a.limiter
}

// GetSettingsStringValue retrieves a string configuration value
func (a *Application) GetSettingsStringValue(category, key string) string {
	return a.configManager.GetString(category, key)
}

// GetSettingsInt64Value retrieves an int64 configuration value
func (a *Application) GetSettingsInt64Value(category, key string) int64 {
	return a.configManager.GetInt64(category, key)
}

// GetSettingsBoolValue retrieves a boolean configuration value
func (a *Application) GetSettingsBoolValue(category, key string) bool {
	return a.configManager.GetBool(category, key)
}

// Audit publishes one operation log event; the sink persists it off the
// request path.
func (a *Application) Audit(oprName, oprIP, action, desc string) {
	if a.bus == nil {
		return
	}
	a.bus.Publish(auditTopic, domain.SysOprLog{
		OprName:   oprName,
		OprIp:     oprIP,
		OptAction: action,
		OptDesc:   desc,
		OptTime:   time.Now(),
	})
}

// initAuditSink subscribes the async writer for operation log events.
func (a *Application) initAuditSink() {
	err := a.bus.SubscribeAsync(auditTopic, func(log domain.SysOprLog) {
		if err := a.gormDB.Create(&log).Error; err != nil {
			zap.L().Error("failed to write operation log", zap.Error(err))
		}
	}, false)
	if err != nil {
		zap.S().Errorf("audit sink subscribe error %s", err.Error())
	}
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		a.sched.Stop()
	}

	if a.bus != nil {
		a.bus.WaitAsync()
	}

	if closer, ok := a.limiter.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	_ = metrics.Close()
	_ = zap.L().Sync()
}
