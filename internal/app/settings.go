package app

import (
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/citadelhq/citadel/internal/domain"
)

const settingsCacheTTL = 30 * time.Second

// ConfigManager caches sys_config rows and converts values on access.
type ConfigManager struct {
	db       *gorm.DB
	mu       sync.RWMutex
	cache    map[string]string
	loadedAt time.Time
}

func NewConfigManager(db *gorm.DB) *ConfigManager {
	return &ConfigManager{db: db, cache: map[string]string{}}
}

func (m *ConfigManager) load() map[string]string {
	m.mu.RLock()
	if time.Since(m.loadedAt) < settingsCacheTTL {
		defer m.mu.RUnlock()
		return m.cache
	}
	m.mu.RUnlock()

	var rows []domain.SysConfig
	if err := m.db.Find(&rows).Error; err != nil {
		zap.L().Error("failed to load settings", zap.Error(err))
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.cache
	}

	next := make(map[string]string, len(rows))
	for _, row := range rows {
		next[row.Type+"."+row.Name] = row.Value
	}

	m.mu.Lock()
	m.cache = next
	m.loadedAt = time.Now()
	m.mu.Unlock()
	return next
}

func (m *ConfigManager) GetString(category, name string) string {
	return m.load()[category+"."+name]
}

func (m *ConfigManager) GetInt64(category, name string) int64 {
	return cast.ToInt64(m.GetString(category, name))
}

func (m *ConfigManager) GetInt(category, name string) int {
	return cast.ToInt(m.GetString(category, name))
}

func (m *ConfigManager) GetBool(category, name string) bool {
	v := m.GetString(category, name)
	return v == "enabled" || cast.ToBool(v)
}

// SetValue updates or creates a setting and invalidates the cache.
func (m *ConfigManager) SetValue(category, name, value string) error {
	var row domain.SysConfig
	err := m.db.Where("type = ? and name = ?", category, name).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		err = m.db.Create(&domain.SysConfig{
			Type: category, Name: name, Value: value,
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}).Error
	} else if err == nil {
		err = m.db.Model(&domain.SysConfig{}).Where("id = ?", row.ID).
			Updates(map[string]interface{}{"value": value, "updated_at": time.Now()}).Error
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.loadedAt = time.Time{}
	m.mu.Unlock()
	return nil
}

// ReportSettings is the typed view consumed by the report jobs.
type ReportSettings struct {
	OprlogHistoryDays   int  `mapstructure:"system.OprlogHistoryDays"`
	SaleHistoryDays     int  `mapstructure:"report.SaleHistoryDays"`
	LowStockMailEnabled bool `mapstructure:"report.LowStockMailEnabled"`
}

// ReportSettings decodes the current settings into the typed report view.
func (m *ConfigManager) ReportSettings() ReportSettings {
	raw := map[string]interface{}{}
	for k, v := range m.load() {
		if k == "report.LowStockMailEnabled" {
			raw[k] = v == "enabled" || cast.ToBool(v)
			continue
		}
		raw[k] = v
	}

	out := ReportSettings{OprlogHistoryDays: 365}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
	})
	if err == nil {
		_ = decoder.Decode(raw)
	}
	if out.OprlogHistoryDays <= 0 {
		out.OprlogHistoryDays = 365
	}
	return out
}
