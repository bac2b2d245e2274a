package app

import (
	"time"

	"go.uber.org/zap"

	"github.com/citadelhq/citadel/internal/domain"
)

// checkSetupState warns when no admin account exists yet. The first admin is
// created through the setup endpoint, never seeded with a default password.
func (a *Application) checkSetupState() {
	var adminCount int64
	if err := a.gormDB.Model(&domain.SysUser{}).
		Where("role = ?", domain.RoleAdmin).
		Count(&adminCount).Error; err != nil {
		zap.L().Error("failed to query admin accounts", zap.Error(err))
		return
	}

	if adminCount == 0 {
		zap.L().Warn("no admin account exists, first-run setup required",
			zap.String("endpoint", "POST /api/setup"))
	}
}

type settingDef struct {
	Type    string
	Name    string
	Default string
	Remark  string
}

var defaultSettings = []settingDef{
	{"system", "OprlogHistoryDays", "365", "Retention of operation logs in days"},
	{"report", "LowStockMailEnabled", "disabled", "Send a daily low stock report mail"},
	{"report", "SaleHistoryDays", "0", "Retention of sale records in days, 0 keeps forever"},
}

// checkSettings initializes missing configuration entries
func (a *Application) checkSettings() {
	for sortid, def := range defaultSettings {
		var count int64
		a.gormDB.Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", def.Type, def.Name).
			Count(&count)

		if count == 0 {
			a.gormDB.Create(&domain.SysConfig{
				Sort:      sortid,
				Type:      def.Type,
				Name:      def.Name,
				Value:     def.Default,
				Remark:    def.Remark,
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			})
			zap.L().Info("initialized config",
				zap.String("key", def.Type+"."+def.Name),
				zap.String("default", def.Default))
		}
	}
}

// checkDemoProducts seeds a handful of catalog items for development setups
func (a *Application) checkDemoProducts(creator int64) {
	defaultProducts := []domain.Product{
		{Name: "demo-widget-basic", Description: "Entry level demo widget for development", Category: "widgets",
			Price: 9.99, Stock: 100, Sku: "WID-BASIC-001", Status: domain.ProductActive, Images: []string{"https://placehold.co/600x400"}},
		{Name: "demo-widget-pro", Description: "Professional demo widget for development", Category: "widgets",
			Price: 24.5, Stock: 50, Sku: "WID-PRO-001", Status: domain.ProductActive, Images: []string{"https://placehold.co/600x400"}},
		{Name: "demo-addon-support", Description: "Support addon used by the demo dataset", Category: "addons",
			Price: 49.95, Stock: 5, Sku: "ADD-SUP-001", Status: domain.ProductActive, Images: []string{"https://placehold.co/600x400"}},
	}

	for _, p := range defaultProducts {
		var count int64
		a.gormDB.Model(&domain.Product{}).Where("sku = ?", p.Sku).Count(&count)
		if count == 0 {
			p.CreatedBy = creator
			p.CreatedAt = time.Now()
			p.UpdatedAt = time.Now()
			if err := a.gormDB.Create(&p).Error; err != nil {
				zap.L().Error("failed to create default product", zap.String("sku", p.Sku), zap.Error(err))
			} else {
				zap.L().Info("initialized default product", zap.String("sku", p.Sku))
			}
		}
	}
}
