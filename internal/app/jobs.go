package app

import (
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/citadelhq/citadel/internal/analytics"
	"github.com/citadelhq/citadel/internal/domain"
	"github.com/citadelhq/citadel/pkg/metrics"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, _ := time.LoadLocation(a.appConfig.System.Location)
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	var err error
	_, err = a.sched.AddFunc("@every 30s", func() {
		go a.SchedSystemMonitorTask()
		go a.SchedProcessMonitorTask()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	// Bound the rate limit table; windows are at most a minute long.
	_, err = a.sched.AddFunc("@every 1m", func() {
		a.limiter.Sweep()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc("@daily", func() {
		a.SchedClearExpireData()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc("@daily", func() {
		a.SchedLowStockReportTask()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	a.sched.Start()
}

// SchedSystemMonitorTask system monitor
func (a *Application) SchedSystemMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	// Collect CPU usage
	_cpuuse, err := cpu.Percent(0, false)
	if err == nil && len(_cpuuse) > 0 {
		metrics.SetGauge("system_cpuuse", int64(_cpuuse[0]*100)) // Store as percentage * 100
	}

	// Collect memory usage
	_meminfo, err := mem.VirtualMemory()
	if err == nil {
		metrics.SetGauge("system_memuse", int64(_meminfo.Used/1024/1024))
	}
}

// SchedProcessMonitorTask app process monitor
func (a *Application) SchedProcessMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}

	// Collect process CPU usage
	cpuuse, err := p.CPUPercent()
	if err == nil {
		metrics.SetGauge("citadel_cpuuse", int64(cpuuse*100)) // Store as percentage * 100
	}

	// Collect process memory usage
	meminfo, err := p.MemoryInfo()
	if err == nil {
		metrics.SetGauge("citadel_memuse", int64(meminfo.RSS/1024/1024))
	}
}

// SchedClearExpireData prunes operation logs and, when configured, old sale
// records. Sale retention of zero keeps the ledger forever.
func (a *Application) SchedClearExpireData() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	settings := a.configManager.ReportSettings()

	a.gormDB.
		Where("opt_time < ? ", time.Now().
			Add(-time.Hour*24*time.Duration(settings.OprlogHistoryDays))).Delete(domain.SysOprLog{})

	if settings.SaleHistoryDays > 0 {
		a.gormDB.
			Where("sale_date < ? ", time.Now().
				Add(-time.Hour*24*time.Duration(settings.SaleHistoryDays))).Delete(domain.Sale{})
	}
}

// SchedLowStockReportTask mails the list of items below the stock threshold.
func (a *Application) SchedLowStockReportTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	if !a.configManager.ReportSettings().LowStockMailEnabled {
		return
	}
	smtpcfg := a.appConfig.Smtp
	if smtpcfg.Host == "" || smtpcfg.To == "" {
		return
	}

	var items []domain.Product
	if err := a.gormDB.
		Where("stock < ?", analytics.LowStockThreshold).
		Order("stock ASC").Find(&items).Error; err != nil {
		zap.L().Error("low stock query failed", zap.Error(err))
		return
	}
	if len(items) == 0 {
		return
	}

	body := "The following catalog items are low on stock:\n\n"
	for _, item := range items {
		body += fmt.Sprintf("%-20s %-16s stock=%d\n", item.Name, item.Sku, item.Stock)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", smtpcfg.From)
	m.SetHeader("To", smtpcfg.To)
	m.SetHeader("Subject", fmt.Sprintf("Citadel low stock report (%d items)", len(items)))
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(smtpcfg.Host, smtpcfg.Port, smtpcfg.Username, smtpcfg.Password)
	if err := d.DialAndSend(m); err != nil {
		zap.L().Error("low stock report mail failed", zap.Error(err))
		return
	}
	zap.L().Info("low stock report mail sent", zap.Int("items", len(items)))
}
