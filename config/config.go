package config

import (
	"os"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"
)

// SysConfig system configuration
type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

// WebConfig admin web server configuration
type WebConfig struct {
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
	Secret  string `yaml:"secret" json:"secret"`
	BaseURL string `yaml:"base_url" json:"base_url"`
	// AllowedOrigins is a comma separated CORS allowlist. Empty in production
	// means deny all cross-origin requests.
	AllowedOrigins string `yaml:"allowed_origins" json:"allowed_origins"`
	Production     bool   `yaml:"production" json:"production"`
}

// DBConfig database configuration
type DBConfig struct {
	Type     string `yaml:"type" json:"type"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

// LogConfig logger configuration
type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

// RateLimitClassConfig one rate limit class ceiling
type RateLimitClassConfig struct {
	MaxRequests int `yaml:"max_requests" json:"max_requests"`
	WindowSecs  int `yaml:"window_secs" json:"window_secs"`
}

// RateLimitConfig per class rate limit ceilings
type RateLimitConfig struct {
	// Backend selects the limiter store: memory (default) or redis
	Backend   string               `yaml:"backend" json:"backend"`
	RedisAddr string               `yaml:"redis_addr" json:"redis_addr"`
	Auth      RateLimitClassConfig `yaml:"auth" json:"auth"`
	Upload    RateLimitClassConfig `yaml:"upload" json:"upload"`
	Default   RateLimitClassConfig `yaml:"default" json:"default"`
}

// CloudinaryConfig third party image hosting credentials
type CloudinaryConfig struct {
	CloudName string `yaml:"cloud_name" json:"cloud_name"`
	ApiKey    string `yaml:"api_key" json:"api_key"`
	ApiSecret string `yaml:"api_secret" json:"api_secret"`
	Folder    string `yaml:"folder" json:"folder"`
}

// SmtpConfig outbound mail configuration for report jobs
type SmtpConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	From     string `yaml:"from" json:"from"`
	To       string `yaml:"to" json:"to"`
}

type AppConfig struct {
	System     SysConfig        `yaml:"system" json:"system"`
	Web        WebConfig        `yaml:"web" json:"web"`
	Database   DBConfig         `yaml:"database" json:"database"`
	Logger     LogConfig        `yaml:"logger" json:"logger"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" json:"rate_limit"`
	Cloudinary CloudinaryConfig `yaml:"cloudinary" json:"cloudinary"`
	Smtp       SmtpConfig       `yaml:"smtp" json:"smtp"`
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "citadel",
		Location: "Asia/Shanghai",
		Workdir:  "/var/citadel",
		Debug:    true,
	},
	Web: WebConfig{
		Host:           "0.0.0.0",
		Port:           1820,
		Secret:         "9b6de5cc-0001-1203-xxtt-0f568ac9da37",
		AllowedOrigins: "",
		Production:     false,
	},
	Database: DBConfig{
		Type:     "postgres",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "citadel",
		User:     "postgres",
		Passwd:   "myroot",
		MaxConn:  100,
		IdleConn: 10,
		Debug:    false,
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: true,
		Filename:   "/var/citadel/citadel.log",
	},
	RateLimit: RateLimitConfig{
		Backend: "memory",
		Auth:    RateLimitClassConfig{MaxRequests: 20, WindowSecs: 60},
		Upload:  RateLimitClassConfig{MaxRequests: 10, WindowSecs: 60},
		Default: RateLimitClassConfig{MaxRequests: 100, WindowSecs: 60},
	},
	Cloudinary: CloudinaryConfig{
		Folder: "citadel-products",
	},
	Smtp: SmtpConfig{
		Port: 587,
	},
}

func setEnvValue(name string, f func(v string)) {
	var evalue = os.Getenv(name)
	if evalue != "" {
		f(evalue)
	}
}

func setEnvBoolValue(name string, f func(v bool)) {
	var evalue = os.Getenv(name)
	if evalue != "" {
		f(evalue == "true" || evalue == "1" || evalue == "on")
	}
}

func setEnvIntValue(name string, f func(v int)) {
	var evalue = os.Getenv(name)
	if evalue != "" {
		f(cast.ToInt(evalue))
	}
}

// LoadConfig reads the YAML configuration file and applies CITADEL_* environment
// overrides on top. A missing file yields the defaults.
func LoadConfig(cfile string) *AppConfig {
	cfg := DefaultAppConfig
	if cfile != "" {
		if data, err := os.ReadFile(cfile); err == nil {
			fcfg := new(AppConfig)
			if err := yaml.Unmarshal(data, fcfg); err == nil {
				cfg = fcfg
			}
		}
	}

	setEnvValue("CITADEL_SYSTEM_WORKDIR", func(v string) { cfg.System.Workdir = v })
	setEnvBoolValue("CITADEL_SYSTEM_DEBUG", func(v bool) { cfg.System.Debug = v })

	setEnvValue("CITADEL_WEB_HOST", func(v string) { cfg.Web.Host = v })
	setEnvIntValue("CITADEL_WEB_PORT", func(v int) { cfg.Web.Port = v })
	setEnvValue("CITADEL_WEB_SECRET", func(v string) { cfg.Web.Secret = v })
	setEnvValue("CITADEL_ALLOWED_ORIGINS", func(v string) { cfg.Web.AllowedOrigins = v })
	setEnvBoolValue("CITADEL_WEB_PRODUCTION", func(v bool) { cfg.Web.Production = v })

	setEnvValue("CITADEL_DB_HOST", func(v string) { cfg.Database.Host = v })
	setEnvIntValue("CITADEL_DB_PORT", func(v int) { cfg.Database.Port = v })
	setEnvValue("CITADEL_DB_NAME", func(v string) { cfg.Database.Name = v })
	setEnvValue("CITADEL_DB_USER", func(v string) { cfg.Database.User = v })
	setEnvValue("CITADEL_DB_PWD", func(v string) { cfg.Database.Passwd = v })
	setEnvBoolValue("CITADEL_DB_DEBUG", func(v bool) { cfg.Database.Debug = v })

	setEnvIntValue("CITADEL_RATE_LIMIT_AUTH_MAX", func(v int) { cfg.RateLimit.Auth.MaxRequests = v })
	setEnvIntValue("CITADEL_RATE_LIMIT_UPLOAD_MAX", func(v int) { cfg.RateLimit.Upload.MaxRequests = v })
	setEnvIntValue("CITADEL_RATE_LIMIT_MAX_REQUESTS", func(v int) { cfg.RateLimit.Default.MaxRequests = v })
	setEnvIntValue("CITADEL_RATE_LIMIT_AUTH_WINDOW", func(v int) { cfg.RateLimit.Auth.WindowSecs = v })
	setEnvIntValue("CITADEL_RATE_LIMIT_UPLOAD_WINDOW", func(v int) { cfg.RateLimit.Upload.WindowSecs = v })
	setEnvIntValue("CITADEL_RATE_LIMIT_WINDOW", func(v int) { cfg.RateLimit.Default.WindowSecs = v })
	setEnvValue("CITADEL_RATE_LIMIT_BACKEND", func(v string) { cfg.RateLimit.Backend = v })
	setEnvValue("CITADEL_REDIS_ADDR", func(v string) { cfg.RateLimit.RedisAddr = v })

	setEnvValue("CITADEL_CLOUDINARY_CLOUD_NAME", func(v string) { cfg.Cloudinary.CloudName = v })
	setEnvValue("CITADEL_CLOUDINARY_API_KEY", func(v string) { cfg.Cloudinary.ApiKey = v })
	setEnvValue("CITADEL_CLOUDINARY_API_SECRET", func(v string) { cfg.Cloudinary.ApiSecret = v })

	setEnvValue("CITADEL_SMTP_HOST", func(v string) { cfg.Smtp.Host = v })
	setEnvIntValue("CITADEL_SMTP_PORT", func(v int) { cfg.Smtp.Port = v })
	setEnvValue("CITADEL_SMTP_USERNAME", func(v string) { cfg.Smtp.Username = v })
	setEnvValue("CITADEL_SMTP_PASSWORD", func(v string) { cfg.Smtp.Password = v })

	if cfg.Cloudinary.Folder == "" {
		cfg.Cloudinary.Folder = "citadel-products"
	}
	return cfg
}

// SplitOrigins splits the comma separated allowlist, trimming blanks.
func (c WebConfig) SplitOrigins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
