package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all runtime settings. Everything is sourced from the
// environment; an optional local config file (CONFIG_PATH, default
// config.ini) fills in values for laptop runs, with env always winning.
type Config struct {
	DB DB

	Table     string
	DateField string

	DefaultPageSize int
	MaxPageSize     int

	DebugKeys    map[string]struct{}
	DebugMaxRows int

	LogLevel string
	Verbose  bool

	MetricsEnabled bool
	MetricsStage   string

	HTTPAddr    string
	CORSEnabled bool

	Runtime Runtime
}

// DB holds connection settings for the events store. Driver is "mysql" in
// production; "sqlite" keeps local runs and tests self-contained.
type DB struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	Params   string
	Path     string
}

// Runtime carries hosting-environment identity, echoed verbatim into the
// debug block. Empty outside a managed runtime.
type Runtime struct {
	Function  string
	MemoryMB  string
	LogStream string
}

// Load reads settings from the environment (and the optional local file).
// It never fails: missing connection settings surface later, when the
// store tries to acquire a connection.
func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("db_driver", "mysql")
	v.SetDefault("db_port", 3306)
	v.SetDefault("table_name", "events")
	v.SetDefault("date_field", "event_date")
	v.SetDefault("default_page_size", 50)
	v.SetDefault("max_page_size", 500)
	v.SetDefault("debug_max_rows", 50)
	v.SetDefault("log_level", "INFO")
	v.SetDefault("verbose", false)
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("metrics_stage", "dev")
	v.SetDefault("http_addr", "127.0.0.1:8080")
	v.SetDefault("cors_enabled", true)

	path := v.GetString("config_path")
	if path == "" {
		path = "config.ini"
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		_ = v.ReadInConfig()
	}

	return &Config{
		DB: DB{
			Driver:   v.GetString("db_driver"),
			Host:     v.GetString("db_host"),
			Port:     v.GetInt("db_port"),
			User:     v.GetString("db_user"),
			Password: v.GetString("db_password"),
			Name:     v.GetString("db_name"),
			Params:   v.GetString("db_params"),
			Path:     v.GetString("db_path"),
		},
		Table:           v.GetString("table_name"),
		DateField:       v.GetString("date_field"),
		DefaultPageSize: v.GetInt("default_page_size"),
		MaxPageSize:     v.GetInt("max_page_size"),
		DebugKeys:       parseDebugKeys(v.GetString("debug_keys")),
		DebugMaxRows:    v.GetInt("debug_max_rows"),
		LogLevel:        strings.ToUpper(v.GetString("log_level")),
		Verbose:         v.GetBool("verbose"),
		MetricsEnabled:  v.GetBool("metrics_enabled"),
		MetricsStage:    v.GetString("metrics_stage"),
		HTTPAddr:        v.GetString("http_addr"),
		CORSEnabled:     v.GetBool("cors_enabled"),
		Runtime: Runtime{
			Function:  v.GetString("aws_lambda_function_name"),
			MemoryMB:  v.GetString("aws_lambda_function_memory_size"),
			LogStream: v.GetString("aws_lambda_log_stream_name"),
		},
	}
}

// DebugAllowed reports whether the supplied key enables debug mode.
// Comparison is exact; an empty allow-list makes debug mode unreachable.
func (c *Config) DebugAllowed(key string) bool {
	if key == "" || len(c.DebugKeys) == 0 {
		return false
	}
	_, ok := c.DebugKeys[key]
	return ok
}

func parseDebugKeys(raw string) map[string]struct{} {
	keys := map[string]struct{}{}
	for _, k := range strings.Split(raw, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			keys[k] = struct{}{}
		}
	}
	return keys
}
