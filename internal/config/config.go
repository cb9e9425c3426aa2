// Package config carga la configuración del servicio: config.yaml con
// overrides por variables de entorno (IPVOTE_*). El .env se carga en main
// vía godotenv antes de llamar Load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"` // debug | info | warn | error
	} `yaml:"log"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		// fs | memory | pg
		Driver string `yaml:"driver"`
		FSRoot string `yaml:"fs_root"`
		PG     struct {
			DSN string `yaml:"dsn"`
		} `yaml:"pg"`
		// Prefijo de keys del bucket de auth (users/<c>/users.json)
		AuthPrefix string `yaml:"auth_prefix"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Vote struct {
		// Polls que exigen captcha verificado antes de aceptar el voto
		CaptchaRequiredPolls []string `yaml:"captcha_required_polls"`
	} `yaml:"vote"`

	Geo struct {
		// Prefijo de keys de las particiones de la tabla country/ASN
		PartitionPrefix string `yaml:"partition_prefix"`
		// Key del JSON con los rangos CIDR de providers (cloud/VPN/Tor)
		ProviderRangesKey string `yaml:"provider_ranges_key"`
	} `yaml:"geo"`

	Rate struct {
		Enabled     bool   `yaml:"enabled"`
		Window      string `yaml:"window"`
		MaxRequests int    `yaml:"max_requests"`
	} `yaml:"rate"`
}

func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	// sane defaults
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "fs"
	}
	if c.Storage.FSRoot == "" {
		c.Storage.FSRoot = "data"
	}
	if c.Storage.AuthPrefix == "" {
		c.Storage.AuthPrefix = "auth/"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.Geo.PartitionPrefix == "" {
		c.Geo.PartitionPrefix = "ip_info_partitioned/"
	}
	if c.Geo.ProviderRangesKey == "" {
		c.Geo.ProviderRangesKey = "ip_ranges/providers.json"
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 30
	}

	c.applyEnvOverrides()
	return &c, nil
}

// MemoryTTL parsea el TTL por defecto del cache en memoria.
func (c *Config) MemoryTTL() time.Duration {
	d, err := time.ParseDuration(c.Cache.Memory.DefaultTTL)
	if err != nil {
		return 2 * time.Minute
	}
	return d
}

// RateWindow parsea la ventana del rate limiter.
func (c *Config) RateWindow() time.Duration {
	d, err := time.ParseDuration(c.Rate.Window)
	if err != nil {
		return time.Minute
	}
	return d
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("IPVOTE_APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("IPVOTE_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvStr("IPVOTE_SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("IPVOTE_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}
	if v, ok := getEnvStr("IPVOTE_STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("IPVOTE_STORAGE_FS_ROOT"); ok {
		c.Storage.FSRoot = v
	}
	if v, ok := getEnvStr("IPVOTE_STORAGE_PG_DSN"); ok {
		c.Storage.PG.DSN = v
	}
	if v, ok := getEnvStr("IPVOTE_CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("IPVOTE_REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("IPVOTE_REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvCSV("IPVOTE_CAPTCHA_REQUIRED_POLLS"); ok {
		c.Vote.CaptchaRequiredPolls = v
	}
	if v, ok := getEnvBool("IPVOTE_RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvInt("IPVOTE_RATE_MAX_REQUESTS"); ok {
		c.Rate.MaxRequests = v
	}
	if v, ok := getEnvStr("IPVOTE_RATE_WINDOW"); ok {
		c.Rate.Window = v
	}
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		if strings.TrimSpace(s) == "" {
			return []string{}, true
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}
