package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервиса плотов.
// Значения читаются из YAML, затем переопределяются переменными окружения.
type Config struct {
	Worlds    WorldsConfig        `yaml:"worlds"`
	Storage   StorageConfig       `yaml:"storage"`
	Regions   RegionManagerConfig `yaml:"region_manager"`
	Export    ExportConfig        `yaml:"export"`
	Plots     PlotsConfig         `yaml:"plots"`
	Identity  IdentityConfig      `yaml:"identity"`
	EventBus  EventBusConfig      `yaml:"eventbus"`
	Server    ServerConfig        `yaml:"server"`
	Logging   LoggingConfig       `yaml:"logging"`
	Telemetry TelemetryConfig     `yaml:"telemetry"`
}

type WorldsConfig struct {
	// Container - каталог, в котором лежат папки миров.
	Container string `yaml:"container" env:"PLOT_WORLD_CONTAINER"`
	MinY      int    `yaml:"min_y" env:"PLOT_WORLD_MIN_Y"`
	MaxY      int    `yaml:"max_y" env:"PLOT_WORLD_MAX_Y"`
	Seed      int64  `yaml:"seed" env:"PLOT_WORLD_SEED"`
	// Generator: perlin | flat
	Generator string   `yaml:"generator" env:"PLOT_WORLD_GENERATOR"`
	Names     []string `yaml:"names" env:"PLOT_WORLDS" envSeparator:","`
}

type StorageConfig struct {
	// Backend: memory | badger
	Backend    string `yaml:"backend" env:"PLOT_STORAGE_BACKEND"`
	BadgerPath string `yaml:"badger_path" env:"PLOT_BADGER_PATH"`
}

type RegionManagerConfig struct {
	// Kind: queue | accelerated
	Kind             string `yaml:"kind" env:"PLOT_REGION_MANAGER"`
	AcceleratedClear bool   `yaml:"accelerated_clear" env:"PLOT_ACCELERATED_CLEAR"`
}

type ExportConfig struct {
	OutputDir       string `yaml:"output_dir" env:"PLOT_EXPORT_DIR"`
	RegionExtension string `yaml:"region_extension" env:"PLOT_REGION_EXT"`
}

type PlotsConfig struct {
	MaxTrusted int `yaml:"max_trusted" env:"PLOT_MAX_TRUSTED"`
	// Layout: hybrid | flat
	Layout      string `yaml:"layout" env:"PLOT_LAYOUT"`
	FloorHeight int    `yaml:"floor_height" env:"PLOT_FLOOR_HEIGHT"`
	// Repository: memory | mysql
	Repository string `yaml:"repository" env:"PLOT_REPOSITORY"`
	MySQLDSN   string `yaml:"mysql_dsn" env:"PLOT_MYSQL_DSN"`
}

type IdentityConfig struct {
	// Backend: memory | mongo
	Backend       string        `yaml:"backend" env:"PLOT_IDENTITY_BACKEND"`
	MongoURI      string        `yaml:"mongo_uri" env:"PLOT_MONGO_URI"`
	Database      string        `yaml:"database" env:"PLOT_MONGO_DB"`
	Collection    string        `yaml:"collection" env:"PLOT_MONGO_COLLECTION"`
	LookupTimeout time.Duration `yaml:"lookup_timeout" env:"PLOT_IDENTITY_TIMEOUT"`
	RedisAddr     string        `yaml:"redis_addr" env:"PLOT_REDIS_ADDR"`
	CacheTTL      time.Duration `yaml:"cache_ttl" env:"PLOT_IDENTITY_CACHE_TTL"`
}

type EventBusConfig struct {
	URL       string `yaml:"url" env:"PLOT_NATS_URL"`
	Stream    string `yaml:"stream" env:"PLOT_NATS_STREAM"`
	Retention int    `yaml:"retention_hours"`
}

type ServerConfig struct {
	RESTPort int `yaml:"rest_port"`
	// JWTSecret - секрет HS256 в base64; пусто отключает авторизацию API.
	JWTSecret string        `yaml:"jwt_secret" env:"PLOT_JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"PLOT_TOKEN_TTL"`
}

type LoggingConfig struct {
	Level string `yaml:"level" env:"PLOT_LOG_LEVEL"`
	Dir   string `yaml:"dir" env:"PLOT_LOG_DIR"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"PLOT_OTEL_ENABLED"`
	Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
	Insecure    bool   `yaml:"insecure" env:"PLOT_OTEL_INSECURE"`
	// SampleRatio - доля корневых трасс, 1 - все.
	SampleRatio float64 `yaml:"sample_ratio" env:"PLOT_OTEL_SAMPLE_RATIO"`
}

// Default возвращает конфигурацию со значениями по умолчанию.
func Default() *Config {
	return &Config{
		Worlds: WorldsConfig{
			Container: "worlds",
			MinY:      -64,
			MaxY:      319,
			Generator: "perlin",
			Names:     []string{"plotworld"},
		},
		Storage: StorageConfig{
			Backend:    "memory",
			BadgerPath: "data/worlds",
		},
		Regions: RegionManagerConfig{
			Kind: "queue",
		},
		Export: ExportConfig{
			OutputDir:       "exports",
			RegionExtension: "mca",
		},
		Plots: PlotsConfig{
			MaxTrusted:  32,
			Layout:      "hybrid",
			FloorHeight: 64,
			Repository:  "memory",
		},
		Identity: IdentityConfig{
			Backend:       "memory",
			Database:      "plots",
			Collection:    "players",
			LookupTimeout: 5 * time.Second,
			CacheTTL:      10 * time.Minute,
		},
		EventBus: EventBusConfig{
			Stream:    "PLOTS",
			Retention: 24,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "plot-service",
			SampleRatio: 1,
		},
	}
}

// GetRESTPort возвращает порт административного API: config -> env -> default
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "PLOT_REST_PORT", 8088)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации поверх значений по умолчанию и применяет
// переменные окружения. Если path == "", используется PLOT_CONFIG; без файла
// берутся только значения по умолчанию и окружение.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("PLOT_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность значений.
func (c *Config) Validate() error {
	var errs []error
	if c.Worlds.MinY > c.Worlds.MaxY {
		errs = append(errs, fmt.Errorf("worlds.min_y (%d) больше worlds.max_y (%d)", c.Worlds.MinY, c.Worlds.MaxY))
	}
	switch c.Regions.Kind {
	case "queue", "accelerated":
	default:
		errs = append(errs, fmt.Errorf("неизвестный region_manager.kind %q", c.Regions.Kind))
	}
	switch c.Storage.Backend {
	case "memory", "badger":
	default:
		errs = append(errs, fmt.Errorf("неизвестный storage.backend %q", c.Storage.Backend))
	}
	switch c.Worlds.Generator {
	case "perlin", "flat":
	default:
		errs = append(errs, fmt.Errorf("неизвестный worlds.generator %q", c.Worlds.Generator))
	}
	switch c.Plots.Layout {
	case "hybrid", "flat":
	default:
		errs = append(errs, fmt.Errorf("неизвестный plots.layout %q", c.Plots.Layout))
	}
	if c.Plots.FloorHeight < c.Worlds.MinY || c.Plots.FloorHeight > c.Worlds.MaxY {
		errs = append(errs, fmt.Errorf("plots.floor_height (%d) вне диапазона мира", c.Plots.FloorHeight))
	}
	if c.Plots.Repository == "mysql" && c.Plots.MySQLDSN == "" {
		errs = append(errs, errors.New("plots.mysql_dsn обязателен для repository=mysql"))
	}
	if c.Identity.Backend == "mongo" && c.Identity.MongoURI == "" {
		errs = append(errs, errors.New("identity.mongo_uri обязателен для backend=mongo"))
	}
	if c.Export.RegionExtension == "" {
		errs = append(errs, errors.New("export.region_extension не может быть пустым"))
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio (%g) вне [0, 1]", r))
	}
	return errors.Join(errs...)
}
