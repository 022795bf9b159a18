package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del motor.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Reserve ReserveConfig `yaml:"reserve"`
	Oracle  OracleConfig  `yaml:"oracle"`
	Venues  []VenueConfig `yaml:"venues"`
	Storage StorageConfig `yaml:"storage"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
}

// EngineConfig controla la liquidación y la gestión de riesgo.
type EngineConfig struct {
	InsuranceFeeBps      int64    `yaml:"insurance_fee_bps"`   // skim al reserve sobre beneficios
	MaxDailyLossBps      int64    `yaml:"max_daily_loss_bps"`  // umbral del circuit breaker
	BreakerTimezone      string   `yaml:"breaker_timezone"`    // ventana diaria; UTC por defecto
	MaxPriceAgeSeconds   int      `yaml:"max_price_age_seconds"`
	OracleTimeoutSeconds int      `yaml:"oracle_timeout_seconds"`
	Controllers          []string `yaml:"controllers"` // keepers y admins
	ExpirySweepSeconds   int      `yaml:"expiry_sweep_seconds"`
	MetricsNamespace     string   `yaml:"metrics_namespace"`
}

// ReserveConfig controla el fondo de seguro.
type ReserveConfig struct {
	TargetUSD string `yaml:"target_usd"` // decimal; solo informativo (coverage)
}

// OracleConfig apunta al servicio de precios.
type OracleConfig struct {
	BaseURL    string  `yaml:"base_url"`
	RatePerSec float64 `yaml:"rate_per_sec"`
}

// VenueConfig declara un adaptador de trading.
type VenueConfig struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"` // DEX | YIELD | PERP
	SlippageBps int64  `yaml:"slippage_bps"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// HTTPConfig controla la API.
type HTTPConfig struct {
	Addr              string  `yaml:"addr"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MaxBodyBytes      int64   `yaml:"max_body_bytes"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// MaxPriceAge devuelve la antigüedad máxima aceptada para un precio.
func (c *Config) MaxPriceAge() time.Duration {
	return time.Duration(c.Engine.MaxPriceAgeSeconds) * time.Second
}

// OracleTimeout devuelve el timeout por consulta al oráculo.
func (c *Config) OracleTimeout() time.Duration {
	return time.Duration(c.Engine.OracleTimeoutSeconds) * time.Second
}

// ExpirySweepInterval devuelve cada cuánto se expiran los ERTs vencidos.
func (c *Config) ExpirySweepInterval() time.Duration {
	return time.Duration(c.Engine.ExpirySweepSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("ERT_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("ERT_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("ERT_ORACLE_URL"); v != "" {
		cfg.Oracle.BaseURL = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Engine.InsuranceFeeBps <= 0 {
		cfg.Engine.InsuranceFeeBps = 200
	}
	if cfg.Engine.MaxDailyLossBps <= 0 {
		cfg.Engine.MaxDailyLossBps = 500
	}
	if cfg.Engine.BreakerTimezone == "" {
		cfg.Engine.BreakerTimezone = "UTC"
	}
	if cfg.Engine.MaxPriceAgeSeconds <= 0 {
		cfg.Engine.MaxPriceAgeSeconds = 300
	}
	if cfg.Engine.OracleTimeoutSeconds <= 0 {
		cfg.Engine.OracleTimeoutSeconds = 3
	}
	if cfg.Engine.ExpirySweepSeconds <= 0 {
		cfg.Engine.ExpirySweepSeconds = 60
	}
	if cfg.Engine.MetricsNamespace == "" {
		cfg.Engine.MetricsNamespace = "ertvault"
	}
	if cfg.Reserve.TargetUSD == "" {
		cfg.Reserve.TargetUSD = "0"
	}
	if cfg.Oracle.RatePerSec <= 0 {
		cfg.Oracle.RatePerSec = 10
	}
	if len(cfg.Venues) == 0 {
		cfg.Venues = []VenueConfig{
			{Name: "uniswap", Kind: "DEX", SlippageBps: 30},
			{Name: "aave", Kind: "YIELD"},
			{Name: "gmx", Kind: "PERP", SlippageBps: 10},
		}
	}
	for i := range cfg.Venues {
		cfg.Venues[i].Kind = strings.ToUpper(cfg.Venues[i].Kind)
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "ertvault.db"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	if c.Engine.InsuranceFeeBps > 10000 {
		return fmt.Errorf("engine.insurance_fee_bps %d out of range", c.Engine.InsuranceFeeBps)
	}
	if c.Engine.MaxDailyLossBps > 10000 {
		return fmt.Errorf("engine.max_daily_loss_bps %d out of range", c.Engine.MaxDailyLossBps)
	}
	if _, err := time.LoadLocation(c.Engine.BreakerTimezone); err != nil {
		return fmt.Errorf("engine.breaker_timezone: %w", err)
	}
	if c.Oracle.BaseURL == "" {
		return fmt.Errorf("oracle.base_url is required")
	}
	seen := make(map[string]bool, len(c.Venues))
	for _, v := range c.Venues {
		if v.Name == "" {
			return fmt.Errorf("venues: name is required")
		}
		if seen[v.Name] {
			return fmt.Errorf("venues: duplicate %q", v.Name)
		}
		seen[v.Name] = true
	}
	return nil
}
