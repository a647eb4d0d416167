package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jwcorp/tickdesk/internal/domain"
)

// Config es la configuración completa del motor.
type Config struct {
	Run     RunConfig     `yaml:"run"`
	Candle  CandleConfig  `yaml:"candle"`
	Trader  TraderConfig  `yaml:"trader"`
	Binance BinanceConfig `yaml:"binance"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// RunConfig identifica qué se ejecuta: símbolo y estrategia.
type RunConfig struct {
	Symbol   string             `yaml:"symbol"`
	Strategy string             `yaml:"strategy"`
	Quantity float64            `yaml:"quantity"`
	Params   map[string]float64 `yaml:"params"` // umbrales por estrategia
}

// CandleConfig controla el agregador de velas del backtest de ticks.
type CandleConfig struct {
	Type string  `yaml:"type"` // time | tick | volume | dollar
	Size float64 `yaml:"size"`
}

// TraderConfig controla el simulador de ejecución.
type TraderConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`
	FeeRate        float64 `yaml:"fee_rate"`
	MakerFeeRate   float64 `yaml:"maker_fee_rate"`
	TakerFeeRate   float64 `yaml:"taker_fee_rate"`
	Leverage       int     `yaml:"leverage"`   // > 1 activa el modo futuros
	LatencyMS      int     `yaml:"latency_ms"` // emulación de latencia de matching
}

// BinanceConfig controla el stream combinado del modo forward.
type BinanceConfig struct {
	DepthLevels   int    `yaml:"depth_levels"` // 5 | 10 | 20
	UpdateSpeed   string `yaml:"update_speed"` // 100ms | 1000ms
	MaxReconnects int    `yaml:"max_reconnects"`
	BaseURL       string `yaml:"base_url"`
}

// StorageConfig controla dónde se persisten los runs.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si
// existe. Los valores del .env sobreescriben los del YAML para las keys que
// correspondan. Valida al cargar: un config inválido no arranca nada.
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

// Latency devuelve la latencia emulada como time.Duration.
func (c *Config) Latency() time.Duration {
	return time.Duration(c.Trader.LatencyMS) * time.Millisecond
}

// CandleType devuelve el tipo de vela ya validado.
func (c *Config) CandleType() domain.CandleType {
	typ, _ := domain.ParseCandleType(c.Candle.Type)
	return typ
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están
// presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("TICKDESK_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("TICKDESK_SYMBOL"); v != "" {
		cfg.Run.Symbol = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Run.Symbol == "" {
		cfg.Run.Symbol = "BTCUSDT"
	}
	if cfg.Run.Strategy == "" {
		cfg.Run.Strategy = "obi"
	}
	if cfg.Run.Quantity <= 0 {
		cfg.Run.Quantity = 0.01
	}
	if cfg.Candle.Type == "" {
		cfg.Candle.Type = string(domain.CandleTime)
	}
	if cfg.Candle.Size <= 0 {
		cfg.Candle.Size = 60
	}
	if cfg.Trader.InitialCapital == 0 {
		cfg.Trader.InitialCapital = 10000
	}
	if cfg.Trader.Leverage == 0 {
		cfg.Trader.Leverage = 1
	}
	if cfg.Binance.DepthLevels == 0 {
		cfg.Binance.DepthLevels = 20
	}
	if cfg.Binance.UpdateSpeed == "" {
		cfg.Binance.UpdateSpeed = "100ms"
	}
	if cfg.Binance.MaxReconnects <= 0 {
		cfg.Binance.MaxReconnects = 10
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "tickdesk.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// validate falla rápido con el primer valor inconsistente.
func (c *Config) validate() error {
	if _, err := domain.ParseCandleType(c.Candle.Type); err != nil {
		return err
	}
	if c.Candle.Size <= 0 {
		return fmt.Errorf("candle.size debe ser > 0, recibido %v", c.Candle.Size)
	}
	if c.Trader.InitialCapital <= 0 {
		return fmt.Errorf("trader.initial_capital debe ser > 0, recibido %v", c.Trader.InitialCapital)
	}
	if c.Trader.FeeRate < 0 || c.Trader.MakerFeeRate < 0 || c.Trader.TakerFeeRate < 0 {
		return fmt.Errorf("las fees no pueden ser negativas")
	}
	if c.Trader.Leverage < 1 {
		return fmt.Errorf("trader.leverage debe ser >= 1, recibido %d", c.Trader.Leverage)
	}
	if c.Trader.LatencyMS < 0 {
		return fmt.Errorf("trader.latency_ms no puede ser negativo, recibido %d", c.Trader.LatencyMS)
	}
	switch c.Binance.DepthLevels {
	case 5, 10, 20:
	default:
		return fmt.Errorf("binance.depth_levels debe ser 5, 10 o 20, recibido %d", c.Binance.DepthLevels)
	}
	switch c.Binance.UpdateSpeed {
	case "100ms", "1000ms":
	default:
		return fmt.Errorf("binance.update_speed debe ser 100ms o 1000ms, recibido %q", c.Binance.UpdateSpeed)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level inválido %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format inválido %q", c.Log.Format)
	}
	return nil
}
