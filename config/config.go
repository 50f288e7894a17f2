package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot.
type Config struct {
	Trading    TradingConfig    `yaml:"trading" toml:"trading"`
	Safety     SafetyConfig     `yaml:"safety" toml:"safety"`
	Monitoring MonitoringConfig `yaml:"monitoring" toml:"monitoring"`
	Risk       RiskConfig       `yaml:"risk" toml:"risk"`
	API        APIConfig        `yaml:"api" toml:"api"`
	Schedule   ScheduleConfig   `yaml:"schedule" toml:"schedule"`
	Storage    StorageConfig    `yaml:"storage" toml:"storage"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" toml:"telemetry"`
	Log        LogConfig        `yaml:"log" toml:"log"`
}

// TradingConfig controla sizing, elegibilidad y salida.
type TradingConfig struct {
	Bankroll            float64       `yaml:"bankroll" toml:"bankroll"`                         // USD
	KellyFraction       float64       `yaml:"kelly_fraction" toml:"kelly_fraction"`             // fracción del bankroll por unidad de ladder
	MaxExposurePct      float64       `yaml:"max_exposure_pct" toml:"max_exposure_pct"`         // tope del ladder por mercado
	RevertFraction      float64       `yaml:"revert_fraction" toml:"revert_fraction"`           // f en entry + f×(pregame−entry)
	CheckpointThreshold int           `yaml:"checkpoint_threshold" toml:"checkpoint_threshold"` // centavos
	VolumeFloor         float64       `yaml:"volume_floor" toml:"volume_floor"`                 // USD; 0 desactiva el veto
	VolumeWindowDays    int           `yaml:"volume_window_days" toml:"volume_window_days"`
	InPlayMinutes       int           `yaml:"in_play_minutes" toml:"in_play_minutes"`
	Ladder              []LadderLevel `yaml:"ladder" toml:"ladder"`
}

// LadderLevel es un escalón del ladder de compra.
type LadderLevel struct {
	PriceCents int     `yaml:"price_cents" toml:"price_cents"`
	Multiplier float64 `yaml:"multiplier" toml:"multiplier"`
}

// SafetyConfig agrupa los topes globales.
type SafetyConfig struct {
	MaxTotalExposure     float64 `yaml:"max_total_exposure" toml:"max_total_exposure"` // USD; 0 desactiva
	MaxConcurrentMarkets int     `yaml:"max_concurrent_markets" toml:"max_concurrent_markets"`
}

// MonitoringConfig controla el loop.
type MonitoringConfig struct {
	PollIntervalSeconds int    `yaml:"poll_interval_seconds" toml:"poll_interval_seconds"`
	LookaheadHours      int    `yaml:"lookahead_hours" toml:"lookahead_hours"`
	CallDelayMs         int    `yaml:"call_delay_ms" toml:"call_delay_ms"` // pausa mínima entre llamadas a la API
	StopFile            string `yaml:"stop_file" toml:"stop_file"`         // si existe, el loop termina
}

// RiskConfig controla el modo de ejecución.
type RiskConfig struct {
	DryRun bool `yaml:"dry_run" toml:"dry_run"`
}

// APIConfig contiene la URL base y las credenciales de Kalshi.
type APIConfig struct {
	BaseURL        string `yaml:"base_url" toml:"base_url"`
	KeyID          string `yaml:"key_id" toml:"key_id"`
	PrivateKeyPath string `yaml:"private_key_path" toml:"private_key_path"`
}

// ScheduleConfig lista los CSV de partidos.
type ScheduleConfig struct {
	Files []string `yaml:"files" toml:"files"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn" toml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// TelemetryConfig selecciona los sinks de eventos.
type TelemetryConfig struct {
	Sinks        []string `yaml:"sinks" toml:"sinks"` // log | postgres | redis | kafka
	Buffer       int      `yaml:"buffer" toml:"buffer"`
	PostgresDSN  string   `yaml:"postgres_dsn" toml:"postgres_dsn"`
	RedisAddr    string   `yaml:"redis_addr" toml:"redis_addr"`
	RedisStream  string   `yaml:"redis_stream" toml:"redis_stream"`
	KafkaBrokers []string `yaml:"kafka_brokers" toml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic" toml:"kafka_topic"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug | info | warn | error
	Format string `yaml:"format" toml:"format"` // text | json
}

// Load carga la configuración desde un archivo YAML o TOML (según extensión)
// y el archivo .env si existe. Las variables de entorno sobreescriben los
// valores del archivo.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

// Parse decodifica data (YAML salvo que ext sea ".toml"), aplica env,
// defaults y valida.
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	if strings.EqualFold(ext, ".toml") {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("parse TOML: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PollInterval devuelve el intervalo del loop como time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitoring.PollIntervalSeconds) * time.Second
}

// Lookahead devuelve la ventana de descubrimiento.
func (c *Config) Lookahead() time.Duration {
	return time.Duration(c.Monitoring.LookaheadHours) * time.Hour
}

// CallDelay devuelve la pausa mínima entre llamadas a la API.
func (c *Config) CallDelay() time.Duration {
	return time.Duration(c.Monitoring.CallDelayMs) * time.Millisecond
}

// InPlayWindow devuelve la ventana en juego tras el kickoff.
func (c *Config) InPlayWindow() time.Duration {
	return time.Duration(c.Trading.InPlayMinutes) * time.Minute
}

// Validate rechaza configuraciones con las que el bot no puede operar.
func (c *Config) Validate() error {
	var errs []error
	t := c.Trading
	if t.Bankroll <= 0 {
		errs = append(errs, errors.New("trading.bankroll must be > 0"))
	}
	if t.KellyFraction <= 0 || t.KellyFraction > 1 {
		errs = append(errs, fmt.Errorf("trading.kelly_fraction %.4f out of (0,1]", t.KellyFraction))
	}
	if t.MaxExposurePct <= 0 || t.MaxExposurePct > 1 {
		errs = append(errs, fmt.Errorf("trading.max_exposure_pct %.4f out of (0,1]", t.MaxExposurePct))
	}
	if t.RevertFraction <= 0 || t.RevertFraction > 1 {
		errs = append(errs, fmt.Errorf("trading.revert_fraction %.4f out of (0,1]", t.RevertFraction))
	}
	if t.CheckpointThreshold < 1 || t.CheckpointThreshold > 99 {
		errs = append(errs, fmt.Errorf("trading.checkpoint_threshold %d out of [1,99]", t.CheckpointThreshold))
	}
	if t.VolumeFloor < 0 {
		errs = append(errs, errors.New("trading.volume_floor must be >= 0"))
	}
	if len(t.Ladder) == 0 {
		errs = append(errs, errors.New("trading.ladder must have at least one level"))
	}
	for i, l := range t.Ladder {
		if l.PriceCents < 1 || l.PriceCents > 99 {
			errs = append(errs, fmt.Errorf("trading.ladder[%d].price_cents %d out of [1,99]", i, l.PriceCents))
		}
		if l.Multiplier <= 0 {
			errs = append(errs, fmt.Errorf("trading.ladder[%d].multiplier must be > 0", i))
		}
	}
	if c.Safety.MaxTotalExposure < 0 {
		errs = append(errs, errors.New("safety.max_total_exposure must be >= 0"))
	}
	if !c.Risk.DryRun && (c.API.KeyID == "" || c.API.PrivateKeyPath == "") {
		errs = append(errs, errors.New("api.key_id and api.private_key_path are required unless risk.dry_run is set"))
	}
	if len(c.Schedule.Files) == 0 {
		errs = append(errs, errors.New("schedule.files must list at least one CSV"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config.Validate: %w", err)
	}
	return nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("KALSHI_API_KEY_ID"); v != "" {
		cfg.API.KeyID = v
	}
	if v := os.Getenv("KALSHI_PRIVATE_KEY_PATH"); v != "" {
		cfg.API.PrivateKeyPath = v
	}
	if v := os.Getenv("DIPBOT_DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Risk.DryRun = b
		}
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Telemetry.PostgresDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Telemetry.RedisAddr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Telemetry.KafkaBrokers = strings.Split(v, ",")
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Trading.KellyFraction <= 0 {
		cfg.Trading.KellyFraction = 0.01
	}
	if cfg.Trading.MaxExposurePct <= 0 {
		cfg.Trading.MaxExposurePct = 0.10
	}
	if cfg.Trading.RevertFraction <= 0 {
		cfg.Trading.RevertFraction = 0.5
	}
	if cfg.Trading.CheckpointThreshold <= 0 {
		cfg.Trading.CheckpointThreshold = 57
	}
	if cfg.Trading.VolumeWindowDays <= 0 {
		cfg.Trading.VolumeWindowDays = 30
	}
	if cfg.Trading.InPlayMinutes <= 0 {
		cfg.Trading.InPlayMinutes = 90
	}
	if len(cfg.Trading.Ladder) == 0 {
		cfg.Trading.Ladder = []LadderLevel{
			{PriceCents: 49, Multiplier: 1},
			{PriceCents: 45, Multiplier: 1.5},
			{PriceCents: 40, Multiplier: 2},
		}
	}
	if cfg.Safety.MaxConcurrentMarkets <= 0 {
		cfg.Safety.MaxConcurrentMarkets = 3
	}
	if cfg.Monitoring.PollIntervalSeconds <= 0 {
		cfg.Monitoring.PollIntervalSeconds = 60
	}
	if cfg.Monitoring.LookaheadHours <= 0 {
		cfg.Monitoring.LookaheadHours = 24
	}
	if cfg.Monitoring.CallDelayMs <= 0 {
		cfg.Monitoring.CallDelayMs = 100
	}
	if cfg.Monitoring.StopFile == "" {
		cfg.Monitoring.StopFile = "STOP"
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "https://api.elections.kalshi.com/trade-api/v2"
	}
	if cfg.Storage.DSN == "" {
		// dry-run y live nunca comparten archivo de estado
		cfg.Storage.DSN = "dipbot.db"
		if cfg.Risk.DryRun {
			cfg.Storage.DSN = "dipbot-dryrun.db"
		}
	}
	if cfg.Telemetry.Buffer <= 0 {
		cfg.Telemetry.Buffer = 256
	}
	if cfg.Telemetry.RedisStream == "" {
		cfg.Telemetry.RedisStream = "dipbot:events"
	}
	if cfg.Telemetry.KafkaTopic == "" {
		cfg.Telemetry.KafkaTopic = "dipbot.events"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
