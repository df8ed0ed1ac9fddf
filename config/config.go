package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del servicio.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Detector DetectorConfig `yaml:"detector"`
	Cache    CacheConfig    `yaml:"cache"`
	Registry RegistryConfig `yaml:"registry"`
	Signal   SignalConfig   `yaml:"signal"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig controla el servidor HTTP.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// APIConfig contiene el base URL de Delphi y los límites del cliente.
type APIConfig struct {
	DelphiBase         string  `yaml:"delphi_base"`
	RatePerSec         float64 `yaml:"rate_per_sec"`
	Burst              int     `yaml:"burst"`
	HTTPTimeoutSeconds int     `yaml:"http_timeout_seconds"`
}

// DetectorConfig controla la detección del mercado vivo.
type DetectorConfig struct {
	OngoingLimit int `yaml:"ongoing_limit"`
	ProbeCeiling int `yaml:"probe_ceiling"` // índices 0..ceiling-1
}

// CacheConfig contiene los TTLs (en segundos) y el deadline de evals del human belief.
type CacheConfig struct {
	ChartTTLSeconds           int `yaml:"chart_ttl_seconds"`
	HumanBeliefTTLSeconds     int `yaml:"human_belief_ttl_seconds"`
	HistoricalTTLSeconds      int `yaml:"historical_ttl_seconds"`
	LiveMarketTTLSeconds      int `yaml:"live_market_ttl_seconds"`
	BeliefEvalDeadlineSeconds int `yaml:"belief_eval_deadline_seconds"`
}

// RegistryConfig apunta a un registro YAML externo. Vacío = registro embebido.
type RegistryConfig struct {
	Path string `yaml:"path"`
}

// SignalConfig controla la clasificación BUY/HOLD/OVERVALUED.
type SignalConfig struct {
	GapThreshold float64 `yaml:"gap_threshold"` // puntos porcentuales
}

// AnalysisConfig controla el análisis histórico.
type AnalysisConfig struct {
	Workers     int `yaml:"workers"`
	ClosedLimit int `yaml:"closed_limit"` // mercados cerrados de Delphi a revisar además del registro
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Si path no existe se usan solo defaults y variables de entorno.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// HTTPTimeout devuelve el timeout del cliente HTTP.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.API.HTTPTimeoutSeconds) * time.Second
}

// BeliefEvalDeadline devuelve el deadline por request de evals del human belief.
func (c *Config) BeliefEvalDeadline() time.Duration {
	return time.Duration(c.Cache.BeliefEvalDeadlineSeconds) * time.Second
}

// TTL convierte segundos a time.Duration.
func TTL(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DELPHI_BASE_URL"); v != "" {
		cfg.API.DelphiBase = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("MARKET_REGISTRY"); v != "" {
		cfg.Registry.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.API.DelphiBase == "" {
		cfg.API.DelphiBase = "https://delphi-api.gensyn.ai"
	}
	cfg.API.DelphiBase = strings.TrimRight(cfg.API.DelphiBase, "/")
	if cfg.API.RatePerSec <= 0 {
		cfg.API.RatePerSec = 20
	}
	if cfg.API.Burst <= 0 {
		cfg.API.Burst = 20
	}
	if cfg.API.HTTPTimeoutSeconds <= 0 {
		cfg.API.HTTPTimeoutSeconds = 30
	}
	if cfg.Detector.OngoingLimit <= 0 {
		cfg.Detector.OngoingLimit = 10
	}
	if cfg.Detector.ProbeCeiling <= 0 {
		cfg.Detector.ProbeCeiling = 10
	}
	if cfg.Cache.ChartTTLSeconds <= 0 {
		cfg.Cache.ChartTTLSeconds = 5
	}
	if cfg.Cache.HumanBeliefTTLSeconds <= 0 {
		cfg.Cache.HumanBeliefTTLSeconds = 8
	}
	if cfg.Cache.HistoricalTTLSeconds <= 0 {
		cfg.Cache.HistoricalTTLSeconds = 30
	}
	if cfg.Cache.LiveMarketTTLSeconds <= 0 {
		cfg.Cache.LiveMarketTTLSeconds = 60
	}
	if cfg.Cache.BeliefEvalDeadlineSeconds <= 0 {
		cfg.Cache.BeliefEvalDeadlineSeconds = 9
	}
	if cfg.Signal.GapThreshold <= 0 {
		cfg.Signal.GapThreshold = 5
	}
	if cfg.Analysis.Workers <= 0 {
		cfg.Analysis.Workers = 4
	}
	if cfg.Analysis.ClosedLimit <= 0 {
		cfg.Analysis.ClosedLimit = 20
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
