// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Configuration model and loader.

package control

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. LVREACTOR_SERVER_LISTEN.
const EnvPrefix = "LVREACTOR"

// Config is the complete server configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Processor ProcessorConfig `mapstructure:"processor" yaml:"processor"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	// Format is text or json.
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`
	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig configures the reactor.
type ServerConfig struct {
	Listen         string `mapstructure:"listen" yaml:"listen" validate:"required"`
	Backlog        int    `mapstructure:"backlog" yaml:"backlog" validate:"gte=0"`
	ReadBufferSize int    `mapstructure:"read_buffer_size" yaml:"read_buffer_size" validate:"gte=64"`
	// Workers is the size of the processor pool; 0 means one per CPU.
	Workers int `mapstructure:"workers" yaml:"workers" validate:"gte=0"`
	// IdleTimeout closes connections idle for one to two timeouts. Values
	// below 40ms disable eviction.
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`
	MaxEvents       int           `mapstructure:"max_events" yaml:"max_events" validate:"gt=0"`
	// MaxPayload bounds a single frame; 0 keeps the protocol maximum.
	MaxPayload int    `mapstructure:"max_payload" yaml:"max_payload" validate:"gte=0"`
	Codec      string `mapstructure:"codec" yaml:"codec" validate:"required"`
	// PinWorkers binds each processor goroutine to its own CPU.
	PinWorkers bool `mapstructure:"pin_workers" yaml:"pin_workers"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen" validate:"required_if=Enabled true"`
}

// ProcessorConfig selects the business logic served by the binary.
type ProcessorConfig struct {
	Type    string         `mapstructure:"type" yaml:"type" validate:"required,oneof=echo kvstore"`
	Options map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero values.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}

	s := &cfg.Server
	if s.Listen == "" {
		s.Listen = ":7070"
	}
	if s.ReadBufferSize == 0 {
		s.ReadBufferSize = 4096
	}
	if s.Workers == 0 {
		s.Workers = runtime.NumCPU()
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = 2 * time.Minute
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 30 * time.Second
	}
	if s.MaxEvents == 0 {
		s.MaxEvents = 128
	}
	if s.Codec == "" {
		s.Codec = "lv"
	}

	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9090"
	}
	if cfg.Processor.Type == "" {
		cfg.Processor.Type = "echo"
	}
}

// Load reads configuration from configPath (optional), the environment and
// defaults, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees environment keys viper knows about.
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"server.listen", "server.backlog", "server.read_buffer_size", "server.workers",
		"server.idle_timeout", "server.shutdown_timeout", "server.max_events",
		"server.max_payload", "server.codec", "server.pin_workers",
		"metrics.enabled", "metrics.listen",
		"processor.type",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(configDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "lvreactor")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "lvreactor")
}

// DefaultConfigPath returns the file Load reads when no path is given.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// WriteDefault writes the default configuration as YAML to path.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

var validate = validator.New()

// Validate checks struct tags and cross-field rules.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	if cfg.Server.MaxPayload > 0 && cfg.Server.MaxPayload < cfg.Server.ReadBufferSize/2 {
		return fmt.Errorf("server.max_payload: %d is smaller than half the read buffer", cfg.Server.MaxPayload)
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == cfg.Server.Listen {
		return fmt.Errorf("metrics.listen: must differ from server.listen (%s)", cfg.Server.Listen)
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}

// DecodeOptions decodes a processor option map into out, accepting duration
// strings such as "5s".
func DecodeOptions(options map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("create options decoder: %w", err)
	}
	if err := dec.Decode(options); err != nil {
		return fmt.Errorf("decode processor options: %w", err)
	}
	return nil
}
