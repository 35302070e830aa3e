package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agentwatch/internal/logger"
	"agentwatch/internal/tester"
	"agentwatch/internal/validator"

	"github.com/spf13/viper"
)

var (
	// AppName is the name of the application
	AppName = "agentwatch"

	// EnvPrefix prefixes environment overrides, e.g. AGENTWATCH_SERVER_ADDRESS
	EnvPrefix = "AGENTWATCH"

	// InDot is the path to the config file in ./
	InDot = "."
	// InEtc is the path to the config file in /etc/{AppName}
	InEtc = "/etc/" + AppName
	// InHome is the path to the config file in $HOME/.config/{AppName}
	InHome = "$HOME/.config/" + AppName
	// InHomeDot is the path to the config file in $HOME/.{AppName}
	InHomeDot = "$HOME/." + AppName
)

// Config represents the monitor configuration
type Config struct {
	Monitor    MonitorConfig     `mapstructure:"monitor"`
	Tests      tester.Config     `mapstructure:"tests"`
	LogSources []LogSourceConfig `mapstructure:"log_sources"`
	Agents     []AgentConfig     `mapstructure:"agents"`
	Server     ServerConfig      `mapstructure:"server"`
	Storage    StorageConfig     `mapstructure:"storage"`
	Notify     NotifyConfig      `mapstructure:"notify"`
	Events     EventsConfig      `mapstructure:"events"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	Log        logger.Config     `mapstructure:"log"`
}

// MonitorConfig represents sampling and buffering settings
type MonitorConfig struct {
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	LogCapacity    int           `mapstructure:"log_capacity"`
	LogTailLines   int           `mapstructure:"log_tail_lines"`
	ChangeDebounce time.Duration `mapstructure:"change_debounce"`
}

// LogSourceConfig represents a log file to tail
type LogSourceConfig struct {
	Path  string `mapstructure:"path" validate:"required"`
	Label string `mapstructure:"label"`
}

// AgentConfig represents a statically configured agent registered at boot
type AgentConfig struct {
	ID        string `mapstructure:"id"`
	Name      string `mapstructure:"name" validate:"required"`
	Framework string `mapstructure:"framework"`
	PID       int32  `mapstructure:"pid" validate:"min=0"`
	Endpoint  string `mapstructure:"endpoint" validate:"omitempty,url"`
	Running   bool   `mapstructure:"running"`
}

// ServerConfig represents the HTTP API server
type ServerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Mode         string        `mapstructure:"mode"` // gin mode: debug, release, test
}

// StorageConfig represents test report persistence
type StorageConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"` // zero keeps every report
}

// EventsConfig represents change event publishing
type EventsConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Address     string        `mapstructure:"address"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	Channel     string        `mapstructure:"channel"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// MetricsConfig represents the prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoadConfig loads the configuration from path. An empty path searches the
// standard locations and falls back to defaults when no file is found.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(AppName)
		v.AddConfigPath(InDot)
		v.AddConfigPath(InHome)
		v.AddConfigPath(InHomeDot)
		v.AddConfigPath(InEtc)
		if ex, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Dir(ex))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	setDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	var config Config
	setDefaults(&config)
	return &config
}

// bindEnvKeys registers keys so AutomaticEnv can override them without a config file
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"monitor.sample_interval", "monitor.log_capacity", "monitor.log_tail_lines", "monitor.change_debounce",
		"server.enabled", "server.address", "server.mode",
		"storage.enabled", "storage.path", "storage.retention",
		"events.enabled", "events.address", "events.password", "events.channel",
		"metrics.enabled", "metrics.path",
		"log.level", "log.file",
		"notify.enabled", "notify.webhook.url", "notify.webhook.secret", "notify.slack.webhook_url",
	} {
		_ = v.BindEnv(key)
	}
}

// setDefaults sets default values if not specified
func setDefaults(config *Config) {
	if config.Monitor.SampleInterval <= 0 {
		config.Monitor.SampleInterval = 5 * time.Second
	}
	if config.Monitor.LogCapacity <= 0 {
		config.Monitor.LogCapacity = 1000
	}
	if config.Monitor.LogTailLines <= 0 {
		config.Monitor.LogTailLines = 100
	}
	if config.Monitor.ChangeDebounce <= 0 {
		config.Monitor.ChangeDebounce = 250 * time.Millisecond
	}

	d := tester.DefaultConfig()
	if config.Tests.LatencyPacing == 0 {
		config.Tests.LatencyPacing = d.LatencyPacing
	}
	if config.Tests.FaultPacing == 0 {
		config.Tests.FaultPacing = d.FaultPacing
	}
	config.Tests = config.Tests.SetDefaults()

	if config.Server.Address == "" {
		config.Server.Address = ":8080"
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 30 * time.Second
	}
	if config.Server.WriteTimeout == 0 {
		// a load test with default timeouts may run for tens of seconds
		config.Server.WriteTimeout = 2 * time.Minute
	}
	if config.Server.Mode == "" {
		config.Server.Mode = "release"
	}

	if config.Storage.Path == "" {
		config.Storage.Path = filepath.Join("data", AppName+".db")
	}

	if config.Events.Channel == "" {
		config.Events.Channel = AppName + ":changes"
	}
	if config.Events.DialTimeout == 0 {
		config.Events.DialTimeout = 5 * time.Second
	}

	if config.Metrics.Path == "" {
		config.Metrics.Path = "/metrics"
	}

	config.Notify.setDefaults()
	config.Log = *config.Log.SetDefaults()
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	v := validator.New()

	for i := range config.Agents {
		if err := v.Struct(&config.Agents[i]); err != nil {
			return fmt.Errorf("agents[%d]: %w", i, err)
		}
	}
	for i := range config.LogSources {
		if err := v.Struct(&config.LogSources[i]); err != nil {
			return fmt.Errorf("log_sources[%d]: %w", i, err)
		}
	}

	if config.Monitor.LogCapacity > 100000 {
		return fmt.Errorf("monitor.log_capacity must be at most 100000")
	}

	switch config.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("invalid server mode: %s", config.Server.Mode)
	}

	if config.Events.Enabled && config.Events.Address == "" {
		return fmt.Errorf("events.address is required when events are enabled")
	}

	if !strings.HasPrefix(config.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	if err := config.Notify.Validate(); err != nil {
		return fmt.Errorf("invalid notify config: %w", err)
	}

	if err := config.Log.Validate(); err != nil {
		return fmt.Errorf("invalid log config: %w", err)
	}

	return nil
}
