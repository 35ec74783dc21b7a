package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

/**
 * Status API configuration
 * @property {string} address - Listening address of the status API (e.g. ":8080"), empty disables it
 * @property {string} mode - gin mode (debug/release/test)
 */
type ServerConfig struct {
	Address string `mapstructure:"address"`
	Mode    string `mapstructure:"mode"`
}

/**
 * Logging configuration
 * @property {string} level - Log level (debug/info/warn/error)
 * @property {string} path - Log file path, "console" or empty writes to stdout
 */
type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

/**
 * Control bus configuration
 * @property {string} url - NATS server url, empty uses the in-process bus
 * @property {string} subject_prefix - Prefix of the per-session control subject
 */
type BusConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

/**
 * Deployment service configuration
 * @property {string} root_env - Environment variable naming the deployment service installation root
 * @property {string} env_script - Script under the root which sets up the deployment environment
 * @property {string} topology_file - Output path of the generated topology description
 * @property {string} topology_id - Id attribute of the topology document
 * @property {string} server_tool - Tool used for setup and teardown
 * @property {string} submit_tool - Tool used to submit agents
 * @property {string} info_tool - Tool used to list agents
 * @property {string} rms - Resource management system passed to the submit tool
 * @property {bool} spawn_local - Spawn one local child process per device
 * @property {int} base_port - First port assigned to compiled channels
 * @property {string} hostname - Hostname used in channel addresses
 */
type DeployConfig struct {
	RootEnv      string `mapstructure:"root_env"`
	EnvScript    string `mapstructure:"env_script"`
	TopologyFile string `mapstructure:"topology_file"`
	TopologyID   string `mapstructure:"topology_id"`
	ServerTool   string `mapstructure:"server_tool"`
	SubmitTool   string `mapstructure:"submit_tool"`
	InfoTool     string `mapstructure:"info_tool"`
	RMS          string `mapstructure:"rms"`
	SpawnLocal   bool   `mapstructure:"spawn_local"`
	BasePort     int    `mapstructure:"base_port"`
	Hostname     string `mapstructure:"hostname"`
}

// MonitorConfig controls the parent's output monitor loop.
type MonitorConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	HistorySize   int           `mapstructure:"history_size"`
	LogFilter     string        `mapstructure:"log_filter"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
	// 第一次 SIGINT 之后等待清理的时间，超时后重新发出 SIGINT；0 表示立即发出
	InterruptGrace time.Duration `mapstructure:"interrupt_grace"`
}

// DeviceConfig controls the device runtime of the child path.
type DeviceConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ProcessInterval   time.Duration `mapstructure:"process_interval"`
}

var ErrConfigNotFound = errors.New("config file not found")

type AppConfig struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Bus     BusConfig     `mapstructure:"bus"`
	Deploy  DeployConfig  `mapstructure:"deploy"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Device  DeviceConfig  `mapstructure:"device"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "console")
	v.SetDefault("bus.url", "")
	v.SetDefault("bus.subject_prefix", "flowkeeper")
	v.SetDefault("deploy.root_env", "DDS_ROOT")
	v.SetDefault("deploy.env_script", "DDS_env.sh")
	v.SetDefault("deploy.topology_file", "flowkeeper-topology.xml")
	v.SetDefault("deploy.topology_id", "flowkeeper-dataflow")
	v.SetDefault("deploy.server_tool", "dds-server")
	v.SetDefault("deploy.submit_tool", "dds-submit")
	v.SetDefault("deploy.info_tool", "dds-info")
	v.SetDefault("deploy.rms", "localhost")
	v.SetDefault("deploy.spawn_local", true)
	v.SetDefault("deploy.base_port", 22000)
	v.SetDefault("deploy.hostname", "127.0.0.1")
	v.SetDefault("monitor.poll_interval", 100*time.Millisecond)
	v.SetDefault("monitor.history_size", 1000)
	v.SetDefault("monitor.log_filter", "")
	v.SetDefault("monitor.shutdown_grace", 2*time.Second)
	v.SetDefault("monitor.interrupt_grace", 30*time.Second)
	v.SetDefault("device.heartbeat_interval", time.Second)
	v.SetDefault("device.process_interval", time.Second)
}

/**
 * Load application configuration from YAML file
 * @param {string} path - Explicit config file, empty searches "flowkeeper.yaml" in the working directory
 * @returns {*AppConfig} Loaded configuration with defaults applied
 * @returns {error} ErrConfigNotFound if an explicit file doesn't exist, or the read/decode error
 * @description
 * - Environment variables prefixed with FLOWKEEPER_ override file values (bus.url -> FLOWKEEPER_BUS_URL)
 * - A missing default config file is not an error
 */
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("FLOWKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("flowkeeper")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case path != "" && errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		case path != "" || !errors.As(err, &notFound):
			return nil, err
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return collectConfig(&cfg), nil
}

/**
 * Default configuration without reading any file or environment
 * @returns {*AppConfig} Configuration holding only default values
 */
func Default() *AppConfig {
	v := viper.New()
	setDefaults(v)
	var cfg AppConfig
	_ = v.Unmarshal(&cfg)
	return collectConfig(&cfg)
}

var Config AppConfig

func collectConfig(cfg *AppConfig) *AppConfig {
	if cfg.Monitor.HistorySize <= 0 {
		cfg.Monitor.HistorySize = 1000
	}
	if cfg.Monitor.PollInterval <= 0 {
		cfg.Monitor.PollInterval = 100 * time.Millisecond
	}
	if cfg.Device.HeartbeatInterval <= 0 {
		cfg.Device.HeartbeatInterval = time.Second
	}
	if cfg.Device.ProcessInterval <= 0 {
		cfg.Device.ProcessInterval = time.Second
	}
	if cfg.Monitor.ShutdownGrace <= 0 {
		cfg.Monitor.ShutdownGrace = 2 * time.Second
	}
	if cfg.Monitor.InterruptGrace < 0 {
		cfg.Monitor.InterruptGrace = 0
	}
	if cfg.Bus.SubjectPrefix == "" {
		cfg.Bus.SubjectPrefix = "flowkeeper"
	}
	if cfg.Deploy.RootEnv == "" {
		cfg.Deploy.RootEnv = "DDS_ROOT"
	}
	if cfg.Deploy.TopologyID == "" {
		cfg.Deploy.TopologyID = "flowkeeper-dataflow"
	}
	return cfg
}

func init() {
	cfg, err := LoadConfig("")
	if err == nil {
		Config = *cfg
	} else {
		Config = *Default()
	}
}
