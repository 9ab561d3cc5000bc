package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Environment variables that override the config file
const (
	EnvAMQPURI           = "AMQP_URI"
	EnvAMQPQueue         = "AMQP_QUEUE"
	EnvUploadURI         = "UPLOAD_URI"
	EnvUploadSecret      = "UPLOAD_SECRET"
	EnvRecorderDir       = "RECORDER_DIR"
	EnvRecorderOutputDir = "RECORDER_OUTPUT_DIR"
	EnvDatabaseURL       = "DATABASE_URL"
	EnvLogLevel          = "LOG_LEVEL"
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Recorder RecorderConfig `yaml:"recorder"`
	Upload   UploadConfig   `yaml:"upload"`
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// RabbitMQConfig holds broker address, queue and client settings
type RabbitMQConfig struct {
	URI        string           `yaml:"uri"`
	Queue      string           `yaml:"queue"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	Tag string `yaml:"tag"`
	// RequeueOnFailure is a pointer so an explicit false in the file
	// survives defaulting
	RequeueOnFailure *bool `yaml:"requeue_on_failure"`
}

// RecorderConfig describes the external recording program
type RecorderConfig struct {
	Dir        string        `yaml:"dir"`
	Command    string        `yaml:"command"`
	Args       []string      `yaml:"args"`
	OutputDir  string        `yaml:"output_dir"`
	OutputFile string        `yaml:"output_file"`
	Timeout    time.Duration `yaml:"timeout"`
}

// UploadConfig holds the upload destination and signing secret
type UploadConfig struct {
	URI         string        `yaml:"uri"`
	Secret      string        `yaml:"secret"`
	Placeholder string        `yaml:"placeholder"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads the configuration file, fills defaults and applies environment
// overrides. An empty path skips the file.
func Load(configPath string) (*Config, error) {
	var config Config

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnv(os.LookupEnv)
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	overrides := []struct {
		key    string
		target *string
	}{
		{EnvAMQPURI, &c.RabbitMQ.URI},
		{EnvAMQPQueue, &c.RabbitMQ.Queue},
		{EnvUploadURI, &c.Upload.URI},
		{EnvUploadSecret, &c.Upload.Secret},
		{EnvRecorderDir, &c.Recorder.Dir},
		{EnvRecorderOutputDir, &c.Recorder.OutputDir},
		{EnvDatabaseURL, &c.Database.URL},
		{EnvLogLevel, &c.Logging.Level},
	}

	for _, o := range overrides {
		if v, ok := lookup(o.key); ok && v != "" {
			*o.target = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "recording-worker"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.RabbitMQ.Connection.RetryAttempts <= 0 {
		c.RabbitMQ.Connection.RetryAttempts = 1
	}
	if c.RabbitMQ.Connection.RetryInterval <= 0 {
		c.RabbitMQ.Connection.RetryInterval = 5 * time.Second
	}
	if c.RabbitMQ.Connection.Heartbeat <= 0 {
		c.RabbitMQ.Connection.Heartbeat = 10 * time.Second
	}
	if c.RabbitMQ.Publish.RetryAttempts <= 0 {
		c.RabbitMQ.Publish.RetryAttempts = 3
	}
	if c.RabbitMQ.Publish.RetryInterval <= 0 {
		c.RabbitMQ.Publish.RetryInterval = time.Second
	}
	if c.RabbitMQ.Publish.BackoffMultiplier < 1 {
		c.RabbitMQ.Publish.BackoffMultiplier = 2
	}
	if c.RabbitMQ.Consumer.RequeueOnFailure == nil {
		requeue := true
		c.RabbitMQ.Consumer.RequeueOnFailure = &requeue
	}
	if c.Recorder.Command == "" {
		c.Recorder.Command = "node"
	}
	if len(c.Recorder.Args) == 0 {
		c.Recorder.Args = []string{"export.js"}
	}
	if c.Recorder.OutputDir == "" {
		c.Recorder.OutputDir = c.Recorder.Dir
	}
	if c.Recorder.OutputFile == "" {
		c.Recorder.OutputFile = "export.webm"
	}
	if c.Upload.Placeholder == "" {
		c.Upload.Placeholder = ":vid"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 5
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 2
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if c.Database.ConnMaxIdleTime <= 0 {
		c.Database.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout <= 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
}

// RequeueOnFailure reports whether failed pipeline runs go back to the queue
func (c *Config) RequeueOnFailure() bool {
	return c.RabbitMQ.Consumer.RequeueOnFailure == nil || *c.RabbitMQ.Consumer.RequeueOnFailure
}

// ValidateWorkerConfig checks the settings the worker cannot start without
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if c.Recorder.Dir == "" {
		return fmt.Errorf("recorder dir is required")
	}

	if c.Upload.URI == "" {
		return fmt.Errorf("upload uri is required")
	}

	if !strings.Contains(c.Upload.URI, c.Upload.Placeholder) {
		return fmt.Errorf("upload uri %q does not contain placeholder %q", c.Upload.URI, c.Upload.Placeholder)
	}

	if c.Upload.Secret == "" {
		return fmt.Errorf("upload secret is required")
	}

	if c.Recorder.Timeout < 0 || c.Upload.Timeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	if c.Database.Enabled && c.Database.URL == "" {
		return fmt.Errorf("database url is required when the run ledger is enabled")
	}

	if c.Server.Port != 0 {
		if err := validatePort("server", c.Server.Port); err != nil {
			return err
		}
	}

	return nil
}

// ValidateAPIConfig checks the settings the recordings API needs
func (c *Config) ValidateAPIConfig() error {
	if err := validatePort("server", c.Server.Port); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database url is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.URI == "" {
		return fmt.Errorf("rabbitmq uri is required")
	}

	u, err := url.Parse(c.RabbitMQ.URI)
	if err != nil || (u.Scheme != "amqp" && u.Scheme != "amqps") {
		return fmt.Errorf("invalid rabbitmq uri: must use amqp:// or amqps://")
	}

	if c.RabbitMQ.Queue == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}

func validatePort(name string, port int) error {
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("invalid %s port: %d (must be between %d and %d)", name, port, MinPort, MaxPort)
	}
	return nil
}
