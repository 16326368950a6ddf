// Package config loads the YAML configuration of a group chat client.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvAccessToken overrides server.access_token when set.
const EnvAccessToken = "GROUPCHAT_ACCESS_TOKEN"

// ErrInvalidConfig is wrapped by every validation error.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the file configuration.
type Config struct {
	Account Account `yaml:"account"`
	Server  Server  `yaml:"server"`
	Send    Send    `yaml:"send"`
	Highway Highway `yaml:"highway"`
	Logging Logging `yaml:"logging"`
}

// Account identifies the sending account.
type Account struct {
	ID   int64  `yaml:"id"`
	Nick string `yaml:"nick"`
}

// Server holds the WebSocket connection settings.
type Server struct {
	URL            string        `yaml:"url"`
	AccessToken    string        `yaml:"access_token"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Send holds pipeline timeouts.
type Send struct {
	SequenceTimeout time.Duration `yaml:"sequence_timeout"`
	QuoteTimeout    time.Duration `yaml:"quote_timeout"`
}

// Highway holds image upload settings.
type Highway struct {
	ChunkSize   int           `yaml:"chunk_size"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// Logging selects the log level and format.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with every optional value set.
func Default() *Config {
	return &Config{
		Server: Server{
			DialTimeout:    10 * time.Second,
			RequestTimeout: 8 * time.Second,
		},
		Send: Send{
			SequenceTimeout: 3 * time.Second,
			QuoteTimeout:    3 * time.Second,
		},
		Highway: Highway{
			ChunkSize:   8192,
			DialTimeout: 5 * time.Second,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and validates the YAML file at path. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults, applies environment overrides and
// validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	if token, ok := os.LookupEnv(EnvAccessToken); ok {
		cfg.Server.AccessToken = token
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Account.ID <= 0 {
		errs = append(errs, errors.New("account.id must be positive"))
	}
	if c.Server.URL == "" {
		errs = append(errs, errors.New("server.url is required"))
	} else if u, err := url.Parse(c.Server.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, fmt.Errorf("server.url %q must be a ws:// or wss:// url", c.Server.URL))
	}
	if c.Server.DialTimeout <= 0 || c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server timeouts must be positive"))
	}
	if c.Send.SequenceTimeout <= 0 || c.Send.QuoteTimeout <= 0 {
		errs = append(errs, errors.New("send timeouts must be positive"))
	}
	if c.Highway.ChunkSize <= 0 || c.Highway.ChunkSize > 1<<20 {
		errs = append(errs, fmt.Errorf("highway.chunk_size %d out of range (1..1048576)", c.Highway.ChunkSize))
	}
	if c.Highway.DialTimeout <= 0 {
		errs = append(errs, errors.New("highway.dial_timeout must be positive"))
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		errs = append(errs, fmt.Errorf("logging.format %q must be text or json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ApplyLogging configures logger from the logging section. A nil logger
// configures the logrus standard logger.
func (c *Config) ApplyLogging(logger *logrus.Logger) error {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	logger.SetLevel(level)

	switch c.Logging.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
