// Package config loads edgeio settings from TOML or YAML files.
//
// Files overlay the defaults key by key: a key that is absent keeps its
// default, a key that is present replaces it even when empty.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/edgeio/internal/protocol/session"
	"gopkg.in/yaml.v3"
)

const (
	EnvToken    = "EDGEIO_TOKEN"
	EnvEndpoint = "EDGEIO_ENDPOINT"
)

var (
	ErrUnsupportedFormat = errors.New("config: unsupported format")
	ErrInvalidConfig     = errors.New("config: invalid")
)

// Config is the resolved runtime configuration of one edgeio process.
type Config struct {
	Session           session.Config
	AdminAddr         string
	AdminToken        string
	LogLevel          string // empty keeps the logging profile's level
	HostVersion       string
	HeartbeatInterval time.Duration
}

func Default() Config {
	return Config{
		Session:           session.DefaultConfig(),
		HostVersion:       "0.0.0",
		HeartbeatInterval: 30 * time.Second,
	}
}

// fileConfig is the on-disk key mapping shared by both formats.
type fileConfig struct {
	Endpoint              string  `toml:"endpoint" yaml:"endpoint"`
	Token                 string  `toml:"token" yaml:"token"`
	Subprotocol           string  `toml:"subprotocol" yaml:"subprotocol"`
	HostName              string  `toml:"host_name" yaml:"host_name"`
	HostVersion           string  `toml:"host_version" yaml:"host_version"`
	SecurityMode          string  `toml:"security_mode" yaml:"security_mode"`
	HandshakeTimeout      string  `toml:"handshake_timeout" yaml:"handshake_timeout"`
	WriteTimeout          string  `toml:"write_timeout" yaml:"write_timeout"`
	KeepAlive             string  `toml:"keep_alive" yaml:"keep_alive"`
	BackoffInitial        string  `toml:"backoff_initial" yaml:"backoff_initial"`
	BackoffMax            string  `toml:"backoff_max" yaml:"backoff_max"`
	BackoffMultiplier     float64 `toml:"backoff_multiplier" yaml:"backoff_multiplier"`
	BackoffJitter         bool    `toml:"backoff_jitter" yaml:"backoff_jitter"`
	TLSCAFile             string  `toml:"tls_ca_file" yaml:"tls_ca_file"`
	TLSCertFile           string  `toml:"tls_cert_file" yaml:"tls_cert_file"`
	TLSKeyFile            string  `toml:"tls_key_file" yaml:"tls_key_file"`
	TLSServerName         string  `toml:"tls_server_name" yaml:"tls_server_name"`
	TLSInsecureSkipVerify bool    `toml:"tls_insecure_skip_verify" yaml:"tls_insecure_skip_verify"`
	AdminAddr             string  `toml:"admin_addr" yaml:"admin_addr"`
	AdminToken            string  `toml:"admin_token" yaml:"admin_token"`
	LogLevel              string  `toml:"log_level" yaml:"log_level"`
	HeartbeatInterval     string  `toml:"heartbeat_interval" yaml:"heartbeat_interval"`
}

// definedFunc reports whether a top-level key was present in the file.
type definedFunc func(key string) bool

// Load reads path, overlays it on Default, applies environment overrides
// and validates the result. The format follows the file extension.
func Load(path string) (Config, error) {
	raw, defined, err := decodeFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := overlay(Default(), raw, defined)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.Session.TLS = resolveTLSPaths(cfg.Session.TLS, filepath.Dir(path))
	cfg = ApplyEnv(cfg, os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string) (fileConfig, definedFunc, error) {
	var raw fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return fileConfig{}, nil, fmt.Errorf("load config %s: %w", path, err)
		}
		return raw, func(key string) bool { return meta.IsDefined(key) }, nil
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fileConfig{}, nil, fmt.Errorf("load config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fileConfig{}, nil, fmt.Errorf("load config %s: %w", path, err)
		}
		keys := map[string]any{}
		if err := yaml.Unmarshal(data, &keys); err != nil {
			return fileConfig{}, nil, fmt.Errorf("load config %s: %w", path, err)
		}
		return raw, func(key string) bool {
			_, ok := keys[key]
			return ok
		}, nil
	default:
		return fileConfig{}, nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func overlay(cfg Config, raw fileConfig, defined definedFunc) (Config, error) {
	s := &cfg.Session
	if defined("endpoint") {
		s.Endpoint = strings.TrimSpace(raw.Endpoint)
	}
	if defined("token") {
		s.Token = strings.TrimSpace(raw.Token)
	}
	if defined("subprotocol") {
		s.Subprotocol = strings.TrimSpace(raw.Subprotocol)
	}
	if defined("host_name") {
		s.HostName = strings.TrimSpace(raw.HostName)
	}
	if defined("host_version") {
		cfg.HostVersion = strings.TrimSpace(raw.HostVersion)
	}
	if defined("security_mode") {
		s.SecurityMode = session.SecurityMode(strings.ToLower(strings.TrimSpace(raw.SecurityMode)))
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"handshake_timeout", raw.HandshakeTimeout, &s.HandshakeTimeout},
		{"write_timeout", raw.WriteTimeout, &s.WriteTimeout},
		{"keep_alive", raw.KeepAlive, &s.KeepAlive},
		{"backoff_initial", raw.BackoffInitial, &s.Backoff.InitialDelay},
		{"backoff_max", raw.BackoffMax, &s.Backoff.MaxDelay},
		{"heartbeat_interval", raw.HeartbeatInterval, &cfg.HeartbeatInterval},
	}
	for _, d := range durations {
		if !defined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if defined("backoff_multiplier") {
		s.Backoff.Multiplier = raw.BackoffMultiplier
	}
	if defined("backoff_jitter") {
		s.Backoff.Jitter = raw.BackoffJitter
	}
	if defined("tls_ca_file") {
		s.TLS.CAFile = strings.TrimSpace(raw.TLSCAFile)
	}
	if defined("tls_cert_file") {
		s.TLS.CertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if defined("tls_key_file") {
		s.TLS.KeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}
	if defined("tls_server_name") {
		s.TLS.ServerName = strings.TrimSpace(raw.TLSServerName)
	}
	if defined("tls_insecure_skip_verify") {
		s.TLS.InsecureSkipVerify = raw.TLSInsecureSkipVerify
	}
	if defined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if defined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if defined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	return cfg, nil
}

// resolveTLSPaths makes relative TLS file paths relative to the config
// file's directory.
func resolveTLSPaths(t session.TLSConfig, dir string) session.TLSConfig {
	for _, p := range []*string{&t.CAFile, &t.CertFile, &t.KeyFile} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	return t
}

// ApplyEnv overrides the token and endpoint from the environment. Empty
// values are ignored.
func ApplyEnv(cfg Config, lookup func(string) (string, bool)) Config {
	if v, ok := lookup(EnvToken); ok && strings.TrimSpace(v) != "" {
		cfg.Session.Token = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvEndpoint); ok && strings.TrimSpace(v) != "" {
		cfg.Session.Endpoint = strings.TrimSpace(v)
	}
	return cfg
}

// Validate checks everything that can be checked before a token is known.
func (c Config) Validate() error {
	if c.HeartbeatInterval < 0 {
		return fmt.Errorf("%w: heartbeat_interval must not be negative", ErrInvalidConfig)
	}
	if c.Session.Backoff.Multiplier != 0 && c.Session.Backoff.Multiplier < 1 {
		return fmt.Errorf("%w: backoff_multiplier must be at least 1", ErrInvalidConfig)
	}
	if err := c.Session.WithDefaults().ValidateClientTransport(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
