package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wardenhq/warden/internal/diagnostics"
	"github.com/wardenhq/warden/internal/logger"
	"github.com/wardenhq/warden/internal/process"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	LogLevel    string        `toml:"log_level" mapstructure:"log_level"`
	Env         []string      `toml:"env" mapstructure:"env"`
	EnvFiles    []string      `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv    bool          `toml:"use_os_env" mapstructure:"use_os_env"`
	Log         *LogConfig    `toml:"log" mapstructure:"log"`
	Store       *StoreConfig  `toml:"store" mapstructure:"store"`
	History     *SinkConfig   `toml:"history" mapstructure:"history"`
	Server      *ServerConfig `toml:"server" mapstructure:"server"`
	Diagnostics *DiagConfig   `toml:"diagnostics" mapstructure:"diagnostics"`
	Processes   []ProcConfig  `toml:"processes" mapstructure:"processes"`
	Checks      []CheckConfig `toml:"checks" mapstructure:"checks"`
}

type LogConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	Stdout     string `toml:"stdout" mapstructure:"stdout"`
	Stderr     string `toml:"stderr" mapstructure:"stderr"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Type string `toml:"type" mapstructure:"type"` // "sqlite" or "postgres"
	Path string `toml:"path" mapstructure:"path"` // sqlite file path
	DSN  string `toml:"dsn" mapstructure:"dsn"`   // postgres DSN
}

// SinkConfig configures the optional ClickHouse history sink.
type SinkConfig struct {
	ClickHouseAddr string `toml:"clickhouse_addr" mapstructure:"clickhouse_addr"`
	Database       string `toml:"database" mapstructure:"database"`
	Username       string `toml:"username" mapstructure:"username"`
	Password       string `toml:"password" mapstructure:"password"`
	Table          string `toml:"table" mapstructure:"table"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type DiagConfig struct {
	ProbeTimeout time.Duration `toml:"probe_timeout" mapstructure:"probe_timeout"`
}

type ProcConfig struct {
	Name          string        `toml:"name" mapstructure:"name"`
	Command       string        `toml:"command" mapstructure:"command"`
	WorkDir       string        `toml:"workdir" mapstructure:"workdir"`
	Env           []string      `toml:"env" mapstructure:"env"`
	MemoryLimitMB uint64        `toml:"memory_limit_mb" mapstructure:"memory_limit_mb"`
	MaxRestarts   int           `toml:"max_restarts" mapstructure:"max_restarts"`
	Window        time.Duration `toml:"window" mapstructure:"window"`
	MinUptime     time.Duration `toml:"min_uptime" mapstructure:"min_uptime"`
	RestartDelay  time.Duration `toml:"restart_delay" mapstructure:"restart_delay"`
	Log           *LogConfig    `toml:"log" mapstructure:"log"`
}

// CheckConfig declares one readiness check. Credential shape rules are
// deployment data, never hard-coded per dependency.
type CheckConfig struct {
	Name     string       `toml:"name" mapstructure:"name"`
	Key      string       `toml:"key" mapstructure:"key"`
	NonEmpty bool         `toml:"non_empty" mapstructure:"non_empty"`
	Prefix   string       `toml:"prefix" mapstructure:"prefix"`
	MinLen   int          `toml:"min_len" mapstructure:"min_len"`
	Probe    *ProbeConfig `toml:"probe" mapstructure:"probe"`
}

type ProbeConfig struct {
	URL        string `toml:"url" mapstructure:"url"`
	Method     string `toml:"method" mapstructure:"method"`
	AuthHeader string `toml:"auth_header" mapstructure:"auth_header"`
	AuthScheme string `toml:"auth_scheme" mapstructure:"auth_scheme"`
}

// Config is the fully validated result of loading a warden TOML file.
type Config struct {
	LogLevel     string
	GlobalEnv    []string
	Log          *LogConfig
	Store        *StoreConfig
	History      *SinkConfig
	Server       *ServerConfig
	ProbeTimeout time.Duration
	Specs        []process.Spec
	Checks       []diagnostics.CheckSpec
}

// Load reads and validates the TOML config at path. Malformed process or
// check specs are fatal here, before anything is launched or probed.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel: fc.LogLevel,
		Log:      fc.Log,
		Store:    fc.Store,
		History:  fc.History,
		Server:   fc.Server,
	}
	if fc.Diagnostics != nil {
		cfg.ProbeTimeout = fc.Diagnostics.ProbeTimeout
	}

	globalEnv, err := composeGlobalEnv(fc)
	if err != nil {
		return nil, err
	}
	cfg.GlobalEnv = globalEnv

	specs, err := buildSpecs(fc)
	if err != nil {
		return nil, err
	}
	cfg.Specs = specs

	checks, err := buildChecks(fc)
	if err != nil {
		return nil, err
	}
	cfg.Checks = checks
	return cfg, nil
}

func buildSpecs(fc FileConfig) ([]process.Spec, error) {
	seen := make(map[string]struct{}, len(fc.Processes))
	out := make([]process.Spec, 0, len(fc.Processes))
	for _, pc := range fc.Processes {
		if _, dup := seen[pc.Name]; dup {
			return nil, fmt.Errorf("duplicate process name %q", pc.Name)
		}
		seen[pc.Name] = struct{}{}
		s := process.Spec{
			Name:        pc.Name,
			Command:     pc.Command,
			WorkDir:     pc.WorkDir,
			Env:         pc.Env,
			MemoryLimit: pc.MemoryLimitMB * 1024 * 1024,
			Policy: process.RestartPolicy{
				MaxRestarts:  pc.MaxRestarts,
				Window:       pc.Window,
				MinUptime:    pc.MinUptime,
				RestartDelay: pc.RestartDelay,
			},
			Log: mergeLog(fc.Log, pc.Log),
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func buildChecks(fc FileConfig) ([]diagnostics.CheckSpec, error) {
	out := make([]diagnostics.CheckSpec, 0, len(fc.Checks))
	for _, cc := range fc.Checks {
		c := diagnostics.CheckSpec{
			Name: cc.Name,
			Key:  cc.Key,
			Rule: diagnostics.Rule{
				NonEmpty: cc.NonEmpty,
				Prefix:   cc.Prefix,
				MinLen:   cc.MinLen,
			},
		}
		if cc.Probe != nil {
			c.Probe = &diagnostics.Probe{
				URL:        cc.Probe.URL,
				Method:     cc.Probe.Method,
				AuthHeader: cc.Probe.AuthHeader,
				AuthScheme: cc.Probe.AuthScheme,
			}
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// mergeLog applies top-level log defaults, then per-process overrides.
func mergeLog(top, proc *LogConfig) logger.Config {
	var lc logger.Config
	if top != nil {
		lc = logger.Config{
			Dir:        top.Dir,
			StdoutPath: top.Stdout,
			StderrPath: top.Stderr,
			MaxSizeMB:  top.MaxSizeMB,
			MaxBackups: top.MaxBackups,
			MaxAgeDays: top.MaxAgeDays,
			Compress:   top.Compress,
		}
	}
	if proc != nil {
		if proc.Dir != "" {
			lc.Dir = proc.Dir
		}
		if proc.Stdout != "" {
			lc.StdoutPath = proc.Stdout
		}
		if proc.Stderr != "" {
			lc.StderrPath = proc.Stderr
		}
		if proc.MaxSizeMB != 0 {
			lc.MaxSizeMB = proc.MaxSizeMB
		}
		if proc.MaxBackups != 0 {
			lc.MaxBackups = proc.MaxBackups
		}
		if proc.MaxAgeDays != 0 {
			lc.MaxAgeDays = proc.MaxAgeDays
		}
		if proc.Compress {
			lc.Compress = true
		}
	}
	return lc
}

// composeGlobalEnv merges env sources. Precedence: OS env (when enabled)
// provides base; then env_files contents; then the top-level env list
// overrides last.
func composeGlobalEnv(fc FileConfig) ([]string, error) {
	m := make(map[string]string)
	if fc.UseOSEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				m[kv[:i]] = kv[i+1:]
			}
		}
	}
	for _, p := range fc.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range fc.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// Snapshot builds the diagnostics configuration snapshot from the composed
// global environment.
func (c *Config) Snapshot() diagnostics.Snapshot {
	snap := make(diagnostics.Snapshot, len(c.GlobalEnv))
	for _, kv := range c.GlobalEnv {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			snap[kv[:i]] = kv[i+1:]
		}
	}
	return snap
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	// Mitigate G304: sanitize user-provided path by cleaning it before use.
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}
