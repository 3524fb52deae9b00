package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces environment overrides.
const EnvPrefix = "SNAPSYNC_"

const maxConfigFileSize = 1024 * 1024

// defaults is loaded first; every later layer overrides it.
const defaults = `
source:
  ref: main
  root_path: ""
  excludes: []
  fetch_delay: 1s
  fetch_timeout: 0s
encoding:
  fallback: utf-8
  min_confidence: 0.5
snapshot:
  artifact_path: snapshot.json
  sanitize: false
publish:
  enabled: true
  branch: main
  repo_path: snapshot.json
  commit_message: ""
index:
  enabled: true
  base_url: https://api.openai.com/v1
  store_name: snapsync
  poll_interval: 5s
  poll_timeout: 10m
log:
  level: info
  format: json
  file: snapsync.log
  echo_on_finish: false
telemetry:
  enabled: false
  service_name: snapsync
temporal:
  host_port: localhost:7233
  namespace: default
  schedule_id: snapsync-nightly
  cron: "0 6 * * *"
  activity_timeout: 2h
redis:
  addr: ""
  db: 0
  retention: 720h
server:
  port: 8080
`

// fallbackEnv maps bare, conventional variable names onto config keys. They
// apply only when neither the file nor a SNAPSYNC_ variable set the key.
var fallbackEnv = map[string]string{
	"GITHUB_TOKEN":   "github.token",
	"OPENAI_API_KEY": "index.api_key",
	"POSTGRES_URL":   "postgres.url",
	"LOG_LEVEL":      "log.level",
}

// Load builds the Config.
//
// Precedence (highest to lowest):
//  1. SNAPSYNC_-prefixed environment variables (SNAPSYNC_SOURCE_ROOT_PATH -> source.root_path)
//  2. The YAML file at path, when path is non-empty
//  3. Bare fallbacks: GITHUB_TOKEN, OPENAI_API_KEY, POSTGRES_URL, LOG_LEVEL
//  4. Built-in defaults
//
// The result is validated before it is returned.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider([]byte(defaults)), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	for name, key := range fallbackEnv {
		if v := os.Getenv(name); v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, fmt.Errorf("apply %s: %w", name, err)
			}
		}
	}

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// envKey maps SNAPSYNC_SECTION_FIELD_NAME to section.field_name: the first
// underscore separates the section, later ones stay in the field name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return content, nil
}
