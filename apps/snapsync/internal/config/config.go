// Package config builds the single Config value snapsync runs from.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot"
)

// Config is constructed once at startup and passed explicitly to every
// component.
type Config struct {
	Source    Source    `koanf:"source" yaml:"source"`
	GitHub    GitHub    `koanf:"github" yaml:"github"`
	Encoding  Encoding  `koanf:"encoding" yaml:"encoding"`
	Snapshot  Snapshot  `koanf:"snapshot" yaml:"snapshot"`
	Publish   Publish   `koanf:"publish" yaml:"publish"`
	Index     Index     `koanf:"index" yaml:"index"`
	Log       Log       `koanf:"log" yaml:"log"`
	Telemetry Telemetry `koanf:"telemetry" yaml:"telemetry"`
	Temporal  Temporal  `koanf:"temporal" yaml:"temporal"`
	Redis     Redis     `koanf:"redis" yaml:"redis"`
	Postgres  Postgres  `koanf:"postgres" yaml:"postgres"`
	Server    Server    `koanf:"server" yaml:"server"`
}

// Source is the repository directory being snapshotted.
type Source struct {
	Owner    string `koanf:"owner" yaml:"owner"`
	Repo     string `koanf:"repo" yaml:"repo"`
	Ref      string `koanf:"ref" yaml:"ref"`
	RootPath string `koanf:"root_path" yaml:"root_path"`
	// RootURL overrides the listing URL derived from owner, repo, ref and root_path.
	RootURL    string        `koanf:"root_url" yaml:"root_url,omitempty"`
	Excludes   []string      `koanf:"excludes" yaml:"excludes"`
	FetchDelay time.Duration `koanf:"fetch_delay" yaml:"fetch_delay"`
	// FetchTimeout bounds each raw-content request. Zero leaves it unbounded.
	FetchTimeout time.Duration `koanf:"fetch_timeout" yaml:"fetch_timeout"`
}

// GitHub holds API credentials. App credentials win over the token.
type GitHub struct {
	APIURL         string `koanf:"api_url" yaml:"api_url,omitempty"`
	Token          Secret `koanf:"token" yaml:"token"`
	AppID          int64  `koanf:"app_id" yaml:"app_id,omitempty"`
	InstallationID int64  `koanf:"installation_id" yaml:"installation_id,omitempty"`
	PrivateKeyPath string `koanf:"private_key_path" yaml:"private_key_path,omitempty"`
}

// Encoding configures the charset resolver.
type Encoding struct {
	Fallback      string  `koanf:"fallback" yaml:"fallback"`
	MinConfidence float64 `koanf:"min_confidence" yaml:"min_confidence"`
}

// Snapshot configures the local artifact.
type Snapshot struct {
	ArtifactPath string `koanf:"artifact_path" yaml:"artifact_path"`
	Sanitize     bool   `koanf:"sanitize" yaml:"sanitize"`
}

// Publish configures the delete and commit stages.
type Publish struct {
	Enabled       bool   `koanf:"enabled" yaml:"enabled"`
	Branch        string `koanf:"branch" yaml:"branch"`
	RepoPath      string `koanf:"repo_path" yaml:"repo_path"`
	CommitMessage string `koanf:"commit_message" yaml:"commit_message"`
}

// Index configures the vector-store stage.
type Index struct {
	Enabled      bool          `koanf:"enabled" yaml:"enabled"`
	BaseURL      string        `koanf:"base_url" yaml:"base_url"`
	APIKey       Secret        `koanf:"api_key" yaml:"api_key"`
	StoreID      string        `koanf:"store_id" yaml:"store_id,omitempty"`
	StoreName    string        `koanf:"store_name" yaml:"store_name"`
	PollInterval time.Duration `koanf:"poll_interval" yaml:"poll_interval"`
	PollTimeout  time.Duration `koanf:"poll_timeout" yaml:"poll_timeout"`
}

// Log configures pkg/logging.
type Log struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
	// File is appended to on every run. Empty disables the file sink.
	File         string `koanf:"file" yaml:"file"`
	EchoOnFinish bool   `koanf:"echo_on_finish" yaml:"echo_on_finish"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Enabled     bool   `koanf:"enabled" yaml:"enabled"`
	Endpoint    string `koanf:"endpoint" yaml:"endpoint,omitempty"`
	ServiceName string `koanf:"service_name" yaml:"service_name"`
}

// Temporal configures the durable execution backend used by serve and schedule.
type Temporal struct {
	HostPort   string `koanf:"host_port" yaml:"host_port"`
	Namespace  string `koanf:"namespace" yaml:"namespace"`
	ScheduleID string `koanf:"schedule_id" yaml:"schedule_id"`
	Cron       string `koanf:"cron" yaml:"cron"`
	// ActivityTimeout bounds one sync attempt: walk, fetch and publish.
	ActivityTimeout time.Duration `koanf:"activity_timeout" yaml:"activity_timeout"`
}

// Redis holds run history. An empty Addr disables it.
type Redis struct {
	Addr      string        `koanf:"addr" yaml:"addr"`
	Password  Secret        `koanf:"password" yaml:"password"`
	DB        int           `koanf:"db" yaml:"db"`
	Retention time.Duration `koanf:"retention" yaml:"retention"`
}

// Postgres holds the stage event log. An empty URL disables it.
type Postgres struct {
	URL Secret `koanf:"url" yaml:"url"`
}

// Server configures the HTTP API.
type Server struct {
	Port int `koanf:"port" yaml:"port"`
}

// Secret wraps strings that must not appear in logs or rendered config.
// Use Value() to access the actual secret value.
type Secret string

// String implements fmt.Stringer. Always returns a redacted value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "Secret([REDACTED])"
}

// Value returns the actual secret value.
func (s Secret) Value() string {
	return string(s)
}

// IsSet returns true if the secret has a non-empty value.
func (s Secret) IsSet() bool {
	return s != ""
}

// MarshalJSON implements json.Marshaler. Always returns a redacted value.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// MarshalText implements encoding.TextMarshaler. Always returns a redacted value.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Source.Owner == "" {
		errs = append(errs, errors.New("source.owner is required"))
	}
	if c.Source.Repo == "" {
		errs = append(errs, errors.New("source.repo is required"))
	}
	if c.Source.FetchDelay < 0 {
		errs = append(errs, errors.New("source.fetch_delay cannot be negative"))
	}
	for _, p := range c.Source.Excludes {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, errors.New("source.excludes cannot contain empty patterns"))
			break
		}
	}
	if c.Encoding.MinConfidence <= 0 || c.Encoding.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("encoding.min_confidence must be in (0,1], got %v", c.Encoding.MinConfidence))
	}
	if c.Snapshot.ArtifactPath == "" {
		errs = append(errs, errors.New("snapshot.artifact_path is required"))
	}
	if c.Publish.Enabled {
		if c.Publish.Branch == "" {
			errs = append(errs, errors.New("publish.branch is required"))
		}
		if c.Publish.RepoPath == "" {
			errs = append(errs, errors.New("publish.repo_path is required"))
		}
	}
	if c.Index.Enabled {
		if c.Index.StoreID == "" && c.Index.StoreName == "" {
			errs = append(errs, errors.New("index.store_id or index.store_name is required"))
		}
		if c.Index.PollInterval <= 0 {
			errs = append(errs, errors.New("index.poll_interval must be positive"))
		}
		if c.Index.PollTimeout < c.Index.PollInterval {
			errs = append(errs, errors.New("index.poll_timeout must be at least index.poll_interval"))
		}
	}
	if app := c.GitHub; app.AppID != 0 || app.InstallationID != 0 || app.PrivateKeyPath != "" {
		if app.AppID == 0 || app.InstallationID == 0 || app.PrivateKeyPath == "" {
			errs = append(errs, errors.New("github.app_id, github.installation_id and github.private_key_path must be set together"))
		}
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}
	if c.Temporal.ActivityTimeout <= 0 {
		errs = append(errs, errors.New("temporal.activity_timeout must be positive"))
	} else if c.Index.Enabled && c.Temporal.ActivityTimeout <= c.Index.PollTimeout {
		errs = append(errs, errors.New("temporal.activity_timeout must exceed index.poll_timeout"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	return errors.Join(errs...)
}

// WalkExcludes returns the exclusion globs for the walker: the configured
// ones, the default log exclusions, and the published artifact itself.
func (c *Config) WalkExcludes() []string {
	out := make([]string, 0, len(c.Source.Excludes)+len(snapshot.DefaultExcludes)+1)
	out = append(out, snapshot.DefaultExcludes...)
	out = append(out, c.Source.Excludes...)
	if c.Publish.RepoPath != "" {
		out = append(out, strings.TrimPrefix(c.Publish.RepoPath, "/"))
	}
	return out
}

// PublishSettings maps the publish and index sections onto the Publisher.
func (c *Config) PublishSettings() snapshot.PublishSettings {
	return snapshot.PublishSettings{
		RepoPath:      c.Publish.RepoPath,
		Branch:        c.Publish.Branch,
		CommitMessage: c.Publish.CommitMessage,
		CommitEnabled: c.Publish.Enabled,
		IndexEnabled:  c.Index.Enabled,
		StoreID:       c.Index.StoreID,
		StoreName:     c.Index.StoreName,
		PollInterval:  c.Index.PollInterval,
		PollTimeout:   c.Index.PollTimeout,
	}
}
