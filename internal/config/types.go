package config

import "time"

// Config represents the repo-guardian.yaml configuration file.
type Config struct {
	Version          int          `yaml:"version"`
	BackupDir        string       `yaml:"backup_dir,omitempty"`
	Database         string       `yaml:"database,omitempty"`
	Report           string       `yaml:"report,omitempty"`
	Concurrency      int          `yaml:"concurrency,omitempty"`
	KeepBackups      int          `yaml:"keep_backups,omitempty"`
	OperationTimeout Duration     `yaml:"operation_timeout,omitempty"`
	Retry            Retry        `yaml:"retry,omitempty"`
	AllowedHosts     []string     `yaml:"allowed_hosts,omitempty"`
	Auth             Auth         `yaml:"auth,omitempty"`
	Log              Log          `yaml:"log,omitempty"`
	Mirror           Mirror       `yaml:"mirror,omitempty"`
	Repositories     []Repository `yaml:"repositories"`

	// dir is the directory of the file the config was loaded from.
	dir string
}

// Repository is one entry of the repositories list.
type Repository struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`
	LocalPath string `yaml:"local_path,omitempty"`
}

// Retry bounds clone and pull attempts.
type Retry struct {
	MaxAttempts int      `yaml:"max_attempts,omitempty"`
	BaseDelay   Duration `yaml:"base_delay,omitempty"`
}

// Auth configures HTTPS credentials. The token itself is never stored in
// the file; TokenEnv names the environment variable holding it.
type Auth struct {
	TokenEnv string `yaml:"token_env,omitempty"`
	Username string `yaml:"username,omitempty"`
}

// Log configures the log file.
type Log struct {
	Dir   string `yaml:"dir,omitempty"`
	Level string `yaml:"level,omitempty"`
}

// Mirror configures optional off-site copies of snapshots.
type Mirror struct {
	S3 *S3Mirror `yaml:"s3,omitempty"`
}

// S3Mirror targets an S3 or S3-compatible bucket.
type S3Mirror struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// Dir returns the directory relative paths were resolved against.
func (c *Config) Dir() string {
	return c.dir
}

// Names returns the configured repository names in file order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Repositories))
	for _, r := range c.Repositories {
		names = append(names, r.Name)
	}
	return names
}

// Duration is a time.Duration that reads and writes as "1s", "500ms" etc.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// IsZero lets omitempty drop unset durations.
func (d Duration) IsZero() bool {
	return d == 0
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
