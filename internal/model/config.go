package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nhle/imap2news/internal/source/email"
)

// ConfigError reports configuration that prevents a run from starting.
// It is always raised before any network activity.
type ConfigError struct {
	Key     string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Message)
}

// IsConfigError reports whether err (or any error in its chain) is a
// ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// Config is the run configuration.
type Config struct {
	// Server is the IMAP host name.
	Server string `mapstructure:"server" yaml:"server"`

	// Port is the IMAP port. A port from the credential file overrides
	// the default but not an explicitly configured value.
	Port int `mapstructure:"port" yaml:"port"`

	// User is the IMAP login.
	User string `mapstructure:"user" yaml:"user"`

	// TLS is one of "tls", "starttls" or "insecure".
	TLS string `mapstructure:"tls" yaml:"tls"`

	// CredentialsFile is a netrc-style file holding the password.
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`

	// ConfigDir must exist; it holds the mapping file by default.
	ConfigDir string `mapstructure:"config_dir" yaml:"config_dir"`

	// MappingFile maps list addresses to newsgroups.
	MappingFile string `mapstructure:"mapping_file" yaml:"mapping_file"`

	// SpoolDir is the news spool root.
	SpoolDir string `mapstructure:"spool_dir" yaml:"spool_dir"`

	// IncomingDir is the delivery directory, relative to SpoolDir
	// unless absolute.
	IncomingDir string `mapstructure:"incoming_dir" yaml:"incoming_dir"`

	// Hostname goes into Path and synthesized Message-Id headers.
	Hostname string `mapstructure:"hostname" yaml:"hostname"`

	// Trash, when set, receives a copy of every message before it is
	// marked deleted.
	Trash string `mapstructure:"trash" yaml:"trash"`

	// AlwaysTo is treated as an additional To recipient of every message.
	AlwaysTo string `mapstructure:"always_to" yaml:"always_to"`

	// Journal is the sqlite transfer journal; empty disables it.
	Journal string `mapstructure:"journal" yaml:"journal"`

	// Mailboxes are processed in order.
	Mailboxes []string `mapstructure:"mailboxes" yaml:"mailboxes"`

	DryRun   bool `mapstructure:"dry_run" yaml:"dry_run"`
	Reject   bool `mapstructure:"reject" yaml:"reject"`
	CopyOnly bool `mapstructure:"copy_only" yaml:"copy_only"`
	Expunge  bool `mapstructure:"expunge" yaml:"expunge"`

	Verbose   bool   `mapstructure:"verbose" yaml:"verbose"`
	Quiet     bool   `mapstructure:"quiet" yaml:"quiet"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	portDefaulted bool
}

// DefaultPort is the IMAPS port used when no port is configured.
const DefaultPort = 993

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/imap2news/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.yaml")
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "imap2news")
}

func defaultCredentialsFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".netrc"
	}
	return filepath.Join(home, ".netrc")
}

// setDefaults registers every key so environment variables resolve
// during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server", "")
	v.SetDefault("user", "")
	v.SetDefault("tls", "tls")
	v.SetDefault("credentials_file", defaultCredentialsFile())
	v.SetDefault("config_dir", defaultConfigDir())
	v.SetDefault("mapping_file", "")
	v.SetDefault("spool_dir", "/var/spool/news")
	v.SetDefault("incoming_dir", "in.coming")
	v.SetDefault("hostname", "")
	v.SetDefault("trash", "")
	v.SetDefault("always_to", "")
	v.SetDefault("journal", "")
	v.SetDefault("mailboxes", []string{})
	v.SetDefault("dry_run", false)
	v.SetDefault("reject", false)
	v.SetDefault("copy_only", false)
	v.SetDefault("expunge", false)
	v.SetDefault("verbose", false)
	v.SetDefault("quiet", false)
	v.SetDefault("log_format", "text")
}

// BindFlags binds every flag in fs to the viper key of the same name
// with dashes replaced by underscores.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("binding flag --%s: %w", f.Name, err)
		}
	})
	return bindErr
}

// LoadConfig resolves the configuration from defaults, the YAML file at
// path, IMAP2NEWS_* environment variables and any flags already bound
// to v. A missing file is only an error when required is set.
func LoadConfig(v *viper.Viper, path string, required bool) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("IMAP2NEWS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("port")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
			switch {
			case missing && !required:
			case missing:
				return nil, &ConfigError{Key: "config", Message: fmt.Sprintf("file %s not found", path)}
			default:
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyDerived()
	return cfg, nil
}

// applyDerived fills values that depend on other keys.
func (c *Config) applyDerived() {
	if c.Port == 0 {
		c.Port = DefaultPort
		c.portDefaulted = true
	}

	c.ConfigDir = expandHome(c.ConfigDir)
	c.CredentialsFile = expandHome(c.CredentialsFile)
	c.SpoolDir = expandHome(c.SpoolDir)
	c.Journal = expandHome(c.Journal)
	c.IncomingDir = expandHome(c.IncomingDir)

	if c.MappingFile == "" {
		c.MappingFile = filepath.Join(c.ConfigDir, "groups")
	}
	c.MappingFile = expandHome(c.MappingFile)

	if c.Hostname == "" {
		if h, err := os.Hostname(); err == nil {
			c.Hostname = h
		} else {
			c.Hostname = "localhost"
		}
	}
}

// IncomingPath returns the absolute delivery directory.
func (c *Config) IncomingPath() string {
	if filepath.IsAbs(c.IncomingDir) {
		return c.IncomingDir
	}
	return filepath.Join(c.SpoolDir, c.IncomingDir)
}

// ApplyCredentialPort uses port from the credential file when no port
// was configured explicitly.
func (c *Config) ApplyCredentialPort(port string) error {
	if port == "" || !c.portDefaulted {
		return nil
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return &ConfigError{Key: "port", Message: fmt.Sprintf("invalid credential file port %q", port)}
	}
	c.Port = n
	c.portDefaulted = false
	return nil
}

// PortString returns the port as a string.
func (c *Config) PortString() string {
	return strconv.Itoa(c.Port)
}

// Validate checks the configuration before anything connects to the
// server. Every failure is a *ConfigError.
func (c *Config) Validate() error {
	if len(c.Mailboxes) == 0 {
		return &ConfigError{Key: "mailboxes", Message: "no mailboxes given"}
	}
	if c.Server == "" {
		return &ConfigError{Key: "server", Message: "not set"}
	}
	if c.User == "" {
		return &ConfigError{Key: "user", Message: "not set"}
	}
	if !email.TLSMode(c.TLS).Valid() {
		return &ConfigError{
			Key:     "tls",
			Message: fmt.Sprintf("unknown mode %q (want tls, starttls or insecure)", c.TLS),
		}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &ConfigError{Key: "port", Message: fmt.Sprintf("out of range: %d", c.Port)}
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return &ConfigError{Key: "log_format", Message: fmt.Sprintf("unknown format %q", c.LogFormat)}
	}

	if err := requireDir("config_dir", c.ConfigDir); err != nil {
		return err
	}
	if err := requireFile("mapping_file", c.MappingFile); err != nil {
		return err
	}
	if err := requireDir("spool_dir", c.SpoolDir); err != nil {
		return err
	}
	return requireDir("incoming_dir", c.IncomingPath())
}

func requireDir(key, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &ConfigError{Key: key, Message: err.Error()}
	}
	if !info.IsDir() {
		return &ConfigError{Key: key, Message: fmt.Sprintf("%s is not a directory", path)}
	}
	return nil
}

func requireFile(key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &ConfigError{Key: key, Message: err.Error()}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &ConfigError{Key: key, Message: err.Error()}
	}
	if info.IsDir() {
		return &ConfigError{Key: key, Message: fmt.Sprintf("%s is a directory", path)}
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
