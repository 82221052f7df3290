package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// layout creates a config dir with a mapping file and a spool with an
// incoming directory.
func layout(t *testing.T) (configDir, spoolDir string) {
	t.Helper()
	root := t.TempDir()

	configDir = filepath.Join(root, "etc")
	spoolDir = filepath.Join(root, "spool")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(spoolDir, "in.coming"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(configDir, "groups"),
		[]byte("c++std-core@accu.org wg21.c++.core\n"),
		0o644,
	))
	return configDir, spoolDir
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"), false)
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "tls", cfg.TLS)
	assert.Equal(t, "/var/spool/news", cfg.SpoolDir)
	assert.Equal(t, "/var/spool/news/in.coming", cfg.IncomingPath())
	assert.Equal(t, filepath.Join(cfg.ConfigDir, "groups"), cfg.MappingFile)
	assert.NotEmpty(t, cfg.Hostname)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, cfg.Mailboxes)
}

func TestLoadConfigRequiredFileMissing(t *testing.T) {
	_, err := LoadConfig(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"), true)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := writeYAML(t, `
server: imap.example.org
user: news
port: 1993
trash: Trash
mailboxes: [INBOX, lists]
dry_run: true
hostname: news.example.org
`)
	t.Setenv("IMAP2NEWS_USER", "env-user")
	t.Setenv("IMAP2NEWS_TRASH", "Env-Trash")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("trash", "", "")
	fs.Bool("dry-run", false, "")
	fs.Bool("copy-only", false, "")
	require.NoError(t, fs.Parse([]string{"--trash", "Flag-Trash", "--copy-only"}))

	v := viper.New()
	require.NoError(t, BindFlags(v, fs))

	cfg, err := LoadConfig(v, path, true)
	require.NoError(t, err)

	assert.Equal(t, "imap.example.org", cfg.Server)
	assert.Equal(t, "env-user", cfg.User)
	assert.Equal(t, "Flag-Trash", cfg.Trash)
	assert.Equal(t, 1993, cfg.Port)
	assert.Equal(t, []string{"INBOX", "lists"}, cfg.Mailboxes)
	assert.True(t, cfg.DryRun)
	assert.True(t, cfg.CopyOnly)
	assert.Equal(t, "news.example.org", cfg.Hostname)
}

func TestLoadConfigExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := writeYAML(t, `
spool_dir: ~/spool
incoming_dir: ~/news/in
journal: ~/journal.db
`)
	cfg, err := LoadConfig(viper.New(), path, true)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "spool"), cfg.SpoolDir)
	assert.Equal(t, filepath.Join(home, "news", "in"), cfg.IncomingDir)
	assert.Equal(t, filepath.Join(home, "news", "in"), cfg.IncomingPath())
	assert.Equal(t, filepath.Join(home, "journal.db"), cfg.Journal)
}

func TestApplyCredentialPort(t *testing.T) {
	cfg := &Config{}
	cfg.applyDerived()

	require.NoError(t, cfg.ApplyCredentialPort("1143"))
	assert.Equal(t, 1143, cfg.Port)

	// An explicit port is not overridden.
	cfg = &Config{Port: 143}
	cfg.applyDerived()
	require.NoError(t, cfg.ApplyCredentialPort("1143"))
	assert.Equal(t, 143, cfg.Port)

	cfg = &Config{}
	cfg.applyDerived()
	assert.True(t, IsConfigError(cfg.ApplyCredentialPort("imap")))
}

func TestValidate(t *testing.T) {
	configDir, spoolDir := layout(t)

	valid := func() *Config {
		cfg := &Config{
			Server:      "imap.example.org",
			User:        "news",
			TLS:         "tls",
			ConfigDir:   configDir,
			SpoolDir:    spoolDir,
			IncomingDir: "in.coming",
			Mailboxes:   []string{"INBOX"},
			LogFormat:   "text",
		}
		cfg.applyDerived()
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"no mailboxes", func(c *Config) { c.Mailboxes = nil }, "mailboxes"},
		{"no server", func(c *Config) { c.Server = "" }, "server"},
		{"no user", func(c *Config) { c.User = "" }, "user"},
		{"bad tls", func(c *Config) { c.TLS = "ssl" }, "tls"},
		{"bad port", func(c *Config) { c.Port = 70000 }, "port"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"missing config dir", func(c *Config) { c.ConfigDir = filepath.Join(configDir, "nope") }, "config_dir"},
		{"missing mapping file", func(c *Config) { c.MappingFile = filepath.Join(configDir, "nope") }, "mapping_file"},
		{"mapping file is a dir", func(c *Config) { c.MappingFile = configDir }, "mapping_file"},
		{"missing spool dir", func(c *Config) { c.SpoolDir = filepath.Join(spoolDir, "nope") }, "spool_dir"},
		{"missing incoming dir", func(c *Config) { c.IncomingDir = "out.going" }, "incoming_dir"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tc.key, cfgErr.Key)
		})
	}
}
