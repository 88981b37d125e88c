package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgelogd/internal/routing"
)

const sample = `
log_level: debug
remote_log_dir: /var/log/edge
local_staging_root: /data/staging
final_archive_root: /data/raw_logs
interval_seconds: 60
command_timeout: 5s
folder_mapping:
  - prefix: grpc
    folder: grpc
  - prefix: redis
    folder: redis
  - prefix: message
    folder: message
work_folders: [grpc, redis]
servers:
  username: edge
  password: $(EDGELOGD_TEST_PASSWORD)
  hosts:
    - 10.0.0.1
    - 10.0.0.2
journal: /data/journal.db
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "edgelogd.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_File(t *testing.T) {
	t.Setenv("EDGELOGD_TEST_PASSWORD", "s3cret")

	cfg, err := Load(writeConfig(t, sample), nil)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/var/log/edge", cfg.RemoteLogDir)
	assert.Equal(t, "s3cret", cfg.Servers.Password)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Servers.Hosts)
	assert.Equal(t, 60*time.Second, cfg.Interval())
	assert.Equal(t, 5*time.Second, cfg.CommandTimeout)
	assert.Equal(t, "/data/journal.db", cfg.Journal)

	// defaults survive a partial file
	assert.Equal(t, "bak_logs", cfg.BackupTreeName)
	assert.True(t, cfg.PerHostDirs)
	assert.Equal(t, 1, cfg.Retries)
	assert.Equal(t, 10*time.Minute, cfg.TransferTimeout)
	assert.Equal(t, 22, cfg.Servers.Port)
	assert.False(t, cfg.Offsite.Enabled())
}

func TestLoad_MappingKeepsOrder(t *testing.T) {
	t.Setenv("EDGELOGD_TEST_PASSWORD", "x")

	cfg, err := Load(writeConfig(t, sample), nil)
	require.NoError(t, err)

	assert.Equal(t, routing.FolderMapping{
		{Prefix: "grpc", Folder: "grpc"},
		{Prefix: "redis", Folder: "redis"},
		{Prefix: "message", Folder: "message"},
	}, cfg.Mapping())
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	t.Setenv("EDGELOGD_TEST_PASSWORD", "x")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Parse([]string{"--interval", "5", "--host", "10.9.9.9", "--log-level", "warn", "--metrics-addr", "", "--once"}))

	cfg, err := Load(writeConfig(t, sample), flags)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.IntervalSeconds)
	assert.Equal(t, []string{"10.9.9.9"}, cfg.Servers.Hosts)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Empty(t, cfg.MetricsAddr)
	assert.True(t, cfg.Once)
	assert.Equal(t, "/var/log/edge", cfg.RemoteLogDir, "unchanged flags keep file values")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.RemoteLogDir = "/var/log/edge"
		cfg.LocalStagingRoot = "/data/staging"
		cfg.FinalArchiveRoot = "/data/raw_logs"
		cfg.FolderMapping = []FolderRule{{Prefix: "grpc", Folder: "grpc"}}
		cfg.WorkFolders = []string{"grpc"}
		cfg.Servers.Username = "edge"
		cfg.Servers.Password = "pw"
		cfg.Servers.Hosts = []string{"10.0.0.1"}
		return cfg
	}
	require.NoError(t, valid().validate())

	tests := map[string]func(c *Config){
		"no remote dir":      func(c *Config) { c.RemoteLogDir = "" },
		"no staging root":    func(c *Config) { c.LocalStagingRoot = "" },
		"no archive root":    func(c *Config) { c.FinalArchiveRoot = "" },
		"backup equals root": func(c *Config) { c.BackupTreeName = "raw_logs" },
		"no hosts":           func(c *Config) { c.Servers.Hosts = nil },
		"no username":        func(c *Config) { c.Servers.Username = "" },
		"no credentials":     func(c *Config) { c.Servers.Password = "" },
		"empty mapping":      func(c *Config) { c.FolderMapping = nil },
		"empty prefix":       func(c *Config) { c.FolderMapping = []FolderRule{{Folder: "grpc"}} },
		"duplicate prefix":   func(c *Config) { c.FolderMapping = append(c.FolderMapping, FolderRule{Prefix: "grpc", Folder: "x"}) },
		"no work folders":    func(c *Config) { c.WorkFolders = nil },
		"negative interval":  func(c *Config) { c.IntervalSeconds = -1 },
		"negative retries":   func(c *Config) { c.Retries = -1 },
		"offsite w/o bucket": func(c *Config) { c.Offsite.Endpoint = "minio:9000" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}

	keyOnly := valid()
	keyOnly.Servers.Password = ""
	keyOnly.Servers.PrivateKeyFile = "/root/.ssh/id_ed25519"
	assert.NoError(t, keyOnly.validate())
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("EDGELOGD_A", "alpha")
	assert.Equal(t, "x-alpha-", expandEnvVars("x-$(EDGELOGD_A)-$(EDGELOGD_UNSET_VAR)"))
	assert.Equal(t, "$HOME stays", expandEnvVars("$HOME stays"))
}
