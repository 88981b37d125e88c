package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"edgelogd/internal/routing"
)

// Config represents the application configuration
type Config struct {
	LogLevel         string        `yaml:"log_level"`
	RemoteLogDir     string        `yaml:"remote_log_dir"`
	LocalStagingRoot string        `yaml:"local_staging_root"`
	FinalArchiveRoot string        `yaml:"final_archive_root"`
	BackupTreeName   string        `yaml:"backup_tree_name"`
	PerHostDirs      bool          `yaml:"per_host_dirs"`
	IntervalSeconds  int           `yaml:"interval_seconds"`
	Retries          int           `yaml:"retries"`
	CommandTimeout   time.Duration `yaml:"command_timeout"`
	TransferTimeout  time.Duration `yaml:"transfer_timeout"`
	FolderMapping    []FolderRule  `yaml:"folder_mapping"`
	WorkFolders      []string      `yaml:"work_folders"`
	Servers          Servers       `yaml:"servers"`
	Journal          string        `yaml:"journal"`
	MetricsAddr      string        `yaml:"metrics_addr"`
	Offsite          Offsite       `yaml:"offsite"`

	// Once runs a single polling cycle and exits.
	Once bool `yaml:"-"`
}

// FolderRule routes file names starting with Prefix to Folder
type FolderRule struct {
	Prefix string `yaml:"prefix"`
	Folder string `yaml:"folder"`
}

// Servers represents the edge hosts and their shared credentials
type Servers struct {
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	PrivateKeyFile string        `yaml:"private_key_file"`
	KnownHostsFile string        `yaml:"known_hosts_file"`
	Port           int           `yaml:"port"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Hosts          []string      `yaml:"hosts"`
}

// Offsite represents the optional S3-compatible mirror of archived files
type Offsite struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
}

// Enabled reports whether an offsite endpoint is configured
func (o Offsite) Enabled() bool {
	return o.Endpoint != ""
}

// Mapping returns the folder mapping in configured order
func (c *Config) Mapping() routing.FolderMapping {
	m := make(routing.FolderMapping, 0, len(c.FolderMapping))
	for _, r := range c.FolderMapping {
		m = append(m, routing.Rule{Prefix: r.Prefix, Folder: r.Folder})
	}
	return m
}

// Interval returns the pause between polling cycles
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Default returns a configuration with every default applied
func Default() *Config {
	return &Config{
		LogLevel:        "info",
		BackupTreeName:  "bak_logs",
		PerHostDirs:     true,
		IntervalSeconds: 300,
		Retries:         1,
		CommandTimeout:  10 * time.Second,
		TransferTimeout: 10 * time.Minute,
		MetricsAddr:     ":9100",
		Servers: Servers{
			Port:           22,
			ConnectTimeout: 30 * time.Second,
		},
	}
}

// Load loads configuration from file and command line flags
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if flags != nil {
		if err := loadFromFlags(cfg, flags); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// matches $(VAR_NAME)
var envPattern = regexp.MustCompile(`\$\(([A-Za-z0-9_]+)\)`)

// expandEnvVars replaces $(VAR) with os.Getenv(VAR)
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(envPattern.FindStringSubmatch(m)[1])
	})
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg)
}

// RegisterFlags adds the configuration override flags to flags
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("log-level", "info", "Log level (debug/info/warn/error)")
	flags.String("remote-dir", "", "Remote log directory on every edge host")
	flags.String("staging-root", "", "Local staging root")
	flags.String("archive-root", "", "Final archive root")
	flags.Int("interval", 300, "Seconds between polling cycles")
	flags.Int("retries", 1, "Extra attempts per guarded step")
	flags.StringSlice("host", nil, "Edge host address (repeatable, replaces configured hosts)")
	flags.String("journal", "", "Transfer journal database file (empty disables)")
	flags.String("metrics-addr", ":9100", "Metrics listen address (empty disables)")
	flags.Bool("once", false, "Run a single polling cycle and exit")
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("remote-dir") {
		cfg.RemoteLogDir, _ = flags.GetString("remote-dir")
	}
	if flags.Changed("staging-root") {
		cfg.LocalStagingRoot, _ = flags.GetString("staging-root")
	}
	if flags.Changed("archive-root") {
		cfg.FinalArchiveRoot, _ = flags.GetString("archive-root")
	}
	if flags.Changed("interval") {
		cfg.IntervalSeconds, _ = flags.GetInt("interval")
	}
	if flags.Changed("retries") {
		cfg.Retries, _ = flags.GetInt("retries")
	}
	if flags.Changed("host") {
		cfg.Servers.Hosts, _ = flags.GetStringSlice("host")
	}
	if flags.Changed("journal") {
		cfg.Journal, _ = flags.GetString("journal")
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("once") {
		cfg.Once, _ = flags.GetBool("once")
	}

	return nil
}

func (c *Config) validate() error {
	if c.RemoteLogDir == "" {
		return fmt.Errorf("remote_log_dir is required")
	}
	if c.LocalStagingRoot == "" {
		return fmt.Errorf("local_staging_root is required")
	}
	if c.FinalArchiveRoot == "" {
		return fmt.Errorf("final_archive_root is required")
	}
	if c.BackupTreeName == "" {
		return fmt.Errorf("backup_tree_name is required")
	}
	if c.BackupTreeName == filepath.Base(filepath.Clean(c.FinalArchiveRoot)) {
		return fmt.Errorf("backup_tree_name must differ from the archive root directory name")
	}

	if len(c.Servers.Hosts) == 0 {
		return fmt.Errorf("at least one host is required")
	}
	if c.Servers.Username == "" {
		return fmt.Errorf("servers.username is required")
	}
	if c.Servers.Password == "" && c.Servers.PrivateKeyFile == "" {
		return fmt.Errorf("servers.password or servers.private_key_file is required")
	}

	if len(c.FolderMapping) == 0 {
		return fmt.Errorf("folder_mapping must not be empty")
	}
	seen := make(map[string]bool, len(c.FolderMapping))
	for i, r := range c.FolderMapping {
		if r.Prefix == "" || r.Folder == "" {
			return fmt.Errorf("folder_mapping[%d]: prefix and folder are required", i)
		}
		if seen[r.Prefix] {
			return fmt.Errorf("folder_mapping[%d]: duplicate prefix %q", i, r.Prefix)
		}
		seen[r.Prefix] = true
	}
	if len(c.WorkFolders) == 0 {
		return fmt.Errorf("work_folders must not be empty")
	}

	if c.IntervalSeconds < 0 {
		return fmt.Errorf("interval_seconds must not be negative")
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative")
	}

	if c.Offsite.Enabled() && c.Offsite.Bucket == "" {
		return fmt.Errorf("offsite.bucket is required when offsite.endpoint is set")
	}

	return nil
}
