package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/neboloop/netcapture/internal/browser"
	"github.com/neboloop/netcapture/internal/failure"
	"github.com/neboloop/netcapture/internal/logging"
	"github.com/neboloop/netcapture/internal/outlook"
	"github.com/neboloop/netcapture/internal/probe"
)

// Environment variables holding secrets and per-run targets. They never live in
// the YAML config.
const (
	EnvOutlookEmail    = "OUTLOOK_EMAIL"
	EnvOutlookPassword = "OUTLOOK_PASSWORD"
	EnvContactEmail    = "CONTACT_EMAIL"
	EnvTestBaseURL     = "TEST_BASE_URL"
	EnvTestPricingURL  = "TEST_PRICING_URL"
)

type Config struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Paths struct {
		// LogDir receives the per-run audit logs.
		LogDir string `yaml:"logDir"`
		// DataDir holds the record stores. Relative file names below resolve against it.
		DataDir    string `yaml:"dataDir"`
		CSVFile    string `yaml:"csvFile"`
		SQLiteFile string `yaml:"sqliteFile"`
	} `yaml:"paths"`

	// SQLite mirrors every record into SQLiteFile when enabled.
	SQLite bool `yaml:"sqlite"`

	Browser browser.Config  `yaml:"browser"`
	Outlook outlook.Options `yaml:"outlook"`
	Probe   probe.Options   `yaml:"probe"`

	Serve struct {
		Addr string `yaml:"addr"`
	} `yaml:"serve"`
}

// Default returns the built-in configuration. Loaded YAML is layered over it.
func Default() Config {
	var c Config
	c.Log.Level = "info"
	c.Log.Format = logging.FormatText
	c.Paths.LogDir = "logs"
	c.Paths.DataDir = "data"
	c.Paths.CSVFile = "linkedin_requests.csv"
	c.Paths.SQLiteFile = "netcapture.db"
	c.Browser = browser.DefaultConfig()
	c.Outlook = outlook.DefaultOptions()
	c.Probe = probe.DefaultOptions()
	c.Serve.Addr = "127.0.0.1:8088"
	return c
}

// LoadFromBytes loads configuration from YAML bytes with environment variable
// expansion, layered over Default.
func LoadFromBytes(data []byte) (Config, error) {
	c := Default()
	if err := c.merge(data); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// Load layers the embedded defaults and then, when overridePath is set, a user
// config file.
func Load(embedded []byte, overridePath string) (Config, error) {
	c := Default()
	if err := c.merge(embedded); err != nil {
		return c, fmt.Errorf("embedded config: %w", err)
	}
	if overridePath != "" {
		data, err := os.ReadFile(overridePath)
		if err != nil {
			return c, failure.New(failure.Config, "read config", err)
		}
		if err := c.merge(data); err != nil {
			return c, fmt.Errorf("%s: %w", overridePath, err)
		}
	}
	return c, c.Validate()
}

func (c *Config) merge(data []byte) error {
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return failure.New(failure.Config, "parse config", err)
	}
	return nil
}

// Validate checks the values the commands cannot run without.
func (c Config) Validate() error {
	var problems []string
	if c.Paths.DataDir == "" {
		problems = append(problems, "paths.dataDir is empty")
	}
	if c.Paths.CSVFile == "" {
		problems = append(problems, "paths.csvFile is empty")
	}
	if c.Outlook.Target == "" {
		problems = append(problems, "outlook.target is empty")
	}
	if c.Outlook.LoginURL == "" || c.Outlook.PeopleURL == "" {
		problems = append(problems, "outlook.loginUrl and outlook.peopleUrl are required")
	}
	if len(problems) > 0 {
		return failure.New(failure.Config, "validate config", errors.New(strings.Join(problems, "; ")))
	}
	return nil
}

// CSVPath is the authoritative record store file.
func (c Config) CSVPath() string {
	return c.resolve(c.Paths.CSVFile)
}

// SQLitePath is the optional mirror database file.
func (c Config) SQLitePath() string {
	return c.resolve(c.Paths.SQLiteFile)
}

func (c Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Paths.DataDir, name)
}

// Credentials reads the workflow's account and contact from the environment.
// Every missing variable is named in the returned Config failure.
func Credentials() (outlook.Credentials, error) {
	vals, err := requireEnv(EnvOutlookEmail, EnvOutlookPassword, EnvContactEmail)
	if err != nil {
		return outlook.Credentials{}, err
	}
	return outlook.Credentials{
		Email:    vals[0],
		Password: vals[1],
		Contact:  vals[2],
	}, nil
}

// ProbeTargets reads the two probe URLs from the environment.
func ProbeTargets() ([]string, error) {
	return requireEnv(EnvTestBaseURL, EnvTestPricingURL)
}

func requireEnv(names ...string) ([]string, error) {
	vals := make([]string, len(names))
	var missing []string
	for i, name := range names {
		vals[i] = strings.TrimSpace(os.Getenv(name))
		if vals[i] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, failure.Newf(failure.Config, "environment",
			"missing required environment variables: %s (check your .env file)", strings.Join(missing, ", "))
	}
	return vals, nil
}
