// Package config resolves settings from flags, GitHub Actions inputs
// (INPUT_<KEY>), PADEPLOY_<KEY> environment variables and defaults, in that
// order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	Username       = "username"
	APIToken       = "api_token"
	Host           = "host"
	DomainName     = "domain_name"
	FrameworkType  = "framework_type"
	DjangoSettings = "django_settings"
	Envs           = "envs"
	DataDir        = "data_dir"
	NoHistory      = "no_history"
	StatsdAddr     = "statsd_addr"
	Verbose        = "verbose"
	FetchAttempts  = "fetch_attempts"
	FetchDelay     = "fetch_delay"
)

// ProjectFrameworkDir holds recipes and scripts shipped with the repository
// being deployed.
const ProjectFrameworkDir = ".padeploy/frameworks"

var required = []string{Username, APIToken, Host}

type Config struct {
	Username       string
	APIToken       string
	Host           string
	DomainName     string
	FrameworkType  string
	DjangoSettings string
	Envs           string
	DataDir        string
	NoHistory      bool
	StatsdAddr     string
	Verbose        bool
	FetchAttempts  int
	FetchDelay     time.Duration
}

// MissingInputError names a required key with no value from any source.
type MissingInputError struct {
	Key string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("Input required and not supplied: %s", e.Key)
}

// FlagName is the command-line spelling of a key.
func FlagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// RegisterFlags adds a flag for every key to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(FlagName(Username), "", "account user name")
	fs.String(FlagName(APIToken), "", "API token")
	fs.String(FlagName(Host), "", "API host, e.g. www.pythonanywhere.com")
	fs.String(FlagName(DomainName), "", "web app to deploy (default: the first one listed)")
	fs.String(FlagName(FrameworkType), "django", "framework whose commands run after the pull")
	fs.String(FlagName(DjangoSettings), "", "Django settings module passed to migrate")
	fs.String(FlagName(Envs), "", "KEY=VALUE lines written to <source>/.env")
	fs.String(FlagName(DataDir), "", "directory for history and user frameworks (default $HOME/.padeploy)")
	fs.Bool(FlagName(NoHistory), false, "do not record the deployment")
	fs.String(FlagName(StatsdAddr), "", "statsd host:port to report metrics to")
	fs.BoolP(FlagName(Verbose), "v", false, "log debug messages")
	fs.Int(FlagName(FetchAttempts), 5, "console output fetch attempts")
	fs.Duration(FlagName(FetchDelay), 5*time.Second, "delay between console output fetch attempts")
}

// NewViper binds defaults, environment variables and the flags in fs, which
// may be nil.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault(FrameworkType, "django")
	v.SetDefault(DataDir, defaultDataDir())
	v.SetDefault(FetchAttempts, 5)
	v.SetDefault(FetchDelay, 5*time.Second)

	keys := []string{
		Username, APIToken, Host, DomainName, FrameworkType, DjangoSettings, Envs,
		DataDir, NoHistory, StatsdAddr, Verbose, FetchAttempts, FetchDelay,
	}
	for _, key := range keys {
		upper := strings.ToUpper(key)
		if err := v.BindEnv(key, "INPUT_"+upper, "PADEPLOY_"+upper); err != nil {
			return nil, errors.Wrapf(err, "binding env for %s", key)
		}
		if fs == nil {
			continue
		}
		if f := fs.Lookup(FlagName(key)); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errors.Wrapf(err, "binding flag for %s", key)
			}
		}
	}

	return v, nil
}

// Load reads every key from v. Required keys are not checked, see Validate.
func Load(v *viper.Viper) *Config {
	return &Config{
		Username:       strings.TrimSpace(v.GetString(Username)),
		APIToken:       strings.TrimSpace(v.GetString(APIToken)),
		Host:           strings.TrimSpace(v.GetString(Host)),
		DomainName:     strings.TrimSpace(v.GetString(DomainName)),
		FrameworkType:  strings.TrimSpace(v.GetString(FrameworkType)),
		DjangoSettings: strings.TrimSpace(v.GetString(DjangoSettings)),
		Envs:           v.GetString(Envs),
		DataDir:        v.GetString(DataDir),
		NoHistory:      v.GetBool(NoHistory),
		StatsdAddr:     v.GetString(StatsdAddr),
		Verbose:        v.GetBool(Verbose),
		FetchAttempts:  v.GetInt(FetchAttempts),
		FetchDelay:     v.GetDuration(FetchDelay),
	}
}

// Validate checks what a deployment needs.
func (c *Config) Validate() error {
	values := map[string]string{
		Username: c.Username,
		APIToken: c.APIToken,
		Host:     c.Host,
	}
	for _, key := range required {
		if values[key] == "" {
			return &MissingInputError{Key: key}
		}
	}
	if c.FetchAttempts < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", FetchAttempts, c.FetchAttempts)
	}
	if c.FetchDelay < 0 {
		return fmt.Errorf("%s must not be negative", FetchDelay)
	}
	return nil
}

// FrameworkDirs lists where recipes and scripts are loaded from. Later
// directories take precedence.
func (c *Config) FrameworkDirs() []string {
	return []string{
		filepath.Join(c.DataDir, "frameworks"),
		ProjectFrameworkDir,
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".padeploy"
	}
	return filepath.Join(home, ".padeploy")
}
