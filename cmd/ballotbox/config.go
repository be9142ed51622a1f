package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vocdoni/ballotbox/db"
	"github.com/vocdoni/ballotbox/internal"
	"github.com/vocdoni/ballotbox/log"
)

const (
	defaultAPIHost         = "0.0.0.0"
	defaultAPIPort         = 9090
	defaultDBType          = db.TypePebble
	defaultLogLevel        = "info"
	defaultLogOutput       = "stdout"
	defaultDatadir         = ".ballotbox" // Will be prefixed with user's home directory
	defaultMonitorInterval = 30 * time.Second
	envPrefix              = "BALLOTBOX"
)

var (
	validDBTypes   = []string{db.TypePebble, db.TypeInMem, db.TypeMongo}
	validLogLevels = []string{log.LogLevelDebug, log.LogLevelInfo, log.LogLevelWarn, log.LogLevelError}
)

// Version is the build version, set at build time with -ldflags
var Version = internal.Version

// Config holds the application configuration
type Config struct {
	Organizer string        `mapstructure:"organizer"`
	API       APIConfig     `mapstructure:"api"`
	DB        DBConfig      `mapstructure:"db"`
	Log       LogConfig     `mapstructure:"log"`
	Monitor   MonitorConfig `mapstructure:"monitor"`
	Datadir   string        `mapstructure:"datadir"`
}

// APIConfig holds the API-specific configuration
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DBConfig holds the storage configuration
type DBConfig struct {
	Type string `mapstructure:"type"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// MonitorConfig holds the election monitor configuration
type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// OrganizerAddress returns the organizer as an address.
func (c *Config) OrganizerAddress() common.Address {
	return common.HexToAddress(c.Organizer)
}

// newFlagSet defines the command line flags.
func newFlagSet(defaultDatadirPath string, usageOut io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("ballotbox", flag.ContinueOnError)
	fs.StringP("organizer", "k", "", "address of the election organizer (required)")
	fs.StringP("api.host", "a", defaultAPIHost, "API host")
	fs.IntP("api.port", "p", defaultAPIPort, "API port")
	fs.StringP("db.type", "t", defaultDBType, fmt.Sprintf("database type %v", validDBTypes))
	fs.StringP("datadir", "d", defaultDatadirPath, "data directory for database files")
	fs.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	fs.Duration("monitor.interval", defaultMonitorInterval, "election monitor interval (i.e 30s or 5m)")
	fs.SortFlags = false
	fs.SetOutput(usageOut)

	fs.Usage = func() {
		fmt.Fprintf(usageOut, "ballotbox v%s\n\n", Version)
		fmt.Fprintf(usageOut, "Usage: ballotbox [flags]\n\n")
		fmt.Fprintf(usageOut, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(usageOut, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(usageOut, "  except for dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(usageOut, "  For example, %s_ORGANIZER or %s_API_PORT\n", envPrefix, envPrefix)
		fmt.Fprintf(usageOut, "\nExamples:\n")
		fmt.Fprintf(usageOut, "  # Start with default settings\n")
		fmt.Fprintf(usageOut, "  ballotbox --organizer=0x123...\n\n")
		fmt.Fprintf(usageOut, "  # Start with an ephemeral database on a custom port\n")
		fmt.Fprintf(usageOut, "  ballotbox --organizer=0x123... --db.type=inmem --api.port=8080\n")
	}
	return fs
}

// loadConfig loads configuration from flags, environment variables, and defaults
func loadConfig(args []string) (*Config, error) {
	v := viper.New()

	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}
	defaultDatadirPath := filepath.Join(userHomeDir, defaultDatadir)

	v.SetDefault("api.host", defaultAPIHost)
	v.SetDefault("api.port", defaultAPIPort)
	v.SetDefault("db.type", defaultDBType)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)
	v.SetDefault("monitor.interval", defaultMonitorInterval)
	v.SetDefault("datadir", defaultDatadirPath)

	fs := newFlagSet(defaultDatadirPath, os.Stderr)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Configure Viper to use environment variables
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind flags to Viper
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	if cfg.Organizer == "" {
		return fmt.Errorf("organizer address is required (use --organizer flag or %s_ORGANIZER environment variable)", envPrefix)
	}
	if !common.IsHexAddress(cfg.Organizer) || cfg.OrganizerAddress() == (common.Address{}) {
		return fmt.Errorf("invalid organizer address %q", cfg.Organizer)
	}
	if !slices.Contains(validDBTypes, cfg.DB.Type) {
		return fmt.Errorf("invalid database type %q, available types: %v", cfg.DB.Type, validDBTypes)
	}
	if !slices.Contains(validLogLevels, cfg.Log.Level) {
		return fmt.Errorf("invalid log level %q, available levels: %v", cfg.Log.Level, validLogLevels)
	}
	if cfg.API.Port < 0 || cfg.API.Port > 65535 {
		return fmt.Errorf("invalid API port %d", cfg.API.Port)
	}
	if cfg.Monitor.Interval <= 0 {
		return fmt.Errorf("invalid monitor interval %s", cfg.Monitor.Interval)
	}
	if cfg.DB.Type != db.TypeInMem && cfg.Datadir == "" {
		return fmt.Errorf("datadir is required for database type %s", cfg.DB.Type)
	}
	return nil
}
