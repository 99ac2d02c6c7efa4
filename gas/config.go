package gas

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config carries the runtime options recognized at Init.
type Config struct {
	// SharedWindows enables the shared-memory fast path for
	// co-located peers.
	SharedWindows bool
	// LogLevel is one of error, warn, info, debug, trace.
	LogLevel string
	// MaxTeamDomains bounds the number of concurrent teams carrying a
	// locality tree.
	MaxTeamDomains int
	// SegmentPoolBytes is the per-unit capacity of each team's
	// collective-allocation window.
	SegmentPoolBytes int
	// LocalPoolBytes is the per-unit capacity of the local allocation
	// pool (segment id 0).
	LocalPoolBytes int
}

const (
	defaultSegmentPoolBytes = 4 << 20
	defaultLocalPoolBytes   = 1 << 20
	defaultMaxTeamDomains   = 32
)

// DefaultConfig returns the built-in option values.
func DefaultConfig() Config {
	return Config{
		SharedWindows:    true,
		LogLevel:         "warn",
		MaxTeamDomains:   defaultMaxTeamDomains,
		SegmentPoolBytes: defaultSegmentPoolBytes,
		LocalPoolBytes:   defaultLocalPoolBytes,
	}
}

// LoadConfig reads options from the environment (prefix PGAS_) and,
// when path is non-empty, from a config file. File values override
// defaults; environment values override both.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("shared_windows", true)
	v.SetDefault("log_level", "warn")
	v.SetDefault("max_team_domains", defaultMaxTeamDomains)
	v.SetDefault("segment_pool_bytes", defaultSegmentPoolBytes)
	v.SetDefault("local_pool_bytes", defaultLocalPoolBytes)

	v.SetEnvPrefix("pgas")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("pgas: read config %s: %w", path, err)
		}
	}

	cfg := Config{
		SharedWindows:    v.GetBool("shared_windows"),
		LogLevel:         strings.ToLower(v.GetString("log_level")),
		MaxTeamDomains:   v.GetInt("max_team_domains"),
		SegmentPoolBytes: v.GetInt("segment_pool_bytes"),
		LocalPoolBytes:   v.GetInt("local_pool_bytes"),
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.LogLevel {
	case "error", "warn", "info", "debug", "trace":
	default:
		return fmt.Errorf("%w: log_level %q", ErrInvalidArgument, c.LogLevel)
	}
	if c.MaxTeamDomains < 1 {
		return fmt.Errorf("%w: max_team_domains %d", ErrInvalidArgument, c.MaxTeamDomains)
	}
	if c.SegmentPoolBytes < 0 || c.LocalPoolBytes < 0 {
		return fmt.Errorf("%w: negative pool size", ErrInvalidArgument)
	}
	return nil
}

func (c Config) debugEnabled() bool {
	return c.LogLevel == "debug" || c.LogLevel == "trace"
}
