// Package config loads the Controller configuration spec.md §6 lists
// ("Controller configuration (fields the scheduler consumes)") from
// flags, environment variables, and an optional config file, with
// defaults for anything unset.
//
// It is grounded on acdtunes-spacetraders's LoadConfig: viper as the
// merge point with a fixed priority (flags > env > file > defaults), env
// vars under a project prefix, and a config file that is optional rather
// than required. pflag replaces the teacher's flag.String/flag.Bool
// style from cmd/chessplay-uci/main.go, since spf13/viper binds pflag
// flag sets directly rather than the stdlib flag package's.
package config

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hailam/harvesterbot/internal/game"
)

// Config mirrors spec.md §6's scheduler-facing field list.
type Config struct {
	Name                        string  `mapstructure:"name"`
	MaxTurns                    int     `mapstructure:"max_turns"`
	MaxSearchDepth              int     `mapstructure:"max_search_depth"`
	ShipBuildFactor             float64 `mapstructure:"ship_build_factor"`
	SimulateEnemyEnabled        bool    `mapstructure:"simulate_enemy_enabled"`
	RecalculatePathsEnabled     bool    `mapstructure:"recalculate_paths_enabled"`
	AvoidEnemyCollisionsEnabled bool    `mapstructure:"avoid_enemy_collisions_enabled"`
	PenaltyFactor               string  `mapstructure:"penalty_factor"`

	// Seed is the CLI surface spec.md §6 names: "a single optional
	// argument: a 32-bit RNG seed ... default is the wall-clock time."
	Seed int64 `mapstructure:"seed"`
}

// setDefaults matches spec.md §6's stated defaults and the sensible
// per-field defaults a fresh scheduler.Config zero-value implies.
func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "harvesterbot")
	v.SetDefault("max_turns", -1) // "-1 = never", spec.md §6
	v.SetDefault("max_search_depth", 40)
	v.SetDefault("ship_build_factor", 1.0)
	v.SetDefault("simulate_enemy_enabled", true)
	v.SetDefault("recalculate_paths_enabled", true)
	v.SetDefault("avoid_enemy_collisions_enabled", false)
	v.SetDefault("penalty_factor", "decaying")
	v.SetDefault("seed", int64(uint32(time.Now().UnixNano())))
}

// Load builds a Config from, in priority order: CLI flags bound onto
// fs, environment variables prefixed HARVESTERBOT_, an optional
// config.yaml (searched in the working directory and /etc/harvesterbot),
// then the defaults above. A missing config file is not an error.
func Load(fs *pflag.FlagSet, configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HARVESTERBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/harvesterbot")
	}
	if err := v.ReadInConfig(); err != nil {
		// viper only returns ConfigFileNotFoundError when it does its own
		// search-path lookup (configPath == ""). With an explicit
		// SetConfigFile path, a missing file instead surfaces as the
		// underlying afero fs.ErrNotExist, which we treat the same way:
		// a missing config file is never fatal, explicit path or not.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, iofs.ErrNotExist) {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// RegisterFlags defines the flag surface Load binds against. Call before
// fs.Parse().
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("name", "harvesterbot", "bot identifier sent at handshake")
	fs.Int("max_turns", -1, "hard stop for profiling, -1 = never")
	fs.Int("max_search_depth", 40, "bound on per-unit search depth")
	fs.Float64("ship_build_factor", 1.0, "spawn-economics weighting factor")
	fs.Bool("simulate_enemy_enabled", true, "project enemy movement into the Clone")
	fs.Bool("recalculate_paths_enabled", true, "enable priority-based stale-plan recomputation")
	fs.Bool("avoid_enemy_collisions_enabled", false, "auto-enabled by main for 4-player matches")
	fs.String("penalty_factor", "decaying", "move penalty weighting: zero, decaying, or one")
	fs.Int64("seed", 0, "32-bit RNG seed, default is wall-clock time")
}

// ParsePenaltyFactor converts the string field to game.PenaltyFactor.
// Unrecognized values fall back to PenaltyDecaying, matching the default
// above, rather than failing a match over a typo'd flag.
func ParsePenaltyFactor(s string) game.PenaltyFactor {
	switch strings.ToLower(s) {
	case "zero":
		return game.PenaltyZero
	case "one":
		return game.PenaltyOne
	default:
		return game.PenaltyDecaying
	}
}
