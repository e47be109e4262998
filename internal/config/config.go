// Package config holds the explicit runtime configuration of mlc. Values are
// layered from flags, MLC_* environment variables, an optional YAML file and
// defaults, then decoded and validated once per invocation.
package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/franz/media-janitor/internal/util"
)

// Config is the complete runtime configuration
type Config struct {
	// DB is the SQLite state database (catalog + quarantine ledger)
	DB string `mapstructure:"db" validate:"required"`

	// Library is the media root used by scan
	Library string `mapstructure:"library"`

	// Artifacts is where event logs and reports are written
	Artifacts string `mapstructure:"artifacts" validate:"required"`

	Detect  DetectConfig  `mapstructure:"detect"`
	Trash   TrashConfig   `mapstructure:"trash"`
	Exclude ExcludeConfig `mapstructure:"exclude"`
	Retry   RetryConfig   `mapstructure:"retry"`

	// NASMode forces (true) or disables (false) NAS retry tuning; unset
	// means detect from the library and trash paths
	NASMode *bool `mapstructure:"nas_mode"`

	Verbose bool `mapstructure:"verbose"`
	Quiet   bool `mapstructure:"quiet"`
}

// DetectConfig tunes duplicate detection
type DetectConfig struct {
	Method            string   `mapstructure:"method" validate:"oneof=hash filename both"`
	ExcludeThumbnails bool     `mapstructure:"exclude_thumbnails"`
	Dimensions        bool     `mapstructure:"dimensions"`
	BatchSize         int      `mapstructure:"batch_size" validate:"gte=1,lte=10000"`
	ChunkSize         ByteSize `mapstructure:"chunk_size" validate:"gte=4096,lte=67108864"`
	HashWorkers       int      `mapstructure:"hash_workers" validate:"gte=1,lte=64"`
	MemoryHeadroom    ByteSize `mapstructure:"memory_headroom"`
}

// TrashConfig locates the quarantine area
type TrashConfig struct {
	Dir       string        `mapstructure:"dir" validate:"required"`
	Retention time.Duration `mapstructure:"retention" validate:"gt=0"`
}

// ExcludeConfig seeds the exclusion policy
type ExcludeConfig struct {
	// Patterns are SQLite GLOB patterns matched against asset paths
	Patterns []string `mapstructure:"patterns"`
}

// RetryConfig overrides retry behaviour. A zero MaxAttempts selects the
// default or NAS policy automatically.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=0,lte=20"`
	InitialWait time.Duration `mapstructure:"initial_wait" validate:"gte=0"`
	MaxWait     time.Duration `mapstructure:"max_wait" validate:"gte=0"`
}

// ByteSize is a size in bytes that decodes from strings like "256MiB"
type ByteSize uint64

func (b ByteSize) String() string {
	return util.FormatBytes(int64(b))
}

// Load decodes and validates the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		stringToByteSizeHook(),
		stringToDurationHook(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %w", util.ErrInvalidConfig, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", util.ErrInvalidConfig, err)
	}

	return &cfg, nil
}

// RetryPolicy returns the retry settings to use for file and database access
func (c *Config) RetryPolicy() *util.RetryConfig {
	if c.Retry.MaxAttempts > 0 {
		rc := &util.RetryConfig{
			MaxAttempts: c.Retry.MaxAttempts,
			InitialWait: c.Retry.InitialWait,
			MaxWait:     c.Retry.MaxWait,
		}
		if rc.InitialWait == 0 {
			rc.InitialWait = util.DefaultRetryConfig().InitialWait
		}
		if rc.MaxWait < rc.InitialWait {
			rc.MaxWait = rc.InitialWait
		}
		return rc
	}
	return util.RetryConfigForPaths(c.NASMode, c.Library, c.Trash.Dir)
}

// stringToByteSizeHook parses human-readable sizes into ByteSize fields
func stringToByteSizeHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			n, err := util.ParseBytes(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("invalid size %q: %w", v, err)
			}
			return ByteSize(n), nil
		case int:
			if v < 0 {
				return nil, fmt.Errorf("invalid size %d", v)
			}
			return ByteSize(v), nil
		case int64:
			if v < 0 {
				return nil, fmt.Errorf("invalid size %d", v)
			}
			return ByteSize(v), nil
		}
		return data, nil
	}
}

// stringToDurationHook accepts Go durations plus a whole-day suffix ("30d")
func stringToDurationHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) || from.Kind() != reflect.String {
			return data, nil
		}
		return ParseDuration(data.(string))
	}
}

// ParseDuration parses a Go duration or a number of days such as "30d"
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
