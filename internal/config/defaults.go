package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default values
const (
	DefaultDB             = "mlc-state.db"
	DefaultArtifacts      = "artifacts"
	DefaultTrashDir       = ".mlc-trash"
	DefaultRetention      = 30 * 24 * time.Hour
	DefaultMethod         = "both"
	DefaultBatchSize      = 50
	DefaultChunkSize      = "64KiB"
	DefaultHashWorkers    = 4
	DefaultMemoryHeadroom = "256MiB"
)

// SetDefaults registers defaults on v so that the file, environment and
// flags can override them key by key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("db", DefaultDB)
	v.SetDefault("artifacts", DefaultArtifacts)

	v.SetDefault("detect.method", DefaultMethod)
	v.SetDefault("detect.exclude_thumbnails", true)
	v.SetDefault("detect.dimensions", false)
	v.SetDefault("detect.batch_size", DefaultBatchSize)
	v.SetDefault("detect.chunk_size", DefaultChunkSize)
	v.SetDefault("detect.hash_workers", DefaultHashWorkers)
	v.SetDefault("detect.memory_headroom", DefaultMemoryHeadroom)

	v.SetDefault("trash.dir", DefaultTrashDir)
	v.SetDefault("trash.retention", DefaultRetention.String())

	v.SetDefault("exclude.patterns", []string{})

	v.SetDefault("retry.max_attempts", 0)
	v.SetDefault("retry.initial_wait", "0s")
	v.SetDefault("retry.max_wait", "0s")
}

// Defaults returns the configuration produced by defaults alone
func Defaults() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := Load(v)
	if err != nil {
		panic("config: defaults do not validate: " + err.Error())
	}
	return cfg
}
