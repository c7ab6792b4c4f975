// Package config loads the engine's configuration (§6) on top of the
// teacher's generic configloader.ConfigLoader[T], resolving percentage
// maxSize values against real system capacity at load time so the rest
// of the core only ever deals in resolved byte counts.
package config

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/groc-prog/cache-nest/configloader"
)

// MemoryRecovery configures the memory driver's periodic snapshot
// writer and startup replay (§4.7).
type MemoryRecovery struct {
	Enabled          bool          `koanf:"enabled"`
	SnapshotFilePath string        `koanf:"snapshotFilePath"`
	SnapshotInterval time.Duration `koanf:"snapshotInterval"`
}

// MemoryDriver configures the in-process driver (§4.4).
type MemoryDriver struct {
	// MaxSize is either an absolute byte count or a "NN%" string to be
	// resolved against total system RAM by ResolveMaxSize.
	MaxSize         string         `koanf:"maxSize"`
	EvictFromOthers bool           `koanf:"evictFromOthers"`
	Recovery        MemoryRecovery `koanf:"recovery"`
}

// FileSystemDriver configures the on-disk driver (§4.6).
type FileSystemDriver struct {
	// MaxSize is either an absolute byte count or a "NN%" string to be
	// resolved against the filesystem at MountPath by ResolveMaxSize.
	MaxSize         string `koanf:"maxSize"`
	MountPath       string `koanf:"mountPath"`
	EvictFromOthers bool   `koanf:"evictFromOthers"`
}

// Drivers groups the per-driver configuration blocks.
type Drivers struct {
	Memory     MemoryDriver     `koanf:"memory"`
	FileSystem FileSystemDriver `koanf:"fileSystem"`
}

// Config is the engine's full configuration (§6).
type Config struct {
	Drivers Drivers `koanf:"drivers"`
}

// Defaults returns the configuration that applies when nothing else
// overrides it: a memory driver capped at 25% of system RAM with
// recovery disabled, and a filesystem driver capped at 25% of the disk
// at ./cache-nest-data; both may evict from other policies.
func Defaults() Config {
	return Config{
		Drivers: Drivers{
			Memory: MemoryDriver{
				MaxSize:         "25%",
				EvictFromOthers: true,
				Recovery: MemoryRecovery{
					Enabled:          false,
					SnapshotFilePath: "cache-nest.snapshot",
					SnapshotInterval: time.Minute,
				},
			},
			FileSystem: FileSystemDriver{
				MaxSize:         "25%",
				MountPath:       "./cache-nest-data",
				EvictFromOthers: true,
			},
		},
	}
}

// Load builds the configuration by layering, in increasing priority:
// Defaults(), an optional file at path (JSON or YAML, sniffed by
// extension), environment variables prefixed with envPrefix, and
// command-line flags, exactly as the teacher's configloader composes
// sources.
func Load(path, envPrefix string, flags *pflag.FlagSet) (Config, error) {
	opts := []configloader.Option[Config]{
		configloader.WithDefaults(Defaults()),
	}
	if path != "" {
		opts = append(opts, configloader.WithFile[Config](path))
	}
	if envPrefix != "" {
		opts = append(opts, configloader.WithEnv[Config](envPrefix))
	}
	if flags != nil {
		opts = append(opts, configloader.WithFlags[Config](flags))
	}

	loader := configloader.NewConfigLoader(opts...)
	cfg, err := loader.Load()
	if err != nil {
		return Config{}, err
	}

	if err := ResolveMaxSize(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
