package config

import (
	"fmt"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// ResolveMaxSize resolves every "NN%" MaxSize field in cfg against real
// system capacity — total RAM for the memory driver, filesystem
// capacity at MountPath for the disk driver — so the drivers themselves
// only ever see a resolved byte count (§9's "Percentage maxSize" note).
// Absolute byte counts pass through unchanged.
func ResolveMaxSize(cfg *Config) error {
	memBytes, err := resolveOne(cfg.Drivers.Memory.MaxSize, systemMemoryBytes)
	if err != nil {
		return fmt.Errorf("config: resolving drivers.memory.maxSize: %w", err)
	}
	cfg.Drivers.Memory.MaxSize = strconv.FormatUint(memBytes, 10)

	diskBytes, err := resolveOne(cfg.Drivers.FileSystem.MaxSize, func() (uint64, error) {
		return filesystemCapacityBytes(cfg.Drivers.FileSystem.MountPath)
	})
	if err != nil {
		return fmt.Errorf("config: resolving drivers.fileSystem.maxSize: %w", err)
	}
	cfg.Drivers.FileSystem.MaxSize = strconv.FormatUint(diskBytes, 10)

	return nil
}

func resolveOne(raw string, capacity func() (uint64, error)) (uint64, error) {
	raw = strings.TrimSpace(raw)

	if pct, ok := strings.CutSuffix(raw, "%"); ok {
		fraction, err := strconv.ParseFloat(pct, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid percentage %q: %w", raw, err)
		}
		if fraction <= 0 || fraction > 100 {
			return 0, fmt.Errorf("percentage %q out of range (0, 100]", raw)
		}

		total, err := capacity()
		if err != nil {
			return 0, err
		}

		return uint64(float64(total) * fraction / 100), nil
	}

	abs, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid absolute byte count %q: %w", raw, err)
	}
	return abs, nil
}

// systemMemoryBytes returns total system RAM via unix.Sysinfo.
func systemMemoryBytes() (uint64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, fmt.Errorf("sysinfo: %w", err)
	}
	return uint64(info.Totalram) * uint64(info.Unit), nil
}

// filesystemCapacityBytes returns total filesystem capacity at path via
// syscall.Statfs.
func filesystemCapacityBytes(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %q: %w", path, err)
	}
	return stat.Blocks * uint64(stat.Bsize), nil
}
