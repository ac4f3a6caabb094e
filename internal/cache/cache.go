// Package cache implements the optional bitcode cache: a content-and-flag
// derived key that lets a WrapperDriver skip re-running bitcode generation
// for a source file whose contents and compile flags haven't changed since
// the last build. There is no direct teacher analog (tinybpf has no
// cache), so the key/path/stats shape here is grounded directly on the
// algorithm this core was ported from, and reuses internal/pathderive's
// 64-bit non-cryptographic hash family for a consistent on-disk naming
// scheme across the two packages.
package cache

import (
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/h1994st/rllvm-go/internal/rdiag"
)

// EnvVar is the environment variable that force-enables caching regardless
// of configuration (RLLVM_CACHE=1).
const EnvVar = "RLLVM_CACHE"

// DefaultDirName is the cache directory created under $HOME when no
// explicit cache directory is configured.
const DefaultDirName = ".rllvm/cache"

var (
	hits   atomic.Uint64
	misses atomic.Uint64
)

// Enabled reports whether bitcode caching is active: RLLVM_CACHE, when
// set, wins outright ("1" enables, anything else disables); otherwise the
// configured value is used as-is.
func Enabled(configEnabled bool) bool {
	if v, ok := os.LookupEnv(EnvVar); ok {
		return v == "1"
	}
	return configEnabled
}

// Dir resolves the cache directory, creating it if missing. An empty
// configDir falls back to $HOME/.rllvm/cache.
func Dir(configDir string) (string, error) {
	dir := configDir
	if dir == "" {
		home := os.Getenv("HOME")
		if home == "" {
			return "", rdiag.New(rdiag.StageConfigError,
				fmt.Errorf("HOME environment variable not set"), "", "",
				"set HOME or configure an explicit cache_dir")
		}
		dir = filepath.Join(home, DefaultDirName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", rdiag.New(rdiag.StageIO, err, "", "", fmt.Sprintf("creating cache directory %q", dir))
	}
	return dir, nil
}

// Key computes the cache key for a source file and its compile arguments:
// a hash of the source file's contents, the compile arguments (sorted for
// determinism), and any bitcode-generation flags (sorted too).
func Key(srcFilepath string, compileArgs []string, bitcodeGenerationFlags []string) (uint64, error) {
	contents, err := os.ReadFile(srcFilepath)
	if err != nil {
		return 0, rdiag.New(rdiag.StageIO, err, "", "", fmt.Sprintf("reading source file %q", srcFilepath))
	}

	h := fnv.New64a()
	h.Write(contents)

	sortedArgs := append([]string(nil), compileArgs...)
	sort.Strings(sortedArgs)
	for _, a := range sortedArgs {
		h.Write([]byte(a))
	}

	if len(bitcodeGenerationFlags) > 0 {
		sortedFlags := append([]string(nil), bitcodeGenerationFlags...)
		sort.Strings(sortedFlags)
		for _, f := range sortedFlags {
			h.Write([]byte(f))
		}
	}

	return h.Sum64(), nil
}

// CachedBitcodePath returns the path where a cached bitcode file for
// srcFilepath/key would live under cacheDir.
func CachedBitcodePath(cacheDir, srcFilepath string, key uint64) string {
	name := filepath.Base(srcFilepath)
	stem := name[:len(name)-len(filepath.Ext(name))]
	return filepath.Join(cacheDir, fmt.Sprintf("%s_%016x.bc", stem, key))
}

// Lookup reports whether a cache entry exists for srcFilepath/key, and
// updates the hit/miss counters Stats reports.
func Lookup(cacheDir, srcFilepath string, key uint64) (string, bool) {
	path := CachedBitcodePath(cacheDir, srcFilepath, key)
	if _, err := os.Stat(path); err == nil {
		hits.Add(1)
		return path, true
	}
	misses.Add(1)
	return "", false
}

// Store copies bitcodeFilepath into the cache under srcFilepath/key,
// returning the path it was stored at.
func Store(cacheDir, srcFilepath string, key uint64, bitcodeFilepath string) (string, error) {
	dest := CachedBitcodePath(cacheDir, srcFilepath, key)
	if err := copyFile(bitcodeFilepath, dest); err != nil {
		return "", rdiag.New(rdiag.StageIO, err, "", "", fmt.Sprintf("storing bitcode in cache: %q -> %q", bitcodeFilepath, dest))
	}
	return dest, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// Stats returns the cumulative (hits, misses) counters since process start.
func Stats() (hitCount, missCount uint64) {
	return hits.Load(), misses.Load()
}
