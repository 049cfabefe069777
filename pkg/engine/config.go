package engine

import (
	"errors"
	"flag"
	"fmt"

	"github.com/grafana/dskit/flagext"
)

// Config configures plan execution.
type Config struct {
	// CacheCapacity is the number of fragments an edge between two kernels
	// holds before its producer blocks.
	CacheCapacity int `yaml:"cache_capacity"`

	// ConcatBytes is the size threshold a concatenating cache waits for
	// before handing merged fragments to its consumer.
	ConcatBytes flagext.Bytes `yaml:"concatenating_cache_bytes"`

	// MaxConcurrentScans limits the number of table scans reading at once.
	MaxConcurrentScans int `yaml:"max_concurrent_scans"`

	// TransformOperatorsBiggerThanGPU makes blocking operators stream their
	// inputs instead of concatenating them.
	TransformOperatorsBiggerThanGPU bool `yaml:"transform_operators_bigger_than_gpu"`

	// PlanCacheSize is the number of parsed plans kept for reuse.
	PlanCacheSize int `yaml:"plan_cache_size"`
}

// RegisterFlagsWithPrefix registers the flags of cfg with prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.CacheCapacity, prefix+"cache-capacity", 16, "Number of fragments an edge between two operators holds before the producer waits. 0 means unbounded.")
	_ = cfg.ConcatBytes.Set("64MB")
	f.Var(&cfg.ConcatBytes, prefix+"concatenating-cache-bytes", "Amount of data a concatenating edge gathers before handing it to the consumer. 0 hands over whatever is available.")
	f.IntVar(&cfg.MaxConcurrentScans, prefix+"max-concurrent-scans", 0, "Maximum number of table scans reading at the same time. 0 means no limit.")
	f.BoolVar(&cfg.TransformOperatorsBiggerThanGPU, prefix+"transform-operators-bigger-than-gpu", true, "Stream the inputs of blocking operators instead of concatenating them first.")
	f.IntVar(&cfg.PlanCacheSize, prefix+"plan-cache-size", 128, "Number of parsed plans to keep. 0 disables the cache.")
}

// RegisterFlags registers the flags of cfg under the "engine." prefix.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("engine.", f)
}

// Validate checks cfg for invalid values.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.CacheCapacity < 0 {
		errs = append(errs, fmt.Errorf("cache capacity must not be negative, got %d", cfg.CacheCapacity))
	}
	if cfg.MaxConcurrentScans < 0 {
		errs = append(errs, fmt.Errorf("max concurrent scans must not be negative, got %d", cfg.MaxConcurrentScans))
	}
	if cfg.PlanCacheSize < 0 {
		errs = append(errs, fmt.Errorf("plan cache size must not be negative, got %d", cfg.PlanCacheSize))
	}
	return errors.Join(errs...)
}
