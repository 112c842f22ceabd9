// Package configuration reads env-style configuration files and maps their
// keys onto a [kernel.Config].
package configuration

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/desertwitch/kcore/internal/kernel"
)

// Configuration keys understood by [Handler.Apply].
const (
	KeyMaxThreads   = "KCORE_MAX_THREADS"
	KeyRequestCount = "KCORE_REQUEST_COUNT"
	KeyHandlerCount = "KCORE_HANDLER_COUNT"
	KeyNodeGrow     = "KCORE_NODE_GROW"
	KeyMaxNodes     = "KCORE_MAX_NODES"
	KeyTimesliceMS  = "KCORE_TIMESLICE_MS"
	KeySimThreads   = "KCORE_SIM_THREADS"
	KeySimRounds    = "KCORE_SIM_ROUNDS"
	KeyRandomSeed   = "KCORE_RANDOM_SEED"
)

type genericConfigProvider interface {
	Read(filenames ...string) (envMap map[string]string, err error)
}

// Handler is the principal implementation of the configuration reader.
type Handler struct {
	GenericHandler genericConfigProvider
}

// NewHandler returns a pointer to a new configuration [Handler].
func NewHandler(genericHandler genericConfigProvider) *Handler {
	return &Handler{
		GenericHandler: genericHandler,
	}
}

// ReadGeneric reads the files into a map (map[key]value).
func (c *Handler) ReadGeneric(filenames ...string) (map[string]string, error) {
	envMap, err := c.GenericHandler.Read(filenames...)
	if err != nil {
		return nil, fmt.Errorf("(config-read) %w", err)
	}

	return envMap, nil
}

// MapKeyToString returns the value of the key or "" if it does not exist.
func (c *Handler) MapKeyToString(envMap map[string]string, key string) string {
	if value, exists := envMap[key]; exists {
		return value
	}

	return ""
}

// MapKeyToInt returns the value of the key as int or -1 if it does not exist
// or cannot be converted.
func (c *Handler) MapKeyToInt(envMap map[string]string, key string) int {
	value := c.MapKeyToString(envMap, key)
	if value == "" {
		return -1
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return -1
	}

	return intValue
}

// MapKeyToInt64 returns the value of the key as int64 or -1 if it does not
// exist or cannot be converted.
func (c *Handler) MapKeyToInt64(envMap map[string]string, key string) int64 {
	value := c.MapKeyToString(envMap, key)
	if value == "" {
		return -1
	}

	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return -1
	}

	return intValue
}

// MapKeyToUInt64 returns the value of the key as uint64 or 0 if it does not
// exist or cannot be converted.
func (c *Handler) MapKeyToUInt64(envMap map[string]string, key string) uint64 {
	value := c.MapKeyToString(envMap, key)
	if value == "" {
		return 0
	}

	uintValue, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}

	return uintValue
}

// Apply overrides the fields of cfg with the positive values found in the
// map. Missing, malformed and non-positive values keep the current field.
func (c *Handler) Apply(cfg *kernel.Config, envMap map[string]string) {
	ints := []struct {
		key   string
		field *int
	}{
		{KeyMaxThreads, &cfg.MaxThreads},
		{KeyRequestCount, &cfg.RequestCount},
		{KeyHandlerCount, &cfg.HandlerCount},
		{KeyNodeGrow, &cfg.NodeGrow},
		{KeyMaxNodes, &cfg.MaxNodes},
		{KeySimThreads, &cfg.SimThreads},
		{KeySimRounds, &cfg.SimRounds},
	}

	for _, i := range ints {
		if v := c.MapKeyToInt(envMap, i.key); v > 0 {
			*i.field = v
		} else if _, exists := envMap[i.key]; exists {
			slog.Warn("Ignoring invalid configuration value.", "key", i.key, "value", envMap[i.key])
		}
	}

	if ms := c.MapKeyToInt64(envMap, KeyTimesliceMS); ms > 0 {
		cfg.Timeslice = time.Duration(ms) * time.Millisecond
	}

	if _, exists := envMap[KeyRandomSeed]; exists {
		cfg.RandomSeed = c.MapKeyToUInt64(envMap, KeyRandomSeed)
	}
}

// Load reads the files and applies them to cfg. Without files, cfg is left
// untouched.
func (c *Handler) Load(cfg *kernel.Config, filenames ...string) error {
	if len(filenames) == 0 {
		return nil
	}

	envMap, err := c.ReadGeneric(filenames...)
	if err != nil {
		return fmt.Errorf("(config-load) %w", err)
	}

	c.Apply(cfg, envMap)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("(config-load) %w", err)
	}

	return nil
}
