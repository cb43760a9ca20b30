package config

import (
	"errors"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Predefined feature flag names.
const (
	// FeatureExamRequireEligibility skips seminar promotions for students
	// whose hours are below the minimum for their grade.
	FeatureExamRequireEligibility = "exam.require_eligibility"

	// FeatureScheduleDistributedLock serializes schedule extension through
	// Redis instead of relying on row locks alone.
	FeatureScheduleDistributedLock = "schedule.distributed_lock"

	// FeatureProgressCache caches student progress views in Redis.
	FeatureProgressCache = "progress.cache"
)

// ErrFeatureNotFound is returned for an unknown flag name.
var ErrFeatureNotFound = errors.New("feature not found")

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool
}

// FeatureFlags is a set of named on/off toggles, safe for concurrent use.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// LoadFeatureFlags builds the defaults and applies FEATURE_<NAME> overrides.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature)}
	ff.register(FeatureExamRequireEligibility, "Skip seminar promotions below the minimum hours", false)
	ff.register(FeatureScheduleDistributedLock, "Hold a Redis lock while extending or deactivating a schedule", true)
	ff.register(FeatureProgressCache, "Cache student progress views in Redis", true)
	ff.loadFromEnvironment()
	return ff
}

func (ff *FeatureFlags) register(name, description string, enabled bool) {
	ff.features[name] = &Feature{Name: name, Description: description, Enabled: enabled}
}

// loadFromEnvironment applies overrides of the form FEATURE_<NAME>=true|false.
// "schedule.distributed_lock" -> "FEATURE_SCHEDULE_DISTRIBUTED_LOCK"
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		if b, err := strconv.ParseBool(os.Getenv(featureNameToEnvKey(name))); err == nil {
			feature.Enabled = b
		}
	}
}

func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled reports whether a flag is on. Unknown flags are off.
func (ff *FeatureFlags) IsEnabled(name string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	f, ok := ff.features[name]
	return ok && f.Enabled
}

// Set flips a flag at runtime.
func (ff *FeatureFlags) Set(name string, enabled bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	f, ok := ff.features[name]
	if !ok {
		return ErrFeatureNotFound
	}
	f.Enabled = enabled
	return nil
}

// All returns a copy of every flag sorted by name.
func (ff *FeatureFlags) All() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	out := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
