package featureflag

import (
	"slices"
	"strings"
)

// FeatureFlag is a lookup map for features that are enabled or disabled.
type FeatureFlag map[Flag]struct{}

// New returns feature flags initialized with a list of flags. Flags are
// trimmed and upper cased so that "disable_region_state " matches
// FlagDisableRegionState.
func New(flags []string) FeatureFlag {
	featureFlag := make(FeatureFlag)
	for _, f := range flags {
		f = strings.ToUpper(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		featureFlag[Flag(f)] = struct{}{}
	}
	return featureFlag
}

// IsSet reports whether the flag is set.
func (f FeatureFlag) IsSet(flag Flag) bool {
	_, ok := f[flag]
	return ok
}

// IfSet runs function `do` if flag is set in the feature flags
func (f FeatureFlag) IfSet(flag Flag, do func()) {
	if !f.IsSet(flag) {
		return
	}
	do()
}

// IfNotSet runs function `do` if flag is not set in the feature flags
func (f FeatureFlag) IfNotSet(flag Flag, do func()) {
	if f.IsSet(flag) {
		return
	}
	do()
}

// Unknown returns the set flags that are not part of Known, sorted.
func (f FeatureFlag) Unknown() []string {
	known := Known()

	var unknown []string
	for flag := range f {
		if !slices.Contains(known, flag) {
			unknown = append(unknown, string(flag))
		}
	}
	slices.Sort(unknown)
	return unknown
}
