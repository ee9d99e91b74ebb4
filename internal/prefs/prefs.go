// Package prefs holds the clipboard policy flags and the sources they are
// read from.
package prefs

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"
)

// Preference keys as stored in the config table.
const (
	KeyUseInternalClipboard           = "use_internal_clipboard"
	KeySyncToSystem                   = "sync_to_system"
	KeySyncFromSystem                 = "sync_from_system"
	KeyHistoryEnabled                 = "history_enabled"
	KeyLimitHistorySize               = "limit_history_size"
	KeyMaxHistorySize                 = "max_history_size"
	KeyCleanUpOld                     = "clean_up_old"
	KeyCleanUpAfterMinutes            = "clean_up_after_minutes"
	KeyAutoCleanSensitive             = "auto_clean_sensitive"
	KeyAutoCleanSensitiveAfterSeconds = "auto_clean_sensitive_after_seconds"
)

// ErrUnknownKey is returned for a key that is not a preference.
var ErrUnknownKey = errors.New("unknown preference")

// ErrInvalidValue is returned when a value cannot be parsed for its key.
var ErrInvalidValue = errors.New("invalid preference value")

// Policy is the set of flags that drives the clipboard coordinator.
type Policy struct {
	// UseInternalClipboard makes the application's own primary clip
	// authoritative instead of mirroring the host clipboard.
	UseInternalClipboard bool
	// SyncToSystem mirrors internal writes to the host when the internal
	// clipboard is authoritative.
	SyncToSystem bool
	// SyncFromSystem pulls host-originated changes into the primary clip
	// and history.
	SyncFromSystem bool
	HistoryEnabled bool

	LimitHistorySize bool
	MaxHistorySize   int

	CleanUpOld   bool
	CleanUpAfter time.Duration

	AutoCleanSensitive      bool
	AutoCleanSensitiveAfter time.Duration
}

// Defaults returns the policy used when nothing has been configured.
func Defaults() Policy {
	return Policy{
		UseInternalClipboard:    false,
		SyncToSystem:            false,
		SyncFromSystem:          true,
		HistoryEnabled:          true,
		LimitHistorySize:        true,
		MaxHistorySize:          20,
		CleanUpOld:              false,
		CleanUpAfter:            20 * time.Minute,
		AutoCleanSensitive:      false,
		AutoCleanSensitiveAfter: 20 * time.Second,
	}
}

// PushesToHost reports whether primary-clip writes are mirrored to the host.
func (p Policy) PushesToHost() bool {
	return !p.UseInternalClipboard || p.SyncToSystem
}

// PullsFromHost reports whether host changes are ingested.
func (p Policy) PullsFromHost() bool {
	return !p.UseInternalClipboard || p.SyncFromSystem
}

// Source supplies the current policy. Implementations are read on every
// decision, so changes take effect without a restart.
type Source interface {
	Policy() Policy
}

// Static is a fixed policy.
type Static Policy

// Policy implements Source.
func (s Static) Policy() Policy {
	return Policy(s)
}

type keyDef struct {
	get func(p *Policy) string
	set func(p *Policy, v string) error
}

func boolKey(field func(p *Policy) *bool) keyDef {
	return keyDef{
		get: func(p *Policy) string { return strconv.FormatBool(*field(p)) },
		set: func(p *Policy, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, v)
			}
			*field(p) = b
			return nil
		},
	}
}

func intKey(lo, hi int, get func(p *Policy) int, set func(p *Policy, n int)) keyDef {
	return keyDef{
		get: func(p *Policy) string { return strconv.Itoa(get(p)) },
		set: func(p *Policy, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, v)
			}
			if n < lo || n > hi {
				return fmt.Errorf("%w: %d is outside %d..%d", ErrInvalidValue, n, lo, hi)
			}
			set(p, n)
			return nil
		},
	}
}

var keys = map[string]keyDef{
	KeyUseInternalClipboard: boolKey(func(p *Policy) *bool { return &p.UseInternalClipboard }),
	KeySyncToSystem:         boolKey(func(p *Policy) *bool { return &p.SyncToSystem }),
	KeySyncFromSystem:       boolKey(func(p *Policy) *bool { return &p.SyncFromSystem }),
	KeyHistoryEnabled:       boolKey(func(p *Policy) *bool { return &p.HistoryEnabled }),
	KeyLimitHistorySize:     boolKey(func(p *Policy) *bool { return &p.LimitHistorySize }),
	KeyMaxHistorySize: intKey(1, 10000,
		func(p *Policy) int { return p.MaxHistorySize },
		func(p *Policy, n int) { p.MaxHistorySize = n }),
	KeyCleanUpOld: boolKey(func(p *Policy) *bool { return &p.CleanUpOld }),
	KeyCleanUpAfterMinutes: intKey(1, 60*24*365,
		func(p *Policy) int { return int(p.CleanUpAfter / time.Minute) },
		func(p *Policy, n int) { p.CleanUpAfter = time.Duration(n) * time.Minute }),
	KeyAutoCleanSensitive: boolKey(func(p *Policy) *bool { return &p.AutoCleanSensitive }),
	KeyAutoCleanSensitiveAfterSeconds: intKey(1, 60*60*24,
		func(p *Policy) int { return int(p.AutoCleanSensitiveAfter / time.Second) },
		func(p *Policy, n int) { p.AutoCleanSensitiveAfter = time.Duration(n) * time.Second }),
}

// Keys returns every preference key in sorted order.
func Keys() []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Normalize validates value for key and returns its canonical form.
func Normalize(key, value string) (string, error) {
	def, ok := keys[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	var p Policy
	if err := def.set(&p, value); err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	return def.get(&p), nil
}

// Value returns the string form of key within p.
func (p Policy) Value(key string) (string, error) {
	def, ok := keys[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return def.get(&p), nil
}

// FromValues builds a policy from stored key/value pairs. Unknown keys are
// ignored; missing or invalid values keep their defaults and are reported
// in the returned slice.
func FromValues(values map[string]string) (Policy, []string) {
	p := Defaults()
	var invalid []string
	for key, def := range keys {
		v, ok := values[key]
		if !ok {
			continue
		}
		if err := def.set(&p, v); err != nil {
			invalid = append(invalid, key)
		}
	}
	slices.Sort(invalid)
	return p, invalid
}
