package config

import (
	"strings"
	"time"
)

// TimeoutConfig controls the per-session inactivity coordinator.
// Warning thresholds are expressed as time remaining before the timeout.
type TimeoutConfig struct {
	DefaultTimeout   time.Duration `env:"DEFAULT_TIMEOUT"   envDefault:"30m" validate:"gt=0"`
	SensitiveTimeout time.Duration `env:"SENSITIVE_TIMEOUT" envDefault:"15m" validate:"gt=0,ltfield=DefaultTimeout"`
	ExtendedTimeout  time.Duration `env:"EXTENDED_TIMEOUT"  envDefault:"60m" validate:"gtfield=DefaultTimeout"`

	// SensitivePrefixes and ExtendedPrefixes select the route class by path prefix.
	SensitivePrefixes []string `env:"SENSITIVE_ROUTES" envDefault:"/payments;/payroll;/banking;/billing" envSeparator:";"`
	ExtendedPrefixes  []string `env:"EXTENDED_ROUTES"  envDefault:"/reports;/analytics;/dashboards"     envSeparator:";"`

	FirstWarning  time.Duration `env:"FIRST_WARNING"  envDefault:"5m" validate:"gt=0,ltfield=SensitiveTimeout"`
	UrgentWarning time.Duration `env:"URGENT_WARNING" envDefault:"2m" validate:"gt=0,ltfield=FirstWarning"`
	FinalWarning  time.Duration `env:"FINAL_WARNING"  envDefault:"1m" validate:"gt=0,ltfield=UrgentWarning"`

	GracePeriod      time.Duration `env:"GRACE_PERIOD"      envDefault:"30s" validate:"gt=0"`
	UnsavedExtension time.Duration `env:"UNSAVED_EXTENSION" envDefault:"5m"  validate:"gte=0"`
	ActivityThrottle time.Duration `env:"ACTIVITY_THROTTLE" envDefault:"1s"  validate:"gte=0"`
	LogoutTimeout    time.Duration `env:"LOGOUT_TIMEOUT"    envDefault:"5s"  validate:"gt=0"`

	// SlidingWindow resets the countdown on qualifying activity. Disable for absolute expiry.
	SlidingWindow bool `env:"SLIDING_WINDOW" envDefault:"true"`

	// RecoveryTTL bounds how long a recovery snapshot survives a forced logout.
	RecoveryTTL time.Duration `env:"RECOVERY_TTL" envDefault:"24h" validate:"gt=0"`
}

// Sanitize normalises route prefixes and repairs non-positive durations.
func (c *TimeoutConfig) Sanitize() {
	c.SensitivePrefixes = normalizePrefixes(c.SensitivePrefixes)
	c.ExtendedPrefixes = normalizePrefixes(c.ExtendedPrefixes)

	if c.GracePeriod <= 0 {
		c.GracePeriod = 30 * time.Second
	}
	if c.LogoutTimeout <= 0 {
		c.LogoutTimeout = 5 * time.Second
	}
	if c.ActivityThrottle < 0 {
		c.ActivityThrottle = 0
	}
	if c.UnsavedExtension < 0 {
		c.UnsavedExtension = 0
	}
}

func normalizePrefixes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		out = append(out, strings.TrimSuffix(p, "/"))
	}
	return out
}
