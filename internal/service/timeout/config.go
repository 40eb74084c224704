package timeout

import (
	"time"

	"github.com/target/sessionguard/config"
	"github.com/target/sessionguard/internal/domain/session"
)

// Config drives every coordinator created from it. Warning thresholds are the time
// remaining before the deadline at which each level begins.
type Config struct {
	Policy session.RoutePolicy

	FirstWarning  time.Duration
	UrgentWarning time.Duration
	FinalWarning  time.Duration

	GracePeriod      time.Duration
	UnsavedExtension time.Duration
	ActivityThrottle time.Duration
	LogoutTimeout    time.Duration
	RecoveryTTL      time.Duration
	SlidingWindow    bool

	// Poll intervals while at none/first, urgent and final respectively.
	CoarsePoll time.Duration
	FinePoll   time.Duration
	FinalPoll  time.Duration

	// SignInPath receives the forced-logout redirect.
	SignInPath string
}

// DefaultConfig mirrors the environment defaults.
func DefaultConfig() Config {
	return Config{
		Policy: session.RoutePolicy{
			Default:           30 * time.Minute,
			Sensitive:         15 * time.Minute,
			Extended:          60 * time.Minute,
			SensitivePrefixes: []string{"/payments", "/payroll", "/banking", "/billing"},
			ExtendedPrefixes:  []string{"/reports", "/analytics", "/dashboards"},
		},
		FirstWarning:     5 * time.Minute,
		UrgentWarning:    2 * time.Minute,
		FinalWarning:     time.Minute,
		GracePeriod:      30 * time.Second,
		UnsavedExtension: 5 * time.Minute,
		ActivityThrottle: time.Second,
		LogoutTimeout:    5 * time.Second,
		RecoveryTTL:      24 * time.Hour,
		SlidingWindow:    true,
		CoarsePoll:       60 * time.Second,
		FinePoll:         10 * time.Second,
		FinalPoll:        time.Second,
		SignInPath:       "/auth/signed-out",
	}
}

// ConfigFrom builds a coordinator config from application configuration.
func ConfigFrom(tc config.TimeoutConfig, signInPath string) Config {
	cfg := DefaultConfig()
	cfg.Policy = session.RoutePolicy{
		Default:           tc.DefaultTimeout,
		Sensitive:         tc.SensitiveTimeout,
		Extended:          tc.ExtendedTimeout,
		SensitivePrefixes: tc.SensitivePrefixes,
		ExtendedPrefixes:  tc.ExtendedPrefixes,
	}
	cfg.FirstWarning = tc.FirstWarning
	cfg.UrgentWarning = tc.UrgentWarning
	cfg.FinalWarning = tc.FinalWarning
	cfg.GracePeriod = tc.GracePeriod
	cfg.UnsavedExtension = tc.UnsavedExtension
	cfg.ActivityThrottle = tc.ActivityThrottle
	cfg.LogoutTimeout = tc.LogoutTimeout
	cfg.RecoveryTTL = tc.RecoveryTTL
	cfg.SlidingWindow = tc.SlidingWindow
	if signInPath != "" {
		cfg.SignInPath = signInPath
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Policy.Default <= 0 {
		c.Policy.Default = d.Policy.Default
	}
	if c.Policy.Sensitive <= 0 {
		c.Policy.Sensitive = c.Policy.Default
	}
	if c.Policy.Extended <= 0 {
		c.Policy.Extended = c.Policy.Default
	}
	fill := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&c.FirstWarning, d.FirstWarning)
	fill(&c.UrgentWarning, d.UrgentWarning)
	fill(&c.FinalWarning, d.FinalWarning)
	fill(&c.GracePeriod, d.GracePeriod)
	fill(&c.LogoutTimeout, d.LogoutTimeout)
	fill(&c.RecoveryTTL, d.RecoveryTTL)
	fill(&c.CoarsePoll, d.CoarsePoll)
	fill(&c.FinePoll, d.FinePoll)
	fill(&c.FinalPoll, d.FinalPoll)
	if c.ActivityThrottle < 0 {
		c.ActivityThrottle = 0
	}
	if c.UnsavedExtension < 0 {
		c.UnsavedExtension = 0
	}
	if c.SignInPath == "" {
		c.SignInPath = d.SignInPath
	}
	return c
}

// levelFor maps time remaining to the warning level it implies.
func (c Config) levelFor(remaining time.Duration) session.WarningLevel {
	switch {
	case remaining <= c.FinalWarning:
		return session.LevelFinal
	case remaining <= c.UrgentWarning:
		return session.LevelUrgent
	case remaining <= c.FirstWarning:
		return session.LevelFirst
	default:
		return session.LevelNone
	}
}

// boundaryBelow is the remaining-time threshold that starts the level after l.
func (c Config) boundaryBelow(l session.WarningLevel) time.Duration {
	switch l {
	case session.LevelNone:
		return c.FirstWarning
	case session.LevelFirst:
		return c.UrgentWarning
	case session.LevelUrgent:
		return c.FinalWarning
	default:
		return 0
	}
}

func (c Config) pollFor(l session.WarningLevel) time.Duration {
	switch l {
	case session.LevelUrgent:
		return c.FinePoll
	case session.LevelFinal:
		return c.FinalPoll
	default:
		return c.CoarsePoll
	}
}

// nextTick returns the delay until the next evaluation: the level's poll interval,
// clamped so the tick lands exactly on the next threshold (or the deadline).
func (c Config) nextTick(l session.WarningLevel, remaining time.Duration) time.Duration {
	d := min(c.pollFor(l), remaining-c.boundaryBelow(l))
	return max(d, 0)
}
