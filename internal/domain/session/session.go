// Package session holds the pure types of the inactivity timeout state machine:
// warning levels, qualifying activity kinds, route timeout policy, reason codes and
// the recovery snapshot written before a forced logout.
package session

import (
	"fmt"
	"strings"
	"time"
)

// WarningLevel escalates monotonically within one inactivity episode.
type WarningLevel int

const (
	LevelNone WarningLevel = iota
	LevelFirst
	LevelUrgent
	LevelFinal
)

var levelNames = [...]string{"none", "first", "urgent", "final"}

func (l WarningLevel) String() string {
	if l < LevelNone || l > LevelFinal {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// MarshalText encodes the level by name so JSON payloads stay readable.
func (l WarningLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText parses a level name.
func (l *WarningLevel) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for i, name := range levelNames {
		if name == s {
			*l = WarningLevel(i)
			return nil
		}
	}
	return fmt.Errorf("unknown warning level %q", s)
}

// ActivityKind names a browser interaction event.
type ActivityKind string

const (
	ActivityClick      ActivityKind = "click"
	ActivityKeyDown    ActivityKind = "keydown"
	ActivityTouchStart ActivityKind = "touchstart"
	ActivityFocus      ActivityKind = "focus"
	ActivityInput      ActivityKind = "input"
	ActivityChange     ActivityKind = "change"
	ActivitySubmit     ActivityKind = "submit"

	ActivityMouseMove ActivityKind = "mousemove"
	ActivityScroll    ActivityKind = "scroll"
	ActivityWheel     ActivityKind = "wheel"
)

// Qualifies reports whether the event counts as deliberate user activity.
// Pointer motion and scrolling never reset the countdown.
func (k ActivityKind) Qualifies() bool {
	switch ActivityKind(strings.ToLower(string(k))) {
	case ActivityClick, ActivityKeyDown, ActivityTouchStart, ActivityFocus,
		ActivityInput, ActivityChange, ActivitySubmit:
		return true
	default:
		return false
	}
}

// State is a point-in-time view of one coordinator. TimeRemaining is meaningful only
// when WarningLevel is above LevelNone.
type State struct {
	LastActivityAt    time.Time
	WarningLevel      WarningLevel
	TimeRemaining     time.Duration
	IsInGracePeriod   bool
	GraceRemaining    time.Duration
	CurrentTimeout    time.Duration
	HasUnsavedChanges bool
	Route             string
	Running           bool
	Extended          bool
}

// RecoverySnapshot captures in-flight work just before a forced logout so it can be
// restored after the next sign-in.
type RecoverySnapshot struct {
	Timestamp         time.Time                    `json:"timestamp"`
	CurrentPath       string                       `json:"current_path"`
	FormData          map[string]map[string]string `json:"form_data"`
	ScrollPosition    int                          `json:"scroll_position"`
	HasUnsavedChanges bool                         `json:"has_unsaved_changes"`
	UserID            string                       `json:"user_id"`
	TenantID          string                       `json:"tenant_id,omitempty"`
	Reason            ReasonCode                   `json:"reason"`
}

// NoticeKind classifies a user-facing notice emitted by the coordinator.
type NoticeKind string

const (
	NoticeWarning          NoticeKind = "warning"
	NoticeGrace            NoticeKind = "grace"
	NoticeUnsavedExtension NoticeKind = "unsaved_extension"
	NoticeCancelled        NoticeKind = "cancelled"
	NoticeExtended         NoticeKind = "extended"
	NoticeExpired          NoticeKind = "expired"
)

// Notice is a non-blocking message for the UI (toast, badge or countdown).
type Notice struct {
	At            time.Time
	Kind          NoticeKind
	Level         WarningLevel
	TimeRemaining time.Duration
	Message       string
}
