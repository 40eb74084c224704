// Package tenant defines the tenant identity produced by resolution and the rules for
// what counts as a well-formed tenant identifier.
package tenant

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source records where a tenant id came from. Lower values carry more trust.
type Source int

const (
	SourceSession Source = iota
	SourceCache
	SourceIdentityProvider
	SourceLegacyFallback
)

var sourceNames = [...]string{"session", "cache", "identity_provider", "legacy_fallback"}

func (s Source) String() string {
	if s < SourceSession || s > SourceLegacyFallback {
		return fmt.Sprintf("source(%d)", int(s))
	}
	return sourceNames[s]
}

// MarshalText encodes the source by name.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outranks reports whether s wins over other in a conflict.
func (s Source) Outranks(other Source) bool { return s < other }

// Conflict is a disagreeing value seen from a lower-priority source.
type Conflict struct {
	Source   Source `json:"source"`
	TenantID string `json:"tenant_id"`
}

// Identity is the authoritative tenant for one session.
type Identity struct {
	TenantID    string     `json:"tenant_id"`
	Source      Source     `json:"source"`
	ResolvedAt  time.Time  `json:"resolved_at"`
	FormatValid bool       `json:"format_valid"`
	Conflicts   []Conflict `json:"conflicts,omitempty"`
}

// HasConflict reports whether any other source disagreed during resolution.
func (i Identity) HasConflict() bool { return len(i.Conflicts) > 0 }

// ConflictFrom reports whether src disagreed with the winning value.
func (i Identity) ConflictFrom(src Source) bool {
	for _, c := range i.Conflicts {
		if c.Source == src {
			return true
		}
	}
	return false
}

var businessIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{6,16}$`)

// ValidateID accepts a canonical hyphenated UUID or a short hex business id.
func ValidateID(id string) error {
	if id == "" {
		return ErrInvalidFormat
	}
	if len(id) == 36 && strings.Count(id, "-") == 4 {
		if _, err := uuid.Parse(id); err == nil {
			return nil
		}
	}
	if businessIDPattern.MatchString(id) {
		return nil
	}
	return ErrInvalidFormat
}

// Normalize trims whitespace and surrounding quotes that some legacy stores leave behind.
func Normalize(id string) string {
	return strings.Trim(strings.TrimSpace(id), `"'`)
}
