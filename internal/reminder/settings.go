package reminder

import (
	"strings"
	"time"
)

// Settings is the per-chat configuration stored next to the reminders.
//
// The zero value (apart from ScopeID) is valid: UTC, no destination override,
// no manager role.
type Settings struct {
	ScopeID     int64     `json:"scope_id"`
	Timezone    string    `json:"timezone,omitempty"`
	Destination string    `json:"destination,omitempty"`
	ManagerRole string    `json:"manager_role,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DefaultSettings is what a chat gets before anyone runs /settings.
func DefaultSettings(scope int64) Settings {
	return Settings{ScopeID: scope, Timezone: "UTC"}
}

// Location resolves Timezone, falling back to UTC when it is empty or unknown.
func (s Settings) Location() *time.Location {
	tz := strings.TrimSpace(s.Timezone)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// EffectiveDestination returns the override if set, else fallback.
func (s Settings) EffectiveDestination(fallback string) string {
	if d := strings.TrimSpace(s.Destination); d != "" {
		return d
	}
	return fallback
}
