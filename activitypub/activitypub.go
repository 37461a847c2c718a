// Package activitypub implements the federation protocol engine: actor
// discovery, the inbox state machine, note serialization and delivery
// fan-out.
package activitypub

import (
	"time"

	"github.com/fedipub/fedipub/models"
)

// Env is the environment the federation handlers operate in.
type Env struct {
	*models.Env
	// Directory resolves and caches remote actor profiles.
	Directory *Directory
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return s
}

func boolFromAny(v any) bool {
	b, _ := v.(bool)
	return b
}

func mapFromAny(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// formatTime renders a timestamp the way remote servers expect it in
// published/updated properties.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// timeFromAnyOrZero parses an ActivityPub timestamp, tolerating both the
// second and sub-second forms.
func timeFromAnyOrZero(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z", "2006-01-02T15:04:05.999999999Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
