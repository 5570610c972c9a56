package insights

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckTyposquat(t *testing.T) {
	popular := []string{"react", "lodash", "express", "event-stream"}

	tests := []struct {
		name        string
		pkg         string
		maxDistance int
		wantTarget  string
	}{
		{"one edit off", "lodahs", 2, "lodash"},
		{"two edits off", "expres", 2, "express"},
		{"exact match is not a squat", "react", 2, ""},
		{"too far away", "totally-unrelated", 2, ""},
		{"distance beyond threshold", "lodsah", 1, ""},
		{"scoped variant normalizes", "@evil/lodahs", 2, "lodash"},
		{"scoped exact name is clean", "@types/react", 2, ""},
		{"zero threshold disables detection", "lodahs", 0, ""},
		{"hyphenated target", "event-strean", 2, "event-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match := CheckTyposquat(tt.pkg, popular, tt.maxDistance)
			if tt.wantTarget == "" {
				assert.Nil(t, match)
				return
			}
			require.NotNil(t, match)
			assert.Equal(t, tt.wantTarget, match.Target)
			assert.LessOrEqual(t, match.Distance, tt.maxDistance)
			assert.Greater(t, match.Confidence, 0.0)
		})
	}
}

func TestCheckTyposquatPicksClosestTarget(t *testing.T) {
	// "reacd" is 1 edit from "react" and 2 from "redact".
	match := CheckTyposquat("reacd", []string{"redact", "react"}, 2)
	require.NotNil(t, match)
	assert.Equal(t, "react", match.Target)
	assert.Equal(t, 1, match.Distance)
}

func TestCheckTyposquatIgnoresShortTargets(t *testing.T) {
	// Two edits against a four-character name is noise, not a typo.
	assert.Nil(t, CheckTyposquat("zz", []string{"zod"}, 2))
}
