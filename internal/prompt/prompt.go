// Package prompt loads the agent's system prompt template and resolves its
// time placeholder so the model always knows the current date.
package prompt

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// nowPlaceholder is the literal token the prompt templates use for the
// current timestamp, expanded in the Paris timezone (UTC+1).
const nowPlaceholder = "{{ $now.setZone('UTC+1') }}"

var parisZone = time.FixedZone("UTC+1", 3600)

// Load reads the prompt file at path and substitutes the time placeholder
// with the current time.
func Load(path string) (string, error) {
	return LoadAt(path, time.Now())
}

// LoadAt is Load with an explicit clock, for tests.
func LoadAt(path string, now time.Time) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "read prompt %s", path)
	}
	return Render(string(raw), now), nil
}

// Render substitutes the time placeholder in an already-loaded template.
func Render(template string, now time.Time) string {
	stamp := now.In(parisZone).Format("2006-01-02T15:04:05.000-07:00")
	return strings.ReplaceAll(template, nowPlaceholder, stamp)
}
