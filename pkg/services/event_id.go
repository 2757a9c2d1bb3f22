package services

import (
	"crypto/sha256"
	"encoding/base32"
	"strings"
	"time"

	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

// eventIDEncoding is base32hex in lower case, the alphabet calendar event
// identifiers accept.
var eventIDEncoding = base32.NewEncoding("0123456789abcdefghijklmnopqrstuv").WithPadding(base32.NoPadding)

// DeterministicEventID derives the identifier requested from the calendar for
// a new event without one. Retries and concurrent requests for the same
// (summary, start, end) ask for the same identifier, so the calendar rejects
// the second insert instead of creating a duplicate.
func DeterministicEventID(summary string, start, end time.Time) string {
	key := strings.Join([]string{
		models.NormalizeName(summary),
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
	}, "|")
	sum := sha256.Sum256([]byte(key))
	return "ev" + eventIDEncoding.EncodeToString(sum[:20])
}

// sameSummary compares summaries the way the drift heuristic does.
func sameSummary(a, b string) bool {
	na := models.NormalizeName(a)
	return na != "" && na == models.NormalizeName(b)
}
