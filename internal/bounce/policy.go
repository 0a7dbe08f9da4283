// Package bounce decides whether a received email is still eligible for
// bounce action.
package bounce

import (
	"strings"
	"time"

	"github.com/davidbowland/emails-email-api/internal/record"
)

// Window is how long after receipt an email may still be bounced.
const Window = 24 * time.Hour

// now is replaced in tests.
var now = time.Now

// CanEmailBeBounced reports whether the email is younger than the bounce
// window. An email exactly Window old is no longer eligible.
func CanEmailBeBounced(email record.Email) bool {
	age := now().UnixMilli() - email.Timestamp
	return age < Window.Milliseconds()
}

// SelectBounceSender picks the bounce sender for an account: the first
// recipient whose local part matches the account id, case-insensitively.
func SelectBounceSender(accountID string, to []string) (string, bool) {
	prefix := strings.ToLower(accountID) + "@"
	for _, recipient := range to {
		if strings.HasPrefix(strings.ToLower(recipient), prefix) {
			return recipient, true
		}
	}
	return "", false
}
