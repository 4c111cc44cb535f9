package auth

import (
	"context"
	"log"

	"github.com/gatherly/server/internal/model"
)

// Notifier delivers plaintext OTP codes out-of-band. Delivery is
// fire-and-forget: failures are logged by the implementation, never surfaced
// to the caller.
type Notifier interface {
	SendCode(ctx context.Context, contact, code string, purpose model.Purpose)
}

// LogNotifier is a development notifier that logs a masked delivery record
// instead of sending anything. The plaintext code is never logged.
type LogNotifier struct{}

func (LogNotifier) SendCode(_ context.Context, contact, _ string, purpose model.Purpose) {
	log.Printf("otp dispatch: contact=%s purpose=%s", MaskContact(contact), purpose)
}

// MaskContact hides all but the last two characters of a contact identifier
// for logging.
func MaskContact(contact string) string {
	if len(contact) <= 2 {
		return "**"
	}
	masked := make([]byte, len(contact)-2)
	for i := range masked {
		masked[i] = '*'
	}
	return string(masked) + contact[len(contact)-2:]
}
