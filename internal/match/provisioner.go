package match

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrGatewayUnavailable wraps provisioning failures from the messaging
// collaborator.
var ErrGatewayUnavailable = errors.New("channel gateway unavailable")

// Provisioner is the narrow gateway to the messaging collaborator. It must be
// idempotent per event: calling it again after a partial failure returns the
// same channel.
type Provisioner interface {
	ProvisionChannel(ctx context.Context, eventRef string, members []uuid.UUID) (channelRef string, err error)
}
