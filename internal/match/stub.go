package match

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// StubProvisioner is a development gateway that "creates" channels locally.
// The channel ref is derived from the event ref, so repeated calls for the
// same event return the same channel, matching the gateway's idempotency
// contract.
type StubProvisioner struct{}

func (StubProvisioner) ProvisionChannel(_ context.Context, eventRef string, members []uuid.UUID) (string, error) {
	channelRef := "channel-" + eventRef
	log.Printf("stub gateway: provisioned %s for %d members", channelRef, len(members))
	return channelRef, nil
}
