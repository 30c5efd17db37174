// Package transmit wires C1 (directory lookup) -> C3 (frame encoding) ->
// C2 (link write) into the single operation both the retry scheduler and
// the scene executor drive.
package transmit

import (
	"context"
	"time"

	"github.com/shadecommander/dispatcher/internal/frame"
	"github.com/shadecommander/dispatcher/internal/link"
	"github.com/shadecommander/dispatcher/internal/shadestore"
)

// burstReadBudget is the read budget passed to the link for a fire-and-
// forget transmission: spec.md §4.2 treats "no reply" as success, so this
// stays small to avoid holding the exclusive lock any longer than needed.
const burstReadBudget = 50 * time.Millisecond

// RFTransmitter implements both retry.Transmitter and scene.Transmitter.
type RFTransmitter struct {
	Directory shadestore.Directory
	LinkOwner *link.Owner
}

// Transmit looks up shadeID, encodes action into a TxCommand, and writes it
// through the link. ActionNotConfigured and NotFound are the only errors a
// caller should treat as meaningfully different from a transient link
// failure — both are logged by the caller, never surfaced synchronously,
// since by the time a background task calls Transmit the enqueue has
// already returned (spec.md §7).
func (t *RFTransmitter) Transmit(ctx context.Context, shadeID int64, action shadestore.Action) error {
	rec, err := t.Directory.Lookup(ctx, shadeID)
	if err != nil {
		return err
	}

	cmd, err := frame.Encode(rec, action)
	if err != nil {
		return err
	}

	_, err = t.LinkOwner.SendLine(ctx, string(cmd), burstReadBudget)
	return err
}
