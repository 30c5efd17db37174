// Package frame implements C3, the pure textual-command encoder that turns
// a ShadeRecord and an Action into the line transmitted to the
// microcontroller.
package frame

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shadecommander/dispatcher/internal/shadestore"
)

// ErrActionNotConfigured is returned when the selected action's payload for
// this shade is the "FF FF" sentinel.
var ErrActionNotConfigured = errors.New("frame: action not configured for shade")

const ccChannelTag = "CC"

// TxCommand is the stable, firmware-facing wire line (spec.md §3, §6):
//
//	TX:<remote_id_hex>,<header>,<id_bytes>,<payload>,<family_flag>,<common>,<cc_flag>,<action_code>
type TxCommand string

// Encode builds the TxCommand for one RF transmission. It fails with
// ErrActionNotConfigured, or with a plain error for an Action value outside
// raise/lower/stop.
func Encode(rec *shadestore.ShadeRecord, action shadestore.Action) (TxCommand, error) {
	payload := rec.PayloadFor(action)
	if stripSpaces(payload) == shadestore.ActionPayloadSentinel {
		return "", fmt.Errorf("%w: shade %d action %s", ErrActionNotConfigured, rec.ShadeID, action)
	}

	familyFlag := 0
	if rec.RemoteFamily != shadestore.Family6Channel {
		familyFlag = 1
	}

	ccFlag := 0
	if rec.ChannelTag == ccChannelTag {
		ccFlag = 1
	}

	actionCode, err := actionCode(action)
	if err != nil {
		return "", err
	}

	fields := []string{
		fmt.Sprintf("%02X", rec.RemoteID),
		stripSpaces(rec.Header),
		stripSpaces(rec.IDBytes),
		stripSpaces(payload),
		fmt.Sprintf("%d", familyFlag),
		stripSpaces(rec.CommonHex),
		fmt.Sprintf("%d", ccFlag),
		fmt.Sprintf("%d", actionCode),
	}

	return TxCommand("TX:" + strings.Join(fields, ",")), nil
}

// actionCode implements spec.md §4.3: 0 raise, 1 lower, 2 stop. No other
// value is ever produced (spec.md P5).
func actionCode(a shadestore.Action) (int, error) {
	switch a {
	case shadestore.ActionRaise:
		return 0, nil
	case shadestore.ActionLower:
		return 1, nil
	case shadestore.ActionStop:
		return 2, nil
	default:
		return 0, fmt.Errorf("frame: unknown action %v", a)
	}
}

func stripSpaces(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

// Line renders the command as the newline-terminated line written to the
// serial port.
func (c TxCommand) Line() string {
	return string(c) + "\n"
}
