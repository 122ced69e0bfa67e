package bridge

import (
	"errors"

	"github.com/namuen/sensor-bot/internal/logic"
)

// CommandName identifies one of the operations exposed to chat users.
type CommandName string

const (
	CmdStatus          CommandName = "status"
	CmdSetLogChannel   CommandName = "setlogchannel"
	CmdSetAlertChannel CommandName = "setalertchannel"
	CmdSetThreshold    CommandName = "setthreshold"
)

var (
	// ErrUnknownCommand is returned by Dispatch for names it does not handle.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrStopped is returned by Dispatch once the loop has shut down.
	ErrStopped = errors.New("bridge stopped")
)

// Command is a request from the command surface.
type Command struct {
	Name CommandName
	// ChannelID is the channel the command was invoked from.
	ChannelID string
	// Threshold is the argument of setthreshold.
	Threshold int64
}

// Reply is the result of a command, ready for the command surface to render.
type Reply struct {
	Command CommandName

	// status
	HasData  bool
	Snapshot logic.Snapshot

	// setlogchannel / setalertchannel
	ChannelID string

	// setthreshold
	Threshold float64

	// SaveErr is set when the config change could not be persisted. The change
	// is still in effect for this process.
	SaveErr error
}
