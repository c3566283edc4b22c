package keyrange

import "github.com/brlapi/brlapi-core/internal/wire"

// Command codes that must never be handed out to a commands-how client
// (spec §4.5). The true command-code space is owned by the external core
// (screen scraper / speech glue) and is out of this repo's scope; these
// constants exist only so the privileged-exclusion rule has concrete
// values to test against, one per name in the spec's fixed list.
const (
	CmdOffline uint32 = iota + 1
	CmdNoop
	CmdRestartBRL
	CmdBRLStart
	CmdBRLStop
	CmdRestartSpeech
	CmdSpkBase   // SPK_* family starts here
	CmdScrBase   // SCR_* family starts here
	CmdSwitchVT  // SWITCHVT*
	CmdSelectVT  // SELECTVT*
	CmdPassXT
	CmdPassAT
	CmdPassPS2
	CmdContext
	CmdAlert
	CmdPassDots
)

// PrivilegedCommands enumerates the commands a commands-how connection
// must start without access to.
var PrivilegedCommands = []uint32{
	CmdOffline, CmdNoop, CmdRestartBRL, CmdBRLStart, CmdBRLStop,
	CmdRestartSpeech, CmdSpkBase, CmdScrBase, CmdSwitchVT, CmdSelectVT,
	CmdPassXT, CmdPassAT, CmdPassPS2, CmdContext, CmdAlert, CmdPassDots,
}

// commandNames and commandSummaries give the privileged commands a
// human-readable identity for PARAM_COMMAND_KEYCODE_NAME/SUMMARY (spec
// §4.8), mirroring the fixed names the spec's PrivilegedCommands list is
// drawn from.
var commandNames = map[uint32]string{
	CmdOffline:       "OFFLINE",
	CmdNoop:          "NOOP",
	CmdRestartBRL:    "RESTARTBRL",
	CmdBRLStart:      "BRLSTART",
	CmdBRLStop:       "BRLSTOP",
	CmdRestartSpeech: "RESTARTSPEECH",
	CmdSpkBase:       "SPK",
	CmdScrBase:       "SCR",
	CmdSwitchVT:      "SWITCHVT",
	CmdSelectVT:      "SELECTVT",
	CmdPassXT:        "PASSXT",
	CmdPassAT:        "PASSAT",
	CmdPassPS2:       "PASSPS2",
	CmdContext:       "CONTEXT",
	CmdAlert:         "ALERT",
	CmdPassDots:      "PASSDOTS",
}

var commandSummaries = map[uint32]string{
	CmdOffline:       "take the display offline",
	CmdNoop:          "no operation",
	CmdRestartBRL:    "restart the braille driver",
	CmdBRLStart:      "start the braille driver",
	CmdBRLStop:       "stop the braille driver",
	CmdRestartSpeech: "restart the speech driver",
	CmdSpkBase:       "speech command family",
	CmdScrBase:       "screen command family",
	CmdSwitchVT:      "switch to a virtual terminal",
	CmdSelectVT:      "select a virtual terminal",
	CmdPassXT:        "pass an XT scan code through",
	CmdPassAT:        "pass an AT scan code through",
	CmdPassPS2:       "pass a PS/2 scan code through",
	CmdContext:       "switch command context",
	CmdAlert:         "sound an alert",
	CmdPassDots:      "pass raw braille dots through",
}

// CommandName returns the human-readable name of a command code, or ""
// if cmd names nothing in PrivilegedCommands.
func CommandName(cmd uint32) string {
	return commandNames[cmd]
}

// CommandSummary returns the human-readable summary of a command code,
// or "" if cmd names nothing in PrivilegedCommands.
func CommandSummary(cmd uint32) string {
	return commandSummaries[cmd]
}

// DefaultForHow returns the initial accepted-key set for a connection
// entering tty mode in the given delivery style: the full key space for
// driver-key-codes clients, or the full space minus PrivilegedCommands
// for commands clients (spec §4.5).
func DefaultForHow(driverKeyCodes bool) *Set {
	s := NewFull()
	if driverKeyCodes {
		return s
	}
	for _, cmd := range PrivilegedCommands {
		press := wire.Pack(wire.Fields{Type: wire.KeyTypeCommand, Command: cmd, Press: true})
		release := wire.Pack(wire.Fields{Type: wire.KeyTypeCommand, Command: cmd, Press: false})
		s.Ignore(uint64(press), uint64(press))
		s.Ignore(uint64(release), uint64(release))
	}
	return s
}
