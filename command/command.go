// command/command.go
package command

import "strings"

// Command is one parsed operator instruction.
type Command int

const (
	Unknown Command = iota
	Start
	Stop
	Status
	Daily
	Weekly
	MakeTrade
	Diagnostics
	Help
)

func (c Command) String() string {
	switch c {
	case Start:
		return "start"
	case Stop:
		return "stop"
	case Status:
		return "status"
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case MakeTrade:
		return "maketrade"
	case Diagnostics:
		return "diagnostics"
	case Help:
		return "help"
	default:
		return "unknown"
	}
}

// Parse maps raw operator text to a Command. Matching is case-insensitive
// and tolerates the Telegram-style leading slash; anything unrecognized is
// Unknown.
func Parse(raw string) Command {
	text := strings.ToLower(strings.TrimSpace(raw))
	text = strings.TrimPrefix(text, "/")

	switch text {
	case "start":
		return Start
	case "stop":
		return Stop
	case "status":
		return Status
	case "daily":
		return Daily
	case "weekly":
		return Weekly
	case "maketrade":
		return MakeTrade
	case "diagnostics", "diagnostic":
		return Diagnostics
	case "help":
		return Help
	default:
		return Unknown
	}
}
