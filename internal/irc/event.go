package irc

import (
	"strings"
	"time"

	"github.com/ergochat/irc-go/ircmsg"
)

// Kind names a protocol event the bot cares about.
type Kind string

const (
	KindWelcome           Kind = "welcome"
	KindNicknameInUse     Kind = "nickname_in_use"
	KindErroneousNickname Kind = "erroneous_nickname"
	KindJoin              Kind = "join"
	KindPart              Kind = "part"
	KindQuit              Kind = "quit"
	KindNick              Kind = "nick"
	KindPublicMessage     Kind = "pubmsg"
	KindNames             Kind = "namreply"
	KindError             Kind = "error"
)

// Numerics and commands we subscribe to on the transport.
const (
	RPL_WELCOME          = "001"
	RPL_NAMREPLY         = "353"
	ERR_ERRONEUSNICKNAME = "432"
	ERR_NICKNAMEINUSE    = "433"
	ERR_UNAVAILRESOURCE  = "437"
)

var subscribed = []string{
	RPL_WELCOME, RPL_NAMREPLY, ERR_ERRONEUSNICKNAME, ERR_NICKNAMEINUSE,
	ERR_UNAVAILRESOURCE, "JOIN", "PART", "QUIT", "NICK", "PRIVMSG", "ERROR",
}

// Event is a decoded protocol message.
//
// Source is the nickname the event came from. Target is the channel for
// join/part/pubmsg, the new nickname for nick changes, and the rejected
// nickname for nickname errors. Text carries the message, quit reason or
// error text. Names is only set for name-list replies.
type Event struct {
	Kind   Kind
	Source string
	Target string
	Text   string
	Names  []string
	Time   time.Time
}

// Decode converts a parsed protocol line into an Event. It returns false
// for anything the bot doesn't handle, including private messages.
func Decode(msg ircmsg.Message) (Event, bool) {
	e := Event{Source: msg.Nick(), Time: time.Now()}
	param := func(i int) string {
		if i < len(msg.Params) {
			return msg.Params[i]
		}
		return ""
	}

	switch msg.Command {
	case RPL_WELCOME:
		e.Kind = KindWelcome
		e.Target = param(0)
		e.Text = param(1)
	case ERR_NICKNAMEINUSE:
		e.Kind = KindNicknameInUse
		e.Target = param(1)
	case ERR_UNAVAILRESOURCE:
		// Also sent for juped channels.
		if isChannel(param(1)) {
			return e, false
		}
		e.Kind = KindNicknameInUse
		e.Target = param(1)
	case ERR_ERRONEUSNICKNAME:
		e.Kind = KindErroneousNickname
		e.Target = param(1)
	case RPL_NAMREPLY:
		// 353 <me> <type> <channel> :<names>
		if len(msg.Params) < 4 {
			return e, false
		}
		e.Kind = KindNames
		e.Target = param(2)
		e.Names = ParseNames(param(3))
	case "JOIN":
		e.Kind = KindJoin
		e.Target = param(0)
	case "PART":
		e.Kind = KindPart
		e.Target = param(0)
		e.Text = param(1)
	case "QUIT":
		e.Kind = KindQuit
		e.Text = param(0)
	case "NICK":
		e.Kind = KindNick
		e.Target = param(0)
	case "PRIVMSG":
		if len(msg.Params) < 2 || !isChannel(param(0)) {
			return e, false
		}
		e.Kind = KindPublicMessage
		e.Target = param(0)
		e.Text = param(1)
	case "ERROR":
		e.Kind = KindError
		e.Text = param(0)
	default:
		return e, false
	}
	return e, true
}

// ParseNames splits a name-list reply, dropping channel membership
// prefixes (op, voice and friends).
func ParseNames(list string) []string {
	fields := strings.Fields(list)
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		if n := strings.TrimLeft(f, "~&@%+"); n != "" {
			names = append(names, n)
		}
	}
	return names
}

func isChannel(target string) bool {
	return strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&")
}
