package bridge

import (
	"bytes"
	"encoding/json"

	"github.com/dalnet/chanbridge/internal/bot"
)

// Inbound frame types.
const (
	TypeStart   = "start"
	TypeMessage = "message"
)

// Outbound frame types. TypeMessage is shared.
const (
	TypeNicknames = "nicknames"
	TypeJoin      = "join"
	TypeInvalid   = "invalid"
)

// Inbound is a frame sent by the browser. A start frame carries the
// connection parameters; a message frame carries Text.
type Inbound struct {
	Type     string `json:"type"`
	Host     string `json:"host,omitempty"`
	Port     Port   `json:"port,omitempty"`
	Channel  string `json:"channel,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	Password string `json:"password,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Port is the port of a start frame. Browsers send it as a number or a
// string; it is decoded leniently and validated with config.ParsePort.
type Port string

func (p *Port) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*p = Port(s)
		return nil
	}
	*p = Port(bytes.TrimSpace(b))
	return nil
}

// Outbound is a frame pushed to the browser.
type Outbound struct {
	Type      string         `json:"type"`
	Nickname  string         `json:"nickname,omitempty"`
	Message   string         `json:"message,omitempty"`
	Color     string         `json:"color,omitempty"`
	Nicknames []bot.Identity `json:"nicknames,omitempty"`
}

func messageFrame(id bot.Identity, text string) Outbound {
	return Outbound{Type: TypeMessage, Nickname: id.Nickname, Message: text, Color: id.Color}
}

func nicknamesFrame(m *bot.Membership) Outbound {
	return Outbound{Type: TypeNicknames, Nicknames: m.Identities()}
}
