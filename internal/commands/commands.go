// Package commands provides the built-in channel commands and the
// presence tracking they rely on.
package commands

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dalnet/chanbridge/internal/bot"
	"github.com/dalnet/chanbridge/internal/irc"
)

const helpText = "Type !commands for a list of all commands. " +
	"Type !help [command] to see help for a specific command."

// Behavior tracks when nicknames joined and left the channel and answers
// the built-in commands.
type Behavior struct {
	joined map[string]time.Time
	left   map[string]time.Time
}

func New() *Behavior {
	return &Behavior{
		joined: make(map[string]time.Time),
		left:   make(map[string]time.Time),
	}
}

func (b *Behavior) Name() string { return "commands" }

func (b *Behavior) Handlers() []bot.Handler {
	return []bot.Handler{
		bot.On(irc.KindWelcome, b.welcome),
		bot.On(irc.KindNames, b.names),
		bot.On(irc.KindJoin, b.join),
		bot.On(irc.KindPart, b.leave),
		bot.On(irc.KindQuit, b.leave),
		bot.On(irc.KindNick, b.rename),

		bot.OnCommand(bot.Command{
			Name: "!version",
			Doc:  "Shows version information.",
			Run:  b.version,
		}),
		bot.OnCommand(bot.Command{
			Name: "!commands",
			Doc:  "Lists all available commands.",
			Run:  b.commands,
		}),
		bot.OnCommand(bot.Command{
			Name:   "!help",
			Params: []bot.Param{{Name: "command", Optional: true}},
			Doc: "Shows the help message for the bot. Takes an optional command name " +
				"which when given, will show help for that command.",
			Run: b.help,
		}),
		bot.OnCommand(bot.Command{
			Name:   "!uptime",
			Params: []bot.Param{{Name: "nickname", Optional: true}},
			Doc: "Shows the amount of time since the given nickname has been in the channel. " +
				"If no nickname is given, I'll use my own.",
			Run: b.uptime,
		}),
		bot.OnCommand(bot.Command{
			Name:   "!seen",
			Params: []bot.Param{{Name: "nickname"}},
			Doc:    "Shows the amount of time since the given nickname was last seen in the channel.",
			Run:    b.seen,
		}),
		bot.OnCommand(bot.Command{
			Name: "!users",
			Doc:  "Shows the list of users currently in the channel.",
			Run:  b.users,
		}),
	}
}

func (b *Behavior) welcome(c *bot.Context, e irc.Event) {
	clear(b.joined)
}

func (b *Behavior) names(c *bot.Context, e irc.Event) {
	now := c.Now()
	for _, n := range e.Names {
		if _, ok := b.joined[n]; !ok {
			b.joined[n] = now
		}
	}
}

func (b *Behavior) join(c *bot.Context, e irc.Event) {
	b.joined[e.Source] = c.Now()
}

func (b *Behavior) leave(c *bot.Context, e irc.Event) {
	b.left[e.Source] = c.Now()
	delete(b.joined, e.Source)
}

// rename carries the join time over to the new nickname; the old one
// counts as having left.
func (b *Behavior) rename(c *bot.Context, e irc.Event) {
	since, ok := b.joined[e.Source]
	if !ok {
		return
	}
	delete(b.joined, e.Source)
	b.left[e.Source] = c.Now()
	b.joined[e.Target] = since
	delete(b.left, e.Target)
}

func (b *Behavior) version(c *bot.Context, inv bot.Invocation) string {
	return fmt.Sprintf("%s [%s]", c.Version(), strings.Join(c.Behaviors(), ", "))
}

func commandNames(c *bot.Context) []string {
	var names []string
	for _, cmd := range c.Commands() {
		names = append(names, cmd.Name)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

func (b *Behavior) commands(c *bot.Context, inv bot.Invocation) string {
	return "Available commands: " + strings.Join(commandNames(c), " ")
}

func (b *Behavior) help(c *bot.Context, inv bot.Invocation) string {
	if !inv.Given(0) {
		return helpText
	}
	name := inv.Arg(0)
	for _, cmd := range c.Commands() {
		if cmd.Name == name {
			return fmt.Sprintf("help for %s: (args: %s) %s", name, cmd.Usage(), cmd.Doc)
		}
	}
	return fmt.Sprintf("%s is not a command", name)
}

func (b *Behavior) uptime(c *bot.Context, inv bot.Invocation) string {
	nick := inv.Arg(0)
	if nick != "" && nick != c.Nick() {
		since, ok := b.joined[nick]
		if !ok {
			return fmt.Sprintf("%s is not in the channel", nick)
		}
		prefix := nick + " has"
		if nick == inv.Caller {
			prefix = "you have"
		}
		return fmt.Sprintf("%s been here for %s", prefix, FormatDuration(c.Now().Sub(since)))
	}
	since, ok := b.joined[c.Nick()]
	if !ok {
		return "I'm not in the channel"
	}
	return "I've been here for " + FormatDuration(c.Now().Sub(since))
}

func (b *Behavior) seen(c *bot.Context, inv bot.Invocation) string {
	nick := inv.Arg(0)
	if _, ok := b.joined[nick]; ok {
		if nick == inv.Caller {
			return "you are here right now"
		}
		return nick + " is here right now"
	}
	when, ok := b.left[nick]
	if !ok {
		return nick + " has never been seen"
	}
	return fmt.Sprintf("%s was last seen %s ago", nick, FormatDuration(c.Now().Sub(when)))
}

func (b *Behavior) users(c *bot.Context, inv bot.Invocation) string {
	nicks := make([]string, 0, len(b.joined))
	for n := range b.joined {
		nicks = append(nicks, n)
	}
	slices.Sort(nicks)
	return "Current users: " + strings.Join(nicks, ", ")
}
