package bot

import (
	"fmt"
	"strings"

	"github.com/dalnet/chanbridge/internal/irc"
)

// Param is a declared command parameter. Optional parameters must follow
// the required ones.
type Param struct {
	Name     string
	Optional bool
	// Default is what Invocation.Arg returns when the argument is omitted.
	Default string
}

// Command is a channel command such as "!seen <nickname>".
type Command struct {
	Name   string
	Params []Param
	Doc    string
	Run    func(c *Context, inv Invocation) string
}

// Invocation is a single parsed command call.
type Invocation struct {
	Caller string
	Event  irc.Event
	Args   []string

	params []Param
}

// Arg returns argument i, or the parameter default when it was omitted.
func (inv Invocation) Arg(i int) string {
	if i < len(inv.Args) {
		return inv.Args[i]
	}
	if i < len(inv.params) {
		return inv.params[i].Default
	}
	return ""
}

// Given reports whether argument i was supplied.
func (inv Invocation) Given(i int) bool {
	return i < len(inv.Args)
}

// Arity returns the accepted argument count range.
func (cmd Command) Arity() (min, max int) {
	max = len(cmd.Params)
	for _, p := range cmd.Params {
		if !p.Optional {
			min++
		}
	}
	return min, max
}

// Check validates an argument count, returning the usage reply when it's
// out of range.
func (cmd Command) Check(n int) (string, bool) {
	min, max := cmd.Arity()
	if min <= n && n <= max {
		return "", true
	}
	if min == max {
		if max == 1 {
			return "1 arg is required", false
		}
		return fmt.Sprintf("%d args are required", max), false
	}
	return fmt.Sprintf("between %d and %d args are required", min, max), false
}

// Usage renders the parameter list for help output.
func (cmd Command) Usage() string {
	args := make([]string, 0, len(cmd.Params))
	for _, p := range cmd.Params {
		switch {
		case p.Optional && p.Default != "":
			args = append(args, fmt.Sprintf("%s [default: %s]", p.Name, p.Default))
		case p.Optional:
			args = append(args, fmt.Sprintf("%s [optional]", p.Name))
		default:
			args = append(args, p.Name)
		}
	}
	return strings.Join(args, ", ")
}

// Invoke validates arity and runs the command, returning the reply text.
func (cmd Command) Invoke(c *Context, caller string, e irc.Event, args []string) string {
	if usage, ok := cmd.Check(len(args)); !ok {
		return usage
	}
	return cmd.Run(c, Invocation{Caller: caller, Event: e, Args: args, params: cmd.Params})
}

// dispatchCommand treats the first word of a channel message as a command
// name and runs every command registered under it. Anything else is
// ordinary chatter.
func dispatchCommand(c *Context, commands []Handler, e irc.Event) {
	args := strings.Fields(e.Text)
	if len(args) == 0 {
		return
	}
	name, args := args[0], args[1:]
	for _, h := range commands {
		if h.Command.Name != name {
			continue
		}
		reply := h.Command.Invoke(c, e.Source, e, args)
		if reply == "" {
			continue
		}
		c.Send(fmt.Sprintf("%s: %s", e.Source, reply))
	}
}
