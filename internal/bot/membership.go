package bot

import (
	"fmt"
	"hash/fnv"
	"sort"
)

// Identity is a channel member's nickname and its display color.
type Identity struct {
	Nickname string `json:"nickname"`
	Color    string `json:"color"`
}

// NewIdentity returns the identity for nick with its derived color.
func NewIdentity(nick string) Identity {
	return Identity{Nickname: nick, Color: ColorFor(nick)}
}

// ColorFor derives a stable dark rgb() color from a nickname. Each
// component stays at or below 150 so names read well on a light page.
func ColorFor(nick string) string {
	h := fnv.New32a()
	h.Write([]byte(nick))
	sum := h.Sum32()
	r := (sum >> 16 & 0xff) % 151
	g := (sum >> 8 & 0xff) % 151
	b := (sum & 0xff) % 151
	return fmt.Sprintf("rgb(%d,%d,%d)", r, g, b)
}

// Membership maps the nicknames currently in the channel to their
// identities. It is owned by a single runtime's event loop and is not
// safe for concurrent use.
type Membership struct {
	members map[string]Identity
}

func NewMembership() *Membership {
	return &Membership{members: make(map[string]Identity)}
}

// Add records nick as present and returns its identity.
func (m *Membership) Add(nick string) Identity {
	if id, ok := m.members[nick]; ok {
		return id
	}
	id := NewIdentity(nick)
	m.members[nick] = id
	return id
}

// AddAll records every nick in a name-list snapshot.
func (m *Membership) AddAll(nicks []string) {
	for _, n := range nicks {
		m.Add(n)
	}
}

// Remove drops nick, reporting whether it was present.
func (m *Membership) Remove(nick string) (Identity, bool) {
	id, ok := m.members[nick]
	if ok {
		delete(m.members, nick)
	}
	return id, ok
}

// Rename re-keys a member after a nick change, recomputing its color.
func (m *Membership) Rename(from, to string) (Identity, bool) {
	if _, ok := m.members[from]; !ok {
		return Identity{}, false
	}
	delete(m.members, from)
	id := NewIdentity(to)
	m.members[to] = id
	return id, true
}

func (m *Membership) Has(nick string) bool {
	_, ok := m.members[nick]
	return ok
}

func (m *Membership) Get(nick string) (Identity, bool) {
	id, ok := m.members[nick]
	return id, ok
}

func (m *Membership) Len() int {
	return len(m.members)
}

// Nicknames returns the present nicknames, sorted.
func (m *Membership) Nicknames() []string {
	nicks := make([]string, 0, len(m.members))
	for n := range m.members {
		nicks = append(nicks, n)
	}
	sort.Strings(nicks)
	return nicks
}

// Identities returns the present identities sorted by nickname.
func (m *Membership) Identities() []Identity {
	ids := make([]Identity, 0, len(m.members))
	for _, n := range m.Nicknames() {
		ids = append(ids, m.members[n])
	}
	return ids
}

// Clear forgets every member, e.g. after the connection drops.
func (m *Membership) Clear() {
	clear(m.members)
}
