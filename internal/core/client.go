package core

import (
	"sync"
	"sync/atomic"
)

// Client is one live connection as seen by the core layer. Identity and
// room membership are transient attributes set while the connection is
// registered and cleared on leave or disconnect.
type Client struct {
	ID       string
	Commands chan *Command
	Events   chan *Event

	mu       sync.Mutex
	name     string // display name, trimmed
	identity string // normalized addressing key
	room     string

	// leaveHandled dedupes the explicit-leave and disconnect cleanup
	// paths: exactly one runs per leave event. Reset on join.
	leaveHandled atomic.Bool
}

// NewClient constructs a client with initialized channels.
func NewClient(id string) *Client {
	return &Client{
		ID:       id,
		Commands: make(chan *Command, 16),
		Events:   make(chan *Event, 32),
	}
}

// send delivers an event without blocking. Slow consumers drop.
func (c *Client) send(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}

func (c *Client) setUser(name, identity string) {
	c.mu.Lock()
	c.name = name
	c.identity = identity
	c.mu.Unlock()
}

// User returns the display name and normalized identity.
func (c *Client) User() (name, identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name, c.identity
}

func (c *Client) setRoom(room string) {
	c.mu.Lock()
	c.room = room
	c.mu.Unlock()
}

// Room returns the current room id, or "" when not joined.
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}
