// Package realtime pushes live events to connected admin dashboards over websockets.
package realtime

import (
	"encoding/json"
	"sync"
)

// AdminsGroup is the only group sessions join today.
const AdminsGroup = "admins"

// Group is the set of sessions that receive an emitted event. Membership lives
// for the lifetime of the process.
type Group struct {
	name string

	mu      sync.RWMutex
	members map[*Client]struct{}
}

func NewGroup(name string) *Group {
	return &Group{name: name, members: map[*Client]struct{}{}}
}

func (g *Group) Name() string {
	return g.name
}

func (g *Group) Join(c *Client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[c] = struct{}{}
}

// Leave removes the session and closes its send queue. Safe to call twice.
func (g *Group) Leave(c *Client) {
	g.mu.Lock()
	_, ok := g.members[c]
	delete(g.members, c)
	g.mu.Unlock()

	if ok {
		c.closeSend()
	}
}

func (g *Group) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

// Emit queues the event for every member and returns how many accepted it.
// Members whose queue is full are dropped from the group.
func (g *Group) Emit(event string, payload any) (int, error) {
	frame, err := json.Marshal(Frame{Type: FrameEvent, Event: event, Data: payload})
	if err != nil {
		return 0, err
	}

	var (
		delivered int
		stalled   []*Client
	)
	g.mu.RLock()
	for c := range g.members {
		if c.enqueue(frame) {
			delivered++
			continue
		}
		stalled = append(stalled, c)
	}
	g.mu.RUnlock()

	for _, c := range stalled {
		g.Leave(c)
	}
	return delivered, nil
}

// Close removes every member.
func (g *Group) Close() {
	g.mu.Lock()
	members := g.members
	g.members = map[*Client]struct{}{}
	g.mu.Unlock()

	for c := range members {
		c.closeSend()
	}
}
