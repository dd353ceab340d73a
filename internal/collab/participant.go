package collab

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
)

// Identity is the authenticated user behind a connection.
type Identity struct {
	UserID string
	Name   string
}

// Participant is one connection in a session. Only the owning session goroutine writes to
// the send queue; the transport drains it through Outbound.
type Participant struct {
	ID       string
	Presence UserPresence

	send      chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

// NewParticipant creates a connection with a bounded send queue.
func NewParticipant(identity Identity, buffer int) *Participant {
	if buffer <= 0 {
		buffer = 64
	}
	name := identity.Name
	if name == "" {
		name = identity.UserID
	}
	return &Participant{
		ID: uuid.NewString(),
		Presence: UserPresence{
			UserID: identity.UserID,
			Name:   name,
			Color:  ColorFor(identity.UserID),
		},
		send:   make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

// Outbound yields encoded messages; it is closed when the session drops the participant.
func (p *Participant) Outbound() <-chan []byte {
	return p.send
}

// Closed is done once the session no longer delivers to the participant.
func (p *Participant) Closed() <-chan struct{} {
	return p.closed
}

// enqueue never blocks; false means the queue is full.
func (p *Participant) enqueue(msg []byte) bool {
	select {
	case <-p.closed:
		return false
	default:
	}
	select {
	case p.send <- msg:
		return true
	default:
		return false
	}
}

func (p *Participant) close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		close(p.send)
	})
}

// ColorFor derives a stable #RRGGBB color from the user id.
func ColorFor(userID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	sum := h.Sum32()
	return fmt.Sprintf("#%02X%02X%02X", byte(sum), byte(sum>>8), byte(sum>>16))
}
