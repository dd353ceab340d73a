package collab

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// Metrics receives session gauges. *service.MetricsService satisfies it.
type Metrics interface {
	SetCollabSessions(n int)
	SetCollabParticipants(n int)
	IncCollabDropped(reason string)
}

type command interface{}

type joinCmd struct {
	participant *Participant
}

type leaveCmd struct {
	participant *Participant
}

type eventCmd struct {
	from  *Participant
	event Event
}

type refreshCmd struct {
	userID string
}

type snapshotCmd struct {
	reply chan StateSync
}

type stopCmd struct{}

type dragLock struct {
	state  DragState
	connID string
}

// Session is the actor owning one semester's presence and drag map. All state lives in the
// run goroutine; callers talk to it through the inbox.
type Session struct {
	key     string
	inbox   chan command
	done    chan struct{}
	logger  *zap.Logger
	metrics Metrics

	conns map[string]*Participant
	users map[string]*UserPresence
	count map[string]int
	drags map[string]dragLock
}

func newSession(key string, inboxSize int, metrics Metrics, logger *zap.Logger) *Session {
	if inboxSize <= 0 {
		inboxSize = 256
	}
	return &Session{
		key:     key,
		inbox:   make(chan command, inboxSize),
		done:    make(chan struct{}),
		logger:  logger.With(zap.String("session", key)),
		metrics: metrics,
		conns:   make(map[string]*Participant),
		users:   make(map[string]*UserPresence),
		count:   make(map[string]int),
		drags:   make(map[string]dragLock),
	}
}

// Key is the semester the session belongs to.
func (s *Session) Key() string {
	return s.key
}

// Dispatch hands a client event to the session.
func (s *Session) Dispatch(from *Participant, event Event) {
	s.submit(eventCmd{from: from, event: event})
}

// Snapshot returns the current presence and drag map.
func (s *Session) Snapshot(ctx context.Context) (StateSync, error) {
	reply := make(chan StateSync, 1)
	if !s.submit(snapshotCmd{reply: reply}) {
		return StateSync{}, context.Canceled
	}
	select {
	case state := <-reply:
		return state, nil
	case <-s.done:
		return StateSync{}, context.Canceled
	case <-ctx.Done():
		return StateSync{}, ctx.Err()
	}
}

func (s *Session) submit(cmd command) bool {
	select {
	case s.inbox <- cmd:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) run() {
	defer close(s.done)
	for cmd := range s.inbox {
		switch c := cmd.(type) {
		case joinCmd:
			s.join(c.participant)
		case leaveCmd:
			s.remove(c.participant, "")
		case eventCmd:
			s.handle(c.from, c.event)
		case refreshCmd:
			s.broadcast(TableRefresh{UserID: c.userID}, "")
		case snapshotCmd:
			c.reply <- s.state()
		case stopCmd:
			for _, p := range s.conns {
				p.close()
			}
			return
		}
	}
}

func (s *Session) join(p *Participant) {
	s.conns[p.ID] = p
	userID := p.Presence.UserID
	s.count[userID]++
	if _, ok := s.users[userID]; !ok {
		presence := p.Presence
		s.users[userID] = &presence
	}

	s.deliver(p, s.state())
	if s.count[userID] == 1 {
		s.broadcast(UserJoined{UserPresence: *s.users[userID]}, p.ID)
	}
	s.logger.Debug("participant joined", zap.String("user_id", userID), zap.String("conn_id", p.ID))
}

// remove drops a connection. reason is set when the server disconnects it.
func (s *Session) remove(p *Participant, reason string) {
	if _, ok := s.conns[p.ID]; !ok {
		return
	}
	delete(s.conns, p.ID)
	p.close()
	if reason != "" && s.metrics != nil {
		s.metrics.IncCollabDropped(reason)
	}

	userID := p.Presence.UserID
	if lock, ok := s.drags[userID]; ok && lock.connID == p.ID {
		delete(s.drags, userID)
		s.broadcast(DragEnd{UserID: userID}, "")
	}
	s.count[userID]--
	if s.count[userID] <= 0 {
		delete(s.count, userID)
		delete(s.users, userID)
		s.broadcast(UserLeft{UserID: userID}, "")
	}
	s.logger.Debug("participant left", zap.String("user_id", userID), zap.String("conn_id", p.ID), zap.String("reason", reason))
}

func (s *Session) handle(from *Participant, event Event) {
	if _, ok := s.conns[from.ID]; !ok {
		return
	}
	userID := from.Presence.UserID
	switch e := event.(type) {
	case CursorMove:
		e.UserID = userID
		if e.Context != nil {
			ctx := *e.Context
			s.users[userID].Context = &ctx
		}
		s.broadcast(e, from.ID)
	case DragStart:
		e.UserID = userID
		s.drags[userID] = dragLock{
			state:  DragState{CourseID: e.CourseID, EntryID: e.EntryID, Info: e.Info},
			connID: from.ID,
		}
		s.broadcast(e, from.ID)
	case DragEnd:
		e.UserID = userID
		delete(s.drags, userID)
		s.broadcast(e, from.ID)
	case TableRefresh:
		e.UserID = userID
		s.broadcast(e, from.ID)
	default:
		s.logger.Warn("dropping server-only event from client", zap.String("type", string(event.Type())), zap.String("user_id", userID))
	}
}

// broadcast sends to every connection except the one with id except. Connections whose
// queue is full are disconnected after the pass.
func (s *Session) broadcast(event Event, except string) {
	msg, err := Encode(event)
	if err != nil {
		s.logger.Error("failed to encode event", zap.String("type", string(event.Type())), zap.Error(err))
		return
	}
	var slow []*Participant
	for id, p := range s.conns {
		if id == except {
			continue
		}
		if !p.enqueue(msg) {
			slow = append(slow, p)
		}
	}
	for _, p := range slow {
		s.logger.Warn("disconnecting slow participant", zap.String("user_id", p.Presence.UserID), zap.String("conn_id", p.ID))
		s.remove(p, "slow_consumer")
	}
}

func (s *Session) deliver(p *Participant, event Event) {
	msg, err := Encode(event)
	if err != nil {
		s.logger.Error("failed to encode event", zap.String("type", string(event.Type())), zap.Error(err))
		return
	}
	if !p.enqueue(msg) {
		s.remove(p, "slow_consumer")
	}
}

func (s *Session) state() StateSync {
	users := make([]UserPresence, 0, len(s.users))
	for _, presence := range s.users {
		copied := *presence
		users = append(users, copied)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	drags := make(map[string]DragState, len(s.drags))
	for userID, lock := range s.drags {
		drags[userID] = lock.state
	}
	return StateSync{Users: users, Drags: drags}
}
