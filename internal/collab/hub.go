package collab

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// HubConfig sizes the queues.
type HubConfig struct {
	SendBuffer int
	InboxSize  int
}

type sessionRef struct {
	session *Session
	refs    int
}

// Hub maps semester keys to live sessions. A session starts with its first participant and
// stops when the last one leaves.
type Hub struct {
	mu           sync.Mutex
	sessions     map[string]*sessionRef
	participants int
	cfg          HubConfig
	metrics      Metrics
	logger       *zap.Logger
}

// NewHub creates an empty hub. metrics may be nil.
func NewHub(cfg HubConfig, metrics Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	return &Hub{
		sessions: make(map[string]*sessionRef),
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
	}
}

// NewParticipant creates a participant using the hub's send buffer size.
func (h *Hub) NewParticipant(identity Identity) *Participant {
	return NewParticipant(identity, h.cfg.SendBuffer)
}

// Join adds the participant to the semester's session, creating it when needed. The
// participant receives a StateSync before any other message.
func (h *Hub) Join(semesterID string, p *Participant) *Session {
	h.mu.Lock()
	ref, ok := h.sessions[semesterID]
	if !ok {
		ref = &sessionRef{session: newSession(semesterID, h.cfg.InboxSize, h.metrics, h.logger)}
		h.sessions[semesterID] = ref
		go ref.session.run()
		h.logger.Sugar().Infow("collaborative session opened", "semester_id", semesterID)
	}
	ref.refs++
	h.participants++
	h.report()
	h.mu.Unlock()

	ref.session.submit(joinCmd{participant: p})
	return ref.session
}

// Leave removes the participant. The session stops when it was the last one. Commands are
// submitted after the registry lock is released so a busy session never stalls the others.
func (h *Hub) Leave(semesterID string, p *Participant) {
	h.mu.Lock()
	ref, ok := h.sessions[semesterID]
	if !ok {
		h.mu.Unlock()
		return
	}
	ref.refs--
	h.participants--
	last := ref.refs <= 0
	if last {
		delete(h.sessions, semesterID)
	}
	h.report()
	h.mu.Unlock()

	ref.session.submit(leaveCmd{participant: p})
	if last {
		ref.session.submit(stopCmd{})
		h.logger.Sugar().Infow("collaborative session closed", "semester_id", semesterID)
	}
}

// PublishRefresh tells every participant of the semester's local session to re-fetch.
func (h *Hub) PublishRefresh(ctx context.Context, semesterID, userID string) error {
	h.mu.Lock()
	ref, ok := h.sessions[semesterID]
	h.mu.Unlock()
	if !ok {
		return nil
	}
	ref.session.submit(refreshCmd{userID: userID})
	return nil
}

// Session returns the live session of the semester.
func (h *Hub) Session(semesterID string) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ref, ok := h.sessions[semesterID]
	if !ok {
		return nil, false
	}
	return ref.session, true
}

// Sessions returns how many sessions are open.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close stops every session and disconnects their participants.
func (h *Hub) Close() {
	h.mu.Lock()
	closing := make([]*Session, 0, len(h.sessions))
	for key, ref := range h.sessions {
		closing = append(closing, ref.session)
		delete(h.sessions, key)
	}
	h.participants = 0
	h.report()
	h.mu.Unlock()

	for _, session := range closing {
		session.submit(stopCmd{})
	}
}

func (h *Hub) report() {
	if h.metrics == nil {
		return
	}
	h.metrics.SetCollabSessions(len(h.sessions))
	h.metrics.SetCollabParticipants(h.participants)
}
