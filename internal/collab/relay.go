package collab

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RelayMetrics counts relay traffic.
type RelayMetrics interface {
	ObserveRelayMessage(direction string)
}

type refreshMessage struct {
	SemesterID string `json:"semester_id"`
	UserID     string `json:"user_id"`
}

// RefreshRelay fans TableRefresh signals out to every instance through Redis pub/sub. Without
// a client it delivers to the local hub only.
type RefreshRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	metrics RelayMetrics
	logger  *zap.Logger
}

// NewRefreshRelay wires the relay. client may be nil.
func NewRefreshRelay(client *redis.Client, channel string, hub *Hub, metrics RelayMetrics, logger *zap.Logger) *RefreshRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if channel == "" {
		channel = "timetable:refresh"
	}
	return &RefreshRelay{client: client, channel: channel, hub: hub, metrics: metrics, logger: logger}
}

// PublishRefresh announces that the semester's timetable changed. The local hub receives the
// message back through the subscription; when publishing fails it is delivered directly.
func (r *RefreshRelay) PublishRefresh(ctx context.Context, semesterID, userID string) error {
	if r.client == nil {
		r.observe("local")
		return r.hub.PublishRefresh(ctx, semesterID, userID)
	}
	body, err := json.Marshal(refreshMessage{SemesterID: semesterID, UserID: userID})
	if err != nil {
		return fmt.Errorf("encode refresh message: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, body).Err(); err != nil {
		r.observe("local")
		_ = r.hub.PublishRefresh(ctx, semesterID, userID)
		return fmt.Errorf("publish refresh: %w", err)
	}
	r.observe("published")
	return nil
}

// Run subscribes to the channel until ctx is done. It is a no-op without a client.
func (r *RefreshRelay) Run(ctx context.Context) error {
	if r.client == nil {
		<-ctx.Done()
		return nil
	}
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.Sugar().Infow("timetable refresh relay subscribed", "channel", r.channel)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.deliver(ctx, msg.Payload)
		}
	}
}

func (r *RefreshRelay) deliver(ctx context.Context, payload string) {
	var message refreshMessage
	if err := json.Unmarshal([]byte(payload), &message); err != nil || message.SemesterID == "" {
		r.logger.Sugar().Warnw("dropping malformed refresh message", "payload", payload, "error", err)
		return
	}
	r.observe("received")
	_ = r.hub.PublishRefresh(ctx, message.SemesterID, message.UserID)
}

func (r *RefreshRelay) observe(direction string) {
	if r.metrics != nil {
		r.metrics.ObserveRelayMessage(direction)
	}
}
