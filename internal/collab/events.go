// Package collab coordinates the per-semester collaborative editing sessions: presence,
// cursors, advisory drag locks and timetable refresh signals.
package collab

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType discriminates the wire envelope.
type EventType string

const (
	TypeStateSync    EventType = "StateSync"
	TypeUserJoined   EventType = "UserJoined"
	TypeUserLeft     EventType = "UserLeft"
	TypeCursorMove   EventType = "CursorMove"
	TypeDragStart    EventType = "DragStart"
	TypeDragEnd      EventType = "DragEnd"
	TypeTableRefresh EventType = "TableRefresh"
)

// ErrUnknownEvent is returned by Decode for a type outside the union.
var ErrUnknownEvent = errors.New("unknown event type")

// Event is one member of the message union.
type Event interface {
	Type() EventType
}

// UserContext tells others what a user is looking at.
type UserContext struct {
	ViewMode string `json:"view_mode"`
	ViewID   string `json:"view_id,omitempty"`
}

// DragInfo is the display data of a dragged cell.
type DragInfo struct {
	Code  string `json:"code"`
	Title string `json:"title"`
	Color string `json:"color,omitempty"`
}

// UserPresence is a connected user.
type UserPresence struct {
	UserID  string       `json:"user_id"`
	Name    string       `json:"name"`
	Color   string       `json:"color"`
	Context *UserContext `json:"context,omitempty"`
}

// DragState is the advisory lock a user holds.
type DragState struct {
	CourseID string    `json:"course_id,omitempty"`
	EntryID  string    `json:"entry_id,omitempty"`
	Info     *DragInfo `json:"info,omitempty"`
}

// StateSync is sent to a joining connection only.
type StateSync struct {
	Users []UserPresence       `json:"users"`
	Drags map[string]DragState `json:"drags"`
}

type UserJoined struct {
	UserPresence
}

type UserLeft struct {
	UserID string `json:"user_id"`
}

type CursorMove struct {
	UserID  string       `json:"user_id"`
	X       float64      `json:"x"`
	Y       float64      `json:"y"`
	Context *UserContext `json:"context,omitempty"`
}

type DragStart struct {
	UserID   string    `json:"user_id"`
	CourseID string    `json:"course_id,omitempty"`
	EntryID  string    `json:"entry_id,omitempty"`
	Info     *DragInfo `json:"info,omitempty"`
}

type DragEnd struct {
	UserID string `json:"user_id"`
}

// TableRefresh asks every view to re-fetch the timetable.
type TableRefresh struct {
	UserID string `json:"user_id"`
}

func (StateSync) Type() EventType    { return TypeStateSync }
func (UserJoined) Type() EventType   { return TypeUserJoined }
func (UserLeft) Type() EventType     { return TypeUserLeft }
func (CursorMove) Type() EventType   { return TypeCursorMove }
func (DragStart) Type() EventType    { return TypeDragStart }
func (DragEnd) Type() EventType      { return TypeDragEnd }
func (TableRefresh) Type() EventType { return TypeTableRefresh }

type envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps the event in its {type, payload} envelope.
func Encode(event Event) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event.Type(), err)
	}
	return json.Marshal(envelope{Type: event.Type(), Payload: payload})
}

// Decode parses an envelope into the concrete event.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		env.Payload = json.RawMessage("{}")
	}

	var event Event
	var err error
	switch env.Type {
	case TypeStateSync:
		var e StateSync
		err = json.Unmarshal(env.Payload, &e)
		event = e
	case TypeUserJoined:
		var e UserJoined
		err = json.Unmarshal(env.Payload, &e)
		event = e
	case TypeUserLeft:
		var e UserLeft
		err = json.Unmarshal(env.Payload, &e)
		event = e
	case TypeCursorMove:
		var e CursorMove
		err = json.Unmarshal(env.Payload, &e)
		event = e
	case TypeDragStart:
		var e DragStart
		if err = json.Unmarshal(env.Payload, &e); err == nil && e.CourseID == "" && e.EntryID == "" {
			err = errors.New("drag start needs course_id or entry_id")
		}
		event = e
	case TypeDragEnd:
		var e DragEnd
		err = json.Unmarshal(env.Payload, &e)
		event = e
	case TypeTableRefresh:
		var e TableRefresh
		err = json.Unmarshal(env.Payload, &e)
		event = e
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownEvent, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return event, nil
}
