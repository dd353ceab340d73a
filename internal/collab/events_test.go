package collab

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDispatchesOnType(t *testing.T) {
	event, err := Decode([]byte(`{"type":"DragStart","payload":{"user_id":"u-1","course_id":"cc-9","info":{"code":"MTH","title":"Math"}}}`))
	require.NoError(t, err)
	drag, ok := event.(DragStart)
	require.True(t, ok)
	assert.Equal(t, "cc-9", drag.CourseID)
	require.NotNil(t, drag.Info)
	assert.Equal(t, "MTH", drag.Info.Code)

	event, err = Decode([]byte(`{"type":"CursorMove","payload":{"x":10.5,"y":3,"context":{"view_mode":"CLASSROOM","view_id":"K"}}}`))
	require.NoError(t, err)
	cursor := event.(CursorMove)
	assert.Equal(t, 10.5, cursor.X)
	assert.Equal(t, "K", cursor.Context.ViewID)

	event, err = Decode([]byte(`{"type":"DragEnd"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeDragEnd, event.Type())
}

func TestDecodeRejectsBadMessages(t *testing.T) {
	cases := map[string]string{
		"not json":          `{"type":`,
		"unknown type":      `{"type":"Teleport","payload":{}}`,
		"missing type":      `{"payload":{}}`,
		"payload mismatch":  `{"type":"CursorMove","payload":{"x":"left"}}`,
		"drag without cell": `{"type":"DragStart","payload":{"user_id":"u-1"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			assert.Error(t, err)
		})
	}

	_, err := Decode([]byte(`{"type":"Teleport","payload":{}}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestEncodeUserJoinedFlattensPresence(t *testing.T) {
	data, err := Encode(UserJoined{UserPresence: UserPresence{UserID: "u-1", Name: "Ana", Color: "#112233"}})
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `"UserJoined"`, string(raw["type"]))
	assert.JSONEq(t, `{"user_id":"u-1","name":"Ana","color":"#112233"}`, string(raw["payload"]))
}

func TestEncodeStateSyncShape(t *testing.T) {
	data, err := Encode(StateSync{
		Users: []UserPresence{{UserID: "u-1", Name: "Ana", Color: "#000000"}},
		Drags: map[string]DragState{"u-1": {EntryID: "e-4"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"StateSync","payload":{"users":[{"user_id":"u-1","name":"Ana","color":"#000000"}],"drags":{"u-1":{"entry_id":"e-4"}}}}`, string(data))
}

func TestColorForIsStable(t *testing.T) {
	color := ColorFor("user-42")
	assert.Regexp(t, `^#[0-9A-F]{6}$`, color)
	assert.Equal(t, color, ColorFor("user-42"))
	assert.NotEqual(t, color, ColorFor("user-43"))
}
