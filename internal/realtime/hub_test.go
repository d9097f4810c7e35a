package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/classflow/live-session-service/internal/models"
	"github.com/classflow/live-session-service/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(utils.NewDevelopmentLogger())
	go hub.Run()
	return hub
}

func join(t *testing.T, hub *Hub, sessionID uint, userID string, role models.UserRole) *Client {
	t.Helper()
	client := NewClient(hub, nil, utils.NewDevelopmentLogger(), sessionID, userID, role)
	want := hub.RoomSize(sessionID) + 1
	hub.Register <- client

	require.Eventually(t, func() bool {
		return hub.RoomSize(sessionID) == want
	}, time.Second, 5*time.Millisecond)
	return client
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestHub_BroadcastReachesWholeRoom(t *testing.T) {
	hub := startHub(t)
	teacher := join(t, hub, 1, "teacher-1", models.RoleTeacher)
	student := join(t, hub, 1, "student-7", models.RoleStudent)

	hub.Broadcast(1, MessageTypeTeacherNavigate, NavigatePayload{SlideNumber: 4})

	for _, c := range []*Client{teacher, student} {
		msg := receive(t, c)
		assert.Equal(t, MessageTypeTeacherNavigate, msg.Type)
	}
}

func TestHub_BroadcastToRoleFiltersSubscribers(t *testing.T) {
	hub := startHub(t)
	teacher := join(t, hub, 1, "teacher-1", models.RoleTeacher)
	student := join(t, hub, 1, "student-7", models.RoleStudent)

	hub.BroadcastToRole(1, models.RoleTeacher, MessageTypeStudentAnswered, StudentAnsweredPayload{
		StudentID: "student-7",
		IsCorrect: true,
	})

	msg := receive(t, teacher)
	assert.Equal(t, MessageTypeStudentAnswered, msg.Type)

	select {
	case data := <-student.Send:
		t.Fatalf("student received a teacher-only message: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_RoomsAreIsolated(t *testing.T) {
	hub := startHub(t)
	roomOne := join(t, hub, 1, "student-1", models.RoleStudent)
	roomTwo := join(t, hub, 2, "student-2", models.RoleStudent)

	hub.Broadcast(1, MessageTypePong, nil)

	msg := receive(t, roomOne)
	assert.Equal(t, MessageTypePong, msg.Type)

	select {
	case data := <-roomTwo.Send:
		t.Fatalf("other room received the message: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnregisterShrinksRoom(t *testing.T) {
	hub := startHub(t)
	client := join(t, hub, 1, "student-7", models.RoleStudent)
	assert.Equal(t, 1, hub.RoomSize(1))

	hub.Unregister <- client
	require.Eventually(t, func() bool {
		return hub.RoomSize(1) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestHub_RemoveClientFromRunLoop(t *testing.T) {
	// A leave intent is handled on the run loop itself; detaching there must not
	// stall the loop, or every room in the process stops fanning out.
	hub := NewHub(utils.NewDevelopmentLogger())
	hub.SetMessageHandler(func(msg *InboundMessage) {
		if msg.Type == MessageTypeLeaveSession {
			msg.Client.Close()
		}
	})
	go hub.Run()

	leaving := join(t, hub, 1, "student-7", models.RoleStudent)
	hub.Inbound <- &InboundMessage{Client: leaving, Type: MessageTypeLeaveSession}

	require.Eventually(t, func() bool {
		return hub.RoomSize(1) == 0
	}, time.Second, 5*time.Millisecond)

	// The loop is still draining its channels: a fresh join completes.
	join(t, hub, 1, "student-8", models.RoleStudent)
	assert.Equal(t, 1, hub.RoomSize(1))
}

func TestClient_SendAfterRemoveIsDropped(t *testing.T) {
	hub := startHub(t)
	client := join(t, hub, 1, "student-7", models.RoleStudent)

	hub.RemoveClient(client)
	assert.Equal(t, 0, hub.RoomSize(1))

	// A message still queued for the detached client must be dropped, not sent
	// on the closed channel.
	client.SendMessage(MessageTypePong, nil)
	client.SendError("too late")

	// Detaching twice is a no-op.
	hub.RemoveClient(client)
	client.Close()
}

func TestClient_SlowConsumerIsDetached(t *testing.T) {
	hub := startHub(t)
	client := join(t, hub, 1, "student-7", models.RoleStudent)

	// Nothing drains Send; once the buffer is full the next direct send must
	// detach the client instead of blocking or re-queueing on the run loop.
	for i := 0; i < cap(client.Send); i++ {
		client.SendMessage(MessageTypePong, nil)
	}
	assert.Equal(t, 1, hub.RoomSize(1))

	client.SendMessage(MessageTypePong, nil)
	assert.Equal(t, 0, hub.RoomSize(1))
}
