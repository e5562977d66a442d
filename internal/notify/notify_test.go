package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHub struct{ got []interface{} }

func (f *fakeHub) BroadcastNotification(n interface{}) { f.got = append(f.got, n) }

func TestHubServiceAssignsID(t *testing.T) {
	hub := &fakeHub{}
	svc := New("websocket", hub)

	id, err := svc.Schedule(context.Background(), Notification{Title: "t", Body: "b"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.Len(t, hub.got, 1)
	n := hub.got[0].(Notification)
	assert.Equal(t, id, n.ID)
	assert.NotZero(t, n.At)
}

func TestScheduleHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub := &fakeHub{}
	_, err := NewHubService(hub).Schedule(ctx, Notification{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, hub.got)

	_, err = LogService{}.Schedule(ctx, Notification{})
	assert.Error(t, err)
}

func TestNewFallsBackToLog(t *testing.T) {
	assert.IsType(t, LogService{}, New("log", &fakeHub{}))
	assert.IsType(t, LogService{}, New("websocket", nil))
}
