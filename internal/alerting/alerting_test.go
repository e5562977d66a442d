package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leakwatch/internal/data"
	"leakwatch/internal/history"
	"leakwatch/internal/notify"
	"leakwatch/internal/rtdb"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestTrackerFirstReadingNeverEmits(t *testing.T) {
	tr := NewTracker(DefaultCooldown)
	assert.False(t, tr.Observe("Room1", "Pipe1", data.SeverityCritical, t0))
	assert.Equal(t, data.SeverityCritical, tr.Severity("Room1", "Pipe1"))
	assert.False(t, tr.Observe("Room1", "Pipe1", data.SeverityCritical, t0.Add(time.Hour)))
}

func TestTrackerTransitionsAndCooldown(t *testing.T) {
	tr := NewTracker(5 * time.Minute)
	require.False(t, tr.Observe("Room1", "Pipe1", data.SeverityNormal, t0))

	assert.True(t, tr.Observe("Room1", "Pipe1", data.SeverityCritical, t0.Add(time.Second)))
	assert.False(t, tr.Observe("Room1", "Pipe1", data.SeverityCritical, t0.Add(2*time.Second)), "still critical")
	assert.False(t, tr.Observe("Room1", "Pipe1", data.SeverityNormal, t0.Add(3*time.Second)))
	assert.False(t, tr.Observe("Room1", "Pipe1", data.SeverityCritical, t0.Add(time.Minute)), "inside cooldown")
	assert.False(t, tr.Observe("Room1", "Pipe1", data.SeverityNormal, t0.Add(2*time.Minute)))
	assert.True(t, tr.Observe("Room1", "Pipe1", data.SeverityCritical, t0.Add(6*time.Minute)))
}

func TestTrackerPairsAreIndependent(t *testing.T) {
	tr := NewTracker(time.Hour)
	tr.Observe("Room1", "Pipe1", data.SeverityNormal, t0)
	tr.Observe("Room1", "Pipe2", data.SeverityNormal, t0)
	assert.True(t, tr.Observe("Room1", "Pipe1", data.SeverityCritical, t0))
	assert.True(t, tr.Observe("Room1", "Pipe2", data.SeverityCritical, t0))
	assert.Equal(t, data.SeverityInfo, tr.Severity("Room2", "Pipe1"))
}

func TestTrackerResetAndForget(t *testing.T) {
	tr := NewTracker(0)
	tr.Observe("Room1", "Pipe1", data.SeverityNormal, t0)
	tr.Observe("Room1", "Pipe2", data.SeverityNormal, t0)

	tr.Forget("Room1", "Pipe1")
	assert.False(t, tr.Observe("Room1", "Pipe1", data.SeverityCritical, t0), "forgotten pair starts over")
	assert.True(t, tr.Observe("Room1", "Pipe2", data.SeverityCritical, t0))

	tr.Reset()
	assert.Equal(t, 0, tr.Len())
	assert.False(t, tr.Observe("Room1", "Pipe2", data.SeverityNormal, t0))
}

// failingStore rejects every write.
type failingStore struct{ rtdb.Store }

func (failingStore) Push(context.Context, string, interface{}) (string, error) {
	return "", errors.New("permission denied")
}

type alertSink struct {
	mu  sync.Mutex
	got []interface{}
}

func (a *alertSink) BroadcastAlert(v interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.got = append(a.got, v)
}

func TestAlerterWritesRecord(t *testing.T) {
	store := rtdb.NewMemoryStore()
	defer store.Close()
	sink := &alertSink{}
	a := NewAlerter(store, sink)
	a.now = func() time.Time { return t0 }

	key, err := a.Emit(context.Background(), data.AlertRecord{Room: "Room6", Pipe: "Pipe2", Level: data.SeverityCritical, Message: "High flow 12.50 L/min"})
	require.NoError(t, err)

	snap, ok := store.Get(data.AlertsPath("Room6") + "/" + key)
	require.True(t, ok)
	var rec data.AlertRecord
	require.NoError(t, snap.Decode(&rec))
	assert.Equal(t, t0.UnixMilli(), rec.ServerTsMs)
	assert.Equal(t, "Pipe2", rec.Pipe)
	assert.Len(t, sink.got, 1)
}

func TestAlerterReportsWriteFailure(t *testing.T) {
	sink := &alertSink{}
	a := NewAlerter(failingStore{}, sink)
	_, err := a.Emit(context.Background(), data.AlertRecord{Room: "Room1", Level: data.SeverityCritical})
	assert.ErrorContains(t, err, "permission denied")
	assert.Empty(t, sink.got)
}

type fakeService struct {
	mu  sync.Mutex
	got []notify.Notification
	err error
}

func (f *fakeService) Schedule(_ context.Context, n notify.Notification) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.got = append(f.got, n)
	return "n1", nil
}

func (f *fakeService) all() []notify.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Notification(nil), f.got...)
}

func TestNotifierSkipsExistingRecords(t *testing.T) {
	ctx := context.Background()
	store := rtdb.NewMemoryStore()
	defer store.Close()
	_, err := store.Push(ctx, "Alerts/Room1", data.AlertRecord{Room: "Room1", Pipe: "Pipe1", Level: data.SeverityCritical, Message: "old"})
	require.NoError(t, err)

	svc := &fakeService{}
	alerts := history.NewAlertLog(0)
	w, err := NewNotifier(store, svc, alerts).Watch(ctx, []string{"Room1", "Room2"})
	require.NoError(t, err)
	defer w.Detach()
	store.Flush()
	assert.Empty(t, svc.all())
	assert.Equal(t, 1, w.Seen("Room1"))
	assert.Len(t, alerts.Entries(), 1)

	_, err = store.Push(ctx, "Alerts/Room2", data.AlertRecord{Room: "Room2", Pipe: "Pipe4", Level: data.SeverityCritical, Message: "High temp 31.0 °C", ServerTsMs: 42})
	require.NoError(t, err)
	_, err = store.Push(ctx, "Alerts/Room2", data.AlertRecord{Room: "Room2", Level: data.SeverityCaution})
	require.NoError(t, err)
	store.Flush()

	got := svc.all()
	require.Len(t, got, 1)
	assert.Equal(t, "LeakLens • Critical", got[0].Title)
	assert.Equal(t, "Room2/Pipe4: High temp 31.0 °C", got[0].Body)
	assert.Equal(t, map[string]string{"room": "Room2", "pipe": "Pipe4", "ts_server_ms": "42"}, got[0].Data)
	assert.Len(t, alerts.Entries(), 3)
	assert.Equal(t, 2, alerts.CriticalCount())
}

func TestNotifierRedeliveryIsIgnored(t *testing.T) {
	store := rtdb.NewMemoryStore()
	defer store.Close()
	svc := &fakeService{}
	w, err := NewNotifier(store, svc, nil).Watch(context.Background(), []string{"Room1"})
	require.NoError(t, err)
	defer w.Detach()

	snap := rtdb.Snapshot{Path: "Alerts/Room1/k1", Key: "k1", Value: []byte(`{"room":"Room1","level":"critical"}`)}
	w.handle("Room1", snap)
	w.handle("Room1", snap)

	got := svc.all()
	require.Len(t, got, 1)
	assert.Equal(t, "Room1/Pipe?: Check system", got[0].Body)
}

func TestNotifierSwallowsScheduleErrors(t *testing.T) {
	store := rtdb.NewMemoryStore()
	defer store.Close()
	svc := &fakeService{err: errors.New("no device token")}
	w, err := NewNotifier(store, svc, nil).Watch(context.Background(), []string{"Room1"})
	require.NoError(t, err)
	defer w.Detach()

	_, err = store.Push(context.Background(), "Alerts/Room1", data.AlertRecord{Level: data.SeverityCritical})
	require.NoError(t, err)
	store.Flush()
	assert.Equal(t, 1, w.Seen("Room1"))
}

func TestNotifierDetachStopsDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := rtdb.NewMemoryStore()
	defer store.Close()
	svc := &fakeService{}
	_, err := NewNotifier(store, svc, nil).Watch(ctx, []string{"Room1"})
	require.NoError(t, err)

	cancel()
	require.Eventually(t, func() bool { return store.Subscribers() == 0 }, time.Second, 5*time.Millisecond)

	_, err = store.Push(context.Background(), "Alerts/Room1", data.AlertRecord{Level: data.SeverityCritical})
	require.NoError(t, err)
	store.Flush()
	assert.Empty(t, svc.all())
}

func TestNotifierDiscoversRooms(t *testing.T) {
	ctx := context.Background()
	store := rtdb.NewMemoryStore()
	defer store.Close()
	_, err := store.Push(ctx, "Alerts/Room1", data.AlertRecord{Room: "Room1", Level: data.SeverityCritical, Message: "old"})
	require.NoError(t, err)

	svc := &fakeService{}
	w, err := NewNotifier(store, svc, nil).Watch(ctx, nil)
	require.NoError(t, err)
	defer w.Detach()
	store.Flush()
	assert.Empty(t, svc.all())
	assert.Equal(t, 1, w.Seen("Room1"))

	_, err = store.Push(ctx, "Alerts/Room9", data.AlertRecord{Room: "Room9", Pipe: "Pipe1", Level: data.SeverityCritical, Message: "burst"})
	require.NoError(t, err)
	store.Flush()

	got := svc.all()
	require.Len(t, got, 1)
	assert.Equal(t, "Room9/Pipe1: burst", got[0].Body)
}
