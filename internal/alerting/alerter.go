// internal/alerting/alerter.go
package alerting

import (
	"context"
	"fmt"
	"log"
	"time"

	"leakwatch/internal/data"
	"leakwatch/internal/metrics"
	"leakwatch/internal/rtdb"
)

// AlertBroadcaster receives every record persisted by the Alerter.
type AlertBroadcaster interface {
	BroadcastAlert(alert interface{})
}

// Alerter persists alert records under Alerts/{room}.
type Alerter struct {
	store rtdb.Store
	hub   AlertBroadcaster
	now   func() time.Time
}

func NewAlerter(store rtdb.Store, hub AlertBroadcaster) *Alerter {
	return &Alerter{store: store, hub: hub, now: time.Now}
}

// Emit pushes rec and returns its key. ServerTsMs is stamped when unset.
func (a *Alerter) Emit(ctx context.Context, rec data.AlertRecord) (string, error) {
	if rec.ServerTsMs == 0 {
		rec.ServerTsMs = a.now().UnixMilli()
	}
	key, err := a.store.Push(ctx, data.AlertsPath(rec.Room), rec)
	if err != nil {
		metrics.AlertWriteFailures.Inc()
		return "", fmt.Errorf("write alert %s/%s: %w", rec.Room, rec.Pipe, err)
	}
	log.Printf("[alerting] %s alert %s for %s/%s: %s", rec.Level, key, rec.Room, rec.Pipe, rec.Message)
	if a.hub != nil {
		a.hub.BroadcastAlert(data.AlertEntry{ID: key, AlertRecord: rec})
	}
	return key, nil
}
