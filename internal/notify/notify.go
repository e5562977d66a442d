// Package notify delivers device notifications.
package notify

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"leakwatch/internal/websocket"
)

// Notification is what a device shows to the user.
type Notification struct {
	ID    string            `json:"id"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	At    int64             `json:"at"` // unix ms when scheduled
}

// Service schedules a notification for immediate delivery and returns its id.
type Service interface {
	Schedule(ctx context.Context, n Notification) (string, error)
}

func prepare(n Notification) Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.At == 0 {
		n.At = time.Now().UnixMilli()
	}
	return n
}

// Broadcaster is the part of the websocket hub used for delivery.
type Broadcaster interface {
	BroadcastNotification(n interface{})
}

var _ Broadcaster = (*websocket.Hub)(nil)

// HubService pushes notifications to every connected dashboard or device.
type HubService struct {
	hub Broadcaster
}

func NewHubService(hub Broadcaster) *HubService { return &HubService{hub: hub} }

func (s *HubService) Schedule(ctx context.Context, n Notification) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n = prepare(n)
	s.hub.BroadcastNotification(n)
	return n.ID, nil
}

// LogService only logs notifications.
type LogService struct{}

func (LogService) Schedule(ctx context.Context, n Notification) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n = prepare(n)
	log.Printf("[notify] %s: %s (%s)", n.Title, n.Body, n.ID)
	return n.ID, nil
}

// New returns the service for a configured backend name.
func New(backend string, hub Broadcaster) Service {
	if backend == "log" || hub == nil {
		return LogService{}
	}
	return NewHubService(hub)
}
