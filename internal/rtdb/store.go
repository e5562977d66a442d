// Package rtdb is the client side of the hierarchical real-time store the
// devices publish into. Paths are slash separated ("Devices/Room1/Pipe2/Latest").
package rtdb

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrClosed      = errors.New("rtdb: store closed")
	ErrInvalidPath = errors.New("rtdb: invalid path")
)

// Snapshot is one value delivered to a subscription.
type Snapshot struct {
	Path  string
	Key   string
	Value json.RawMessage // nil when the node has children but no value of its own
	// Replay is set for values that already existed when the subscription was made.
	Replay bool
}

func (s Snapshot) Exists() bool { return len(s.Value) > 0 && string(s.Value) != "null" }

func (s Snapshot) Decode(v interface{}) error {
	if !s.Exists() {
		return errors.New("rtdb: snapshot has no value")
	}
	return json.Unmarshal(s.Value, v)
}

type Handler func(Snapshot)

// ErrorHandler receives errors that end or interrupt a subscription.
type ErrorHandler func(error)

type Subscription interface {
	Unsubscribe()
}

// Store is the subset of the real-time database the gateway relies on.
// Handlers for one store are invoked serially.
type Store interface {
	// OnValue watches the value stored at exactly path. An existing value is
	// delivered immediately with Replay set.
	OnValue(path string, h Handler, onErr ErrorHandler) (Subscription, error)
	// OnChildAdded reports each direct child of path once per subscription,
	// existing children first (Replay set).
	OnChildAdded(path string, h Handler, onErr ErrorHandler) (Subscription, error)
	Set(ctx context.Context, path string, v interface{}) error
	// Push stores v under a generated, time-ordered key and returns the key.
	Push(ctx context.Context, path string, v interface{}) (string, error)
	Close() error
}

// NewKey returns a time-ordered key for Push.
func NewKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func splitPath(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, ErrInvalidPath
	}
	parts := strings.Split(path, "/")
	for _, p := range parts {
		if p == "" || strings.ContainsAny(p, "#+") {
			return nil, ErrInvalidPath
		}
	}
	return parts, nil
}

func lastSegment(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

func joinPath(parent, key string) string { return strings.Trim(parent, "/") + "/" + key }
