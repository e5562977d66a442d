package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leakwatch/internal/data"
)

func TestParseLine(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	p, err := ParseLine(" Room1, Pipe2, 3.5, nan, 2.1\r\n", at)
	require.NoError(t, err)
	assert.Equal(t, "Room1", p.Room)
	assert.Equal(t, "Pipe2", p.Pipe)
	assert.Equal(t, int64(1700000000000), p.TimeMs)
	assert.Equal(t, 3.5, *p.Flow)
	assert.Nil(t, p.Temp)
	assert.Equal(t, 2.1, *p.Pressure)

	_, err = ParseLine("Room1,Pipe2,3.5", at)
	assert.ErrorIs(t, err, ErrShortLine)
	_, err = ParseLine("Room#1,Pipe2,1,2,3", at)
	assert.Error(t, err)
}

func TestParsePipes(t *testing.T) {
	keys, err := ParsePipes("Room1/Pipe1, Room6/Pipe2")
	require.NoError(t, err)
	assert.Equal(t, []data.PipeKey{{Room: "Room1", Pipe: "Pipe1"}, {Room: "Room6", Pipe: "Pipe2"}}, keys)

	_, err = ParsePipes("Room1")
	assert.Error(t, err)
}

func TestClientSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("X-Ingest-Key") != "k1" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"code":"invalid_api_key","message":"unauthorized"}`))
			return
		}
		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Room != "Room1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"status":"ok","flags":["burst_flow"],"score":34}`))
	}))
	defer srv.Close()

	flow := 7.0
	p := Payload{Room: "Room1", Pipe: "Pipe1", TimeMs: 1, Flow: &flow}

	res, err := NewClient(srv.URL, "k1").Send(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, Result{Status: "ok", Flags: []string{"burst_flow"}, Score: 34}, res)

	_, err = NewClient(srv.URL, "wrong").Send(context.Background(), p)
	assert.ErrorContains(t, err, "invalid_api_key")
}

func TestSimulatorStaysOnConfiguredPipes(t *testing.T) {
	pipes := []data.PipeKey{{Room: "Room1", Pipe: "Pipe1"}, {Room: "Room2", Pipe: "Pipe1"}}
	sim := NewSimulator(pipes, 1)
	for i := 0; i < 50; i++ {
		p := sim.Next(time.Now())
		assert.Contains(t, pipes, data.PipeKey{Room: p.Room, Pipe: p.Pipe})
		require.NotNil(t, p.Flow)
		assert.Greater(t, *p.Flow, 0.0)
	}
}
