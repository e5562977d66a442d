// Package bridge forwards pipe sensor readings from a serial line to the
// gateway's ingest endpoint.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"leakwatch/internal/data"
)

var ErrShortLine = errors.New("bridge: expected room,pipe,flow,temp,pressure")

// Payload is the ingest request body.
type Payload struct {
	Room     string   `json:"room"`
	Pipe     string   `json:"pipe"`
	TimeMs   int64    `json:"t_ms"`
	Flow     *float64 `json:"flow_Lmin"`
	Temp     *float64 `json:"temp_C"`
	Pressure *float64 `json:"pressure_psi"`
}

// ParseLine reads "room,pipe,flow,temp,pressure". Empty or non-numeric
// metrics are sent as null.
func ParseLine(line string, at time.Time) (Payload, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) < 5 {
		return Payload{}, ErrShortLine
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if !data.ValidKey(parts[0]) || !data.ValidKey(parts[1]) {
		return Payload{}, fmt.Errorf("bridge: bad room/pipe in %q", line)
	}
	return Payload{
		Room:     parts[0],
		Pipe:     parts[1],
		TimeMs:   at.UnixMilli(),
		Flow:     metric(parts[2]),
		Temp:     metric(parts[3]),
		Pressure: metric(parts[4]),
	}, nil
}

func metric(s string) *float64 {
	if v, ok := data.ToNumber(s); ok {
		return &v
	}
	return nil
}

// Result mirrors the gateway's ingest response.
type Result struct {
	Status string   `json:"status"`
	Flags  []string `json:"flags"`
	Score  int      `json:"score"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client posts readings to /ingest.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL, key string) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("X-Ingest-Key", key).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &Client{http: c}
}

func (c *Client) Send(ctx context.Context, p Payload) (Result, error) {
	var res Result
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(p).
		SetResult(&res).
		SetError(&apiErr).
		Post("/ingest")
	if err != nil {
		return Result{}, fmt.Errorf("bridge: post reading: %w", err)
	}
	if resp.IsError() {
		return Result{}, fmt.Errorf("bridge: ingest rejected (%d %s): %s", resp.StatusCode(), apiErr.Code, apiErr.Message)
	}
	return res, nil
}

// Simulator produces plausible readings for a fixed set of pipes.
type Simulator struct {
	Pipes []data.PipeKey
	rnd   *rand.Rand
}

func NewSimulator(pipes []data.PipeKey, seed int64) *Simulator {
	return &Simulator{Pipes: pipes, rnd: rand.New(rand.NewSource(seed))}
}

// Next returns a reading for a random pipe. Roughly one reading in twenty
// carries a flow spike.
func (s *Simulator) Next(at time.Time) Payload {
	k := s.Pipes[s.rnd.Intn(len(s.Pipes))]
	flow := 2 + s.rnd.Float64()*4
	if s.rnd.Intn(20) == 0 {
		flow = 12 + s.rnd.Float64()*3
	}
	temp := 18 + s.rnd.Float64()*8
	pressure := 1.5 + s.rnd.Float64()
	return Payload{Room: k.Room, Pipe: k.Pipe, TimeMs: at.UnixMilli(), Flow: &flow, Temp: &temp, Pressure: &pressure}
}

// ParsePipes reads "Room1/Pipe1,Room1/Pipe2".
func ParsePipes(s string) ([]data.PipeKey, error) {
	var keys []data.PipeKey
	for _, item := range strings.Split(s, ",") {
		room, pipe, ok := strings.Cut(strings.TrimSpace(item), "/")
		if !ok || !data.ValidKey(room) || !data.ValidKey(pipe) {
			return nil, fmt.Errorf("bridge: bad pipe %q, want Room/Pipe", item)
		}
		keys = append(keys, data.PipeKey{Room: room, Pipe: pipe})
	}
	return keys, nil
}

// String is used in log lines.
func (p Payload) String() string {
	f := func(v *float64) string {
		if v == nil {
			return "-"
		}
		return strconv.FormatFloat(*v, 'f', 2, 64)
	}
	return fmt.Sprintf("%s/%s flow=%s temp=%s pressure=%s", p.Room, p.Pipe, f(p.Flow), f(p.Temp), f(p.Pressure))
}
