// Package archive keeps a long-term copy of readings and alerts in InfluxDB.
package archive

import (
	"context"
	"log"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"leakwatch/internal/config"
	"leakwatch/internal/data"
)

const (
	readingMeasurement = "pipe_reading"
	alertMeasurement   = "pipe_alert"
)

// Repository stores history outside the real-time store.
type Repository interface {
	WriteReading(ctx context.Context, room, pipe string, r data.Reading) error
	WriteAlert(ctx context.Context, rec data.AlertRecord) error
	Close()
}

// New returns an InfluxDB repository, or a no-op one when no URL is configured.
func New(cfg config.InfluxConfig) Repository {
	if cfg.URL == "" {
		log.Println("[archive] influx.url not set, archiving disabled")
		return Nop{}
	}
	return NewInfluxDBRepository(cfg.URL, cfg.Token, cfg.Org, cfg.Bucket)
}

// InfluxDBRepository queues points on the non-blocking write API, which
// batches them in the background. Callers on the store's dispatch goroutine
// never wait for InfluxDB.
type InfluxDBRepository struct {
	client influxdb2.Client
	writer api.WriteAPI
}

func NewInfluxDBRepository(url, token, org, bucket string) *InfluxDBRepository {
	client := influxdb2.NewClient(url, token)
	r := &InfluxDBRepository{
		client: client,
		writer: client.WriteAPI(org, bucket),
	}
	go r.logErrors()
	return r
}

// logErrors drains the write API's error channel until the client closes.
func (r *InfluxDBRepository) logErrors() {
	for err := range r.writer.Errors() {
		log.Printf("[archive] error writing to InfluxDB: %v", err)
	}
}

func (r *InfluxDBRepository) WriteReading(_ context.Context, room, pipe string, rd data.Reading) error {
	if p := ReadingPoint(room, pipe, rd); p != nil {
		r.writer.WritePoint(p)
	}
	return nil
}

func (r *InfluxDBRepository) WriteAlert(_ context.Context, rec data.AlertRecord) error {
	r.writer.WritePoint(AlertPoint(rec))
	return nil
}

// Close flushes queued points and releases the client.
func (r *InfluxDBRepository) Close() {
	r.writer.Flush()
	r.client.Close()
}

// ReadingPoint converts a reading; nil when it carries no metric.
func ReadingPoint(room, pipe string, rd data.Reading) *write.Point {
	fields := make(map[string]interface{})
	if rd.Flow != nil {
		fields["flow_Lmin"] = *rd.Flow
	}
	if rd.Temp != nil {
		fields["temp_C"] = *rd.Temp
	}
	if rd.Pressure != nil {
		fields["pressure_psi"] = *rd.Pressure
	}
	if len(fields) == 0 {
		return nil
	}
	return influxdb2.NewPoint(readingMeasurement,
		map[string]string{"room": room, "pipe": pipe},
		fields, readingTime(rd))
}

func AlertPoint(rec data.AlertRecord) *write.Point {
	at := time.Now()
	if rec.ServerTsMs > 0 {
		at = time.UnixMilli(rec.ServerTsMs)
	}
	return influxdb2.NewPoint(alertMeasurement,
		map[string]string{"room": rec.Room, "pipe": rec.Pipe, "level": string(rec.Level)},
		map[string]interface{}{"message": rec.Message},
		at)
}

// readingTime prefers the device time, then the server time.
func readingTime(rd data.Reading) time.Time {
	switch {
	case rd.TimeMs != nil && *rd.TimeMs > 0:
		return time.UnixMilli(*rd.TimeMs)
	case rd.ServerTsMs > 0:
		return time.UnixMilli(rd.ServerTsMs)
	}
	return time.Now()
}

// Nop discards everything.
type Nop struct{}

func (Nop) WriteReading(context.Context, string, string, data.Reading) error { return nil }
func (Nop) WriteAlert(context.Context, data.AlertRecord) error               { return nil }
func (Nop) Close()                                                           {}
