// internal/anomaly/detector.go
package anomaly

import (
	"fmt"
	"strings"

	"leakwatch/internal/config"
	"leakwatch/internal/data"
)

// FallbackMessage is used when a reading is critical but no metric produced a description.
const FallbackMessage = "Threshold exceeded"

type metric struct {
	label  string
	unit   string
	format string
	band   config.Band
	value  func(data.Reading) *float64
}

// Classifier maps readings to a severity using fixed per-metric bands.
type Classifier struct {
	metrics []metric
}

func NewClassifier(cfg *config.AnomalyConfig) *Classifier {
	t := cfg.Thresholds
	return &Classifier{metrics: []metric{
		{label: "flow", unit: "L/min", format: "%.2f", band: t.Flow, value: func(r data.Reading) *float64 { return r.Flow }},
		{label: "pressure", unit: "PSI", format: "%.2f", band: t.Pressure, value: func(r data.Reading) *float64 { return r.Pressure }},
		{label: "temp", unit: "°C", format: "%.1f", band: t.Temperature, value: func(r data.Reading) *float64 { return r.Temp }},
	}}
}

// Evaluate returns critical if any present metric is outside its band, and a
// human-readable description of every out-of-band metric.
func (c *Classifier) Evaluate(r data.Reading) (data.Severity, string) {
	var parts []string
	critical := false
	for _, m := range c.metrics {
		v := m.value(r)
		if v == nil {
			continue
		}
		switch {
		case m.band.High != nil && *v > *m.band.High:
			critical = true
			parts = append(parts, m.describe("High", *v))
		case m.band.Low != nil && *v < *m.band.Low:
			critical = true
			parts = append(parts, m.describe("Low", *v))
		}
	}
	if !critical {
		return data.SeverityNormal, ""
	}
	return data.SeverityCritical, Message(parts)
}

// Classify is Evaluate without the message.
func (c *Classifier) Classify(r data.Reading) data.Severity {
	sev, _ := c.Evaluate(r)
	return sev
}

func (m metric) describe(direction string, v float64) string {
	return fmt.Sprintf("%s %s "+m.format+" %s", direction, m.label, v, m.unit)
}

// Message joins the per-metric descriptions, falling back to a generic text.
func Message(parts []string) string {
	if len(parts) == 0 {
		return FallbackMessage
	}
	return strings.Join(parts, ", ")
}
