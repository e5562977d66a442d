package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"leakwatch/internal/config"
	"leakwatch/internal/data"
)

func testConfig() *config.AnomalyConfig {
	var cfg config.AnomalyConfig
	cfg.Thresholds.Flow = config.Band{Low: data.Float(0), High: data.Float(11)}
	cfg.Thresholds.Pressure = config.Band{Low: data.Float(0.5), High: data.Float(3)}
	cfg.Thresholds.Temperature = config.Band{Low: data.Float(20), High: data.Float(30)}
	return &cfg
}

func TestEvaluateHighFlowExample(t *testing.T) {
	c := NewClassifier(testConfig())
	sev, msg := c.Evaluate(data.Reading{Flow: data.Float(12.5), Pressure: data.Float(2.0), Temp: data.Float(26)})

	assert.Equal(t, data.SeverityCritical, sev)
	assert.Equal(t, "High flow 12.50 L/min", msg)
}

func TestEvaluateWithinBandsIsNormal(t *testing.T) {
	c := NewClassifier(testConfig())
	for _, r := range []data.Reading{
		{Flow: data.Float(0), Pressure: data.Float(0.5), Temp: data.Float(20)},
		{Flow: data.Float(11), Pressure: data.Float(3), Temp: data.Float(30)},
		{Flow: data.Float(5.5), Pressure: data.Float(1.7), Temp: data.Float(25)},
		{},
	} {
		sev, msg := c.Evaluate(r)
		assert.Equal(t, data.SeverityNormal, sev)
		assert.Empty(t, msg)
	}
}

func TestEvaluateMultipleMetrics(t *testing.T) {
	c := NewClassifier(testConfig())
	sev, msg := c.Evaluate(data.Reading{Flow: data.Float(-1), Pressure: data.Float(3.25), Temp: data.Float(18)})

	assert.Equal(t, data.SeverityCritical, sev)
	assert.Equal(t, "Low flow -1.00 L/min, High pressure 3.25 PSI, Low temp 18.0 °C", msg)
}

func TestEvaluateAbsentMetricsNeverTrigger(t *testing.T) {
	c := NewClassifier(testConfig())
	assert.Equal(t, data.SeverityNormal, c.Classify(data.Reading{Temp: data.Float(22)}))
	assert.Equal(t, data.SeverityCritical, c.Classify(data.Reading{Temp: data.Float(31)}))
}

func TestEvaluateDisabledLowSide(t *testing.T) {
	cfg := testConfig()
	cfg.Thresholds.Temperature.Low = nil
	c := NewClassifier(cfg)

	assert.Equal(t, data.SeverityNormal, c.Classify(data.Reading{Temp: data.Float(-40)}))
}

func TestMessageFallback(t *testing.T) {
	assert.Equal(t, FallbackMessage, Message(nil))
}

func TestLeakFlags(t *testing.T) {
	h := config.HeuristicsConfig{NightFlow: 0.1, LowPressure: 0.8, BurstFlow: 5, QuietStartHour: 23, QuietEndHour: 5}
	night := time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC)
	day := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)

	flags, score := LeakFlags(h, data.Reading{Flow: data.Float(6), Pressure: data.Float(0.6)}, night)
	assert.Equal(t, []string{FlagNightFlow, FlagLowPressure, FlagBurstFlow}, flags)
	assert.Equal(t, 100, score)

	flags, score = LeakFlags(h, data.Reading{Flow: data.Float(0.5), Pressure: data.Float(2)}, day)
	assert.Empty(t, flags)
	assert.Equal(t, 0, score)

	flags, score = LeakFlags(h, data.Reading{Flow: data.Float(0.5)}, night)
	assert.Equal(t, []string{FlagNightFlow}, flags)
	assert.Equal(t, 34, score)
}
