package anomaly

import (
	"time"

	"leakwatch/internal/config"
	"leakwatch/internal/data"
)

const (
	FlagNightFlow   = "night_flow"
	FlagLowPressure = "low_pressure"
	FlagBurstFlow   = "burst_flow"
)

// LeakFlags applies the simple leak heuristics used at ingest time. The score is
// 34 points per flag, capped at 100.
func LeakFlags(cfg config.HeuristicsConfig, r data.Reading, at time.Time) (flags []string, score int) {
	if r.Flow != nil && *r.Flow > cfg.NightFlow && quietHours(cfg, at) {
		flags = append(flags, FlagNightFlow)
	}
	if r.Pressure != nil && *r.Pressure < cfg.LowPressure {
		flags = append(flags, FlagLowPressure)
	}
	if r.Pressure != nil && r.Flow != nil && *r.Flow > cfg.BurstFlow {
		flags = append(flags, FlagBurstFlow)
	}
	score = len(flags) * 34
	if score > 100 {
		score = 100
	}
	return flags, score
}

// quietHours handles windows that wrap midnight (23 -> 5).
func quietHours(cfg config.HeuristicsConfig, at time.Time) bool {
	h := at.Hour()
	start, end := cfg.QuietStartHour, cfg.QuietEndHour
	if start <= end {
		return h >= start && h < end
	}
	return h >= start || h < end
}
