package history

import "leakwatch/internal/data"

// Agg is min/max/avg over the present values of one metric. All fields are
// nil when no reading carried the metric.
type Agg struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
	Avg *float64 `json:"avg"`
}

type Stats struct {
	Flow     Agg `json:"flow"`
	Temp     Agg `json:"temp"`
	Pressure Agg `json:"pressure"`
}

func Compute(readings []data.Reading) Stats {
	return Stats{
		Flow:     aggregate(readings, func(r data.Reading) *float64 { return r.Flow }),
		Temp:     aggregate(readings, func(r data.Reading) *float64 { return r.Temp }),
		Pressure: aggregate(readings, func(r data.Reading) *float64 { return r.Pressure }),
	}
}

func aggregate(readings []data.Reading, pick func(data.Reading) *float64) Agg {
	var min, max, sum float64
	n := 0
	for _, r := range readings {
		v := pick(r)
		if v == nil {
			continue
		}
		if n == 0 || *v < min {
			min = *v
		}
		if n == 0 || *v > max {
			max = *v
		}
		sum += *v
		n++
	}
	if n == 0 {
		return Agg{}
	}
	avg := sum / float64(n)
	return Agg{Min: &min, Max: &max, Avg: &avg}
}

// Summary is the room dashboard: averages of flow and temperature and the
// highest pressure over the latest reading of every pipe. Absent values count as 0.
type Summary struct {
	Pipes       int     `json:"pipes"`
	AvgFlow     float64 `json:"avg_flow"`
	AvgTemp     float64 `json:"avg_temp"`
	MaxPressure float64 `json:"max_pressure"`
}

func Summarize(latest []data.Reading) Summary {
	s := Summary{Pipes: len(latest)}
	if len(latest) == 0 {
		return s
	}
	var flow, temp float64
	for _, r := range latest {
		flow += orZero(r.Flow)
		temp += orZero(r.Temp)
		if p := orZero(r.Pressure); p > s.MaxPressure {
			s.MaxPressure = p
		}
	}
	s.AvgFlow = flow / float64(len(latest))
	s.AvgTemp = temp / float64(len(latest))
	return s
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
