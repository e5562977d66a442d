// internal/data/models.go
package data

// Reading is one sample reported by a pipe sensor. Metrics are optional; a nil
// pointer means the device did not report that value.
type Reading struct {
	TimeMs     *int64   `json:"t_ms,omitempty"`
	Flow       *float64 `json:"flow_Lmin,omitempty"`    // L/min
	Temp       *float64 `json:"temp_C,omitempty"`       // °C
	Pressure   *float64 `json:"pressure_psi,omitempty"` // PSI
	ServerTsMs int64    `json:"ts_server_ms,omitempty"`
}

// Severity is the classification of a reading.
type Severity string

const (
	SeverityInfo     Severity = "info" // before the first classification of a pair
	SeverityNormal   Severity = "normal"
	SeverityCaution  Severity = "caution"
	SeverityCritical Severity = "critical"
)

// AlertRecord is written once under Alerts/{room}/{key} and never mutated.
type AlertRecord struct {
	Room       string   `json:"room"`
	Pipe       string   `json:"pipe,omitempty"`
	Level      Severity `json:"level"`
	Message    string   `json:"message,omitempty"`
	ServerTsMs int64    `json:"ts_server_ms,omitempty"`
	FromUID    string   `json:"from_uid,omitempty"`
}

// AlertEntry is an alert record together with its store key.
type AlertEntry struct {
	ID string `json:"id"`
	AlertRecord
}

// PipeKey identifies a monitored pipe.
type PipeKey struct {
	Room string `json:"room"`
	Pipe string `json:"pipe"`
}

func (k PipeKey) String() string { return k.Room + "/" + k.Pipe }

// Float returns a pointer to v. Handy for building readings in code.
func Float(v float64) *float64 { return &v }
