package data

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadingUnmarshalLenient(t *testing.T) {
	var r Reading
	payload := `{"t_ms": 1700000000000, "flow_Lmin": "12.5", "temp_C": null, "pressure_psi": "null", "ts_server_ms": 42}`
	require.NoError(t, json.Unmarshal([]byte(payload), &r))

	require.NotNil(t, r.TimeMs)
	assert.Equal(t, int64(1700000000000), *r.TimeMs)
	require.NotNil(t, r.Flow)
	assert.Equal(t, 12.5, *r.Flow)
	assert.Nil(t, r.Temp)
	assert.Nil(t, r.Pressure)
	assert.Equal(t, int64(42), r.ServerTsMs)
}

func TestReadingUnmarshalRejectsGarbage(t *testing.T) {
	var r Reading
	require.NoError(t, json.Unmarshal([]byte(`{"flow_Lmin": "abc", "temp_C": true, "pressure_psi": ""}`), &r))
	assert.Nil(t, r.Flow)
	assert.Nil(t, r.Temp)
	assert.Nil(t, r.Pressure)

	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &r))
}

func TestToNumber(t *testing.T) {
	cases := []struct {
		in   interface{}
		want float64
		ok   bool
	}{
		{3.0, 3, true},
		{" 7.25 ", 7.25, true},
		{"NULL", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{json.Number("1.5"), 1.5, true},
		{map[string]interface{}{}, 0, false},
	}
	for _, c := range cases {
		got, ok := ToNumber(c.in)
		assert.Equal(t, c.ok, ok, "input %v", c.in)
		if c.ok {
			assert.Equal(t, c.want, got, "input %v", c.in)
		}
	}
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "Devices/Room1/Pipe2/Latest", LatestPath("Room1", "Pipe2"))
	assert.Equal(t, "Devices/Room1/Pipe2/Readings/99", ReadingPath("Room1", "Pipe2", 99))
	assert.Equal(t, "Alerts/Room6", AlertsPath("Room6"))
	assert.True(t, ValidKey("Pipe2"))
	assert.False(t, ValidKey("a/b"))
	assert.False(t, ValidKey(""))
}

func TestTimeMsRejectsOutOfRange(t *testing.T) {
	v, ok := TimeMs(json.Number("1700000000000"))
	require.True(t, ok)
	assert.Equal(t, int64(1700000000000), v)

	for _, bad := range []interface{}{json.Number("-5"), 0.0, 1e300, json.Number("9223372036854775808"), "soon"} {
		_, ok := TimeMs(bad)
		assert.False(t, ok, "%v", bad)
	}

	var r Reading
	require.NoError(t, json.Unmarshal([]byte(`{"t_ms": 1e30, "flow_Lmin": 2}`), &r))
	assert.Nil(t, r.TimeMs)
}
