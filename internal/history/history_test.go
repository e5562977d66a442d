package history

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leakwatch/internal/data"
)

func reading(flow float64) data.Reading { return data.Reading{Flow: data.Float(flow)} }

func TestBufferDropsOldest(t *testing.T) {
	b := NewBuffer(3)
	for i := 1; i <= 5; i++ {
		b.Add(reading(float64(i)))
	}
	got := b.Recent(0)
	require.Len(t, got, 3)
	assert.Equal(t, 3.0, *got[0].Flow)
	assert.Equal(t, 5.0, *got[2].Flow)

	two := b.Recent(2)
	require.Len(t, two, 2)
	assert.Equal(t, 4.0, *two[0].Flow)

	last, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, 5.0, *last.Flow)
}

func TestStorePerPipe(t *testing.T) {
	s := NewStore(10)
	s.Add(data.PipeKey{Room: "Room1", Pipe: "Pipe2"}, reading(1))
	s.Add(data.PipeKey{Room: "Room1", Pipe: "Pipe1"}, reading(2))
	s.Add(data.PipeKey{Room: "Room2", Pipe: "Pipe1"}, reading(3))

	assert.Equal(t, []string{"Pipe1", "Pipe2"}, s.Pipes("Room1"))
	assert.Nil(t, s.Get(data.PipeKey{Room: "Room9", Pipe: "Pipe1"}))
	assert.Equal(t, 1, s.Get(data.PipeKey{Room: "Room2", Pipe: "Pipe1"}).Len())
}

func TestComputeSkipsAbsentValues(t *testing.T) {
	st := Compute([]data.Reading{
		{Flow: data.Float(2), Temp: data.Float(20)},
		{Flow: data.Float(4)},
		{Flow: data.Float(9), Pressure: data.Float(1.5)},
	})
	require.NotNil(t, st.Flow.Min)
	assert.Equal(t, 2.0, *st.Flow.Min)
	assert.Equal(t, 9.0, *st.Flow.Max)
	assert.Equal(t, 5.0, *st.Flow.Avg)
	assert.Equal(t, 20.0, *st.Temp.Avg)
	assert.Equal(t, 1.5, *st.Pressure.Max)

	empty := Compute(nil)
	assert.Nil(t, empty.Flow.Min)
	assert.Nil(t, empty.Temp.Avg)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]data.Reading{
		{Flow: data.Float(2), Temp: data.Float(20), Pressure: data.Float(1)},
		{Flow: data.Float(4), Pressure: data.Float(3)},
	})
	assert.Equal(t, 2, s.Pipes)
	assert.Equal(t, 3.0, s.AvgFlow)
	assert.Equal(t, 10.0, s.AvgTemp)
	assert.Equal(t, 3.0, s.MaxPressure)
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestAlertLogNewestFirstAndBounded(t *testing.T) {
	l := NewAlertLog(5)
	for i := 0; i < 12; i++ {
		level := data.SeverityInfo
		if i%2 == 0 {
			level = data.SeverityCritical
		}
		l.Add(data.AlertEntry{ID: fmt.Sprint(i), AlertRecord: data.AlertRecord{Room: "Room1", Level: level, ServerTsMs: int64(i)}})
	}
	got := l.Entries()
	require.Len(t, got, 5)
	assert.Equal(t, "11", got[0].ID)
	assert.Equal(t, "7", got[4].ID)
	assert.Equal(t, 2, l.CriticalCount())

	l.Add(data.AlertEntry{ID: "11", AlertRecord: data.AlertRecord{ServerTsMs: 99}})
	assert.Equal(t, int64(11), l.Entries()[0].ServerTsMs)
}
