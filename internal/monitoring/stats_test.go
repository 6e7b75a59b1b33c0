package monitoring

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestStats_Counters(t *testing.T) {
	s := NewStats()
	s.AddSample(99)
	s.AddSample(99)
	s.AddDiscarded()
	s.AddResync()
	s.AddShortPacket()
	s.AddReadError()
	s.AddDropped()

	snap := s.GetAndReset()
	assert.Equal(t, int64(2), snap.Samples)
	assert.Equal(t, int64(198), snap.Bytes)
	assert.Equal(t, int64(1), snap.Discarded)
	assert.Equal(t, int64(1), snap.Resyncs)
	assert.Equal(t, int64(1), snap.ShortPackets)
	assert.Equal(t, int64(1), snap.ReadErrors)
	assert.Equal(t, int64(1), snap.Dropped)

	// interval counters reset, totals do not
	again := s.GetAndReset()
	assert.Zero(t, again.Samples)
	assert.Equal(t, int64(2), s.Total().Samples)
}

func TestStats_LogStats(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)

	s := NewStats()
	s.LogStats(l)
	assert.Empty(t, buf.String(), "idle interval should not log")

	s.AddSample(10)
	s.AddResync()
	s.LogStats(l)
	out := buf.String()
	assert.True(t, strings.Contains(out, "acquisition stats"), out)
	assert.True(t, strings.Contains(out, `"resyncs":1`), out)
}
