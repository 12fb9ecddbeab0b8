package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wowkster/ping-the-internet/internal/pingoutcome"
	"github.com/wowkster/ping-the-internet/internal/slash16"
)

func TestReduceTreatsAbsentSlash24AsAllTimeout(t *testing.T) {
	result := &slash16.Slash16Result{}

	counts := Reduce(result)
	assert.Equal(t, uint32(0), counts.Alive)
	assert.Equal(t, uint32(65536), counts.TimedOut)
	assert.Equal(t, uint32(0), counts.Errored)
	assert.Equal(t, uint32(65536), counts.Total)
}

func TestReduceCountsMixedOutcomes(t *testing.T) {
	result := &slash16.Slash16Result{}
	var s24 slash16.Slash24Result
	s24[0] = pingoutcome.Success(5)
	s24[1] = pingoutcome.Timeout()
	s24[2] = pingoutcome.Error()
	for i := 3; i < 256; i++ {
		s24[i] = pingoutcome.Timeout()
	}
	result[0] = &s24

	counts := Reduce(result)
	assert.Equal(t, uint32(1), counts.Alive)
	assert.Equal(t, uint32(254+255*256), counts.TimedOut)
	assert.Equal(t, uint32(1), counts.Errored)
	assert.Equal(t, uint32(65536), counts.Total)
}

func TestAlivePercentHandlesZeroTotal(t *testing.T) {
	var c Counts
	assert.Equal(t, float64(0), c.AlivePercent())
}

func TestAlivePercentComputesRatio(t *testing.T) {
	c := Counts{Alive: 25, TimedOut: 75, Total: 100}
	assert.InDelta(t, 25.0, c.AlivePercent(), 0.0001)
}
