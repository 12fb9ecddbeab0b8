package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wowkster/ping-the-internet/internal/pingoutcome"
	"github.com/wowkster/ping-the-internet/internal/slash16"
)

func TestNewResultsMessageOmitsElidedSlash24s(t *testing.T) {
	result := &slash16.Slash16Result{}
	var s24 slash16.Slash24Result
	for i := range s24 {
		s24[i] = pingoutcome.Success(uint32(i))
	}
	result[7] = &s24

	msg := NewResultsMessage(result)

	assert.Len(t, msg.Slash24s, 1)
	_, ok := msg.Slash24s[7]
	assert.True(t, ok)
}

func TestResultsMessageRoundTripsThroughToSlash16Result(t *testing.T) {
	result := &slash16.Slash16Result{}
	var alive slash16.Slash24Result
	alive[0] = pingoutcome.Success(12)
	alive[1] = pingoutcome.Timeout()
	alive[2] = pingoutcome.Error()
	result[3] = &alive

	msg := NewResultsMessage(result)
	back := msg.ToSlash16Result()

	assert.True(t, back[3][0].IsSuccess())
	assert.Equal(t, uint16(12), back[3][0].RTTMillis())
	assert.True(t, back[3][1].IsTimeout())
	assert.True(t, back[3][2].IsError())
	assert.Nil(t, back[4])
}

func TestOutcomeWireConversionPreservesRTT(t *testing.T) {
	o := pingoutcome.Success(255)
	wire := outcomeToWire(o)
	assert.Equal(t, outcomeTagSuccess, wire.Tag)
	assert.Equal(t, uint16(255), wire.RTTMillis)

	back := outcomeFromWire(wire)
	assert.True(t, back.IsSuccess())
	assert.Equal(t, uint16(255), back.RTTMillis())
}
