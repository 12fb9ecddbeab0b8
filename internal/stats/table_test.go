package stats

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wowkster/ping-the-internet/internal/subnet"
)

func TestWriteTableRendersSkippedAndNotFoundRows(t *testing.T) {
	s1, err := subnet.New(0x01000000, subnet.MaskB)
	require.NoError(t, err)
	s2, err := subnet.New(0x01010000, subnet.MaskB)
	require.NoError(t, err)
	s3, err := subnet.New(0x01020000, subnet.MaskB)
	require.NoError(t, err)

	rows := []Row{
		{Subnet: s1, Kind: RowSkipped},
		{Subnet: s2, Kind: RowNotFound},
		{Subnet: s3, Kind: RowCounted, Counts: Counts{Alive: 10, TimedOut: 65526, Total: 65536}},
	}

	var buf bytes.Buffer
	WriteTable(&buf, rows)

	out := buf.String()
	assert.Contains(t, out, "Skipped")
	assert.Contains(t, out, "NOT FOUND")
	assert.Contains(t, out, "1.2.x.x")
	assert.True(t, strings.Contains(out, "alive"))
}
