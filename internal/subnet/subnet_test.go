package subnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsMisalignedBase(t *testing.T) {
	_, err := New(0x08000001, MaskB) // 8.0.0.1/16 — low 16 bits are not zero
	require.ErrorIs(t, err, ErrInvalidBase)
}

func TestNewRejectsBadMask(t *testing.T) {
	_, err := New(0, Mask(12))
	require.ErrorIs(t, err, ErrInvalidMask)
}

func TestParseFormatRoundTrip(t *testing.T) {
	cases := []string{"8.0.0.0", "1.2.x.x", "10.x.x.x", "x.x.x.x", "203.0.113.5"}
	for _, c := range cases {
		s, err := Parse(c)
		require.NoError(t, err, c)
		assert.Equal(t, c, s.Format())
	}
}

func TestParseRejectsMixedWildcards(t *testing.T) {
	_, err := Parse("1.x.3.4")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestParseRejectsWrongOctetCount(t *testing.T) {
	_, err := Parse("1.2.3")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestChildrenOfSlash8(t *testing.T) {
	s, err := Parse("8.x.x.x")
	require.NoError(t, err)
	children := s.Children()
	require.Len(t, children, 256)
	assert.Equal(t, "8.0.x.x", children[0].Format())
	assert.Equal(t, "8.255.x.x", children[255].Format())
	for _, c := range children {
		assert.Equal(t, MaskB, c.Mask())
	}
}

func TestChildrenOfSlashZeroYields256Slash8s(t *testing.T) {
	all, err := New(0, MaskAll)
	require.NoError(t, err)
	children := all.Children()
	require.Len(t, children, 256)
	assert.Equal(t, MaskA, children[0].Mask())
	assert.Equal(t, "255.x.x.x", children[255].Format())
}

func TestChildrenOfSlash32IsEmpty(t *testing.T) {
	s, err := Parse("1.2.3.4")
	require.NoError(t, err)
	assert.Empty(t, s.Children())
}

func TestAddressesOfSlash24(t *testing.T) {
	s, err := Parse("10.0.0.x")
	require.NoError(t, err)
	var got []uint32
	s.Addresses(func(a uint32) bool {
		got = append(got, a)
		return true
	})
	require.Len(t, got, 256)
	assert.Equal(t, s.Base(), got[0])
	assert.Equal(t, s.Base()+255, got[255])
}

func TestAddressesEarlyStop(t *testing.T) {
	s, err := Parse("10.0.0.x")
	require.NoError(t, err)
	count := 0
	s.Addresses(func(a uint32) bool {
		count++
		return count < 5
	})
	assert.Equal(t, 5, count)
}

func TestAddressesBoundaryValues(t *testing.T) {
	zero, err := New(0, MaskD)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", zero.Format())

	max, err := New(0xFFFFFFFF, MaskD)
	require.NoError(t, err)
	assert.Equal(t, "255.255.255.255", max.Format())
	assert.Equal(t, uint64(1), max.Size())
}

func TestFormatAddr(t *testing.T) {
	assert.Equal(t, "1.2.3.4", FormatAddr(0x01020304))
}
