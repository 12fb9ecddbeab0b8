package slash16

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wowkster/ping-the-internet/internal/pingoutcome"
	"github.com/wowkster/ping-the-internet/internal/subnet"
)

func allTimeoutResult() *Slash16Result {
	return &Slash16Result{}
}

func mixedResult() *Slash16Result {
	r := &Slash16Result{}
	var s24 Slash24Result
	s24[0] = pingoutcome.Success(12)
	for i := 1; i < 256; i++ {
		s24[i] = pingoutcome.Timeout()
	}
	r[0] = &s24
	return r
}

func TestEncodeDecodeRoundTripAllTimeout(t *testing.T) {
	r := allTimeoutResult()
	buf := Encode(r)
	assert.Len(t, buf, 256) // 256 absence bytes, pre-compression

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestEncodeDecodeRoundTripAllSuccess(t *testing.T) {
	r := &Slash16Result{}
	for c := 0; c < 256; c++ {
		var s24 Slash24Result
		for d := 0; d < 256; d++ {
			s24[d] = pingoutcome.Success(uint32(d))
		}
		r[c] = &s24
	}
	buf := Encode(r)
	assert.Len(t, buf, 256*(1+256*3))

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestEncodeDecodeRoundTripMixed(t *testing.T) {
	r := mixedResult()
	buf := Encode(r)
	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestDecodeTrailingBytesIsError(t *testing.T) {
	buf := Encode(allTimeoutResult())
	buf = append(buf, 0xFF)
	_, err := Decode(buf)
	require.ErrorIs(t, err, ErrTrailingBytes)
}

func TestDecodeTruncatedIsError(t *testing.T) {
	buf := Encode(mixedResult())
	_, err := Decode(buf[:len(buf)-1])
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := subnet.Parse("8.0.x.x")
	require.NoError(t, err)

	r := mixedResult()
	require.NoError(t, Save(dir, s, r))

	got, err := Read(dir, s)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	assert.FileExists(t, filepath.Join(dir, "8", "0"))
}

func TestReadNotFound(t *testing.T) {
	dir := t.TempDir()
	s, err := subnet.Parse("9.0.x.x")
	require.NoError(t, err)

	_, err = Read(dir, s)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReadCorrupt(t *testing.T) {
	dir := t.TempDir()
	s, err := subnet.Parse("9.0.x.x")
	require.NoError(t, err)

	path := Path(dir, s)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte{0x01, 0x02, 0x03, 0x04}, 0o644))

	_, err = Read(dir, s)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestSavePanicsOnWrongMask(t *testing.T) {
	dir := t.TempDir()
	s, err := subnet.Parse("8.0.0.x")
	require.NoError(t, err)

	assert.Panics(t, func() {
		_ = Save(dir, s, allTimeoutResult())
	})
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	s, err := subnet.Parse("8.0.x.x")
	require.NoError(t, err)

	assert.False(t, Exists(dir, s))
	require.NoError(t, Save(dir, s, allTimeoutResult()))
	assert.True(t, Exists(dir, s))
}
