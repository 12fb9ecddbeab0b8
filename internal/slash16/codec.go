// Package slash16 implements the compact on-disk format for a completed
// /16 probe: 256 optional /24 records, each either a single absence byte
// or a presence byte followed by 256 ping outcomes, deflate-compressed as
// a whole. Compression uses klauspost/compress/flate (already part of
// this repo's dependency surface) rather than the stdlib's compress/flate,
// since the two are drop-in compatible and klauspost's is the pack's
// established choice for deflate-family codecs.
package slash16

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"

	"github.com/wowkster/ping-the-internet/internal/pingoutcome"
	"github.com/wowkster/ping-the-internet/internal/subnet"
)

// Slash24Result is a fixed 256-element ordered sequence of outcomes,
// indexed by the 4th octet.
type Slash24Result [256]pingoutcome.Outcome

// Slash16Result is a fixed 256-element ordered sequence of optional
// Slash24Results, indexed by the 3rd octet. A nil entry means the entire
// /24 timed out and is elided from disk.
type Slash16Result [256]*Slash24Result

const (
	tagAbsent  byte = 0x00
	tagPresent byte = 0x01
)

var (
	// ErrNotFound is returned by Read when no result file exists for a /16.
	ErrNotFound = errors.New("slash16: result not found")
	// ErrCorrupt is returned by Read when the on-disk file cannot be decoded.
	ErrCorrupt = errors.New("slash16: corrupt result file")
	// ErrTrailingBytes is returned by Decode when the inflated stream has
	// bytes left over after all 256 records are consumed.
	ErrTrailingBytes = errors.New("slash16: trailing bytes after decode")
)

// Path returns the on-disk path for a /16's result file: ./data/{a}/{b}.
func Path(dataDir string, s subnet.Subnet) string {
	return filepath.Join(dataDir, fmt.Sprint(s.Octet(0)), fmt.Sprint(s.Octet(1)))
}

// Encode renders r into the uncompressed wire layout: 256 repetitions of
// one Slash24 record in ascending 3rd-octet order.
func Encode(r *Slash16Result) []byte {
	buf := make([]byte, 0, 1<<16)
	for c := 0; c < 256; c++ {
		s24 := r[c]
		if s24 == nil {
			buf = append(buf, tagAbsent)
			continue
		}
		buf = append(buf, tagPresent)
		for d := 0; d < 256; d++ {
			buf = pingoutcome.Encode(buf, s24[d])
		}
	}
	return buf
}

// Decode parses the uncompressed wire layout produced by Encode. The
// input must be consumed exactly; leftover bytes are ErrTrailingBytes.
func Decode(src []byte) (*Slash16Result, error) {
	r := &Slash16Result{}
	off := 0
	for c := 0; c < 256; c++ {
		if off >= len(src) {
			return nil, fmt.Errorf("slash16: decode: truncated stream at /24 index %d", c)
		}
		switch src[off] {
		case tagAbsent:
			off++
		case tagPresent:
			off++
			var s24 Slash24Result
			for d := 0; d < 256; d++ {
				o, n, err := pingoutcome.Decode(src[off:])
				if err != nil {
					return nil, fmt.Errorf("slash16: decode: /24 index %d outcome %d: %w", c, d, err)
				}
				s24[d] = o
				off += n
			}
			r[c] = &s24
		default:
			return nil, fmt.Errorf("slash16: decode: /24 index %d: %w: 0x%02x", c, pingoutcome.ErrCorrupt, src[off])
		}
	}
	if off != len(src) {
		return nil, fmt.Errorf("%w: %d bytes left", ErrTrailingBytes, len(src)-off)
	}
	return r, nil
}

// deflate compresses src at maximum level.
func deflate(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("slash16: deflate: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("slash16: deflate: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("slash16: deflate: close: %w", err)
	}
	return buf.Bytes(), nil
}

// inflate decompresses src, which may be any valid deflate stream.
func inflate(src []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(src))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("slash16: inflate: %w", err)
	}
	return out, nil
}

// Save persists result for s to dataDir, creating parent directories as
// needed. It panics with a WrongMask-shaped message if s is not a /16;
// that is a programmer contract violation, not a runtime condition a
// caller should handle. On I/O failure the file may be left truncated but
// present; callers are expected to treat such files as Corrupt and
// re-probe, per spec.
func Save(dataDir string, s subnet.Subnet, result *Slash16Result) error {
	if s.Mask() != subnet.MaskB {
		panic(fmt.Sprintf("slash16: save: wrong mask: got /%d, want /16", s.Mask()))
	}

	path := Path(dataDir, s)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("slash16: save: mkdir: %w", err)
	}

	compressed, err := deflate(Encode(result))
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, compressed, 0o644); err != nil {
		return fmt.Errorf("slash16: save: write %s: %w", path, err)
	}
	return nil
}

// Read loads the result for s from dataDir. It returns ErrNotFound if the
// path does not exist, ErrCorrupt if decoding fails, and otherwise the
// decoded result.
func Read(dataDir string, s subnet.Subnet) (*Slash16Result, error) {
	path := Path(dataDir, s)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("slash16: read %s: %w", path, err)
	}

	inflated, err := inflate(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}

	result, err := Decode(inflated)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return result, nil
}

// Exists reports whether a result file is already present for s, without
// decoding it. Used by the planner's resume check.
func Exists(dataDir string, s subnet.Subnet) bool {
	_, err := os.Stat(Path(dataDir, s))
	return err == nil
}

// AllErrorSlash24s returns the 3rd-octet index of every present /24
// whose 256 outcomes are all Error, the signal the failure log uses: a
// /24 entirely dark due to transport errors rather than timeouts means
// something local broke, not that the network is unreachable.
func (r *Slash16Result) AllErrorSlash24s() []uint8 {
	var bad []uint8
	for c := 0; c < 256; c++ {
		s24 := r[c]
		if s24 == nil {
			continue
		}
		allError := true
		for d := 0; d < 256; d++ {
			if !s24[d].IsError() {
				allError = false
				break
			}
		}
		if allError {
			bad = append(bad, uint8(c))
		}
	}
	return bad
}
